// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package execution

import (
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
)

// IntrinsicGas charges for serialized size and I/O gas (spec.md §4.4
// verification step 2), reusing go-ethereum's own per-byte accounting
// (core.IntrinsicGas) rather than re-deriving the zero/nonzero-byte cost
// table spec.md leaves unspecified. Every fork flag is enabled: the
// embedded interpreter always runs the latest ruleset (see
// internal/evmext.chainConfig).
func IntrinsicGas(data []byte, isContractCreation bool) (uint64, error) {
	return core.IntrinsicGas(data, types.AccessList{}, isContractCreation, true, true, true)
}
