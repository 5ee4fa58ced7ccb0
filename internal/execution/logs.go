// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package execution

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/luxfi/opmove/internal/movevm"
	"github.com/luxfi/opmove/internal/primitives"
)

// ConvertEvents implements the non-EVM half of spec.md §4.4 "Finalize":
// every non-distinguished contract event hashes its canonical type string
// into topic[0], with its serialized data carried through unchanged. The
// distinguished EVM-logs event (movevm.Event.IsEvmLogEvent) is the native
// extension's own concern (internal/evmext) and is skipped here — the
// pipeline merges its already-converted []*types.Log separately.
func ConvertEvents(events []movevm.Event) []*types.Log {
	logs := make([]*types.Log, 0, len(events))
	for _, e := range events {
		if e.IsEvmLogEvent() {
			continue
		}
		logs = append(logs, convertEvent(e))
	}
	return logs
}

func convertEvent(e movevm.Event) *types.Log {
	typeHash := crypto.Keccak256Hash([]byte(e.TypeTag.String()))
	return &types.Log{
		Address: primitives.ToEthAddress(e.TypeTag.Address),
		Topics:  []common.Hash{typeHash},
		Data:    e.Data,
	}
}
