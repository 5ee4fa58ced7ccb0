// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package feemodel

import (
	"math"

	"github.com/holiman/uint256"
)

// EffectiveGasPrice computes
// min(maxPriorityFeePerGas, maxFeePerGas - baseFee) + baseFee, saturating
// at zero (spec.md §4.3 "Effective gas price").
func EffectiveGasPrice(maxPriorityFeePerGas, maxFeePerGas, baseFee *uint256.Int) *uint256.Int {
	headroom := new(uint256.Int)
	if maxFeePerGas.Cmp(baseFee) > 0 {
		headroom.Sub(maxFeePerGas, baseFee)
	}
	tip := maxPriorityFeePerGas
	if headroom.Cmp(tip) < 0 {
		tip = headroom
	}
	return new(uint256.Int).Add(tip, baseFee)
}

// L2Fee computes effectiveGasPrice * gasLimit * gasMultiplier (spec.md §4.3
// "L2 fee").
func L2Fee(effectiveGasPrice *uint256.Int, gasLimit uint64, gasMultiplier uint64) *uint256.Int {
	fee := new(uint256.Int).Mul(effectiveGasPrice, uint256.NewInt(gasLimit))
	return fee.Mul(fee, uint256.NewInt(gasMultiplier))
}

// SaturatingGasPriceUint64 narrows maxFeePerGas to a uint64, saturating to
// math.MaxUint64 on overflow rather than rejecting the transaction (decided
// in SPEC_FULL.md §11, matching the source's saturating arithmetic
// throughout its fee path). Used only for the MoveVM user-context gas price
// field, which is a native u64.
func SaturatingGasPriceUint64(maxFeePerGas *uint256.Int) uint64 {
	if maxFeePerGas.IsUint64() {
		return maxFeePerGas.Uint64()
	}
	return math.MaxUint64
}
