// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package feemodel implements the L1+L2 fee arithmetic of spec.md §4.3:
// EIP-1559-style base-fee evolution, the Ecotone L1 data fee, the L2
// execution fee, and the effective gas price.
package feemodel

import "github.com/holiman/uint256"

// Params bundles the tunables named in spec.md §4.3. ElasticityMultiplier
// and Denominator must both be > 0.
type Params struct {
	ElasticityMultiplier uint64
	Denominator          uint64
}

// DefaultParams matches the defaults spec.md §4.3 names (elasticity=2,
// denominator=8).
func DefaultParams() Params {
	return Params{ElasticityMultiplier: 2, Denominator: 8}
}

// NextBaseFee computes the child block's base fee per gas from the parent's
// gas limit, gas used, and base fee, per the EIP-1559-style rule in
// spec.md §4.3. Uses uint256 throughout to avoid big.Int allocation churn
// in the per-block hot path (grounded on luxfi-evm's direct holiman/uint256
// dependency).
func NextBaseFee(p Params, parentGasLimit, parentGasUsed uint64, parentBaseFee *uint256.Int) *uint256.Int {
	target := parentGasLimit / p.ElasticityMultiplier
	if target == 0 {
		target = 1
	}

	switch {
	case parentGasUsed == target:
		return new(uint256.Int).Set(parentBaseFee)

	case parentGasUsed > target:
		usedDelta := parentGasUsed - target
		delta := computeDelta(parentBaseFee, usedDelta, target, p.Denominator)
		if delta.IsZero() {
			delta = uint256.NewInt(1)
		}
		return new(uint256.Int).Add(parentBaseFee, delta)

	default:
		targetDelta := target - parentGasUsed
		delta := computeDelta(parentBaseFee, targetDelta, target, p.Denominator)
		next := new(uint256.Int)
		if delta.Cmp(parentBaseFee) >= 0 {
			return next // saturate at zero
		}
		return next.Sub(parentBaseFee, delta)
	}
}

// computeDelta returns parentBaseFee * numerator / target / denominator.
func computeDelta(parentBaseFee *uint256.Int, numerator, target, denominator uint64) *uint256.Int {
	delta := new(uint256.Int).Mul(parentBaseFee, uint256.NewInt(numerator))
	delta.Div(delta, uint256.NewInt(target))
	delta.Div(delta, uint256.NewInt(denominator))
	return delta
}
