// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package feemodel

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestNextBaseFeeDirection(t *testing.T) {
	p := DefaultParams()
	const gasLimit = 16_000_000
	target := gasLimit / p.ElasticityMultiplier
	base := uint256.NewInt(1_000_000_000)

	above := NextBaseFee(p, gasLimit, target+1_000_000, base)
	require.Equal(t, 1, above.Cmp(base), "used > target must raise base fee")

	below := NextBaseFee(p, gasLimit, target-1_000_000, base)
	require.Equal(t, -1, below.Cmp(base), "used < target must lower base fee")

	equal := NextBaseFee(p, gasLimit, target, base)
	require.True(t, equal.Eq(base), "used == target must leave base fee unchanged")
}

func TestNextBaseFeeSaturatesAtZero(t *testing.T) {
	// Denominator 1 makes the downward delta equal the whole parent base
	// fee for an empty parent block, so the result hits the zero floor.
	p := Params{ElasticityMultiplier: 2, Denominator: 1}
	tiny := uint256.NewInt(1)
	next := NextBaseFee(p, 16_000_000, 0, tiny)
	require.True(t, next.IsZero())
}

func TestCompressedSize(t *testing.T) {
	tx := make([]byte, 32)
	for i := range tx {
		if i%2 == 0 {
			tx[i] = 0xff
		}
	}
	got := CompressedSize(tx)
	require.Equal(t, uint64(16*16+16*4)/16, got)
}

func TestL1DataFee(t *testing.T) {
	cfg := L1Config{
		BaseFeeScalar:     100,
		BlobBaseFeeScalar: 10,
		BaseFee:           uint256.NewInt(1000),
		BlobBaseFee:       uint256.NewInt(2000),
	}
	tx := []byte{0x01, 0x02, 0x00, 0x00}
	fee := L1DataFee(cfg, tx)
	require.True(t, fee.Sign() > 0)

	zero := L1DataFee(cfg, nil)
	require.True(t, zero.IsZero())
}

func TestEffectiveGasPrice(t *testing.T) {
	base := uint256.NewInt(100)

	capped := EffectiveGasPrice(uint256.NewInt(50), uint256.NewInt(120), base)
	require.True(t, capped.Eq(uint256.NewInt(base.Uint64()+20)))

	tipLimited := EffectiveGasPrice(uint256.NewInt(5), uint256.NewInt(1000), base)
	require.True(t, tipLimited.Eq(uint256.NewInt(105)))

	belowBase := EffectiveGasPrice(uint256.NewInt(10), uint256.NewInt(50), base)
	require.True(t, belowBase.Eq(base))
}

func TestL2Fee(t *testing.T) {
	price := uint256.NewInt(10)
	fee := L2Fee(price, 21000, 2)
	require.True(t, fee.Eq(uint256.NewInt(420000)))
}

func TestSaturatingGasPriceUint64(t *testing.T) {
	small := uint256.NewInt(42)
	require.Equal(t, uint64(42), SaturatingGasPriceUint64(small))

	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	require.Equal(t, uint64(math.MaxUint64), SaturatingGasPriceUint64(huge))
}
