// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package feemodel

import "github.com/holiman/uint256"

// L1Config bundles the Ecotone L1-data-fee scalars (spec.md §4.3).
type L1Config struct {
	BaseFeeScalar uint64
	BlobBaseFeeScalar uint64
	BaseFee       *uint256.Int
	BlobBaseFee   *uint256.Int
}

// CompressedSize returns (zeroBytes*4 + nonzeroBytes*16) / 16, the
// Ecotone-style compressed-byte estimate of tx's serialized form.
func CompressedSize(tx []byte) uint64 {
	var zero, nonzero uint64
	for _, b := range tx {
		if b == 0 {
			zero++
		} else {
			nonzero++
		}
	}
	return (zero*4 + nonzero*16) / 16
}

// L1DataFee computes compressed*weighted where
// weighted = 16*base_fee_scalar*base_fee + blob_scalar*blob_base_fee
// (spec.md §4.3 "L1 data fee (Ecotone)").
func L1DataFee(cfg L1Config, tx []byte) *uint256.Int {
	compressed := uint256.NewInt(CompressedSize(tx))

	weighted := new(uint256.Int).Mul(uint256.NewInt(16), uint256.NewInt(cfg.BaseFeeScalar))
	weighted.Mul(weighted, cfg.BaseFee)

	blobTerm := new(uint256.Int).Mul(uint256.NewInt(cfg.BlobBaseFeeScalar), cfg.BlobBaseFee)
	weighted.Add(weighted, blobTerm)

	return new(uint256.Int).Mul(compressed, weighted)
}
