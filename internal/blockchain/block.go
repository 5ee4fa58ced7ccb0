// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package blockchain assembles and persists canonical blocks: header
// derivation from a committed state root plus a transaction/receipt batch
// (spec.md §4.6 "Block building"), and their storage alongside a
// height/hash index so the state-queries façade (C8) can resolve a block by
// number, by hash, or as the chain head, grounded on
// original_source/blockchain/src/block/{write.rs,read.rs,root.rs} and the
// accessor-function idiom in luxfi-evm/core/headerchain.go.
package blockchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Block is the op-move equivalent of original_source/blockchain/src/
// block/write.rs's ExtendedBlock: a canonical header plus the ordered list
// of transaction hashes it contains, with the two fields the Engine API
// needs that have no home in a stock go-ethereum header (the fee
// recipient's accrued value and the payload ID that produced it).
type Block struct {
	Header       *types.Header
	Transactions []common.Hash

	// RawTransactions holds each transaction's signed binary envelope,
	// parallel to Transactions, so a transaction can be reconstructed by
	// hash for eth_getTransactionByHash without a separate transaction
	// index column family.
	RawTransactions [][]byte

	// Value is the total amount (priority fee tips, per spec.md §4.3) paid
	// to the block's fee recipient, reported back to the Engine API caller
	// in GetPayloadV3's BlockValue (original_source/blockchain/src/block/
	// write.rs's ExtendedBlock.value).
	Value *big.Int

	// PayloadID is the identifier the command actor (C9) minted for the
	// forkchoice/payload-building job that produced this block.
	PayloadID engine.PayloadID
}

// Hash returns the block's canonical identifying hash, i.e. its header's
// RLP hash.
func (b *Block) Hash() common.Hash {
	return b.Header.Hash()
}

// Number returns the block's height.
func (b *Block) Number() uint64 {
	return b.Header.Number.Uint64()
}
