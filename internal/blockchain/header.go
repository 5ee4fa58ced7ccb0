// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package blockchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gtrie "github.com/ethereum/go-ethereum/trie"
)

// HeaderInput collects everything AssembleHeader needs beyond the
// transaction/receipt lists themselves: the fields the command actor (C9)
// derives from the forkchoice/payload-attributes request that triggered
// this block (spec.md §4.6).
type HeaderInput struct {
	ParentHash common.Hash
	Number     uint64
	Timestamp  uint64
	GasLimit   uint64
	BaseFee    *big.Int
	Coinbase   common.Address
	PrevRandao common.Hash
	ExtraData  []byte
	StateRoot  common.Hash

	// ParentBeaconBlockRoot is carried through from the triggering payload
	// attributes and echoed back verbatim in get_payload's response
	// (spec.md §4.6, §4.8); it plays no role in this chain's own consensus,
	// only in round-tripping the consensus-layer's own beacon-root check.
	ParentBeaconBlockRoot *common.Hash
}

// AssembleHeader builds the canonical header for a block given its already
// executed transactions and receipts, deriving the transactions root and
// receipts root the way go-ethereum's own block-building code does
// (types.DeriveSha over a fresh trie.StackTrie), and the logs bloom by
// folding every receipt's logs into one accumulator
// (luxfi-evm/core/types/header_adapter.go's header shape; root.rs's
// equivalent derivation on the Rust side).
func AssembleHeader(in HeaderInput, txs types.Transactions, receipts types.Receipts, gasUsed uint64) *types.Header {
	header := &types.Header{
		ParentHash:  in.ParentHash,
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    in.Coinbase,
		Root:        in.StateRoot,
		TxHash:      types.DeriveSha(txs, gtrie.NewStackTrie(nil)),
		ReceiptHash: types.DeriveSha(receipts, gtrie.NewStackTrie(nil)),
		Bloom:       mergeBloom(receipts),
		Difficulty:  big.NewInt(0),
		Number:      new(big.Int).SetUint64(in.Number),
		GasLimit:    in.GasLimit,
		GasUsed:     gasUsed,
		Time:        in.Timestamp,
		Extra:       in.ExtraData,
		MixDigest:   in.PrevRandao,
		BaseFee:     in.BaseFee,
		ParentBeaconRoot: in.ParentBeaconBlockRoot,
	}
	return header
}

// mergeBloom folds every receipt's per-receipt bloom into one block-level
// bloom filter by a plain byte-wise OR, the same reduction
// types.CreateBloom performs across a block's receipts.
func mergeBloom(receipts types.Receipts) types.Bloom {
	var bloom types.Bloom
	for _, r := range receipts {
		rb := r.Bloom.Bytes()
		for i, b := range rb {
			bloom[i] |= b
		}
	}
	return bloom
}

// receiptBloom computes a single receipt's bloom from its logs: for every
// log, the contract address and each topic are folded into the filter,
// mirroring the classic logsBloom construction go-ethereum computes per
// receipt.
func receiptBloom(logs []*types.Log) types.Bloom {
	var bloom types.Bloom
	for _, log := range logs {
		bloom.Add(log.Address.Bytes())
		for _, topic := range log.Topics {
			bloom.Add(topic.Bytes())
		}
	}
	return bloom
}
