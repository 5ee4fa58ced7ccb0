// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package blockchain

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/luxfi/opmove/internal/errs"
	"github.com/luxfi/opmove/internal/trie"
)

// Column-family key prefixes for block data, sharing the single pebble
// keyspace trie.Store's own prefixes live in (trie/store.go); these use a
// disjoint set of leading bytes so the two packages never collide over the
// same underlying trie.KV.
var (
	prefixHeader     = []byte{'H'}
	prefixCanonical  = []byte{'N'} // height -> canonical block hash
	prefixBody       = []byte{'B'} // hash -> storedBody (tx hashes, value, payload id)
	prefixReceipts   = []byte{'X'} // hash -> []*types.ReceiptForStorage
	prefixTxLookup   = []byte{'L'} // tx hash -> owning block hash
	prefixHeadMarker = []byte{'T'} // the canonical chain tip's hash
	prefixPayload    = []byte{'P'} // payload id -> block hash
)

// Repository is the block/receipt store: add-only, height-and-hash
// addressable, grounded on original_source/blockchain/src/block/
// {write.rs,read.rs}'s BlockRepository/BlockQueries traits. It persists
// plain RLP records directly against the shared trie.KV rather than
// go-ethereum's core/rawdb accessors, so that header/body/receipt writes
// land in the exact same write batch trie.Store.Commit uses for the state
// root (spec.md §9 "one block, one atomic write").
type Repository struct {
	kv trie.KV
}

// NewRepository constructs a Repository over the same key/value store the
// world-state trie is persisted in.
func NewRepository(kv trie.KV) *Repository {
	return &Repository{kv: kv}
}

// storedBody is the RLP sidecar alongside a block's header: the transaction
// hash list in block order, the fee-recipient value, and the payload ID
// that produced the block, none of which a stock go-ethereum header field
// can carry.
type storedBody struct {
	Transactions    []common.Hash
	RawTransactions [][]byte
	Value           *big.Int
	PayloadID       engine.PayloadID
}

// Add persists a fully assembled block, its receipts, and its
// transaction-hash lookup index into batch, and marks it as the new
// canonical head. Callers are expected to pass the same batch handed to
// trie.Store.Commit so that the state root and the block/receipt records
// are written atomically in one ethdb.Batch.Write call.
func (r *Repository) Add(batch ethdb.Batch, block *Block, receipts types.Receipts) error {
	hash := block.Hash()

	headerBytes, err := rlp.EncodeToBytes(block.Header)
	if err != nil {
		return errs.NewStorageInvariantViolation(err)
	}
	if err := batch.Put(headerKey(hash), headerBytes); err != nil {
		return errs.NewStorageInvariantViolation(err)
	}

	body := storedBody{
		Transactions:    block.Transactions,
		RawTransactions: block.RawTransactions,
		Value:           block.Value,
		PayloadID:       block.PayloadID,
	}
	bodyBytes, err := rlp.EncodeToBytes(&body)
	if err != nil {
		return errs.NewStorageInvariantViolation(err)
	}
	if err := batch.Put(bodyKey(hash), bodyBytes); err != nil {
		return errs.NewStorageInvariantViolation(err)
	}

	storageReceipts := make([]*types.ReceiptForStorage, len(receipts))
	for i, rec := range receipts {
		storageReceipts[i] = (*types.ReceiptForStorage)(rec)
	}
	receiptBytes, err := rlp.EncodeToBytes(storageReceipts)
	if err != nil {
		return errs.NewStorageInvariantViolation(err)
	}
	if err := batch.Put(receiptsKey(hash), receiptBytes); err != nil {
		return errs.NewStorageInvariantViolation(err)
	}

	if err := batch.Put(canonicalKey(block.Number()), hash.Bytes()); err != nil {
		return errs.NewStorageInvariantViolation(err)
	}
	for _, txHash := range block.Transactions {
		if err := batch.Put(txLookupKey(txHash), hash.Bytes()); err != nil {
			return errs.NewStorageInvariantViolation(err)
		}
	}
	if err := batch.Put(prefixHeadMarker, hash.Bytes()); err != nil {
		return errs.NewStorageInvariantViolation(err)
	}
	if block.PayloadID != (engine.PayloadID{}) {
		if err := batch.Put(payloadKey(block.PayloadID), hash.Bytes()); err != nil {
			return errs.NewStorageInvariantViolation(err)
		}
	}
	return nil
}

// ByHash resolves a block and its receipts by block hash.
func (r *Repository) ByHash(hash common.Hash) (*Block, types.Receipts, error) {
	headerBytes, err := r.kv.Get(headerKey(hash))
	if err != nil {
		return nil, nil, errs.NewStorageInvariantViolation(err)
	}
	if headerBytes == nil {
		return nil, nil, fmt.Errorf("blockchain: no block with hash %s", hash)
	}
	var header types.Header
	if err := rlp.DecodeBytes(headerBytes, &header); err != nil {
		return nil, nil, errs.NewStorageInvariantViolation(err)
	}

	bodyBytes, err := r.kv.Get(bodyKey(hash))
	if err != nil {
		return nil, nil, errs.NewStorageInvariantViolation(err)
	}
	var body storedBody
	if bodyBytes != nil {
		if err := rlp.DecodeBytes(bodyBytes, &body); err != nil {
			return nil, nil, errs.NewStorageInvariantViolation(err)
		}
	}

	receiptBytes, err := r.kv.Get(receiptsKey(hash))
	if err != nil {
		return nil, nil, errs.NewStorageInvariantViolation(err)
	}
	var storageReceipts []*types.ReceiptForStorage
	if receiptBytes != nil {
		if err := rlp.DecodeBytes(receiptBytes, &storageReceipts); err != nil {
			return nil, nil, errs.NewStorageInvariantViolation(err)
		}
	}
	receipts := make(types.Receipts, len(storageReceipts))
	for i, rec := range storageReceipts {
		receipts[i] = (*types.Receipt)(rec)
	}

	block := &Block{
		Header:          &header,
		Transactions:    body.Transactions,
		RawTransactions: body.RawTransactions,
		Value:           body.Value,
		PayloadID:       body.PayloadID,
	}
	return block, receipts, nil
}

// ByPayloadID resolves the block a given Engine-API payload id produced,
// returning a plain not-found error for an unknown id; actor.API.GetPayload
// maps that to ErrUnknownPayload (JSON-RPC -38001).
func (r *Repository) ByPayloadID(id engine.PayloadID) (*Block, types.Receipts, error) {
	hashBytes, err := r.kv.Get(payloadKey(id))
	if err != nil {
		return nil, nil, errs.NewStorageInvariantViolation(err)
	}
	if hashBytes == nil {
		return nil, nil, fmt.Errorf("blockchain: unknown payload id %x", id)
	}
	return r.ByHash(common.BytesToHash(hashBytes))
}

// ByHeight resolves a block and its receipts by canonical height.
func (r *Repository) ByHeight(height uint64) (*Block, types.Receipts, error) {
	hashBytes, err := r.kv.Get(canonicalKey(height))
	if err != nil {
		return nil, nil, errs.NewStorageInvariantViolation(err)
	}
	if hashBytes == nil {
		return nil, nil, fmt.Errorf("blockchain: no canonical block at height %d", height)
	}
	return r.ByHash(common.BytesToHash(hashBytes))
}

// Latest resolves the current canonical chain head. It returns (nil, nil,
// nil) when no block has ever been added.
func (r *Repository) Latest() (*Block, types.Receipts, error) {
	hashBytes, err := r.kv.Get(prefixHeadMarker)
	if err != nil {
		return nil, nil, errs.NewStorageInvariantViolation(err)
	}
	if hashBytes == nil {
		return nil, nil, nil
	}
	return r.ByHash(common.BytesToHash(hashBytes))
}

// BlockByTxHash resolves the block containing a given transaction hash.
func (r *Repository) BlockByTxHash(txHash common.Hash) (*Block, types.Receipts, error) {
	blockHashBytes, err := r.kv.Get(txLookupKey(txHash))
	if err != nil {
		return nil, nil, errs.NewStorageInvariantViolation(err)
	}
	if blockHashBytes == nil {
		return nil, nil, fmt.Errorf("blockchain: no block for transaction %s", txHash)
	}
	return r.ByHash(common.BytesToHash(blockHashBytes))
}

func headerKey(hash common.Hash) []byte     { return append(append([]byte{}, prefixHeader...), hash.Bytes()...) }
func bodyKey(hash common.Hash) []byte       { return append(append([]byte{}, prefixBody...), hash.Bytes()...) }
func receiptsKey(hash common.Hash) []byte   { return append(append([]byte{}, prefixReceipts...), hash.Bytes()...) }
func txLookupKey(hash common.Hash) []byte   { return append(append([]byte{}, prefixTxLookup...), hash.Bytes()...) }

func payloadKey(id engine.PayloadID) []byte {
	return append(append([]byte{}, prefixPayload...), id[:]...)
}

func canonicalKey(height uint64) []byte {
	key := make([]byte, len(prefixCanonical)+8)
	copy(key, prefixCanonical)
	binary.BigEndian.PutUint64(key[len(prefixCanonical):], height)
	return key
}
