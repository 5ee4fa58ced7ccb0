// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package evmext

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/opmove/internal/primitives"
	"github.com/luxfi/opmove/internal/trie"
)

// Resolver is the base-state read path a StateDB falls through to once it
// finds no overlay entry for an address, mirroring the split between
// ResolverBackedDB (accounts/code) and StorageTrieRepository (slots) in
// original_source/evm-ext/src/native_evm_context.rs — collapsed into one
// interface here since both ultimately read the same world trie.
type Resolver interface {
	// GetAccount returns the account tagged at addr, or nil if absent.
	GetAccount(addr common.Address) (*primitives.Account, error)

	// GetStorageSlot reads slot from the storage trie rooted at
	// storageRoot (the account's current StorageRoot field).
	GetStorageSlot(storageRoot common.Hash, owner common.Hash, slot common.Hash) (*big.Int, error)

	// GetCode returns the contract code for codeHash, or nil if absent.
	GetCode(codeHash common.Hash) ([]byte, error)
}

// StoreResolver implements Resolver directly on top of the live,
// in-block-mutable world trie (internal/trie.Store). It also serves as the
// one place that knows how to turn an Ethereum address into the tagged trie
// key and how to persist EVM contract code, since the unified trie has no
// dedicated code-keyspace of its own (code is addressed by hash under the
// same KV backing the trie, per spec.md §4.1/§6).
type StoreResolver struct {
	store *trie.Store
	kv    trie.KV
}

// NewStoreResolver wraps store for EVM-native reads, using kv (the same
// keyspace store was opened over) to address contract code by hash.
func NewStoreResolver(store *trie.Store, kv trie.KV) *StoreResolver {
	return &StoreResolver{store: store, kv: kv}
}

func (r *StoreResolver) GetAccount(addr common.Address) (*primitives.Account, error) {
	key := primitives.TaggedEvmKey(addr)
	trieKey := primitives.TrieKey(key)
	raw, err := r.store.Get(trieKey[:])
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return primitives.DecodeAccountRLP(raw)
}

func (r *StoreResolver) GetStorageSlot(storageRoot, owner, slot common.Hash) (*big.Int, error) {
	st, err := trie.OpenStorageTrie(r.store, owner, storageRoot)
	if err != nil {
		return nil, err
	}
	return st.GetSlot(slot)
}

var codeKeyPrefix = []byte("evmcode:")

func codeKey(hash common.Hash) []byte {
	key := make([]byte, len(codeKeyPrefix)+common.HashLength)
	n := copy(key, codeKeyPrefix)
	copy(key[n:], hash[:])
	return key
}

func (r *StoreResolver) GetCode(hash common.Hash) ([]byte, error) {
	return r.kv.Get(codeKey(hash))
}

// PutCode persists code under its keccak256 hash so later GetCode calls (in
// this block or a later one) can recover it.
func (r *StoreResolver) PutCode(hash common.Hash, code []byte) error {
	return r.kv.Put(codeKey(hash), code)
}
