// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package evmext

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/opmove/internal/primitives"
	"github.com/luxfi/opmove/internal/trie"
)

// ReadViewResolver implements Resolver against a historical, read-only trie
// view (trie.Store.OpenAt) instead of the live, in-block-mutable head
// StoreResolver reads from. The state-queries façade (C8) uses this so a
// height-tagged read (spec.md §4.7) never observes state newer than the
// height it asked for, while still sharing the same contract-code and
// storage-trie plumbing StoreResolver uses (neither depends on which root
// is "current").
type ReadViewResolver struct {
	store *trie.Store
	view  *trie.ReadView
	kv    trie.KV
}

// NewReadViewResolver wraps a historical view opened from store at a given
// height, addressing contract code through the same kv StoreResolver uses.
func NewReadViewResolver(store *trie.Store, view *trie.ReadView, kv trie.KV) *ReadViewResolver {
	return &ReadViewResolver{store: store, view: view, kv: kv}
}

func (r *ReadViewResolver) GetAccount(addr common.Address) (*primitives.Account, error) {
	key := primitives.TaggedEvmKey(addr)
	trieKey := primitives.TrieKey(key)
	raw, err := r.view.Get(trieKey[:])
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return primitives.DecodeAccountRLP(raw)
}

func (r *ReadViewResolver) GetStorageSlot(storageRoot, owner, slot common.Hash) (*big.Int, error) {
	st, err := trie.OpenStorageTrie(r.store, owner, storageRoot)
	if err != nil {
		return nil, err
	}
	return st.GetSlot(slot)
}

func (r *ReadViewResolver) GetCode(hash common.Hash) ([]byte, error) {
	return r.kv.Get(codeKey(hash))
}

// AccountProof returns the world-trie account proof for addr as of this
// view's height, for the EIP-1186-shaped proof operation (spec.md §4.7).
func (r *ReadViewResolver) AccountProof(addr common.Address) ([][]byte, error) {
	key := primitives.TaggedEvmKey(addr)
	trieKey := primitives.TrieKey(key)
	return r.view.Proof(trieKey[:])
}

// Root returns the state root this view is pinned to.
func (r *ReadViewResolver) Root() common.Hash { return r.view.Root() }
