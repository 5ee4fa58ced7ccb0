// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package trie

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"

	"github.com/luxfi/opmove/internal/primitives"
)

// StorageTrie is the per-EVM-account Merkle-Patricia trie over
// keccak256(slot) -> RLP(U256), rooted under the owning account's
// storage_root field (spec.md §4.1 / §3 "EVM Account Storage").
type StorageTrie struct {
	owner common.Hash // keccak256 of the account's tagged trie key
	root  common.Hash
	db    *Store
	t     *gtrie.Trie
}

// OpenStorageTrie opens (or, if root is the empty-trie sentinel, creates)
// the storage trie owned by account owner, rooted at root.
func OpenStorageTrie(store *Store, owner common.Hash, root common.Hash) (*StorageTrie, error) {
	id := gtrie.StorageTrieID(store.curRoot, owner, root)
	t, err := gtrie.New(id, store.db)
	if err != nil {
		return nil, NewStorageFailure(err)
	}
	return &StorageTrie{owner: owner, root: root, db: store, t: t}, nil
}

// GetSlot returns the stored U256 value at slot, or zero if absent (the
// remove-on-zero invariant means absence and zero are synonymous).
func (s *StorageTrie) GetSlot(slot common.Hash) (*big.Int, error) {
	key := primitives.StorageSlotKey(slot)
	v, err := s.t.Get(key[:])
	if err != nil {
		return nil, NewStorageFailure(err)
	}
	if v == nil {
		return new(big.Int), nil
	}
	return primitives.DecodeStorageSlot(v)
}

// SetSlot writes value at slot. A zero value removes the entry instead of
// writing it, per the remove-on-zero invariant.
func (s *StorageTrie) SetSlot(slot common.Hash, value *big.Int) error {
	key := primitives.StorageSlotKey(slot)
	if value == nil || value.Sign() == 0 {
		if err := s.t.Delete(key[:]); err != nil {
			return NewStorageFailure(err)
		}
		return nil
	}
	enc, err := primitives.EncodeStorageSlot(value)
	if err != nil {
		return NewStorageFailure(err)
	}
	if err := s.t.Update(key[:], enc); err != nil {
		return NewStorageFailure(err)
	}
	return nil
}

// Proof returns the EIP-1186 storage proof for slot.
func (s *StorageTrie) Proof(slot common.Hash) ([][]byte, error) {
	key := primitives.StorageSlotKey(slot)
	var proofDB memProofDB
	if err := s.t.Prove(key[:], &proofDB); err != nil {
		return nil, NewStorageFailure(err)
	}
	return proofDB.nodes, nil
}

// Commit flushes pending slot changes and returns the new storage root,
// which the caller must write back into the owning account's StorageRoot
// field before committing the world-state trie (spec.md §4.1: "Root stored
// back into the account record on commit").
func (s *StorageTrie) Commit() (common.Hash, error) {
	root, nodes := s.t.Commit(false)
	if nodes != nil {
		if err := s.db.db.Update(root, s.root, s.db.height+1, trienode.NewWithNodeSet(nodes), nil); err != nil {
			return common.Hash{}, NewStorageFailure(err)
		}
		if err := s.db.db.Commit(root, false); err != nil {
			return common.Hash{}, NewStorageFailure(err)
		}
	}
	s.root = root
	return root, nil
}
