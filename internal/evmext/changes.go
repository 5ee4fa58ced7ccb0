// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package evmext

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/luxfi/opmove/internal/primitives"
	"github.com/luxfi/opmove/internal/trie"
)

// AccountDiff is one touched account's state after a call, ready to be
// merged into the world trie (the Go analogue of the per-address entries
// add_account_changes folds into a Move AccountChangeSet in
// original_source/evm-ext/src/state_changes.rs).
type AccountDiff struct {
	Addr             common.Address
	Account          *primitives.Account
	PrevStorageRoot  common.Hash
	StorageChanges   map[common.Hash]*big.Int
	Code             []byte
	Destructed       bool
}

// Diff is the full state-diff captured by one StateDB over the course of a
// call: touched accounts, the logs it emitted, and any native-token
// transfers that must be reconciled against the Move base-token ledger.
type Diff struct {
	Accounts  []AccountDiff
	Logs      []*types.Log
	Transfers []EthTransfer
}

// ExtractChanges walks every account the StateDB touched and builds the
// diff to merge back into the world trie. Untouched accounts (read but
// never mutated) are dropped, mirroring the is_touched() filter in
// original_source/evm-ext/src/state_changes.rs extract_evm_changes.
func ExtractChanges(s *StateDB) Diff {
	diff := Diff{
		Logs:      s.Logs(),
		Transfers: s.Transfers(),
	}
	for _, addr := range s.order {
		a := s.accounts[addr]
		if !a.touched {
			continue
		}

		if a.destructed {
			diff.Accounts = append(diff.Accounts, AccountDiff{
				Addr:       addr,
				Destructed: true,
			})
			continue
		}

		acc := &primitives.Account{
			Nonce:       a.nonce,
			Balance:     a.balance.ToBig(),
			StorageRoot: a.storageRoot,
			CodeHash:    a.codeHash,
		}

		var storageChanges map[common.Hash]*big.Int
		if len(a.storage) > 0 {
			storageChanges = make(map[common.Hash]*big.Int, len(a.storage))
			for key, val := range a.storage {
				storageChanges[key] = new(big.Int).SetBytes(val.Bytes())
			}
		}

		d := AccountDiff{
			Addr:            addr,
			Account:         acc,
			PrevStorageRoot: a.storageRoot,
			StorageChanges:  storageChanges,
		}
		if a.code != nil && a.codeHash != primitives.EmptyCodeHash {
			d.Code = a.code
		}
		diff.Accounts = append(diff.Accounts, d)
	}
	return diff
}

// Apply merges diff into store (and persists any new contract code via
// resolver), updating each touched account's StorageRoot to the post-commit
// storage-trie root before writing the account record. Callers commit store
// afterwards as part of the enclosing transaction/block commit (spec.md
// §9: all mutations for one block commit atomically).
func Apply(store *trie.Store, resolver *StoreResolver, diff Diff) error {
	for _, d := range diff.Accounts {
		owner := ownerHash(d.Addr)
		trieKey := primitives.TrieKey(primitives.TaggedEvmKey(d.Addr))

		if d.Destructed {
			if err := store.Remove(trieKey[:]); err != nil {
				return err
			}
			continue
		}

		if len(d.StorageChanges) > 0 {
			st, err := trie.OpenStorageTrie(store, owner, d.PrevStorageRoot)
			if err != nil {
				return err
			}
			for slot, val := range d.StorageChanges {
				if err := st.SetSlot(slot, val); err != nil {
					return err
				}
			}
			root, err := st.Commit()
			if err != nil {
				return err
			}
			d.Account.StorageRoot = root
		}

		if d.Code != nil {
			if err := resolver.PutCode(d.Account.CodeHash, d.Code); err != nil {
				return err
			}
		}

		encoded, err := d.Account.EncodeRLP()
		if err != nil {
			return err
		}
		if err := store.Insert(trieKey[:], encoded); err != nil {
			return err
		}
	}
	return nil
}
