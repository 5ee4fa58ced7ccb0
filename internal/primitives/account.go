// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package primitives

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// EmptyCodeHash is the sentinel code-hash carried by every account that has
// not deployed EVM bytecode (keccak256 of the empty byte string).
var EmptyCodeHash = crypto.Keccak256Hash(nil)

// EmptyRoot is the sentinel storage/state root of an empty Merkle-Patricia
// trie, matching Ethereum's convention.
var EmptyRoot = common.Hash{0x56, 0xe8, 0x1f, 0x17, 0x1b, 0xcc, 0x55, 0xa6,
	0xff, 0x83, 0x45, 0xe6, 0x92, 0xc0, 0xf8, 0x6e, 0x5b, 0x48, 0xe0, 0x1b,
	0x99, 0x6c, 0xad, 0xc0, 0x01, 0x62, 0x2f, 0xb5, 0xe3, 0x63, 0xb4, 0x21}

// Account is the in-trie account record: nonce, balance, and (for
// EVM-capable accounts) a code hash and a storage sub-trie root.
//
// Invariants: empty-code accounts carry EmptyCodeHash; balance changes flow
// only through the base-token module or an EVM transfer event; nonce is
// strictly monotonic.
type Account struct {
	Nonce       uint64
	Balance     *big.Int
	StorageRoot common.Hash
	CodeHash    common.Hash
}

// NewAccount returns a freshly created (lazily materialized) account with
// zero balance, zero nonce, and the empty-code/empty-root sentinels.
func NewAccount() *Account {
	return &Account{
		Balance:     new(big.Int),
		StorageRoot: EmptyRoot,
		CodeHash:    EmptyCodeHash,
	}
}

// rlpAccount is the RLP list [nonce, balance, storage_root, code_hash],
// matching Ethereum's account encoding exactly (spec §6).
type rlpAccount struct {
	Nonce       uint64
	Balance     *big.Int
	StorageRoot common.Hash
	CodeHash    common.Hash
}

// EncodeRLP serializes the account as the Ethereum-compatible 4-tuple.
func (a *Account) EncodeRLP() ([]byte, error) {
	balance := a.Balance
	if balance == nil {
		balance = new(big.Int)
	}
	return rlp.EncodeToBytes(&rlpAccount{
		Nonce:       a.Nonce,
		Balance:     balance,
		StorageRoot: a.StorageRoot,
		CodeHash:    a.CodeHash,
	})
}

// DecodeAccountRLP is the inverse of EncodeRLP.
func DecodeAccountRLP(data []byte) (*Account, error) {
	var raw rlpAccount
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, err
	}
	return &Account{
		Nonce:       raw.Nonce,
		Balance:     raw.Balance,
		StorageRoot: raw.StorageRoot,
		CodeHash:    raw.CodeHash,
	}, nil
}

// EncodeStorageSlot RLP-encodes a U256 storage value. A zero value should
// never reach this function: the remove-on-zero invariant means the caller
// removes the trie entry instead of writing a zero-valued slot.
func EncodeStorageSlot(value *big.Int) ([]byte, error) {
	return rlp.EncodeToBytes(value)
}

// DecodeStorageSlot is the inverse of EncodeStorageSlot. An absent trie
// entry represents the zero value and must be handled by the caller before
// calling this function.
func DecodeStorageSlot(data []byte) (*big.Int, error) {
	var value big.Int
	if err := rlp.DecodeBytes(data, &value); err != nil {
		return nil, err
	}
	return &value, nil
}
