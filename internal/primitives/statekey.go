// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package primitives

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Trie key tags, per the tagged trie key wire format: the actual trie
// navigation key is keccak256 of tag || payload.
const (
	tagStateKey byte = 0x00
	tagEvmAddr  byte = 0x01
)

// StateKey is an opaque MoveVM resource/module key, already BCS-encoded by
// the caller (the MoveVM boundary owns BCS; this package only tags it).
type StateKey []byte

// TaggedMoveKey returns 0x00 || bcs(state_key), the tagged byte-string whose
// keccak256 is the trie navigation key for a MoveVM entry.
func TaggedMoveKey(key StateKey) []byte {
	out := make([]byte, 0, 1+len(key))
	out = append(out, tagStateKey)
	out = append(out, key...)
	return out
}

// TaggedEvmKey returns 0x01 || address, the tagged byte-string for an
// EVM-visible account entry.
func TaggedEvmKey(addr common.Address) []byte {
	out := make([]byte, 0, 1+common.AddressLength)
	out = append(out, tagEvmAddr)
	out = append(out, addr[:]...)
	return out
}

// TrieKey hashes a tagged key into the actual trie navigation key, so that
// merkle proofs built over it verify with standard Ethereum tooling.
func TrieKey(tagged []byte) common.Hash {
	return crypto.Keccak256Hash(tagged)
}

// StorageSlotKey is keccak256(slot), the navigation key inside a per-account
// EVM storage trie.
func StorageSlotKey(slot common.Hash) common.Hash {
	return crypto.Keccak256Hash(slot[:])
}
