// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package primitives bridges the 20-byte Ethereum address space and the
// 32-byte Move address space, and carries the few big-integer and byte
// helpers the rest of the core needs at that boundary.
package primitives

import (
	"github.com/ethereum/go-ethereum/common"
)

// MoveAddress is a 32-byte account identifier in the Move address space.
type MoveAddress [32]byte

// ToMoveAddress right-aligns a 20-byte Ethereum address into a 32-byte Move
// address by prepending 12 zero bytes.
func ToMoveAddress(addr common.Address) MoveAddress {
	var out MoveAddress
	copy(out[12:], addr[:])
	return out
}

// ToEthAddress takes the low 20 bytes of a Move address. Callers that must
// reject non-representable addresses should use TryToEthAddress instead.
func ToEthAddress(addr MoveAddress) common.Address {
	var out common.Address
	copy(out[:], addr[12:])
	return out
}

// TryToEthAddress returns (address, true) only when the high 12 bytes of the
// Move address are all zero, i.e. the address round-trips losslessly. Move
// addresses with non-zero high bytes must never leak to the Ethereum
// surface, so RPC-facing code must use this instead of ToEthAddress.
func TryToEthAddress(addr MoveAddress) (common.Address, bool) {
	for _, b := range addr[:12] {
		if b != 0 {
			return common.Address{}, false
		}
	}
	return ToEthAddress(addr), true
}

// Bytes32 returns the Move address as a plain byte slice, for BCS encoding.
func (a MoveAddress) Bytes32() []byte {
	out := make([]byte, 32)
	copy(out, a[:])
	return out
}
