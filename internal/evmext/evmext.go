// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package evmext embeds go-ethereum's core/vm interpreter as a native
// extension of the MoveVM session, mirroring the role
// original_source/evm-ext/src/native_evm_context.rs plays around revm: a
// Move-resolver-backed StateDB lets Solidity-style contracts read and write
// the same unified account trie that Move resources live in, and the state
// touched during a call is captured as a diff for the session to merge back
// into its own change set when the transaction finalizes.
package evmext

import "github.com/ethereum/go-ethereum/common"

// HeaderForExecution is the subset of block-header fields visible to a
// contract mid-block, before the block itself is sealed (grounded on
// original_source/evm-ext/src/native_evm_context.rs HeaderForExecution).
type HeaderForExecution struct {
	Number     uint64
	Timestamp  uint64
	PrevRandao common.Hash
	BaseFee    uint64
	GasLimit   uint64
	Coinbase   common.Address
}
