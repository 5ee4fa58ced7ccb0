// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package execution is the transaction pipeline (spec.md §4.4): classify,
// verify, execute, refund, emit receipt, for each of the five payload
// kinds, driving the movevm.Session/Accounts/BaseToken capability
// interfaces and the internal/evmext native extension rather than a real
// MoveVM (out of scope, spec.md §1).
package execution

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/luxfi/opmove/internal/movevm"
	"github.com/luxfi/opmove/internal/primitives"
)

// SessionID correlates one dispatched transaction's logs back to the
// transaction that produced them, mirroring moved/src/types/session_id.rs;
// the MoveVM session itself lives behind movevm.Session.
type SessionID [32]byte

// Kind is the payload-kind discriminant spec.md §4.4 derives from the
// call data's leading type byte (DecodePayload).
type Kind byte

const (
	// KindEOATransfer is a value-bearing transaction with empty call data.
	KindEOATransfer Kind = iota
	// KindEntryFunction calls a deployed Move module's entry function.
	KindEntryFunction
	// KindScript runs a transaction script.
	KindScript
	// KindPublishModule publishes new Move module bytecode.
	KindPublishModule
	// KindL2Contract routes EVM bytecode interaction through the native.
	KindL2Contract
)

// NormalizedTransaction is the canonical-path envelope after signature
// recovery: a discriminated union over {Legacy, EIP-2930, EIP-1559} per
// spec.md §3, reduced to the fields the pipeline needs. EIP-4844 and
// EIP-7702 envelopes are rejected before reaching this type.
type NormalizedTransaction struct {
	Hash    common.Hash
	RawBytes []byte // the signed envelope: sizes intrinsic gas and the L1 data fee, and is stored as the block's raw transaction

	ChainID        uint64
	ChainIDPresent bool // Legacy envelopes may omit chain-id entirely

	Sender primitives.MoveAddress
	Nonce  uint64

	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	// To is nil for module-publish/script payloads whose target is
	// implied by the payload body, and for contract creation. Entry
	// functions and L2 contract calls carry it.
	To    *primitives.MoveAddress
	Value *big.Int

	Payload Payload
}

// DepositedTx is an L1-originated transaction authenticated by SourceHash
// rather than by signature (spec.md §3 "Transaction Envelope", §4.4
// "Deposited path").
type DepositedTx struct {
	SourceHash common.Hash
	From       primitives.MoveAddress
	To         *primitives.MoveAddress
	Value      *big.Int
	Mint       *big.Int
	Data       []byte

	// Gas seeds the EVM call's gas limit. Deposited transactions charge no
	// L1/L2 fee, so this is the only gas accounting they carry.
	Gas uint64
}

// PseudoTransaction renders tx as an unsigned legacy-shaped *types.Transaction
// plus its binary encoding, so the block builder can fold a deposited
// transaction into the same types.DeriveSha transactions-root computation
// and RawTransactions storage every other transaction uses, without needing
// a real op-stack deposit tx-type in the embedded go-ethereum dependency
// (which has none). tx.SourceHash, not the pseudo-transaction's own hash,
// remains the transaction's identity throughout the rest of the pipeline.
func (tx *DepositedTx) PseudoTransaction() (*types.Transaction, []byte, error) {
	var to *common.Address
	if tx.To != nil {
		addr := primitives.ToEthAddress(*tx.To)
		to = &addr
	}
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	t := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		GasPrice: new(big.Int),
		Gas:      tx.Gas,
		To:       to,
		Value:    value,
		Data:     tx.Data,
		V:        new(big.Int),
		R:        new(big.Int),
		S:        new(big.Int),
	})
	raw, err := t.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return t, raw, nil
}

// Deployment is the `(address, module-id)` deployment artifact recorded in
// the receipt for a successful publish-module payload (spec.md §4.4
// "Publish module").
type Deployment struct {
	Address primitives.MoveAddress
	Module  movevm.ModuleID
}

// TransactionExecutionOutcome is the pipeline's terminal result for one
// transaction, merged into the block's receipts and the session's pending
// trie mutations (spec.md §4.4 "Finalize"). A UserError is attached here,
// not returned, when execution fails in a way attributable to the
// transaction: it still consumes gas and produces a receipt with
// status=false.
type TransactionExecutionOutcome struct {
	Status             bool
	GasUsed            uint64
	EffectiveGasPrice  *big.Int
	Logs               []*types.Log
	Deployment         *Deployment
	Err                error // a *errs.UserError when Status is false
	L2ContractReturn   []byte

	// Changes is the MoveVM session's own resource/account write set,
	// merged into the trie store alongside any EVM-native diff (spec.md
	// §4.4 "Finalize").
	Changes []movevm.Change
}
