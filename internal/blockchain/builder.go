// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package blockchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/luxfi/opmove/internal/execution"
)

// Builder accumulates one block's worth of executed transactions, then
// assembles the header and receipt list once the payload-building job is
// complete (spec.md §4.6 "Block building" drives this from the command
// actor, C9, one transaction at a time via Append, then Finish once every
// forced-inclusion and drained mempool transaction has been appended; the
// header's gas limit does not stop appending).
type Builder struct {
	input HeaderInput

	txs        types.Transactions
	txHashes   []common.Hash
	rawTxs     [][]byte
	receipts   types.Receipts
	gasUsed    uint64
	logsEmitted uint64
	value      *big.Int
}

// NewBuilder starts a block on top of the given header input. StateRoot on
// in is expected to be filled in by Finish once every transaction has been
// applied and the world-state trie committed, since the root is only known
// after execution.
func NewBuilder(in HeaderInput) *Builder {
	return &Builder{input: in, value: new(big.Int)}
}

// Append records one executed transaction's outcome into the block under
// construction. tx.RawBytes is decoded back into a *types.Transaction
// purely to compute the block's transactions root the same way
// types.DeriveSha does for every other go-ethereum-shaped chain; nothing
// here reinterprets the Move-specific payload it carries.
func (b *Builder) Append(tx *execution.NormalizedTransaction, outcome *execution.TransactionExecutionOutcome, priorityFeePerGas *big.Int) error {
	var decoded types.Transaction
	if err := decoded.UnmarshalBinary(tx.RawBytes); err != nil {
		return err
	}

	b.gasUsed += outcome.GasUsed
	receipt := BuildReceipt(tx.Hash, outcome, decoded.Type(), b.gasUsed, b.logsEmitted)
	receipt.BlockNumber = new(big.Int).SetUint64(b.input.Number)
	receipt.TransactionIndex = uint(len(b.txHashes))
	b.logsEmitted += uint64(len(outcome.Logs))

	b.txs = append(b.txs, &decoded)
	b.txHashes = append(b.txHashes, tx.Hash)
	b.rawTxs = append(b.rawTxs, tx.RawBytes)
	b.receipts = append(b.receipts, receipt)

	if priorityFeePerGas != nil {
		tip := new(big.Int).Mul(priorityFeePerGas, new(big.Int).SetUint64(outcome.GasUsed))
		b.value.Add(b.value, tip)
	}
	return nil
}

// depositTxType is the receipt/transaction type byte a deposited
// transaction renders under, matching the op-stack DepositTxType marker
// (0x7E) even though this core encodes the pseudo-transaction itself for
// tx-root hashing purposes rather than decoding a signed envelope —
// deposits carry no signature for UnmarshalBinary to recover.
const depositTxType = 0x7E

// AppendDeposited records one executed deposited transaction's outcome,
// mirroring Append but without the RawBytes/UnmarshalBinary round-trip a
// signed envelope needs: a deposit is authenticated by SourceHash, not a
// signature, so its pseudo-transaction for DeriveSha purposes is built
// directly as an unsigned legacy-shaped envelope carrying its payload.
func (b *Builder) AppendDeposited(txHash common.Hash, rawBytes []byte, decoded *types.Transaction, outcome *execution.TransactionExecutionOutcome) error {
	b.gasUsed += outcome.GasUsed
	receipt := BuildReceipt(txHash, outcome, depositTxType, b.gasUsed, b.logsEmitted)
	receipt.BlockNumber = new(big.Int).SetUint64(b.input.Number)
	receipt.TransactionIndex = uint(len(b.txHashes))
	b.logsEmitted += uint64(len(outcome.Logs))

	b.txs = append(b.txs, decoded)
	b.txHashes = append(b.txHashes, txHash)
	b.rawTxs = append(b.rawTxs, rawBytes)
	b.receipts = append(b.receipts, receipt)
	return nil
}

// Finish assembles the final header and receipt list now that stateRoot
// (the world-state trie's post-block root) and payloadID are known, ready
// to be persisted by Repository.Add.
func (b *Builder) Finish(stateRoot common.Hash, payloadID engine.PayloadID) (*Block, types.Receipts) {
	b.input.StateRoot = stateRoot
	header := AssembleHeader(b.input, b.txs, b.receipts, b.gasUsed)
	block := &Block{
		Header:          header,
		Transactions:    b.txHashes,
		RawTransactions: b.rawTxs,
		Value:           b.value,
		PayloadID:       payloadID,
	}
	return block, b.receipts
}

// GasUsed reports the cumulative gas consumed by every transaction appended
// so far.
func (b *Builder) GasUsed() uint64 { return b.gasUsed }

// Len reports how many transactions have been appended so far.
func (b *Builder) Len() int { return len(b.txHashes) }
