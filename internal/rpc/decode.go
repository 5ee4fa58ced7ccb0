// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/luxfi/opmove/internal/errs"
	"github.com/luxfi/opmove/internal/ethapi"
	"github.com/luxfi/opmove/internal/execution"
	"github.com/luxfi/opmove/internal/mempool"
	"github.com/luxfi/opmove/internal/primitives"
)

// decodeRawTransaction turns the hex-wire envelope eth_sendRawTransaction
// receives into a *execution.NormalizedTransaction the mempool and
// execution.Pipeline both understand, mirroring the field-by-field mapping
// internal/execution/pipeline_test.go exercises by hand for each of the
// three accepted envelope kinds (spec.md §4.5, §6). Blob (4844) and
// set-code (7702) envelopes, and any future type this node does not yet
// know, are rejected outright rather than decoded.
func decodeRawTransaction(raw []byte) (*execution.NormalizedTransaction, mempool.EnvelopeKind, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, 0, errs.NewInvalidPayload(err)
	}

	var kind mempool.EnvelopeKind
	chainIDPresent := true
	var maxFee, maxTip *big.Int

	switch tx.Type() {
	case types.LegacyTxType:
		kind = mempool.EnvelopeLegacy
		chainIDPresent = tx.Protected()
		maxFee = tx.GasPrice()
		maxTip = tx.GasPrice()
	case types.AccessListTxType:
		kind = mempool.EnvelopeEIP2930
		maxFee = tx.GasPrice()
		maxTip = tx.GasPrice()
	case types.DynamicFeeTxType:
		kind = mempool.EnvelopeEIP1559
		maxFee = tx.GasFeeCap()
		maxTip = tx.GasTipCap()
	default:
		return nil, 0, errs.NewUnsupportedTransactionType(fmt.Sprintf("transaction type 0x%x is not accepted", tx.Type()))
	}

	signer := types.LatestSignerForChainID(tx.ChainId())
	from, err := types.Sender(signer, &tx)
	if err != nil {
		return nil, 0, errs.NewInvalidSignature()
	}

	var to *primitives.MoveAddress
	if t := tx.To(); t != nil {
		addr := primitives.ToMoveAddress(*t)
		to = &addr
	}

	payload, err := execution.DecodePayload(tx.Data())
	if err != nil {
		return nil, 0, errs.NewInvalidPayload(err)
	}

	norm := &execution.NormalizedTransaction{
		Hash:                 tx.Hash(),
		RawBytes:             raw,
		ChainID:              tx.ChainId().Uint64(),
		ChainIDPresent:       chainIDPresent,
		Sender:               primitives.ToMoveAddress(from),
		Nonce:                tx.Nonce(),
		GasLimit:             tx.Gas(),
		MaxFeePerGas:         saturateU64Max(maxFee),
		MaxPriorityFeePerGas: saturateU64Max(maxTip),
		To:                   to,
		Value:                tx.Value(),
		Payload:              payload,
	}
	return norm, kind, nil
}

// saturateU64Max implements spec.md §9's resolved Open Question: a
// max_fee_per_gas (or priority fee) that overflows a u64 saturates to
// u64::MAX instead of being rejected.
func saturateU64Max(fee *big.Int) *big.Int {
	return ethapi.BigMin(fee, u64MaxBig)
}

var u64MaxBig = new(big.Int).SetUint64(^uint64(0))

