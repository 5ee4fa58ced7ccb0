// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package blockchain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/opmove/internal/execution"
)

func rawLegacyTx(t *testing.T, nonce uint64) []byte {
	t.Helper()
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: big.NewInt(1),
		Gas:      21_000,
		To:       &common.Address{1},
		Value:    big.NewInt(1),
	})
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestBuilderAppendAndFinish(t *testing.T) {
	builder := NewBuilder(HeaderInput{
		Number:    1,
		Timestamp: 1,
		GasLimit:  30_000_000,
		BaseFee:   big.NewInt(1),
	})

	tx := &execution.NormalizedTransaction{Hash: common.HexToHash("0x01"), RawBytes: rawLegacyTx(t, 0)}
	outcome := &execution.TransactionExecutionOutcome{Status: true, GasUsed: 21_000}

	require.NoError(t, builder.Append(tx, outcome, big.NewInt(1)))
	require.Equal(t, uint64(21_000), builder.GasUsed())
	require.Equal(t, 1, builder.Len())

	block, receipts := builder.Finish(common.HexToHash("0xroot"), [8]byte{1})
	require.Len(t, receipts, 1)
	require.Equal(t, uint64(21_000), receipts[0].GasUsed)
	require.Equal(t, uint64(1), block.Number())
	require.Equal(t, big.NewInt(21_000), block.Value)
	require.Equal(t, []common.Hash{tx.Hash}, block.Transactions)
}
