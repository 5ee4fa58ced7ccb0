// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package blockchain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/stretchr/testify/require"
)

func TestAssembleHeaderDerivesRootsAndBloom(t *testing.T) {
	log := &types.Log{Address: common.HexToAddress("0xabc"), Topics: []common.Hash{common.HexToHash("0x01")}}
	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, Logs: []*types.Log{log}}
	receipt.Bloom = receiptBloom(receipt.Logs)

	in := HeaderInput{
		ParentHash: common.HexToHash("0xparent"),
		Number:     1,
		Timestamp:  100,
		GasLimit:   30_000_000,
		BaseFee:    big.NewInt(1),
		Coinbase:   common.HexToAddress("0xcoinbase"),
		StateRoot:  common.HexToHash("0xroot"),
	}
	header := AssembleHeader(in, types.Transactions{}, types.Receipts{receipt}, 21_000)

	require.Equal(t, uint64(1), header.Number.Uint64())
	require.Equal(t, in.StateRoot, header.Root)
	require.True(t, header.Bloom.Test(log.Address.Bytes()))
	require.NotEqual(t, types.Bloom{}, header.Bloom)
}

func TestRepositoryAddAndResolve(t *testing.T) {
	kv := memorydb.New()
	repo := NewRepository(kv)

	txHash := common.HexToHash("0x01")
	header := AssembleHeader(HeaderInput{
		Number:    1,
		Timestamp: 1,
		GasLimit:  30_000_000,
		BaseFee:   big.NewInt(1),
		StateRoot: common.HexToHash("0xroot"),
	}, types.Transactions{}, types.Receipts{}, 0)

	block := &Block{Header: header, Transactions: []common.Hash{txHash}, Value: big.NewInt(7)}
	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash, GasUsed: 21_000}

	batch := kv.NewBatch()
	require.NoError(t, repo.Add(batch, block, types.Receipts{receipt}))
	require.NoError(t, batch.Write())

	byHash, receipts, err := repo.ByHash(block.Hash())
	require.NoError(t, err)
	require.Equal(t, uint64(1), byHash.Number())
	require.Len(t, receipts, 1)
	require.Equal(t, txHash, receipts[0].TxHash)

	byHeight, _, err := repo.ByHeight(1)
	require.NoError(t, err)
	require.Equal(t, block.Hash(), byHeight.Hash())

	latest, _, err := repo.Latest()
	require.NoError(t, err)
	require.Equal(t, block.Hash(), latest.Hash())

	byTx, _, err := repo.BlockByTxHash(txHash)
	require.NoError(t, err)
	require.Equal(t, block.Hash(), byTx.Hash())
	require.Equal(t, big.NewInt(7), byTx.Value)
}

func TestRepositoryLatestEmpty(t *testing.T) {
	repo := NewRepository(memorydb.New())
	block, receipts, err := repo.Latest()
	require.NoError(t, err)
	require.Nil(t, block)
	require.Nil(t, receipts)
}
