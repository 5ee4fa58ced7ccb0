// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package query

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/opmove/internal/blockchain"
	"github.com/luxfi/opmove/internal/evmext"
	"github.com/luxfi/opmove/internal/execution"
	"github.com/luxfi/opmove/internal/movevm"
	"github.com/luxfi/opmove/internal/primitives"
	"github.com/luxfi/opmove/internal/trie"
)

func TestHeightTagResolve(t *testing.T) {
	require.Equal(t, uint64(5), ByNumber(5).Resolve(10))
	require.Equal(t, uint64(0), Earliest.Resolve(10))
	require.Equal(t, uint64(10), Latest.Resolve(10))
	require.Equal(t, uint64(10), Safe.Resolve(10))
	require.Equal(t, uint64(10), Finalized.Resolve(10))
}

func rawLegacyTx(t *testing.T, nonce uint64) []byte {
	t.Helper()
	tx := types.NewTx(&types.LegacyTx{Nonce: nonce, GasPrice: big.NewInt(1), Gas: 21_000, To: &common.Address{9}, Value: big.NewInt(1)})
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func newTestSnapshot(t *testing.T) (*Snapshot, *movevm.FakeVM) {
	t.Helper()
	fake := movevm.NewFakeVM()
	kv := memorydb.New()
	store, err := trie.Open(kv)
	require.NoError(t, err)
	repo := blockchain.NewRepository(kv)

	txHash := common.HexToHash("0x01")
	rawTx := rawLegacyTx(t, 0)

	builder := blockchain.NewBuilder(blockchain.HeaderInput{Number: 1, Timestamp: 1, GasLimit: 30_000_000, BaseFee: big.NewInt(0)})
	require.NoError(t, builder.Append(
		&execution.NormalizedTransaction{Hash: txHash, RawBytes: rawTx},
		&execution.TransactionExecutionOutcome{Status: true, GasUsed: 21_000},
		big.NewInt(0),
	))
	block, receipts := builder.Finish(store.Root(), [8]byte{7})

	batch := kv.NewBatch()
	require.NoError(t, repo.Add(batch, block, receipts))
	require.NoError(t, batch.Write())

	return &Snapshot{Height: 1, Store: store, KV: kv, Repo: repo, Accounts: fake, BaseToken: fake}, fake
}

func TestReaderBalanceAndNonce(t *testing.T) {
	snap, fake := newTestSnapshot(t)
	view := NewView(snap)
	reader := NewReader(view)

	addr := common.HexToAddress("0xabc")
	moveAddr := primitives.ToMoveAddress(addr)
	require.NoError(t, fake.CreateIfAbsent(context.Background(), moveAddr))
	require.NoError(t, fake.Mint(context.Background(), moveAddr, big.NewInt(500)))

	bal, err := reader.Balance(context.Background(), addr, Latest)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), bal)

	nonce, err := reader.Nonce(context.Background(), addr, Latest)
	require.NoError(t, err)
	require.Equal(t, uint64(0), nonce)
}

func TestReaderBlockAndTransactionLookups(t *testing.T) {
	snap, _ := newTestSnapshot(t)
	view := NewView(snap)
	reader := NewReader(view)

	block, _, err := reader.BlockByHeight(ByNumber(1))
	require.NoError(t, err)
	require.Equal(t, uint64(1), block.Number())

	byHash, _, err := reader.BlockByHash(block.Hash())
	require.NoError(t, err)
	require.Equal(t, block.Hash(), byHash.Hash())

	byPayload, _, err := reader.PayloadByID([8]byte{7})
	require.NoError(t, err)
	require.Equal(t, block.Hash(), byPayload.Hash())

	txHash := block.Transactions[0]
	tx, owningBlock, err := reader.TransactionByHash(txHash)
	require.NoError(t, err)
	require.Equal(t, uint64(0), tx.Nonce())
	require.Equal(t, block.Hash(), owningBlock.Hash())

	receipt, err := reader.ReceiptByTransactionHash(txHash)
	require.NoError(t, err)
	require.Equal(t, uint64(21_000), receipt.Receipt.GasUsed)
	require.Equal(t, block.Hash(), receipt.BlockHash)
}

func deployRuntime(t *testing.T, store *trie.Store, kv trie.KV, caller common.Address) common.Address {
	t.Helper()
	resolver := evmext.NewStoreResolver(store, kv)
	runtime := []byte{0x60, 0x07, 0x60, 0x01, 0x55, 0x00} // PUSH1 7 PUSH1 1 SSTORE STOP
	initCode := []byte{
		0x60, byte(len(runtime)),
		0x60, 0x0c,
		0x60, 0x00,
		0x39,
		0x60, byte(len(runtime)),
		0x60, 0x00,
		0xf3,
	}
	initCode = append(initCode, runtime...)

	hdr := evmext.HeaderForExecution{Number: 1, Timestamp: 1, GasLimit: 30_000_000}
	result := evmext.Create(resolver, hdr, 0, caller, new(uint256.Int), initCode, 500_000)
	require.False(t, result.Reverted)
	require.NoError(t, evmext.Apply(store, resolver, result.Diff))

	batch := kv.NewBatch()
	_, _, err := store.Commit(batch)
	require.NoError(t, err)
	require.NoError(t, batch.Write())
	return result.ContractAddress
}

func TestReaderCallAndEstimateGas(t *testing.T) {
	kv := memorydb.New()
	store, err := trie.Open(kv)
	require.NoError(t, err)
	repo := blockchain.NewRepository(kv)

	caller := common.HexToAddress("0xcaller")
	contract := deployRuntime(t, store, kv, caller)

	fake := movevm.NewFakeVM()
	snap := &Snapshot{Height: store.Height(), Store: store, KV: kv, Repo: repo, Accounts: fake, BaseToken: fake}
	reader := NewReader(NewView(snap))

	call := CallRequest{From: caller, To: contract}
	out, reverted, err := reader.Call(call, Latest)
	require.NoError(t, err)
	require.False(t, reverted)
	require.Empty(t, out)

	gas, err := reader.EstimateGas(call, Latest)
	require.NoError(t, err)
	require.GreaterOrEqual(t, gas, uint64(baseIntrinsicGas))
}

func TestReaderProofRestrictedToEVMAddresses(t *testing.T) {
	kv := memorydb.New()
	store, err := trie.Open(kv)
	require.NoError(t, err)
	repo := blockchain.NewRepository(kv)

	caller := common.HexToAddress("0xcaller")
	contract := deployRuntime(t, store, kv, caller)

	fake := movevm.NewFakeVM()
	snap := &Snapshot{Height: store.Height(), Store: store, KV: kv, Repo: repo, Accounts: fake, BaseToken: fake}
	reader := NewReader(NewView(snap))

	proof, err := reader.Proof(contract, []common.Hash{common.BigToHash(big.NewInt(1))}, Latest)
	require.NoError(t, err)
	require.NotEmpty(t, proof.AccountProof)
	require.Len(t, proof.StorageProof, 1)
	require.Equal(t, big.NewInt(7), proof.StorageProof[0].Value)
}
