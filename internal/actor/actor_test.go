// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/opmove/internal/blockchain"
	"github.com/luxfi/opmove/internal/evmext"
	"github.com/luxfi/opmove/internal/execution"
	"github.com/luxfi/opmove/internal/feemodel"
	"github.com/luxfi/opmove/internal/mempool"
	"github.com/luxfi/opmove/internal/movevm"
	"github.com/luxfi/opmove/internal/primitives"
	"github.com/luxfi/opmove/internal/query"
	"github.com/luxfi/opmove/internal/trie"
)

func newTestActor(t *testing.T) (*Actor, *API, *movevm.FakeVM) {
	t.Helper()
	fake := movevm.NewFakeVM()
	kv := memorydb.New()
	store, err := trie.Open(kv)
	require.NoError(t, err)
	resolver := evmext.NewStoreResolver(store, kv)
	repo := blockchain.NewRepository(kv)
	pool := mempool.New(mempool.Config{MaxGlobal: 1000, MaxPerAccount: 100})
	view := query.NewView(&query.Snapshot{Height: 0, Store: store, KV: kv, Repo: repo, Accounts: fake, BaseToken: fake})

	cfg := Config{
		ChainID:         1337,
		GasMultiplier:   1,
		L1:              feemodel.L1Config{BaseFee: uint256.NewInt(0), BlobBaseFee: uint256.NewInt(0)},
		FeeParams:       feemodel.DefaultParams(),
		InitialBaseFee:  big.NewInt(1_000_000_000),
		DefaultGasLimit: 30_000_000,
	}
	a := New(fake, fake, fake, store, kv, resolver, repo, pool, view, cfg, 8)

	genesisHeader := blockchain.AssembleHeader(blockchain.HeaderInput{Number: 0, GasLimit: cfg.DefaultGasLimit, BaseFee: cfg.InitialBaseFee, StateRoot: store.Root()}, nil, nil, 0)
	genesisBlock := &blockchain.Block{Header: genesisHeader, Value: new(big.Int)}
	require.NoError(t, a.genesisUpdate(GenesisUpdate{Block: genesisBlock}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx)

	return a, NewAPI(a, query.NewReader(view)), fake
}

func rawLegacyTx(t *testing.T, nonce uint64, to common.Address, value *big.Int) []byte {
	t.Helper()
	tx := types.NewTx(&types.LegacyTx{Nonce: nonce, GasPrice: big.NewInt(2_000_000_000), Gas: 21_000, To: &to, Value: value})
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestForkchoiceUpdatedBuildsAndGetPayloadRetrieves(t *testing.T) {
	_, api, fake := newTestActor(t)
	ctx := context.Background()

	recipient := primitives.MoveAddress{9}
	mint := big.NewInt(1_000_000_000_000)

	attrs := &PayloadAttributes{
		Timestamp:    1,
		FeeRecipient: common.HexToAddress("0xf00d"),
		ForcedInclusionTxs: []*execution.DepositedTx{{
			SourceHash: common.HexToHash("0xaaaa"),
			From:       primitives.MoveAddress{1},
			To:         &recipient,
			Value:      mint,
			Mint:       mint,
			Gas:        21_000,
		}},
	}

	resp, err := api.ForkchoiceUpdated(ctx, engine.ForkchoiceStateV1{}, attrs)
	require.NoError(t, err)
	require.NotNil(t, resp.PayloadID)
	require.Equal(t, "VALID", string(resp.PayloadStatus.Status))

	result, err := api.GetPayload(ctx, *resp.PayloadID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), result.ExecutionPayload.Number)
	require.Len(t, result.ExecutionPayload.Transactions, 1)

	balance, err := fake.Balance(ctx, recipient)
	require.NoError(t, err)
	require.Equal(t, mint, balance)
}

func TestForkchoiceUpdatedIsIdempotent(t *testing.T) {
	_, api, _ := newTestActor(t)
	ctx := context.Background()

	attrs := &PayloadAttributes{Timestamp: 1, FeeRecipient: common.HexToAddress("0xf00d")}

	first, err := api.ForkchoiceUpdated(ctx, engine.ForkchoiceStateV1{}, attrs)
	require.NoError(t, err)
	second, err := api.ForkchoiceUpdated(ctx, engine.ForkchoiceStateV1{}, attrs)
	require.NoError(t, err)
	require.Equal(t, *first.PayloadID, *second.PayloadID)

	_, err = api.GetPayload(ctx, *first.PayloadID)
	require.NoError(t, err)
}

func TestGetPayloadUnknownID(t *testing.T) {
	_, api, _ := newTestActor(t)
	_, err := api.GetPayload(context.Background(), [8]byte{0xff})
	require.ErrorIs(t, err, ErrUnknownPayload)
}

func TestForkchoiceUpdatedWithoutAttributesRecordsHead(t *testing.T) {
	a, api, _ := newTestActor(t)
	ctx := context.Background()

	genesis, _, err := a.repo.Latest()
	require.NoError(t, err)

	state := engine.ForkchoiceStateV1{}
	state.HeadBlockHash = genesis.Hash()
	state.SafeBlockHash = genesis.Hash()
	state.FinalizedBlockHash = genesis.Hash()

	resp, err := api.ForkchoiceUpdated(ctx, state, nil)
	require.NoError(t, err)
	require.Nil(t, resp.PayloadID)
	require.Equal(t, "VALID", string(resp.PayloadStatus.Status))
}

func TestMempoolTransactionIncludedOnNextBuild(t *testing.T) {
	a, api, fake := newTestActor(t)
	ctx := context.Background()

	sender := primitives.MoveAddress{2}
	require.NoError(t, fake.CreateIfAbsent(ctx, sender))
	require.NoError(t, fake.Mint(ctx, sender, big.NewInt(1_000_000_000_000)))

	recipient := common.HexToAddress("0xcafe")
	raw := rawLegacyTx(t, 0, recipient, big.NewInt(50))
	tx := &execution.NormalizedTransaction{
		Hash:                 common.HexToHash("0xbbbb"),
		Sender:               sender,
		Nonce:                0,
		GasLimit:             21_000,
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(0),
		To:                   &primitives.MoveAddress{9},
		Value:                big.NewInt(50),
		RawBytes:             raw,
	}
	require.NoError(t, a.Send(ctx, AddTransaction{Kind: mempool.EnvelopeLegacy, Tx: tx}))

	attrs := &PayloadAttributes{Timestamp: 1, FeeRecipient: common.HexToAddress("0xf00d")}
	resp, err := api.ForkchoiceUpdated(ctx, engine.ForkchoiceStateV1{}, attrs)
	require.NoError(t, err)

	result, err := api.GetPayload(ctx, *resp.PayloadID)
	require.NoError(t, err)
	require.Len(t, result.ExecutionPayload.Transactions, 1)
}

func TestDerivePayloadIDDeterministic(t *testing.T) {
	attrs := PayloadAttributes{Timestamp: 42, FeeRecipient: common.HexToAddress("0xabc")}
	parent := common.HexToHash("0x01")

	id1, err := DerivePayloadID(parent, attrs)
	require.NoError(t, err)
	id2, err := DerivePayloadID(parent, attrs)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Equal(t, byte(3), id1[0])

	attrs.Timestamp = 43
	id3, err := DerivePayloadID(parent, attrs)
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

