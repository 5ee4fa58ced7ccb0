// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package execution

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/opmove/internal/evmext"
	"github.com/luxfi/opmove/internal/feemodel"
	"github.com/luxfi/opmove/internal/movevm"
	"github.com/luxfi/opmove/internal/primitives"
	"github.com/luxfi/opmove/internal/trie"
)

func newTestPipeline(t *testing.T) (*Pipeline, *movevm.FakeVM) {
	t.Helper()
	fake := movevm.NewFakeVM()
	kv := memorydb.New()
	store, err := trie.Open(kv)
	require.NoError(t, err)
	resolver := evmext.NewStoreResolver(store, kv)

	cfg := Config{
		ChainID:       1337,
		GasMultiplier: 1,
		L1:            feemodel.L1Config{BaseFee: uint256.NewInt(0), BlobBaseFee: uint256.NewInt(0)},
		BaseFee:       big.NewInt(1),
	}
	hdr := evmext.HeaderForExecution{Number: 1, Timestamp: 1, GasLimit: 30_000_000, BaseFee: 1}
	return New(fake, fake, fake, store, resolver, hdr, cfg), fake
}

func fundedTx(sender primitives.MoveAddress, nonce uint64, payload Payload) *NormalizedTransaction {
	return &NormalizedTransaction{
		Hash:                 common.HexToHash("0x01"),
		ChainID:              1337,
		ChainIDPresent:       true,
		Sender:               sender,
		Nonce:                nonce,
		GasLimit:             200_000,
		MaxFeePerGas:         big.NewInt(10),
		MaxPriorityFeePerGas: big.NewInt(1),
		Payload:              payload,
	}
}

func TestExecuteCanonicalEOATransfer(t *testing.T) {
	p, fake := newTestPipeline(t)
	sender := primitives.MoveAddress{1}
	recipient := primitives.MoveAddress{2}

	require.NoError(t, fake.CreateIfAbsent(context.Background(), sender))
	require.NoError(t, fake.Mint(context.Background(), sender, big.NewInt(1_000_000)))

	tx := fundedTx(sender, 0, Payload{Kind: KindEOATransfer})
	tx.To = &recipient
	tx.Value = big.NewInt(100)

	outcome, err := p.ExecuteCanonical(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, outcome.Status)
	require.Nil(t, outcome.Err)

	nonce, err := fake.SequenceNumber(context.Background(), sender)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)
}

func TestExecuteCanonicalRejectsWrongChainID(t *testing.T) {
	p, fake := newTestPipeline(t)
	sender := primitives.MoveAddress{1}
	require.NoError(t, fake.CreateIfAbsent(context.Background(), sender))
	require.NoError(t, fake.Mint(context.Background(), sender, big.NewInt(1_000_000)))

	tx := fundedTx(sender, 0, Payload{Kind: KindEOATransfer})
	tx.ChainID = 9999

	outcome, err := p.ExecuteCanonical(context.Background(), tx)
	require.NoError(t, err)
	require.False(t, outcome.Status)
	require.NotNil(t, outcome.Err)
}

func TestExecuteCanonicalRejectsBadNonce(t *testing.T) {
	p, fake := newTestPipeline(t)
	sender := primitives.MoveAddress{1}
	require.NoError(t, fake.CreateIfAbsent(context.Background(), sender))
	require.NoError(t, fake.Mint(context.Background(), sender, big.NewInt(1_000_000)))

	tx := fundedTx(sender, 5, Payload{Kind: KindEOATransfer})

	outcome, err := p.ExecuteCanonical(context.Background(), tx)
	require.NoError(t, err)
	require.False(t, outcome.Status)
	require.NotNil(t, outcome.Err)
}

func TestExecuteCanonicalPublishModule(t *testing.T) {
	p, fake := newTestPipeline(t)
	sender := primitives.MoveAddress{3}
	require.NoError(t, fake.CreateIfAbsent(context.Background(), sender))
	require.NoError(t, fake.Mint(context.Background(), sender, big.NewInt(1_000_000)))

	tx := fundedTx(sender, 0, Payload{Kind: KindPublishModule, Code: []byte{1, 2, 3}})

	outcome, err := p.ExecuteCanonical(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, outcome.Status)
	require.NotNil(t, outcome.Deployment)
	require.Equal(t, sender, outcome.Deployment.Address)
}

// deployRuntime inits a contract whose runtime body writes 7 into storage
// slot 1 and stops, via the standard CODECOPY-then-RETURN init pattern, and
// merges it into store/resolver directly (bypassing the Move dispatch path,
// since this is only fixture setup for TestExecuteCanonicalL2ContractCall).
func deployRuntime(t *testing.T, store *trie.Store, resolver *evmext.StoreResolver, caller common.Address) common.Address {
	t.Helper()
	runtime := []byte{0x60, 0x07, 0x60, 0x01, 0x55, 0x00} // PUSH1 7 PUSH1 1 SSTORE STOP
	initCode := []byte{
		0x60, byte(len(runtime)), // PUSH1 <len>
		0x60, 0x0c, // PUSH1 <offset of runtime in this init code>
		0x60, 0x00, // PUSH1 0
		0x39,                      // CODECOPY
		0x60, byte(len(runtime)), // PUSH1 <len>
		0x60, 0x00, // PUSH1 0
		0xf3, // RETURN
	}
	initCode = append(initCode, runtime...)

	hdr := evmext.HeaderForExecution{Number: 1, Timestamp: 1, GasLimit: 30_000_000, BaseFee: 1}
	result := evmext.Create(resolver, hdr, 1337, caller, new(uint256.Int), initCode, 500_000)
	require.False(t, result.Reverted)
	require.NoError(t, evmext.Apply(store, resolver, result.Diff))
	return result.ContractAddress
}

func TestExecuteCanonicalL2ContractCall(t *testing.T) {
	p, fake := newTestPipeline(t)
	senderEth := common.HexToAddress("0x00000000000000000000000000000000000abc")
	sender := primitives.ToMoveAddress(senderEth)
	require.NoError(t, fake.CreateIfAbsent(context.Background(), sender))
	require.NoError(t, fake.Mint(context.Background(), sender, big.NewInt(1_000_000)))

	contractAddr := deployRuntime(t, p.Store, p.Resolver, senderEth)
	contract := primitives.ToMoveAddress(contractAddr)

	tx := fundedTx(sender, 0, Payload{Kind: KindL2Contract, Contract: contract})

	outcome, err := p.ExecuteCanonical(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, outcome.Status)

	acc, getErr := p.Resolver.GetAccount(contractAddr)
	require.NoError(t, getErr)
	require.NotNil(t, acc)

	owner := primitives.TrieKey(primitives.TaggedEvmKey(contractAddr))
	val, slotErr := p.Resolver.GetStorageSlot(acc.StorageRoot, owner, common.BigToHash(big.NewInt(1)))
	require.NoError(t, slotErr)
	require.Equal(t, big.NewInt(7), val)
}
