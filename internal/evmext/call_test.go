// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package evmext

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/opmove/internal/trie"
)

func newTestResolver(t *testing.T) (*trie.Store, *StoreResolver) {
	t.Helper()
	kv := memorydb.New()
	store, err := trie.Open(kv)
	require.NoError(t, err)
	return store, NewStoreResolver(store, kv)
}

// initCodeSettingSlotZero is PUSH1 0x2a PUSH1 0x00 SSTORE PUSH1 0x00
// PUSH1 0x00 RETURN: writes 42 into slot 0 of the contract being created
// and returns an empty runtime body.
var initCodeSettingSlotZero = []byte{
	0x60, 0x2a, // PUSH1 42
	0x60, 0x00, // PUSH1 0
	0x55,       // SSTORE
	0x60, 0x00, // PUSH1 0
	0x60, 0x00, // PUSH1 0
	0xf3, // RETURN
}

func TestCreateCapturesStorageDiff(t *testing.T) {
	store, resolver := newTestResolver(t)

	caller := common.HexToAddress("0x000000000000000000000000000000000000aa")
	hdr := HeaderForExecution{Number: 1, Timestamp: 1, GasLimit: 30_000_000, BaseFee: 0}

	result := Create(resolver, hdr, 1337, caller, new(uint256.Int), initCodeSettingSlotZero, 200_000)
	require.False(t, result.Reverted)
	require.NotEqual(t, common.Address{}, result.ContractAddress)
	// The caller (nonce bumped by CREATE, touched first) and the new contract.
	require.Len(t, result.Diff.Accounts, 2)

	expectedAddr := crypto.CreateAddress(caller, 0)
	require.Equal(t, expectedAddr, result.ContractAddress)

	d := result.Diff.Accounts[1]
	require.Equal(t, expectedAddr, d.Addr)
	require.Len(t, d.StorageChanges, 1)

	require.NoError(t, Apply(store, resolver, result.Diff))

	acc, err := resolver.GetAccount(expectedAddr)
	require.NoError(t, err)
	require.NotNil(t, acc)

	slotVal, err := resolver.GetStorageSlot(acc.StorageRoot, ownerHash(expectedAddr), common.Hash{})
	require.NoError(t, err)
	require.Equal(t, int64(42), slotVal.Int64())
}

func TestCallNonexistentAccountIsEmpty(t *testing.T) {
	_, resolver := newTestResolver(t)
	caller := common.HexToAddress("0x000000000000000000000000000000000000bb")
	to := common.HexToAddress("0x000000000000000000000000000000000000cc")
	hdr := HeaderForExecution{Number: 1, GasLimit: 30_000_000}

	result := Call(resolver, hdr, 1337, caller, to, new(uint256.Int), nil, 100_000)
	require.False(t, result.Reverted)
	require.Empty(t, result.ReturnData)
}
