// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package primitives

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	addrs := []common.Address{
		{},
		common.HexToAddress("0x4200000000000000000000000000000000000007"),
		common.HexToAddress("0x8fd379246834eac74B8419FfdA202CF8051F7A03"),
	}
	for _, a := range addrs {
		move := ToMoveAddress(a)
		back, ok := TryToEthAddress(move)
		require.True(t, ok)
		require.Equal(t, a, back)
	}
}

func TestTryToEthAddressRejectsNonRepresentable(t *testing.T) {
	var move MoveAddress
	move[0] = 0x01 // non-zero high byte: not representable on the Ethereum surface
	_, ok := TryToEthAddress(move)
	require.False(t, ok)
}

func TestAccountRLPRoundTrip(t *testing.T) {
	acc := &Account{
		Nonce:       7,
		Balance:     big.NewInt(123456789),
		StorageRoot: EmptyRoot,
		CodeHash:    EmptyCodeHash,
	}
	data, err := acc.EncodeRLP()
	require.NoError(t, err)

	back, err := DecodeAccountRLP(data)
	require.NoError(t, err)
	require.Equal(t, acc.Nonce, back.Nonce)
	require.Equal(t, 0, acc.Balance.Cmp(back.Balance))
	require.Equal(t, acc.StorageRoot, back.StorageRoot)
	require.Equal(t, acc.CodeHash, back.CodeHash)
}

func TestStorageSlotRLPRoundTrip(t *testing.T) {
	val := big.NewInt(0xdeadbeef)
	data, err := EncodeStorageSlot(val)
	require.NoError(t, err)

	back, err := DecodeStorageSlot(data)
	require.NoError(t, err)
	require.Equal(t, 0, val.Cmp(back))
}
