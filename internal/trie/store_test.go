// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package trie

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	gtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/opmove/internal/primitives"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	kv := memorydb.New()
	s, err := Open(kv)
	require.NoError(t, err)
	return s
}

func TestStoreInsertGetCommit(t *testing.T) {
	s := newTestStore(t)

	addr := common.HexToAddress("0x4200000000000000000000000000000000000007")
	tagged := primitives.TaggedEvmKey(addr)
	key := primitives.TrieKey(tagged)

	acc := primitives.NewAccount()
	acc.Balance = big.NewInt(1_000_000_000_000_000_000)
	enc, err := acc.EncodeRLP()
	require.NoError(t, err)

	require.NoError(t, s.Insert(key[:], enc))

	batch := memorydb.New().NewBatch()
	root, height, err := s.Commit(batch)
	require.NoError(t, err)
	require.Equal(t, uint64(1), height)
	require.NotEqual(t, common.Hash{}, root)

	got, err := s.Get(key[:])
	require.NoError(t, err)
	back, err := primitives.DecodeAccountRLP(got)
	require.NoError(t, err)
	require.Equal(t, 0, acc.Balance.Cmp(back.Balance))
}

func TestStoreProofVerifiesAgainstRoot(t *testing.T) {
	s := newTestStore(t)

	addr := common.HexToAddress("0x8fd379246834eac74B8419FfdA202CF8051F7A03")
	tagged := primitives.TaggedEvmKey(addr)
	key := primitives.TrieKey(tagged)

	acc := primitives.NewAccount()
	acc.Nonce = 3
	enc, err := acc.EncodeRLP()
	require.NoError(t, err)
	require.NoError(t, s.Insert(key[:], enc))

	batch := memorydb.New().NewBatch()
	root, _, err := s.Commit(batch)
	require.NoError(t, err)

	proof, err := s.Proof(key[:])
	require.NoError(t, err)
	require.NotEmpty(t, proof)

	proofDB := memorydb.New()
	for _, node := range proof {
		require.NoError(t, proofDB.Put(crypto.Keccak256(node), node))
	}
	val, err := gtrie.VerifyProof(root, key[:], proofDB)
	require.NoError(t, err)
	require.Equal(t, enc, val)
}

func TestStorageTrieRemoveOnZero(t *testing.T) {
	s := newTestStore(t)
	owner := common.HexToHash("0x01")

	st, err := OpenStorageTrie(s, owner, primitives.EmptyRoot)
	require.NoError(t, err)

	slot := common.HexToHash("0x02")
	require.NoError(t, st.SetSlot(slot, big.NewInt(42)))

	v, err := st.GetSlot(slot)
	require.NoError(t, err)
	require.Equal(t, int64(42), v.Int64())

	require.NoError(t, st.SetSlot(slot, big.NewInt(0)))
	v, err = st.GetSlot(slot)
	require.NoError(t, err)
	require.Equal(t, int64(0), v.Int64())
}
