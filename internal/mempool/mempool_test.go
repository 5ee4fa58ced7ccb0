// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/opmove/internal/errs"
	"github.com/luxfi/opmove/internal/execution"
	"github.com/luxfi/opmove/internal/primitives"
)

func tx(sender primitives.MoveAddress, nonce uint64) *execution.NormalizedTransaction {
	return &execution.NormalizedTransaction{Sender: sender, Nonce: nonce}
}

func TestInsertMultipleAccounts(t *testing.T) {
	pool := New(Config{MaxGlobal: 100, MaxPerAccount: 10})
	a := primitives.MoveAddress{1}
	b := primitives.MoveAddress{2}

	_, err := pool.Insert(EnvelopeEIP1559, tx(a, 0))
	require.NoError(t, err)
	_, err = pool.Insert(EnvelopeEIP1559, tx(b, 0))
	require.NoError(t, err)

	require.Equal(t, 2, pool.Len())
}

func TestInsertReplacesSameNonce(t *testing.T) {
	pool := New(Config{MaxGlobal: 100, MaxPerAccount: 10})
	a := primitives.MoveAddress{1}

	first := tx(a, 0)
	second := tx(a, 0)

	_, err := pool.Insert(EnvelopeEIP1559, first)
	require.NoError(t, err)
	replaced, err := pool.Insert(EnvelopeEIP1559, second)
	require.NoError(t, err)
	require.Same(t, first, replaced)
	require.Equal(t, 1, pool.Len())

	drained := pool.Drain()
	require.Len(t, drained, 1)
	require.Same(t, second, drained[0])
}

func TestDrainOrdersBySenderThenNonce(t *testing.T) {
	pool := New(Config{MaxGlobal: 100, MaxPerAccount: 10})
	a := primitives.MoveAddress{1}

	require.NotPanics(t, func() {
		_, _ = pool.Insert(EnvelopeEIP1559, tx(a, 2))
		_, _ = pool.Insert(EnvelopeEIP1559, tx(a, 0))
		_, _ = pool.Insert(EnvelopeEIP1559, tx(a, 1))
	})

	drained := pool.Drain()
	require.Len(t, drained, 3)
	require.Equal(t, uint64(0), drained[0].Nonce)
	require.Equal(t, uint64(1), drained[1].Nonce)
	require.Equal(t, uint64(2), drained[2].Nonce)

	require.Equal(t, 0, pool.Len())
}

func TestDepositedTransactionRejected(t *testing.T) {
	pool := New(Config{MaxGlobal: 100, MaxPerAccount: 10})
	a := primitives.MoveAddress{1}

	_, err := pool.Insert(EnvelopeDeposited, tx(a, 0))
	require.Error(t, err)
	var inv *errs.InvariantViolation
	require.ErrorAs(t, err, &inv)
	require.Equal(t, 0, pool.Len())
}

func TestEIP7702Rejected(t *testing.T) {
	pool := New(Config{MaxGlobal: 100, MaxPerAccount: 10})
	a := primitives.MoveAddress{1}

	_, err := pool.Insert(EnvelopeEIP7702, tx(a, 0))
	require.Error(t, err)
	require.Equal(t, 0, pool.Len())
}

func TestAccountSlotsFull(t *testing.T) {
	pool := New(Config{MaxGlobal: 100, MaxPerAccount: 2})
	a := primitives.MoveAddress{1}

	_, err := pool.Insert(EnvelopeEIP1559, tx(a, 0))
	require.NoError(t, err)
	_, err = pool.Insert(EnvelopeEIP1559, tx(a, 1))
	require.NoError(t, err)
	_, err = pool.Insert(EnvelopeEIP1559, tx(a, 2))
	require.ErrorIs(t, err, ErrAccountSlotsFull)
}

func TestGlobalCapacityFull(t *testing.T) {
	pool := New(Config{MaxGlobal: 1, MaxPerAccount: 10})
	a := primitives.MoveAddress{1}
	b := primitives.MoveAddress{2}

	_, err := pool.Insert(EnvelopeEIP1559, tx(a, 0))
	require.NoError(t, err)
	_, err = pool.Insert(EnvelopeEIP1559, tx(b, 0))
	require.ErrorIs(t, err, ErrMempoolFull)
}
