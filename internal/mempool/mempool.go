// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mempool holds canonical transactions between RPC submission and
// block inclusion: a sender-keyed pool whose per-sender ordering is by
// nonce, with deposited and EIP-7702 envelopes rejected at the door rather
// than ever entering the pool (spec.md §4.5), grounded on
// original_source/app/src/mempool.rs's HashMap<sender, BTreeMap<nonce, tx>>
// shape, with the inner BTreeMap realized as github.com/google/btree (a
// transitive dependency of the teacher's own pebble storage engine) instead
// of a hand-rolled ordered map.
package mempool

import (
	"errors"
	"sync"

	"github.com/google/btree"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/opmove/internal/errs"
	"github.com/luxfi/opmove/internal/execution"
	"github.com/luxfi/opmove/internal/primitives"
)

// EnvelopeKind discriminates the transaction-envelope variants the RPC
// surface can receive, mirroring `OpTxEnvelope`'s five-way match in
// original_source/app/src/mempool.rs: only the first three ever reach the
// mempool as a normalized, insertable transaction.
type EnvelopeKind int

const (
	EnvelopeLegacy EnvelopeKind = iota
	EnvelopeEIP2930
	EnvelopeEIP1559
	// EnvelopeEIP7702 is rejected outright: account-abstraction-by-
	// delegation is not supported (spec.md glossary "Non-goals").
	EnvelopeEIP7702
	// EnvelopeDeposited is rejected outright: deposited transactions are
	// only ever constructed internally from L1 data, never submitted
	// through the external mempool-facing RPC surface.
	EnvelopeDeposited
)

// ErrMempoolFull is returned when the pool is at its configured global
// transaction-count capacity (luxfi-evm/core/txpool/txpool.go's
// GlobalSlots concept, simplified to a flat count since this pool has no
// per-transaction byte-size weighting).
var ErrMempoolFull = errors.New("mempool: at capacity")

// ErrAccountSlotsFull is returned when a sender already holds
// Config.MaxPerAccount queued transactions (luxfi-evm/core/txpool/
// txpool.go's AccountSlots concept).
var ErrAccountSlotsFull = errors.New("mempool: sender has too many queued transactions")

// Config bounds the pool's capacity. There is no pricing-based eviction
// (spec.md §4.5 "Mempool ordering heuristics beyond group-by-sender are
// out of scope"): once a bound is hit, further inserts are rejected
// outright rather than displacing a lower-priced transaction.
type Config struct {
	MaxGlobal     int
	MaxPerAccount int
}

type nonceItem struct {
	nonce uint64
	tx    *execution.NormalizedTransaction
}

func nonceLess(a, b nonceItem) bool { return a.nonce < b.nonce }

// Mempool is a sender-keyed pool of pending canonical transactions, ordered
// by nonce within each sender.
type Mempool struct {
	mu    sync.Mutex
	cfg   Config
	count int
	txs   map[primitives.MoveAddress]*btree.BTreeG[nonceItem]
	depth prometheus.Gauge
}

// New constructs an empty Mempool bounded by cfg, with no depth gauge
// wired (depth reporting is a no-op). Use NewWithMetrics to report depth.
func New(cfg Config) *Mempool {
	return &Mempool{cfg: cfg, txs: make(map[primitives.MoveAddress]*btree.BTreeG[nonceItem]), depth: noopGauge}
}

// NewWithMetrics constructs an empty Mempool bounded by cfg, reporting its
// live transaction count to depth after every Insert/Drain (SPEC_FULL.md
// §2.6's mempool-depth gauge).
func NewWithMetrics(cfg Config, depth prometheus.Gauge) *Mempool {
	return &Mempool{cfg: cfg, txs: make(map[primitives.MoveAddress]*btree.BTreeG[nonceItem]), depth: depth}
}

// noopGauge discards observations; used when no Registry is wired so
// Mempool never needs a nil check on the hot path.
var noopGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "opmove_mempool_depth_noop"})

// Insert adds tx to the pool, keyed by its sender and nonce. A second
// insert at the same (sender, nonce) replaces the first, mirroring
// BTreeMap::insert's replace-on-collision semantics — the displaced
// transaction is returned. Deposited and EIP-7702 envelopes are rejected
// as an InvariantViolation: the RPC layer must never forward them here
// (spec.md §4.5, original_source/app/src/mempool.rs get_tx_signer).
func (m *Mempool) Insert(kind EnvelopeKind, tx *execution.NormalizedTransaction) (*execution.NormalizedTransaction, error) {
	switch kind {
	case EnvelopeDeposited:
		return nil, errs.NewMempoolInvariantViolation("deposited transactions cannot be submitted to the mempool")
	case EnvelopeEIP7702:
		return nil, errs.NewMempoolInvariantViolation("EIP-7702 envelopes are not accepted")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.txs[tx.Sender]
	if !ok {
		if m.count >= m.cfg.MaxGlobal {
			return nil, ErrMempoolFull
		}
		account = btree.NewG(32, nonceLess)
		m.txs[tx.Sender] = account
	}

	item := nonceItem{nonce: tx.Nonce, tx: tx}
	if _, exists := account.Get(item); !exists {
		if account.Len() >= m.cfg.MaxPerAccount {
			return nil, ErrAccountSlotsFull
		}
		if m.count >= m.cfg.MaxGlobal {
			return nil, ErrMempoolFull
		}
		m.count++
	}

	old, replaced := account.ReplaceOrInsert(item)
	m.depth.Set(float64(m.count))
	if replaced {
		return old.tx, nil
	}
	return nil, nil
}

// Drain removes and returns every pending transaction, grouped by sender
// (iteration order over senders is unspecified, matching the Rust
// HashMap's own non-deterministic order) and ordered by nonce within each
// sender.
func (m *Mempool) Drain() []*execution.NormalizedTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*execution.NormalizedTransaction, 0, m.count)
	for addr, account := range m.txs {
		account.Ascend(func(item nonceItem) bool {
			out = append(out, item.tx)
			return true
		})
		delete(m.txs, addr)
	}
	m.count = 0
	m.depth.Set(0)
	return out
}

// Len reports the total number of pending transactions across all senders.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
