// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package query

import (
	"sync/atomic"

	"github.com/ethereum/go-ethereum/event"

	"github.com/luxfi/opmove/internal/blockchain"
	"github.com/luxfi/opmove/internal/movevm"
	"github.com/luxfi/opmove/internal/trie"
)

// Snapshot is everything a read-only query needs as of one committed
// height: the head height itself, the trie store (for historical
// OpenAt-rooted resolvers), the block/receipt repository, and the
// movevm read capabilities. It is immutable once published; the command
// actor (C9) builds a fresh Snapshot after every committed block and hands
// it to View.Publish, never mutating a Snapshot once readers may observe
// it (spec.md §5 "evmap-style: writer publishes epochs").
type Snapshot struct {
	Height    uint64
	Store     *trie.Store
	KV        trie.KV
	Repo      *blockchain.Repository
	Accounts  movevm.Accounts
	BaseToken movevm.BaseToken
}

// View is the lock-free publication point readers dereference. A single
// atomic.Pointer load/store gives every reader a consistent, if possibly
// slightly stale, view of the chain without taking any lock the writer
// would also need (spec.md §5).
type View struct {
	ptr  atomic.Pointer[Snapshot]
	feed event.Feed
}

// NewView constructs a View already holding an initial snapshot (typically
// genesis, height 0).
func NewView(initial *Snapshot) *View {
	v := &View{}
	v.ptr.Store(initial)
	return v
}

// Publish installs s as the new current snapshot, visible to the next load
// any reader performs, and fans the new height out to every subscriber
// registered via Subscribe — the newHeads notification path (spec.md
// §2.6/§4.9's eth_subscribe), grounded on eth/catalyst/simulated_beacon.go's
// withdrawalQueue using the same event.Feed fan-out shape for its own
// internal epoch notifications. Only the command actor calls this.
func (v *View) Publish(s *Snapshot) {
	v.ptr.Store(s)
	v.feed.Send(s)
}

// Subscribe registers ch to receive every Snapshot published from this
// point on. The returned Subscription must be closed by the caller once it
// stops reading, or the feed send in Publish will block on a full channel.
func (v *View) Subscribe(ch chan<- *Snapshot) event.Subscription {
	return v.feed.Subscribe(ch)
}

// Load returns the current snapshot. Never nil once NewView has run.
func (v *View) Load() *Snapshot { return v.ptr.Load() }
