// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package query is the read-only state-queries façade (spec.md §4.7):
// height-tag resolution, balance/nonce/block/transaction/receipt/payload
// reads, estimate_gas, call, and the EIP-1186 proof operation, all
// operating against a lock-free, writer-published Snapshot rather than the
// actor's own mutable state (spec.md §5's evmap-style reader view),
// grounded on original_source/app/src/query.rs and
// original_source/moved/src/types/queries.rs.
package query

import "fmt"

// HeightKind discriminates the six height-tag variants spec.md §4.7 names.
type HeightKind int

const (
	HeightNumber HeightKind = iota
	HeightEarliest
	HeightLatest
	HeightSafe
	HeightPending
	HeightFinalized
)

// HeightTag is a resolvable block-height reference, as accepted by every
// eth_* method that takes a block-tag parameter.
type HeightTag struct {
	Kind   HeightKind
	Number uint64 // only meaningful when Kind == HeightNumber
}

// ByNumber builds a tag addressing an exact height.
func ByNumber(n uint64) HeightTag { return HeightTag{Kind: HeightNumber, Number: n} }

// Latest, Earliest, Safe, Pending and Finalized are the named tag variants.
var (
	Latest    = HeightTag{Kind: HeightLatest}
	Earliest  = HeightTag{Kind: HeightEarliest}
	Safe      = HeightTag{Kind: HeightSafe}
	Pending   = HeightTag{Kind: HeightPending}
	Finalized = HeightTag{Kind: HeightFinalized}
)

// Resolve turns tag into a concrete height given the chain's current head
// height. Earliest always resolves to genesis (height 0); Safe, Pending and
// Finalized are all treated as aliases for the current head, since this
// repository retains no separate safe/finalized checkpoint and builds no
// speculative pending block ahead of the actor's own committed state (an
// open question in spec.md §9, resolved here: revisit only if historical
// pruning or speculative execution is introduced).
func (t HeightTag) Resolve(headHeight uint64) uint64 {
	switch t.Kind {
	case HeightNumber:
		return t.Number
	case HeightEarliest:
		return 0
	default:
		return headHeight
	}
}

func (t HeightTag) String() string {
	switch t.Kind {
	case HeightNumber:
		return fmt.Sprintf("0x%x", t.Number)
	case HeightEarliest:
		return "earliest"
	case HeightSafe:
		return "safe"
	case HeightPending:
		return "pending"
	case HeightFinalized:
		return "finalized"
	default:
		return "latest"
	}
}
