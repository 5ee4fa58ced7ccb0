// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/luxfi/opmove/internal/blockchain"
	"github.com/luxfi/opmove/internal/execution"
	"github.com/luxfi/opmove/internal/mempool"
)

// Command is the closed set of messages the actor's FIFO channel carries
// (spec.md §4.8). Only the actor goroutine ever acts on one; every other
// component reaches the actor exclusively through Actor.Send.
type Command interface {
	isCommand()
}

// StartBlockBuild triggers the full block-build algorithm of spec.md §4.6:
// execute the payload's forced-include (deposit) transactions, then drain
// and execute the mempool in signer-grouped nonce order, then seal and
// persist the resulting block under PayloadID.
type StartBlockBuild struct {
	Attributes PayloadAttributes
	PayloadID  engine.PayloadID
}

func (StartBlockBuild) isCommand() {}

// AddTransaction inserts one already-normalized, already signature-verified
// transaction into the mempool, observed by the next StartBlockBuild in
// enqueue order (spec.md §5 ordering guarantee (i)).
type AddTransaction struct {
	Kind mempool.EnvelopeKind
	Tx   *execution.NormalizedTransaction
}

func (AddTransaction) isCommand() {}

// UpdateHead records a new forkchoice state with no accompanying payload
// attributes: spec.md §4.8's "if attributes absent, record head and return
// VALID with no payload id".
type UpdateHead struct {
	State engine.ForkchoiceStateV1
}

func (UpdateHead) isCommand() {}

// GenesisUpdate seeds the chain with its height-0 block, the one command
// that may run before any forkchoice call is ever received.
type GenesisUpdate struct {
	Block    *blockchain.Block
	Receipts types.Receipts
}

func (GenesisUpdate) isCommand() {}
