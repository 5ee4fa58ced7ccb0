// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package actor is the single-owner write path (spec.md §4.8, §5): one
// goroutine pulls Command messages off a bounded FIFO channel and is the
// only thing that ever mutates the trie store, the mempool, or the block
// repository. Every other component — the RPC layer, the mempool submit
// path — reaches it only through Actor.Send, never by calling its fields
// directly, grounded on luxfi-evm/plugin/evm/vm.go's single mutable-owner
// VM struct and on other_examples/92737615_..._simulated_beacon.go.go's
// forkchoiceUpdated → getPayload sequencing, generalized here to an
// explicit message-passing loop instead of direct method calls since
// spec.md §5 requires FIFO ordering across concurrent callers.
package actor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/opmove/internal/evmext"
	"github.com/luxfi/opmove/internal/execution"
	"github.com/luxfi/opmove/internal/feemodel"
	"github.com/luxfi/opmove/internal/mempool"
	"github.com/luxfi/opmove/internal/movevm"
	"github.com/luxfi/opmove/internal/primitives"
	"github.com/luxfi/opmove/internal/query"
	"github.com/luxfi/opmove/internal/trie"

	"github.com/luxfi/opmove/internal/blockchain"
)

// noopBuildDuration discards block-build duration observations for Actors
// constructed without WithMetrics, so startBlockBuild never needs a nil
// check on its hot path.
var noopBuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "opmove_actor_block_build_duration_noop"})

// Config bundles the per-chain constants the actor needs to seed a new
// block's Pipeline (spec.md §4.3, §4.4) that do not change block to block.
type Config struct {
	ChainID         uint64
	GasMultiplier   uint64
	L1              feemodel.L1Config
	Sink            primitives.MoveAddress
	FeeParams       feemodel.Params
	InitialBaseFee  *big.Int
	DefaultGasLimit uint64
}

// envelope pairs a Command with the one-shot reply channel its sender
// waits on. reply is buffered (capacity 1) so the actor's send never blocks
// on a caller who has already given up (spec.md §5 cancellation policy).
type envelope struct {
	cmd   Command
	reply chan error
}

// Actor owns every piece of mutable chain state: the MoveVM session
// capabilities, the shared world trie, the mempool, and the block
// repository. Readers never touch any of these directly — they dereference
// the query.View the actor publishes to after every committed block.
type Actor struct {
	cmds chan envelope

	session   movevm.Session
	accounts  movevm.Accounts
	baseToken movevm.BaseToken

	store    *trie.Store
	kv       trie.KV
	resolver *evmext.StoreResolver
	repo     *blockchain.Repository
	pool     *mempool.Mempool
	view     *query.View

	cfg Config

	forkchoice engine.ForkchoiceStateV1

	blockBuildDuration prometheus.Histogram
}

// New constructs an Actor. The caller is responsible for starting Run in
// its own goroutine once; an Actor with no running Run loop will block
// forever on Send.
func New(
	session movevm.Session,
	accounts movevm.Accounts,
	baseToken movevm.BaseToken,
	store *trie.Store,
	kv trie.KV,
	resolver *evmext.StoreResolver,
	repo *blockchain.Repository,
	pool *mempool.Mempool,
	view *query.View,
	cfg Config,
	queueDepth int,
) *Actor {
	return &Actor{
		cmds:               make(chan envelope, queueDepth),
		session:            session,
		accounts:           accounts,
		baseToken:          baseToken,
		store:              store,
		kv:                 kv,
		resolver:           resolver,
		repo:               repo,
		pool:               pool,
		view:               view,
		cfg:                cfg,
		blockBuildDuration: noopBuildDuration,
	}
}

// WithMetrics attaches a block-build-duration histogram and returns the
// Actor for chaining onto New (actor.New(...).WithMetrics(reg.BlockBuildDuration))
// without widening New's own parameter list — cmd/opmoved/main.go and
// internal/rpc/server_test.go both construct Actors positionally, and only
// main.go needs to opt into metrics.
func (a *Actor) WithMetrics(blockBuildDuration prometheus.Histogram) *Actor {
	a.blockBuildDuration = blockBuildDuration
	return a
}

// Send enqueues cmd and blocks for its reply. If ctx is canceled before the
// actor replies, Send returns ctx.Err() immediately and the actor, finding
// the reply channel abandoned, simply drops the (already buffered) result
// and continues to the next command — side effects it already committed
// are not rolled back (spec.md §5 cancellation policy).
func (a *Actor) Send(ctx context.Context, cmd Command) error {
	env := envelope{cmd: cmd, reply: make(chan error, 1)}
	select {
	case a.cmds <- env:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-env.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the actor's FIFO loop until ctx is canceled. Exactly one
// goroutine must call Run for a given Actor.
func (a *Actor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-a.cmds:
			err := a.dispatch(ctx, env.cmd)
			env.reply <- err
		}
	}
}

func (a *Actor) dispatch(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case StartBlockBuild:
		return a.startBlockBuild(ctx, c)
	case AddTransaction:
		return a.addTransaction(c)
	case UpdateHead:
		return a.updateHead(c)
	case GenesisUpdate:
		return a.genesisUpdate(c)
	default:
		return fmt.Errorf("actor: unrecognized command %T", cmd)
	}
}

// addTransaction inserts tx into the mempool. Forced-include (deposit)
// transactions never pass through here: they ride in on the payload
// attributes of the StartBlockBuild that includes them (spec.md §4.6 step
// 2), since the mempool itself rejects deposited envelopes outright
// (spec.md §4.5).
func (a *Actor) addTransaction(c AddTransaction) error {
	_, err := a.pool.Insert(c.Kind, c.Tx)
	return err
}

func (a *Actor) updateHead(c UpdateHead) error {
	if _, _, err := a.repo.ByHash(c.State.HeadBlockHash); err != nil {
		return fmt.Errorf("actor: forkchoice head %s unknown: %w", c.State.HeadBlockHash, err)
	}
	a.forkchoice = c.State
	return nil
}

func (a *Actor) genesisUpdate(c GenesisUpdate) error {
	batch := a.kv.NewBatch()
	if err := a.repo.Add(batch, c.Block, c.Receipts); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return err
	}
	hash := c.Block.Hash()
	a.forkchoice = engine.ForkchoiceStateV1{HeadBlockHash: hash, SafeBlockHash: hash, FinalizedBlockHash: hash}
	a.publish(c.Block.Number())
	return nil
}

// startBlockBuild runs the full block-build algorithm of spec.md §4.6 to
// completion synchronously: execute forced-include transactions, drain and
// execute the mempool, finalize the header, and persist the result — all
// before replying to the caller. There is no separate "finish" command;
// this node builds and commits its own blocks immediately rather than
// staging a speculative payload a consensus client later canonicalizes.
func (a *Actor) startBlockBuild(ctx context.Context, c StartBlockBuild) error {
	start := time.Now()
	defer func() { a.blockBuildDuration.Observe(time.Since(start).Seconds()) }()

	parent, _, err := a.repo.Latest()
	if err != nil {
		return err
	}

	var (
		parentHash     common.Hash
		parentNumber   uint64
		parentGasLimit = a.cfg.DefaultGasLimit
		parentGasUsed  uint64
		parentBaseFee  = a.cfg.InitialBaseFee
	)
	if parent != nil {
		parentHash = parent.Hash()
		parentNumber = parent.Number()
		parentGasLimit = parent.Header.GasLimit
		parentGasUsed = parent.Header.GasUsed
		parentBaseFee = parent.Header.BaseFee
	}

	gasLimit := c.Attributes.GasLimit
	if gasLimit == 0 {
		gasLimit = parentGasLimit
	}

	parentBaseFeeU256, overflow := uint256.FromBig(parentBaseFee)
	if overflow {
		return fmt.Errorf("actor: parent base fee does not fit in 256 bits")
	}
	baseFeeU256 := feemodel.NextBaseFee(a.cfg.FeeParams, parentGasLimit, parentGasUsed, parentBaseFeeU256)
	baseFee := baseFeeU256.ToBig()

	headerIn := blockchain.HeaderInput{
		ParentHash:            parentHash,
		Number:                parentNumber + 1,
		Timestamp:             c.Attributes.Timestamp,
		GasLimit:              gasLimit,
		BaseFee:               baseFee,
		Coinbase:              c.Attributes.FeeRecipient,
		PrevRandao:            c.Attributes.PrevRandao,
		ParentBeaconBlockRoot: c.Attributes.ParentBeaconBlockRoot,
	}
	builder := blockchain.NewBuilder(headerIn)

	execHeader := evmext.HeaderForExecution{
		Number:     headerIn.Number,
		Timestamp:  headerIn.Timestamp,
		PrevRandao: headerIn.PrevRandao,
		BaseFee:    baseFeeU256.Uint64(),
		GasLimit:   gasLimit,
		Coinbase:   headerIn.Coinbase,
	}
	pipelineCfg := execution.Config{
		ChainID:       a.cfg.ChainID,
		GasMultiplier: a.cfg.GasMultiplier,
		L1:            a.cfg.L1,
		BaseFee:       baseFee,
		Sink:          a.cfg.Sink,
	}
	pipeline := execution.New(a.session, a.accounts, a.baseToken, a.store, a.resolver, execHeader, pipelineCfg)

	// Forced-include (deposit) transactions always precede mempool
	// transactions in block order (spec.md §5 ordering guarantee ii), and
	// run through the deposited path rather than ExecuteCanonical: no
	// signature, no nonce check, no fee charging (spec.md §4.4 "Deposited
	// path").
	for _, tx := range c.Attributes.ForcedInclusionTxs {
		outcome, err := pipeline.ExecuteDeposited(ctx, tx)
		if err != nil {
			return err
		}
		decoded, raw, err := tx.PseudoTransaction()
		if err != nil {
			return err
		}
		if err := builder.AppendDeposited(tx.SourceHash, raw, decoded, outcome); err != nil {
			return err
		}
	}

	for _, tx := range a.pool.Drain() {
		outcome, err := pipeline.ExecuteCanonical(ctx, tx)
		if err != nil {
			return err
		}
		if err := builder.Append(tx, outcome, priorityFeePerGas(outcome.EffectiveGasPrice, baseFee)); err != nil {
			return err
		}
	}

	batch := a.kv.NewBatch()
	stateRoot, height, err := a.store.Commit(batch)
	if err != nil {
		return err
	}
	block, receipts := builder.Finish(stateRoot, c.PayloadID)
	if err := a.repo.Add(batch, block, receipts); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return err
	}

	hash := block.Hash()
	a.forkchoice = engine.ForkchoiceStateV1{HeadBlockHash: hash, SafeBlockHash: hash, FinalizedBlockHash: hash}
	a.publish(height)
	return nil
}

// priorityFeePerGas is the per-gas tip actually paid above base fee,
// floored at zero (a transaction's effective gas price never drops below
// base fee once admitted, but a defensive floor costs nothing here).
func priorityFeePerGas(effectiveGasPrice, baseFee *big.Int) *big.Int {
	tip := new(big.Int).Sub(effectiveGasPrice, baseFee)
	if tip.Sign() < 0 {
		return big.NewInt(0)
	}
	return tip
}

func (a *Actor) publish(height uint64) {
	a.view.Publish(&query.Snapshot{
		Height:    height,
		Store:     a.store,
		KV:        a.kv,
		Repo:      a.repo,
		Accounts:  a.accounts,
		BaseToken: a.baseToken,
	})
}
