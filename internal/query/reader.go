// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package query

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	lru "github.com/hashicorp/golang-lru"

	"github.com/luxfi/opmove/internal/blockchain"
	"github.com/luxfi/opmove/internal/evmext"
	"github.com/luxfi/opmove/internal/primitives"
	"github.com/luxfi/opmove/internal/trie"
)

// nonceCacheSize bounds the (height, sender) sequence-number cache Nonce
// keeps: one entry per distinct sender queried at a given head height.
const nonceCacheSize = 8192

// nonceCacheKey is safe to cache forever once populated: Height only ever
// advances, so a new block always mints a new key rather than requiring
// invalidation of an old one.
type nonceCacheKey struct {
	height uint64
	addr   common.Address
}

// baseIntrinsicGas is the floor estimate_gas never returns below
// (spec.md §4.7), the legacy 21_000 base-transaction cost.
const baseIntrinsicGas = 21_000

// ErrUnsupportedSimulation is returned by Call/EstimateGas for a
// transaction shape this façade cannot simulate: genuine Move
// entry-function/script execution would require forking a MoveVM session
// at an arbitrary historical height, which the out-of-scope MoveVM
// boundary (movevm.Session) has no capability for (spec.md §1). Only the
// EVM-native L2-contract call path is simulatable here.
var ErrUnsupportedSimulation = errors.New("query: only L2 contract calls can be simulated")

// Reader is the state-queries façade: every method resolves a height tag
// against the snapshot current at call time and never touches the
// actor-owned mutable trie (spec.md §4.7, §5).
type Reader struct {
	view       *View
	nonceCache *lru.Cache
}

// NewReader constructs a Reader over view.
func NewReader(view *View) *Reader {
	nonceCache, err := lru.New(nonceCacheSize)
	if err != nil {
		// Only returned by lru.New for a non-positive size, which
		// nonceCacheSize never is.
		panic(err)
	}
	return &Reader{view: view, nonceCache: nonceCache}
}

// HeadHeight reports the height of the snapshot currently published.
func (r *Reader) HeadHeight() uint64 {
	return r.view.Load().Height
}

// View exposes the underlying View so callers needing the raw
// publish/subscribe primitive (the websocket newHeads transport) don't
// need a second reference threaded through separately.
func (r *Reader) View() *View {
	return r.view
}

// Balance resolves addr's base-token balance. Per spec.md §4.7 this
// invokes the base-token module in a throwaway unmetered session; since
// movevm.BaseToken (backed by the out-of-scope MoveVM) exposes only the
// current view, height resolution here is a no-op beyond validating the
// tag does not reference the future — historical Move-side balances are
// outside this repository's scope (an explicit Open Question resolution,
// see DESIGN.md).
func (r *Reader) Balance(ctx context.Context, addr common.Address, tag HeightTag) (*big.Int, error) {
	snap := r.view.Load()
	if err := r.checkNotFuture(snap, tag); err != nil {
		return nil, err
	}
	return snap.BaseToken.Balance(ctx, primitives.ToMoveAddress(addr))
}

// Nonce resolves addr's current sequence number, under the same
// current-view scoping as Balance.
func (r *Reader) Nonce(ctx context.Context, addr common.Address, tag HeightTag) (uint64, error) {
	snap := r.view.Load()
	if err := r.checkNotFuture(snap, tag); err != nil {
		return 0, err
	}
	key := nonceCacheKey{height: snap.Height, addr: addr}
	if cached, ok := r.nonceCache.Get(key); ok {
		return cached.(uint64), nil
	}
	nonce, err := snap.Accounts.SequenceNumber(ctx, primitives.ToMoveAddress(addr))
	if err != nil {
		return 0, err
	}
	r.nonceCache.Add(key, nonce)
	return nonce, nil
}

func (r *Reader) checkNotFuture(snap *Snapshot, tag HeightTag) error {
	if tag.Kind == HeightNumber && tag.Number > snap.Height {
		return fmt.Errorf("query: height %d is ahead of the chain head %d", tag.Number, snap.Height)
	}
	return nil
}

// BlockByHash resolves a block and its receipts by hash.
func (r *Reader) BlockByHash(hash common.Hash) (*blockchain.Block, types.Receipts, error) {
	return r.view.Load().Repo.ByHash(hash)
}

// BlockByHeight resolves a block and its receipts by height tag.
func (r *Reader) BlockByHeight(tag HeightTag) (*blockchain.Block, types.Receipts, error) {
	snap := r.view.Load()
	return snap.Repo.ByHeight(tag.Resolve(snap.Height))
}

// PayloadByID resolves the block a given Engine-API payload id produced.
func (r *Reader) PayloadByID(id engine.PayloadID) (*blockchain.Block, types.Receipts, error) {
	return r.view.Load().Repo.ByPayloadID(id)
}

// PayloadByHash resolves a block by hash for the get_payload-adjacent
// by-hash lookup spec.md §4.7 names alongside PayloadByID.
func (r *Reader) PayloadByHash(hash common.Hash) (*blockchain.Block, types.Receipts, error) {
	return r.BlockByHash(hash)
}

// TransactionByHash resolves a decoded transaction plus the block it was
// included in, by transaction hash.
func (r *Reader) TransactionByHash(hash common.Hash) (*types.Transaction, *blockchain.Block, error) {
	block, _, err := r.view.Load().Repo.BlockByTxHash(hash)
	if err != nil {
		return nil, nil, err
	}
	for i, h := range block.Transactions {
		if h != hash {
			continue
		}
		var tx types.Transaction
		if err := tx.UnmarshalBinary(block.RawTransactions[i]); err != nil {
			return nil, nil, err
		}
		return &tx, block, nil
	}
	return nil, nil, fmt.Errorf("query: transaction %s not found in its own indexed block", hash)
}

// ReceiptByTransactionHash resolves the extended receipt (consensus
// receipt plus block-positioning fields) for a transaction hash.
func (r *Reader) ReceiptByTransactionHash(hash common.Hash) (*blockchain.ExtendedReceipt, error) {
	block, receipts, err := r.view.Load().Repo.BlockByTxHash(hash)
	if err != nil {
		return nil, err
	}
	for i, h := range block.Transactions {
		if h != hash {
			continue
		}
		var tx types.Transaction
		if err := tx.UnmarshalBinary(block.RawTransactions[i]); err != nil {
			return nil, err
		}
		from, _ := types.Sender(types.LatestSignerForChainID(tx.ChainId()), &tx)
		return &blockchain.ExtendedReceipt{
			Receipt:          receipts[i],
			TransactionIndex: uint64(i),
			From:             from,
			To:               tx.To(),
			BlockHash:        block.Hash(),
			BlockNumber:      block.Number(),
			BlockTimestamp:   block.Header.Time,
			L2GasPrice:       effectiveGasPrice(&tx, block.Header.BaseFee),
		}, nil
	}
	return nil, fmt.Errorf("query: receipt for transaction %s not found in its own indexed block", hash)
}

func effectiveGasPrice(tx *types.Transaction, baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return tx.GasPrice()
	}
	tip := tx.EffectiveGasTipValue(baseFee)
	return new(big.Int).Add(tip, baseFee)
}

// CallRequest is the subset of an eth_call/eth_estimateGas request this
// façade can simulate: an L2-contract call, per spec.md §4.7's scoping of
// both operations to "simulate" against the embedded EVM.
type CallRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// EstimateGas simulates call with gas_limit = u64::MAX and
// effective_gas_price = 0 (spec.md §4.7), returning the consumed gas plus
// a 33% buffer, floored at baseIntrinsicGas.
func (r *Reader) EstimateGas(call CallRequest, tag HeightTag) (uint64, error) {
	result, err := r.simulate(call, tag, ^uint64(0))
	if err != nil {
		return 0, err
	}
	estimate := result.GasUsed + result.GasUsed/3
	if estimate < baseIntrinsicGas {
		estimate = baseIntrinsicGas
	}
	return estimate, nil
}

// Call simulates call without charging any fee and returns the raw return
// data, reverting with the output bytes intact rather than an error when
// the simulated call itself reverts (the caller surfaces that as JSON-RPC
// error code 3 "execution reverted").
func (r *Reader) Call(call CallRequest, tag HeightTag) ([]byte, bool, error) {
	result, err := r.simulate(call, tag, ^uint64(0))
	if err != nil {
		return nil, false, err
	}
	return result.ReturnData, result.Reverted, nil
}

func (r *Reader) simulate(call CallRequest, tag HeightTag, gasLimit uint64) (evmext.CallResult, error) {
	snap := r.view.Load()
	height := tag.Resolve(snap.Height)
	view, err := snap.Store.OpenAt(height)
	if err != nil {
		return evmext.CallResult{}, err
	}
	resolver := evmext.NewReadViewResolver(snap.Store, view, snap.KV)

	value := new(uint256.Int)
	if call.Value != nil {
		var overflow bool
		value, overflow = uint256.FromBig(call.Value)
		if overflow {
			return evmext.CallResult{}, fmt.Errorf("query: call value overflows uint256")
		}
	}
	hdr := evmext.HeaderForExecution{Number: height, GasLimit: gasLimit}
	result := evmext.Call(resolver, hdr, 0, call.From, call.To, value, call.Data, gasLimit)
	return result, nil
}

// AccountProof is the EIP-1186 shape eth_getProof returns.
type AccountProof struct {
	Address      common.Address
	Balance      *big.Int
	CodeHash     common.Hash
	Nonce        uint64
	StorageHash  common.Hash
	AccountProof [][]byte
	StorageProof []StorageProofEntry
}

// StorageProofEntry is one requested slot's value and Merkle proof.
type StorageProofEntry struct {
	Key   common.Hash
	Value *big.Int
	Proof [][]byte
}

// Proof builds an account proof plus storage proofs for the requested
// slots, restricted to the EVM-visible L2 address range (spec.md §4.7):
// addr must be representable as a plain Ethereum address, i.e. its high
// 12 bytes must be zero once widened to a Move address.
func (r *Reader) Proof(addr common.Address, slots []common.Hash, tag HeightTag) (*AccountProof, error) {
	snap := r.view.Load()
	height := tag.Resolve(snap.Height)
	view, err := snap.Store.OpenAt(height)
	if err != nil {
		return nil, err
	}
	resolver := evmext.NewReadViewResolver(snap.Store, view, snap.KV)

	account, err := resolver.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	accountProofNodes, err := resolver.AccountProof(addr)
	if err != nil {
		return nil, err
	}

	result := &AccountProof{Address: addr, AccountProof: accountProofNodes}
	if account == nil {
		result.Balance = new(big.Int)
		for _, slot := range slots {
			result.StorageProof = append(result.StorageProof, StorageProofEntry{Key: slot, Value: new(big.Int)})
		}
		return result, nil
	}

	result.Balance = account.Balance
	result.Nonce = account.Nonce
	result.CodeHash = account.CodeHash
	result.StorageHash = account.StorageRoot

	owner := primitives.TrieKey(primitives.TaggedEvmKey(addr))
	storageTrie, err := trie.OpenStorageTrie(snap.Store, owner, account.StorageRoot)
	if err != nil {
		return nil, err
	}
	for _, slot := range slots {
		value, err := storageTrie.GetSlot(slot)
		if err != nil {
			return nil, err
		}
		proof, err := storageTrie.Proof(slot)
		if err != nil {
			return nil, err
		}
		result.StorageProof = append(result.StorageProof, StorageProofEntry{Key: slot, Value: value, Proof: proof})
	}
	return result, nil
}

// FeeHistoryResult is the empty/zero skeleton spec.md §4.7 specifies:
// historical fee data is not retained, so every field is a same-length
// zeroed/empty slice rather than a real series.
type FeeHistoryResult struct {
	OldestBlock   uint64
	BaseFeePerGas []*big.Int
	GasUsedRatio  []float64
	Reward        [][]*big.Int
}

// FeeHistory always returns the zero skeleton.
func (r *Reader) FeeHistory(blockCount uint64, newestBlock HeightTag, rewardPercentiles []float64) *FeeHistoryResult {
	snap := r.view.Load()
	oldest := newestBlock.Resolve(snap.Height)
	if blockCount > oldest {
		blockCount = oldest
	}
	result := &FeeHistoryResult{OldestBlock: oldest - blockCount}
	for i := uint64(0); i < blockCount+1; i++ {
		result.BaseFeePerGas = append(result.BaseFeePerGas, new(big.Int))
	}
	for i := uint64(0); i < blockCount; i++ {
		result.GasUsedRatio = append(result.GasUsedRatio, 0)
		if len(rewardPercentiles) > 0 {
			result.Reward = append(result.Reward, make([]*big.Int, len(rewardPercentiles)))
		}
	}
	return result
}
