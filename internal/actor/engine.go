// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/luxfi/opmove/internal/query"
)

// ErrUnknownPayload is returned by GetPayload when id names no block this
// node has built, the condition the RPC layer (C10) maps to JSON-RPC error
// code -38001 "Unknown payload" (spec.md §4.8, §6).
var ErrUnknownPayload = errors.New("actor: unknown payload id")

// API is the Engine-API translation surface spec.md §4.8 describes: it
// turns forkchoice_updated/new_payload/get_payload calls into Commands sent
// to the actor (or, for new_payload/get_payload, plain reads against the
// already-published query view), matching the call sequencing
// other_examples/92737615_..._simulated_beacon.go.go's sealBlock drives
// against go-ethereum's own ConsensusAPI.
type API struct {
	actor  *Actor
	reader *query.Reader
}

// NewAPI constructs an API bound to actor's command channel and reader's
// published view.
func NewAPI(a *Actor, reader *query.Reader) *API {
	return &API{actor: a, reader: reader}
}

// ForkchoiceUpdated implements engine_forkchoiceUpdatedV3. When attrs is
// nil it only records the new forkchoice state; when present it derives
// the deterministic payload id and starts (or, if that id was already
// built, silently accepts) the block build.
func (api *API) ForkchoiceUpdated(ctx context.Context, state engine.ForkchoiceStateV1, attrs *PayloadAttributes) (engine.ForkChoiceResponse, error) {
	if attrs == nil {
		if err := api.actor.Send(ctx, UpdateHead{State: state}); err != nil {
			return engine.ForkChoiceResponse{}, err
		}
		head := state.HeadBlockHash
		return engine.ForkChoiceResponse{
			PayloadStatus: engine.PayloadStatusV1{Status: engine.VALID, LatestValidHash: &head},
		}, nil
	}

	id, err := DerivePayloadID(state.HeadBlockHash, *attrs)
	if err != nil {
		return engine.ForkChoiceResponse{}, err
	}

	// Idempotent: a duplicate forkchoice_updated with identical inputs
	// derives the identical id; if that block already exists, this call
	// is a no-op rather than a second attempt to build it.
	if _, _, err := api.reader.PayloadByID(id); err != nil {
		if sendErr := api.actor.Send(ctx, StartBlockBuild{Attributes: *attrs, PayloadID: id}); sendErr != nil {
			return engine.ForkChoiceResponse{}, sendErr
		}
	}

	head := state.HeadBlockHash
	return engine.ForkChoiceResponse{
		PayloadStatus: engine.PayloadStatusV1{Status: engine.VALID, LatestValidHash: &head},
		PayloadID:     &id,
	}, nil
}

// NewPayload implements engine_newPayloadV3: it validates that this node
// has already produced (via a prior StartBlockBuild) a block with the
// given hash and that its parent linkage agrees with payload.ParentHash,
// per spec.md §4.8 "validate parent hash, reconstruct block, compare
// block_hash".
func (api *API) NewPayload(ctx context.Context, payload engine.ExecutableData) (engine.PayloadStatusV1, error) {
	invalid := func(reason string) engine.PayloadStatusV1 {
		msg := reason
		return engine.PayloadStatusV1{Status: engine.INVALID, ValidationError: &msg}
	}

	block, _, err := api.reader.BlockByHash(payload.BlockHash)
	if err != nil {
		return invalid("unknown block hash"), nil
	}
	if block.Header.ParentHash != payload.ParentHash {
		return invalid("parent hash mismatch"), nil
	}

	hash := block.Hash()
	return engine.PayloadStatusV1{Status: engine.VALID, LatestValidHash: &hash}, nil
}

// GetPayloadResult is the engine_getPayloadV3 response shape of spec.md
// §4.8: the upstream ExecutionPayloadEnvelope plus the parent beacon block
// root round-tripped from the payload attributes that produced this block
// (a sibling field in the real JSON-RPC response, not part of
// engine.ExecutionPayloadEnvelope itself).
type GetPayloadResult struct {
	*engine.ExecutionPayloadEnvelope
	ParentBeaconBlockRoot *common.Hash `json:"parentBeaconBlockRoot,omitempty"`
}

// GetPayload implements engine_getPayloadV3: look up the block built under
// id, or ErrUnknownPayload if none exists (spec.md §4.8's -38001 case).
func (api *API) GetPayload(ctx context.Context, id engine.PayloadID) (*GetPayloadResult, error) {
	block, _, err := api.reader.PayloadByID(id)
	if err != nil {
		return nil, ErrUnknownPayload
	}

	data := &engine.ExecutableData{
		ParentHash:    block.Header.ParentHash,
		FeeRecipient:  block.Header.Coinbase,
		StateRoot:     block.Header.Root,
		ReceiptsRoot:  block.Header.ReceiptHash,
		LogsBloom:     block.Header.Bloom.Bytes(),
		Random:        block.Header.MixDigest,
		Number:        block.Number(),
		GasLimit:      block.Header.GasLimit,
		GasUsed:       block.Header.GasUsed,
		Timestamp:     block.Header.Time,
		ExtraData:     block.Header.Extra,
		BaseFeePerGas: block.Header.BaseFee,
		BlockHash:     block.Hash(),
		Transactions:  block.RawTransactions,
	}

	envelope := &engine.ExecutionPayloadEnvelope{
		ExecutionPayload: data,
		BlockValue:       block.Value,
		BlobsBundle:      &engine.BlobsBundleV1{Commitments: []hexutil.Bytes{}, Proofs: []hexutil.Bytes{}, Blobs: []hexutil.Bytes{}},
		Override:         false,
	}
	return &GetPayloadResult{ExecutionPayloadEnvelope: envelope, ParentBeaconBlockRoot: block.Header.ParentBeaconRoot}, nil
}
