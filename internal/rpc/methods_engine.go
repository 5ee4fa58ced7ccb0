// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/beacon/engine"

	"github.com/luxfi/opmove/internal/actor"
)

// registerEngineMethods binds the three Engine-API methods spec.md §4.8/
// §4.9 names to api, each gated behind the JWT bearer check (spec.md §6).
func (s *Server) registerEngineMethods(api *actor.API) {
	s.register("engine_forkchoiceUpdatedV3", true, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		var state engine.ForkchoiceStateV1
		if err := param(params, 0, &state); err != nil {
			return nil, err
		}
		var wireAttrs *engine.PayloadAttributes
		if err := optionalParam(params, 1, &wireAttrs); err != nil {
			return nil, err
		}
		return api.ForkchoiceUpdated(ctx, state, toActorAttributes(wireAttrs))
	})

	s.register("engine_getPayloadV3", true, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		var id engine.PayloadID
		if err := param(params, 0, &id); err != nil {
			return nil, err
		}
		return api.GetPayload(ctx, id)
	})

	s.register("engine_newPayloadV3", true, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		var data engine.ExecutableData
		if err := param(params, 0, &data); err != nil {
			return nil, err
		}
		return api.NewPayload(ctx, data)
	})
}

// toActorAttributes translates the wire-format engine.PayloadAttributes
// (the upstream consensus-layer JSON shape) into this node's own
// actor.PayloadAttributes. ForcedInclusionTxs and GasLimit have no wire
// representation here: forced-include (deposit) transactions are an
// integration-harness concern fed in out of band (spec.md §1), and GasLimit
// defaults to the parent header's when left zero (internal/actor/actor.go
// startBlockBuild).
func toActorAttributes(wire *engine.PayloadAttributes) *actor.PayloadAttributes {
	if wire == nil {
		return nil
	}
	return &actor.PayloadAttributes{
		Timestamp:             wire.Timestamp,
		PrevRandao:            wire.Random,
		FeeRecipient:          wire.SuggestedFeeRecipient,
		Withdrawals:           wire.Withdrawals,
		ParentBeaconBlockRoot: wire.BeaconRoot,
	}
}
