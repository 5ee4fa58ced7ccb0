// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package actor

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/luxfi/opmove/internal/execution"
)

// PayloadAttributes is the environment a StartBlockBuild job builds a block
// against: spec.md §3 "Payload", extended with the forced-include
// transaction list and gas limit the block builder (§4.6) needs that the
// upstream engine.PayloadAttributes wire type doesn't carry (those two are
// this node's own addition, not part of the consensus-layer's JSON shape).
type PayloadAttributes struct {
	Timestamp             uint64
	PrevRandao            common.Hash
	FeeRecipient          common.Address
	Withdrawals           []*types.Withdrawal
	ParentBeaconBlockRoot *common.Hash

	ForcedInclusionTxs []*execution.DepositedTx
	GasLimit           uint64
}

// DerivePayloadID computes the version-tagged 8-byte payload identifier of
// spec.md §3: the first 8 bytes of SHA-256 over (parent-hash ∥
// be64(timestamp) ∥ prev_randao ∥ fee_recipient ∥ RLP(withdrawals) ∥
// parent_beacon_block_root), with byte 0 overwritten by the payload version
// tag so engine.PayloadID.Version() reports it correctly. Identical inputs
// always derive the identical id, which is what makes forkchoice_updated
// idempotent (spec.md §4.8).
func DerivePayloadID(parentHash common.Hash, attrs PayloadAttributes) (engine.PayloadID, error) {
	h := sha256.New()
	h.Write(parentHash.Bytes())

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], attrs.Timestamp)
	h.Write(ts[:])

	h.Write(attrs.PrevRandao.Bytes())
	h.Write(attrs.FeeRecipient.Bytes())

	withdrawalsRLP, err := rlp.EncodeToBytes(attrs.Withdrawals)
	if err != nil {
		return engine.PayloadID{}, err
	}
	h.Write(withdrawalsRLP)

	if attrs.ParentBeaconBlockRoot != nil {
		h.Write(attrs.ParentBeaconBlockRoot.Bytes())
	}

	sum := h.Sum(nil)
	var id engine.PayloadID
	copy(id[:], sum[:8])
	id[0] = byte(engine.PayloadV3)
	return id, nil
}
