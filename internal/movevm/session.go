// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package movevm

import (
	"context"

	"github.com/luxfi/opmove/internal/primitives"
)

// ModuleID identifies a published Move module by its publishing address and
// module name, returned as a deployment artifact (spec.md §4.4 "Publish
// module").
type ModuleID struct {
	Address primitives.MoveAddress
	Name    string
}

// Change is a single write observed during a session: either a resource/
// module write (Value set) or a deletion (Value nil). The transaction
// pipeline merges these, plus the EVM-native extension's own captured
// diff, into one change-set before committing to the trie (spec.md §4.4
// "Finalize").
type Change struct {
	Key   primitives.StateKey
	Value []byte // nil means delete
}

// Event is a MoveVM contract event. The distinguished EVM-logs event type
// (IsEvmLogEvent) is skipped by execution.ConvertEvents and its inner
// Ethereum logs are not unpacked; EVM logs reach a receipt only through the
// L2-contract path's captured diff. Every other event hashes its canonical
// type string into topic[0] with
// its BCS-serialized data carried as Data (spec.md §4.4 "Finalize").
type Event struct {
	TypeTag StructTag
	Data    []byte
}

// IsEvmLogEvent reports whether e is the distinguished event type the
// EVM-native extension emits to carry captured EVM logs back to the
// pipeline (spec.md §4.2 "Logs emerge through a distinguished event type").
func (e Event) IsEvmLogEvent() bool {
	return e.TypeTag.Module == "evm_logs" && e.TypeTag.Name == "EvmLogsEvent"
}

// Outcome is everything a session produces: accumulated state changes,
// contract events, and gas actually consumed. The pipeline is responsible
// for translating this into a TransactionExecutionOutcome (spec.md §4.4).
type Outcome struct {
	Changes []Change
	Events  []Event
	GasUsed uint64
}

// Session is the narrow capability interface the transaction pipeline
// drives per transaction. A concrete implementation wraps the (out of
// scope) MoveVM itself; internal/movevm/fake.go supplies a deterministic
// stand-in sufficient for this repository's own tests.
type Session interface {
	// LoadEntryFunction resolves a deployed entry function and reports its
	// declared parameter types, so the pipeline can run the allow-set type
	// check (movevm.IsDisallowedEntryType) before deserializing arguments.
	LoadEntryFunction(ctx context.Context, module, function string, typeArgs []TypeTag) ([]TypeTag, error)

	// ExecuteEntryFunction runs the previously loaded entry function with
	// sender as the signer and args as the already-validated,
	// already-deserialized BCS argument bytes (spec.md §4.4 "Entry-function").
	ExecuteEntryFunction(ctx context.Context, sender primitives.MoveAddress, module, function string, typeArgs []TypeTag, args [][]byte) (Outcome, error)

	// ExecuteScript runs a transaction script, injecting sender into every
	// Signer-typed parameter before consuming the caller-provided arguments
	// in order (spec.md §4.4 "Script").
	ExecuteScript(ctx context.Context, sender primitives.MoveAddress, code []byte, typeArgs []TypeTag, args [][]byte) (Outcome, error)

	// PublishModule deserializes and publishes code to sender's address,
	// returning the (address, module-id) deployment artifact (spec.md §4.4
	// "Publish module").
	PublishModule(ctx context.Context, sender primitives.MoveAddress, code []byte) (ModuleID, Outcome, error)

	// Transfer invokes the base-token module's transfer entry point for a
	// plain value-bearing EOA transaction (spec.md §4.4 "EOA transfer").
	Transfer(ctx context.Context, from, to primitives.MoveAddress, amount []byte) (Outcome, error)

	// ChargeGas debits the Move gas meter, returning ErrInsufficientGas
	// (mapped by the caller to errs.CodeInsufficientIntrinsicGas) when the
	// meter is exhausted.
	ChargeGas(ctx context.Context, amount uint64) error

	// GasRemaining reports the Move gas meter's remaining balance, used by
	// the pipeline's refund step (spec.md §4.4 "Refund").
	GasRemaining(ctx context.Context) uint64

	// ResetGasMeter seeds the gas meter to amount at the start of a new
	// transaction's dispatch (the pipeline always calls this exactly once,
	// immediately before the intrinsic-gas charge).
	ResetGasMeter(ctx context.Context, amount uint64) error
}
