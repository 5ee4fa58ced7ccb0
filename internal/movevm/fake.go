// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package movevm

import (
	"context"
	"math/big"
	"sync"

	"github.com/luxfi/opmove/internal/primitives"
)

// FakeVM is a deterministic, in-memory stand-in for the (out of scope)
// MoveVM, sufficient to exercise the transaction pipeline's own logic in
// this repository's tests — grounded on the reference implementation's own
// use of a minimal in-memory test harness around the real VM
// (original_source moved/src/move_execution/tests/framework.rs). It is not
// a Move bytecode interpreter: entry functions/scripts are registered as
// Go closures keyed by name.
type FakeVM struct {
	mu sync.Mutex

	balances map[primitives.MoveAddress]*big.Int
	nonces   map[primitives.MoveAddress]uint64
	gasMeter uint64

	entryFns map[string]func(sender primitives.MoveAddress, args [][]byte) (Outcome, error)
	entryTyp map[string][]TypeTag
	modules  map[primitives.MoveAddress][]string
}

func NewFakeVM() *FakeVM {
	return &FakeVM{
		balances: make(map[primitives.MoveAddress]*big.Int),
		nonces:   make(map[primitives.MoveAddress]uint64),
		entryFns: make(map[string]func(primitives.MoveAddress, [][]byte) (Outcome, error)),
		entryTyp: make(map[string][]TypeTag),
		modules:  make(map[primitives.MoveAddress][]string),
	}
}

// RegisterEntryFunction installs a Go closure as the implementation of
// module::function, with the given declared parameter types (used by the
// allow-set check before the closure ever runs).
func (f *FakeVM) RegisterEntryFunction(module, function string, params []TypeTag, impl func(primitives.MoveAddress, [][]byte) (Outcome, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := module + "::" + function
	f.entryFns[key] = impl
	f.entryTyp[key] = params
}

func (f *FakeVM) LoadEntryFunction(_ context.Context, module, function string, _ []TypeTag) ([]TypeTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := module + "::" + function
	params, ok := f.entryTyp[key]
	if !ok {
		return nil, &ErrUnknownFunction{Module: module, Function: function}
	}
	return params, nil
}

func (f *FakeVM) ExecuteEntryFunction(_ context.Context, sender primitives.MoveAddress, module, function string, _ []TypeTag, args [][]byte) (Outcome, error) {
	f.mu.Lock()
	impl, ok := f.entryFns[module+"::"+function]
	f.mu.Unlock()
	if !ok {
		return Outcome{}, &ErrUnknownFunction{Module: module, Function: function}
	}
	return impl(sender, args)
}

func (f *FakeVM) ExecuteScript(_ context.Context, sender primitives.MoveAddress, _ []byte, _ []TypeTag, args [][]byte) (Outcome, error) {
	// The fake treats every script as a no-op that consumes its arguments,
	// since real script bytecode interpretation is out of scope here.
	_ = sender
	_ = args
	return Outcome{}, nil
}

func (f *FakeVM) PublishModule(_ context.Context, sender primitives.MoveAddress, code []byte) (ModuleID, Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := moduleNameFromCode(code)
	f.modules[sender] = append(f.modules[sender], name)
	return ModuleID{Address: sender, Name: name}, Outcome{}, nil
}

func (f *FakeVM) Transfer(_ context.Context, from, to primitives.MoveAddress, amountBytes []byte) (Outcome, error) {
	amount := new(big.Int).SetBytes(amountBytes)
	if err := f.transferLocked(from, to, amount); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, nil
}

func (f *FakeVM) ChargeGas(_ context.Context, amount uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if amount > f.gasMeter {
		return &ErrInsufficientGas{}
	}
	f.gasMeter -= amount
	return nil
}

func (f *FakeVM) GasRemaining(_ context.Context) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gasMeter
}

// SetGasMeter seeds the gas meter for a fresh per-transaction session; the
// pipeline calls this once before dispatch.
func (f *FakeVM) SetGasMeter(amount uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gasMeter = amount
}

// ResetGasMeter implements movevm.Session.
func (f *FakeVM) ResetGasMeter(_ context.Context, amount uint64) error {
	f.SetGasMeter(amount)
	return nil
}

// --- movevm.Accounts ---

func (f *FakeVM) CreateIfAbsent(_ context.Context, addr primitives.MoveAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nonces[addr]; !ok {
		f.nonces[addr] = 0
		f.balances[addr] = new(big.Int)
	}
	return nil
}

func (f *FakeVM) SequenceNumber(_ context.Context, addr primitives.MoveAddress) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[addr], nil
}

func (f *FakeVM) IncrementSequenceNumber(_ context.Context, addr primitives.MoveAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces[addr]++
	return nil
}

// --- movevm.BaseToken ---

func (f *FakeVM) Balance(_ context.Context, addr primitives.MoveAddress) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[addr]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bal), nil
}

func (f *FakeVM) Charge(_ context.Context, addr primitives.MoveAddress, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[addr]
	if !ok {
		bal = new(big.Int)
	}
	if bal.Cmp(amount) < 0 {
		return &ErrInsufficientBalance{Addr: addr, Requested: amount, Available: bal}
	}
	f.balances[addr] = new(big.Int).Sub(bal, amount)
	return nil
}

func (f *FakeVM) Mint(_ context.Context, addr primitives.MoveAddress, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[addr]
	if !ok {
		bal = new(big.Int)
	}
	f.balances[addr] = new(big.Int).Add(bal, amount)
	return nil
}

func (f *FakeVM) TransferBalance(ctx context.Context, from, to primitives.MoveAddress, amount *big.Int) error {
	return f.transferLocked(from, to, amount)
}

func (f *FakeVM) transferLocked(from, to primitives.MoveAddress, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[from]
	if !ok {
		bal = new(big.Int)
	}
	if bal.Cmp(amount) < 0 {
		return &ErrInsufficientBalance{Addr: from, Requested: amount, Available: bal}
	}
	f.balances[from] = new(big.Int).Sub(bal, amount)
	toBal, ok := f.balances[to]
	if !ok {
		toBal = new(big.Int)
	}
	f.balances[to] = new(big.Int).Add(toBal, amount)
	return nil
}

func (f *FakeVM) Refund(_ context.Context, addr primitives.MoveAddress, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[addr]
	if !ok {
		bal = new(big.Int)
	}
	f.balances[addr] = new(big.Int).Add(bal, amount)
	return nil
}

func moduleNameFromCode(code []byte) string {
	// Deterministic placeholder name: the real deserializer would recover
	// the module's declared name from its header. Good enough for a fake
	// that only needs a stable, content-derived identifier.
	if len(code) == 0 {
		return "module_empty"
	}
	return "module_" + string(rune('a'+int(code[0])%26))
}

type ErrUnknownFunction struct {
	Module, Function string
}

func (e *ErrUnknownFunction) Error() string {
	return "unknown entry function: " + e.Module + "::" + e.Function
}

type ErrInsufficientGas struct{}

func (e *ErrInsufficientGas) Error() string { return "insufficient gas" }
