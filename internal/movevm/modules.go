// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package movevm

import (
	"context"
	"math/big"

	"github.com/luxfi/opmove/internal/primitives"
)

// Accounts is the capability surface of the nonce module: account
// creation and sequence-number bookkeeping. Per spec.md §7, failures here
// are InvariantViolations (account creation, increment, and the
// get-sequence-number return type are all assumed infallible by
// construction), never UserErrors.
type Accounts interface {
	// CreateIfAbsent lazily materializes addr's account record.
	CreateIfAbsent(ctx context.Context, addr primitives.MoveAddress) error

	// SequenceNumber reads addr's current nonce.
	SequenceNumber(ctx context.Context, addr primitives.MoveAddress) (uint64, error)

	// IncrementSequenceNumber bumps addr's nonce by one.
	IncrementSequenceNumber(ctx context.Context, addr primitives.MoveAddress) error
}

// BaseToken is the capability surface of the base-token module: the only
// entry point for native-token balance mutation outside of an EVM transfer
// event (spec.md glossary). Per spec.md §7, Mint/Transfer/GetBalance/Refund
// failures are InvariantViolations — they must always succeed once the
// caller has already verified sufficient balance; insufficient balance
// itself is surfaced earlier, as a UserError, by the fee-charging call
// sites in internal/execution.
type BaseToken interface {
	Balance(ctx context.Context, addr primitives.MoveAddress) (*big.Int, error)
	Charge(ctx context.Context, addr primitives.MoveAddress, amount *big.Int) error
	Mint(ctx context.Context, addr primitives.MoveAddress, amount *big.Int) error
	TransferBalance(ctx context.Context, from, to primitives.MoveAddress, amount *big.Int) error
	Refund(ctx context.Context, addr primitives.MoveAddress, amount *big.Int) error
}

// ErrInsufficientBalance is returned by BaseToken.Charge when addr cannot
// cover amount; internal/execution maps it to FailedToPayL1Fee /
// FailedToPayL2Fee depending on which charge call produced it.
type ErrInsufficientBalance struct {
	Addr      primitives.MoveAddress
	Requested *big.Int
	Available *big.Int
}

func (e *ErrInsufficientBalance) Error() string {
	return "insufficient balance to charge requested amount"
}
