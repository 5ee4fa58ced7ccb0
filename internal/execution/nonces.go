// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package execution

import (
	"context"
	"math"

	"github.com/luxfi/opmove/internal/errs"
	"github.com/luxfi/opmove/internal/movevm"
	"github.com/luxfi/opmove/internal/primitives"
)

// CheckNonce implements spec.md §4.4 verification steps 5-6: create the
// account if absent, require the transaction's nonce to match the current
// sequence number, then increment it. Account creation and the increment
// itself are assumed infallible (movevm.Accounts' contract); failure there
// is an InvariantViolation, not a UserError.
func CheckNonce(ctx context.Context, accounts movevm.Accounts, sender primitives.MoveAddress, txNonce uint64) error {
	if err := accounts.CreateIfAbsent(ctx, sender); err != nil {
		return errs.NewInvariantViolation("execution", "account creation must always succeed", err)
	}

	current, err := accounts.SequenceNumber(ctx, sender)
	if err != nil {
		return errs.NewInvariantViolation("execution", "sequence-number read must always succeed", err)
	}

	if txNonce != current {
		return errs.NewIncorrectNonce(current, txNonce)
	}
	if current == math.MaxUint64 {
		return errs.NewExhaustedAccount()
	}

	if err := accounts.IncrementSequenceNumber(ctx, sender); err != nil {
		return errs.NewInvariantViolation("execution", "sequence-number increment must always succeed", err)
	}
	return nil
}
