// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package execution

import (
	"context"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/luxfi/opmove/internal/errs"
	"github.com/luxfi/opmove/internal/feemodel"
	"github.com/luxfi/opmove/internal/movevm"
	"github.com/luxfi/opmove/internal/primitives"
)

// ChargeL1Fee implements spec.md §4.4 verification step 3.
func ChargeL1Fee(ctx context.Context, baseToken movevm.BaseToken, sender primitives.MoveAddress, amount *big.Int) error {
	if err := baseToken.Charge(ctx, sender, amount); err != nil {
		return errs.NewFailedToPayL1Fee(err)
	}
	return nil
}

// ChargeL2Ceiling implements spec.md §4.4 verification step 4: charge the
// worst-case `gas_limit * effective_gas_price * multiplier` cost up front;
// RefundL2 gives back the unused portion once actual usage is known.
func ChargeL2Ceiling(ctx context.Context, baseToken movevm.BaseToken, sender primitives.MoveAddress, ceiling *big.Int) error {
	if err := baseToken.Charge(ctx, sender, ceiling); err != nil {
		return errs.NewFailedToPayL2Fee(err)
	}
	return nil
}

// RefundL2 implements spec.md §4.4 "Refund": `l2_ceiling - l2_used` must
// always be returned to the sender; failure here is an InvariantViolation,
// never a UserError, since the ceiling was already taken out of the
// sender's balance.
func RefundL2(ctx context.Context, baseToken movevm.BaseToken, sender primitives.MoveAddress, ceiling, used *big.Int) error {
	refund := new(big.Int).Sub(ceiling, used)
	if refund.Sign() <= 0 {
		return nil
	}
	if err := baseToken.Refund(ctx, sender, refund); err != nil {
		return errs.NewInvariantViolation("execution", "gas refund must always succeed", err)
	}
	return nil
}

// L2Ceiling computes the worst-case L2 cost a transaction must pre-pay:
// gas_limit * effective_gas_price * gas_multiplier (spec.md §4.3 "L2 fee",
// evaluated at the transaction's own GasLimit rather than actual usage).
func L2Ceiling(effectiveGasPrice *big.Int, gasLimit, gasMultiplier uint64) *big.Int {
	price, overflow := uint256.FromBig(effectiveGasPrice)
	if overflow {
		price = new(uint256.Int).SetAllOne()
	}
	fee := feemodel.L2Fee(price, gasLimit, gasMultiplier)
	return fee.ToBig()
}
