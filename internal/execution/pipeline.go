// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package execution

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/luxfi/opmove/internal/errs"
	"github.com/luxfi/opmove/internal/evmext"
	"github.com/luxfi/opmove/internal/feemodel"
	"github.com/luxfi/opmove/internal/movevm"
	"github.com/luxfi/opmove/internal/primitives"
	"github.com/luxfi/opmove/internal/trie"
)

// Config bundles the per-block constants the pipeline needs that are not
// carried on the transaction itself.
type Config struct {
	ChainID       uint64
	GasMultiplier uint64
	L1            feemodel.L1Config
	BaseFee       *big.Int

	// Sink is the base-token module's reserve/admin address: the `admin`
	// parameter to the base-token transfer entry point (spec.md §4.4 "EOA
	// transfer"), and the mint destination for a deposited transaction's
	// L1 mint before its EVM transfer log redistributes the funds
	// (spec.md §4.4 "Deposited path").
	Sink primitives.MoveAddress
}

// Pipeline drives one block's worth of transactions through verify ->
// execute -> refund -> finalize (spec.md §4.4). A Pipeline is reused across
// every transaction in a block; Session.ResetGasMeter scopes the gas meter
// to each dispatch.
type Pipeline struct {
	Session   movevm.Session
	Accounts  movevm.Accounts
	BaseToken movevm.BaseToken

	// Store/Resolver are the two views the embedded EVM needs: Resolver
	// for its read path during a call, Store to merge the resulting diff
	// back in once the enclosing Move transaction finalizes successfully
	// (internal/evmext.Apply requires the concrete store, not just the
	// Resolver interface, since it writes tagged trie keys directly).
	Store    *trie.Store
	Resolver *evmext.StoreResolver

	Header evmext.HeaderForExecution
	Cfg    Config
}

// New constructs a Pipeline. chainID is duplicated onto Cfg by the caller
// where relevant (Header carries the EVM-visible block context; Cfg
// carries the MoveVM/base-token-visible fee context).
func New(session movevm.Session, accounts movevm.Accounts, baseToken movevm.BaseToken, store *trie.Store, resolver *evmext.StoreResolver, header evmext.HeaderForExecution, cfg Config) *Pipeline {
	return &Pipeline{Session: session, Accounts: accounts, BaseToken: baseToken, Store: store, Resolver: resolver, Header: header, Cfg: cfg}
}

// ExecuteCanonical runs one signed, non-deposited transaction through the
// full verify/execute/refund/finalize pipeline (spec.md §4.4).
func (p *Pipeline) ExecuteCanonical(ctx context.Context, tx *NormalizedTransaction) (*TransactionExecutionOutcome, error) {
	if tx.ChainIDPresent && tx.ChainID != p.Cfg.ChainID {
		return userErrorOutcome(tx, errs.NewIncorrectChainID()), nil
	}

	intrinsic, err := IntrinsicGas(rawPayloadBytes(tx), tx.Payload.Kind == KindPublishModule)
	if err != nil {
		return userErrorOutcome(tx, errs.NewInsufficientIntrinsicGas()), nil
	}
	if err := p.Session.ResetGasMeter(ctx, tx.GasLimit); err != nil {
		return nil, errs.NewInvariantViolation("execution", "gas meter reset must always succeed", err)
	}
	if intrinsic > tx.GasLimit {
		return userErrorOutcome(tx, errs.NewInsufficientIntrinsicGas()), nil
	}
	if err := p.Session.ChargeGas(ctx, intrinsic); err != nil {
		return userErrorOutcome(tx, errs.NewInsufficientIntrinsicGas()), nil
	}

	l1Fee := feemodel.L1DataFee(p.Cfg.L1, rawPayloadBytes(tx)).ToBig()
	if err := ChargeL1Fee(ctx, p.BaseToken, tx.Sender, l1Fee); err != nil {
		return userErrorOutcome(tx, err.(*errs.UserError)), nil
	}

	baseFee, overflow := uint256.FromBig(p.Cfg.BaseFee)
	if overflow {
		return nil, errs.NewInvariantViolation("execution", "configured base fee does not fit in 256 bits", nil)
	}
	tip, overflow := uint256.FromBig(tx.MaxPriorityFeePerGas)
	if overflow {
		tip = new(uint256.Int).SetAllOne()
	}
	feeCap, overflow := uint256.FromBig(tx.MaxFeePerGas)
	if overflow {
		feeCap = new(uint256.Int).SetAllOne()
	}
	effectiveGasPrice := feemodel.EffectiveGasPrice(tip, feeCap, baseFee)

	l2Ceiling := L2Ceiling(effectiveGasPrice.ToBig(), tx.GasLimit, p.Cfg.GasMultiplier)
	if err := ChargeL2Ceiling(ctx, p.BaseToken, tx.Sender, l2Ceiling); err != nil {
		return userErrorOutcome(tx, err.(*errs.UserError)), nil
	}

	if err := CheckNonce(ctx, p.Accounts, tx.Sender, tx.Nonce); err != nil {
		if ue, ok := err.(*errs.UserError); ok {
			return userErrorOutcome(tx, ue), nil
		}
		return nil, err
	}

	dispatchResult, dispatchErr := p.dispatch(ctx, tx)

	gasUsed := tx.GasLimit - p.Session.GasRemaining(ctx)
	if dispatchErr != nil {
		if ue, ok := dispatchErr.(*errs.UserError); ok {
			outcome := userErrorOutcome(tx, ue)
			outcome.GasUsed = gasUsed
			outcome.EffectiveGasPrice = effectiveGasPrice.ToBig()
			if err := RefundL2(ctx, p.BaseToken, tx.Sender, l2Ceiling, feemodel.L2Fee(effectiveGasPrice, gasUsed, p.Cfg.GasMultiplier).ToBig()); err != nil {
				return nil, err
			}
			return outcome, nil
		}
		return nil, dispatchErr
	}

	used := feemodel.L2Fee(effectiveGasPrice, gasUsed, p.Cfg.GasMultiplier).ToBig()
	if err := RefundL2(ctx, p.BaseToken, tx.Sender, l2Ceiling, used); err != nil {
		return nil, err
	}

	outcome := &TransactionExecutionOutcome{
		Status:            true,
		GasUsed:           gasUsed,
		EffectiveGasPrice: effectiveGasPrice.ToBig(),
		Logs:              dispatchResult.logs,
		Deployment:        dispatchResult.deployment,
		L2ContractReturn:  dispatchResult.l2Return,
		Changes:           dispatchResult.changes,
	}
	if err := applyMoveChanges(p.Store, dispatchResult.changes); err != nil {
		return nil, errs.NewInvariantViolation("execution", "Move session change-set must merge cleanly", err)
	}
	if dispatchResult.evmDiff != nil {
		if err := evmext.Apply(p.Store, p.Resolver, *dispatchResult.evmDiff); err != nil {
			return nil, errs.NewInvariantViolation("execution", "EVM state diff must merge cleanly", err)
		}
	}
	return outcome, nil
}

// ExecuteDeposited runs an L1-originated forced-include transaction through
// the deposited path (spec.md §4.4 "Deposited path", grounded on
// original_source/execution/src/deposited.rs execute_deposited_transaction):
// no signature, no nonce check, no L1/L2 fee charge. The payload is invoked
// directly as an EVM-native call; on revert the transaction fails with
// DepositFailure and no state changes are made. On success, if the deposit
// carries a non-zero mint, the minted amount is credited to the configured
// sink address and then the EVM call's own internal value transfers are
// replayed onto the Move base-token ledger, moving funds from the sink to
// their true recipients.
func (p *Pipeline) ExecuteDeposited(ctx context.Context, tx *DepositedTx) (*TransactionExecutionOutcome, error) {
	sinkEth := primitives.ToEthAddress(p.Cfg.Sink)
	var to common.Address
	if tx.To != nil {
		to = primitives.ToEthAddress(*tx.To)
	}
	value, overflow := uint256.FromBig(valueOrZero(tx.Value))
	if overflow {
		value = new(uint256.Int).SetAllOne()
	}
	mint, overflow := uint256.FromBig(valueOrZero(tx.Mint))
	if overflow {
		mint = new(uint256.Int).SetAllOne()
	}

	result := evmext.CallDeposited(p.Resolver, p.Header, p.Cfg.ChainID, sinkEth, mint, sinkEth, to, value, tx.Data, tx.Gas)
	if result.Reverted {
		return &TransactionExecutionOutcome{
			Status:  false,
			GasUsed: result.GasUsed,
			Err:     errs.NewDepositFailure(result.ReturnData),
		}, nil
	}

	if tx.Mint != nil && tx.Mint.Sign() > 0 {
		if err := p.BaseToken.Mint(ctx, p.Cfg.Sink, tx.Mint); err != nil {
			return nil, errs.NewInvariantViolation("execution", "deposit mint to sink must always succeed", err)
		}
	}
	for _, t := range result.Diff.Transfers {
		recipient := primitives.ToMoveAddress(t.To)
		if err := p.BaseToken.TransferBalance(ctx, p.Cfg.Sink, recipient, t.Amount.ToBig()); err != nil {
			return nil, errs.NewInvariantViolation("execution", "deposit transfer-log replay must always succeed", err)
		}
	}

	if err := evmext.Apply(p.Store, p.Resolver, result.Diff); err != nil {
		return nil, errs.NewInvariantViolation("execution", "EVM state diff must merge cleanly", err)
	}

	return &TransactionExecutionOutcome{
		Status:            true,
		GasUsed:           result.GasUsed,
		EffectiveGasPrice: new(big.Int),
		Logs:              result.Diff.Logs,
	}, nil
}

// applyMoveChanges merges the Move session's own resource/account writes
// into store, the same tagged-and-hashed trie key the MoveVM boundary uses
// for every other resource lookup (primitives.TaggedMoveKey/TrieKey). A nil
// Value means delete, per movevm.Change's own doc comment.
func applyMoveChanges(store *trie.Store, changes []movevm.Change) error {
	for _, c := range changes {
		key := primitives.TrieKey(primitives.TaggedMoveKey(c.Key))
		if c.Value == nil {
			if err := store.Remove(key[:]); err != nil {
				return err
			}
			continue
		}
		if err := store.Insert(key[:], c.Value); err != nil {
			return err
		}
	}
	return nil
}

type dispatchOutput struct {
	logs       []*types.Log
	deployment *Deployment
	l2Return   []byte
	evmDiff    *evmext.Diff
	changes    []movevm.Change
}

// dispatch routes tx to its kind-specific handler and normalizes whatever
// it returns into a UserError: a bare error surfacing from movevm.Session
// (an entry function or script abort, a base-token balance check failing
// inside the Move module) is a failed-receipt condition, not a fatal block
// abort, so it is wrapped as CodeVMRevert unless already one of the two
// recognized error kinds.
func (p *Pipeline) dispatch(ctx context.Context, tx *NormalizedTransaction) (dispatchOutput, error) {
	var out dispatchOutput
	var err error
	switch tx.Payload.Kind {
	case KindEOATransfer:
		out, err = p.dispatchEOATransfer(ctx, tx)
	case KindEntryFunction:
		out, err = p.dispatchEntryFunction(ctx, tx)
	case KindScript:
		out, err = p.dispatchScript(ctx, tx)
	case KindPublishModule:
		out, err = p.dispatchPublishModule(ctx, tx)
	case KindL2Contract:
		out, err = p.dispatchL2Contract(ctx, tx)
	default:
		return dispatchOutput{}, errs.NewUnsupportedTransactionType("unknown payload kind")
	}
	if err == nil {
		return out, nil
	}
	switch err.(type) {
	case *errs.UserError, *errs.InvariantViolation:
		return dispatchOutput{}, err
	default:
		return dispatchOutput{}, errs.NewVMRevert(err)
	}
}

func (p *Pipeline) dispatchEOATransfer(ctx context.Context, tx *NormalizedTransaction) (dispatchOutput, error) {
	var to primitives.MoveAddress
	if tx.To != nil {
		to = *tx.To
	}
	amount := tx.Value
	if amount == nil {
		amount = new(big.Int)
	}
	outcome, err := p.Session.Transfer(ctx, tx.Sender, to, amount.Bytes())
	if err != nil {
		return dispatchOutput{}, err
	}
	return dispatchOutput{logs: ConvertEvents(outcome.Events), changes: outcome.Changes}, nil
}

func (p *Pipeline) dispatchEntryFunction(ctx context.Context, tx *NormalizedTransaction) (dispatchOutput, error) {
	payload := tx.Payload
	declared, err := p.Session.LoadEntryFunction(ctx, payload.ModuleName, payload.Function, payload.TypeArgs)
	if err != nil {
		return dispatchOutput{}, err
	}
	if len(declared) != len(payload.Args) {
		return dispatchOutput{}, errs.NewArgumentCountMismatch()
	}
	for _, tag := range declared {
		if offending, bad := movevm.IsDisallowedEntryType(tag); bad {
			return dispatchOutput{}, errs.NewDisallowedEntryFunctionType(offending)
		}
	}
	outcome, err := p.Session.ExecuteEntryFunction(ctx, tx.Sender, payload.ModuleName, payload.Function, payload.TypeArgs, payload.Args)
	if err != nil {
		return dispatchOutput{}, err
	}
	return dispatchOutput{logs: ConvertEvents(outcome.Events), changes: outcome.Changes}, nil
}

func (p *Pipeline) dispatchScript(ctx context.Context, tx *NormalizedTransaction) (dispatchOutput, error) {
	outcome, err := p.Session.ExecuteScript(ctx, tx.Sender, tx.Payload.Code, tx.Payload.TypeArgs, tx.Payload.Args)
	if err != nil {
		return dispatchOutput{}, err
	}
	return dispatchOutput{logs: ConvertEvents(outcome.Events), changes: outcome.Changes}, nil
}

func (p *Pipeline) dispatchPublishModule(ctx context.Context, tx *NormalizedTransaction) (dispatchOutput, error) {
	moduleID, outcome, err := p.Session.PublishModule(ctx, tx.Sender, tx.Payload.Code)
	if err != nil {
		return dispatchOutput{}, err
	}
	return dispatchOutput{
		logs:       ConvertEvents(outcome.Events),
		deployment: &Deployment{Address: tx.Sender, Module: moduleID},
		changes:    outcome.Changes,
	}, nil
}

// dispatchL2Contract implements spec.md §4.4's L2-contract path: invoke the
// EVM native; on failure burn nothing and fail with L2ContractCallFailure;
// on success burn `value` from the sender (the EVM side already saw the
// debit via evmext's own balance bookkeeping) and capture the EVM logs.
func (p *Pipeline) dispatchL2Contract(ctx context.Context, tx *NormalizedTransaction) (dispatchOutput, error) {
	caller := primitives.ToEthAddress(tx.Sender)
	contract := primitives.ToEthAddress(tx.Payload.Contract)
	value, overflow := uint256.FromBig(valueOrZero(tx.Value))
	if overflow {
		value = new(uint256.Int).SetAllOne()
	}

	result := evmext.Call(p.Resolver, p.Header, p.Cfg.ChainID, caller, contract, value, tx.Payload.Data, p.Session.GasRemaining(ctx))
	if err := p.Session.ChargeGas(ctx, result.GasUsed); err != nil {
		return dispatchOutput{}, errs.NewInvariantViolation("execution", "EVM gas must map onto the Move meter", err)
	}
	if result.Reverted {
		return dispatchOutput{}, errs.NewL2ContractCallFailure(result.ReturnData)
	}

	if valueOrZero(tx.Value).Sign() > 0 {
		if err := p.BaseToken.Charge(ctx, tx.Sender, valueOrZero(tx.Value)); err != nil {
			return dispatchOutput{}, errs.NewInvariantViolation("execution", "EVM-side value debit must always succeed on the Move ledger", err)
		}
	}

	diff := result.Diff
	return dispatchOutput{logs: diff.Logs, l2Return: result.ReturnData, evmDiff: &diff}, nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func rawPayloadBytes(tx *NormalizedTransaction) []byte {
	if tx.RawBytes != nil {
		return tx.RawBytes
	}
	return tx.Payload.Data
}

func userErrorOutcome(tx *NormalizedTransaction, err *errs.UserError) *TransactionExecutionOutcome {
	return &TransactionExecutionOutcome{
		Status:  false,
		GasUsed: tx.GasLimit,
		Err:     err,
	}
}
