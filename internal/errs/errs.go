// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package errs defines the two top-level error kinds of the execution core:
// UserError (attributable to the request, surfaced in a failed receipt) and
// InvariantViolation (a bug or corruption, fatal to the in-flight block
// build). See spec.md §7.
package errs

import "fmt"

// Code enumerates the UserError variants named in spec.md §7. Kept as a
// small closed set so the RPC layer can map it to a JSON-RPC error code
// without string matching.
type Code int

const (
	CodeUnknown Code = iota
	CodeInvalidSignature
	CodeInvalidPayload
	CodeArgumentCountMismatch
	CodeArgumentDeserialization
	CodeUnsupportedNestedReference
	CodeUnsupportedTransactionType
	CodeUnknownTransactionType
	CodeIncorrectChainID
	CodeIncorrectNonce
	CodeExhaustedAccount
	CodeInsufficientIntrinsicGas
	CodeFailedToPayL1Fee
	CodeFailedToPayL2Fee
	CodeDisallowedEntryFunctionType
	CodeInvalidSigner
	CodeL2ContractCallFailure
	CodeDepositFailure
	CodeScriptArgumentSerialization
	CodeVMRevert
)

// UserError is attributable to the transaction or request: it consumes the
// gas already charged and produces a receipt with status=false, rather than
// aborting the surrounding block build.
type UserError struct {
	Code    Code
	Message string

	// Expected/Given are populated for CodeIncorrectNonce.
	Expected uint64
	Given    uint64

	// Output is populated for CodeL2ContractCallFailure and
	// CodeDepositFailure: the raw bytes returned by the reverting call.
	Output []byte

	// Tag is populated for CodeDisallowedEntryFunctionType: the offending
	// Move type tag, rendered as a string.
	Tag string
}

func (e *UserError) Error() string {
	switch e.Code {
	case CodeIncorrectNonce:
		return fmt.Sprintf("incorrect nonce: expected %d, given %d", e.Expected, e.Given)
	case CodeDisallowedEntryFunctionType:
		return fmt.Sprintf("disallowed entry-function argument type: %s", e.Tag)
	default:
		return e.Message
	}
}

func NewIncorrectNonce(expected, given uint64) *UserError {
	return &UserError{Code: CodeIncorrectNonce, Expected: expected, Given: given}
}

func NewExhaustedAccount() *UserError {
	return &UserError{Code: CodeExhaustedAccount, Message: "account nonce exhausted at u64::MAX"}
}

func NewInsufficientIntrinsicGas() *UserError {
	return &UserError{Code: CodeInsufficientIntrinsicGas, Message: "insufficient intrinsic gas"}
}

func NewFailedToPayL1Fee(cause error) *UserError {
	return &UserError{Code: CodeFailedToPayL1Fee, Message: fmt.Sprintf("failed to pay L1 fee: %v", cause)}
}

func NewFailedToPayL2Fee(cause error) *UserError {
	return &UserError{Code: CodeFailedToPayL2Fee, Message: fmt.Sprintf("failed to pay L2 fee: %v", cause)}
}

func NewIncorrectChainID() *UserError {
	return &UserError{Code: CodeIncorrectChainID, Message: "incorrect chain id"}
}

func NewDisallowedEntryFunctionType(tag string) *UserError {
	return &UserError{Code: CodeDisallowedEntryFunctionType, Tag: tag}
}

func NewInvalidSigner() *UserError {
	return &UserError{Code: CodeInvalidSigner, Message: "signer argument does not match transaction sender"}
}

func NewUnsupportedNestedReference() *UserError {
	return &UserError{Code: CodeUnsupportedNestedReference, Message: "nested references are not supported"}
}

func NewArgumentCountMismatch() *UserError {
	return &UserError{Code: CodeArgumentCountMismatch, Message: "argument count mismatch"}
}

func NewL2ContractCallFailure(output []byte) *UserError {
	return &UserError{Code: CodeL2ContractCallFailure, Message: "L2 contract call reverted", Output: output}
}

func NewDepositFailure(output []byte) *UserError {
	return &UserError{Code: CodeDepositFailure, Message: "deposit transaction's EVM call reverted", Output: output}
}

func NewUnsupportedTransactionType(kind string) *UserError {
	return &UserError{Code: CodeUnsupportedTransactionType, Message: fmt.Sprintf("unsupported transaction type: %s", kind)}
}

func NewInvalidPayload(cause error) *UserError {
	return &UserError{Code: CodeInvalidPayload, Message: fmt.Sprintf("invalid payload: %v", cause)}
}

func NewInvalidSignature() *UserError {
	return &UserError{Code: CodeInvalidSignature, Message: "invalid transaction signature"}
}

// NewVMRevert wraps an abort surfaced by the Move session itself (an entry
// function or script aborting, a failed native borrow, a base-token
// transfer rejected for insufficient funds) into the same failed-receipt
// shape as every other UserError, rather than aborting the block build.
func NewVMRevert(cause error) *UserError {
	return &UserError{Code: CodeVMRevert, Message: fmt.Sprintf("move execution aborted: %v", cause)}
}

// InvariantViolation signals a bug or corruption. The command actor logs it
// and aborts the current block build without persisting partial state.
type InvariantViolation struct {
	Component string
	Message   string
	Cause     error
}

func (e *InvariantViolation) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invariant violation in %s: %s: %v", e.Component, e.Message, e.Cause)
	}
	return fmt.Sprintf("invariant violation in %s: %s", e.Component, e.Message)
}

func (e *InvariantViolation) Unwrap() error { return e.Cause }

func NewInvariantViolation(component, message string, cause error) *InvariantViolation {
	return &InvariantViolation{Component: component, Message: message, Cause: cause}
}

// NewMempoolInvariantViolation is raised when the mempool is handed a
// transaction kind it can never legally receive (a deposited transaction).
func NewMempoolInvariantViolation(reason string) *InvariantViolation {
	return NewInvariantViolation("mempool", reason, nil)
}

// NewStorageInvariantViolation wraps a backing-KV failure. Per spec §4.1,
// trie Get failures are not recoverable user errors.
func NewStorageInvariantViolation(cause error) *InvariantViolation {
	return NewInvariantViolation("storage", "backing key-value store failed", cause)
}
