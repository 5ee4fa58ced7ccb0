// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	json2 "github.com/gorilla/rpc/v2/json2"

	"github.com/luxfi/opmove/internal/actor"
	"github.com/luxfi/opmove/internal/errs"
	"github.com/luxfi/opmove/internal/query"
)

// The JSON-RPC error codes spec.md §6 names. json2.Error (the wire shape
// gorilla/rpc's JSON-RPC 2.0 codec defines) is reused here as the error
// value every handler returns, rather than inventing a parallel type.
const (
	codeInvalidMethod  json2.ErrorCode = -32601
	codeInvalidParams  json2.ErrorCode = -32602
	codeUnknownPayload json2.ErrorCode = -38001
	codeExecutionRevert json2.ErrorCode = 3
	codeInternal        json2.ErrorCode = -1
)

var errMissingParam = errors.New("rpc: missing required parameter")

func errInvalidMethod(method string) *json2.Error {
	return &json2.Error{Code: codeInvalidMethod, Message: fmt.Sprintf("the method %s does not exist", method)}
}

func errInvalidParams(cause error) *json2.Error {
	return &json2.Error{Code: codeInvalidParams, Message: cause.Error()}
}

func errInternal(cause error) *json2.Error {
	return &json2.Error{Code: codeInternal, Message: cause.Error()}
}

func errRevert(data []byte) *json2.Error {
	return &json2.Error{Code: codeExecutionRevert, Message: "execution reverted", Data: hexutil.Encode(data)}
}

// translateError maps a domain error (a *errs.UserError surfaced from a
// simulated call, actor.ErrUnknownPayload, query.ErrUnsupportedSimulation)
// onto the JSON-RPC error codes spec.md §6 names. Anything unrecognized
// becomes the generic internal-channel-failure code.
func translateError(err error) *json2.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, actor.ErrUnknownPayload) {
		return &json2.Error{Code: codeUnknownPayload, Message: err.Error()}
	}
	if errors.Is(err, query.ErrUnsupportedSimulation) || errors.Is(err, errMissingParam) {
		return errInvalidParams(err)
	}
	var userErr *errs.UserError
	if errors.As(err, &userErr) {
		if userErr.Code == errs.CodeL2ContractCallFailure || userErr.Code == errs.CodeDepositFailure {
			return errRevert(userErr.Output)
		}
		return errInvalidParams(userErr)
	}
	return errInternal(err)
}
