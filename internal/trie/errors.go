// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package trie

import "github.com/luxfi/opmove/internal/errs"

// NewStorageFailure wraps a backing-KV or trie-codec failure as the
// InvariantViolation spec.md §4.1 requires: "fails with Storage when the
// backing KV fails" is fatal to the in-flight block build, not a user error.
func NewStorageFailure(cause error) error {
	return errs.NewStorageInvariantViolation(cause)
}
