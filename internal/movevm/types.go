// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package movevm states the narrow capability boundary between the
// transaction pipeline and the MoveVM: the VM and its bytecode verifier are
// out of scope (spec.md §1), so this package only declares the interfaces
// the pipeline drives and the recursive type-tag validation spec.md §4.4
// requires before dispatching an entry function.
package movevm

import (
	"fmt"
	"strings"

	"github.com/luxfi/opmove/internal/primitives"
)

// maxTypeDepth bounds the recursion through nested TypeTags, matching the
// 254-nested-wrapper cap the reference implementation applies to a single
// parameter type (spec.md §9 DESIGN NOTES).
const maxTypeDepth = 254

// Kind enumerates the Move type-tag variants the allow-set for
// entry-function parameters recognizes.
type Kind int

const (
	KindBool Kind = iota
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindU256
	KindAddress
	KindSigner
	KindVector
	KindStruct
)

// StructTag identifies a Move struct type: address::module::name<type_args>.
type StructTag struct {
	Address    primitives.MoveAddress
	Module     string
	Name       string
	TypeParams []TypeTag
}

func (s StructTag) String() string {
	return fmt.Sprintf("%x::%s::%s", s.Address, s.Module, s.Name)
}

// allowedStructs is the allow-set named in spec.md §4.4: String, Object,
// Option, FixedPoint32, FixedPoint64. Allowed types may contain themselves
// transitively (e.g. Option<Object<T>>), so the allow-set is enforced at
// every depth during validation, not just at the top.
var allowedStructs = map[string]bool{
	"0x1::string::String":         true,
	"0x1::object::Object":         true,
	"0x1::option::Option":         true,
	"0x1::fixed_point32::FixedPoint32": true,
	"0x1::fixed_point64::FixedPoint64": true,
}

// TypeTag is a Move type, recursively structured (vector<T>, struct<T...>).
type TypeTag struct {
	Kind   Kind
	Elem   *TypeTag   // set when Kind == KindVector
	Struct *StructTag // set when Kind == KindStruct
}

// IsDisallowedEntryType walks tag, rejecting anything not in the allow-set:
// primitives, signer, vector of allowed, String/Object/Option/FixedPoint32/
// FixedPoint64 struct tags whose own type parameters are, recursively,
// allowed. Returns disallowed == true with offending set to the first
// disallowed node rendered as a string; a tag nested deeper than
// maxTypeDepth is reported as disallowed ("<max type depth exceeded>").
func IsDisallowedEntryType(tag TypeTag) (offending string, disallowed bool) {
	return walkTypeDepth(tag, 0)
}

func walkTypeDepth(tag TypeTag, depth int) (string, bool) {
	if depth > maxTypeDepth {
		return "<max type depth exceeded>", true
	}
	switch tag.Kind {
	case KindBool, KindU8, KindU16, KindU32, KindU64, KindU128, KindU256, KindAddress, KindSigner:
		return "", false
	case KindVector:
		if tag.Elem == nil {
			return "vector<?>", true
		}
		return walkTypeDepth(*tag.Elem, depth+1)
	case KindStruct:
		if tag.Struct == nil {
			return "struct<?>", true
		}
		key := structKey(*tag.Struct)
		if !allowedStructs[key] {
			return tag.Struct.String(), true
		}
		for _, tp := range tag.Struct.TypeParams {
			if off, bad := walkTypeDepth(tp, depth+1); bad {
				return off, true
			}
		}
		return "", false
	default:
		return "<unknown type tag>", true
	}
}

func structKey(s StructTag) string {
	addr := strings.TrimPrefix(fmt.Sprintf("%x", trimLeadingZeros(s.Address)), "0")
	return fmt.Sprintf("0x%s::%s::%s", addr, s.Module, s.Name)
}

// trimLeadingZeros renders a well-known framework address (0x1) the way
// Move source does, so structKey lines up with allowedStructs' "0x1::..."
// keys regardless of how the caller zero-pads the 32-byte address.
func trimLeadingZeros(addr primitives.MoveAddress) []byte {
	i := 0
	for i < len(addr)-1 && addr[i] == 0 {
		i++
	}
	return addr[i:]
}

// ReferenceDepth classifies how a parameter type is wrapped in references:
// not at all, by one outer reference, or by a reference nested inside
// another (spec.md §4.4 "strip outer references, disallow nested
// references"). TypeTag has no reference variant; references are
// described only by this classification.
type ReferenceDepth int

const (
	NotAReference ReferenceDepth = iota
	OuterReference
	NestedReference
)
