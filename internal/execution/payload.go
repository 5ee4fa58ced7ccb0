// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package execution

import (
	"encoding/binary"
	"fmt"

	"github.com/luxfi/opmove/internal/movevm"
	"github.com/luxfi/opmove/internal/primitives"
)

// Payload is the decoded call-data body following the leading type byte
// spec.md §4.4 examines to classify a canonical transaction. Which fields
// are populated depends on Kind.
type Payload struct {
	Kind Kind

	// KindEntryFunction
	Module   primitives.MoveAddress
	ModuleName string
	Function string
	TypeArgs []movevm.TypeTag
	Args     [][]byte

	// KindScript
	Code []byte

	// KindPublishModule reuses Code for the module bytecode.

	// KindL2Contract
	Contract primitives.MoveAddress
	Data     []byte
}

// DecodePayload splits raw call data into its leading type byte and the
// kind-specific body (spec.md §4.4: "by examining the transaction's
// call-data after the type byte"). An empty payload with Kind ==
// KindEOATransfer carries no further structure.
func DecodePayload(raw []byte) (Payload, error) {
	if len(raw) == 0 {
		return Payload{Kind: KindEOATransfer}, nil
	}
	kind := Kind(raw[0])
	body := raw[1:]
	switch kind {
	case KindEOATransfer:
		return Payload{Kind: KindEOATransfer}, nil
	case KindEntryFunction:
		return decodeEntryFunction(body)
	case KindScript:
		return decodeScript(body)
	case KindPublishModule:
		return Payload{Kind: KindPublishModule, Code: append([]byte(nil), body...)}, nil
	case KindL2Contract:
		return decodeL2Contract(body)
	default:
		return Payload{}, fmt.Errorf("unknown payload kind byte %d", raw[0])
	}
}

type byteReader struct {
	buf []byte
}

func (r *byteReader) u8() (byte, error) {
	if len(r.buf) < 1 {
		return 0, fmt.Errorf("payload truncated reading u8")
	}
	v := r.buf[0]
	r.buf = r.buf[1:]
	return v, nil
}

func (r *byteReader) u16() (uint16, error) {
	if len(r.buf) < 2 {
		return 0, fmt.Errorf("payload truncated reading u16")
	}
	v := binary.BigEndian.Uint16(r.buf)
	r.buf = r.buf[2:]
	return v, nil
}

func (r *byteReader) u32() (uint32, error) {
	if len(r.buf) < 4 {
		return 0, fmt.Errorf("payload truncated reading u32")
	}
	v := binary.BigEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	return v, nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if len(r.buf) < n {
		return nil, fmt.Errorf("payload truncated reading %d bytes", n)
	}
	v := r.buf[:n]
	r.buf = r.buf[n:]
	return v, nil
}

func (r *byteReader) string16() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *byteReader) blob32() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	return r.bytes(int(n))
}

func (r *byteReader) address() (primitives.MoveAddress, error) {
	b, err := r.bytes(32)
	if err != nil {
		return primitives.MoveAddress{}, err
	}
	var out primitives.MoveAddress
	copy(out[:], b)
	return out, nil
}

func (r *byteReader) typeTag() (movevm.TypeTag, error) {
	kindByte, err := r.u8()
	if err != nil {
		return movevm.TypeTag{}, err
	}
	kind := movevm.Kind(kindByte)
	switch kind {
	case movevm.KindBool, movevm.KindU8, movevm.KindU16, movevm.KindU32, movevm.KindU64,
		movevm.KindU128, movevm.KindU256, movevm.KindAddress, movevm.KindSigner:
		return movevm.TypeTag{Kind: kind}, nil
	case movevm.KindVector:
		elem, err := r.typeTag()
		if err != nil {
			return movevm.TypeTag{}, err
		}
		return movevm.TypeTag{Kind: kind, Elem: &elem}, nil
	case movevm.KindStruct:
		addr, err := r.address()
		if err != nil {
			return movevm.TypeTag{}, err
		}
		module, err := r.string16()
		if err != nil {
			return movevm.TypeTag{}, err
		}
		name, err := r.string16()
		if err != nil {
			return movevm.TypeTag{}, err
		}
		count, err := r.u8()
		if err != nil {
			return movevm.TypeTag{}, err
		}
		params := make([]movevm.TypeTag, 0, count)
		for i := byte(0); i < count; i++ {
			tp, err := r.typeTag()
			if err != nil {
				return movevm.TypeTag{}, err
			}
			params = append(params, tp)
		}
		return movevm.TypeTag{Kind: kind, Struct: &movevm.StructTag{
			Address: addr, Module: module, Name: name, TypeParams: params,
		}}, nil
	default:
		return movevm.TypeTag{}, fmt.Errorf("unknown type tag kind byte %d", kindByte)
	}
}

func decodeEntryFunction(body []byte) (Payload, error) {
	r := &byteReader{buf: body}
	addr, err := r.address()
	if err != nil {
		return Payload{}, err
	}
	module, err := r.string16()
	if err != nil {
		return Payload{}, err
	}
	function, err := r.string16()
	if err != nil {
		return Payload{}, err
	}
	typeArgCount, err := r.u8()
	if err != nil {
		return Payload{}, err
	}
	typeArgs := make([]movevm.TypeTag, 0, typeArgCount)
	for i := byte(0); i < typeArgCount; i++ {
		tag, err := r.typeTag()
		if err != nil {
			return Payload{}, err
		}
		typeArgs = append(typeArgs, tag)
	}
	argCount, err := r.u16()
	if err != nil {
		return Payload{}, err
	}
	args := make([][]byte, 0, argCount)
	for i := uint16(0); i < argCount; i++ {
		arg, err := r.blob32()
		if err != nil {
			return Payload{}, err
		}
		args = append(args, append([]byte(nil), arg...))
	}
	return Payload{
		Kind: KindEntryFunction, Module: addr, ModuleName: module,
		Function: function, TypeArgs: typeArgs, Args: args,
	}, nil
}

func decodeScript(body []byte) (Payload, error) {
	r := &byteReader{buf: body}
	code, err := r.blob32()
	if err != nil {
		return Payload{}, err
	}
	typeArgCount, err := r.u8()
	if err != nil {
		return Payload{}, err
	}
	typeArgs := make([]movevm.TypeTag, 0, typeArgCount)
	for i := byte(0); i < typeArgCount; i++ {
		tag, err := r.typeTag()
		if err != nil {
			return Payload{}, err
		}
		typeArgs = append(typeArgs, tag)
	}
	argCount, err := r.u16()
	if err != nil {
		return Payload{}, err
	}
	args := make([][]byte, 0, argCount)
	for i := uint16(0); i < argCount; i++ {
		arg, err := r.blob32()
		if err != nil {
			return Payload{}, err
		}
		args = append(args, append([]byte(nil), arg...))
	}
	return Payload{Kind: KindScript, Code: append([]byte(nil), code...), TypeArgs: typeArgs, Args: args}, nil
}

func decodeL2Contract(body []byte) (Payload, error) {
	r := &byteReader{buf: body}
	contract, err := r.address()
	if err != nil {
		return Payload{}, err
	}
	return Payload{Kind: KindL2Contract, Contract: contract, Data: append([]byte(nil), r.buf...)}, nil
}
