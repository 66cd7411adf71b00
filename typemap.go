// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"fmt"

	"github.com/bindscrape/winmd/internal/cast"
)

// wellKnownTypedefs shortcuts C99 fixed-width integer typedef names to a
// primitive CType instead of a Named{} reference, per spec §4.1.1.
var wellKnownTypedefs = map[string]TypeKind{
	"int8_t":    KindI8,
	"__int8":    KindI8,
	"uint8_t":   KindU8,
	"int16_t":   KindI16,
	"__int16":   KindI16,
	"uint16_t":  KindU16,
	"int32_t":   KindI32,
	"__int32":   KindI32,
	"uint32_t":  KindU32,
	"int64_t":   KindI64,
	"__int64":   KindI64,
	"uint64_t":  KindU64,
	"size_t":    KindUSize,
	"uintptr_t": KindUSize,
	"ssize_t":   KindISize,
	"intptr_t":  KindISize,
	"ptrdiff_t": KindISize,
}

// errUnsupportedType is returned by MapType when an AST type kind has no
// CType translation (spec §4.1.1 "anything else"). Callers turn this into a
// Warning and skip the enclosing declaration, never a fatal error.
var errUnsupportedType = fmt.Errorf("unsupported type")

// MapCallConv collapses a cast.CallConv to the three conventions the model
// supports, per spec §4.1 "Calling conventions outside {Cdecl, Stdcall,
// Fastcall} collapse to Cdecl".
func MapCallConv(cc cast.CallConv) CallConv {
	switch cc {
	case cast.CallConvStdcall:
		return CallConvStdcall
	case cast.CallConvFastcall:
		return CallConvFastcall
	default:
		return CallConvCdecl
	}
}

// MapType translates an AST type (spec §4.1.1's mapping table) into a
// CType. It returns errUnsupportedType (wrapped with the offending kind)
// when the AST type has no translation; callers treat this as non-fatal.
func MapType(t cast.Type) (CType, error) {
	switch t.Kind() {
	case cast.TypeVoid:
		return TVoid(), nil
	case cast.TypeBool:
		return TBool(), nil
	case cast.TypeSChar:
		return TI8(), nil
	case cast.TypeUChar:
		return TU8(), nil
	case cast.TypeShort:
		return TI16(), nil
	case cast.TypeUShort:
		return TU16(), nil
	case cast.TypeInt:
		return TI32(), nil
	case cast.TypeUInt:
		return TU32(), nil
	case cast.TypeLong:
		// Windows-ABI width, not host: a C `long` maps to I32 regardless of
		// the extracting host's LP64 convention (spec §4.1.1).
		return TI32(), nil
	case cast.TypeULong:
		return TU32(), nil
	case cast.TypeLongLong:
		return TI64(), nil
	case cast.TypeULongLong:
		return TU64(), nil
	case cast.TypeFloat:
		return TF32(), nil
	case cast.TypeDouble:
		return TF64(), nil
	case cast.TypePointer:
		pointee, err := MapType(t.Pointee())
		if err != nil {
			return CType{}, err
		}
		return TPtr(pointee, t.IsConst()), nil
	case cast.TypeArray:
		elem, err := MapType(t.Element())
		if err != nil {
			return CType{}, err
		}
		return TArray(elem, t.ArrayLen()), nil
	case cast.TypeIncompleteArray:
		elem, err := MapType(t.Element())
		if err != nil {
			return CType{}, err
		}
		return TPtr(elem, false), nil
	case cast.TypeElaborated:
		return MapType(t.Inner())
	case cast.TypeTypedef:
		name := t.Name()
		if kind, ok := wellKnownTypedefs[name]; ok {
			return CType{Kind: kind}, nil
		}
		return TNamed(name), nil
	case cast.TypeRecord:
		if t.Name() == "" {
			return CType{}, fmt.Errorf("%w: anonymous record", errUnsupportedType)
		}
		return TNamed(t.Name()), nil
	case cast.TypeEnum:
		if t.Name() == "" {
			return CType{}, fmt.Errorf("%w: anonymous enum", errUnsupportedType)
		}
		return TNamed(t.Name()), nil
	case cast.TypeFunctionProto:
		return mapFunctionType(t)
	case cast.TypeFunctionNoProto:
		return TFnPtr(TVoid(), nil, CallConvCdecl), nil
	default:
		return CType{}, fmt.Errorf("%w: %v", errUnsupportedType, t.Kind())
	}
}

func mapFunctionType(t cast.Type) (CType, error) {
	ret, err := MapType(t.ReturnType())
	if err != nil {
		return CType{}, err
	}
	params := make([]CType, 0, len(t.ParamTypes()))
	for _, p := range t.ParamTypes() {
		pt, err := MapType(p)
		if err != nil {
			return CType{}, err
		}
		params = append(params, pt)
	}
	return TFnPtr(ret, params, MapCallConv(t.CallConv())), nil
}
