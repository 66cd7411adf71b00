// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import "fmt"

// ELEMENT_TYPE_* codes, ECMA-335 §II.23.1.16, the subset this emitter
// writes (spec §4.4 "Signature encoding").
const (
	ElementTypeEnd      byte = 0x00
	ElementTypeVoid     byte = 0x01
	ElementTypeBoolean  byte = 0x02
	ElementTypeChar     byte = 0x03
	ElementTypeI1       byte = 0x04
	ElementTypeU1       byte = 0x05
	ElementTypeI2       byte = 0x06
	ElementTypeU2       byte = 0x07
	ElementTypeI4       byte = 0x08
	ElementTypeU4       byte = 0x09
	ElementTypeI8       byte = 0x0a
	ElementTypeU8       byte = 0x0b
	ElementTypeR4       byte = 0x0c
	ElementTypeR8       byte = 0x0d
	ElementTypePtr      byte = 0x0f
	ElementTypeValueType byte = 0x11
	ElementTypeClass     byte = 0x12
	ElementTypeI         byte = 0x18 // native int
	ElementTypeU         byte = 0x19 // native unsigned int
	ElementTypeFnPtr      byte = 0x1b
	ElementTypeSZArray    byte = 0x1d
	ElementTypeCModReqd   byte = 0x1f
	ElementTypeCModOpt    byte = 0x20
	ElementTypeObject     byte = 0x1c
)

// CallConv bits for a MethodDefSig/MethodRefSig's leading byte, ECMA-335
// §II.23.2.1/§II.15.3.
const (
	SigCallConvDefault   byte = 0x00
	SigCallConvVarargs   byte = 0x05
	SigCallConvC         byte = 0x01
	SigCallConvStdCall   byte = 0x02
	SigCallConvFastCall  byte = 0x04
	SigHasThis           byte = 0x20
)

func sigCallConv(cc CallConv) byte {
	switch cc {
	case CallConvStdcall:
		return SigCallConvStdCall
	case CallConvFastcall:
		return SigCallConvFastCall
	default:
		return SigCallConvC
	}
}

// encodeCompressedUint implements ECMA-335 §II.23.2's compressed unsigned
// integer encoding: 1, 2, or 4 bytes depending on magnitude. Values above
// 0x1FFFFFFF are not representable and are truncated to that maximum,
// matching the format's own ceiling (no blob length or table index this
// emitter produces approaches that size).
func encodeCompressedUint(v uint32) []byte {
	switch {
	case v <= 0x7F:
		return []byte{byte(v)}
	case v <= 0x3FFF:
		return []byte{byte(v>>8) | 0x80, byte(v)}
	default:
		if v > 0x1FFFFFFF {
			v = 0x1FFFFFFF
		}
		return []byte{
			byte(v>>24) | 0xC0,
			byte(v >> 16),
			byte(v >> 8),
			byte(v),
		}
	}
}

// decodeCompressedUint is encodeCompressedUint's inverse, used by
// reader.go and the fuzz round-trip target (fuzz.go).
func decodeCompressedUint(b []byte) (value uint32, consumed int, ok bool) {
	if len(b) == 0 {
		return 0, 0, false
	}
	first := b[0]
	switch {
	case first&0x80 == 0:
		return uint32(first), 1, true
	case first&0xC0 == 0x80:
		if len(b) < 2 {
			return 0, 0, false
		}
		return (uint32(first&0x3F) << 8) | uint32(b[1]), 2, true
	case first&0xE0 == 0xC0:
		if len(b) < 4 {
			return 0, 0, false
		}
		return (uint32(first&0x1F) << 24) | (uint32(b[1]) << 16) | (uint32(b[2]) << 8) | uint32(b[3]), 4, true
	default:
		return 0, 0, false
	}
}

// typeCodec lets signature.go resolve a Named{} type to a TypeDefOrRef
// coded index without importing typeref.go's full Resolver type into every
// call site's signature; emit.go supplies the concrete *typeRefResolver.
type typeCodec interface {
	resolveNamed(partitionNamespace, name string) (coded uint32, isClass bool, warn *Warning)
}

// EncodeType appends ct's signature encoding (spec §4.4) to buf and
// returns the result. partitionNamespace is the emitting partition's own
// namespace, needed to decide TypeDef vs TypeRef when ct is Named.
func EncodeType(buf []byte, ct CType, partitionNamespace string, codec typeCodec) ([]byte, *Warning) {
	switch ct.Kind {
	case KindVoid:
		return append(buf, ElementTypeVoid), nil
	case KindBool:
		return append(buf, ElementTypeBoolean), nil
	case KindI8:
		return append(buf, ElementTypeI1), nil
	case KindU8:
		return append(buf, ElementTypeU1), nil
	case KindI16:
		return append(buf, ElementTypeI2), nil
	case KindU16:
		return append(buf, ElementTypeU2), nil
	case KindI32:
		return append(buf, ElementTypeI4), nil
	case KindU32:
		return append(buf, ElementTypeU4), nil
	case KindI64:
		return append(buf, ElementTypeI8), nil
	case KindU64:
		return append(buf, ElementTypeU8), nil
	case KindF32:
		return append(buf, ElementTypeR4), nil
	case KindF64:
		return append(buf, ElementTypeR8), nil
	case KindISize:
		return append(buf, ElementTypeI), nil
	case KindUSize:
		return append(buf, ElementTypeU), nil
	case KindPtr:
		// A fully ECMA-335-compliant const modifier is a CMOD_OPT carrying
		// a TypeRef token to System.Runtime.CompilerServices.IsConst in an
		// external assembly most binding generators don't import; IsConst
		// is preserved on CType for downstream consumers that want it but
		// is not itself re-emitted as a modifier here.
		buf = append(buf, ElementTypePtr)
		return EncodeType(buf, *ct.Pointee, partitionNamespace, codec)
	case KindArray:
		// spec §4.4: "Array{T, n} encodes as SZARRAY of T with explicit
		// size" — a deliberate simplification of ECMA-335's general ARRAY
		// shape (which carries bounds/lower-bounds vectors) down to a
		// single trailing compressed-uint length after the element type.
		buf = append(buf, ElementTypeSZArray)
		buf, warn := EncodeType(buf, *ct.Element, partitionNamespace, codec)
		if warn != nil {
			return buf, warn
		}
		buf = append(buf, encodeCompressedUint(uint32(ct.Len))...)
		return buf, nil
	case KindNamed:
		coded, isClass, warn := codec.resolveNamed(partitionNamespace, ct.Name)
		tag := ElementTypeValueType
		if isClass {
			tag = ElementTypeClass
		}
		buf = append(buf, tag)
		buf = append(buf, encodeCompressedUint(coded)...)
		return buf, warn
	case KindFnPtr:
		buf = append(buf, ElementTypeFnPtr)
		buf = append(buf, sigCallConv(ct.CallConv))
		buf = append(buf, encodeCompressedUint(uint32(len(ct.Params)))...)
		var warn *Warning
		buf, warn = EncodeType(buf, *ct.ReturnType, partitionNamespace, codec)
		for _, p := range ct.Params {
			var w *Warning
			buf, w = EncodeType(buf, p, partitionNamespace, codec)
			if w != nil {
				warn = w
			}
		}
		return buf, warn
	default:
		return buf, &Warning{Kind: WarnUnsupportedType, Message: fmt.Sprintf("cannot encode type kind %v", ct.Kind)}
	}
}

// EncodeFieldSig builds a FIELD signature (ECMA-335 §II.23.2.4): the
// 0x06 FIELD tag followed by the type.
func EncodeFieldSig(ct CType, partitionNamespace string, codec typeCodec) ([]byte, *Warning) {
	buf := []byte{0x06}
	return EncodeType(buf, ct, partitionNamespace, codec)
}

// EncodeMethodSig builds a MethodDefSig (ECMA-335 §II.23.2.1): calling
// convention byte, param count, return type, then each param type.
func EncodeMethodSig(ret CType, params []CType, cc CallConv, partitionNamespace string, codec typeCodec) ([]byte, *Warning) {
	buf := []byte{sigCallConv(cc)}
	buf = append(buf, encodeCompressedUint(uint32(len(params)))...)
	var warn *Warning
	buf, warn = EncodeType(buf, ret, partitionNamespace, codec)
	for _, p := range params {
		var w *Warning
		buf, w = EncodeType(buf, p, partitionNamespace, codec)
		if w != nil {
			warn = w
		}
	}
	return buf, warn
}

// There is no LocalVarSig encoder here: no method bodies are compiled
// (spec §1 non-goal), and every method this emitter writes is either
// ImplMap-backed or has no IL body, so none carries a local variable
// signature.
