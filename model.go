// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

// TypeKind is the tag of a CType tagged union. Go has no enum-with-payload
// construct, so CType follows the same shape the teacher uses for its own
// small tagged values (e.g. COMImageFlagsType): a constant-backed Kind field
// plus the payload fields relevant to that kind.
type TypeKind uint8

const (
	KindVoid TypeKind = iota
	KindBool
	KindI8
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindF32
	KindF64
	KindUSize
	KindISize
	KindNamed
	KindPtr
	KindArray
	KindFnPtr
)

func (k TypeKind) String() string {
	switch k {
	case KindVoid:
		return "Void"
	case KindBool:
		return "Bool"
	case KindI8:
		return "I8"
	case KindU8:
		return "U8"
	case KindI16:
		return "I16"
	case KindU16:
		return "U16"
	case KindI32:
		return "I32"
	case KindU32:
		return "U32"
	case KindI64:
		return "I64"
	case KindU64:
		return "U64"
	case KindF32:
		return "F32"
	case KindF64:
		return "F64"
	case KindUSize:
		return "USize"
	case KindISize:
		return "ISize"
	case KindNamed:
		return "Named"
	case KindPtr:
		return "Ptr"
	case KindArray:
		return "Array"
	case KindFnPtr:
		return "FnPtr"
	default:
		return "Unknown"
	}
}

// CallConv is the C calling convention of a function or function-pointer
// type. Anything the front end reports outside this set collapses to
// CallConvCdecl during extraction (spec §4.1, function extraction rule).
type CallConv uint8

const (
	CallConvCdecl CallConv = iota
	CallConvStdcall
	CallConvFastcall
)

func (c CallConv) String() string {
	switch c {
	case CallConvStdcall:
		return "stdcall"
	case CallConvFastcall:
		return "fastcall"
	default:
		return "cdecl"
	}
}

// CType is the language-neutral C type algebra every declaration in the
// model is expressed in terms of. A CType value owns its Pointee/Element
// exclusively: there are no shared subtrees, so a deep copy is a plain
// struct copy plus recursing into the one or two owned children.
type CType struct {
	Kind TypeKind

	// KindNamed
	Name string

	// KindPtr
	Pointee *CType
	IsConst bool

	// KindArray
	Element *CType
	Len     uint64

	// KindFnPtr
	ReturnType *CType
	Params     []CType
	CallConv   CallConv
}

// Primitive type constructors, used pervasively by typemap.go and the
// tests.
func TVoid() CType  { return CType{Kind: KindVoid} }
func TBool() CType  { return CType{Kind: KindBool} }
func TI8() CType    { return CType{Kind: KindI8} }
func TU8() CType    { return CType{Kind: KindU8} }
func TI16() CType   { return CType{Kind: KindI16} }
func TU16() CType   { return CType{Kind: KindU16} }
func TI32() CType   { return CType{Kind: KindI32} }
func TU32() CType   { return CType{Kind: KindU32} }
func TI64() CType   { return CType{Kind: KindI64} }
func TU64() CType   { return CType{Kind: KindU64} }
func TF32() CType   { return CType{Kind: KindF32} }
func TF64() CType   { return CType{Kind: KindF64} }
func TUSize() CType { return CType{Kind: KindUSize} }
func TISize() CType { return CType{Kind: KindISize} }

func TNamed(name string) CType { return CType{Kind: KindNamed, Name: name} }

func TPtr(pointee CType, isConst bool) CType {
	p := pointee
	return CType{Kind: KindPtr, Pointee: &p, IsConst: isConst}
}

func TArray(element CType, length uint64) CType {
	e := element
	return CType{Kind: KindArray, Element: &e, Len: length}
}

func TFnPtr(ret CType, params []CType, cc CallConv) CType {
	r := ret
	return CType{Kind: KindFnPtr, ReturnType: &r, Params: params, CallConv: cc}
}

// IsInteger reports whether k denotes one of the fixed-width or
// pointer-sized integer kinds.
func (k TypeKind) IsInteger() bool {
	switch k {
	case KindI8, KindU8, KindI16, KindU16, KindI32, KindU32, KindI64, KindU64, KindUSize, KindISize:
		return true
	default:
		return false
	}
}

// IsSignedInteger reports whether k is a signed integer kind.
func (k TypeKind) IsSignedInteger() bool {
	switch k {
	case KindI8, KindI16, KindI32, KindI64, KindISize:
		return true
	default:
		return false
	}
}

// FieldDef is one struct member, in declaration order.
type FieldDef struct {
	Name           string
	Type           CType
	BitfieldWidth  *uint32
	BitfieldOffset *uint32
}

// StructDef is a C record (struct) declaration.
type StructDef struct {
	Name   string
	Size   uint32
	Align  uint32
	Fields []FieldDef
}

// EnumVariant is one enumerator, carrying both numeric interpretations the
// front end reports; the emitter picks signed or unsigned encoding based on
// the enum's UnderlyingType.
type EnumVariant struct {
	Name   string
	Signed int64
	Unsigned uint64
}

// EnumDef is a C enum declaration.
type EnumDef struct {
	Name            string
	UnderlyingType  CType
	Variants        []EnumVariant
}

// ParamDef is one function parameter.
type ParamDef struct {
	Name string
	Type CType
}

// FunctionDef is a free-function declaration, bundled by the emitter into
// the partition's Apis class.
type FunctionDef struct {
	Name       string
	ReturnType CType
	Params     []ParamDef
	CallConv   CallConv
}

// TypedefDef is a C typedef. An underlying FnPtr type designates a delegate
// (spec §4.4); anything else is emitted as an opaque single-field struct.
type TypedefDef struct {
	Name           string
	UnderlyingType CType
}

// ConstantValueKind tags the payload of a ConstantValue.
type ConstantValueKind uint8

const (
	ConstantSigned ConstantValueKind = iota
	ConstantUnsigned
	ConstantFloat
)

// ConstantValue is the value half of a ConstantDef, restricted to the
// single-literal #define expansions the extractor accepts (spec §4.1,
// constant extraction rule; §9 "Macro expressions").
type ConstantValue struct {
	Kind     ConstantValueKind
	Signed   int64
	Unsigned uint64
	Float    float64
}

func SignedConstant(v int64) ConstantValue   { return ConstantValue{Kind: ConstantSigned, Signed: v} }
func UnsignedConstant(v uint64) ConstantValue { return ConstantValue{Kind: ConstantUnsigned, Unsigned: v} }
func FloatConstant(v float64) ConstantValue  { return ConstantValue{Kind: ConstantFloat, Float: v} }

// ConstantDef is a #define macro whose expansion was a single literal.
type ConstantDef struct {
	Name  string
	Value ConstantValue
}

// Partition is the extraction unit: one namespace, one native library, and
// the five declaration sequences the extractor populates. Within a
// partition each declared name must be unique (spec §3 invariant); callers
// that build a Partition by hand (tests, the fake provider) are expected to
// uphold that themselves, extract.go enforces it during real extraction.
type Partition struct {
	Namespace string
	Library   string

	Structs   []StructDef
	Enums     []EnumDef
	Functions []FunctionDef
	Typedefs  []TypedefDef
	Constants []ConstantDef
}

// WarningKind classifies a non-fatal Warning (spec §7).
type WarningKind uint8

const (
	WarnUnsupportedType WarningKind = iota
	WarnAnonymousRecord
	WarnMacroNotLiteral
	WarnUnresolvedNamed
)

func (k WarningKind) String() string {
	switch k {
	case WarnUnsupportedType:
		return "unsupported-type"
	case WarnAnonymousRecord:
		return "anonymous-record"
	case WarnMacroNotLiteral:
		return "macro-not-literal"
	case WarnUnresolvedNamed:
		return "unresolved-named"
	default:
		return "unknown"
	}
}

// Warning is a non-fatal diagnostic produced during extraction or emission.
// Decl names the declaration it concerns (empty when not applicable).
type Warning struct {
	Decl    string
	Kind    WarningKind
	Message string
}

func (w Warning) String() string {
	if w.Decl == "" {
		return w.Kind.String() + ": " + w.Message
	}
	return w.Decl + " (" + w.Kind.String() + "): " + w.Message
}
