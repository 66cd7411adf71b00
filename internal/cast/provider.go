// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package cast defines the neutral contract the extractor drives instead of
// calling a C front end directly (spec §1's "AST provider exposing
// declarations, types, source locations, and macro definition values").
// It mirrors the distinction the reference implementation draws between
// clang's Entity and Type: Decl is a source-level declaration, Type is its
// (possibly nested) C type. The one concrete adapter, ccparse, backs this
// with modernc.org/cc/v4; extractor tests drive a hand-written fake instead.
package cast

// DeclKind tags the declarations a Provider can report.
type DeclKind uint8

const (
	DeclRecord DeclKind = iota
	DeclEnum
	DeclFunction
	DeclTypedef
	DeclMacro
)

// CallConv mirrors winmd.CallConv in neutral terms so this package has no
// dependency on the root package (keeping the adapter boundary one-way).
type CallConv uint8

const (
	CallConvCdecl CallConv = iota
	CallConvStdcall
	CallConvFastcall
	CallConvOther
)

// TypeKind tags the AST-level type kinds the type mapper switches on
// (spec §4.1.1's mapping table, left-hand column).
type TypeKind uint8

const (
	TypeVoid TypeKind = iota
	TypeBool
	TypeSChar
	TypeUChar
	TypeShort
	TypeUShort
	TypeInt
	TypeUInt
	TypeLong
	TypeULong
	TypeLongLong
	TypeULongLong
	TypeFloat
	TypeDouble
	TypePointer
	TypeArray
	TypeIncompleteArray
	TypeElaborated
	TypeTypedef
	TypeRecord
	TypeEnum
	TypeFunctionProto
	TypeFunctionNoProto
)

// Type is an AST-level C type. Implementations are expected to be cheap
// value-ish handles (e.g. wrapping a cc.Type pointer); MapType in
// typemap.go only ever calls the accessor relevant to Kind().
type Type interface {
	Kind() TypeKind

	// Name is valid for TypeTypedef, TypeRecord, TypeEnum: the typedef
	// alias name, or the tag name of the record/enum ("" if anonymous).
	Name() string

	// IsConst is valid for TypePointer's pointee qualification (spec
	// §4.1.1 "pointer(T) -> Ptr{map(T), is_const=T.is_const}" reads the
	// const qualifier off T, so callers apply IsConst() to Pointee()).
	IsConst() bool

	// Pointee is valid for TypePointer.
	Pointee() Type
	// Element is valid for TypeArray and TypeIncompleteArray.
	Element() Type
	// ArrayLen is valid for TypeArray.
	ArrayLen() uint64
	// Inner is valid for TypeElaborated.
	Inner() Type
	// ReturnType and ParamTypes are valid for TypeFunctionProto.
	ReturnType() Type
	ParamTypes() []Type
	// CallConv is valid for TypeFunctionProto.
	CallConv() CallConv
}

// Field is one member of a Decl of kind DeclRecord.
type Field struct {
	Name           string
	Type           Type
	BitfieldWidth  *uint32
	BitfieldOffset *uint32
}

// EnumConst is one enumerator of a Decl of kind DeclEnum.
type EnumConst struct {
	Name     string
	Signed   int64
	Unsigned uint64
}

// Param is one parameter of a Decl of kind DeclFunction.
type Param struct {
	Name string
	Type Type
}

// MacroValueKind tags the literal value a #define expanded to, when the
// front end could determine one (spec §4.1 constant extraction).
type MacroValueKind uint8

const (
	MacroNotLiteral MacroValueKind = iota
	MacroInteger
	MacroFloat
)

// MacroDef is a #define's resolved value, reported only when the expansion
// is a single literal; MacroValueKind distinguishes "not a literal" from
// the two literal shapes the spec recognizes.
type MacroDef struct {
	Name     string
	Kind     MacroValueKind
	Magnitude uint64 // absolute value, for MacroInteger
	Negative  bool    // sign flag reported by the front end, for MacroInteger
	Float     float64 // for MacroFloat
}

// Decl is one top-level declaration the provider surfaces for a
// translation unit, along with enough to run the scope filter (spec §4.1
// "A declaration is emitted iff its primary source location resolves to a
// file listed in the partition's traverse list").
type Decl struct {
	Kind DeclKind
	Name string

	// File is the primary source location's absolute path, used by the
	// scope filter (extract.go's inTraverseSet).
	File string

	// DeclRecord
	Size   uint32
	Align  uint32
	Fields []Field

	// DeclEnum
	UnderlyingType Type
	Variants       []EnumConst

	// DeclFunction
	ReturnType Type
	Params     []Param
	CallConv   CallConv

	// DeclTypedef
	Underlying Type

	// DeclMacro
	Macro MacroDef
}

// Provider is the thin wrapper over the C front end the extractor drives.
// One Provider instance corresponds to one parsed translation unit; per
// spec §5 it is not safe to use concurrently and the driver holds exactly
// one at a time.
type Provider interface {
	// Decls returns every top-level declaration the front end reported for
	// this translation unit, in source order.
	Decls() []Decl
}
