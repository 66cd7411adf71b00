// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package cast

// FakeProvider is a hand-written Provider backed by a literal Decl slice.
// Extractor tests build one directly instead of driving a real parse,
// matching spec §1's framing of the C front end as an external
// collaborator the extractor itself never constructs.
type FakeProvider struct {
	decls []Decl
}

// NewFakeProvider returns a Provider that reports exactly decls, in order.
func NewFakeProvider(decls []Decl) *FakeProvider {
	return &FakeProvider{decls: decls}
}

func (f *FakeProvider) Decls() []Decl { return f.decls }

// BasicType is a trivial Type implementation for the primitive/typedef/
// record/enum kinds that carry no nested Type (everything except Pointer,
// Array, IncompleteArray, Elaborated, FunctionProto).
type BasicType struct {
	K    TypeKind
	N    string
	Cnst bool
}

func (t BasicType) Kind() TypeKind   { return t.K }
func (t BasicType) Name() string     { return t.N }
func (t BasicType) IsConst() bool    { return t.Cnst }
func (t BasicType) Pointee() Type    { return nil }
func (t BasicType) Element() Type    { return nil }
func (t BasicType) ArrayLen() uint64 { return 0 }
func (t BasicType) Inner() Type      { return nil }
func (t BasicType) ReturnType() Type { return nil }
func (t BasicType) ParamTypes() []Type { return nil }
func (t BasicType) CallConv() CallConv { return CallConvCdecl }

// PtrType implements Type for TypePointer.
type PtrType struct {
	Elem  Type
	Cnst  bool
}

func (t PtrType) Kind() TypeKind     { return TypePointer }
func (t PtrType) Name() string       { return "" }
func (t PtrType) IsConst() bool      { return t.Cnst }
func (t PtrType) Pointee() Type      { return t.Elem }
func (t PtrType) Element() Type      { return nil }
func (t PtrType) ArrayLen() uint64   { return 0 }
func (t PtrType) Inner() Type        { return nil }
func (t PtrType) ReturnType() Type   { return nil }
func (t PtrType) ParamTypes() []Type { return nil }
func (t PtrType) CallConv() CallConv { return CallConvCdecl }

// ArrayType implements Type for TypeArray and TypeIncompleteArray.
type ArrayType struct {
	Elem       Type
	Length     uint64
	Incomplete bool
}

func (t ArrayType) Kind() TypeKind {
	if t.Incomplete {
		return TypeIncompleteArray
	}
	return TypeArray
}
func (t ArrayType) Name() string       { return "" }
func (t ArrayType) IsConst() bool      { return false }
func (t ArrayType) Pointee() Type      { return nil }
func (t ArrayType) Element() Type      { return t.Elem }
func (t ArrayType) ArrayLen() uint64   { return t.Length }
func (t ArrayType) Inner() Type        { return nil }
func (t ArrayType) ReturnType() Type   { return nil }
func (t ArrayType) ParamTypes() []Type { return nil }
func (t ArrayType) CallConv() CallConv { return CallConvCdecl }

// ElaboratedType implements Type for TypeElaborated.
type ElaboratedType struct {
	Wrapped Type
}

func (t ElaboratedType) Kind() TypeKind     { return TypeElaborated }
func (t ElaboratedType) Name() string       { return "" }
func (t ElaboratedType) IsConst() bool      { return false }
func (t ElaboratedType) Pointee() Type      { return nil }
func (t ElaboratedType) Element() Type      { return nil }
func (t ElaboratedType) ArrayLen() uint64   { return 0 }
func (t ElaboratedType) Inner() Type        { return t.Wrapped }
func (t ElaboratedType) ReturnType() Type   { return nil }
func (t ElaboratedType) ParamTypes() []Type { return nil }
func (t ElaboratedType) CallConv() CallConv { return CallConvCdecl }

// FuncType implements Type for TypeFunctionProto.
type FuncType struct {
	Ret    Type
	Params []Type
	Conv   CallConv
}

func (t FuncType) Kind() TypeKind     { return TypeFunctionProto }
func (t FuncType) Name() string       { return "" }
func (t FuncType) IsConst() bool      { return false }
func (t FuncType) Pointee() Type      { return nil }
func (t FuncType) Element() Type      { return nil }
func (t FuncType) ArrayLen() uint64   { return 0 }
func (t FuncType) Inner() Type        { return nil }
func (t FuncType) ReturnType() Type   { return t.Ret }
func (t FuncType) ParamTypes() []Type { return t.Params }
func (t FuncType) CallConv() CallConv { return t.Conv }
