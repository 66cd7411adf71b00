// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bindscrape/winmd/internal/cast"
)

func TestMapType_Primitives(t *testing.T) {
	tests := []struct {
		name string
		in   cast.Type
		want CType
	}{
		{"void", cast.BasicType{K: cast.TypeVoid}, TVoid()},
		{"bool", cast.BasicType{K: cast.TypeBool}, TBool()},
		{"schar", cast.BasicType{K: cast.TypeSChar}, TI8()},
		{"uchar", cast.BasicType{K: cast.TypeUChar}, TU8()},
		{"short", cast.BasicType{K: cast.TypeShort}, TI16()},
		{"ushort", cast.BasicType{K: cast.TypeUShort}, TU16()},
		{"int", cast.BasicType{K: cast.TypeInt}, TI32()},
		{"uint", cast.BasicType{K: cast.TypeUInt}, TU32()},
		{"long", cast.BasicType{K: cast.TypeLong}, TI32()},
		{"ulong", cast.BasicType{K: cast.TypeULong}, TU32()},
		{"longlong", cast.BasicType{K: cast.TypeLongLong}, TI64()},
		{"ulonglong", cast.BasicType{K: cast.TypeULongLong}, TU64()},
		{"float", cast.BasicType{K: cast.TypeFloat}, TF32()},
		{"double", cast.BasicType{K: cast.TypeDouble}, TF64()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MapType(tc.in)
			if err != nil {
				t.Fatalf("MapType: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestMapType_WellKnownTypedef covers spec §4.1.1's fixed-width typedef
// shortcuts: int8_t etc. map to a primitive CType, not Named{}.
func TestMapType_WellKnownTypedef(t *testing.T) {
	tests := []struct {
		name string
		want CType
	}{
		{"int8_t", TI8()},
		{"uint8_t", TU8()},
		{"int32_t", TI32()},
		{"uint64_t", TU64()},
		{"size_t", TUSize()},
		{"intptr_t", TISize()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MapType(cast.BasicType{K: cast.TypeTypedef, N: tc.name})
			if err != nil {
				t.Fatalf("MapType: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMapType_UnknownTypedefIsNamed(t *testing.T) {
	got, err := MapType(cast.BasicType{K: cast.TypeTypedef, N: "HWND"})
	if err != nil {
		t.Fatalf("MapType: %v", err)
	}
	if diff := cmp.Diff(TNamed("HWND"), got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMapType_Pointer(t *testing.T) {
	in := cast.PtrType{Elem: cast.BasicType{K: cast.TypeSChar}, Cnst: true}
	got, err := MapType(in)
	if err != nil {
		t.Fatalf("MapType: %v", err)
	}
	want := TPtr(TI8(), true)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMapType_Array(t *testing.T) {
	in := cast.ArrayType{Elem: cast.BasicType{K: cast.TypeInt}, Length: 4}
	got, err := MapType(in)
	if err != nil {
		t.Fatalf("MapType: %v", err)
	}
	want := TArray(TI32(), 4)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

// TestMapType_IncompleteArrayDecaysToPointer covers spec §4.1.1's rule that
// T[] (an incomplete array, e.g. a function parameter) maps the same as T*.
func TestMapType_IncompleteArrayDecaysToPointer(t *testing.T) {
	in := cast.ArrayType{Elem: cast.BasicType{K: cast.TypeInt}, Incomplete: true}
	got, err := MapType(in)
	if err != nil {
		t.Fatalf("MapType: %v", err)
	}
	want := TPtr(TI32(), false)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMapType_Elaborated(t *testing.T) {
	in := cast.ElaboratedType{Wrapped: cast.BasicType{K: cast.TypeRecord, N: "Rect"}}
	got, err := MapType(in)
	if err != nil {
		t.Fatalf("MapType: %v", err)
	}
	if diff := cmp.Diff(TNamed("Rect"), got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMapType_AnonymousRecordFails(t *testing.T) {
	_, err := MapType(cast.BasicType{K: cast.TypeRecord, N: ""})
	if err == nil {
		t.Fatal("expected error for anonymous record")
	}
}

func TestMapType_AnonymousEnumFails(t *testing.T) {
	_, err := MapType(cast.BasicType{K: cast.TypeEnum, N: ""})
	if err == nil {
		t.Fatal("expected error for anonymous enum")
	}
}

func TestMapType_FunctionProto(t *testing.T) {
	in := cast.FuncType{
		Ret:    cast.BasicType{K: cast.TypeInt},
		Params: []cast.Type{cast.BasicType{K: cast.TypeVoid}},
		Conv:   cast.CallConvStdcall,
	}
	got, err := MapType(in)
	if err != nil {
		t.Fatalf("MapType: %v", err)
	}
	want := TFnPtr(TI32(), []CType{TVoid()}, CallConvStdcall)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMapCallConv(t *testing.T) {
	tests := []struct {
		in   cast.CallConv
		want CallConv
	}{
		{cast.CallConvCdecl, CallConvCdecl},
		{cast.CallConvStdcall, CallConvStdcall},
		{cast.CallConvFastcall, CallConvFastcall},
		{cast.CallConvOther, CallConvCdecl},
	}
	for _, tc := range tests {
		if got := MapCallConv(tc.in); got != tc.want {
			t.Errorf("MapCallConv(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
