// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"bytes"
	"testing"
)

func TestEncodeCompressedUint(t *testing.T) {
	tests := []struct {
		in   uint32
		want []byte
	}{
		{0x00, []byte{0x00}},
		{0x03, []byte{0x03}},
		{0x7F, []byte{0x7F}},
		{0x80, []byte{0x80, 0x80}},
		{0x3FFF, []byte{0xBF, 0xFF}},
		{0x4000, []byte{0xC0, 0x00, 0x40, 0x00}},
		{0x1FFFFFFF, []byte{0xDF, 0xFF, 0xFF, 0xFF}},
	}
	for _, tc := range tests {
		got := encodeCompressedUint(tc.in)
		if !bytes.Equal(got, tc.want) {
			t.Errorf("encodeCompressedUint(0x%x) = % x, want % x", tc.in, got, tc.want)
		}
		v, n, ok := decodeCompressedUint(got)
		if !ok || v != tc.in || n != len(got) {
			t.Errorf("decodeCompressedUint(% x) = %d, %d, %v; want %d, %d, true", got, v, n, ok, tc.in, len(got))
		}
	}
}

func TestDecodeCompressedUint_Truncated(t *testing.T) {
	tests := [][]byte{
		{},
		{0x80},       // needs 2 bytes
		{0xC0, 0x00}, // needs 4 bytes
	}
	for _, tc := range tests {
		if _, _, ok := decodeCompressedUint(tc); ok {
			t.Errorf("decodeCompressedUint(% x) should fail on truncated input", tc)
		}
	}
}

// fakeCodec is a typeCodec stub for signature tests: every Named{} type
// resolves to a fixed coded index, configurable as a value type or class.
type fakeCodec struct {
	coded   uint32
	isClass bool
}

func (f fakeCodec) resolveNamed(partitionNamespace, name string) (uint32, bool, *Warning) {
	return f.coded, f.isClass, nil
}

func TestEncodeType_Primitives(t *testing.T) {
	tests := []struct {
		name string
		in   CType
		want byte
	}{
		{"void", TVoid(), ElementTypeVoid},
		{"bool", TBool(), ElementTypeBoolean},
		{"i8", TI8(), ElementTypeI1},
		{"u8", TU8(), ElementTypeU1},
		{"i16", TI16(), ElementTypeI2},
		{"u16", TU16(), ElementTypeU2},
		{"i32", TI32(), ElementTypeI4},
		{"u32", TU32(), ElementTypeU4},
		{"i64", TI64(), ElementTypeI8},
		{"u64", TU64(), ElementTypeU8},
		{"f32", TF32(), ElementTypeR4},
		{"f64", TF64(), ElementTypeR8},
		{"isize", TISize(), ElementTypeI},
		{"usize", TUSize(), ElementTypeU},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf, warn := EncodeType(nil, tc.in, "NS", fakeCodec{})
			if warn != nil {
				t.Fatalf("unexpected warning: %v", warn)
			}
			if !bytes.Equal(buf, []byte{tc.want}) {
				t.Errorf("EncodeType(%v) = % x, want % x", tc.in, buf, []byte{tc.want})
			}
		})
	}
}

func TestEncodeType_Pointer(t *testing.T) {
	buf, warn := EncodeType(nil, TPtr(TI32(), false), "NS", fakeCodec{})
	if warn != nil {
		t.Fatalf("unexpected warning: %v", warn)
	}
	want := []byte{ElementTypePtr, ElementTypeI4}
	if !bytes.Equal(buf, want) {
		t.Errorf("EncodeType(Ptr{I32}) = % x, want % x", buf, want)
	}
}

func TestEncodeType_Array(t *testing.T) {
	buf, warn := EncodeType(nil, TArray(TU8(), 16), "NS", fakeCodec{})
	if warn != nil {
		t.Fatalf("unexpected warning: %v", warn)
	}
	want := append([]byte{ElementTypeSZArray, ElementTypeU1}, encodeCompressedUint(16)...)
	if !bytes.Equal(buf, want) {
		t.Errorf("EncodeType(Array{U8,16}) = % x, want % x", buf, want)
	}
}

func TestEncodeType_NamedValueType(t *testing.T) {
	buf, warn := EncodeType(nil, TNamed("Rect"), "NS", fakeCodec{coded: 0x12, isClass: false})
	if warn != nil {
		t.Fatalf("unexpected warning: %v", warn)
	}
	want := append([]byte{ElementTypeValueType}, encodeCompressedUint(0x12)...)
	if !bytes.Equal(buf, want) {
		t.Errorf("EncodeType(Named{Rect}) = % x, want % x", buf, want)
	}
}

func TestEncodeType_NamedClass(t *testing.T) {
	buf, warn := EncodeType(nil, TNamed("Callback"), "NS", fakeCodec{coded: 0x21, isClass: true})
	if warn != nil {
		t.Fatalf("unexpected warning: %v", warn)
	}
	want := append([]byte{ElementTypeClass}, encodeCompressedUint(0x21)...)
	if !bytes.Equal(buf, want) {
		t.Errorf("EncodeType(Named{Callback}) = % x, want % x", buf, want)
	}
}

func TestEncodeType_FnPtr(t *testing.T) {
	fp := TFnPtr(TI32(), []CType{TU8()}, CallConvStdcall)
	buf, warn := EncodeType(nil, fp, "NS", fakeCodec{})
	if warn != nil {
		t.Fatalf("unexpected warning: %v", warn)
	}
	want := []byte{ElementTypeFnPtr, SigCallConvStdCall}
	want = append(want, encodeCompressedUint(1)...)
	want = append(want, ElementTypeI4, ElementTypeU1)
	if !bytes.Equal(buf, want) {
		t.Errorf("EncodeType(FnPtr) = % x, want % x", buf, want)
	}
}

func TestEncodeFieldSig(t *testing.T) {
	buf, warn := EncodeFieldSig(TI32(), "NS", fakeCodec{})
	if warn != nil {
		t.Fatalf("unexpected warning: %v", warn)
	}
	want := []byte{0x06, ElementTypeI4}
	if !bytes.Equal(buf, want) {
		t.Errorf("EncodeFieldSig(I32) = % x, want % x", buf, want)
	}
}

func TestEncodeMethodSig(t *testing.T) {
	buf, warn := EncodeMethodSig(TVoid(), []CType{TI32(), TU8()}, CallConvCdecl, "NS", fakeCodec{})
	if warn != nil {
		t.Fatalf("unexpected warning: %v", warn)
	}
	want := []byte{SigCallConvC}
	want = append(want, encodeCompressedUint(2)...)
	want = append(want, ElementTypeVoid, ElementTypeI4, ElementTypeU1)
	if !bytes.Equal(buf, want) {
		t.Errorf("EncodeMethodSig = % x, want % x", buf, want)
	}
}
