// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import "testing"

func TestEncodeCoded_NullIsZero(t *testing.T) {
	if got := encodeCoded(codedTypeDefOrRef, TableTypeDef, 0); got != 0 {
		t.Errorf("encodeCoded(..., 0) = %d, want 0", got)
	}
}

func TestEncodeCoded_TagAndShift(t *testing.T) {
	// codedTypeDefOrRef: tagBits=2, tables = [TypeDef, TypeRef, TypeSpec]
	tests := []struct {
		table int
		row   uint32
		want  uint32
	}{
		{TableTypeDef, 1, (1 << 2) | 0},
		{TableTypeRef, 1, (1 << 2) | 1},
		{TableTypeSpec, 1, (1 << 2) | 2},
		{TableTypeRef, 5, (5 << 2) | 1},
	}
	for _, tc := range tests {
		got := encodeCoded(codedTypeDefOrRef, tc.table, tc.row)
		if got != tc.want {
			t.Errorf("encodeCoded(table=%d, row=%d) = %d, want %d", tc.table, tc.row, got, tc.want)
		}
	}
}

func TestResolveCodedIndexWidths_SmallStaysTwoBytes(t *testing.T) {
	ts := &TableSet{
		TypeDef: make([]TypeDefRow, 3),
		TypeRef: make([]TypeRefRow, 2),
	}
	w := resolveCodedIndexWidths(ts)
	if w.typeDefOrRef != 2 {
		t.Errorf("typeDefOrRef width = %d, want 2", w.typeDefOrRef)
	}
}

// TestResolveCodedIndexWidths_LargeGoesFourBytes covers ECMA-335 §II.24.2.6's
// rule: once the largest referenced table's row count reaches 2^(16-tagBits),
// the coded index widens to 4 bytes.
func TestResolveCodedIndexWidths_LargeGoesFourBytes(t *testing.T) {
	// codedTypeDefOrRef has tagBits=2, so 2 bytes hold at most 2^14-1 = 16383 rows.
	ts := &TableSet{
		TypeDef: make([]TypeDefRow, 16385),
	}
	w := resolveCodedIndexWidths(ts)
	if w.typeDefOrRef != 4 {
		t.Errorf("typeDefOrRef width = %d, want 4 once TypeDef exceeds 2^14 rows", w.typeDefOrRef)
	}
}

func TestRowCount_AndPresent(t *testing.T) {
	ts := &TableSet{TypeDef: make([]TypeDefRow, 2)}
	if ts.RowCount(TableTypeDef) != 2 {
		t.Errorf("RowCount(TypeDef) = %d, want 2", ts.RowCount(TableTypeDef))
	}
	if !ts.Present(TableTypeDef) {
		t.Error("TypeDef should be present")
	}
	if ts.Present(TableMethodDef) {
		t.Error("MethodDef should not be present when empty")
	}
}
