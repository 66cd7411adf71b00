// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bindscrape/winmd/internal/cast"
)

// colorEnumDecl, rectStructDecl and createWidgetFuncDecl build the S1
// scenario's declarations (spec §8 "S1").
func colorEnumDecl() cast.Decl {
	return cast.Decl{
		Kind: cast.DeclEnum,
		Name: "Color",
		File: "/src/simple.h",
		Variants: []cast.EnumConst{
			{Name: "RED", Signed: 0, Unsigned: 0},
			{Name: "GREEN", Signed: 1, Unsigned: 1},
			{Name: "BLUE", Signed: 2, Unsigned: 2},
		},
	}
}

func rectStructDecl() cast.Decl {
	i32 := cast.BasicType{K: cast.TypeInt}
	return cast.Decl{
		Kind: cast.DeclRecord,
		Name: "Rect",
		File: "/src/simple.h",
		Size: 16, Align: 4,
		Fields: []cast.Field{
			{Name: "x", Type: i32},
			{Name: "y", Type: i32},
			{Name: "width", Type: i32},
			{Name: "height", Type: i32},
		},
	}
}

func maxWidgetsDecl() cast.Decl {
	return cast.Decl{
		Kind: cast.DeclMacro,
		Name: "MAX_WIDGETS",
		File: "/src/simple.h",
		Macro: cast.MacroDef{Kind: cast.MacroInteger, Magnitude: 256},
	}
}

func createWidgetFuncDecl() cast.Decl {
	return cast.Decl{
		Kind: cast.DeclFunction,
		Name: "create_widget",
		File: "/src/simple.h",
		ReturnType: cast.BasicType{K: cast.TypeInt},
		Params: []cast.Param{
			{Name: "name", Type: cast.PtrType{Elem: cast.BasicType{K: cast.TypeSChar}, Cnst: true}},
			{Name: "r", Type: cast.BasicType{K: cast.TypeRecord, N: "Rect"}},
			{Name: "out", Type: cast.PtrType{Elem: cast.BasicType{K: cast.TypeRecord, N: "Widget"}}},
		},
	}
}

func TestExtractPartition_S1(t *testing.T) {
	provider := cast.NewFakeProvider([]cast.Decl{
		colorEnumDecl(), rectStructDecl(), createWidgetFuncDecl(), maxWidgetsDecl(),
	})
	cfg := PartitionConfig{Namespace: "SimpleTest", Library: "simple", Headers: []string{"/src/simple.h"}}

	p, warnings, err := ExtractPartition(provider, cfg, "")
	if err != nil {
		t.Fatalf("ExtractPartition: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	if len(p.Enums) != 1 || p.Enums[0].Name != "Color" {
		t.Fatalf("expected Color enum, got %+v", p.Enums)
	}
	if got, want := len(p.Enums[0].Variants), 3; got != want {
		t.Fatalf("Color variants = %d, want %d", got, want)
	}

	if len(p.Structs) != 1 || len(p.Structs[0].Fields) != 4 {
		t.Fatalf("expected Rect with 4 fields, got %+v", p.Structs)
	}

	if len(p.Functions) != 1 || p.Functions[0].Name != "create_widget" {
		t.Fatalf("expected create_widget, got %+v", p.Functions)
	}
	if p.Functions[0].Params[1].Type.Kind != KindNamed || p.Functions[0].Params[1].Type.Name != "Rect" {
		t.Fatalf("create_widget param 1 should be Named{Rect}, got %+v", p.Functions[0].Params[1].Type)
	}

	if len(p.Constants) != 1 || p.Constants[0].Name != "MAX_WIDGETS" {
		t.Fatalf("expected MAX_WIDGETS constant, got %+v", p.Constants)
	}
	if diff := cmp.Diff(SignedConstant(256), p.Constants[0].Value); diff != "" {
		t.Errorf("MAX_WIDGETS value mismatch (-want +got):\n%s", diff)
	}
}

// TestExtractPartition_ScopeFilter covers spec §4.1's traverse-list scope
// filter: a declaration from a system header is visible for type
// resolution (it may still appear as Named{}) but is not itself emitted.
func TestExtractPartition_ScopeFilter(t *testing.T) {
	sysHeader := cast.Decl{
		Kind: cast.DeclRecord, Name: "SystemStruct", File: "/usr/include/sys.h",
		Fields: []cast.Field{{Name: "v", Type: cast.BasicType{K: cast.TypeInt}}},
	}
	localHeader := cast.Decl{
		Kind: cast.DeclRecord, Name: "LocalStruct", File: "/src/local.h",
		Fields: []cast.Field{{Name: "v", Type: cast.BasicType{K: cast.TypeInt}}},
	}
	provider := cast.NewFakeProvider([]cast.Decl{sysHeader, localHeader})
	cfg := PartitionConfig{Namespace: "NS", Headers: []string{"/src/local.h"}}

	p, _, err := ExtractPartition(provider, cfg, "")
	if err != nil {
		t.Fatalf("ExtractPartition: %v", err)
	}
	if len(p.Structs) != 1 || p.Structs[0].Name != "LocalStruct" {
		t.Fatalf("expected only LocalStruct emitted, got %+v", p.Structs)
	}
}

// TestExtractPartition_Bitfield covers spec §8 "S6".
func TestExtractPartition_Bitfield(t *testing.T) {
	three := uint32(3)
	five := uint32(5)
	zeroOff := uint32(0)
	threeOff := uint32(3)
	decl := cast.Decl{
		Kind: cast.DeclRecord, Name: "Flags", File: "/src/bits.h",
		Size: 4, Align: 4,
		Fields: []cast.Field{
			{Name: "a", Type: cast.BasicType{K: cast.TypeUInt}, BitfieldWidth: &three, BitfieldOffset: &zeroOff},
			{Name: "b", Type: cast.BasicType{K: cast.TypeUInt}, BitfieldWidth: &five, BitfieldOffset: &threeOff},
		},
	}
	provider := cast.NewFakeProvider([]cast.Decl{decl})
	cfg := PartitionConfig{Namespace: "NS", Headers: []string{"/src/bits.h"}}

	p, _, err := ExtractPartition(provider, cfg, "")
	if err != nil {
		t.Fatalf("ExtractPartition: %v", err)
	}
	if len(p.Structs) != 1 || len(p.Structs[0].Fields) != 2 {
		t.Fatalf("expected Flags with 2 fields, got %+v", p.Structs)
	}
	fa, fb := p.Structs[0].Fields[0], p.Structs[0].Fields[1]
	if fa.BitfieldWidth == nil || *fa.BitfieldWidth != 3 || fa.BitfieldOffset == nil || *fa.BitfieldOffset != 0 {
		t.Errorf("field a bitfield mismatch: %+v", fa)
	}
	if fb.BitfieldWidth == nil || *fb.BitfieldWidth != 5 || fb.BitfieldOffset == nil || *fb.BitfieldOffset != 3 {
		t.Errorf("field b bitfield mismatch: %+v", fb)
	}
}

// TestExtractPartition_AnonymousRecordSkipped covers spec §9 "Anonymous
// records": a field whose type cannot be mapped fails the whole struct,
// non-fatally, with a warning instead of aborting extraction.
func TestExtractPartition_AnonymousRecordSkipped(t *testing.T) {
	badField := cast.Decl{
		Kind: cast.DeclRecord, Name: "Bad", File: "/src/bad.h",
		Fields: []cast.Field{{Name: "v", Type: cast.BasicType{K: cast.TypeRecord, N: ""}}},
	}
	good := rectStructDecl()
	provider := cast.NewFakeProvider([]cast.Decl{badField, good})
	cfg := PartitionConfig{Namespace: "NS", Headers: []string{"/src/bad.h", "/src/simple.h"}}

	p, warnings, err := ExtractPartition(provider, cfg, "")
	if err != nil {
		t.Fatalf("ExtractPartition: %v", err)
	}
	if len(p.Structs) != 1 || p.Structs[0].Name != "Rect" {
		t.Fatalf("expected only Rect to survive, got %+v", p.Structs)
	}
	if len(warnings) != 1 || warnings[0].Kind != WarnAnonymousRecord {
		t.Fatalf("expected one WarnAnonymousRecord, got %+v", warnings)
	}
}

// TestExtractPartition_MacroNotLiteral covers spec §9 "Macro expressions":
// a macro whose expansion the front end cannot resolve to a literal is
// skipped with one WarnMacroNotLiteral warning, never a fatal error.
func TestExtractPartition_MacroNotLiteral(t *testing.T) {
	decl := cast.Decl{Kind: cast.DeclMacro, Name: "FLAGS", File: "/src/f.h", Macro: cast.MacroDef{Kind: cast.MacroNotLiteral}}
	provider := cast.NewFakeProvider([]cast.Decl{decl})
	cfg := PartitionConfig{Namespace: "NS", Headers: []string{"/src/f.h"}}

	p, warnings, err := ExtractPartition(provider, cfg, "")
	if err != nil {
		t.Fatalf("ExtractPartition: %v", err)
	}
	if len(p.Constants) != 0 {
		t.Fatalf("expected FLAGS to be dropped, got %+v", p.Constants)
	}
	if len(warnings) != 1 || warnings[0].Kind != WarnMacroNotLiteral {
		t.Fatalf("expected one WarnMacroNotLiteral, got %+v", warnings)
	}
}
