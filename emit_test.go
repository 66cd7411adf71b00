// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"bytes"
	"sort"
	"testing"
)

// s1Partitions builds the spec §8 "S1" scenario directly as a model (rather
// than through the extractor, which extract_test.go already covers):
// one struct, one enum, one function, one constant.
func s1Partitions() []Partition {
	return []Partition{{
		Namespace: "Contoso.Widgets",
		Library:   "widgets",
		Structs: []StructDef{{
			Name: "Rect", Size: 16, Align: 4,
			Fields: []FieldDef{
				{Name: "x", Type: TI32()},
				{Name: "y", Type: TI32()},
				{Name: "width", Type: TI32()},
				{Name: "height", Type: TI32()},
			},
		}},
		Enums: []EnumDef{{
			Name: "Color", UnderlyingType: TI32(),
			Variants: []EnumVariant{
				{Name: "RED", Signed: 0, Unsigned: 0},
				{Name: "GREEN", Signed: 1, Unsigned: 1},
				{Name: "BLUE", Signed: 2, Unsigned: 2},
			},
		}},
		Functions: []FunctionDef{{
			Name: "create_widget", ReturnType: TI32(), CallConv: CallConvStdcall,
			Params: []ParamDef{
				{Name: "name", Type: TPtr(TI8(), true)},
				{Name: "r", Type: TNamed("Rect")},
			},
		}},
		Constants: []ConstantDef{{Name: "MAX_WIDGETS", Value: SignedConstant(256)}},
	}}
}

func TestEmitAssembly_S1_NoWarnings(t *testing.T) {
	partitions := s1Partitions()
	reg := BuildTypeRegistry(partitions, nil)

	image, warnings, err := EmitAssembly("Contoso.Widgets", partitions, reg)
	if err != nil {
		t.Fatalf("EmitAssembly: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(image) == 0 {
		t.Fatal("expected a non-empty image")
	}
	// PE/DOS signature, spec §4.5.
	if image[0] != 'M' || image[1] != 'Z' {
		t.Errorf("image does not start with the MZ signature: % x", image[:2])
	}
}

// TestEmitAssembly_Deterministic covers spec §8 invariant: emitting the same
// partitions twice must produce byte-identical output, including the
// content-derived MVID.
func TestEmitAssembly_Deterministic(t *testing.T) {
	partitions := s1Partitions()
	reg := BuildTypeRegistry(partitions, nil)
	image1, _, err := EmitAssembly("Contoso.Widgets", partitions, reg)
	if err != nil {
		t.Fatalf("EmitAssembly (1): %v", err)
	}

	partitions2 := s1Partitions()
	reg2 := BuildTypeRegistry(partitions2, nil)
	image2, _, err := EmitAssembly("Contoso.Widgets", partitions2, reg2)
	if err != nil {
		t.Fatalf("EmitAssembly (2): %v", err)
	}

	if !bytes.Equal(image1, image2) {
		t.Error("emitting the same model twice should produce byte-identical images")
	}
}

// TestEmitAssembly_RoundTrip covers spec §8 invariant 1: every TypeDef this
// emitter writes (apart from <Module> and Apis) is recoverable by reading
// the emitter's own output back with reader.go.
func TestEmitAssembly_RoundTrip(t *testing.T) {
	partitions := s1Partitions()
	reg := BuildTypeRegistry(partitions, nil)
	image, _, err := EmitAssembly("Contoso.Widgets", partitions, reg)
	if err != nil {
		t.Fatalf("EmitAssembly: %v", err)
	}

	types, err := ReadExternalTypes(image, "")
	if err != nil {
		t.Fatalf("ReadExternalTypes: %v", err)
	}

	want := map[string]bool{"Rect": false, "Color": false}
	for _, ty := range types {
		if ty.Namespace != "Contoso.Widgets" {
			t.Errorf("unexpected namespace %q for type %q", ty.Namespace, ty.Name)
		}
		if _, ok := want[ty.Name]; ok {
			want[ty.Name] = true
		}
		if ty.Name == "Apis" || ty.Name == "<Module>" {
			t.Errorf("ReadExternalTypes should exclude %q", ty.Name)
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %q to round-trip through ReadExternalTypes, types=%v", name, types)
		}
	}
}

// TestEmitAssembly_S3_NamespaceOverride covers spec §8 "S3": a struct
// defined in one partition whose name is force-relocated to a different
// namespace by namespace_overrides is registered under the override (its
// TypeDef stays in the declaring partition's namespace), and the
// cross-partition reference to it resolves without a warning.
func TestEmitAssembly_S3_NamespaceOverride(t *testing.T) {
	partitions := []Partition{
		{Namespace: "Contoso.Widgets", Structs: []StructDef{{Name: "Point", Fields: []FieldDef{{Name: "x", Type: TI32()}}}}},
		{Namespace: "Contoso.Shapes", Structs: []StructDef{{Name: "Circle", Fields: []FieldDef{
			{Name: "center", Type: TNamed("Point")},
			{Name: "radius", Type: TF64()},
		}}}},
	}
	reg := BuildTypeRegistry(partitions, map[string]string{"Point": "Contoso.Common"})

	_, warnings, err := EmitAssembly("Contoso.Shapes", partitions, reg)
	if err != nil {
		t.Fatalf("EmitAssembly: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	origin, ok := reg.Lookup("Point")
	if !ok || origin.Namespace != "Contoso.Common" {
		t.Fatalf("Point should resolve under the overridden namespace, got %+v", origin)
	}
}

// TestEmitAssembly_S4_Delegate covers spec §8's delegate scenario: a
// function-pointer typedef emits as a MulticastDelegate-derived class with
// a constructor and an Invoke method matching the function pointer's shape.
func TestEmitAssembly_S4_Delegate(t *testing.T) {
	partitions := []Partition{{
		Namespace: "Contoso.Widgets",
		Typedefs: []TypedefDef{{
			Name:           "WidgetCallback",
			UnderlyingType: TFnPtr(TVoid(), []CType{TI32()}, CallConvStdcall),
		}},
	}}
	reg := BuildTypeRegistry(partitions, nil)

	image, warnings, err := EmitAssembly("Contoso.Widgets", partitions, reg)
	if err != nil {
		t.Fatalf("EmitAssembly: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if !reg.IsDelegate("WidgetCallback") {
		t.Fatal("WidgetCallback should be marked a delegate")
	}

	types, err := ReadExternalTypes(image, "")
	if err != nil {
		t.Fatalf("ReadExternalTypes: %v", err)
	}
	found := false
	for _, ty := range types {
		if ty.Name == "WidgetCallback" {
			found = true
		}
	}
	if !found {
		t.Fatalf("WidgetCallback should round-trip, types=%v", types)
	}
}

// TestEmitAssembly_S6_Bitfield covers spec §8 "S6": a struct with bitfield
// members emits one Field row per member with a FieldLayout row carrying
// the reported byte offset, plus a BitfieldOffsetAttribute CustomAttribute
// row that round-trips both the reported bit width and bit offset.
func TestEmitAssembly_S6_Bitfield(t *testing.T) {
	offA, widthA := uint32(0), uint32(3)
	offB, widthB := uint32(3), uint32(5)
	partitions := []Partition{{
		Namespace: "Contoso.Widgets",
		Structs: []StructDef{{
			Name: "Flags", Size: 4, Align: 4,
			Fields: []FieldDef{
				{Name: "a", Type: TU32(), BitfieldOffset: &offA, BitfieldWidth: &widthA},
				{Name: "b", Type: TU32(), BitfieldOffset: &offB, BitfieldWidth: &widthB},
			},
		}},
	}}
	reg := BuildTypeRegistry(partitions, nil)

	image, warnings, err := EmitAssembly("Contoso.Widgets", partitions, reg)
	if err != nil {
		t.Fatalf("EmitAssembly: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	attrs, err := ReadBitfieldAttributes(image)
	if err != nil {
		t.Fatalf("ReadBitfieldAttributes: %v", err)
	}
	if len(attrs) != 2 {
		t.Fatalf("expected 2 bitfield attributes, got %d: %+v", len(attrs), attrs)
	}
	// Field rows are assigned in declaration order ("a" then "b"), so the
	// lower row belongs to "a".
	if attrs[0].FieldRow > attrs[1].FieldRow {
		attrs[0], attrs[1] = attrs[1], attrs[0]
	}
	if attrs[0].Width != widthA || attrs[0].Offset != offA {
		t.Errorf("field %q: got width=%d offset=%d, want width=%d offset=%d", "a", attrs[0].Width, attrs[0].Offset, widthA, offA)
	}
	if attrs[1].Width != widthB || attrs[1].Offset != offB {
		t.Errorf("field %q: got width=%d offset=%d, want width=%d offset=%d", "b", attrs[1].Width, attrs[1].Offset, widthB, offB)
	}
}

// TestEmitAssembly_S1_ForwardReferenceResolvesToTypeDef covers spec §8's S1
// scenario directly at the resolver level: Apis sorts before Rect in
// Contoso.Widgets ("Apis" < "Rect"), so create_widget's Rect parameter is a
// same-namespace forward reference. Spec §4.4 requires it resolve to a
// TypeDef token unconditionally, never a TypeRef, regardless of where Rect
// happens to land in the sorted emission order.
func TestEmitAssembly_S1_ForwardReferenceResolvesToTypeDef(t *testing.T) {
	partitions := s1Partitions()
	reg := BuildTypeRegistry(partitions, nil)

	e := newEmitter(reg)
	pending := e.collectPendingTypes(partitions)
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].namespace != pending[j].namespace {
			return pending[i].namespace < pending[j].namespace
		}
		return pending[i].name < pending[j].name
	})
	if pending[0].name != "Apis" {
		t.Fatalf("test assumes Apis sorts first; pending order: %v", pendingNames(pending))
	}

	e.tables.TypeDef = append(e.tables.TypeDef, TypeDefRow{TypeName: e.strings.Add("<Module>"), FieldList: 1, MethodList: 1})
	for i, pt := range pending {
		e.resolver.registerTypeDefRow(pt.namespace, pt.name, uint32(i)+2)
	}

	coded, _, warn := e.resolver.resolveNamed("Contoso.Widgets", "Rect")
	if warn != nil {
		t.Fatalf("unexpected warning resolving Rect: %v", warn)
	}
	const typeDefOrRefTagMask = 0x3 // codedTypeDefOrRef.tagBits == 2
	if tag := coded & typeDefOrRefTagMask; tag != 0 {
		t.Errorf("Rect should resolve to a TypeDef coded index (tag 0), got tag %d (coded=%#x); same-namespace forward references must not fall back to TypeRef", tag, coded)
	}
}

func pendingNames(pending []pendingType) []string {
	names := make([]string, len(pending))
	for i, pt := range pending {
		names[i] = pt.name
	}
	return names
}

// TestEmitAssembly_UnresolvedNamedWarns covers spec §7: a Named{} type that
// never resolves (no matching struct/enum/typedef, no external import)
// produces a warning rather than a fatal error.
func TestEmitAssembly_UnresolvedNamedWarns(t *testing.T) {
	partitions := []Partition{{
		Namespace: "Contoso.Widgets",
		Structs: []StructDef{{
			Name: "Holder", Fields: []FieldDef{{Name: "h", Type: TNamed("HWND")}},
		}},
	}}
	reg := BuildTypeRegistry(partitions, nil)

	_, warnings, err := EmitAssembly("Contoso.Widgets", partitions, reg)
	if err != nil {
		t.Fatalf("EmitAssembly: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a warning for the unresolved HWND reference")
	}
}

// TestEmitAssembly_ConstantEncoding covers spec §4.4.4: an Apis-class
// constant that needs 64 bits, one that fits in 32 bits, and an enum with a
// U8 underlying type all emit without an error or a warning.
func TestEmitAssembly_ConstantEncoding(t *testing.T) {
	partitions := []Partition{{
		Namespace: "Contoso.Widgets",
		Enums: []EnumDef{{
			Name: "Small", UnderlyingType: TU8(),
			Variants: []EnumVariant{{Name: "ONE", Signed: 1, Unsigned: 1}},
		}},
		Constants: []ConstantDef{
			{Name: "BIG", Value: SignedConstant(1 << 40)},
			{Name: "SMALL", Value: SignedConstant(5)},
		},
	}}
	reg := BuildTypeRegistry(partitions, nil)

	_, warnings, err := EmitAssembly("Contoso.Widgets", partitions, reg)
	if err != nil {
		t.Fatalf("EmitAssembly: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
}
