// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"math"
	"sort"
)

// mscorlibAssembly is the well-known external assembly every ECMA-335
// runtime type (System.ValueType, System.Enum, System.MulticastDelegate)
// resolves against, mirroring the convention every real .winmd carries
// (spec §4.4 "extends the runtime value-type/enum/multicast-delegate
// marker").
const mscorlibAssembly = "mscorlib"

const (
	systemValueType         = "ValueType"
	systemEnum              = "Enum"
	systemMulticastDelegate = "MulticastDelegate"
	systemObject            = "Object"
	systemAttribute         = "Attribute"
)

// bitfieldAttributeTypeName is the synthetic custom-attribute class this
// emitter attaches to every bitfield member (spec §4.4 "Bitfield fields
// additionally emit the BitfieldOffset attribute (width + offset)").
const bitfieldAttributeTypeName = "BitfieldOffsetAttribute"

// pendingField is a FieldDef plus the extra attributes emit_struct.go /
// emit_enum.go / emit_apis.go attach to it before emit.go serializes it.
type pendingField struct {
	name      string
	ctype     CType
	flags     uint16
	bitOffset *uint32
	// bitWidth is non-nil for a bitfield member; emitField collects it (with
	// bitOffset) into a deferred BitfieldOffsetAttribute CustomAttribute row
	// once the attribute type's constructor has been emitted.
	bitWidth *uint32
	constant *ConstantValue
	// constantType is the type whose width/signedness the Constant row's
	// blob is encoded under, when it differs from the field's own signature
	// type (an enum literal's field type is the enum itself, Named{Foo},
	// but its Constant row must be sized off the enum's underlying integer).
	constantType *CType
}

// pendingParam is one MethodDef parameter.
type pendingParam struct {
	name  string
	ctype CType
}

// pendingMethod is a MethodDef plus the ImplMap data emit_apis.go attaches
// for free functions, and the flags emit_typedef.go sets for delegate
// constructors/Invoke methods.
type pendingMethod struct {
	name       string
	ret        CType
	params     []pendingParam
	cc         CallConv
	flags      uint16
	implFlags  uint16
	library    string // non-empty => needs an ImplMap row
	entryPoint string
}

// pendingType is one TypeDef this emitter will build, collected from every
// partition's structs/enums/typedefs/Apis class before the global
// (namespace, name) sort the ordering rules require (spec §4.4).
type pendingType struct {
	namespace   string
	name        string
	flags       uint32
	extendsNS   string // "" for Apis (extends Object) or when extends nothing
	extendsName string
	packingSize uint16
	classSize   uint32
	hasLayout   bool
	fields      []pendingField
	methods     []pendingMethod
	// isBitfieldAttr marks the synthetic BitfieldOffsetAttribute type, so
	// emitPendingType knows to capture its constructor's MethodDef row.
	isBitfieldAttr bool
}

// bitfieldCustomAttr is a deferred CustomAttribute row: emitField records one
// per bitfield member as it emits the Field row, and EmitAssembly flushes
// them into the CustomAttribute table once the attribute type's constructor
// row (bitfieldAttrCtorRow) is known, regardless of where that synthetic
// type happened to sort relative to the fields referencing it.
type bitfieldCustomAttr struct {
	fieldRow uint32
	width    uint32
	offset   uint32
}

// Emitter holds every table/heap being built for one assembly and the
// cross-reference bookkeeping (typeRefResolver) shared across emit_*.go.
type Emitter struct {
	tables   *TableSet
	strings  *StringHeap
	us       *USHeap
	guids    *GUIDHeap
	blobs    *BlobHeap
	registry *TypeRegistry
	resolver *typeRefResolver

	moduleRefRowOf map[string]uint32
	warnings       []Warning

	// bitfieldAttrCtorRow is the MethodDef row of BitfieldOffsetAttribute's
	// constructor, set once that synthetic type is emitted; pendingBitfields
	// accumulates every bitfield member's (field, width, offset) until the
	// main emission pass finishes, so the flush step can reference it
	// regardless of emission order.
	bitfieldAttrCtorRow uint32
	pendingBitfields    []bitfieldCustomAttr
}

func newEmitter(reg *TypeRegistry) *Emitter {
	tables := &TableSet{}
	strings := NewStringHeap()
	e := &Emitter{
		tables:         tables,
		strings:        strings,
		us:             NewUSHeap(),
		guids:          NewGUIDHeap(),
		blobs:          NewBlobHeap(),
		registry:       reg,
		moduleRefRowOf: map[string]uint32{},
	}
	e.resolver = newTypeRefResolver(reg, tables, strings)
	return e
}

// EmitAssembly builds the full set of metadata tables and heaps for
// assemblyName across every partition, then wraps them in a PE32+ image
// (spec §4.4/§4.5). It never fails on a per-declaration problem; those
// surface as Warnings (spec §7) and the offending declaration is skipped.
func EmitAssembly(assemblyName string, partitions []Partition, reg *TypeRegistry) ([]byte, []Warning, error) {
	e := newEmitter(reg)

	// Seed the well-known mscorlib runtime types a delegate's constructor
	// signature references (System.Object) so resolveNamed resolves them
	// as an external TypeRef instead of an unresolved-name warning; the
	// base-class tokens themselves (ValueType, Enum, MulticastDelegate) go
	// through baseTypeCoded directly and never touch the registry.
	reg.RegisterExternal(systemObject, "System", mscorlibAssembly, "")

	e.tables.Module = append(e.tables.Module, ModuleRow{
		Name: e.strings.Add(assemblyName + ".winmd"),
	})
	e.tables.Assembly = append(e.tables.Assembly, AssemblyRow{
		MajorVersion: 1,
		Name:         e.strings.Add(assemblyName),
	})

	pending := e.collectPendingTypes(partitions)
	if anyBitfieldField(pending) {
		pending = append(pending, e.buildBitfieldAttributeType(assemblyName))
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].namespace != pending[j].namespace {
			return pending[i].namespace < pending[j].namespace
		}
		return pending[i].name < pending[j].name
	})

	// <Module> is always TypeDef row 1 (ECMA-335 §II.22.37), ahead of every
	// namespaced type regardless of sort order.
	e.tables.TypeDef = append(e.tables.TypeDef, TypeDefRow{
		TypeName:   e.strings.Add("<Module>"),
		FieldList:  1,
		MethodList: 1,
	})

	// Precompute every pending type's final TypeDef row number before any
	// signature is encoded: the full sorted (namespace, name) order is
	// already known, so a same-namespace reference to a type that sorts
	// after its referencer (e.g. Apis before Rect in Contoso.Widgets)
	// still resolves to a TypeDef token rather than falling through to the
	// cross-namespace TypeRef path (spec §4.4 "target namespace equals the
	// current partition's namespace" resolves to a TypeDef unconditionally).
	for i, pt := range pending {
		e.resolver.registerTypeDefRow(pt.namespace, pt.name, uint32(i)+2)
	}

	for _, pt := range pending {
		e.emitPendingType(pt)
	}

	// Flush deferred bitfield-width/offset custom attributes now that
	// bitfieldAttrCtorRow has been set by emitting BitfieldOffsetAttribute's
	// constructor somewhere in the loop above.
	for _, pb := range e.pendingBitfields {
		e.tables.CustomAttribute = append(e.tables.CustomAttribute, CustomAttributeRow{
			Parent: encodeCoded(codedHasCustomAttribute, TableField, pb.fieldRow),
			Type:   encodeCoded(codedCustomAttributeType, TableMethodDef, e.bitfieldAttrCtorRow),
			Value:  e.blobs.Add(encodeBitfieldAttributeBlob(pb.width, pb.offset)),
		})
	}

	image, err := BuildImage(e.tables, e.strings, e.us, e.guids, e.blobs)
	if err != nil {
		return nil, e.warnings, err
	}
	return image, e.warnings, nil
}

// anyBitfieldField reports whether any pending type carries a bitfield
// member, the signal EmitAssembly uses to decide whether a
// BitfieldOffsetAttribute type needs to exist at all.
func anyBitfieldField(pending []pendingType) bool {
	for _, pt := range pending {
		for _, f := range pt.fields {
			if f.bitWidth != nil {
				return true
			}
		}
	}
	return false
}

func (e *Emitter) collectPendingTypes(partitions []Partition) []pendingType {
	var out []pendingType
	for _, p := range partitions {
		for _, s := range p.Structs {
			out = append(out, e.buildStruct(p.Namespace, s))
		}
		for _, en := range p.Enums {
			out = append(out, e.buildEnum(p.Namespace, en))
		}
		for _, td := range p.Typedefs {
			out = append(out, e.buildTypedef(p.Namespace, td))
		}
		if len(p.Functions) > 0 || len(p.Constants) > 0 {
			out = append(out, e.buildApis(p))
		}
	}
	return out
}

func (e *Emitter) warn(decl string, kind WarningKind, msg string) {
	e.warnings = append(e.warnings, Warning{Decl: decl, Kind: kind, Message: msg})
}

func (e *Emitter) addWarning(w *Warning) {
	if w != nil {
		e.warnings = append(e.warnings, *w)
	}
}

// baseTypeCoded returns a TypeDefOrRef coded index (always a TypeRef, since
// the base runtime types never live in this assembly) for name in the
// mscorlib System namespace.
func (e *Emitter) baseTypeCoded(name string) uint32 {
	scope := e.resolver.assemblyRefScope(mscorlibAssembly)
	row := e.resolver.typeRefRow(scope, "System", name)
	return encodeCoded(codedTypeDefOrRef, TableTypeRef, row)
}

func (e *Emitter) moduleRefRow(library string) uint32 {
	if row, ok := e.moduleRefRowOf[library]; ok {
		return row
	}
	e.tables.ModuleRef = append(e.tables.ModuleRef, ModuleRefRow{Name: e.strings.Add(library)})
	row := uint32(len(e.tables.ModuleRef))
	e.moduleRefRowOf[library] = row
	return row
}

// emitPendingType appends pt's TypeDef row plus every Field/Method/side-row
// it owns, in the order the spec's ordering rules require: appending
// happens immediately after the TypeDef row so Field/MethodDef ranges stay
// contiguous and ClassLayout/Constant/FieldLayout/ImplMap rows (appended as
// their owning Field/MethodDef row is created) stay sorted by parent token,
// since TypeDef/Field/MethodDef row indices only ever increase.
func (e *Emitter) emitPendingType(pt pendingType) {
	typeDefRow := uint32(len(e.tables.TypeDef)) + 1
	fieldListStart := uint32(len(e.tables.Field)) + 1
	methodListStart := uint32(len(e.tables.MethodDef)) + 1

	var extends uint32
	if pt.extendsName != "" {
		extends = e.baseTypeCoded(pt.extendsName)
	}

	e.tables.TypeDef = append(e.tables.TypeDef, TypeDefRow{
		Flags:         pt.flags,
		TypeName:      e.strings.Add(pt.name),
		TypeNamespace: e.strings.Add(pt.namespace),
		Extends:       extends,
		FieldList:     fieldListStart,
		MethodList:    methodListStart,
	})
	// typeDefRowOf was already populated for every pending type by
	// EmitAssembly's precompute pass; this append lands at exactly that
	// precomputed row, since pending is walked in the same sorted order
	// both times.

	if pt.hasLayout {
		e.tables.ClassLayout = append(e.tables.ClassLayout, ClassLayoutRow{
			PackingSize: pt.packingSize,
			ClassSize:   pt.classSize,
			Parent:      typeDefRow,
		})
	}

	for _, f := range pt.fields {
		e.emitField(pt.namespace, f)
	}
	for _, m := range pt.methods {
		methodRow := e.emitMethod(pt.namespace, m)
		if pt.isBitfieldAttr && m.name == ".ctor" {
			e.bitfieldAttrCtorRow = methodRow
		}
	}
}

func (e *Emitter) emitField(namespace string, f pendingField) {
	sig, warn := EncodeFieldSig(f.ctype, namespace, e.resolver)
	e.addWarning(warn)
	fieldRow := uint32(len(e.tables.Field)) + 1
	e.tables.Field = append(e.tables.Field, FieldRow{
		Flags:     f.flags,
		Name:      e.strings.Add(f.name),
		Signature: e.blobs.Add(sig),
	})
	if f.bitOffset != nil {
		e.tables.FieldLayout = append(e.tables.FieldLayout, FieldLayoutRow{
			Offset: *f.bitOffset / 8,
			Field:  fieldRow,
		})
	}
	if f.bitWidth != nil {
		offset := uint32(0)
		if f.bitOffset != nil {
			offset = *f.bitOffset
		}
		e.pendingBitfields = append(e.pendingBitfields, bitfieldCustomAttr{
			fieldRow: fieldRow,
			width:    *f.bitWidth,
			offset:   offset,
		})
	}
	if f.constant != nil {
		ct := f.ctype
		if f.constantType != nil {
			ct = *f.constantType
		}
		e.tables.Constant = append(e.tables.Constant, ConstantRow{
			Type:   constantElementType(*f.constant, ct),
			Parent: encodeCoded(codedHasConstant, TableField, fieldRow),
			Value:  e.blobs.Add(encodeConstantBlob(*f.constant, ct)),
		})
	}
}

func (e *Emitter) emitMethod(namespace string, m pendingMethod) uint32 {
	sig, warn := EncodeMethodSig(m.ret, paramTypes(m.params), m.cc, namespace, e.resolver)
	e.addWarning(warn)
	methodRow := uint32(len(e.tables.MethodDef)) + 1
	e.tables.MethodDef = append(e.tables.MethodDef, MethodDefRow{
		ImplFlags:  m.implFlags,
		Flags:      m.flags,
		Name:       e.strings.Add(m.name),
		Signature:  e.blobs.Add(sig),
		ParamList:  uint32(len(e.tables.Param)) + 1,
	})
	if m.library != "" {
		e.tables.ImplMap = append(e.tables.ImplMap, ImplMapRow{
			MappingFlags:    PInvokeNoMangle | PInvokeCharSetAnsi | pinvokeCallConv(m.cc),
			MemberForwarded: encodeCoded(codedMemberForwarded, TableMethodDef, methodRow),
			ImportName:      e.strings.Add(m.entryPoint),
			ImportScope:     e.moduleRefRow(m.library),
		})
	}
	return methodRow
}

// buildBitfieldAttributeType builds the synthetic class that carries the
// bitfield-width/offset custom attribute: a sealed System.Attribute-derived
// type whose sole member is a constructor taking (int32 width, int32
// offset), mirroring how a real custom attribute's fixed arguments are
// declared (spec §4.4 "Bitfield fields additionally emit the
// BitfieldOffset attribute (width + offset)").
func (e *Emitter) buildBitfieldAttributeType(namespace string) pendingType {
	pt := pendingType{
		namespace:      namespace,
		name:           bitfieldAttributeTypeName,
		flags:          TypeAttrPublic | TypeAttrSealed,
		extendsName:    systemAttribute,
		isBitfieldAttr: true,
	}
	pt.methods = append(pt.methods, pendingMethod{
		name: ".ctor",
		ret:  TVoid(),
		params: []pendingParam{
			{name: "width", ctype: TI32()},
			{name: "offset", ctype: TI32()},
		},
		cc:        CallConvCdecl,
		flags:     delegateCtorFlags,
		implFlags: MethodImplAttrIL,
	})
	return pt
}

// encodeBitfieldAttributeBlob encodes a BitfieldOffsetAttribute custom
// attribute blob per ECMA-335 §II.23.3: a fixed 0x0001 prolog, the two
// Int32 fixed arguments in raw little-endian form, then a zero NumNamed
// count (this attribute declares no named arguments).
func encodeBitfieldAttributeBlob(width, offset uint32) []byte {
	buf := []byte{0x01, 0x00}
	buf = append(buf, leBytes(uint64(width), 4)...)
	buf = append(buf, leBytes(uint64(offset), 4)...)
	buf = append(buf, 0x00, 0x00)
	return buf
}

func paramTypes(params []pendingParam) []CType {
	out := make([]CType, len(params))
	for i, p := range params {
		out[i] = p.ctype
	}
	return out
}

// constantElementType picks the ELEMENT_TYPE byte a Constant row's blob is
// encoded under, per spec §4.4.4 ("Signed/Unsigned go through the
// underlying integer ELEMENT_TYPE, Float through R8").
func constantElementType(v ConstantValue, underlying CType) byte {
	if v.Kind == ConstantFloat {
		return ElementTypeR8
	}
	switch underlying.Kind {
	case KindI8:
		return ElementTypeI1
	case KindU8:
		return ElementTypeU1
	case KindI16:
		return ElementTypeI2
	case KindU16:
		return ElementTypeU2
	case KindI64:
		return ElementTypeI8
	case KindU64:
		return ElementTypeU8
	case KindU32:
		return ElementTypeU4
	default:
		return ElementTypeI4
	}
}

// encodeConstantBlob encodes a ConstantValue's raw bytes per ECMA-335
// §II.23.3 (little-endian, width matching the underlying type's own
// storage width, the same width constantElementType picked its tag from).
func encodeConstantBlob(v ConstantValue, underlying CType) []byte {
	if v.Kind == ConstantFloat {
		return leBytes(math.Float64bits(v.Float), 8)
	}
	width := constantWidth(underlying.Kind)
	if v.Kind == ConstantSigned {
		return leBytes(uint64(v.Signed), width)
	}
	return leBytes(v.Unsigned, width)
}

func constantWidth(k TypeKind) int {
	switch k {
	case KindI8, KindU8:
		return 1
	case KindI16, KindU16:
		return 2
	case KindI64, KindU64:
		return 8
	default:
		return 4
	}
}

func leBytes(v uint64, width int) []byte {
	b := make([]byte, width)
	for i := 0; i < width; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
