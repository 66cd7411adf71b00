// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

// Metadata table indices, ECMA-335 §II.22. Names and numeric values match
// the teacher's own dotnet.go table-index constants (reused verbatim since
// the index space a writer assembles into is the same one a reader parses
// out of); only these tables
// (Module, TypeRef, TypeDef, Field, MethodDef, Param, MemberRef, Constant,
// CustomAttribute, ClassLayout, FieldLayout, StandAloneSig, ModuleRef,
// TypeSpec, ImplMap, Assembly, AssemblyRef) get row slices in a TableSet;
// the rest of the index space exists only so coded-index tag values line
// up with ECMA-335.
const (
	TableModule                 = 0x00
	TableTypeRef                = 0x01
	TableTypeDef                = 0x02
	TableField                  = 0x04
	TableMethodDef               = 0x06
	TableParam                  = 0x08
	TableInterfaceImpl          = 0x09
	TableMemberRef              = 0x0a
	TableConstant               = 0x0b
	TableCustomAttribute        = 0x0c
	TableFieldMarshal           = 0x0d
	TableDeclSecurity           = 0x0e
	TableClassLayout            = 0x0f
	TableFieldLayout            = 0x10
	TableStandAloneSig          = 0x11
	TableEventMap               = 0x12
	TableEvent                  = 0x14
	TablePropertyMap            = 0x15
	TableProperty               = 0x17
	TableMethodSemantics        = 0x18
	TableMethodImpl             = 0x19
	TableModuleRef              = 0x1a
	TableTypeSpec               = 0x1b
	TableImplMap                = 0x1c
	TableFieldRVA               = 0x1d
	TableAssembly                = 0x20
	TableAssemblyProcessor      = 0x21
	TableAssemblyOS              = 0x22
	TableAssemblyRef             = 0x23
	TableAssemblyRefProcessor   = 0x24
	TableAssemblyRefOS           = 0x25
	TableFile                    = 0x26
	TableExportedType            = 0x27
	TableManifestResource        = 0x28
	TableNestedClass             = 0x29
	TableGenericParam            = 0x2a
	TableMethodSpec              = 0x2b
	TableGenericParamConstraint = 0x2c
)

// TypeAttributes bits (ECMA-335 §II.23.1.15) this emitter sets.
const (
	TypeAttrPublic     uint32 = 0x00000001
	TypeAttrSealed     uint32 = 0x00000100
	TypeAttrAbstract   uint32 = 0x00000080
	TypeAttrLayoutSequential uint32 = 0x00000008
	TypeAttrAnsiClass  uint32 = 0x00000000
)

// MethodAttributes / MethodImplAttributes bits (ECMA-335 §II.23.1.10).
const (
	MethodAttrPublic        uint16 = 0x0006
	MethodAttrStatic        uint16 = 0x0010
	MethodAttrHideBySig     uint16 = 0x0080
	MethodAttrPinvokeImpl   uint16 = 0x2000
	MethodAttrSpecialName   uint16 = 0x0800
	MethodAttrRTSpecialName uint16 = 0x1000

	MethodImplAttrIL      uint16 = 0x0000
	MethodImplAttrRuntime uint16 = 0x0003
)

// FieldAttributes bits (ECMA-335 §II.23.1.5).
const (
	FieldAttrPublic      uint16 = 0x0006
	FieldAttrStatic      uint16 = 0x0010
	FieldAttrLiteral     uint16 = 0x0040
	FieldAttrHasDefault  uint16 = 0x8000
	FieldAttrRTSpecialName uint16 = 0x0400
	FieldAttrSpecialName uint16 = 0x0200
)

// ParamAttributes bits (ECMA-335 §II.23.1.13).
const ParamAttrNone uint16 = 0x0000

// PInvokeAttributes bits (ECMA-335 §II.23.1.8) this emitter sets for every
// ImplMap row: ANSI charset, no mangling, and the calling-convention bits
// (spec §4.4 "charset = ANSI and the appropriate calling-convention bits").
const (
	PInvokeNoMangle      uint16 = 0x0001
	PInvokeCharSetAnsi    uint16 = 0x0002
	PInvokeCallConvWinapi uint16 = 0x0100
	PInvokeCallConvCdecl  uint16 = 0x0200
	PInvokeCallConvStdcall uint16 = 0x0300
	PInvokeCallConvFastcall uint16 = 0x0500
)

func pinvokeCallConv(cc CallConv) uint16 {
	switch cc {
	case CallConvStdcall:
		return PInvokeCallConvStdcall
	case CallConvFastcall:
		return PInvokeCallConvFastcall
	default:
		return PInvokeCallConvCdecl
	}
}

// Row struct shapes below mirror the teacher's own *TableRow types in
// dotnet_metadata_tables.go field-for-field; the teacher reads these fields
// off a metadata stream, this emitter writes them onto one. Coded-index
// fields (Extends, Parent, Class, MemberForwarded, ResolutionScope) hold an
// already-resolved raw coded-index value (codedindex.go), not a bare table
// row index.

type ModuleRow struct {
	Generation uint16
	Name       uint32 // #Strings
	Mvid       uint32 // #GUID
	EncID      uint32
	EncBaseID  uint32
}

type TypeRefRow struct {
	ResolutionScope uint32 // ResolutionScope coded index
	TypeName        uint32 // #Strings
	TypeNamespace   uint32 // #Strings
}

type TypeDefRow struct {
	Flags         uint32
	TypeName      uint32 // #Strings
	TypeNamespace uint32 // #Strings
	Extends       uint32 // TypeDefOrRef coded index
	FieldList     uint32 // first Field row index (1-based)
	MethodList    uint32 // first MethodDef row index (1-based)
}

type FieldRow struct {
	Flags     uint16
	Name      uint32 // #Strings
	Signature uint32 // #Blob
}

type MethodDefRow struct {
	RVA       uint32
	ImplFlags uint16
	Flags     uint16
	Name      uint32 // #Strings
	Signature uint32 // #Blob
	ParamList uint32 // first Param row index (1-based)
}

type ParamRow struct {
	Flags    uint16
	Sequence uint16
	Name     uint32 // #Strings
}

type MemberRefRow struct {
	Class     uint32 // MemberRefParent coded index
	Name      uint32 // #Strings
	Signature uint32 // #Blob
}

type ConstantRow struct {
	Type    uint8
	Padding uint8
	Parent  uint32 // HasConstant coded index
	Value   uint32 // #Blob
}

type CustomAttributeRow struct {
	Parent uint32 // HasCustomAttribute coded index
	Type   uint32 // CustomAttributeType coded index
	Value  uint32 // #Blob
}

type ClassLayoutRow struct {
	PackingSize uint16
	ClassSize   uint32
	Parent      uint32 // TypeDef row index
}

type FieldLayoutRow struct {
	Offset uint32
	Field  uint32 // Field row index
}

type StandAloneSigRow struct {
	Signature uint32 // #Blob
}

type ModuleRefRow struct {
	Name uint32 // #Strings
}

type TypeSpecRow struct {
	Signature uint32 // #Blob
}

type ImplMapRow struct {
	MappingFlags    uint16
	MemberForwarded uint32 // MemberForwarded coded index
	ImportName      uint32 // #Strings
	ImportScope     uint32 // ModuleRef row index
}

type AssemblyRow struct {
	HashAlgId      uint32
	MajorVersion   uint16
	MinorVersion   uint16
	BuildNumber    uint16
	RevisionNumber uint16
	Flags          uint32
	PublicKey      uint32 // #Blob
	Name           uint32 // #Strings
	Culture        uint32 // #Strings
}

type AssemblyRefRow struct {
	MajorVersion     uint16
	MinorVersion     uint16
	BuildNumber      uint16
	RevisionNumber   uint16
	Flags            uint32
	PublicKeyOrToken uint32 // #Blob
	Name             uint32 // #Strings
	Culture          uint32 // #Strings
	HashValue        uint32 // #Blob
}

// TableSet holds every row slice this emitter ever populates. Row indices
// used in coded-index fields are 1-based per ECMA-335 (0 means null); the
// emitter appends rows in the final table order (spec §4.4 ordering rules)
// before computing any coded-index width, satisfying the "two-pass"
// constraint of SPEC_FULL.md §4.4.1.
type TableSet struct {
	Module        []ModuleRow
	TypeRef       []TypeRefRow
	TypeDef       []TypeDefRow
	Field         []FieldRow
	MethodDef     []MethodDefRow
	Param         []ParamRow
	MemberRef     []MemberRefRow
	Constant      []ConstantRow
	CustomAttribute []CustomAttributeRow
	ClassLayout   []ClassLayoutRow
	FieldLayout   []FieldLayoutRow
	StandAloneSig []StandAloneSigRow
	ModuleRef     []ModuleRefRow
	TypeSpec      []TypeSpecRow
	ImplMap       []ImplMapRow
	Assembly      []AssemblyRow
	AssemblyRef   []AssemblyRefRow
}

// RowCount returns the number of rows in table index idx, the input
// codedindex.go's width resolution needs.
func (t *TableSet) RowCount(idx int) uint32 {
	switch idx {
	case TableModule:
		return uint32(len(t.Module))
	case TableTypeRef:
		return uint32(len(t.TypeRef))
	case TableTypeDef:
		return uint32(len(t.TypeDef))
	case TableField:
		return uint32(len(t.Field))
	case TableMethodDef:
		return uint32(len(t.MethodDef))
	case TableParam:
		return uint32(len(t.Param))
	case TableMemberRef:
		return uint32(len(t.MemberRef))
	case TableConstant:
		return uint32(len(t.Constant))
	case TableCustomAttribute:
		return uint32(len(t.CustomAttribute))
	case TableClassLayout:
		return uint32(len(t.ClassLayout))
	case TableFieldLayout:
		return uint32(len(t.FieldLayout))
	case TableStandAloneSig:
		return uint32(len(t.StandAloneSig))
	case TableModuleRef:
		return uint32(len(t.ModuleRef))
	case TableTypeSpec:
		return uint32(len(t.TypeSpec))
	case TableImplMap:
		return uint32(len(t.ImplMap))
	case TableAssembly:
		return uint32(len(t.Assembly))
	case TableAssemblyRef:
		return uint32(len(t.AssemblyRef))
	default:
		return 0
	}
}

// Present reports whether table idx has any rows in this set, the bit that
// drives the #~ stream header's Valid bitmask (ECMA-335 §II.24.2.6).
func (t *TableSet) Present(idx int) bool {
	return t.RowCount(idx) > 0
}

// presentTables lists, in ascending table-index order, every table index
// this TableSet could ever populate; used to build the Valid bitmask and
// to iterate rows in on-disk order.
var presentTables = []int{
	TableModule, TableTypeRef, TableTypeDef, TableField, TableMethodDef,
	TableParam, TableMemberRef, TableConstant, TableCustomAttribute,
	TableClassLayout, TableFieldLayout, TableStandAloneSig, TableModuleRef,
	TableTypeSpec, TableImplMap, TableAssembly, TableAssemblyRef,
}
