// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import "bytes"

// ImageCOR20Header is the CLI header (IMAGE_COR20_HEADER, ECMA-335
// §II.25.3.3) every managed PE carries in its CLR data directory.
type ImageCOR20Header struct {
	CB                  uint32
	MajorRuntimeVersion  uint16
	MinorRuntimeVersion  uint16
	MetaData             DataDirectory
	Flags                uint32
	EntryPointToken       uint32
	Resources             DataDirectory
	StrongNameSignature   DataDirectory
	CodeManagerTable      DataDirectory
	VTableFixups          DataDirectory
	ExportAddressTableJumps DataDirectory
	ManagedNativeHeader   DataDirectory
}

// COMImageFlags bits (ECMA-335 §II.25.3.3.1). ComImageFlagsILOnly is the
// only flag this emitter ever sets: a pure-metadata assembly carries no
// native code and targets no specific bitness.
const (
	ComImageFlagsILOnly       uint32 = 0x00000001
	ComImageFlags32BitRequired uint32 = 0x00000002
	ComImageFlagsStrongNameSigned uint32 = 0x00000008
)

// buildCLIHeader returns the 72-byte CLI header with its MetaData directory
// pointing at metadataRVA/metadataSize.
func buildCLIHeader(metadataRVA, metadataSize uint32) []byte {
	h := ImageCOR20Header{
		CB:                  72,
		MajorRuntimeVersion: 2,
		MinorRuntimeVersion: 5,
		MetaData:            DataDirectory{VirtualAddress: metadataRVA, Size: metadataSize},
		Flags:               ComImageFlagsILOnly,
	}
	buf := bytes.NewBuffer(nil)
	writeLE(buf, h)
	return buf.Bytes()
}

// bsjbSignature is the metadata root's magic number, ECMA-335 §II.24.2.1 —
// "BSJB" read as a little-endian uint32, the initials of the four engineers
// who designed the format.
const bsjbSignature = 0x424A5342

const metadataVersionString = "v4.0.30319"

// buildMetadataRoot assembles the METADATA_ROOT (ECMA-335 §II.24.2.1): its
// fixed header, the version string, then the stream headers and stream
// bodies for #~, #Strings, #US, #GUID and #Blob in that order.
func buildMetadataRoot(tableStream, stringsHeap, usHeap, guidHeap, blobHeap []byte) []byte {
	type stream struct {
		name string
		body []byte
	}
	streams := []stream{
		{"#~", tableStream},
		{"#Strings", stringsHeap},
		{"#US", usHeap},
		{"#GUID", guidHeap},
		{"#Blob", blobHeap},
	}

	buf := bytes.NewBuffer(nil)
	writeLE(buf, uint32(bsjbSignature))
	writeLE(buf, uint16(1)) // MajorVersion
	writeLE(buf, uint16(1)) // MinorVersion
	writeLE(buf, uint32(0)) // Reserved

	verPadded := padStringTo4(metadataVersionString)
	writeLE(buf, uint32(len(verPadded)))
	buf.Write(verPadded)

	writeLE(buf, uint16(0))             // Flags
	writeLE(buf, uint16(len(streams))) // NumberOfStreams

	// Stream headers are written before stream bodies, with offsets
	// relative to the start of the metadata root (ECMA-335 §II.24.2.2).
	headerSize := 0
	for _, s := range streams {
		headerSize += 8 + len(padStringTo4(s.name))
	}
	rootPreambleSize := buf.Len()
	offset := uint32(rootPreambleSize + headerSize)

	headerBuf := bytes.NewBuffer(nil)
	bodyBuf := bytes.NewBuffer(nil)
	for _, s := range streams {
		writeLE(headerBuf, offset)
		writeLE(headerBuf, uint32(len(s.body)))
		headerBuf.Write(padStringTo4(s.name))
		bodyBuf.Write(s.body)
		offset += uint32(len(s.body))
	}

	buf.Write(headerBuf.Bytes())
	buf.Write(bodyBuf.Bytes())
	return buf.Bytes()
}

func padStringTo4(s string) []byte {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

// heapWidths records whether each content-addressed heap needs 4-byte (as
// opposed to 2-byte) indices in table rows, per ECMA-335 §II.24.2.6's Heaps
// flags byte: a heap under 64KB gets 2-byte indices.
type heapWidths struct {
	stringWide bool
	guidWide   bool
	blobWide   bool
}

func resolveHeapWidths(stringsLen, guidsLen, blobsLen int) heapWidths {
	return heapWidths{
		stringWide: stringsLen > 0xFFFF,
		guidWide:   guidsLen > 0xFFFF,
		blobWide:   blobsLen > 0xFFFF,
	}
}

func (h heapWidths) stringIdx(v uint32, buf *bytes.Buffer) {
	writeHeapIndex(buf, v, h.stringWide)
}
func (h heapWidths) guidIdx(v uint32, buf *bytes.Buffer) {
	writeHeapIndex(buf, v, h.guidWide)
}
func (h heapWidths) blobIdx(v uint32, buf *bytes.Buffer) {
	writeHeapIndex(buf, v, h.blobWide)
}

func writeHeapIndex(buf *bytes.Buffer, v uint32, wide bool) {
	if wide {
		writeLE(buf, v)
	} else {
		writeLE(buf, uint16(v))
	}
}

func writeCodedIndex(buf *bytes.Buffer, v, width uint32) {
	if width == 4 {
		writeLE(buf, v)
	} else {
		writeLE(buf, uint16(v))
	}
}

func writeTableIndex(buf *bytes.Buffer, v uint32, rowCount uint32) {
	if rowCount > 0xFFFF {
		writeLE(buf, v)
	} else {
		writeLE(buf, uint16(v))
	}
}

// buildTableStream serializes the #~ logical metadata stream (ECMA-335
// §II.24.2.6): the fixed header (Reserved, version, Heaps flags, Rid,
// MaskValid/Sorted bitmasks, per-table row counts) followed by every
// present table's rows in ascending table-index order.
func buildTableStream(t *TableSet, heaps heapWidths) ([]byte, error) {
	widths := resolveCodedIndexWidths(t)

	var maskValid uint64
	for _, idx := range presentTables {
		if t.Present(idx) {
			maskValid |= 1 << uint(idx)
		}
	}

	buf := bytes.NewBuffer(nil)
	writeLE(buf, uint32(0)) // Reserved
	writeLE(buf, uint8(2))  // MajorVersion
	writeLE(buf, uint8(0))  // MinorVersion

	var heapsFlag uint8
	if heaps.stringWide {
		heapsFlag |= 0x01
	}
	if heaps.guidWide {
		heapsFlag |= 0x02
	}
	if heaps.blobWide {
		heapsFlag |= 0x04
	}
	writeLE(buf, heapsFlag)
	writeLE(buf, uint8(1)) // Rid, unused by any reader but conventionally 1
	writeLE(buf, maskValid)
	writeLE(buf, uint64(0)) // Sorted: this emitter's TypeDef/Field/MethodDef/
	// Param rows are already built in final order (spec §4.4 ordering
	// rules), and ImplMap/ClassLayout/Constant/FieldLayout are appended in
	// parent-token order by emit.go, so nothing here is actually
	// re-sortable at read time; Sorted stays 0 rather than claim an
	// ordering guarantee this writer does not separately enforce.

	for _, idx := range presentTables {
		if t.Present(idx) {
			writeLE(buf, t.RowCount(idx))
		}
	}

	for _, idx := range presentTables {
		if !t.Present(idx) {
			continue
		}
		if err := writeTableRows(buf, t, idx, heaps, widths); err != nil {
			return nil, err
		}
	}

	return pad4(buf.Bytes()), nil
}

func writeTableRows(buf *bytes.Buffer, t *TableSet, idx int, heaps heapWidths, widths codedIndexWidths) error {
	switch idx {
	case TableModule:
		for _, r := range t.Module {
			writeLE(buf, r.Generation)
			heaps.stringIdx(r.Name, buf)
			heaps.guidIdx(r.Mvid, buf)
			heaps.guidIdx(r.EncID, buf)
			heaps.guidIdx(r.EncBaseID, buf)
		}
	case TableTypeRef:
		for _, r := range t.TypeRef {
			writeCodedIndex(buf, r.ResolutionScope, widths.resolutionScope)
			heaps.stringIdx(r.TypeName, buf)
			heaps.stringIdx(r.TypeNamespace, buf)
		}
	case TableTypeDef:
		fieldRows := uint32(len(t.Field))
		methodRows := uint32(len(t.MethodDef))
		for _, r := range t.TypeDef {
			writeLE(buf, r.Flags)
			heaps.stringIdx(r.TypeName, buf)
			heaps.stringIdx(r.TypeNamespace, buf)
			writeCodedIndex(buf, r.Extends, widths.typeDefOrRef)
			writeTableIndex(buf, r.FieldList, fieldRows)
			writeTableIndex(buf, r.MethodList, methodRows)
		}
	case TableField:
		for _, r := range t.Field {
			writeLE(buf, r.Flags)
			heaps.stringIdx(r.Name, buf)
			heaps.blobIdx(r.Signature, buf)
		}
	case TableMethodDef:
		paramRows := uint32(len(t.Param))
		for _, r := range t.MethodDef {
			writeLE(buf, r.RVA)
			writeLE(buf, r.ImplFlags)
			writeLE(buf, r.Flags)
			heaps.stringIdx(r.Name, buf)
			heaps.blobIdx(r.Signature, buf)
			writeTableIndex(buf, r.ParamList, paramRows)
		}
	case TableParam:
		for _, r := range t.Param {
			writeLE(buf, r.Flags)
			writeLE(buf, r.Sequence)
			heaps.stringIdx(r.Name, buf)
		}
	case TableMemberRef:
		for _, r := range t.MemberRef {
			writeCodedIndex(buf, r.Class, widths.memberRefParent)
			heaps.stringIdx(r.Name, buf)
			heaps.blobIdx(r.Signature, buf)
		}
	case TableConstant:
		for _, r := range t.Constant {
			writeLE(buf, r.Type)
			writeLE(buf, r.Padding)
			writeCodedIndex(buf, r.Parent, widths.hasConstant)
			heaps.blobIdx(r.Value, buf)
		}
	case TableCustomAttribute:
		for _, r := range t.CustomAttribute {
			writeCodedIndex(buf, r.Parent, widths.hasCustomAttribute)
			writeCodedIndex(buf, r.Type, widths.customAttributeType)
			heaps.blobIdx(r.Value, buf)
		}
	case TableClassLayout:
		typeDefRows := uint32(len(t.TypeDef))
		for _, r := range t.ClassLayout {
			writeLE(buf, r.PackingSize)
			writeLE(buf, r.ClassSize)
			writeTableIndex(buf, r.Parent, typeDefRows)
		}
	case TableFieldLayout:
		fieldRows := uint32(len(t.Field))
		for _, r := range t.FieldLayout {
			writeLE(buf, r.Offset)
			writeTableIndex(buf, r.Field, fieldRows)
		}
	case TableStandAloneSig:
		for _, r := range t.StandAloneSig {
			heaps.blobIdx(r.Signature, buf)
		}
	case TableModuleRef:
		for _, r := range t.ModuleRef {
			heaps.stringIdx(r.Name, buf)
		}
	case TableTypeSpec:
		for _, r := range t.TypeSpec {
			heaps.blobIdx(r.Signature, buf)
		}
	case TableImplMap:
		moduleRefRows := uint32(len(t.ModuleRef))
		for _, r := range t.ImplMap {
			writeLE(buf, r.MappingFlags)
			writeCodedIndex(buf, r.MemberForwarded, widths.memberForwarded)
			heaps.stringIdx(r.ImportName, buf)
			writeTableIndex(buf, r.ImportScope, moduleRefRows)
		}
	case TableAssembly:
		for _, r := range t.Assembly {
			writeLE(buf, r.HashAlgId)
			writeLE(buf, r.MajorVersion)
			writeLE(buf, r.MinorVersion)
			writeLE(buf, r.BuildNumber)
			writeLE(buf, r.RevisionNumber)
			writeLE(buf, r.Flags)
			heaps.blobIdx(r.PublicKey, buf)
			heaps.stringIdx(r.Name, buf)
			heaps.stringIdx(r.Culture, buf)
		}
	case TableAssemblyRef:
		for _, r := range t.AssemblyRef {
			writeLE(buf, r.MajorVersion)
			writeLE(buf, r.MinorVersion)
			writeLE(buf, r.BuildNumber)
			writeLE(buf, r.RevisionNumber)
			writeLE(buf, r.Flags)
			heaps.blobIdx(r.PublicKeyOrToken, buf)
			heaps.stringIdx(r.Name, buf)
			heaps.stringIdx(r.Culture, buf)
			heaps.blobIdx(r.HashValue, buf)
		}
	}
	return nil
}
