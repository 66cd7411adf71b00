// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ReadExternalTypes implements the reading half of spec §4.2's external
// import step: open an already-emitted .winmd, walk its #~ TypeDef table,
// and return every (namespace, name) pair whose namespace has nsPrefix as
// a prefix (or every pair when nsPrefix is empty), excluding <Module> and
// Apis per the spec's explicit carve-out.
//
// This is a trimmed, write-domain-adapted descendant of the teacher's
// dotnet.go/dotnet_helper.go/dotnet_metadata_tables.go CLR-metadata reader:
// same PE/DOS/NT header walk to the CLR directory, the same #~ stream
// header shape, the same TypeDef row layout. Everything else those files
// read (imports, exports, resources, TLS, relocations, rich header,
// security certs, debug directories, bound/delay imports, icons, overlay,
// anomaly heuristics) has no counterpart here: this reader only ever looks
// at other winmd-emitter output, never at an arbitrary native PE (see
// DESIGN.md for the itemized drop list).
func ReadExternalTypes(data []byte, nsPrefix string) ([]ExternalType, error) {
	cliRVA, err := locateCLIHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalWinMDRead, err)
	}
	metadataRVA, err := readCLIMetadataRVA(data, cliRVA)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalWinMDRead, err)
	}
	// This reader only ever consumes its own writer's output, where file
	// offsets equal RVAs (a single .text section based at the image's
	// first raw byte after headers, §4.5): no RVA-to-file-offset section
	// walk is needed, unlike the teacher's general-purpose reader.
	root := data[metadataRVA:]

	streams, err := parseMetadataRoot(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalWinMDRead, err)
	}
	tableStream, ok := streams["#~"]
	if !ok {
		return nil, fmt.Errorf("%w: missing #~ stream", ErrExternalWinMDRead)
	}
	strings, ok := streams["#Strings"]
	if !ok {
		return nil, fmt.Errorf("%w: missing #Strings stream", ErrExternalWinMDRead)
	}

	rows, err := parseTypeDefRows(tableStream)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalWinMDRead, err)
	}

	var out []ExternalType
	for _, r := range rows {
		name := readCString(strings, r.name)
		ns := readCString(strings, r.namespace)
		if name == "<Module>" || name == "Apis" {
			continue
		}
		if nsPrefix != "" && !hasNamespacePrefix(ns, nsPrefix) {
			continue
		}
		out = append(out, ExternalType{Namespace: ns, Name: name})
	}
	return out, nil
}

func hasNamespacePrefix(ns, prefix string) bool {
	if ns == prefix {
		return true
	}
	return len(ns) > len(prefix) && ns[:len(prefix)] == prefix && ns[len(prefix)] == '.'
}

// locateCLIHeader walks the DOS header's e_lfanew, the NT header's
// FileHeader/OptionalHeader64, and the single data directory entry this
// reader cares about, returning the CLR directory's VirtualAddress.
func locateCLIHeader(data []byte) (uint32, error) {
	if len(data) < 0x40 {
		return 0, fmt.Errorf("file too small for a DOS header")
	}
	if binary.LittleEndian.Uint16(data[0:2]) != ImageDOSSignature {
		return 0, fmt.Errorf("bad DOS signature")
	}
	lfanew := binary.LittleEndian.Uint32(data[0x3c:0x40])
	if uint64(lfanew)+4+20+2 > uint64(len(data)) {
		return 0, fmt.Errorf("e_lfanew out of range")
	}
	if binary.LittleEndian.Uint32(data[lfanew:lfanew+4]) != ImageNTSignature {
		return 0, fmt.Errorf("bad NT signature")
	}
	fileHeaderOff := lfanew + 4
	sizeOfOptionalHeader := binary.LittleEndian.Uint16(data[fileHeaderOff+16 : fileHeaderOff+18])
	optionalHeaderOff := fileHeaderOff + 20
	if uint64(optionalHeaderOff)+uint64(sizeOfOptionalHeader) > uint64(len(data)) {
		return 0, fmt.Errorf("optional header out of range")
	}
	magic := binary.LittleEndian.Uint16(data[optionalHeaderOff : optionalHeaderOff+2])
	if magic != ImageNtOptionalHeader64Magic {
		return 0, fmt.Errorf("unsupported optional header magic %#x", magic)
	}
	// DataDirectory[CLR] sits at a fixed offset within ImageOptionalHeader64
	// (112 bytes of fixed fields precede the 16-entry array; see
	// ntheader.go's field layout).
	const dataDirOffsetInOptional = 112
	clrDirOff := optionalHeaderOff + dataDirOffsetInOptional + uint32(ImageDirectoryEntryCLR)*8
	if uint64(clrDirOff)+8 > uint64(len(data)) {
		return 0, fmt.Errorf("CLR data directory out of range")
	}
	return binary.LittleEndian.Uint32(data[clrDirOff : clrDirOff+4]), nil
}

func readCLIMetadataRVA(data []byte, cliRVA uint32) (uint32, error) {
	if uint64(cliRVA)+72 > uint64(len(data)) {
		return 0, fmt.Errorf("CLI header out of range")
	}
	// ImageCOR20Header.MetaData is the DataDirectory at offset 8.
	return binary.LittleEndian.Uint32(data[cliRVA+8 : cliRVA+12]), nil
}

func parseMetadataRoot(root []byte) (map[string][]byte, error) {
	if len(root) < 16 {
		return nil, fmt.Errorf("metadata root too small")
	}
	if binary.LittleEndian.Uint32(root[0:4]) != bsjbSignature {
		return nil, fmt.Errorf("bad metadata root signature")
	}
	verLen := binary.LittleEndian.Uint32(root[12:16])
	off := 16 + verLen
	if uint64(off)+4 > uint64(len(root)) {
		return nil, fmt.Errorf("metadata root truncated at version string")
	}
	off += 2 // Flags
	numStreams := binary.LittleEndian.Uint16(root[off : off+2])
	off += 2

	streams := make(map[string][]byte, numStreams)
	for i := uint16(0); i < numStreams; i++ {
		if uint64(off)+8 > uint64(len(root)) {
			return nil, fmt.Errorf("stream header %d truncated", i)
		}
		streamOff := binary.LittleEndian.Uint32(root[off : off+4])
		streamSize := binary.LittleEndian.Uint32(root[off+4 : off+8])
		off += 8
		name, consumed := readPaddedCString(root[off:])
		off += uint32(consumed)
		if uint64(streamOff)+uint64(streamSize) > uint64(len(root)) {
			return nil, fmt.Errorf("stream %q out of range", name)
		}
		streams[name] = root[streamOff : streamOff+streamSize]
	}
	return streams, nil
}

func readPaddedCString(b []byte) (string, int) {
	end := bytes.IndexByte(b, 0)
	if end < 0 {
		return "", len(b)
	}
	total := end + 1
	for total%4 != 0 {
		total++
	}
	return string(b[:end]), total
}

func readCString(b []byte, off uint32) string {
	if int(off) >= len(b) {
		return ""
	}
	end := bytes.IndexByte(b[off:], 0)
	if end < 0 {
		return string(b[off:])
	}
	return string(b[off : off+uint32(end)])
}

type typeDefRowOffsets struct {
	namespace uint32
	name      uint32
}

// tableStreamHeader is the #~ stream's fixed header (ECMA-335 §II.24.2.6)
// re-derived the same way the teacher's getCodedIndexSize/
// parseMetadataTablesHeader pair does: heap index widths, per-table row
// counts (only present tables carry one), and the coded-index widths those
// counts imply.
type tableStreamHeader struct {
	rowCounts map[int]uint32
	widths    codedIndexWidths
	heaps     heapWidths
	dataOff   uint32
}

func parseTableStreamHeader(stream []byte) (tableStreamHeader, error) {
	if len(stream) < 24 {
		return tableStreamHeader{}, fmt.Errorf("table stream too small")
	}
	heapsFlag := stream[6]
	heaps := heapWidths{
		stringWide: heapsFlag&0x01 != 0,
		guidWide:   heapsFlag&0x02 != 0,
		blobWide:   heapsFlag&0x04 != 0,
	}
	maskValid := binary.LittleEndian.Uint64(stream[8:16])
	off := uint32(24)

	rowCounts := make(map[int]uint32, len(presentTables))
	for _, idx := range presentTables {
		if maskValid&(1<<uint(idx)) != 0 {
			if uint64(off)+4 > uint64(len(stream)) {
				return tableStreamHeader{}, fmt.Errorf("row count table truncated")
			}
			rowCounts[idx] = binary.LittleEndian.Uint32(stream[off : off+4])
			off += 4
		}
	}

	return tableStreamHeader{
		rowCounts: rowCounts,
		widths:    resolveCodedIndexWidthsFromCounts(rowCounts),
		heaps:     heaps,
		dataOff:   off,
	}, nil
}

// walkTable scans every present table in ascending index order, invoking
// visit once per row of wantIdx with that row's raw bytes; every other
// present table's rows are skipped at their own (possibly 2- or 4-byte
// varying) width so wantIdx's rows are located correctly regardless of
// which tables precede it in the stream.
func walkTable(stream []byte, h tableStreamHeader, wantIdx int, visit func(row []byte) error) error {
	off := h.dataOff
	for _, idx := range presentTables {
		rc, present := h.rowCounts[idx]
		if !present {
			continue
		}
		rowSize, err := rowSizeFor(idx, rc, h.rowCounts, h.heaps, h.widths)
		if err != nil {
			return err
		}
		if idx != wantIdx {
			off += rc * rowSize
			continue
		}
		for r := uint32(0); r < rc; r++ {
			if uint64(off)+uint64(rowSize) > uint64(len(stream)) {
				return fmt.Errorf("table %#x row %d truncated", idx, r)
			}
			if err := visit(stream[off : off+rowSize]); err != nil {
				return err
			}
			off += rowSize
		}
	}
	return nil
}

// parseTypeDefRows walks only the TypeDef rows, skipping every other
// present table's rows at their own width.
func parseTypeDefRows(stream []byte) ([]typeDefRowOffsets, error) {
	h, err := parseTableStreamHeader(stream)
	if err != nil {
		return nil, err
	}
	var typeDefRows []typeDefRowOffsets
	err = walkTable(stream, h, TableTypeDef, func(row []byte) error {
		nsOff, nameOff, _ := decodeTypeDefRowNames(row, h.heaps)
		typeDefRows = append(typeDefRows, typeDefRowOffsets{namespace: nsOff, name: nameOff})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return typeDefRows, nil
}

// customAttributeFieldTag is codedHasCustomAttribute's tag value for the
// Field table (position 1 in its tables list, codedindex.go).
const customAttributeFieldTag = 1

// parseCustomAttributeRows walks only the CustomAttribute rows, decoding
// each row's HasCustomAttribute Parent (tag + row index) and #Blob Value
// offset.
func parseCustomAttributeRows(stream []byte) ([]customAttributeRowOffsets, error) {
	h, err := parseTableStreamHeader(stream)
	if err != nil {
		return nil, err
	}
	var rows []customAttributeRowOffsets
	err = walkTable(stream, h, TableCustomAttribute, func(row []byte) error {
		parent, n := readCodedIdxAt(row, 0, h.widths.hasCustomAttribute)
		off := n
		_, n2 := readCodedIdxAt(row, off, h.widths.customAttributeType)
		off += n2
		value, _ := readHeapIdxAt(row, off, h.heaps.blobWide)
		tagBits := uint32(codedHasCustomAttribute.tagBits)
		mask := uint32(1)<<tagBits - 1
		rows = append(rows, customAttributeRowOffsets{
			parentTag: parent & mask,
			parentRow: parent >> tagBits,
			value:     value,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type customAttributeRowOffsets struct {
	parentTag uint32
	parentRow uint32
	value     uint32
}

func readCodedIdxAt(b []byte, off int, width uint32) (uint32, int) {
	if width == 4 {
		return binary.LittleEndian.Uint32(b[off : off+4]), 4
	}
	return uint32(binary.LittleEndian.Uint16(b[off : off+2])), 2
}

// BitfieldAttribute is one bitfield-offset CustomAttribute this emitter
// attached to a Field row, decoded back from its #Blob payload (spec §4.4
// "Bitfield fields additionally emit the BitfieldOffset attribute (width +
// offset)", exercised by spec §8 "S6").
type BitfieldAttribute struct {
	FieldRow uint32
	Width    uint32
	Offset   uint32
}

// ReadBitfieldAttributes reads back every bitfield-offset CustomAttribute
// in an emitted .winmd, proving the width+offset this emitter attaches to
// a bitfield Field row survives the round trip (spec §8 "S6").
func ReadBitfieldAttributes(data []byte) ([]BitfieldAttribute, error) {
	cliRVA, err := locateCLIHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalWinMDRead, err)
	}
	metadataRVA, err := readCLIMetadataRVA(data, cliRVA)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalWinMDRead, err)
	}
	root := data[metadataRVA:]

	streams, err := parseMetadataRoot(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalWinMDRead, err)
	}
	tableStream, ok := streams["#~"]
	if !ok {
		return nil, fmt.Errorf("%w: missing #~ stream", ErrExternalWinMDRead)
	}
	blobs, ok := streams["#Blob"]
	if !ok {
		return nil, fmt.Errorf("%w: missing #Blob stream", ErrExternalWinMDRead)
	}

	rows, err := parseCustomAttributeRows(tableStream)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalWinMDRead, err)
	}

	var out []BitfieldAttribute
	for _, r := range rows {
		if r.parentTag != customAttributeFieldTag {
			continue
		}
		width, offset, ok := decodeBitfieldAttributeBlob(blobs, r.value)
		if !ok {
			continue
		}
		out = append(out, BitfieldAttribute{FieldRow: r.parentRow, Width: width, Offset: offset})
	}
	return out, nil
}

// decodeBitfieldAttributeBlob decodes a custom attribute blob (ECMA-335
// §II.23.3): a 0x0001 prolog, two raw little-endian Int32 fixed arguments
// (width, offset), then a zero NumNamed — the inverse of
// encodeBitfieldAttributeBlob (emit.go).
func decodeBitfieldAttributeBlob(blobs []byte, off uint32) (width, offset uint32, ok bool) {
	if uint64(off) >= uint64(len(blobs)) {
		return 0, 0, false
	}
	length, n, ok := decodeCompressedUint(blobs[off:])
	if !ok {
		return 0, 0, false
	}
	start := uint64(off) + uint64(n)
	end := start + uint64(length)
	if length < 10 || end > uint64(len(blobs)) {
		return 0, 0, false
	}
	payload := blobs[start:end]
	width = binary.LittleEndian.Uint32(payload[2:6])
	offset = binary.LittleEndian.Uint32(payload[6:10])
	return width, offset, true
}

func heapIdxSize(wide bool) uint32 {
	if wide {
		return 4
	}
	return 2
}

func codedIdxSize(width uint32) uint32 { return width }

func tableIdxSize(rowCount uint32) uint32 {
	if rowCount > 0xFFFF {
		return 4
	}
	return 2
}

// rowSizeFor computes one row's byte width for table idx, mirroring the
// field layout writeTableRows (clrheader.go) uses to serialize it.
func rowSizeFor(idx int, _ uint32, counts map[int]uint32, heaps heapWidths, widths codedIndexWidths) (uint32, error) {
	str := heapIdxSize(heaps.stringWide)
	guid := heapIdxSize(heaps.guidWide)
	blob := heapIdxSize(heaps.blobWide)
	switch idx {
	case TableModule:
		return 2 + str + guid*3, nil
	case TableTypeRef:
		return codedIdxSize(widths.resolutionScope) + str*2, nil
	case TableTypeDef:
		return 4 + str*2 + codedIdxSize(widths.typeDefOrRef) + tableIdxSize(counts[TableField]) + tableIdxSize(counts[TableMethodDef]), nil
	case TableField:
		return 2 + str + blob, nil
	case TableMethodDef:
		return 4 + 2 + 2 + str + blob + tableIdxSize(counts[TableParam]), nil
	case TableParam:
		return 2 + 2 + str, nil
	case TableMemberRef:
		return codedIdxSize(widths.memberRefParent) + str + blob, nil
	case TableConstant:
		return 2 + codedIdxSize(widths.hasConstant) + blob, nil
	case TableCustomAttribute:
		return codedIdxSize(widths.hasCustomAttribute) + codedIdxSize(widths.customAttributeType) + blob, nil
	case TableClassLayout:
		return 2 + 4 + tableIdxSize(counts[TableTypeDef]), nil
	case TableFieldLayout:
		return 4 + tableIdxSize(counts[TableField]), nil
	case TableStandAloneSig:
		return blob, nil
	case TableModuleRef:
		return str, nil
	case TableTypeSpec:
		return blob, nil
	case TableImplMap:
		return 2 + codedIdxSize(widths.memberForwarded) + str + tableIdxSize(counts[TableModuleRef]), nil
	case TableAssembly:
		return 4 + 2*4 + 4 + blob + str*2, nil
	case TableAssemblyRef:
		return 2*4 + 4 + blob + str*2 + blob, nil
	default:
		return 0, fmt.Errorf("unsupported table index %#x in external winmd", idx)
	}
}

func decodeTypeDefRowNames(row []byte, heaps heapWidths) (namespace, name uint32, consumed int) {
	off := 4 // Flags
	nameOff, nameW := readHeapIdxAt(row, off, heaps.stringWide)
	off += int(nameW)
	nsOff, nsW := readHeapIdxAt(row, off, heaps.stringWide)
	off += int(nsW)
	return nsOff, nameOff, off
}

func readHeapIdxAt(b []byte, off int, wide bool) (uint32, uint32) {
	if wide {
		return binary.LittleEndian.Uint32(b[off : off+4]), 4
	}
	return uint32(binary.LittleEndian.Uint16(b[off : off+2])), 2
}

// resolveCodedIndexWidthsFromCounts is resolveCodedIndexWidths (codedindex.go)
// re-expressed over a plain row-count map instead of a live *TableSet, since
// a reader only has the counts the stream header reported, never the
// TableSet a writer builds incrementally.
func resolveCodedIndexWidthsFromCounts(counts map[int]uint32) codedIndexWidths {
	widthOfCounts := func(c codedIndex) uint32 {
		maxIndex16 := uint32(1) << (16 - c.tagBits)
		var maxRows uint32
		for _, tbl := range c.tables {
			if rc := counts[tbl]; rc > maxRows {
				maxRows = rc
			}
		}
		if maxRows >= maxIndex16 {
			return 4
		}
		return 2
	}
	return codedIndexWidths{
		typeDefOrRef:        widthOfCounts(codedTypeDefOrRef),
		resolutionScope:     widthOfCounts(codedResolutionScope),
		memberRefParent:     widthOfCounts(codedMemberRefParent),
		hasConstant:         widthOfCounts(codedHasConstant),
		memberForwarded:     widthOfCounts(codedMemberForwarded),
		hasCustomAttribute:  widthOfCounts(codedHasCustomAttribute),
		customAttributeType: widthOfCounts(codedCustomAttributeType),
	}
}
