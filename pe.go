// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"bytes"
	"encoding/binary"
)

// PE signature constants, reused verbatim from the teacher's own pe.go
// (SPEC_FULL.md §4.5): this emitter only ever constructs a well-formed
// PE32+ image, so of the teacher's full signature table only the two
// values a writer needs survive (spec §4.5 "wrapped ... in a PE32+
// container").
const (
	ImageDOSSignature = 0x5A4D // MZ
	ImageNTSignature  = 0x00004550 // PE00
)

// ImageNtOptionalHeader64Magic is the only optional-header magic this
// emitter ever writes (PE32+, spec §1 "Windows x86-64 metadata conventions").
const ImageNtOptionalHeader64Magic = 0x20b

// ImageFileMachineAMD64 is the only machine type this emitter writes, per
// spec §1's ABI target.
const ImageFileMachineAMD64 = uint16(0x8664)

// Characteristics flag values for the FileHeader. BuildNTHeader
// (ntheader.go) sets ImageFileExecutableImage and ImageFileDLL, plus
// ImageFileLargeAddressAware; the relocations/line-numbers/symbols-stripped
// and 32-bit-machine values are defined here but not set.
const (
	ImageFileRelocsStripped    = 0x0001
	ImageFileExecutableImage   = 0x0002
	ImageFileLineNumsStripped  = 0x0004
	ImageFileLocalSymsStripped = 0x0008
	ImageFile32BitMachine      = 0x0100
	ImageFileDLL               = 0x2000
)

// ImageSubsystemWindowsCUI is the subsystem value this emitter writes
// (console subsystem; a metadata-only DLL never actually runs, but the
// field must hold a valid value for loaders that inspect it).
const ImageSubsystemWindowsCUI = 3

// DllCharacteristics flags this emitter sets: ASLR-friendly, NX-compatible,
// no structured exception handling, matching what current managed
// compilers emit for a pure-IL/metadata-only image.
const (
	ImageDllCharacteristicsDynamicBase          = 0x0040
	ImageDllCharacteristicsNXCompact            = 0x0100
	ImageDllCharacteristicsNoSEH                = 0x0400
	ImageDllCharacteristicsTerminalServiceAware = 0x8000
)

// ImageDirectoryEntry indexes the 16-entry DataDirectory array of the
// optional header (spec §4.5). This emitter only ever populates the CLR
// entry; the rest stay zeroed.
type ImageDirectoryEntry int

const (
	ImageDirectoryEntryExport ImageDirectoryEntry = iota
	ImageDirectoryEntryImport
	ImageDirectoryEntryResource
	ImageDirectoryEntryException
	ImageDirectoryEntryCertificate
	ImageDirectoryEntryBaseReloc
	ImageDirectoryEntryDebug
	ImageDirectoryEntryArchitecture
	ImageDirectoryEntryGlobalPtr
	ImageDirectoryEntryTLS
	ImageDirectoryEntryLoadConfig
	ImageDirectoryEntryBoundImport
	ImageDirectoryEntryIAT
	ImageDirectoryEntryDelayImport
	ImageDirectoryEntryCLR
	ImageDirectoryEntryReserved
	ImageNumberOfDirectoryEntries
)

// Section alignment defaults (SPEC_FULL.md §4.5): file alignment 0x200,
// the effective minimum the teacher documents for a non-trivial PE; virtual
// alignment 0x2000, matching the single .text section's load granularity.
const (
	defaultFileAlignment    = 0x200
	defaultSectionAlignment = 0x2000
	defaultImageBase        = uint64(0x00400000)
)

// BuildImage assembles the full PE32+ byte image wrapping tables, heaps and
// a CLI header around one .text section (spec §4.5). It is the single
// entry point emit.go calls once every table row and heap has been built.
// It takes no assembly name: that lives in the Assembly table row emit.go
// already appended.
func BuildImage(tables *TableSet, strings *StringHeap, us *USHeap, guids *GUIDHeap, blobs *BlobHeap) ([]byte, error) {
	stringsBytes := strings.Bytes()
	usBytes := us.Bytes()
	guidsBytes := guids.Bytes()
	blobsBytes := blobs.Bytes()

	heaps := resolveHeapWidths(len(stringsBytes), len(guidsBytes), len(blobsBytes))

	tableStreamBytes, err := buildTableStream(tables, heaps)
	if err != nil {
		return nil, err
	}

	// Module.Mvid is a #GUID heap index computed from a content hash of the
	// table stream (SPEC_FULL.md §4.5.1); patching it after the first
	// serialization and re-serializing keeps the hash a pure function of
	// everything except the hash's own eventual home. Adding the GUID can
	// only grow the #GUID heap, never shrink it, so heaps.guidWide cannot
	// flip from wide back to narrow between the two passes.
	mvid := ComputeMVID(tableStreamBytes)
	mvidIndex := guids.Add(mvid)
	if len(tables.Module) > 0 {
		tables.Module[0].Mvid = mvidIndex
		guidsBytes = guids.Bytes()
		heaps = resolveHeapWidths(len(stringsBytes), len(guidsBytes), len(blobsBytes))
		tableStreamBytes, err = buildTableStream(tables, heaps)
		if err != nil {
			return nil, err
		}
	}

	metadataRoot := buildMetadataRoot(tableStreamBytes, stringsBytes, usBytes, guidsBytes, blobsBytes)
	return assemblePE(metadataRoot)
}

// assemblePE lays out the DOS header, NT header, single .text section and
// the .text section's payload (CLI header + metadata root), then
// concatenates everything into the final file bytes. The CLI header is
// built last, once the metadata root's RVA is known, so its MetaData
// directory entry can point at it.
func assemblePE(metadataRoot []byte) ([]byte, error) {
	const cliHeaderSize = 72 // sizeof(IMAGE_COR20_HEADER), ECMA-335 §II.25.3.3

	cliHeaderRVA := uint32(defaultSectionAlignment)
	metadataRootRVA := cliHeaderRVA + cliHeaderSize

	textVirtualSize := cliHeaderSize + uint32(len(metadataRoot))
	textRawSize := alignUp(textVirtualSize, defaultFileAlignment)

	dosHeader, dosStub := BuildDOSHeader()
	ntHeaderOffset := uint32(len(dosHeader) + len(dosStub))

	sectionHeaderOffset := ntHeaderOffset + ntHeaderSize()
	// The .text payload's file offset equals its RVA, so reader.go can read
	// the image back by indexing the file bytes with an RVA.
	textPointerToRawData := cliHeaderRVA

	sizeOfHeaders := alignUp(sectionHeaderOffset+sectionHeaderRowSize, defaultFileAlignment)
	sizeOfImage := alignUp(defaultSectionAlignment+textVirtualSize, defaultSectionAlignment)

	cliHeader := buildCLIHeader(metadataRootRVA, uint32(len(metadataRoot)))

	ntHeader := BuildNTHeader(sizeOfHeaders, sizeOfImage, defaultSectionAlignment, cliHeaderRVA, cliHeaderSize)
	section := BuildSectionHeader(".text", textVirtualSize, defaultSectionAlignment, textRawSize, textPointerToRawData)

	out := bytes.NewBuffer(nil)
	out.Write(dosHeader)
	out.Write(dosStub)
	out.Write(ntHeader)
	out.Write(section)

	for uint32(out.Len()) < textPointerToRawData {
		out.WriteByte(0)
	}
	out.Write(cliHeader)
	out.Write(metadataRoot)
	for uint32(out.Len()) < textPointerToRawData+textRawSize {
		out.WriteByte(0)
	}

	return out.Bytes(), nil
}

func alignUp(v, align uint32) uint32 {
	if v%align == 0 {
		return v
	}
	return (v/align + 1) * align
}

func writeLE(buf *bytes.Buffer, v interface{}) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}
