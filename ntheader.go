// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import "bytes"

// ImageFileHeader contains the physical layout and properties shared by
// every PE image: machine type, section count, and the size/characteristics
// of the optional header that follows it.
type ImageFileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable  uint32
	NumberOfSymbols       uint32
	SizeOfOptionalHeader  uint16
	Characteristics       uint16
}

// ImageOptionalHeader64 is the PE32+ optional header. This emitter never
// writes a 32-bit image (spec §1's x86-64 ABI target), so ImageOptionalHeader32
// has no counterpart here.
type ImageOptionalHeader64 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders                uint32
	CheckSum                     uint32
	Subsystem                    uint16
	DllCharacteristics            uint16
	SizeOfStackReserve            uint64
	SizeOfStackCommit             uint64
	SizeOfHeapReserve             uint64
	SizeOfHeapCommit              uint64
	LoaderFlags                   uint32
	NumberOfRvaAndSizes           uint32
	DataDirectory                 [16]DataDirectory
}

// DataDirectory is one entry of the optional header's 16-entry data
// directory array; this emitter only ever sets ImageDirectoryEntryCLR.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

func ntHeaderSize() uint32 {
	// Signature (4) + ImageFileHeader (20) + ImageOptionalHeader64.
	return 4 + 20 + ntOptionalHeaderSize()
}

func ntOptionalHeaderSize() uint32 {
	buf := bytes.NewBuffer(nil)
	writeLE(buf, ImageOptionalHeader64{})
	return uint32(buf.Len())
}

// BuildNTHeader assembles the IMAGE_NT_HEADERS64 (signature, FileHeader,
// OptionalHeader64) for a single-section PE32+ DLL whose CLR data directory
// points at cliRVA/cliSize (spec §4.5).
func BuildNTHeader(sizeOfHeaders, sizeOfImage, sectionAlignment, cliRVA, cliSize uint32) []byte {
	fh := ImageFileHeader{
		Machine:              ImageFileMachineAMD64,
		NumberOfSections:     1,
		SizeOfOptionalHeader: uint16(ntOptionalHeaderSize()),
		Characteristics: ImageFileExecutableImage | ImageFileLargeAddressAware |
			ImageFileDLL,
	}

	oh := ImageOptionalHeader64{
		Magic:                       ImageNtOptionalHeader64Magic,
		MajorLinkerVersion:          0x30,
		SectionAlignment:            sectionAlignment,
		FileAlignment:               defaultFileAlignment,
		MajorOperatingSystemVersion: 4,
		MajorSubsystemVersion:       4,
		SizeOfImage:                 sizeOfImage,
		SizeOfHeaders:               sizeOfHeaders,
		Subsystem:                   ImageSubsystemWindowsCUI,
		DllCharacteristics: ImageDllCharacteristicsDynamicBase | ImageDllCharacteristicsNXCompact |
			ImageDllCharacteristicsNoSEH | ImageDllCharacteristicsTerminalServiceAware,
		ImageBase:           defaultImageBase,
		SizeOfStackReserve:  0x100000,
		SizeOfStackCommit:   0x1000,
		SizeOfHeapReserve:   0x100000,
		SizeOfHeapCommit:    0x1000,
		NumberOfRvaAndSizes: 16,
	}
	oh.DataDirectory[ImageDirectoryEntryCLR] = DataDirectory{VirtualAddress: cliRVA, Size: cliSize}

	buf := bytes.NewBuffer(nil)
	writeLE(buf, uint32(ImageNTSignature))
	writeLE(buf, fh)
	writeLE(buf, oh)
	return buf.Bytes()
}

// ImageFileLargeAddressAware marks the image as able to handle addresses
// larger than 2GB, set by every modern 64-bit managed compiler.
const ImageFileLargeAddressAware = 0x0020
