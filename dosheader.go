// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"bytes"
	"encoding/binary"
)

// ImageDOSHeader is the DOS stub header every PE file begins with. Every
// field besides Magic and AddressOfNewEXEHeader is vestigial by the time a
// loader reaches the NT headers, but the shape is kept intact (rather than
// collapsed to the two fields this emitter actually sets) since it is the
// same struct a reader would unmarshal into, and reader.go round-trips
// against it (spec §8 invariant 1).
type ImageDOSHeader struct {
	Magic                    uint16
	BytesOnLastPageOfFile    uint16
	PagesInFile              uint16
	Relocations              uint16
	SizeOfHeader             uint16
	MinExtraParagraphsNeeded uint16
	MaxExtraParagraphsNeeded uint16
	InitialSS                uint16
	InitialSP                uint16
	Checksum                 uint16
	InitialIP                uint16
	InitialCS                uint16
	AddressOfRelocationTable uint16
	OverlayNumber            uint16
	ReservedWords1           [4]uint16
	OEMIdentifier            uint16
	OEMInformation           uint16
	ReservedWords2           [10]uint16
	AddressOfNewEXEHeader    uint32
}

// dosStubProgram is the classic "cannot be run in DOS mode" program: a tiny
// 16-bit stub that prints the message and exits when the image is run
// outside Windows. A metadata-only assembly never needs this to actually
// execute, but every managed compiler emits it and omitting it would make
// the output look hand-forged next to a real .winmd.
var dosStubProgram = []byte{
	0x0e, 0x1f, 0xba, 0x0e, 0x00, 0xb4, 0x09, 0xcd,
	0x21, 0xb8, 0x01, 0x4c, 0xcd, 0x21,
}

var dosStubMessage = []byte("This program cannot be run in DOS mode.\r\r\n$")

// BuildDOSHeader returns the 64-byte DOS header followed by the DOS stub
// program and message, padded so the NT header starts at a predictable
// offset (spec §4.5).
func BuildDOSHeader() (header, stub []byte) {
	const headerSize = 64
	h := ImageDOSHeader{
		Magic:                 ImageDOSSignature,
		BytesOnLastPageOfFile: 0x90,
		PagesInFile:           0x03,
		Relocations:           0,
		SizeOfHeader:          4,
		MaxExtraParagraphsNeeded: 0xFFFF,
		InitialSS:             0,
		InitialSP:             0xB8,
		AddressOfRelocationTable: 0x40,
		AddressOfNewEXEHeader:    headerSize + uint32(len(dosStubProgram)+len(dosStubMessage)),
	}
	buf := bytes.NewBuffer(nil)
	writeLE(buf, h)
	headerBytes := buf.Bytes()
	if len(headerBytes) < headerSize {
		headerBytes = append(headerBytes, make([]byte, headerSize-len(headerBytes))...)
	}

	stubBuf := bytes.NewBuffer(nil)
	stubBuf.Write(dosStubProgram)
	stubBuf.Write(dosStubMessage)
	for stubBuf.Len()%8 != 0 {
		stubBuf.WriteByte(0)
	}

	// Recompute AddressOfNewEXEHeader against the actual padded stub length
	// rather than trusting the estimate baked into h above.
	lfanew := uint32(headerSize + stubBuf.Len())
	binary.LittleEndian.PutUint32(headerBytes[60:64], lfanew)

	return headerBytes, stubBuf.Bytes()
}
