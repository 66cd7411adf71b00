// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import "bytes"

// Section characteristics flags this emitter uses. The teacher's full
// section.go documents every ImageScn* constant defined by the PE spec;
// only the handful a single code+data .text section ever needs survive
// here.
const (
	ImageScnCntCode            = 0x00000020
	ImageScnCntInitializedData = 0x00000040
	ImageScnMemExecute         = 0x20000000
	ImageScnMemRead            = 0x40000000
	ImageScnMemWrite           = 0x80000000
)

// ImageSectionHeader is one IMAGE_SECTION_HEADER entry (40 bytes), ECMA-335
// §II.25.3.
type ImageSectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      uint32
}

const sectionHeaderRowSize = 40

// BuildSectionHeader builds the single .text section header this emitter
// ever writes: code, initialized data, readable, writable and executable
// (a managed image's IL/metadata payload is never actually executed as
// native code).
func BuildSectionHeader(name string, virtualSize, virtualAddress, sizeOfRawData, pointerToRawData uint32) []byte {
	var h ImageSectionHeader
	copy(h.Name[:], name)
	h.VirtualSize = virtualSize
	h.VirtualAddress = virtualAddress
	h.SizeOfRawData = sizeOfRawData
	h.PointerToRawData = pointerToRawData
	h.Characteristics = ImageScnCntCode | ImageScnCntInitializedData | ImageScnMemExecute | ImageScnMemRead | ImageScnMemWrite

	buf := bytes.NewBuffer(nil)
	writeLE(buf, h)
	return buf.Bytes()
}
