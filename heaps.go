// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
)

// StringHeap is the #Strings heap builder: a UTF-8 (well, Latin-1-safe
// ASCII in practice for C identifiers), NUL-terminated, content-addressed
// blob store. Per ECMA-335 §II.24.2.3 offset 0 is always the empty string.
type StringHeap struct {
	buf     []byte
	offsets map[string]uint32
}

func NewStringHeap() *StringHeap {
	return &StringHeap{buf: []byte{0}, offsets: map[string]uint32{"": 0}}
}

// Add returns the heap offset for s, reusing an existing entry when s was
// already added (spec §4.4 "Deduplication").
func (h *StringHeap) Add(s string) uint32 {
	if off, ok := h.offsets[s]; ok {
		return off
	}
	off := uint32(len(h.buf))
	h.buf = append(h.buf, []byte(s)...)
	h.buf = append(h.buf, 0)
	h.offsets[s] = off
	return off
}

// Bytes returns the heap content, padded to a 4-byte boundary as ECMA-335
// requires for every metadata stream.
func (h *StringHeap) Bytes() []byte { return pad4(h.buf) }

// USHeap is the #US (user string) heap: UTF-16LE strings prefixed with a
// compressed length and a trailing "has extended characters" byte, per
// ECMA-335 §II.24.2.4. golang.org/x/text/encoding/unicode is the same
// package the teacher's own helper.go uses to decode UTF-16 strings; here
// it encodes instead.
type USHeap struct {
	buf     []byte
	offsets map[string]uint32
}

func NewUSHeap() *USHeap {
	return &USHeap{buf: []byte{0}, offsets: map[string]uint32{}}
}

func (h *USHeap) Add(s string) uint32 {
	if off, ok := h.offsets[s]; ok {
		return off
	}
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, err := encoder.Bytes([]byte(s))
	if err != nil {
		encoded = nil
	}
	terminator := byte(0)
	for _, r := range s {
		if r > 0xFF || (r >= 0x01 && r <= 0x08) || (r >= 0x0E && r <= 0x1F) || r == 0x27 || r == 0x2D {
			terminator = 1
			break
		}
	}
	payload := append(encoded, terminator)
	off := uint32(len(h.buf))
	h.buf = append(h.buf, encodeCompressedUint(uint32(len(payload)))...)
	h.buf = append(h.buf, payload...)
	h.offsets[s] = off
	return off
}

func (h *USHeap) Bytes() []byte { return pad4(h.buf) }

// GUIDHeap is the #GUID heap: a flat array of 16-byte GUIDs addressed by
// 1-based index (ECMA-335 §II.24.2.5), value-deduplicated.
type GUIDHeap struct {
	entries [][16]byte
	offsets map[[16]byte]uint32
}

func NewGUIDHeap() *GUIDHeap {
	return &GUIDHeap{offsets: map[[16]byte]uint32{}}
}

// Add returns the 1-based GUID index for g, reusing an existing entry by
// value.
func (h *GUIDHeap) Add(g [16]byte) uint32 {
	if idx, ok := h.offsets[g]; ok {
		return idx
	}
	h.entries = append(h.entries, g)
	idx := uint32(len(h.entries))
	h.offsets[g] = idx
	return idx
}

// NewGUID mints a random GUID via github.com/google/uuid for any
// assembly-level GUID the emitter needs beyond the deterministic MVID
// (SPEC_FULL.md §4.4.2).
func NewGUID() [16]byte {
	return [16]byte(uuid.New())
}

func (h *GUIDHeap) Bytes() []byte {
	out := make([]byte, 0, len(h.entries)*16)
	for _, g := range h.entries {
		out = append(out, g[:]...)
	}
	return pad4(out)
}

// BlobHeap is the #Blob heap: compressed-length-prefixed byte blobs,
// content-addressed by exact bytes (spec §4.4 "Signature blobs are
// deduplicated after canonical encoding").
type BlobHeap struct {
	buf     []byte
	offsets map[string]uint32
}

func NewBlobHeap() *BlobHeap {
	return &BlobHeap{buf: []byte{0}, offsets: map[string]uint32{"": 0}}
}

func (h *BlobHeap) Add(blob []byte) uint32 {
	key := string(blob)
	if off, ok := h.offsets[key]; ok {
		return off
	}
	off := uint32(len(h.buf))
	h.buf = append(h.buf, encodeCompressedUint(uint32(len(blob)))...)
	h.buf = append(h.buf, blob...)
	h.offsets[key] = off
	return off
}

func (h *BlobHeap) Bytes() []byte { return pad4(h.buf) }

func pad4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}
