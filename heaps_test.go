// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import "testing"

func TestStringHeap_DedupAndEmptyAtZero(t *testing.T) {
	h := NewStringHeap()
	a := h.Add("Rect")
	b := h.Add("Color")
	c := h.Add("Rect")
	if a == b {
		t.Fatal("distinct strings should get distinct offsets")
	}
	if a != c {
		t.Fatal("re-adding the same string should return the original offset")
	}
	if h.Add("") != 0 {
		t.Fatal("empty string must live at offset 0")
	}
}

func TestStringHeap_Bytes_Padded(t *testing.T) {
	h := NewStringHeap()
	h.Add("ab")
	if len(h.Bytes())%4 != 0 {
		t.Fatalf("heap bytes length %d not 4-byte aligned", len(h.Bytes()))
	}
}

func TestBlobHeap_DedupByContent(t *testing.T) {
	h := NewBlobHeap()
	a := h.Add([]byte{0x06, 0x08})
	b := h.Add([]byte{0x06, 0x08})
	c := h.Add([]byte{0x06, 0x09})
	if a != b {
		t.Fatal("identical blobs should dedup to the same offset")
	}
	if a == c {
		t.Fatal("distinct blobs should get distinct offsets")
	}
}

func TestGUIDHeap_OneBasedAndDedup(t *testing.T) {
	h := NewGUIDHeap()
	var g1, g2 [16]byte
	g1[0] = 1
	g2[0] = 2
	i1 := h.Add(g1)
	i2 := h.Add(g2)
	i1Again := h.Add(g1)
	if i1 != 1 {
		t.Fatalf("first GUID index = %d, want 1 (1-based)", i1)
	}
	if i2 != 2 {
		t.Fatalf("second GUID index = %d, want 2", i2)
	}
	if i1Again != i1 {
		t.Fatal("re-adding the same GUID value should reuse its index")
	}
}

func TestUSHeap_AsciiVsExtended(t *testing.T) {
	h := NewUSHeap()
	asciiOff := h.Add("Hello")
	extOff := h.Add("Héllo")
	if asciiOff == extOff {
		t.Fatal("distinct strings should get distinct offsets")
	}
	// Terminator byte distinguishes plain ASCII (0) from strings containing
	// characters ECMA-335 requires the "has extended characters" flag for.
	buf := h.buf
	asciiLen, n, ok := decodeCompressedUint(buf[asciiOff:])
	if !ok {
		t.Fatal("failed to decode ascii entry length")
	}
	if buf[asciiOff+uint32(n)+asciiLen-1] != 0 {
		t.Error("plain ASCII string should have terminator byte 0")
	}
}
