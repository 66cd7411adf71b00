// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

// FuzzConfig feeds arbitrary bytes to the YAML config loader (SPEC_FULL.md
// §8.1): ParseConfig must never panic on malformed input, only return an
// error. Adapted from the teacher's own Fuzz(data []byte) int shape in
// fuzz.go, which feeds arbitrary bytes straight into NewBytes/Parse.
func FuzzConfig(data []byte) int {
	if _, err := ParseConfig(data); err != nil {
		return 0
	}
	return 1
}

// FuzzCompressedUint exercises signature.go's compressed-unsigned-integer
// codec: for every value decodeCompressedUint can parse out of data,
// re-encoding it must decode back to the same value (SPEC_FULL.md §8.1's
// round-trip property). Unlike fuzzing a full C parse through
// modernc.org/cc/v4, this codec is pure and deterministic, making it a
// well-behaved fuzz target.
func FuzzCompressedUint(data []byte) int {
	v, consumed, ok := decodeCompressedUint(data)
	if !ok {
		return 0
	}
	reencoded := encodeCompressedUint(v)
	v2, consumed2, ok2 := decodeCompressedUint(reencoded)
	if !ok2 || v2 != v || consumed2 != len(reencoded) {
		panic("compressed uint round-trip mismatch")
	}
	_ = consumed
	return 1
}
