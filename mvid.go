// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import "crypto/sha256"

// ComputeMVID derives the assembly's Module.Mvid as a content hash of the
// fully-built table stream (SPEC_FULL.md §4.5.1): a real compiler mints a
// fresh random GUID per build, but that would make two builds from
// identical input produce byte-different .winmd files, which spec §8's
// reproducibility invariant forbids. Folding a SHA-256 of the table stream
// down to 16 bytes gives a GUID-shaped value that is stable across runs and
// still changes whenever any table row changes.
func ComputeMVID(tableStream []byte) [16]byte {
	sum := sha256.Sum256(tableStream)
	var mvid [16]byte
	for i := 0; i < 16; i++ {
		mvid[i] = sum[i] ^ sum[i+16]
	}
	return mvid
}
