// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import "testing"

// TestDedupTypedefs covers spec §8 "S5": the same typedef name declared in
// two partitions keeps its definition only in the canonical (first-writer)
// partition; the other partition's copy is dropped.
func TestDedupTypedefs(t *testing.T) {
	partitions := []Partition{
		{Namespace: "NS1", Typedefs: []TypedefDef{
			{Name: "Shared", UnderlyingType: TI32()},
			{Name: "OnlyHere", UnderlyingType: TU8()},
		}},
		{Namespace: "NS2", Typedefs: []TypedefDef{
			{Name: "Shared", UnderlyingType: TI32()},
		}},
	}
	reg := BuildTypeRegistry(partitions, nil)

	DedupTypedefs(partitions, reg)

	if len(partitions[0].Typedefs) != 2 {
		t.Fatalf("NS1 (canonical) should keep both typedefs, got %+v", partitions[0].Typedefs)
	}
	if len(partitions[1].Typedefs) != 0 {
		t.Fatalf("NS2 should have Shared dropped, got %+v", partitions[1].Typedefs)
	}
}

// TestDedupTypedefs_NamespaceOverrideRelocates covers the interaction
// between namespace_overrides and dedup: when an override moves a name's
// canonical namespace away from its declaring partition, the declaring
// partition loses its own definition too.
func TestDedupTypedefs_NamespaceOverrideRelocates(t *testing.T) {
	partitions := []Partition{
		{Namespace: "NS1", Typedefs: []TypedefDef{{Name: "Shared", UnderlyingType: TI32()}}},
	}
	reg := BuildTypeRegistry(partitions, map[string]string{"Shared": "Other"})

	DedupTypedefs(partitions, reg)

	if len(partitions[0].Typedefs) != 0 {
		t.Fatalf("NS1 should lose Shared once overridden to Other, got %+v", partitions[0].Typedefs)
	}
}
