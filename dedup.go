// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

// DedupTypedefs implements spec §4.3: when the registry picked a canonical
// namespace for a typedef name, drop that typedef's definition from every
// partition whose own namespace differs from the canonical one. The
// surviving definition (in the canonical partition) is the single source
// of truth; every other reference resolves cross-partition via TypeRef at
// emission time (typeref.go).
//
// Partitions are mutated in place (the slice headers in partitions[i] are
// replaced), matching the spec's framing of this as a mutation pass on an
// otherwise-immutable model (spec §3 "Lifecycle").
func DedupTypedefs(partitions []Partition, reg *TypeRegistry) {
	for i := range partitions {
		p := &partitions[i]
		kept := p.Typedefs[:0]
		for _, t := range p.Typedefs {
			origin, ok := reg.Lookup(t.Name)
			if ok && origin.Namespace != p.Namespace {
				continue
			}
			kept = append(kept, t)
		}
		p.Typedefs = kept
	}
}
