// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

// TypeOrigin records where a registered name resolves to: either a
// namespace local to the assembly being built, or a namespace inside an
// external assembly seeded via a type_import config entry (spec §4.2).
type TypeOrigin struct {
	Namespace string
	// External is the originating assembly name when this entry came from
	// a type_import; empty for names registered from local partitions.
	External string
	Version  string
}

// TypeRegistry is the global name -> namespace map built once after every
// partition has extracted (spec §3, §4.2). First writer wins: once a name
// is registered it is never overwritten, whether the second write comes
// from another partition or from an external import.
type TypeRegistry struct {
	entries map[string]TypeOrigin
	// order preserves first-registration order, used only for deterministic
	// diagnostics/dumps; it has no effect on lookup semantics.
	order []string
	// delegates marks names whose canonical definition is a typedef with a
	// FnPtr underlying type, so the signature encoder (signature.go) can
	// emit CLASS instead of VALUETYPE for them (spec §4.4 "Named{N} encodes
	// as VALUETYPE/CLASS with the resolved token").
	delegates map[string]bool
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{entries: make(map[string]TypeOrigin), delegates: make(map[string]bool)}
}

// MarkDelegate records that name's canonical TypeDef is a delegate class
// rather than a value type.
func (r *TypeRegistry) MarkDelegate(name string) {
	r.delegates[name] = true
}

// IsDelegate reports whether name was marked by MarkDelegate.
func (r *TypeRegistry) IsDelegate(name string) bool {
	return r.delegates[name]
}

// Register records name -> namespace if name is not already present.
// It reports whether the registration took effect.
func (r *TypeRegistry) Register(name, namespace string) bool {
	return r.RegisterExternal(name, namespace, "", "")
}

// RegisterExternal is Register plus the external-assembly bookkeeping used
// when seeding from a type_import entry.
func (r *TypeRegistry) RegisterExternal(name, namespace, external, version string) bool {
	if _, ok := r.entries[name]; ok {
		return false
	}
	r.entries[name] = TypeOrigin{Namespace: namespace, External: external, Version: version}
	r.order = append(r.order, name)
	return true
}

// Lookup returns the registered origin for name, if any.
func (r *TypeRegistry) Lookup(name string) (TypeOrigin, bool) {
	o, ok := r.entries[name]
	return o, ok
}

// Names returns every registered name in first-registration order.
func (r *TypeRegistry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// BuildTypeRegistry implements spec §4.2: scan every partition's structs,
// enums, and typedefs in declaration order and register name ->
// partition.Namespace, honoring namespace_overrides and first-writer-wins.
// External type_import seeding happens afterwards, via SeedExternal below
// (driver.go reads each external .winmd with ReadExternalTypes and passes
// the resulting names in).
func BuildTypeRegistry(partitions []Partition, overrides map[string]string) *TypeRegistry {
	reg := NewTypeRegistry()
	for _, p := range partitions {
		for _, s := range p.Structs {
			registerDecl(reg, s.Name, p.Namespace, overrides)
		}
		for _, e := range p.Enums {
			registerDecl(reg, e.Name, p.Namespace, overrides)
		}
		for _, t := range p.Typedefs {
			registerDecl(reg, t.Name, p.Namespace, overrides)
		}
	}
	for _, p := range partitions {
		for _, t := range p.Typedefs {
			if t.UnderlyingType.Kind == KindFnPtr {
				reg.MarkDelegate(t.Name)
			}
		}
	}
	return reg
}

func registerDecl(reg *TypeRegistry, name, partitionNamespace string, overrides map[string]string) {
	ns := partitionNamespace
	if forced, ok := overrides[name]; ok {
		ns = forced
	}
	reg.Register(name, ns)
}

// SeedExternal registers every (name, namespace) pair from an external
// .winmd's TypeDef table under the given assembly/version, skipping names
// already registered locally (first-writer-wins, spec §4.2's import step
// runs after local registration so local definitions always shadow an
// import of the same name).
func (r *TypeRegistry) SeedExternal(assembly, version string, types []ExternalType) int {
	n := 0
	for _, t := range types {
		if r.RegisterExternal(t.Name, t.Namespace, assembly, version) {
			n++
		}
	}
	return n
}

// ExternalType is one (namespace, name) pair read from an external .winmd's
// TypeDef table by reader.go, excluding <Module> and Apis (spec §4.2).
type ExternalType struct {
	Namespace string
	Name      string
}
