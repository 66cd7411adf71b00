// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package winmd compiles C header declarations into ECMA-335 metadata
// assemblies (.winmd files).
//
// It extracts structs, enums, functions, typedefs and #define constants from
// a set of C translation units ("partitions"), resolves cross-partition and
// cross-assembly type references through a name registry, and lays out the
// result as ECMA-335 tables, heaps and blobs wrapped in a minimal PE32+
// image. Downstream binding generators that already consume ECMA-335
// metadata for Windows APIs can point at the emitted assembly to produce
// foreign-function bindings for arbitrary C libraries on non-Windows hosts.
package winmd
