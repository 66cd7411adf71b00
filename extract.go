// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

import (
	"fmt"
	"path/filepath"

	"github.com/bindscrape/winmd/internal/cast"
)

// ExtractPartition implements spec §4.1: walk every declaration a Provider
// reports and populate a Partition, applying the scope filter, the type
// mapper, and the non-fatal-warning discipline of §7. base is used to
// resolve relative traverse entries to absolute paths before the
// suffix/equality match.
func ExtractPartition(provider cast.Provider, cfg PartitionConfig, base string) (Partition, []Warning, error) {
	p := Partition{Namespace: cfg.Namespace, Library: cfg.Library}
	var warnings []Warning
	seen := make(map[string]bool)

	traverse := absTraverseSet(cfg.TraverseFiles(), base)

	for _, d := range provider.Decls() {
		inScope := inTraverseSet(d.File, traverse)
		switch d.Kind {
		case cast.DeclRecord:
			if !inScope {
				continue
			}
			if seen[d.Name] {
				continue
			}
			s, warn, err := extractStruct(d)
			if err != nil {
				warnings = append(warnings, Warning{Decl: d.Name, Kind: WarnAnonymousRecord, Message: err.Error()})
				continue
			}
			warnings = append(warnings, warn...)
			p.Structs = append(p.Structs, s)
			seen[d.Name] = true
		case cast.DeclEnum:
			if !inScope {
				continue
			}
			if seen[d.Name] {
				continue
			}
			p.Enums = append(p.Enums, extractEnum(d))
			seen[d.Name] = true
		case cast.DeclFunction:
			if !inScope {
				continue
			}
			if seen[d.Name] {
				continue
			}
			f, err := extractFunction(d)
			if err != nil {
				warnings = append(warnings, Warning{Decl: d.Name, Kind: WarnUnsupportedType, Message: err.Error()})
				continue
			}
			p.Functions = append(p.Functions, f)
			seen[d.Name] = true
		case cast.DeclTypedef:
			if !inScope {
				continue
			}
			if seen[d.Name] {
				continue
			}
			t, err := extractTypedef(d)
			if err != nil {
				warnings = append(warnings, Warning{Decl: d.Name, Kind: WarnUnsupportedType, Message: err.Error()})
				continue
			}
			p.Typedefs = append(p.Typedefs, t)
			seen[d.Name] = true
		case cast.DeclMacro:
			if !inScope {
				continue
			}
			if seen[d.Name] {
				continue
			}
			c, ok := extractConstant(d)
			if !ok {
				warnings = append(warnings, Warning{Decl: d.Name, Kind: WarnMacroNotLiteral, Message: "macro expansion is not a single literal"})
				continue
			}
			p.Constants = append(p.Constants, c)
			seen[d.Name] = true
		}
	}

	return p, warnings, nil
}

func absTraverseSet(files []string, base string) map[string]bool {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[f] = true
		if !filepath.IsAbs(f) && base != "" {
			set[filepath.Join(base, f)] = true
		}
	}
	return set
}

// inTraverseSet implements the spec §4.1 scope-filter match rule: absolute
// path equality OR path suffix equality against any traverse entry.
func inTraverseSet(file string, traverse map[string]bool) bool {
	if file == "" {
		return false
	}
	if traverse[file] {
		return true
	}
	for entry := range traverse {
		if hasPathSuffix(file, entry) || hasPathSuffix(entry, file) {
			return true
		}
	}
	return false
}

func hasPathSuffix(path, suffix string) bool {
	if len(suffix) > len(path) {
		return false
	}
	if path == suffix {
		return true
	}
	tail := path[len(path)-len(suffix):]
	if tail != suffix {
		return false
	}
	boundaryIdx := len(path) - len(suffix) - 1
	return boundaryIdx < 0 || path[boundaryIdx] == filepath.Separator || path[boundaryIdx] == '/'
}

func extractStruct(d cast.Decl) (StructDef, []Warning, error) {
	if d.Name == "" {
		return StructDef{}, nil, fmt.Errorf("anonymous struct")
	}
	s := StructDef{Name: d.Name, Size: d.Size, Align: d.Align}
	var warnings []Warning
	for _, f := range d.Fields {
		ty, err := MapType(f.Type)
		if err != nil {
			warnings = append(warnings, Warning{Decl: d.Name + "." + f.Name, Kind: WarnUnsupportedType, Message: err.Error()})
			return StructDef{}, warnings, fmt.Errorf("field %s: %w", f.Name, err)
		}
		s.Fields = append(s.Fields, FieldDef{
			Name:           f.Name,
			Type:           ty,
			BitfieldWidth:  f.BitfieldWidth,
			BitfieldOffset: f.BitfieldOffset,
		})
	}
	return s, warnings, nil
}

func extractEnum(d cast.Decl) EnumDef {
	underlying := TI32()
	if d.UnderlyingType != nil {
		if ty, err := MapType(d.UnderlyingType); err == nil {
			underlying = ty
		}
	}
	e := EnumDef{Name: d.Name, UnderlyingType: underlying}
	for _, v := range d.Variants {
		e.Variants = append(e.Variants, EnumVariant{Name: v.Name, Signed: v.Signed, Unsigned: v.Unsigned})
	}
	return e
}

func extractFunction(d cast.Decl) (FunctionDef, error) {
	ret, err := MapType(d.ReturnType)
	if err != nil {
		return FunctionDef{}, fmt.Errorf("return type: %w", err)
	}
	f := FunctionDef{Name: d.Name, ReturnType: ret, CallConv: MapCallConv(d.CallConv)}
	for i, p := range d.Params {
		pt, err := MapType(p.Type)
		if err != nil {
			return FunctionDef{}, fmt.Errorf("param %d: %w", i, err)
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("param%d", i)
		}
		f.Params = append(f.Params, ParamDef{Name: name, Type: pt})
	}
	return f, nil
}

func extractTypedef(d cast.Decl) (TypedefDef, error) {
	ty, err := MapType(d.Underlying)
	if err != nil {
		return TypedefDef{}, err
	}
	return TypedefDef{Name: d.Name, UnderlyingType: ty}, nil
}

// extractConstant implements spec §4.1's sign-handling rule: a reported
// negation flag always yields Signed(-n); otherwise a magnitude fitting
// int64 is Signed, else Unsigned.
func extractConstant(d cast.Decl) (ConstantDef, bool) {
	switch d.Macro.Kind {
	case cast.MacroInteger:
		if d.Macro.Negative {
			return ConstantDef{Name: d.Name, Value: SignedConstant(-int64(d.Macro.Magnitude))}, true
		}
		if d.Macro.Magnitude <= 1<<63-1 {
			return ConstantDef{Name: d.Name, Value: SignedConstant(int64(d.Macro.Magnitude))}, true
		}
		return ConstantDef{Name: d.Name, Value: UnsignedConstant(d.Macro.Magnitude)}, true
	case cast.MacroFloat:
		return ConstantDef{Name: d.Name, Value: FloatConstant(d.Macro.Float)}, true
	default:
		return ConstantDef{}, false
	}
}
