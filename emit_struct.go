// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

// buildStruct turns a StructDef into a pendingType: a sealed value type
// extending System.ValueType, one public field per member in source order,
// and a ClassLayout row carrying the front end's reported size/alignment
// (spec §4.4 "One TypeDef per struct").
func (e *Emitter) buildStruct(namespace string, s StructDef) pendingType {
	pt := pendingType{
		namespace:   namespace,
		name:        s.Name,
		flags:       TypeAttrPublic | TypeAttrSealed | TypeAttrLayoutSequential,
		extendsName: systemValueType,
		packingSize: structPackingSize(s.Align),
		classSize:   s.Size,
		hasLayout:   true,
	}
	for _, f := range s.Fields {
		pf := pendingField{
			name:  f.Name,
			ctype: f.Type,
			flags: FieldAttrPublic,
		}
		if f.BitfieldWidth != nil {
			// FieldLayout carries the byte offset; width has no home there,
			// so it rides along as a BitfieldOffsetAttribute CustomAttribute
			// (emit.go), the only place ECMA-335 lets a field attach
			// arbitrary extra data.
			pf.bitWidth = f.BitfieldWidth
			pf.bitOffset = f.BitfieldOffset
		}
		pt.fields = append(pt.fields, pf)
	}
	return pt
}

// structPackingSize maps a reported alignment to one of the PackingSize
// values ClassLayout accepts (ECMA-335 §II.22.8): 0, 1, 2, 4, 8, 16, 32,
// 64, or 128. Any other alignment the front end reports collapses to the
// nearest power of two at or below it.
func structPackingSize(align uint32) uint16 {
	switch {
	case align >= 128:
		return 128
	case align >= 64:
		return 64
	case align >= 32:
		return 32
	case align >= 16:
		return 16
	case align >= 8:
		return 8
	case align >= 4:
		return 4
	case align >= 2:
		return 2
	case align == 1:
		return 1
	default:
		return 0
	}
}
