// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

// enumValueFieldFlags marks the instance field (`value__`) every ECMA-335
// enum carries to hold its underlying integer value: public, special-name,
// runtime-special-name (ECMA-335 §II.22.7).
const enumValueFieldFlags = FieldAttrPublic | FieldAttrSpecialName | FieldAttrRTSpecialName

// enumLiteralFieldFlags marks each enumerator as a static literal constant.
const enumLiteralFieldFlags = FieldAttrPublic | FieldAttrStatic | FieldAttrLiteral | FieldAttrHasDefault

// buildEnum turns an EnumDef into a pendingType: a sealed value type
// extending System.Enum, a leading `value__` instance field carrying the
// underlying integer signature, then one static literal field per variant
// whose Constant row holds the variant's value, signed or unsigned per the
// underlying type (spec §4.4 "One TypeDef per enum").
func (e *Emitter) buildEnum(namespace string, en EnumDef) pendingType {
	pt := pendingType{
		namespace:   namespace,
		name:        en.Name,
		flags:       TypeAttrPublic | TypeAttrSealed,
		extendsName: systemEnum,
	}
	pt.fields = append(pt.fields, pendingField{
		name:  "value__",
		ctype: en.UnderlyingType,
		flags: enumValueFieldFlags,
	})
	for _, v := range en.Variants {
		cv := UnsignedConstant(v.Unsigned)
		if en.UnderlyingType.Kind.IsSignedInteger() {
			cv = SignedConstant(v.Signed)
		}
		underlying := en.UnderlyingType
		pt.fields = append(pt.fields, pendingField{
			name:         v.Name,
			ctype:        CType{Kind: KindNamed, Name: en.Name},
			flags:        enumLiteralFieldFlags,
			constant:     &cv,
			constantType: &underlying,
		})
	}
	return pt
}
