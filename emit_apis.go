// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

// apisMethodFlags marks every Apis method as a public static P/Invoke
// forward: the CLR resolves its body through the ImplMap row emit.go
// attaches, never through IL this emitter writes (spec §4.4 "Every
// function method receives an ImplMap row").
const apisMethodFlags = MethodAttrPublic | MethodAttrStatic | MethodAttrHideBySig | MethodAttrPinvokeImpl

// apisConstantFieldFlags marks a #define-derived field as a static literal,
// the same shape an enum's variant fields use.
const apisConstantFieldFlags = FieldAttrPublic | FieldAttrStatic | FieldAttrLiteral | FieldAttrHasDefault

// buildApis builds the synthetic static "Apis" class collecting a
// partition's free functions and #define constants (spec §4.4, glossary
// "Apis class"): sealed and abstract, the ECMA-335 idiom for a class with
// no instantiable constructor and only static members.
func (e *Emitter) buildApis(p Partition) pendingType {
	pt := pendingType{
		namespace:   p.Namespace,
		name:        "Apis",
		flags:       TypeAttrPublic | TypeAttrSealed | TypeAttrAbstract,
		extendsName: systemObject,
	}
	for _, c := range p.Constants {
		ctype := constantDeclaredType(c.Value)
		pt.fields = append(pt.fields, pendingField{
			name:     c.Name,
			ctype:    ctype,
			flags:    apisConstantFieldFlags,
			constant: value(c.Value),
		})
	}
	for _, fn := range p.Functions {
		params := make([]pendingParam, len(fn.Params))
		for i, pd := range fn.Params {
			params[i] = pendingParam{name: pd.Name, ctype: pd.Type}
		}
		pt.methods = append(pt.methods, pendingMethod{
			name:       fn.Name,
			ret:        fn.ReturnType,
			params:     params,
			cc:         fn.CallConv,
			flags:      apisMethodFlags,
			implFlags:  MethodImplAttrIL,
			library:    p.Library,
			entryPoint: fn.Name,
		})
	}
	return pt
}

func value(v ConstantValue) *ConstantValue {
	cv := v
	return &cv
}

// constantDeclaredType picks the field signature type a #define literal is
// declared with: I32/I64 for signed and U32/U64 for unsigned integers
// depending on range, F64 for
// floats (spec §4.1 "constant extraction rule" maps every literal to one
// of these).
func constantDeclaredType(v ConstantValue) CType {
	switch v.Kind {
	case ConstantFloat:
		return TF64()
	case ConstantSigned:
		if v.Signed >= -2147483648 && v.Signed <= 2147483647 {
			return TI32()
		}
		return TI64()
	default:
		if v.Unsigned <= 0xFFFFFFFF {
			return TU32()
		}
		return TU64()
	}
}
