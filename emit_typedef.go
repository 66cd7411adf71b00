// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package winmd

// buildTypedef turns a TypedefDef into a pendingType, per spec §4.4's two
// rules: an FnPtr-underlying typedef becomes a delegate class with a
// constructor and Invoke method; anything else becomes an opaque
// single-field struct wrapping the underlying representation.
func (e *Emitter) buildTypedef(namespace string, td TypedefDef) pendingType {
	if td.UnderlyingType.Kind == KindFnPtr {
		return e.buildDelegate(namespace, td.Name, td.UnderlyingType)
	}
	return pendingType{
		namespace:   namespace,
		name:        td.Name,
		flags:       TypeAttrPublic | TypeAttrSealed | TypeAttrLayoutSequential,
		extendsName: systemValueType,
		fields: []pendingField{{
			name:  "Value",
			ctype: td.UnderlyingType,
			flags: FieldAttrPublic,
		}},
	}
}

// delegateCtorFlags/delegateInvokeFlags are the constructor's and Invoke's
// method attributes; delegateMethodImplFlags marks both as
// runtime-provided: the CLR itself supplies
// their bodies (ECMA-335 §II.14.6 "Runtime-managed methods"), so this
// emitter never produces IL for them, only their signatures.
const delegateCtorFlags = MethodAttrPublic | MethodAttrHideBySig | MethodAttrRTSpecialName | MethodAttrSpecialName
const delegateInvokeFlags = MethodAttrPublic | MethodAttrHideBySig
const delegateMethodImplFlags = MethodImplAttrRuntime

// buildDelegate builds the class extending System.MulticastDelegate that
// represents a C function-pointer typedef: a constructor taking
// (object target, native int method) and an Invoke method whose signature
// mirrors the function pointer's return type, parameters, and calling
// convention (spec §4.4).
func (e *Emitter) buildDelegate(namespace, name string, fn CType) pendingType {
	pt := pendingType{
		namespace:   namespace,
		name:        name,
		flags:       TypeAttrPublic | TypeAttrSealed,
		extendsName: systemMulticastDelegate,
	}
	pt.methods = append(pt.methods, pendingMethod{
		name:      ".ctor",
		ret:       TVoid(),
		params:    []pendingParam{{name: "object", ctype: TNamed(systemObject)}, {name: "method", ctype: TISize()}},
		cc:        CallConvCdecl,
		flags:     delegateCtorFlags,
		implFlags: delegateMethodImplFlags,
	})
	pt.methods = append(pt.methods, pendingMethod{
		name:      "Invoke",
		ret:       *fn.ReturnType,
		params:    delegateParams(fn.Params),
		cc:        fn.CallConv,
		flags:     delegateInvokeFlags,
		implFlags: delegateMethodImplFlags,
	})
	return pt
}

func delegateParams(params []CType) []pendingParam {
	out := make([]pendingParam, len(params))
	for i, p := range params {
		out[i] = pendingParam{ctype: p}
	}
	return out
}
