// Package rewrite implements two pre-linearization IR rewrites: lifting
// an internal reference into a formal parameter, and wrapping a bare
// primitive lambda in a synthesized compound op. Both mutate the DFG in
// place before the linearizer ever sees it.
package rewrite

import "protokernel/emitter/ir"

// ReferenceToParameter applies the reference-to-parameter lift: an
// internal "reference" core-op inside a non-branch-fn AM is
// replaced by a new formal parameter of its enclosing compound op, with
// the argument threaded through every known call site.
//
// oi must be an OperatorInstance whose Op is the "reference" Primitive
// and whose domain (oi.Output.Domain) is not marked "branch-fn"; owner
// is the CompoundOp whose Body is that domain.
func ReferenceToParameter(dfg *ir.DFG, oi *ir.OperatorInstance, owner *ir.CompoundOp) {
	arg := oi.NthInput(0)
	if arg == nil {
		return
	}

	// 1. Prepend the reference's sole input to the signature.
	owner.Signature.RequiredInputs = append([]ir.ProtoType{arg.Range}, owner.Signature.RequiredInputs...)

	// 2. Prepend the same field to every call site's input list.
	for _, callSite := range dfg.Funcalls[owner] {
		callSite.Inputs = append([]*ir.Field{arg}, callSite.Inputs...)
	}

	// 3. Add a new Parameter at index 0, relocate consumers, drop the OI.
	//    Every existing parameter of owner shifts up by one index since
	//    the new argument is prepended, not appended.
	for _, p := range owner.Params {
		p.Index++
	}
	param := &ir.Parameter{Name: syntheticParamName(owner, 0), Index: 0}
	paramField := &ir.Field{Range: arg.Range, Domain: owner.Body}
	paramOI := &ir.OperatorInstance{Op: param, Output: paramField}
	paramField.Producer = paramOI
	owner.Params = append([]*ir.Parameter{param}, owner.Params...)

	for _, c := range oi.Output.Consumers {
		c.OI.Inputs[c.Input] = paramField
		paramField.Consumers = append(paramField.Consumers, c)
	}
}

func syntheticParamName(owner *ir.CompoundOp, k int) string {
	return "__" + owner.Name + "_" + itoa(k) + "__"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

// PrimitiveToCompound applies primitive-to-compound
// wrap: a Literal holding a ProtoLambda whose Op is a Primitive is
// replaced by a synthesized CompoundOp calling that primitive with one
// parameter per required input.
//
// Open question 9.1 (recorded in DESIGN.md): when the primitive has
// zero required inputs but does have a rest input, this synthesizes a
// 2-parameter fold-compatible wrapper rather than the natural
// 0-parameter one, since a 0-ary call site has nothing to fold over.
func PrimitiveToCompound(lit *ir.Literal) *ir.CompoundOp {
	if _, ok := lit.Range.(*ir.ProtoLambda); !ok {
		return nil
	}
	prim, ok := lit.Lambda.(*ir.Primitive)
	if !ok {
		return nil
	}

	n := prim.Signature.NFixed()
	hasRest := prim.Signature.RestInput != nil
	if n == 0 && hasRest {
		// Fabricate a 2-parameter wrapper instead of a 0-parameter one so a
		// fold-style rest-arity call always has two operands to start from.
		n = 2
	}

	body := ir.NewAmorphousMedium()
	sig := &ir.Signature{Output: prim.Signature.Output}
	fields := make([]*ir.Field, n)
	formals := make([]*ir.Parameter, n)
	for i := 0; i < n; i++ {
		paramType := paramTypeFor(prim, i, n)
		sig.RequiredInputs = append(sig.RequiredInputs, paramType)
		p := &ir.Parameter{Name: "p" + itoa(i), Index: i}
		f := &ir.Field{Range: paramType, Domain: body}
		oi := &ir.OperatorInstance{Op: p, Output: f}
		f.Producer = oi
		fields[i] = f
		formals[i] = p
	}
	if hasRest {
		sig.RestInput = prim.Signature.RestInput
	}

	callOI := &ir.OperatorInstance{Op: prim, Inputs: fields}
	out := &ir.Field{Range: sig.Output, Producer: callOI, Domain: body}
	callOI.Output = out
	for i, f := range fields {
		f.Consumers = append(f.Consumers, ir.Consumer{OI: callOI, Input: i})
	}

	comp := &ir.CompoundOp{Name: prim.Name + "$wrapped", Signature: sig, Body: body, Params: formals}
	body.BodyOf = comp
	return comp
}

// paramTypeFor picks the formal type for wrapper parameter i out of n,
// falling back to the primitive's declared required-input type and
// only reaching into RestInput once i runs past the declared fixed
// arity (the n==2 kludge case falls in this branch for both slots).
func paramTypeFor(prim *ir.Primitive, i, n int) ir.ProtoType {
	if i < len(prim.Signature.RequiredInputs) {
		return prim.Signature.RequiredInputs[i]
	}
	return prim.Signature.RestInput
}
