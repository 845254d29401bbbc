package rewrite

import (
	"testing"

	"protokernel/emitter/ir"
)

func referencePrimitive() *ir.Primitive {
	return &ir.Primitive{Name: "reference", Signature: &ir.Signature{
		RequiredInputs: []ir.ProtoType{&ir.ProtoScalar{}},
		Output:         &ir.ProtoScalar{},
	}}
}

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 7: "7", 42: "42", -3: "-3"}
	for in, want := range cases {
		if got := itoa(in); got != want {
			t.Errorf("itoa(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestReferenceToParameterPrependsAndShiftsIndices(t *testing.T) {
	body := ir.NewAmorphousMedium()
	owner := &ir.CompoundOp{
		Name:      "f",
		Signature: &ir.Signature{RequiredInputs: []ir.ProtoType{&ir.ProtoScalar{}}},
		Body:      body,
		Params:    []*ir.Parameter{{Name: "p0", Index: 0}},
	}

	argField := &ir.Field{Range: &ir.ProtoScalar{}}
	refOI := &ir.OperatorInstance{Op: referencePrimitive(), Inputs: []*ir.Field{argField}}
	refField := &ir.Field{Range: &ir.ProtoScalar{}, Producer: refOI, Domain: body}
	refOI.Output = refField

	consumerOI := &ir.OperatorInstance{Inputs: []*ir.Field{refField}}
	refField.Consumers = []ir.Consumer{{OI: consumerOI, Input: 0}}

	callSite := &ir.OperatorInstance{Inputs: []*ir.Field{}}
	dfg := &ir.DFG{Funcalls: map[*ir.CompoundOp][]*ir.OperatorInstance{owner: {callSite}}}

	ReferenceToParameter(dfg, refOI, owner)

	if len(owner.Signature.RequiredInputs) != 2 || owner.Signature.RequiredInputs[0] != argField.Range {
		t.Fatalf("RequiredInputs = %v, want the reference's argument type prepended", owner.Signature.RequiredInputs)
	}
	if len(callSite.Inputs) != 1 || callSite.Inputs[0] != argField {
		t.Fatalf("call site inputs = %v, want argField prepended", callSite.Inputs)
	}
	if len(owner.Params) != 2 {
		t.Fatalf("owner.Params = %v, want 2 entries", owner.Params)
	}
	if owner.Params[0].Index != 0 {
		t.Fatalf("new parameter Index = %d, want 0", owner.Params[0].Index)
	}
	if owner.Params[1].Index != 1 {
		t.Fatalf("pre-existing parameter Index = %d, want shifted to 1", owner.Params[1].Index)
	}
	if consumerOI.Inputs[0] == refField {
		t.Fatal("consumer should have been rewired off the reference field onto the new parameter field")
	}
	if consumerOI.Inputs[0].Producer == nil {
		t.Fatal("rewired consumer input should be produced by the new Parameter OI")
	}
	if _, ok := consumerOI.Inputs[0].Producer.Op.(*ir.Parameter); !ok {
		t.Fatalf("rewired consumer input's producer should be a *ir.Parameter, got %T", consumerOI.Inputs[0].Producer.Op)
	}
}

func TestReferenceToParameterNoOpWhenNoInput(t *testing.T) {
	owner := &ir.CompoundOp{Signature: &ir.Signature{}}
	oi := &ir.OperatorInstance{Op: referencePrimitive()}
	dfg := &ir.DFG{}

	ReferenceToParameter(dfg, oi, owner) // must not panic
	if len(owner.Signature.RequiredInputs) != 0 {
		t.Fatal("a reference op with no input should leave the owner's signature untouched")
	}
}

func TestPrimitiveToCompoundWrapsFixedArityPrimitive(t *testing.T) {
	prim := &ir.Primitive{Name: "+", Signature: &ir.Signature{
		RequiredInputs: []ir.ProtoType{&ir.ProtoScalar{}, &ir.ProtoScalar{}},
		Output:         &ir.ProtoScalar{},
	}}
	lit := &ir.Literal{Range: &ir.ProtoLambda{Op: prim}, Lambda: prim}

	comp := PrimitiveToCompound(lit)
	if comp == nil {
		t.Fatal("expected a synthesized CompoundOp")
	}
	if len(comp.Params) != 2 {
		t.Fatalf("len(Params) = %d, want 2 (matches the primitive's fixed arity)", len(comp.Params))
	}
	if comp.Body.BodyOf != comp {
		t.Fatal("synthesized body's BodyOf must point back at the wrapper")
	}
	if comp.Name != "+$wrapped" {
		t.Fatalf("Name = %q, want +$wrapped", comp.Name)
	}
}

func TestPrimitiveToCompoundZeroArityRestInputGetsTwoParamKludge(t *testing.T) {
	restT := &ir.ProtoScalar{}
	prim := &ir.Primitive{Name: "sum", Signature: &ir.Signature{
		RestInput: restT,
		Output:    &ir.ProtoScalar{},
	}}
	lit := &ir.Literal{Range: &ir.ProtoLambda{Op: prim}, Lambda: prim}

	comp := PrimitiveToCompound(lit)
	if comp == nil {
		t.Fatal("expected a synthesized CompoundOp")
	}
	if len(comp.Params) != 2 {
		t.Fatalf("len(Params) = %d, want 2 (open question 9.1's fold-compatible kludge)", len(comp.Params))
	}
	if comp.Signature.RestInput != restT {
		t.Fatal("wrapper signature should still carry the rest-input type")
	}
}

func TestPrimitiveToCompoundReturnsNilForNonLambdaLiteral(t *testing.T) {
	lit := &ir.Literal{Range: &ir.ProtoScalar{}, Scalar: 5}
	if PrimitiveToCompound(lit) != nil {
		t.Fatal("a scalar literal should never be wrapped")
	}
}

func TestPrimitiveToCompoundReturnsNilForCompoundOpLambda(t *testing.T) {
	inner := &ir.CompoundOp{Name: "g", Signature: &ir.Signature{}}
	lit := &ir.Literal{Range: &ir.ProtoLambda{Op: inner}, Lambda: inner}
	if PrimitiveToCompound(lit) != nil {
		t.Fatal("a literal already wrapping a CompoundOp should not be re-wrapped")
	}
}
