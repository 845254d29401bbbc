package rewrite

import (
	"testing"

	"protokernel/emitter/ir"
)

func TestApplyLiftsReferencesAndWrapsPrimitiveLiterals(t *testing.T) {
	body := ir.NewAmorphousMedium()
	owner := &ir.CompoundOp{
		Name:      "f",
		Signature: &ir.Signature{},
		Body:      body,
	}
	body.BodyOf = owner

	argField := &ir.Field{Range: &ir.ProtoScalar{}}
	refOI := &ir.OperatorInstance{Op: referencePrimitive(), Inputs: []*ir.Field{argField}}
	refField := &ir.Field{Range: &ir.ProtoScalar{}, Producer: refOI, Domain: body}
	refOI.Output = refField
	body.Fields = append(body.Fields, refField)

	addPrim := &ir.Primitive{Name: "+", Signature: &ir.Signature{
		RequiredInputs: []ir.ProtoType{&ir.ProtoScalar{}, &ir.ProtoScalar{}},
		Output:         &ir.ProtoScalar{},
	}}
	litOI := &ir.OperatorInstance{Op: &ir.Literal{Range: &ir.ProtoLambda{Op: addPrim}, Lambda: addPrim}}
	litField := &ir.Field{Range: &ir.ProtoLambda{Op: addPrim}, Producer: litOI, Domain: body}
	litOI.Output = litField
	body.Fields = append(body.Fields, litField)

	dfg := &ir.DFG{
		Relevant: []*ir.AmorphousMedium{body},
		Funcalls: map[*ir.CompoundOp][]*ir.OperatorInstance{},
	}

	if err := Apply(dfg); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	if len(owner.Signature.RequiredInputs) != 1 {
		t.Fatalf("owner.Signature.RequiredInputs = %v, want the lifted reference's argument type", owner.Signature.RequiredInputs)
	}

	comp, ok := litOI.Op.(*ir.CompoundOp)
	if !ok {
		t.Fatalf("litOI.Op = %T, want it replaced by a synthesized *ir.CompoundOp", litOI.Op)
	}
	if len(dfg.Funcalls[comp]) != 1 || dfg.Funcalls[comp][0] != litOI {
		t.Fatal("Apply should register litOI as a call site of the synthesized wrapper")
	}
	found := false
	for _, am := range dfg.Relevant {
		if am == comp.Body {
			found = true
		}
	}
	if !found {
		t.Fatal("the synthesized wrapper's body should be appended to dfg.Relevant")
	}
}

func TestApplySkipsBranchFnAndBodylessAMs(t *testing.T) {
	branchAM := ir.NewAmorphousMedium()
	branchAM.Mark("branch-fn")
	refOI := &ir.OperatorInstance{Op: referencePrimitive(), Inputs: []*ir.Field{{Range: &ir.ProtoScalar{}}}}
	refField := &ir.Field{Producer: refOI, Domain: branchAM}
	refOI.Output = refField
	branchAM.Fields = []*ir.Field{refField}

	mainAM := ir.NewAmorphousMedium() // BodyOf == nil: top-level AM, also skipped

	dfg := &ir.DFG{Relevant: []*ir.AmorphousMedium{branchAM, mainAM}}
	if err := Apply(dfg); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	// Nothing to assert beyond "did not panic": branch-fn and owner-less
	// AMs have no CompoundOp to rewrite ReferenceToParameter against.
}
