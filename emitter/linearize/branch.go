package linearize

import (
	"fmt"

	"protokernel/emitter/instr"
	"protokernel/emitter/ir"
)

// emitBranch implements branch lowering. Both arms of a
// "branch" core-op are wrapped lambdas (by construction: every branch
// arm the analyzer produces is either a user compound op or one
// rewrite.PrimitiveToCompound synthesized); each arm's body is itself a
// relevant AM marked "branch-fn", linearized here minus its DEF_FUN/RET
// framing into a standalone Block.
//
// The condition's own chain, and a NoInstruction placeholder for each
// arm, are already part of tail: tree2instructions emits every input of
// a field's producer before dispatching to emitOperator. What follows
// here only appends the IF/JMP scaffolding and the two arm blocks.
func (lz *Linearizer) emitBranch(oi *ir.OperatorInstance, tail instr.Instr) (instr.Instr, error) {
	if len(oi.Inputs) != 3 {
		return nil, fmt.Errorf("linearize: branch op has %d inputs, want 3 (condition, then, else)", len(oi.Inputs))
	}

	tComp, err := branchArmBody(oi.Inputs[1])
	if err != nil {
		return nil, err
	}
	fComp, err := branchArmBody(oi.Inputs[2])
	if err != nil {
		return nil, err
	}

	tBlock, err := lz.emitBranchArmBody(tComp)
	if err != nil {
		return nil, err
	}
	fBlock, err := lz.emitBranchArmBody(fComp)
	if err != nil {
		return nil, err
	}

	// Splice every fragment parked for this branch's own domain in
	// front of the branch: a value the arms refer to by name rather
	// than recompute must be bound before the conditional splits, so
	// both arms see it at the same env depth (step 2).
	tail = lz.spliceFragments(oi.Output.Domain, tail)

	// Layout follows scenario 6 literally: IF -> f-block,
	// t-block, JMP -> end, f-block, end. fMarker/afterMarker are
	// zero-size placeholders giving each Branch an AfterThis whose
	// next_location is exactly the landing point, without assuming
	// which real instruction happens to sit there.
	fMarker := instr.NewNoInstruction()
	afterMarker := instr.NewNoInstruction()

	ifBranch := instr.NewBranch(fMarker, false)
	jmpBranch := instr.NewBranch(afterMarker, true)

	// Every outer-bound reference inside either arm has its owning
	// let's pop anchored at afterMarker, not at the reference's own
	// position: the slot must survive for as long as either arm might
	// run, so the pop can only go in once both arms have rejoined.
	markBranchEnd(tBlock, afterMarker)
	markBranchEnd(fBlock, afterMarker)

	tail = instr.Append(tail, ifBranch)
	tail = instr.Append(tail, tBlock)
	tail = instr.Append(tail, jmpBranch)
	tail = instr.Append(tail, fMarker)
	tail = instr.Append(tail, fBlock)
	tail = instr.Append(tail, afterMarker)

	return tail, nil
}

// branchArmBody resolves a branch input field to the CompoundOp its
// lambda literal wraps.
func branchArmBody(armField *ir.Field) (*ir.CompoundOp, error) {
	lit, ok := armField.Producer.Op.(*ir.Literal)
	if !ok {
		return nil, fmt.Errorf("linearize: branch arm is %T, not a lambda literal", armField.Producer.Op)
	}
	comp, ok := lit.Lambda.(*ir.CompoundOp)
	if !ok {
		return nil, fmt.Errorf("linearize: branch arm literal wraps %T, not a compound op", lit.Lambda)
	}
	return comp, nil
}

// emitBranchArmBody linearizes a branch arm's body AM into its own
// DEF_FUN/RET-framed chain via the ordinary emitAM path, then strips
// that framing and wraps the remainder in a Block (step
// 1). The arm's DEF_FUN is never registered in globalNameMap (emitAM
// skips that for any AM marked "branch-fn"): it is inlined here, never
// called as a function.
func (lz *Linearizer) emitBranchArmBody(comp *ir.CompoundOp) (*instr.Block, error) {
	def, err := lz.emitAM(comp.Body)
	if err != nil {
		return nil, err
	}
	defFun, ok := def.(*instr.DefFun)
	if !ok {
		return nil, fmt.Errorf("linearize: emitAM returned %T, not *instr.DefFun", def)
	}
	ret := defFun.Ret
	if ret == nil {
		return nil, fmt.Errorf("linearize: branch arm body has no RET to strip")
	}

	bodyStart := defFun.Base().Next
	instr.DeleteRange(defFun, defFun)

	if bodyStart == ret {
		instr.DeleteRange(ret, ret)
		return instr.NewBlock(instr.NewNoInstruction()), nil
	}

	instr.DeleteRange(ret, ret)
	return instr.NewBlock(bodyStart), nil
}

// spliceFragments moves every parked reference-fragment whose original
// field lives in dom (this branch's own enclosing domain) onto the end
// of tail, removing it from the pending set. Fragments belonging to
// other domains are left for an enclosing branch, or for the
// unconsumed-fragment check at the end of DFG2Instructions.
func (lz *Linearizer) spliceFragments(dom *ir.AmorphousMedium, tail instr.Instr) instr.Instr {
	for producerOI, chain := range lz.fragments {
		if producerOI.Output == nil || producerOI.Output.Domain != dom {
			continue
		}
		tail = instr.Append(tail, chain)
		delete(lz.fragments, producerOI)
	}
	return tail
}

// markBranchEnd attributes AttrBranchEnd to every non-global Reference
// inside a linearized arm (step 4): a Reference that reads
// an environment slot bound outside the branch must keep that slot
// alive for as long as either arm might run, not just up to wherever
// its last use inside one arm happens to fall. InsertLetPops (package
// propagate) consults this attribute when choosing a pop site.
func markBranchEnd(blk *instr.Block, anchor instr.Instr) {
	for p := blk.Contents; p != nil; p = p.Base().Next {
		if inner, ok := p.(*instr.Block); ok {
			markBranchEnd(inner, anchor)
			continue
		}
		if ref, ok := p.(*instr.Reference); ok && !ref.Global {
			ref.Base().Mark(instr.AttrBranchEnd, anchor)
		}
	}
}
