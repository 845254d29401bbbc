package linearize

import (
	"fmt"

	"protokernel/emitter/instr"
	"protokernel/emitter/ir"
)

func isTuple(t ir.ProtoType) bool {
	_, ok := t.(*ir.ProtoTuple)
	return ok
}

func tupleSize(t ir.ProtoType) int {
	tup, ok := t.(*ir.ProtoTuple)
	if !ok {
		return 0
	}
	return len(tup.Types)
}

// vecOpStore implements the vector-op-store pattern: declares a sized
// numeric-vector tuple global, wires a Reference to it as the
// destination slot, and fixes that Reference's own opcode to the
// vector primitive rather than a GLO_REF family member (VecOp=true).
func (lz *Linearizer) vecOpStore(opByte byte, t ir.ProtoType) (instr.Instr, *instr.Reference, error) {
	dt, err := instr.NewDefTup(lz.Ops, tupleSize(t), false)
	if err != nil {
		return nil, nil, err
	}
	ref := instr.NewReference(dt, true)
	ref.VecOp = true
	ref.Base().Op = opByte
	ref.Base().StackDelta = lz.Ops.StackDelta(opByte)
	// Reserve Parameters[0] for the destination index up front, before
	// any caller (e.g. appendTupleCtor) appends further operand bytes
	// of its own — SetOffset later overwrites this placeholder in
	// place rather than clearing and re-appending, so anything appended
	// after it here survives offset resolution.
	ref.Base().Padd(0)
	return dt, ref, nil
}

// appendPrimitive implements shape rules. tail already
// carries every input's emitted chain; oi.Op must be a *ir.Primitive
// that isn't "reference" or "branch" (those are dispatched earlier).
func (lz *Linearizer) appendPrimitive(op *ir.Primitive, oi *ir.OperatorInstance, tail instr.Instr) (instr.Instr, error) {
	otype := oi.Output.Range
	tuple := isTuple(otype)

	switch {
	case op.Name == "/":
		return lz.appendDivision(oi, tail, tuple)
	case op.Name == "tup":
		return lz.appendTupleCtor(oi, tail)
	}

	if scalarName, vectorName, ok := lz.Ops.SVOps(op.Name); ok {
		return lz.appendSVOp(op, oi, tail, tuple, scalarName, vectorName)
	}

	opByte, ok := lz.Ops.PrimitiveOp(op.Name)
	if !ok {
		return nil, fmt.Errorf("linearize: primitive %q has no registered opcode", op.Name)
	}
	if tuple {
		dt, ref, err := lz.vecOpStore(opByte, otype)
		if err != nil {
			return nil, err
		}
		tail = instr.Append(tail, dt)
		return instr.Append(tail, ref), nil
	}
	raw := instr.NewRawInstruction(opByte, nil)
	raw.Base().StackDelta = lz.Ops.StackDelta(opByte)
	return instr.Append(tail, raw), nil
}

// appendSVOp implements the scalar/vector paired-op rule: vector form
// iff the output or any input is a tuple, except max/min which always
// stay in scalar form. k copies fold a rest-arity
// operator's inputs pairwise left-to-right on the stack.
func (lz *Linearizer) appendSVOp(op *ir.Primitive, oi *ir.OperatorInstance, tail instr.Instr, outputTuple bool, scalarName, vectorName string) (instr.Instr, error) {
	useVector := outputTuple
	if !useVector {
		for _, in := range oi.Inputs {
			if isTuple(in.Range) {
				useVector = true
				break
			}
		}
	}
	if op.Name == "max" || op.Name == "min" {
		useVector = false
	}

	k := 1
	if op.Signature != nil && op.Signature.RestInput != nil {
		if n := len(oi.Inputs) - 1; n > 1 {
			k = n
		}
	}

	name := scalarName
	if useVector {
		name = vectorName
	}
	opByte := lz.Ops.MustOp(name)

	if !useVector {
		delta := lz.Ops.StackDelta(opByte)
		for i := 0; i < k; i++ {
			raw := instr.NewRawInstruction(opByte, nil)
			raw.Base().StackDelta = delta
			tail = instr.Append(tail, raw)
		}
		return tail, nil
	}

	// A rest-arity vector op folds pairwise just like the scalar form:
	// one vec-op store reference per fold step, each with its own
	// destination tuple.
	for i := 0; i < k; i++ {
		dt, ref, err := lz.vecOpStore(opByte, oi.Output.Range)
		if err != nil {
			return nil, err
		}
		tail = instr.Append(tail, dt)
		tail = instr.Append(tail, ref)
	}
	return tail, nil
}

// appendDivision implements the division special case: it needs two
// stack values peeled off into bindings at once, but iLET only ever
// introduces one env slot at a time (it carries a single `pop`, not a
// pair), so the same effect is reproduced with two chained
// single-slot Lets instead. The env depth numbering for the two bound
// values ends up reversed from a naive reading: REF_0 here names
// whichever value was bound *second* (the dividend), not the first;
// the divisor product, bound first, is read at depth 1.
func (lz *Linearizer) appendDivision(oi *ir.OperatorInstance, tail instr.Instr, tuple bool) (instr.Instr, error) {
	n := len(oi.Inputs)
	mulOp := lz.Ops.MustOp("MUL_OP")
	for i := 0; i < n-2; i++ {
		raw := instr.NewRawInstruction(mulOp, nil)
		raw.Base().StackDelta = -1
		tail = instr.Append(tail, raw)
	}

	if !tuple {
		div := instr.NewInstruction(lz.Ops, "DIV_OP")
		return instr.Append(tail, div), nil
	}

	// Stack here: [..., dividend, divisorProduct] (divisorProduct on top).
	divisorLet := instr.NewLet(lz.Ops)
	tail = instr.Append(tail, divisorLet)
	dividendLet := instr.NewLet(lz.Ops)
	tail = instr.Append(tail, dividendLet)

	lit1 := instr.NewRawInstruction(lz.Ops.MustOp("LIT_1_OP"), nil)
	lit1.Base().StackDelta = 1
	tail = instr.Append(tail, lit1)

	divisorRef := instr.NewReference(divisorLet, false)
	if err := divisorRef.SetOffset(lz.Ops, 1); err != nil {
		return nil, err
	}
	divisorLet.AddUsage(divisorRef)
	tail = instr.Append(tail, divisorRef)

	div := instr.NewInstruction(lz.Ops, "DIV_OP")
	tail = instr.Append(tail, div)

	dividendRef := instr.NewReference(dividendLet, false)
	if err := dividendRef.SetOffset(lz.Ops, 0); err != nil {
		return nil, err
	}
	dividendLet.AddUsage(dividendRef)
	tail = instr.Append(tail, dividendRef)

	vmulOp := lz.Ops.MustOp("VMUL_OP")
	dt, ref, err := lz.vecOpStore(vmulOp, oi.Output.Range)
	if err != nil {
		return nil, err
	}
	tail = instr.Append(tail, dt)
	tail = instr.Append(tail, ref)

	pop := instr.NewRawInstruction(lz.Ops.MustOp("POP_LET_2_OP"), nil)
	pop.Base().EnvDelta = -2
	divisorLet.Pop = pop
	dividendLet.Pop = pop
	tail = instr.Append(tail, pop)

	return tail, nil
}

// appendTupleCtor implements tuple constructor: one
// Reference(TUP_OP, vec_op_store(otype)) with stack_delta = 1 - inputs
// and a one-byte parameter naming the input count.
func (lz *Linearizer) appendTupleCtor(oi *ir.OperatorInstance, tail instr.Instr) (instr.Instr, error) {
	tupOp := lz.Ops.MustOp("TUP_OP")
	dt, ref, err := lz.vecOpStore(tupOp, oi.Output.Range)
	if err != nil {
		return nil, err
	}
	n := len(oi.Inputs)
	ref.Base().StackDelta = 1 - n
	ref.Base().Padd(byte(n))
	tail = instr.Append(tail, dt)
	return instr.Append(tail, ref), nil
}
