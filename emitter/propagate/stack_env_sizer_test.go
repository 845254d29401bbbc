package propagate

import (
	"testing"

	"protokernel/emitter/instr"
	"protokernel/emitter/serialize"
)

// driveSizer runs the StackEnvSizer worklist pass a few times, the way
// the outer loop would: offsets written in one PostProp change deltas
// that the next pass's heights must see.
func driveSizer(t *testing.T, ctx *Context) *StackEnvSizer {
	t.Helper()
	s := &StackEnvSizer{}
	for i := 0; i < 3; i++ {
		if _, err := runOne(ctx, s); err != nil {
			t.Fatalf("StackEnvSizer pass %d error: %v", i, err)
		}
	}
	return s
}

func TestStackEnvSizerWritesPeaksToDefVM(t *testing.T) {
	ops := serialize.DefaultCoreOps()
	dv := instr.NewDefVM(ops)
	lit1 := instr.NewInstruction(ops, "LIT_1_OP")
	lit1.Base().StackDelta = 1
	lit2 := instr.NewInstruction(ops, "LIT_2_OP")
	lit2.Base().StackDelta = 1
	add := instr.NewInstruction(ops, "ADD_OP")

	tail := instr.Append(nil, dv)
	tail = instr.Append(tail, lit1)
	tail = instr.Append(tail, lit2)
	instr.Append(tail, add)

	driveSizer(t, &Context{Ops: ops, Start: dv})

	if dv.MaxStack != 2 {
		t.Fatalf("MaxStack = %d, want 2 (peak after the second literal)", dv.MaxStack)
	}
	if dv.MaxEnv != 0 {
		t.Fatalf("MaxEnv = %d, want 0 (no lets)", dv.MaxEnv)
	}
}

func TestStackEnvSizerComputesEnvReferenceOffsets(t *testing.T) {
	ops := serialize.DefaultCoreOps()
	dv := instr.NewDefVM(ops)

	litA := instr.NewInstruction(ops, "LIT_1_OP")
	litA.Base().StackDelta = 1
	letA := instr.NewLet(ops)
	litB := instr.NewInstruction(ops, "LIT_2_OP")
	litB.Base().StackDelta = 1
	letB := instr.NewLet(ops)

	// Reads letA from underneath letB: one slot in between, offset 1.
	refA := instr.NewReference(letA, false)
	letA.AddUsage(refA)
	// Reads letB from the top of the environment: offset 0.
	refB := instr.NewReference(letB, false)
	letB.AddUsage(refB)

	tail := instr.Append(nil, dv)
	tail = instr.Append(tail, litA)
	tail = instr.Append(tail, letA)
	tail = instr.Append(tail, litB)
	tail = instr.Append(tail, letB)
	tail = instr.Append(tail, refA)
	instr.Append(tail, refB)

	driveSizer(t, &Context{Ops: ops, Start: dv})

	if refA.Offset != 1 {
		t.Fatalf("refA.Offset = %d, want 1 (letB sits between the binding and the use)", refA.Offset)
	}
	if refA.B.Op != ops.MustOp("REF_1_OP") {
		t.Fatalf("refA op = %q, want REF_1_OP", ops.Name(refA.B.Op))
	}
	if refB.Offset != 0 {
		t.Fatalf("refB.Offset = %d, want 0", refB.Offset)
	}
	if dv.MaxEnv != 2 {
		t.Fatalf("MaxEnv = %d, want 2 (both lets live at once)", dv.MaxEnv)
	}
}

func TestStackEnvSizerDescendsIntoBlocks(t *testing.T) {
	ops := serialize.DefaultCoreOps()
	dv := instr.NewDefVM(ops)
	outer := instr.NewInstruction(ops, "LIT_1_OP")
	outer.Base().StackDelta = 1

	inner1 := instr.NewInstruction(ops, "LIT_2_OP")
	inner1.Base().StackDelta = 1
	inner2 := instr.NewInstruction(ops, "LIT_3_OP")
	inner2.Base().StackDelta = 1
	instr.Append(inner1, inner2)
	blk := instr.NewBlock(inner1)

	tail := instr.Append(nil, dv)
	tail = instr.Append(tail, outer)
	instr.Append(tail, blk)

	driveSizer(t, &Context{Ops: ops, Start: dv})

	// The block's children start from the height just before the block
	// (1, after the outer literal), so the peak is 1 + 2.
	if dv.MaxStack != 3 {
		t.Fatalf("MaxStack = %d, want 3 (block contents stack on top of the outer literal)", dv.MaxStack)
	}
}

func TestStackEnvSizerIsIdempotentOnceSettled(t *testing.T) {
	ops := serialize.DefaultCoreOps()
	dv := instr.NewDefVM(ops)
	lit := instr.NewInstruction(ops, "LIT_1_OP")
	lit.Base().StackDelta = 1
	let := instr.NewLet(ops)
	ref := instr.NewReference(let, false)
	let.AddUsage(ref)

	tail := instr.Append(nil, dv)
	tail = instr.Append(tail, lit)
	tail = instr.Append(tail, let)
	instr.Append(tail, ref)

	ctx := &Context{Ops: ops, Start: dv}
	s := driveSizer(t, ctx)

	changed, err := runOne(ctx, s)
	if err != nil {
		t.Fatalf("settled pass error: %v", err)
	}
	if changed {
		t.Fatal("a fully settled chain should report no further change")
	}
}
