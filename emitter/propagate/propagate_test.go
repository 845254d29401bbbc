package propagate

import (
	"testing"

	"protokernel/emitter/instr"
	"protokernel/emitter/serialize"
)

func TestWalkDescendsIntoBlocks(t *testing.T) {
	ops := serialize.DefaultCoreOps()
	inner := instr.NewInstruction(ops, "LIT_1_OP")
	blk := instr.NewBlock(inner)
	tail := instr.Append(nil, blk)
	exit := instr.NewInstruction(ops, "EXIT_OP")
	instr.Append(tail, exit)

	var seen []instr.Instr
	Walk(blk, func(i instr.Instr) { seen = append(seen, i) })

	if len(seen) != 3 {
		t.Fatalf("Walk visited %d nodes, want 3 (block, its content, exit)", len(seen))
	}
	if seen[0] != instr.Instr(blk) || seen[1] != instr.Instr(inner) || seen[2] != instr.Instr(exit) {
		t.Fatalf("Walk order = %v, want [blk inner exit]", seen)
	}
}

func TestWorklistDedupsAndFIFOOrders(t *testing.T) {
	ops := serialize.DefaultCoreOps()
	a := instr.NewInstruction(ops, "LIT_1_OP")
	b := instr.NewInstruction(ops, "LIT_2_OP")

	wl := newWorklist()
	wl.push(a)
	wl.push(b)
	wl.push(a) // duplicate, should be a no-op

	if wl.empty() {
		t.Fatal("worklist should not be empty after two distinct pushes")
	}
	first := wl.pop()
	second := wl.pop()
	if first != instr.Instr(a) || second != instr.Instr(b) {
		t.Fatalf("pop order = [%v %v], want [a b] (FIFO)", first, second)
	}
	if !wl.empty() {
		t.Fatal("worklist should be empty after popping both entries")
	}
}

func TestPrevFlatCrossesBlockBoundary(t *testing.T) {
	ops := serialize.DefaultCoreOps()
	before := instr.NewInstruction(ops, "LIT_0_OP")
	inner := instr.NewInstruction(ops, "LIT_1_OP")
	blk := instr.NewBlock(inner)
	instr.Append(before, blk)

	if got := prevFlat(blk); got != instr.Instr(before) {
		t.Fatalf("prevFlat(blk) = %v, want before", got)
	}
	if got := prevFlat(inner); got != instr.Instr(before) {
		t.Fatalf("prevFlat(first content of blk) = %v, want before (container's predecessor)", got)
	}
}

func TestPrevGlobalFlatSkipsNonGlobals(t *testing.T) {
	ops := serialize.DefaultCoreOps()
	dv := instr.NewDefVM(ops)
	lit := instr.NewInstruction(ops, "LIT_1_OP")
	def := instr.NewDefFun(ops)
	tail := instr.Append(nil, dv)
	tail = instr.Append(tail, lit)
	tail = instr.Append(tail, def)

	g := prevGlobalFlat(def)
	if g != nil {
		t.Fatalf("prevGlobalFlat(def) = %v, want nil (no earlier global)", g)
	}

	dt, err := instr.NewDefTup(ops, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	tail = instr.Append(tail, dt)
	ref := instr.NewInstruction(ops, "EXIT_OP")
	instr.Append(tail, ref)

	g = prevGlobalFlat(dt)
	if g == nil {
		t.Fatal("prevGlobalFlat(dt) should find def's embedded Global")
	}
	if g != &def.G {
		t.Fatal("prevGlobalFlat(dt) should return def.G specifically, not some other Global")
	}
}

func TestDefaultPropagatorsOrder(t *testing.T) {
	props := DefaultPropagators()
	wantNames := []string{"DeleteNulls", "InsertLetPops", "ResolveISizes", "ResolveLocations", "StackEnvSizer", "ResolveState"}
	if len(props) != len(wantNames) {
		t.Fatalf("got %d propagators, want %d", len(props), len(wantNames))
	}
	for i, name := range wantNames {
		if props[i].Name() != name {
			t.Errorf("propagator %d = %q, want %q", i, props[i].Name(), name)
		}
	}
}
