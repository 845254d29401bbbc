package propagate

import (
	"testing"

	"protokernel/emitter/instr"
	"protokernel/emitter/serialize"
)

func TestResolveStateTalliesPersistentAndExportedLets(t *testing.T) {
	ops := serialize.DefaultCoreOps()
	dv := instr.NewDefVM(ops)

	plain := instr.NewLet(ops)
	persistent := instr.NewLet(ops)
	persistent.Base().Mark(instr.AttrPersistentState, true)
	exported := instr.NewLet(ops)
	exported.Base().Mark(instr.AttrExportWidth, 3)

	tail := instr.Append(nil, dv)
	tail = instr.Append(tail, plain)
	tail = instr.Append(tail, persistent)
	instr.Append(tail, exported)

	instr.SetLocation(dv, 0)
	instr.SetLocation(plain, 9)
	instr.SetLocation(persistent, 10)
	instr.SetLocation(exported, 11)

	rs := ResolveState{}
	changed, err := rs.PostProp(&Context{Ops: ops, Start: dv})
	if err != nil {
		t.Fatalf("PostProp error: %v", err)
	}
	if !changed {
		t.Fatal("expected a change on first tally")
	}
	if dv.NStates != 1 {
		t.Fatalf("NStates = %d, want 1", dv.NStates)
	}
	if dv.NExports != 1 {
		t.Fatalf("NExports = %d, want 1", dv.NExports)
	}
	if dv.ExportLen != 3 {
		t.Fatalf("ExportLen = %d, want 3", dv.ExportLen)
	}
}

func TestResolveStateDefersUntilEverythingResolved(t *testing.T) {
	ops := serialize.DefaultCoreOps()
	dv := instr.NewDefVM(ops)
	persistent := instr.NewLet(ops)
	persistent.Base().Mark(instr.AttrPersistentState, true)
	instr.Append(instr.Append(nil, dv), persistent)
	instr.SetLocation(dv, 0)
	// persistent left unresolved (Location == -1)

	rs := ResolveState{}
	changed, err := rs.PostProp(&Context{Ops: ops, Start: dv})
	if err != nil {
		t.Fatalf("PostProp error: %v", err)
	}
	if changed {
		t.Fatal("should defer the tally until every instruction reports Resolved")
	}
	if dv.NStates != -1 {
		t.Fatal("a deferred tally should not write a premature, too-low count")
	}
}

func TestResolveStateIsIdempotent(t *testing.T) {
	ops := serialize.DefaultCoreOps()
	dv := instr.NewDefVM(ops)
	let := instr.NewLet(ops)
	let.Base().Mark(instr.AttrPersistentState, true)
	instr.Append(instr.Append(nil, dv), let)
	instr.SetLocation(dv, 0)
	instr.SetLocation(let, 9)

	rs := ResolveState{}
	if _, err := rs.PostProp(&Context{Ops: ops, Start: dv}); err != nil {
		t.Fatalf("first PostProp error: %v", err)
	}
	changed, err := rs.PostProp(&Context{Ops: ops, Start: dv})
	if err != nil {
		t.Fatalf("second PostProp error: %v", err)
	}
	if changed {
		t.Fatal("a stable tally should report no further change")
	}
}
