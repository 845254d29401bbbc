package serialize

import (
	"testing"

	"protokernel/emitter/instr"
)

func TestSerializeWritesResolvedChain(t *testing.T) {
	t1 := DefaultCoreOps()
	lit := instr.NewRawInstruction(t1.MustOp("LIT8_OP"), []byte{42})
	lit.Base().Location = 0
	exit := instr.NewInstruction(t1, "EXIT_OP")
	exit.Base().Location = 2
	instr.Append(lit, exit)

	buf := Serialize(lit)
	if len(buf) != 3 {
		t.Fatalf("len(buf) = %d, want 3 (2-byte LIT8 + 1-byte EXIT)", len(buf))
	}
	if buf[0] != t1.MustOp("LIT8_OP") || buf[1] != 42 {
		t.Fatalf("buf[0:2] = %v, want [LIT8_OP 42]", buf[0:2])
	}
	if buf[2] != t1.MustOp("EXIT_OP") {
		t.Fatalf("buf[2] = %d, want EXIT_OP", buf[2])
	}
}

func TestSerializePanicsOnUnresolvedChain(t *testing.T) {
	t1 := DefaultCoreOps()
	lit := instr.NewInstruction(t1, "LIT_1_OP") // Location left at -1
	defer func() {
		if recover() == nil {
			t.Fatal("expected Serialize over an unresolved chain to panic")
		}
	}()
	Serialize(lit)
}
