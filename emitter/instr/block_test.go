package instr

import "testing"

func TestBlockFoldsSizeAndDeltasOverContents(t *testing.T) {
	r := newFakeResolver()
	lit := NewInstruction(r, "LIT_1_OP") // stack delta defaults to 0 (fakeResolver has no entry)
	lit.Base().StackDelta = 1
	add := NewInstruction(r, "ADD_OP") // -1
	Append(lit, add)

	blk := NewBlock(lit)
	if got := blk.Size(); got != 2 {
		t.Fatalf("Block.Size() = %d, want 2 (two 1-byte instructions)", got)
	}
	if got := blk.NetStackDelta(); got != 0 {
		t.Fatalf("Block.NetStackDelta() = %d, want 0 (1 + -1)", got)
	}
	if got := blk.MaxStackDelta(); got != 1 {
		t.Fatalf("Block.MaxStackDelta() = %d, want 1 (peak after lit, before add)", got)
	}
}

func TestBlockResolvedRequiresAllContents(t *testing.T) {
	r := newFakeResolver()
	lit := NewInstruction(r, "LIT_1_OP")
	add := NewInstruction(r, "ADD_OP")
	Append(lit, add)
	blk := NewBlock(lit)

	if blk.Resolved() {
		t.Fatal("Block with unresolved contents reports Resolved")
	}
	lit.Base().Location, add.Base().Location = 0, 1
	if !blk.Resolved() {
		t.Fatal("Block with every content instruction resolved should report Resolved")
	}
}

func TestBlockOutputWritesContentsThenNext(t *testing.T) {
	r := newFakeResolver()
	lit := NewInstruction(r, "LIT_1_OP")
	lit.Base().Location = 0
	blk := NewBlock(lit)
	blk.B.Location = 0 // Block itself doesn't write, only its contents + Next

	tail := NewInstruction(r, "EXIT_OP")
	tail.Base().Location = 1
	blk.B.Next = tail

	buf := make([]byte, 2)
	blk.Output(buf)
	if buf[0] != r.MustOp("LIT_1_OP") || buf[1] != r.MustOp("EXIT_OP") {
		t.Fatalf("buf = %v, want [LIT_1_OP EXIT_OP]", buf)
	}
}

func TestNoInstructionIsInert(t *testing.T) {
	n := NewNoInstruction()
	if n.Size() != 0 {
		t.Fatalf("NoInstruction.Size() = %d, want 0", n.Size())
	}
	if n.NetStackDelta() != 0 || n.MaxStackDelta() != 0 || n.NetEnvDelta() != 0 || n.MaxEnvDelta() != 0 {
		t.Fatal("NoInstruction must contribute no stack or env effect")
	}
	if n.Resolved() {
		t.Fatal("NoInstruction with no Location set should not report Resolved")
	}
	n.Base().Location = 0
	if !n.Resolved() {
		t.Fatal("NoInstruction with a Location set should report Resolved")
	}
}
