package serialize

import (
	"strings"
	"testing"

	"protokernel/emitter/instr"
)

func TestPrintChainCompact(t *testing.T) {
	t1 := DefaultCoreOps()
	lit := instr.NewInstruction(t1, "LIT_1_OP")
	tail := instr.Append(nil, lit)
	exit := instr.NewInstruction(t1, "EXIT_OP")
	instr.Append(tail, exit)

	out := PrintChain(lit, t1, PrintOptions{Compact: true})
	if out != "LIT_1_OP EXIT_OP" {
		t.Fatalf("PrintChain compact = %q, want %q", out, "LIT_1_OP EXIT_OP")
	}
}

func TestPrintChainDescendsIntoBlocksAndSkipsNoInstruction(t *testing.T) {
	t1 := DefaultCoreOps()
	inner := instr.NewInstruction(t1, "LIT_1_OP")
	blk := instr.NewBlock(inner)

	noop := instr.NewNoInstruction()
	tail := instr.Append(nil, blk)
	tail = instr.Append(tail, noop)
	exit := instr.NewInstruction(t1, "EXIT_OP")
	instr.Append(tail, exit)

	out := PrintChain(blk, t1, PrintOptions{Compact: true})
	if out != "{ LIT_1_OP } EXIT_OP" {
		t.Fatalf("PrintChain with block = %q, want %q", out, "{ LIT_1_OP } EXIT_OP")
	}
}

func TestPrintChainOpDebugAnnotatesLocation(t *testing.T) {
	t1 := DefaultCoreOps()
	lit := instr.NewInstruction(t1, "LIT_1_OP")
	lit.Base().Location = 5

	out := PrintChain(lit, t1, PrintOptions{Compact: true, OpDebug: true})
	if !strings.Contains(out, "@5") {
		t.Fatalf("PrintChain with OpDebug = %q, want it to contain @5", out)
	}
}

func TestPrintChainSemicompactWraps(t *testing.T) {
	t1 := DefaultCoreOps()
	var tail instr.Instr
	for i := 0; i < 40; i++ {
		lit := instr.NewInstruction(t1, "LIT_1_OP")
		tail = instr.Append(tail, lit)
	}
	start := instr.Start(tail)

	out := PrintChain(start, t1, PrintOptions{Semicompact: true})
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 70 {
			t.Fatalf("semicompact line exceeds 70 columns: %q (%d chars)", line, len(line))
		}
	}
	if !strings.Contains(out, "\n") {
		t.Fatal("40 tokens should wrap across more than one line at width 70")
	}
}

func TestHexDumpWraps25BytesPerLine(t *testing.T) {
	buf := make([]byte, 30)
	for i := range buf {
		buf[i] = byte(i)
	}
	out := HexDump(buf)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (25 + 5 bytes)", len(lines))
	}
	if !strings.HasPrefix(lines[0], "00 01 02") {
		t.Fatalf("first line = %q, want it to start with 00 01 02", lines[0])
	}
}
