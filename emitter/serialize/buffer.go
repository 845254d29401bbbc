package serialize

import "protokernel/emitter/instr"

// Serialize allocates a byte buffer sized to the fully-resolved chain
// starting at start and asks every instruction to write itself in.
// Callers must have already confirmed every instruction reports
// Resolved() (the emitter package's checkResolution does this);
// Serialize itself does not re-check.
func Serialize(start instr.Instr) []byte {
	end := instr.End(start)
	size := instr.NextLocation(end)
	buf := make([]byte, size)
	start.Output(buf)
	return buf
}
