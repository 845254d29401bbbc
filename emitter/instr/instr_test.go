package instr

import "fmt"

// fakeResolver is a minimal OpResolver for instr package tests, which
// cannot import package serialize (serialize imports instr, so doing so
// here would be a cycle). It only knows the opcode names these tests
// actually exercise.
type fakeResolver struct {
	byName map[string]byte
	delta  map[byte]int
	next   byte
}

func newFakeResolver() *fakeResolver {
	r := &fakeResolver{byName: map[string]byte{}, delta: map[byte]int{}}
	for _, name := range []string{
		"DEF_VM_OP", "EXIT_OP", "RET_OP", "LET_1_OP",
		"REF_0_OP", "REF_1_OP", "REF_2_OP", "REF_3_OP",
		"REF_4_OP", "REF_5_OP", "REF_6_OP", "REF_7_OP", "REF_OP",
		"GLO_REF_0_OP", "GLO_REF_1_OP", "GLO_REF_2_OP", "GLO_REF_3_OP",
		"GLO_REF_4_OP", "GLO_REF_5_OP", "GLO_REF_6_OP", "GLO_REF_7_OP",
		"GLO_REF_OP", "GLO_REF16_OP",
		"LIT_0_OP", "LIT_1_OP", "LIT_2_OP", "LIT_3_OP",
		"LIT_4_OP", "LIT_5_OP", "LIT_6_OP", "LIT_7_OP",
		"LIT8_OP", "LIT16_OP",
		"POP_LET_1_OP", "POP_LET_2_OP", "POP_LET_OP",
		"DEF_FUN_2_OP", "DEF_FUN_3_OP", "DEF_FUN_OP", "DEF_FUN16_OP",
		"DEF_TUP_OP",
		"DEF_NUM_VEC_1_OP", "DEF_NUM_VEC_2_OP", "DEF_NUM_VEC_OP",
		"FUNCALL_0_OP", "FUNCALL_1_OP", "FUNCALL_2_OP",
		"IF_OP", "IF_16_OP", "JMP_OP", "JMP_16_OP",
		"ADD_OP", "TUP_OP", "VMUL_OP",
	} {
		r.byName[name] = r.next
		r.next++
	}
	r.delta[r.byName["ADD_OP"]] = -1
	r.delta[r.byName["LIT_0_OP"]] = 1
	return r
}

func (r *fakeResolver) Op(name string) (byte, bool) { op, ok := r.byName[name]; return op, ok }
func (r *fakeResolver) MustOp(name string) byte {
	op, ok := r.byName[name]
	if !ok {
		panic(fmt.Sprintf("fakeResolver: unknown opcode %q", name))
	}
	return op
}
func (r *fakeResolver) StackDelta(op byte) int { return r.delta[op] }
func (r *fakeResolver) Name(op byte) string {
	for name, o := range r.byName {
		if o == op {
			return name
		}
	}
	return "?"
}

// Encode mirrors serialize.OpTable.Encode's smallest-fits algorithm
// exactly, so family resolution tested here matches production.
func (r *fakeResolver) Encode(fam Family, value int) (byte, []byte, error) {
	if value >= fam.KBase {
		idx := value - fam.KBase
		if idx >= 0 && idx < len(fam.KNames) && fam.KNames[idx] != "" {
			return r.MustOp(fam.KNames[idx]), nil, nil
		}
	}
	if value < 0 {
		return 0, nil, fmt.Errorf("negative value %d has no encoding", value)
	}
	if fam.Wide8 != "" && value <= 0xff {
		return r.MustOp(fam.Wide8), []byte{byte(value)}, nil
	}
	if fam.Wide16 != "" && value <= 0xffff {
		return r.MustOp(fam.Wide16), []byte{byte(value & 0xff), byte(value >> 8)}, nil
	}
	return 0, nil, fmt.Errorf("value %d too large for any member of this encoding family", value)
}
