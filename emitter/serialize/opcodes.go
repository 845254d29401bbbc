// Package serialize implements the byte-buffer writer, opcode table
// loader, and pretty-printers for the emitted ProtoKernel bytecode.
// OpTable is the concrete implementation of instr.OpResolver: the only
// place that knows actual opcode numbers.
package serialize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"protokernel/emitter/instr"
)

// OpTable is an opcode table loaded from S-expression source: one or
// more "core" files assigning opcode numbers positionally, plus
// optional "defop" extension files that register additional
// primitive-to-opcode bindings without reassigning existing numbers.
type OpTable struct {
	byName      map[string]byte
	names       []string // names[op] == mnemonic, built as ops are assigned
	stackDelta  map[byte]int
	primitive2op map[string]byte
	svOps       map[string][2]string // primitive -> (scalar op name, vector op name)
	next        byte
	Warnings    []string // input errors: recorded, not fatal
}

func newOpTable() *OpTable {
	return &OpTable{
		byName:       map[string]byte{},
		stackDelta:   map[byte]int{},
		primitive2op: map[string]byte{},
		svOps:        map[string][2]string{},
	}
}

// LoadOps parses a core opcode-table file: a flat S-expression list of
// "(<name> <stack-delta|variable> [<primitive-name>])" entries, opcode
// number = position in the list. Malformed entries are an input error:
// warned and skipped, not fatal.
func LoadOps(source string) (*OpTable, error) {
	t := newOpTable()
	exprs, err := parseSexprs(source)
	if err != nil {
		return nil, err
	}
	for _, e := range exprs {
		if err := t.defineOp(e); err != nil {
			t.Warnings = append(t.Warnings, err.Error())
			continue
		}
	}
	return t, nil
}

func (t *OpTable) defineOp(e sexpr) error {
	if !e.isList || len(e.list) < 2 {
		return fmt.Errorf("serialize: malformed opcode entry at line %d", e.line)
	}
	name := e.list[0].atom
	if name == "" || e.list[0].isList {
		return fmt.Errorf("serialize: opcode entry missing name at line %d", e.line)
	}
	if _, exists := t.byName[name]; exists {
		return fmt.Errorf("serialize: duplicate opcode %q at line %d", name, e.line)
	}
	op := t.next
	if len(t.byName) > 0xff {
		return fmt.Errorf("serialize: opcode table exhausted byte range at line %d", e.line)
	}
	t.next++

	delta := e.list[1].atom
	var sd int
	if delta == "variable" {
		sd = 0 // caller overrides post-construction; see instr.OpResolver doc
	} else {
		n, err := strconv.Atoi(delta)
		if err != nil {
			return fmt.Errorf("serialize: invalid stack delta %q for %q at line %d", delta, name, e.line)
		}
		sd = n
	}

	t.byName[name] = op
	t.stackDelta[op] = sd
	for len(t.names) <= int(op) {
		t.names = append(t.names, "")
	}
	t.names[op] = name

	if len(e.list) >= 3 && e.list[2].atom != "" {
		t.primitive2op[e.list[2].atom] = op
	}
	return nil
}

// LoadExtensionOps parses a "defop" extension file:
// (defop <opcode-name|?|primitive-name> <primitive> <result-type> <arg-type>*).
// "?" allocates the next free opcode slot rather than naming an
// existing one. Invalid entries warn and are skipped, matching the
// core loader's policy.
func (t *OpTable) LoadExtensionOps(source string) error {
	exprs, err := parseSexprs(source)
	if err != nil {
		return err
	}
	for _, e := range exprs {
		if err := t.defineExtensionOp(e); err != nil {
			t.Warnings = append(t.Warnings, err.Error())
		}
	}
	return nil
}

func (t *OpTable) defineExtensionOp(e sexpr) error {
	if !e.isList || len(e.list) < 4 || e.list[0].atom != "defop" {
		return fmt.Errorf("serialize: malformed defop entry at line %d", e.line)
	}
	opSpec := e.list[1].atom
	primitive := e.list[2].atom
	if primitive == "" {
		return fmt.Errorf("serialize: defop missing primitive name at line %d", e.line)
	}

	var op byte
	switch {
	case opSpec == "?":
		op = t.next
		t.next++
		t.names = append(t.names, primitive)
		t.byName[primitive] = op
	default:
		if existing, ok := t.byName[opSpec]; ok {
			op = existing
		} else {
			return fmt.Errorf("serialize: defop references unknown opcode %q at line %d", opSpec, e.line)
		}
	}
	t.primitive2op[primitive] = op
	return nil
}

// RegisterSVOps records a scalar/vector paired primitive, used by the
// linearizer's §4.4 shape rule for operators like +, -, *, <, mux.
func (t *OpTable) RegisterSVOps(primitive, scalarOp, vectorOp string) {
	t.svOps[primitive] = [2]string{scalarOp, vectorOp}
}

// SVOps returns the (scalar-op-name, vector-op-name) pair for a
// primitive, if it is registered as a paired op.
func (t *OpTable) SVOps(primitive string) (scalar, vector string, ok bool) {
	pair, ok := t.svOps[primitive]
	return pair[0], pair[1], ok
}

// PrimitiveOp returns the plain opcode bound to a primitive name.
func (t *OpTable) PrimitiveOp(primitive string) (byte, bool) {
	op, ok := t.primitive2op[primitive]
	return op, ok
}

func (t *OpTable) Op(name string) (byte, bool) {
	op, ok := t.byName[name]
	return op, ok
}

func (t *OpTable) MustOp(name string) byte {
	op, ok := t.byName[name]
	if !ok {
		panic(fmt.Sprintf("serialize: unknown opcode %q (check core.ops)", name))
	}
	return op
}

func (t *OpTable) StackDelta(op byte) int { return t.stackDelta[op] }

// Checksum fingerprints the opcode numbering, so a stored program can
// record which table it was emitted against: replaying a buffer
// against a table whose positions have drifted would silently execute
// the wrong ops.
func (t *OpTable) Checksum() string {
	sum := sha256.Sum256([]byte(strings.Join(t.names, "\n")))
	return hex.EncodeToString(sum[:8])
}

func (t *OpTable) Name(op byte) string {
	if int(op) < len(t.names) && t.names[op] != "" {
		return t.names[op]
	}
	return fmt.Sprintf("OP_%d", op)
}

// Encode implements the smallest-fits policy: the
// k-immediate form if the family has a slot for this exact value,
// else the narrowest operand-carrying form that fits it.
func (t *OpTable) Encode(fam instr.Family, value int) (byte, []byte, error) {
	if value >= fam.KBase {
		idx := value - fam.KBase
		if idx >= 0 && idx < len(fam.KNames) && fam.KNames[idx] != "" {
			return t.MustOp(fam.KNames[idx]), nil, nil
		}
	}
	if value < 0 {
		return 0, nil, fmt.Errorf("serialize: negative value %d has no encoding", value)
	}
	if fam.Wide8 != "" && value <= 0xff {
		return t.MustOp(fam.Wide8), []byte{byte(value)}, nil
	}
	if fam.Wide16 != "" && value <= 0xffff {
		return t.MustOp(fam.Wide16), []byte{byte(value & 0xff), byte(value >> 8)}, nil
	}
	return 0, nil, fmt.Errorf("serialize: value %d too large for any member of this encoding family", value)
}

// DefaultCoreOps loads the built-in core opcode table: every opcode the
// emitter's own instruction variants and primitive set require, plus
// the standard arithmetic, comparison, and vector-paired primitives.
func DefaultCoreOps() *OpTable {
	t, err := LoadOps(defaultCoreOpsSource)
	if err != nil {
		panic("serialize: built-in core.ops failed to parse: " + err.Error())
	}
	for prim, pair := range defaultSVOps {
		t.RegisterSVOps(prim, pair[0], pair[1])
	}
	return t
}

var defaultSVOps = map[string][2]string{
	"+":   {"ADD_OP", "VADD_OP"},
	"-":   {"SUB_OP", "VSUB_OP"},
	"*":   {"MUL_OP", "VMUL_OP"},
	"<":   {"LT_OP", "VLT_OP"},
	"<=":  {"LE_OP", "VLE_OP"},
	">":   {"GT_OP", "VGT_OP"},
	">=":  {"GE_OP", "VGE_OP"},
	"=":   {"EQ_OP", "VEQ_OP"},
	"max": {"MAX_OP", "MAX_OP"}, // max/min stay scalar-form even for tuples
	"min": {"MIN_OP", "MIN_OP"},
	"mux": {"MUX_OP", "VMUX_OP"},
}

// defaultCoreOpsSource is the built-in "core.ops" equivalent. Position
// in this list is the opcode number, exactly like the file format it
// mimics; additions must go at the end to avoid renumbering anything
// a previously-serialized program depends on.
//
// The deltas are static accounting, not a transcript of what the VM
// does at runtime: folding them flat from DEF_VM over every function
// body and both arms of every branch must reach exactly zero at EXIT.
// That is why RET is -1 (each DEF_FUN..RET span nets to zero even
// though the VM hands the value to the caller rather than discarding
// it) and why JMP is -1 (it cancels the taken arm's pushed value so
// the fall-through arm's push isn't double-counted).
const defaultCoreOpsSource = `
(DEF_VM_OP variable)
(EXIT_OP 0)
(RET_OP -1)
(LIT_0_OP 1)
(LIT_1_OP 1)
(LIT_2_OP 1)
(LIT_3_OP 1)
(LIT_4_OP 1)
(LIT_5_OP 1)
(LIT_6_OP 1)
(LIT_7_OP 1)
(LIT8_OP 1)
(LIT16_OP 1)
(LIT_FLO_OP 1)
(REF_0_OP 1)
(REF_1_OP 1)
(REF_2_OP 1)
(REF_3_OP 1)
(REF_4_OP 1)
(REF_5_OP 1)
(REF_6_OP 1)
(REF_7_OP 1)
(REF_OP 1)
(GLO_REF_0_OP 1)
(GLO_REF_1_OP 1)
(GLO_REF_2_OP 1)
(GLO_REF_3_OP 1)
(GLO_REF_4_OP 1)
(GLO_REF_5_OP 1)
(GLO_REF_6_OP 1)
(GLO_REF_7_OP 1)
(GLO_REF_OP 1)
(GLO_REF16_OP 1)
(LET_1_OP -1)
(POP_LET_1_OP 0)
(POP_LET_2_OP 0)
(POP_LET_3_OP 0)
(POP_LET_4_OP 0)
(POP_LET_5_OP 0)
(POP_LET_6_OP 0)
(POP_LET_7_OP 0)
(POP_LET_8_OP 0)
(POP_LET_OP 0)
(DEF_FUN_2_OP variable)
(DEF_FUN_3_OP variable)
(DEF_FUN_4_OP variable)
(DEF_FUN_5_OP variable)
(DEF_FUN_6_OP variable)
(DEF_FUN_7_OP variable)
(DEF_FUN_8_OP variable)
(DEF_FUN_OP variable)
(DEF_FUN16_OP variable)
(DEF_TUP_OP variable)
(DEF_NUM_VEC_1_OP 0)
(DEF_NUM_VEC_2_OP 0)
(DEF_NUM_VEC_3_OP 0)
(DEF_NUM_VEC_4_OP 0)
(DEF_NUM_VEC_5_OP 0)
(DEF_NUM_VEC_6_OP 0)
(DEF_NUM_VEC_7_OP 0)
(DEF_NUM_VEC_8_OP 0)
(DEF_NUM_VEC_OP 0)
(NUL_TUP_OP 1)
(TUP_OP variable tup)
(ALL_OP variable)
(IF_OP -1)
(IF_16_OP -1)
(JMP_OP -1)
(JMP_16_OP -1)
(FUNCALL_0_OP 0)
(FUNCALL_1_OP -1)
(FUNCALL_2_OP -2)
(FUNCALL_3_OP -3)
(FUNCALL_4_OP -4)
(FUNCALL_5_OP -5)
(FUNCALL_6_OP -6)
(FUNCALL_7_OP -7)
(ADD_OP -1 +)
(SUB_OP -1 -)
(MUL_OP -1 *)
(DIV_OP -1 /)
(LT_OP -1 <)
(LE_OP -1 <=)
(GT_OP -1 >)
(GE_OP -1 >=)
(EQ_OP -1 =)
(MAX_OP -1 max)
(MIN_OP -1 min)
(MUX_OP -2 mux)
(VADD_OP -1)
(VSUB_OP -1)
(VMUL_OP -1)
(VLT_OP -1)
(VLE_OP -1)
(VGT_OP -1)
(VGE_OP -1)
(VEQ_OP -1)
(VMAX_OP -1)
(VMIN_OP -1)
(VMUX_OP -2)
(NOT_OP 0 not)
(NEG_OP 0 neg)
`
