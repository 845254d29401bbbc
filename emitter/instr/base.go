// Package instr implements the closed instruction-chain data model: a
// doubly-linked chain of tagged-variant nodes with owning Blocks,
// non-owning dependents, and the five overridable behaviors (size,
// resolved, output, net/max stack & env delta).
//
// Ownership is straightforward: Blocks own their contents chain;
// dependents are weak (non-owning) back-references, modeled here as a
// plain map keyed by pointer identity rather than a reference-counted
// structure, since Go's garbage collector makes "weak" just mean
// "doesn't imply lifetime", not "needs manual release".
package instr

import "fmt"

// Instr is the interface every chain node satisfies. Concrete types
// embed Base (directly, or transitively through Global) for the common
// fields, and define their own Size/Resolved/Output/delta methods when
// they differ from Base's — plain Go method shadowing stands in for the
// "virtual-ish" dispatch a tagged-variant model needs, with no explicit
// vtable.
type Instr interface {
	Base() *Base
	Size() int
	Resolved() bool
	Output(buf []byte)
	NetStackDelta() int
	MaxStackDelta() int
	NetEnvDelta() int
	MaxEnvDelta() int
	Describe(r OpResolver) string
}

// Attr is a closed set of side-table keys attached to instructions,
// per ("model as a tagged-key side-table rather than a
// generic string-keyed map").
type Attr int

const (
	AttrRefTarget Attr = iota
	AttrLastReference
	// AttrBranchEnd holds different payloads depending on which kind of
	// instruction carries it: on a branch's after_this marker it is the
	// bool true ("this location is a landing point"); on a Reference
	// inside a branch arm (set by linearize.markBranchEnd) its value is
	// the Instr of the enclosing branch's after_this marker itself, so
	// propagate.InsertLetPops knows to anchor that reference's owning
	// let's pop there instead of at the reference's own position
	// ("partition by ~Branch~End attribute").
	AttrBranchEnd
	// AttrPersistentState marks an iLET that holds a persistent-state
	// cell (/ open question 9.2), set by the linearizer
	// from the IR's Field.Persistent marking.
	AttrPersistentState
	// AttrExportWidth marks an iLET that holds an exported value; its
	// payload is the export's byte width (1 for a scalar, the tuple's
	// element count for a tuple), set by the linearizer from the IR's
	// Field.ExportWidth marking.
	AttrExportWidth
)

// Base holds the fields common to every instruction variant: chain
// links, the opcode and its parameter bytes, resolved location, the
// per-instruction stack/env deltas, and the attribute side-table. Every
// concrete instruction type embeds Base (directly or via Global), which
// is what gives it a Base() method for free through promotion.
type Base struct {
	Prev, Next Instr
	Container  *Block

	Op         byte
	Parameters []byte
	Location   int // -1 until resolved

	StackDelta int
	EnvDelta   int

	// Dependents is a set (by pointer identity) of instructions to wake
	// when this one changes value. Non-owning: membership here never
	// keeps anything alive past the chain itself.
	Dependents map[Instr]bool

	attrs map[Attr]any
}

func NewBase() Base {
	return Base{Location: -1, Dependents: map[Instr]bool{}}
}

func (b *Base) Base() *Base { return b }

func (b *Base) AddDependent(i Instr) {
	if b.Dependents == nil {
		b.Dependents = map[Instr]bool{}
	}
	b.Dependents[i] = true
}

func (b *Base) Mark(a Attr, value any) {
	if b.attrs == nil {
		b.attrs = map[Attr]any{}
	}
	b.attrs[a] = value
}

func (b *Base) Marked(a Attr) bool {
	if b.attrs == nil {
		return false
	}
	_, ok := b.attrs[a]
	return ok
}

func (b *Base) Attr(a Attr) any {
	if b.attrs == nil {
		return nil
	}
	return b.attrs[a]
}

func (b *Base) Padd(v byte)      { b.Parameters = append(b.Parameters, v) }
func (b *Base) Padd16(v uint16)  { b.Padd(byte(v & 0xff)); b.Padd(byte(v >> 8)) }
func (b *Base) ClearParameters() { b.Parameters = nil }

// StartLocation, NextLocation and SetLocation are free functions (not
// methods on Base) because NextLocation needs the *overridden* Size()
// of whatever concrete type wraps this Base — something only the Instr
// interface value, not the embedded Base, can provide.
func StartLocation(i Instr) int { return i.Base().Location }

func NextLocation(i Instr) int {
	loc := i.Base().Location
	if loc == -1 {
		return -1
	}
	sz := i.Size()
	if sz == -1 {
		return -1
	}
	return loc + sz
}

func SetLocation(i Instr, l int) { i.Base().Location = l }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// writeSelf writes an instruction's own opcode and parameter bytes at
// its resolved location; it does not recurse to Next (callers handle
// the chain walk themselves so Block can interleave its own children).
func writeSelf(i Instr, buf []byte) {
	b := i.Base()
	if !i.Resolved() {
		panic("instr: attempted to output an unresolved instruction")
	}
	buf[b.Location] = b.Op
	copy(buf[b.Location+1:], b.Parameters)
}

// describeBase renders an opcode mnemonic (via the resolver) plus its
// parameter bytes for diagnostic output.
func describeBase(r OpResolver, b *Base) string {
	name := r.Name(b.Op)
	if len(b.Parameters) == 0 {
		return name
	}
	return fmt.Sprintf("%s%v", name, b.Parameters)
}

// Instruction is the plain variant: an opcode plus parameter bytes with
// no special rules, e.g. ADD_OP, RET_OP, EXIT_OP.
type Instruction struct {
	B Base
}

func (i *Instruction) Base() *Base { return &i.B }

func NewInstruction(r OpResolver, name string) *Instruction {
	i := &Instruction{B: NewBase()}
	op, ok := r.Op(name)
	if !ok {
		panic(fmt.Sprintf("instr: unknown opcode %q", name))
	}
	i.B.Op = op
	i.B.StackDelta = r.StackDelta(op)
	return i
}

// NewInstructionWithEnv is NewInstruction plus an explicit env delta,
// for instructions like iLET whose environment effect isn't derivable
// from the opcode table (e.g. LET_1_OP always means "push 1 env slot"
// regardless of what its table-declared stack delta says).
func NewInstructionWithEnv(r OpResolver, name string, envDelta int) *Instruction {
	i := NewInstruction(r, name)
	i.B.EnvDelta = envDelta
	return i
}

// NewRawInstruction builds an instruction from an already-resolved
// opcode byte, used when the opcode was chosen dynamically (e.g. by a
// Family.Encode call) rather than looked up by a fixed name.
func NewRawInstruction(op byte, params []byte) *Instruction {
	i := &Instruction{B: NewBase()}
	i.B.Op = op
	i.B.Parameters = params
	return i
}

func (i *Instruction) Size() int      { return 1 + len(i.B.Parameters) }
func (i *Instruction) Resolved() bool { return i.B.Location >= 0 }
func (i *Instruction) Output(buf []byte) {
	writeSelf(i, buf)
	if i.B.Next != nil {
		i.B.Next.Output(buf)
	}
}
func (i *Instruction) NetStackDelta() int { return i.B.StackDelta }
func (i *Instruction) MaxStackDelta() int { return maxInt(0, i.B.StackDelta) }
func (i *Instruction) NetEnvDelta() int   { return i.B.EnvDelta }
func (i *Instruction) MaxEnvDelta() int   { return maxInt(0, i.B.EnvDelta) }
func (i *Instruction) Describe(r OpResolver) string {
	return describeBase(r, &i.B)
}
