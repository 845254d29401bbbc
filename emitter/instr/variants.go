package instr

// Let is iLET: introduces one environment slot holding the value
// produced just before it. Pop points at the POP_LET instruction that
// will eventually retire the slot (inserted later by InsertLetPops);
// Usages is the weak set of References reading this slot, used by
// needs_let-style logic upstream and by last-use discovery when
// InsertLetPops decides where the matching pop belongs.
type Let struct {
	B      Base
	Pop    Instr
	Usages map[Instr]bool
}

func NewLet(r OpResolver) *Let {
	l := &Let{B: NewBase(), Usages: map[Instr]bool{}}
	l.B.Op = r.MustOp("LET_1_OP")
	// The bound value moves from the operand stack into the environment.
	l.B.StackDelta = -1
	l.B.EnvDelta = 1
	return l
}

func (l *Let) AddUsage(i Instr) { l.Usages[i] = true }

func (l *Let) Base() *Base { return &l.B }
func (l *Let) Size() int   { return 1 + len(l.B.Parameters) }
func (l *Let) Resolved() bool {
	return l.B.Location >= 0
}
func (l *Let) Output(buf []byte) {
	writeSelf(l, buf)
	if l.B.Next != nil {
		l.B.Next.Output(buf)
	}
}
func (l *Let) NetStackDelta() int { return l.B.StackDelta }
func (l *Let) MaxStackDelta() int { return maxInt(0, l.B.StackDelta) }
func (l *Let) NetEnvDelta() int   { return l.B.EnvDelta }
func (l *Let) MaxEnvDelta() int   { return maxInt(0, l.B.EnvDelta) }
func (l *Let) Describe(r OpResolver) string {
	return describeBase(r, &l.B)
}

// Reference reads a previously-stored value: either an environment slot
// (Store is a *Let) or a global (Store is a Global-family instruction —
// *DefFun or *DefTup). Offset/Index resolution happens in SetOffset,
// called once ResolveLocations or StackEnvSizer knows the distance.
type Reference struct {
	B       Base
	Store   Instr
	Offset  int // env depth (Let) or global index, depending on Store's kind
	Global  bool
	VecOp   bool // true when this reference feeds a vector-store op, not REF/GLO_REF
}

func NewReference(store Instr, isGlobal bool) *Reference {
	ref := &Reference{B: NewBase(), Store: store, Offset: -1, Global: isGlobal}
	store.Base().Mark(AttrRefTarget, true)
	store.Base().AddDependent(ref)
	return ref
}

// SetOffset picks the smallest-fits opcode for the current Offset. It
// is idempotent: propagators call it again whenever Offset changes and
// it simply re-encodes.
func (ref *Reference) SetOffset(r OpResolver, offset int) error {
	ref.Offset = offset
	if ref.VecOp {
		// Vector-store references reserve a single placeholder byte for
		// the destination global's index at construction (see
		// vecOpStore) and overwrite it in place here, rather than
		// appending and clearing: a vec-op reference to the tuple
		// constructor (TUP_OP) has a second parameter byte (the input
		// arity) appended after the placeholder, and clearing would
		// destroy it. This caps the addressable destination index at
		// 255, distinct from (narrower than) the 65535 cap on ordinary
		// GLO_REF16 references.
		if offset > 0xff {
			return errTooLarge("vector destination index", offset, 0xff)
		}
		if len(ref.B.Parameters) == 0 {
			ref.B.Padd(0)
		}
		ref.B.Parameters[0] = byte(offset)
		return nil
	}
	fam := RefFamily
	if ref.Global {
		fam = GloRefFamily
	}
	op, params, err := r.Encode(fam, offset)
	if err != nil {
		return err
	}
	ref.B.Op = op
	ref.B.Parameters = params
	ref.B.StackDelta = 1
	return nil
}

func (ref *Reference) Base() *Base { return &ref.B }

// Size is unknown (-1) until the offset resolves: the opcode family
// member, and with it the parameter width, depends on the offset, and
// reporting a provisional width here would let a containing function's
// size be computed against bytes that later change.
func (ref *Reference) Size() int {
	if ref.Offset < 0 {
		return -1
	}
	return 1 + len(ref.B.Parameters)
}
func (ref *Reference) Resolved() bool {
	return ref.Offset >= 0 && ref.B.Location >= 0
}
func (ref *Reference) Output(buf []byte) {
	writeSelf(ref, buf)
	if ref.B.Next != nil {
		ref.B.Next.Output(buf)
	}
}
func (ref *Reference) NetStackDelta() int { return ref.B.StackDelta }
func (ref *Reference) MaxStackDelta() int { return maxInt(0, ref.B.StackDelta) }
func (ref *Reference) NetEnvDelta() int   { return ref.B.EnvDelta }
func (ref *Reference) MaxEnvDelta() int   { return maxInt(0, ref.B.EnvDelta) }
func (ref *Reference) Describe(r OpResolver) string {
	return describeBase(r, &ref.B)
}

// Branch is an IF or JMP: AfterThis names the instruction the jump
// lands just after, and Offset is the byte distance from this
// instruction's own end to AfterThis's start, resolved by
// ResolveISizes once both ends of the chain have known locations.
type Branch struct {
	B         Base
	AfterThis Instr
	Offset    int
	JmpOp     bool // true for unconditional JMP, false for conditional IF
}

func NewBranch(afterThis Instr, jmpOp bool) *Branch {
	br := &Branch{B: NewBase(), AfterThis: afterThis, Offset: -1, JmpOp: jmpOp}
	afterThis.Base().Mark(AttrBranchEnd, true)
	afterThis.Base().AddDependent(br)
	return br
}

func (br *Branch) SetOffset(r OpResolver, offset int) error {
	br.Offset = offset
	name8, name16 := "IF_OP", "IF_16_OP"
	if br.JmpOp {
		name8, name16 = "JMP_OP", "JMP_16_OP"
	}
	switch {
	case offset <= 0xff:
		br.B.Op = r.MustOp(name8)
		br.B.Parameters = []byte{byte(offset)}
	case offset <= 0xffff:
		br.B.Op = r.MustOp(name16)
		br.B.ClearParameters()
		br.B.Padd16(uint16(offset))
	default:
		return errTooLarge("branch offset", offset, 0xffff)
	}
	if br.JmpOp {
		// Statically -1 even though the VM pops nothing on a JMP: the
		// taken arm's pushed value has already been counted by the time
		// the fold reaches the fall-through arm, and this is what keeps
		// a flat fold over both arms netting one value, not two.
		br.B.StackDelta = -1
	} else {
		br.B.StackDelta = -1 // IF consumes the condition
	}
	return nil
}

func (br *Branch) Base() *Base { return &br.B }
func (br *Branch) Size() int   { return 1 + len(br.B.Parameters) }
func (br *Branch) Resolved() bool {
	return br.Offset >= 0 && br.B.Location >= 0
}
func (br *Branch) Output(buf []byte) {
	writeSelf(br, buf)
	if br.B.Next != nil {
		br.B.Next.Output(buf)
	}
}
func (br *Branch) NetStackDelta() int { return br.B.StackDelta }
func (br *Branch) MaxStackDelta() int { return maxInt(0, br.B.StackDelta) }
func (br *Branch) NetEnvDelta() int   { return br.B.EnvDelta }
func (br *Branch) MaxEnvDelta() int   { return maxInt(0, br.B.EnvDelta) }
func (br *Branch) Describe(r OpResolver) string {
	return describeBase(r, &br.B)
}

// FunctionCall invokes a compound op's compiled body. Target is the
// callee's DefFun, known once linearization has emitted it (forward
// calls resolve it via the same Dependents wakeup as any other
// not-yet-resolved reference). EnvDelta is always 0: unlike the
// original, which incidentally folds the call's argument count into
// its env delta through an unrelated field reuse, a call itself moves
// no environment slots — the let/pop bracketing around the call site
// already accounts for argument lifetime.
type FunctionCall struct {
	B      Base
	Target *DefFun
	Arity  int
}

func NewFunctionCall(r OpResolver, target *DefFun, arity int) (*FunctionCall, error) {
	fc := &FunctionCall{B: NewBase(), Target: target, Arity: arity}
	op, params, err := r.Encode(FuncallFamily, arity)
	if err != nil {
		return nil, err
	}
	fc.B.Op = op
	fc.B.Parameters = params
	// Pops the arguments plus the callee reference pushed just before
	// the call, pushes one result: -(arity+1)+1.
	fc.B.StackDelta = -arity
	fc.B.EnvDelta = 0
	target.Base().AddDependent(fc)
	return fc, nil
}

func (fc *FunctionCall) Base() *Base { return &fc.B }
func (fc *FunctionCall) Size() int   { return 1 + len(fc.B.Parameters) }
func (fc *FunctionCall) Resolved() bool {
	return fc.Target != nil && fc.Target.Resolved() && fc.B.Location >= 0
}
func (fc *FunctionCall) Output(buf []byte) {
	writeSelf(fc, buf)
	if fc.B.Next != nil {
		fc.B.Next.Output(buf)
	}
}
func (fc *FunctionCall) NetStackDelta() int { return fc.B.StackDelta }
func (fc *FunctionCall) MaxStackDelta() int { return maxInt(0, fc.B.StackDelta) }
func (fc *FunctionCall) NetEnvDelta() int   { return 0 }
func (fc *FunctionCall) MaxEnvDelta() int   { return 0 }
func (fc *FunctionCall) Describe(r OpResolver) string {
	return describeBase(r, &fc.B)
}
