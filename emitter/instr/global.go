package instr

import "strconv"

// Global is the base for any instruction that occupies a slot in the
// dense, chain-ordered global index space (iDEF_FUN, iDEF_TUP). Index
// is resolved by ResolveLocations, which walks backward to the previous
// Global in the chain (dense global index assignment).
type Global struct {
	B     Base
	Index int
}

func newGlobal() Global {
	return Global{B: NewBase(), Index: -1}
}

func (g *Global) Base() *Base { return &g.B }
func (g *Global) Size() int   { return 1 + len(g.B.Parameters) }
func (g *Global) Resolved() bool {
	return g.Index >= 0 && g.B.Location >= 0
}
func (g *Global) Output(buf []byte) {
	writeSelf(g, buf)
	if g.B.Next != nil {
		g.B.Next.Output(buf)
	}
}
func (g *Global) NetStackDelta() int { return g.B.StackDelta }
func (g *Global) MaxStackDelta() int { return maxInt(0, g.B.StackDelta) }
func (g *Global) NetEnvDelta() int   { return g.B.EnvDelta }
func (g *Global) MaxEnvDelta() int   { return maxInt(0, g.B.EnvDelta) }
func (g *Global) Describe(r OpResolver) string {
	return describeBase(r, &g.B)
}

// DefVM is the program's single preamble instruction (// iDEF_VM): always first, six fields resolved by different propagators.
// Multi-byte fields are written little-endian (see the DEF_VM example
// 2), unlike the opcode's own k/8/16 family encodings which have no
// endianness of their own (single bytes or single-purpose 16-bit pairs
// built the same way here).
type DefVM struct {
	B                                                Base
	ExportLen, NExports, NGlobals, NStates, MaxStack, MaxEnv int
}

func NewDefVM(r OpResolver) *DefVM {
	dv := &DefVM{B: NewBase()}
	dv.B.Op = r.MustOp("DEF_VM_OP")
	dv.ExportLen, dv.NExports, dv.NGlobals, dv.NStates, dv.MaxStack, dv.MaxEnv = -1, -1, -1, -1, -1, -1
	return dv
}

func (dv *DefVM) Base() *Base { return &dv.B }
func (dv *DefVM) Size() int   { return 9 } // 1 opcode + 8 preamble bytes
func (dv *DefVM) Resolved() bool {
	return dv.ExportLen >= 0 && dv.NExports >= 0 && dv.NGlobals >= 0 &&
		dv.NStates >= 0 && dv.MaxStack >= 0 && dv.MaxEnv >= 0 && dv.B.Location >= 0
}
func (dv *DefVM) Output(buf []byte) {
	loc := dv.B.Location
	buf[loc] = dv.B.Op
	buf[loc+1] = byte(dv.ExportLen)
	buf[loc+2] = byte(dv.NExports)
	buf[loc+3] = byte(dv.NGlobals & 0xff)
	buf[loc+4] = byte(dv.NGlobals >> 8)
	buf[loc+5] = byte(dv.NStates)
	// +1 reserves a stack slot for the enclosing call frame.
	buf[loc+6] = byte((dv.MaxStack + 1) & 0xff)
	buf[loc+7] = byte((dv.MaxStack + 1) >> 8)
	buf[loc+8] = byte(dv.MaxEnv)
	if dv.B.Next != nil {
		dv.B.Next.Output(buf)
	}
}
func (dv *DefVM) NetStackDelta() int { return 0 }
func (dv *DefVM) MaxStackDelta() int { return 0 }
func (dv *DefVM) NetEnvDelta() int   { return 0 }
func (dv *DefVM) MaxEnvDelta() int   { return 0 }
func (dv *DefVM) Describe(r OpResolver) string {
	return "DEF_VM[export_len=" + strconv.Itoa(dv.ExportLen) + "]"
}

// DefFun is a function prologue (iDEF_FUN): Ret points to the
// matching RET instruction; FunSize is the byte size of the body
// including RET, computed by ResolveISizes once every instruction in
// between has a known size.
type DefFun struct {
	G       Global
	Ret     Instr
	FunSize int
}

func NewDefFun(r OpResolver) *DefFun {
	df := &DefFun{G: newGlobal(), FunSize: -1}
	df.G.B.Op = r.MustOp("DEF_FUN_OP")
	return df
}

func (df *DefFun) Base() *Base { return &df.G.B }
func (df *DefFun) Size() int {
	if df.FunSize < 0 {
		return -1
	}
	return 1 + len(df.G.B.Parameters)
}
func (df *DefFun) Resolved() bool     { return df.FunSize >= 0 && df.G.Resolved() }
func (df *DefFun) Output(buf []byte)  { df.G.Output(buf) }
func (df *DefFun) NetStackDelta() int { return df.G.NetStackDelta() }
func (df *DefFun) MaxStackDelta() int { return df.G.MaxStackDelta() }
func (df *DefFun) NetEnvDelta() int   { return df.G.NetEnvDelta() }
func (df *DefFun) MaxEnvDelta() int   { return df.G.MaxEnvDelta() }
func (df *DefFun) Index() int         { return df.G.Index }
func (df *DefFun) Describe(r OpResolver) string {
	return describeBase(r, &df.G.B)
}

// DefTup declares a tuple global: either a literal (elements already on
// the stack, popped into the tuple) or a numeric-vector destination
// slot (zero-initialized, written element-by-element by vector ops).
// TupSize names the field (rather than Size) so it doesn't collide with
// the Size() method the Instr interface requires.
type DefTup struct {
	G       Global
	TupSize int
	Literal bool
}

// NewDefTup mirrors iDEF_TUP's constructor: literal tuples always use
// DEF_TUP_OP with an explicit size byte (no smallest-fits variation,
// since caps a literal tuple at 255 elements); vector-store
// tuples pick the narrowest DEF_NUM_VEC family member for size.
func NewDefTup(r OpResolver, size int, literal bool) (*DefTup, error) {
	dt := &DefTup{G: newGlobal(), TupSize: size, Literal: literal}
	if literal {
		if size >= 256 {
			return nil, errTooLarge("tuple", size, 255)
		}
		dt.G.B.Op = r.MustOp("DEF_TUP_OP")
		dt.G.B.Padd(byte(size))
		dt.G.B.StackDelta = -size
	} else {
		op, params, err := r.Encode(DefNumVecFamily, size)
		if err != nil {
			return nil, err
		}
		dt.G.B.Op = op
		dt.G.B.Parameters = params
		dt.G.B.StackDelta = 0
	}
	return dt, nil
}

func (dt *DefTup) Base() *Base          { return &dt.G.B }
func (dt *DefTup) Size() int            { return dt.G.Size() }
func (dt *DefTup) Resolved() bool       { return dt.G.Resolved() }
func (dt *DefTup) Output(buf []byte)    { dt.G.Output(buf) }
func (dt *DefTup) NetStackDelta() int   { return dt.G.NetStackDelta() }
func (dt *DefTup) MaxStackDelta() int   { return dt.G.MaxStackDelta() }
func (dt *DefTup) NetEnvDelta() int     { return dt.G.NetEnvDelta() }
func (dt *DefTup) MaxEnvDelta() int     { return dt.G.MaxEnvDelta() }
func (dt *DefTup) Describe(r OpResolver) string {
	return describeBase(r, &dt.G.B)
}
