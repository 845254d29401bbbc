package instr

// Block is a sequence of instructions nested inside a parent chain (a
// branch arm or a function body prologue/epilogue wrapper). It owns
// its Contents chain: Size, Resolved, Output and the net/max deltas all
// fold over Contents rather than describing the Block node itself.
type Block struct {
	B        Base
	Contents Instr
}

// NewBlock wraps an existing chain (already linked via Prev/Next) as a
// Block, setting every node's Container and registering each as a
// dependent of the block, the same bookkeeping any chain-splice under a
// container needs to do.
func NewBlock(chain Instr) *Block {
	blk := &Block{B: NewBase()}
	blk.Contents = Start(chain)
	for p := blk.Contents; p != nil; p = p.Base().Next {
		p.Base().Container = blk
		blk.B.AddDependent(p)
	}
	return blk
}

func (blk *Block) Base() *Base { return &blk.B }

func (blk *Block) Size() int {
	s := 0
	for p := blk.Contents; p != nil; p = p.Base().Next {
		ps := p.Size()
		if ps == -1 {
			return -1
		}
		s += ps
	}
	return s
}

func (blk *Block) Resolved() bool {
	for p := blk.Contents; p != nil; p = p.Base().Next {
		if !p.Resolved() {
			return false
		}
	}
	return true
}

func (blk *Block) Output(buf []byte) {
	for p := blk.Contents; p != nil; p = p.Base().Next {
		p.Output(buf)
	}
	if blk.B.Next != nil {
		blk.B.Next.Output(buf)
	}
}

func (blk *Block) NetStackDelta() int {
	d := 0
	for p := blk.Contents; p != nil; p = p.Base().Next {
		d += p.NetStackDelta()
	}
	blk.B.StackDelta = d
	return d
}

func (blk *Block) MaxStackDelta() int {
	delta, max := 0, 0
	for p := blk.Contents; p != nil; p = p.Base().Next {
		max = maxInt(max, delta+p.MaxStackDelta())
		delta += p.NetStackDelta()
	}
	return max
}

func (blk *Block) NetEnvDelta() int {
	d := 0
	for p := blk.Contents; p != nil; p = p.Base().Next {
		d += p.NetEnvDelta()
	}
	blk.B.EnvDelta = d
	return d
}

func (blk *Block) MaxEnvDelta() int {
	delta, max := 0, 0
	for p := blk.Contents; p != nil; p = p.Base().Next {
		max = maxInt(max, delta+p.MaxEnvDelta())
		delta += p.NetEnvDelta()
	}
	return max
}

func (blk *Block) Describe(r OpResolver) string { return "{block}" }

// NoInstruction is a placeholder inserted where an instruction used to
// be (the reference core-op, a branch lambda folded into its arms); it
// is unlinked from the chain by the DeleteNulls propagator.
type NoInstruction struct {
	B Base
}

func NewNoInstruction() *NoInstruction {
	return &NoInstruction{B: NewBase()}
}

func (n *NoInstruction) Base() *Base         { return &n.B }
func (n *NoInstruction) Size() int           { return 0 }
func (n *NoInstruction) Resolved() bool      { return StartLocation(n) >= 0 }
func (n *NoInstruction) Output(buf []byte) {
	if n.B.Next != nil {
		n.B.Next.Output(buf)
	}
}
func (n *NoInstruction) NetStackDelta() int      { return 0 }
func (n *NoInstruction) MaxStackDelta() int      { return 0 }
func (n *NoInstruction) NetEnvDelta() int        { return 0 }
func (n *NoInstruction) MaxEnvDelta() int        { return 0 }
func (n *NoInstruction) Describe(r OpResolver) string { return "<no instruction>" }
