package propagate

import "protokernel/emitter/instr"

// ResolveISizes resolves per-function body sizes
// (picking the smallest-fits DEF_FUN encoding), global-reference
// offsets once their target Global has an index, and branch offsets
// once both ends of the jump have a known location.
type ResolveISizes struct{}

func (ResolveISizes) Name() string { return "ResolveISizes" }

func (ResolveISizes) PreProp(ctx *Context) {}

func (ResolveISizes) Act(i instr.Instr, ctx *Context) (bool, error) {
	switch v := i.(type) {
	case *instr.DefFun:
		return resolveFunSize(v, ctx)
	case *instr.Reference:
		return resolveGlobalRefOffset(v, ctx)
	case *instr.Branch:
		return resolveBranchOffset(v, ctx)
	default:
		return false, nil
	}
}

func (ResolveISizes) PostProp(ctx *Context) (bool, error) { return false, nil }

// resolveFunSize sums the byte size of every instruction from def's
// body (its Next) up to and including its Ret, then picks the
// narrowest DEF_FUN_k_OP/DEF_FUN_OP/DEF_FUN16_OP encoding that fits
// (iDEF_FUN invariant: the chain from iDEF_FUN to Ret is
// contiguous, so a same-level walk suffices even when the body
// contains Blocks — Block.Size() already folds its own contents).
// Recomputed on every visit, never cached: a branch or reference in
// the body widening its encoding in a later round must be able to
// grow the function size with it.
func resolveFunSize(def *instr.DefFun, ctx *Context) (bool, error) {
	if def.Ret == nil {
		return false, nil
	}
	size := 0
	p := def.Base().Next
	for {
		if p == nil {
			return false, nil // body not fully spliced in yet
		}
		s := p.Size()
		if s < 0 {
			return false, nil
		}
		size += s
		if p == instr.Instr(def.Ret) {
			break
		}
		p = p.Base().Next
	}
	if def.FunSize == size {
		return false, nil
	}

	op, params, err := ctx.Ops.Encode(instr.DefFunFamily, size)
	if err != nil {
		return false, err
	}
	def.G.B.Op = op
	def.G.B.Parameters = params
	def.FunSize = size
	return true, nil
}

// resolveGlobalRefOffset repicks a global Reference's opcode once its
// target's index is known — covers both first assignment and later
// re-numbering as ResolveLocations keeps the index space dense.
func resolveGlobalRefOffset(ref *instr.Reference, ctx *Context) (bool, error) {
	if !ref.Global {
		return false, nil
	}
	g, ok := asGlobal(ref.Store)
	if !ok || g.Index < 0 {
		return false, nil
	}
	if ref.Offset == g.Index {
		return false, nil
	}
	if err := ref.SetOffset(ctx.Ops, g.Index); err != nil {
		return false, err
	}
	return true, nil
}

// resolveBranchOffset sets a Branch's jump distance once both its own
// next_location and its after_this's next_location are known.
func resolveBranchOffset(br *instr.Branch, ctx *Context) (bool, error) {
	selfNext := instr.NextLocation(br)
	afterNext := instr.NextLocation(br.AfterThis)
	if selfNext < 0 || afterNext < 0 {
		return false, nil
	}
	offset := afterNext - selfNext
	if br.Offset == offset {
		return false, nil
	}
	if err := br.SetOffset(ctx.Ops, offset); err != nil {
		return false, err
	}
	return true, nil
}
