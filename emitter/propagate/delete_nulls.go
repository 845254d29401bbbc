package propagate

import "protokernel/emitter/instr"

// DeleteNulls unlinks every NoInstruction from its chain.
//
// A NoInstruction is only safe to unlink once nothing still needs its
// identity. Every NoInstruction a Block owns is automatically one of
// that Block's dependents (instr.NewBlock registers its whole
// contents), so a raw "has no dependents" check would never delete a
// folded-away reference placeholder that happens to live inside a
// branch arm. hasRealDependents filters out exactly that
// container-membership edge, leaving only dependents that actually
// need this node to keep existing — a Branch targeting it as its
// AfterThis marker, for instance, which must survive forever as a
// zero-size landing point, not just between passes.
type DeleteNulls struct {
	removed map[instr.Instr]bool
}

func (d *DeleteNulls) Name() string { return "DeleteNulls" }

func (d *DeleteNulls) PreProp(ctx *Context) {
	d.removed = map[instr.Instr]bool{}
}

func (d *DeleteNulls) Act(i instr.Instr, ctx *Context) (bool, error) {
	n, ok := i.(*instr.NoInstruction)
	if !ok {
		return false, nil
	}
	if d.removed[i] {
		return false, nil
	}
	if hasRealDependents(n) {
		return false, nil
	}
	unlinkNode(n)
	d.removed[i] = true
	return true, nil
}

func (d *DeleteNulls) PostProp(ctx *Context) (bool, error) { return false, nil }

// hasRealDependents reports whether anything other than i's own
// Container depends on i still being addressable.
func hasRealDependents(i instr.Instr) bool {
	b := i.Base()
	for d := range b.Dependents {
		if instr.Instr(b.Container) == d {
			continue
		}
		return true
	}
	return false
}

// unlinkNode removes i from the chain, fixing up its owning Block's
// Contents head if i was the first child (delete-range,
// specialized for a single node with a possible Block parent — plain
// instr.DeleteRange alone doesn't know about Block.Contents).
func unlinkNode(i instr.Instr) {
	b := i.Base()
	next := b.Next
	if b.Container != nil && b.Container.Contents == i {
		b.Container.Contents = next
	}
	instr.DeleteRange(i, i)
}
