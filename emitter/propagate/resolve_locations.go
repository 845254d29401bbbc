package propagate

import "protokernel/emitter/instr"

// ResolveLocations resolves byte locations (a pure
// local computation — a node's location is its predecessor's
// next_location, or its Block's own location, or 0 — since a Block
// carries a location field of its own, resolved by this same rule one
// level up), dense global indices (which do need the program-wide
// flattened order, since a branch arm's Block can own globals too),
// and refreshing a FunctionCall's preceding Reference when call-site
// ordering changes which DEF_FUN it targets.
type ResolveLocations struct {
	gMax int
}

func (ResolveLocations) Name() string { return "ResolveLocations" }

func (r *ResolveLocations) PreProp(ctx *Context) {
	r.gMax = 0
}

func (r *ResolveLocations) Act(i instr.Instr, ctx *Context) (bool, error) {
	changed, err := r.resolveLocation(i)
	if err != nil {
		return false, err
	}

	if g, ok := asGlobal(i); ok {
		if r.resolveGlobalIndex(i, g) {
			changed = true
		}
	}

	if fc, ok := i.(*instr.FunctionCall); ok {
		if refreshed, err := refreshCallTargetRef(fc, ctx); err != nil {
			return false, err
		} else if refreshed {
			changed = true
		}
	}

	return changed, nil
}

func (r *ResolveLocations) resolveLocation(i instr.Instr) (bool, error) {
	b := i.Base()
	var loc int
	switch {
	case b.Prev != nil:
		pl := instr.NextLocation(b.Prev)
		if pl < 0 {
			return false, nil
		}
		loc = pl
	case b.Container != nil:
		cloc := b.Container.Base().Location
		if cloc < 0 {
			return false, nil
		}
		loc = cloc
	default:
		loc = 0
	}
	if b.Location == loc {
		return false, nil
	}
	instr.SetLocation(i, loc)
	return true, nil
}

func (r *ResolveLocations) resolveGlobalIndex(i instr.Instr, g *instr.Global) bool {
	prev := prevGlobalFlat(i)
	idx := 0
	if prev != nil {
		if prev.Index < 0 {
			return false // predecessor global not numbered yet
		}
		idx = prev.Index + 1
	}
	changed := false
	if g.Index != idx {
		g.Index = idx
		changed = true
	}
	if idx+1 > r.gMax {
		r.gMax = idx + 1
	}
	return changed
}

// refreshCallTargetRef re-points the Reference immediately preceding a
// FunctionCall at its target's current global index. Needed because
// ResolveISizes (which owns the generic "global Reference -> repick
// opcode" rule) runs *before* ResolveLocations in the fixed propagator
// order, so within a single outer-loop round it would otherwise act on
// last round's index.
func refreshCallTargetRef(fc *instr.FunctionCall, ctx *Context) (bool, error) {
	prev := fc.Base().Prev
	ref, ok := prev.(*instr.Reference)
	if !ok || !ref.Global || ref.Store != instr.Instr(fc.Target) {
		return false, nil
	}
	if fc.Target.Index() < 0 || ref.Offset == fc.Target.Index() {
		return false, nil
	}
	if err := ref.SetOffset(ctx.Ops, fc.Target.Index()); err != nil {
		return false, err
	}
	return true, nil
}

func (r *ResolveLocations) PostProp(ctx *Context) (bool, error) {
	dv := ctx.DefVM()
	if dv.NGlobals != r.gMax {
		dv.NGlobals = r.gMax
		return true, nil
	}
	return false, nil
}
