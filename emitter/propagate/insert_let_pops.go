package propagate

import (
	"fmt"
	"sort"

	"protokernel/emitter/instr"
)

// InsertLetPops decides where each Let's pop belongs. Its work doesn't
// decompose into an independent per-instruction Act (finding a let's
// last usage,
// and grouping simultaneous last-usages into one POP_LET_k, both need
// the whole chain's current shape at once), so Act is a no-op and the
// pass runs entirely in PostProp, once per propagator run — idempotent
// because a let with Pop already set is skipped on every later call.
type InsertLetPops struct{}

func (InsertLetPops) Name() string { return "InsertLetPops" }

func (InsertLetPops) PreProp(ctx *Context) {}

func (InsertLetPops) Act(i instr.Instr, ctx *Context) (bool, error) { return false, nil }

func (InsertLetPops) PostProp(ctx *Context) (bool, error) {
	order := flattenOrder(ctx.Start)
	pos := make(map[instr.Instr]int, len(order))
	for idx, n := range order {
		pos[n] = idx
	}

	var lets []*instr.Let
	for _, n := range order {
		if l, ok := n.(*instr.Let); ok && l.Pop == nil {
			lets = append(lets, l)
		}
	}
	if len(lets) == 0 {
		return false, nil
	}

	// For each unresolved let, walk its usage set ("maintain
	// a stack of active usage sets" collapses here to one scan per let,
	// since each let's pop site depends only on its own last usage, not
	// on any other let's) and find the latest-positioned Reference: that
	// is the last usage, marked AttrLastReference. If that reference sits
	// inside a branch arm, its AttrBranchEnd payload (set by
	// linearize.markBranchEnd) names the anchor to use instead of the
	// reference's own position (step 4 / §4.9.2's
	// partition-by-~Branch~End rule); otherwise the reference itself is
	// the anchor ("default partition = the cursor position after the
	// walk").
	anchorOf := make(map[*instr.Let]instr.Instr, len(lets))
	for _, l := range lets {
		var lastRef instr.Instr
		lastPos := -1
		for u := range l.Usages {
			p, ok := pos[u]
			if !ok {
				continue // usage instruction no longer linked (folded away)
			}
			if p > lastPos {
				lastPos, lastRef = p, u
			}
		}
		if lastRef == nil {
			return false, fmt.Errorf("propagate: let has no resolvable last usage (structural impossibility)")
		}
		lastRef.Base().Mark(instr.AttrLastReference, true)

		anchor := lastRef
		if be := lastRef.Base().Attr(instr.AttrBranchEnd); be != nil {
			if beInstr, ok := be.(instr.Instr); ok {
				anchor = beInstr
			}
		}
		anchorOf[l] = anchor
	}

	// Partition by anchor: several lets whose last usage lands at the
	// same point share one POP_LET_k.
	groups := map[instr.Instr][]*instr.Let{}
	var anchorOrder []instr.Instr
	for _, l := range lets {
		a := anchorOf[l]
		if _, seen := groups[a]; !seen {
			anchorOrder = append(anchorOrder, a)
		}
		groups[a] = append(groups[a], l)
	}
	sort.Slice(anchorOrder, func(i, j int) bool {
		return pos[anchorOrder[i]] < pos[anchorOrder[j]]
	})

	for _, a := range anchorOrder {
		group := groups[a]
		k := len(group)
		op, params, err := ctx.Ops.Encode(instr.PopLetFamily, k)
		if err != nil {
			return false, fmt.Errorf("propagate: %w", err)
		}
		pop := instr.NewRawInstruction(op, params)
		pop.Base().EnvDelta = -k
		instr.InsertAfter(a, pop)
		for _, l := range group {
			l.Pop = pop
		}
	}
	return true, nil
}

// flattenOrder returns every instruction in true program order,
// descending into Blocks in place (forward walk
// needs a total order to compare "did this usage come before or after
// that one", including usages that live inside a branch arm's Block).
func flattenOrder(start instr.Instr) []instr.Instr {
	var out []instr.Instr
	Walk(start, func(i instr.Instr) { out = append(out, i) })
	return out
}
