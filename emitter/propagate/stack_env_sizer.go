package propagate

import "protokernel/emitter/instr"

// StackEnvSizer computes per-instruction pre/post
// stack and environment heights, the program-wide peaks (written to
// DEF_VM), and every environment Reference's offset (the depth between
// where its iLET was bound and where the reference reads it).
//
// Heights are kept in maps local to this propagator rather than as
// fields on instr.Base, since they're intermediate values of one
// analysis, not part of the instruction's own persistent shape. The
// maps persist across outer-loop rounds so Act only reports a change
// when a height actually moved since the last round — re-deriving the
// same heights every round must read as convergence, not churn.
type StackEnvSizer struct {
	preStack, postStack  map[instr.Instr]int
	preEnv, postEnv      map[instr.Instr]int
	maxStackAt, maxEnvAt map[instr.Instr]int
}

func (StackEnvSizer) Name() string { return "StackEnvSizer" }

func (s *StackEnvSizer) PreProp(ctx *Context) {
	if s.preStack == nil {
		s.preStack = map[instr.Instr]int{}
		s.postStack = map[instr.Instr]int{}
		s.preEnv = map[instr.Instr]int{}
		s.postEnv = map[instr.Instr]int{}
		s.maxStackAt = map[instr.Instr]int{}
		s.maxEnvAt = map[instr.Instr]int{}
	}
}

func (s *StackEnvSizer) Act(i instr.Instr, ctx *Context) (bool, error) {
	preS, preE, ok := s.heightBefore(i)
	if !ok {
		return false, nil // predecessor/container not sized yet; its own Act will wake us
	}

	postS := preS + i.NetStackDelta()
	postE := preE + i.NetEnvDelta()
	localMaxS := preS + i.MaxStackDelta()
	localMaxE := preE + i.MaxEnvDelta()

	changed := s.set(s.preStack, i, preS)
	changed = s.set(s.postStack, i, postS) || changed
	changed = s.set(s.preEnv, i, preE) || changed
	changed = s.set(s.postEnv, i, postE) || changed
	changed = s.set(s.maxStackAt, i, localMaxS) || changed
	changed = s.set(s.maxEnvAt, i, localMaxE) || changed
	return changed, nil
}

func (s *StackEnvSizer) set(m map[instr.Instr]int, i instr.Instr, v int) bool {
	old, present := m[i]
	if present && old == v {
		return false
	}
	m[i] = v
	return true
}

// heightBefore returns the stack/env height just before i runs: its
// predecessor's post-height at the same nesting level, or (for a
// Block's first child) the Block's own pre-height, or 0 for the very
// first instruction of the program.
func (s *StackEnvSizer) heightBefore(i instr.Instr) (stack, env int, ok bool) {
	b := i.Base()
	if b.Prev != nil {
		st, sok := s.postStack[b.Prev]
		en, eok := s.postEnv[b.Prev]
		return st, en, sok && eok
	}
	if b.Container != nil {
		st, sok := s.preStack[b.Container]
		en, eok := s.preEnv[b.Container]
		return st, en, sok && eok
	}
	return 0, 0, true
}

func (s *StackEnvSizer) PostProp(ctx *Context) (bool, error) {
	changed := false

	// Every environment Reference's offset is the distance between the
	// depth where its iLET was bound and the depth at the use site
	// offset = env_height[reference] - env_height[iLET],
	// where env_height[iLET] means "once the let's own slot exists",
	// i.e. its post-height.
	var refErr error
	Walk(ctx.Start, func(i instr.Instr) {
		if refErr != nil {
			return
		}
		ref, ok := i.(*instr.Reference)
		if !ok || ref.Global {
			return
		}
		let, ok := ref.Store.(*instr.Let)
		if !ok {
			return
		}
		preE, ok := s.preEnv[ref]
		if !ok {
			return
		}
		letPostE, ok := s.postEnv[let]
		if !ok {
			return
		}
		offset := preE - letPostE
		if ref.Offset == offset {
			return
		}
		if err := ref.SetOffset(ctx.Ops, offset); err != nil {
			refErr = err
			return
		}
		changed = true
	})
	if refErr != nil {
		return false, refErr
	}

	// Fold the program-wide peaks over the chain as it stands now, so a
	// stale entry for an unlinked instruction can't inflate them. Defer
	// the DEF_VM write until every instruction has been sized.
	maxS, maxE := 0, 0
	complete := true
	Walk(ctx.Start, func(i instr.Instr) {
		ms, ok := s.maxStackAt[i]
		if !ok {
			complete = false
			return
		}
		me := s.maxEnvAt[i]
		if ms > maxS {
			maxS = ms
		}
		if me > maxE {
			maxE = me
		}
	})
	if !complete {
		return changed, nil
	}

	dv := ctx.DefVM()
	if dv.MaxStack != maxS {
		dv.MaxStack = maxS
		changed = true
	}
	if dv.MaxEnv != maxE {
		dv.MaxEnv = maxE
		changed = true
	}
	return changed, nil
}
