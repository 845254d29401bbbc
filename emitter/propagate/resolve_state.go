package propagate

import "protokernel/emitter/instr"

// ResolveState resolves open question 9.2: NSTATES/NEXPORTS/EXPORT_LEN
// come from counting the persistent-state lets and the exported lets.
// Those counts come entirely from attributes the linearizer
// already stamped on each iLET (AttrPersistentState, AttrExportWidth),
// so Act itself never needs to change anything — all the work is a
// single full-chain tally in PostProp.
type ResolveState struct{}

func (ResolveState) Name() string { return "ResolveState" }

func (ResolveState) PreProp(ctx *Context) {}

func (ResolveState) Act(i instr.Instr, ctx *Context) (bool, error) { return false, nil }

// PostProp only writes NSTATES/NEXPORTS/EXPORT_LEN back to DEF_VM once
// every instruction in the chain reports itself resolved: counting
// against a chain that's still mid-resolution (sizes/locations not yet
// settled) would let a premature, too-low count leak into the
// preamble before a later round's InsertLetPops or ResolveISizes change
// could add more persistent/export lets. DEF_VM itself is excluded
// from that readiness scan — its Resolved() depends on the very fields
// this pass writes, so including it could never fire.
func (ResolveState) PostProp(ctx *Context) (bool, error) {
	nStates, nExports, exportLen := 0, 0, 0
	allResolved := true

	Walk(ctx.Start, func(i instr.Instr) {
		if _, isPreamble := i.(*instr.DefVM); !isPreamble && !i.Resolved() {
			allResolved = false
		}
		let, ok := i.(*instr.Let)
		if !ok {
			return
		}
		if v := let.Base().Attr(instr.AttrPersistentState); v != nil {
			if persistent, ok := v.(bool); ok && persistent {
				nStates++
			}
		}
		if v := let.Base().Attr(instr.AttrExportWidth); v != nil {
			if width, ok := v.(int); ok && width > 0 {
				nExports++
				exportLen += width
			}
		}
	})

	if !allResolved {
		return false, nil
	}

	dv := ctx.DefVM()
	changed := false
	if dv.NStates != nStates {
		dv.NStates = nStates
		changed = true
	}
	if dv.NExports != nExports {
		dv.NExports = nExports
		changed = true
	}
	if dv.ExportLen != exportLen {
		dv.ExportLen = exportLen
		changed = true
	}
	return changed, nil
}
