package rewrite

import "protokernel/emitter/ir"

// Apply drives both pre-linearization rewrites over an entire DFG, in
// place, before the linearizer sees it: every internal "reference" op
// outside a branch-fn AM gets lifted to a parameter of its enclosing
// compound op, and every literal that wraps a bare primitive gets
// rewound into a synthesized compound op so the linearizer can call it
// uniformly through FunctionCall. Shaped as a dedicated pre-pass driver
// that walks the whole program once before the main compile walk
// begins, the way a hoisting pass separates "find what needs lifting"
// from the compile itself.
func Apply(dfg *ir.DFG) error {
	for _, am := range dfg.Relevant {
		if am.Marked("branch-fn") || am.BodyOf == nil {
			continue
		}
		owner := am.BodyOf
		for _, f := range am.Fields {
			oi := f.Producer
			if oi == nil {
				continue
			}
			prim, ok := oi.Op.(*ir.Primitive)
			if !ok || !prim.IsCore("reference") {
				continue
			}
			ReferenceToParameter(dfg, oi, owner)
		}
	}

	// PrimitiveToCompound runs second and over a growing slice: a
	// synthesized wrapper's own body never itself needs wrapping (its
	// only operators are Parameter and the wrapped Primitive), so a
	// single forward pass reaches fixed point without revisiting.
	for _, am := range dfg.Relevant {
		for _, f := range am.Fields {
			oi := f.Producer
			if oi == nil {
				continue
			}
			lit, ok := oi.Op.(*ir.Literal)
			if !ok {
				continue
			}
			comp := PrimitiveToCompound(lit)
			if comp == nil {
				continue
			}
			oi.Op = comp
			dfg.Relevant = append(dfg.Relevant, comp.Body)
			if dfg.Funcalls == nil {
				dfg.Funcalls = map[*ir.CompoundOp][]*ir.OperatorInstance{}
			}
			dfg.Funcalls[comp] = append(dfg.Funcalls[comp], oi)
		}
	}
	return nil
}
