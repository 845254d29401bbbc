package linearize

import "protokernel/emitter/ir"

// needsLet implements let-binding rule: a field's value
// must be named (bound via iLET rather than left implicit on the
// stack) when it has two or more consumers within its own amorphous
// medium, or any consumer in a different relevant AM — a function
// boundary a bare stack value can't cross.
func needsLet(f *ir.Field) bool {
	sameDomain := 0
	for _, c := range f.Consumers {
		if c.OI.Output == nil {
			continue
		}
		if c.OI.Output.Domain != f.Domain {
			return true
		}
		sameDomain++
	}
	return sameDomain >= 2
}
