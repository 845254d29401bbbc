package instr

import "fmt"

// errTooLarge reports a structural-impossibility error:
// a count that legitimately overflows its encoding (tuple size, global
// index, branch offset, function size) rather than a bug in the
// propagators themselves. These are always fatal to EmitFrom.
func errTooLarge(what string, got, max int) error {
	return fmt.Errorf("instr: %s too large: %d exceeds maximum of %d", what, got, max)
}
