package ir

// Emittable reports whether a type is concrete and local, i.e. safe to
// lower to bytecode: no unbounded tuples, no field-of-field. This is
// the emittability check, the pipeline's first step.
func Emittable(t ProtoType) bool {
	switch v := t.(type) {
	case *ProtoScalar:
		return true
	case *ProtoSymbol:
		return true
	case *ProtoTuple:
		if !v.Bounded {
			return false
		}
		for _, elem := range v.Types {
			if !Emittable(elem) {
				return false
			}
		}
		return true
	case *ProtoLambda:
		return OperatorEmittable(v.Op)
	default:
		return false
	}
}

// OperatorEmittable reports whether an Operator appearing inside a
// ProtoLambda is one the emitter knows how to turn into bytecode.
func OperatorEmittable(op Operator) bool {
	switch op.(type) {
	case *Literal, *Parameter, *Primitive, *CompoundOp:
		return true
	default:
		return false
	}
}

// EmittableField checks a single field's range.
func EmittableField(f *Field) bool {
	return Emittable(f.Range)
}
