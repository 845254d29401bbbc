package linearize

import (
	"fmt"
	"math"

	"protokernel/emitter/instr"
	"protokernel/emitter/ir"
)

// appendLiteral dispatches literal emission by the literal's range type.
func (lz *Linearizer) appendLiteral(lit *ir.Literal, oi *ir.OperatorInstance, tail instr.Instr) (instr.Instr, error) {
	switch lit.Range.(type) {
	case *ir.ProtoScalar:
		return lz.appendScalarLiteral(lit.Scalar, tail)
	case *ir.ProtoTuple:
		return lz.appendTupleLiteral(lit.Tuple, tail)
	case *ir.ProtoLambda:
		return lz.appendLambdaLiteral(lit, oi, tail)
	default:
		return nil, fmt.Errorf("linearize: literal has unsupported range type %T", lit.Range)
	}
}

// appendScalarLiteral encodes an integer via the smallest-fits LitFamily
// member when the value is a non-negative integer within range,
// otherwise a raw little-endian IEEE-754 single (open question 9.3:
// little-endian chosen explicitly for portability across target
// devices).
func (lz *Linearizer) appendScalarLiteral(v float64, tail instr.Instr) (instr.Instr, error) {
	if v >= 0 && v <= 0x8000 && v == math.Trunc(v) {
		op, params, err := lz.Ops.Encode(instr.LitFamily, int(v))
		if err != nil {
			return nil, err
		}
		raw := instr.NewRawInstruction(op, params)
		raw.Base().StackDelta = 1
		return instr.Append(tail, raw), nil
	}

	bits := math.Float32bits(float32(v))
	params := []byte{
		byte(bits),
		byte(bits >> 8),
		byte(bits >> 16),
		byte(bits >> 24),
	}
	raw := instr.NewRawInstruction(lz.Ops.MustOp("LIT_FLO_OP"), params)
	raw.Base().StackDelta = 1
	return instr.Append(tail, raw), nil
}

// appendTupleLiteral implements the empty/non-empty tuple-literal rule:
// an empty tuple is one NUL_TUP_OP; a non-empty one appends each
// element's own literal encoding, then a literal iDEF_TUP, returning a
// Reference to that global.
func (lz *Linearizer) appendTupleLiteral(elems []*ir.Literal, tail instr.Instr) (instr.Instr, error) {
	if len(elems) == 0 {
		nul := instr.NewInstruction(lz.Ops, "NUL_TUP_OP")
		return instr.Append(tail, nul), nil
	}
	for _, el := range elems {
		chain, err := lz.appendLiteral(el, nil, tail)
		if err != nil {
			return nil, err
		}
		tail = chain
	}
	dt, err := instr.NewDefTup(lz.Ops, len(elems), true)
	if err != nil {
		return nil, err
	}
	tail = instr.Append(tail, dt)
	ref := instr.NewReference(dt, true)
	tail = instr.Append(tail, ref)
	return tail, nil
}

// appendLambdaLiteral implements lambda rule: if every
// consumer of oi is a "branch" primitive, the lambda becomes the
// branch's inline block and nothing is emitted here (NoInstruction);
// otherwise it's a first-class value referencing the wrapped compound
// op's already-emitted DEF_FUN.
func (lz *Linearizer) appendLambdaLiteral(lit *ir.Literal, oi *ir.OperatorInstance, tail instr.Instr) (instr.Instr, error) {
	if oi != nil && allConsumersAreBranch(oi) {
		return instr.Append(tail, instr.NewNoInstruction()), nil
	}
	comp, ok := lit.Lambda.(*ir.CompoundOp)
	if !ok {
		return nil, fmt.Errorf("linearize: lambda literal's payload is %T, not a compound op", lit.Lambda)
	}
	def, ok := lz.globalNameMap[comp]
	if !ok {
		return nil, fmt.Errorf("linearize: lambda literal references %q before its DEF_FUN was emitted", comp.Name)
	}
	ref := instr.NewReference(def, true)
	return instr.Append(tail, ref), nil
}

func allConsumersAreBranch(oi *ir.OperatorInstance) bool {
	if oi.Output == nil || len(oi.Output.Consumers) == 0 {
		return false
	}
	for _, c := range oi.Output.Consumers {
		prim, ok := c.OI.Op.(*ir.Primitive)
		if !ok || !prim.IsCore("branch") {
			return false
		}
	}
	return true
}
