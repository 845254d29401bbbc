// Package linearize implements the DFG-to-instruction-chain lowering:
// walking each relevant amorphous medium in producer-before-consumer
// order and emitting a flat, nested-Block instruction chain framed by
// DEF_VM/EXIT.
package linearize

import (
	"fmt"

	"protokernel/emitter/instr"
	"protokernel/emitter/ir"
	"protokernel/emitter/serialize"
)

// Linearizer holds the maps scoped to a single emit run: globalNameMap,
// memory, and fragments. Its lifetime is exactly one DFG2Instructions
// call.
type Linearizer struct {
	Ops *serialize.OpTable

	globalNameMap map[*ir.CompoundOp]*instr.DefFun
	memory        map[*ir.Field]*instr.Let
	// fragments parks the instruction chain produced for an internal
	// reference op's sole input, keyed by the producer OI whose output
	// the reference operator was applied to. Consumed during branch
	// lowering.
	fragments map[*ir.OperatorInstance]instr.Instr
}

func NewLinearizer(ops *serialize.OpTable) *Linearizer {
	return &Linearizer{
		Ops:           ops,
		globalNameMap: map[*ir.CompoundOp]*instr.DefFun{},
		memory:        map[*ir.Field]*instr.Let{},
		fragments:     map[*ir.OperatorInstance]instr.Instr{},
	}
}

// DFG2Instructions implements global program assembly:
// a DEF_VM head, one function per relevant AM other than the main one
// (skipping branch-fn AMs, which are inlined by branch lowering
// instead of being their own functions), the main AM's chain, then
// EXIT. Returns the chain start (the DEF_VM instruction).
func (lz *Linearizer) DFG2Instructions(dfg *ir.DFG) (instr.Instr, error) {
	var head instr.Instr = instr.NewDefVM(lz.Ops)
	tail := head

	mainDomain := dfg.Output.Domain
	for _, am := range dfg.Relevant {
		if am == mainDomain || am.Marked("branch-fn") {
			continue
		}
		chain, err := lz.emitAM(am)
		if err != nil {
			return nil, err
		}
		tail = instr.Append(tail, chain)
	}

	mainChain, err := lz.emitAM(mainDomain)
	if err != nil {
		return nil, err
	}
	tail = instr.Append(tail, mainChain)
	tail = instr.Append(tail, instr.NewInstruction(lz.Ops, "EXIT_OP"))

	if len(lz.fragments) != 0 {
		return nil, fmt.Errorf("linearize: %d reference fragment(s) left unconsumed at end of linearization (a reference op was produced in a domain no branch consumed)", len(lz.fragments))
	}
	return head, nil
}

// emitAM implements per-AM emission: compute minima
// (fields with no relevant consumer), emit DEF_FUN, depth-first-emit
// each minimum, collapse with ALL_OP if there's more than one, then
// RET. Registers the DEF_FUN in globalNameMap under the AM's owning
// CompoundOp, if any (the main AM has none).
func (lz *Linearizer) emitAM(am *ir.AmorphousMedium) (instr.Instr, error) {
	def := instr.NewDefFun(lz.Ops)
	if am.BodyOf != nil && !am.Marked("branch-fn") {
		lz.globalNameMap[am.BodyOf] = def
	}

	minima := relevantMinima(am)

	var tail instr.Instr = def
	for _, f := range minima {
		chain, err := lz.tree2instructions(f)
		if err != nil {
			return nil, err
		}
		tail = instr.Append(tail, chain)
	}

	if len(minima) > 1 {
		all := instr.NewRawInstruction(lz.Ops.MustOp("ALL_OP"), []byte{byte(len(minima))})
		all.Base().StackDelta = -(len(minima) - 1)
		tail = instr.Append(tail, all)
	}

	ret := instr.NewInstruction(lz.Ops, "RET_OP")
	tail = instr.Append(tail, ret)
	def.Ret = ret
	return def, nil
}

// tree2instructions implements per-field tree emission.
func (lz *Linearizer) tree2instructions(f *ir.Field) (instr.Instr, error) {
	if l, ok := lz.memory[f]; ok {
		ref := instr.NewReference(l, false)
		l.AddUsage(ref)
		var r instr.Instr = ref
		return r, nil
	}

	oi := f.Producer

	// The "reference" core-op (step 3) is special-cased
	// before the generic input recursion: its sole input's chain is
	// built in isolation (not appended to this field's own tail) and
	// parked in fragments, keyed by that input's producer, for branch
	// lowering to splice back in later. What tree2instructions returns
	// here is just a placeholder.
	if prim, ok := oi.Op.(*ir.Primitive); ok && prim.IsCore("reference") {
		inputField := oi.NthInput(0)
		if inputField == nil {
			return nil, fmt.Errorf("linearize: reference op has no input")
		}
		chain, err := lz.tree2instructions(inputField)
		if err != nil {
			return nil, err
		}
		lz.fragments[inputField.Producer] = chain
		return instr.NewNoInstruction(), nil
	}

	var tail instr.Instr
	for _, in := range oi.Inputs {
		chain, err := lz.tree2instructions(in)
		if err != nil {
			return nil, err
		}
		tail = instr.Append(tail, chain)
	}

	opChain, err := lz.emitOperator(oi, tail)
	if err != nil {
		return nil, err
	}
	tail = opChain

	if needsLet(f) {
		let := instr.NewLet(lz.Ops)
		if f.Persistent {
			let.Base().Mark(instr.AttrPersistentState, true)
		}
		if f.ExportWidth > 0 {
			let.Base().Mark(instr.AttrExportWidth, f.ExportWidth)
		}
		tail = instr.Append(tail, let)
		lz.memory[f] = let
		ref := instr.NewReference(let, false)
		let.AddUsage(ref)
		tail = instr.Append(tail, ref)
	}
	return tail, nil
}

// emitOperator dispatches on the operator kind per step 3.
// tail is the chain built so far for this field (the already-emitted
// inputs); emitOperator appends to it and returns the new tail.
func (lz *Linearizer) emitOperator(oi *ir.OperatorInstance, tail instr.Instr) (instr.Instr, error) {
	switch op := oi.Op.(type) {
	case *ir.Primitive:
		// "reference" is handled earlier, in tree2instructions, before
		// its inputs are folded into tail — it never reaches here.
		if op.IsCore("branch") {
			return lz.emitBranch(oi, tail)
		}
		return lz.appendPrimitive(op, oi, tail)
	case *ir.Literal:
		return lz.appendLiteral(op, oi, tail)
	case *ir.Parameter:
		ref, _, err := lz.encodeParamRef(op.Index)
		if err != nil {
			return nil, err
		}
		return instr.Append(tail, ref), nil
	case *ir.CompoundOp:
		def, ok := lz.globalNameMap[op]
		if !ok {
			return nil, fmt.Errorf("linearize: call to %q before its DEF_FUN was emitted", op.Name)
		}
		ref := instr.NewReference(def, true)
		arity := len(oi.Inputs)
		call, err := instr.NewFunctionCall(lz.Ops, def, arity)
		if err != nil {
			return nil, err
		}
		tail = instr.Append(tail, ref)
		tail = instr.Append(tail, call)
		return tail, nil
	default:
		return nil, fmt.Errorf("linearize: unhandled operator kind %T", oi.Op)
	}
}

// encodeParamRef emits REF_k_OP for parameter index k, through the
// same smallest-fits RefFamily machinery environment references use,
// rather than unchecked REF_0_OP+index arithmetic (which would
// silently corrupt the opcode for index >= the k-immediate range).
func (lz *Linearizer) encodeParamRef(index int) (instr.Instr, byte, error) {
	op, params, err := lz.Ops.Encode(instr.RefFamily, index)
	if err != nil {
		return nil, 0, err
	}
	raw := instr.NewRawInstruction(op, params)
	raw.Base().StackDelta = 1
	return raw, op, nil
}

// relevantMinima returns am's fields that have no consumer at all —
// the per-AM analogue of "fields with no relevant
// consumer": a field nothing else in the graph reads is, by
// definition, one of this AM's roots and must be emitted for its
// side effects (or its value, for the AM's sole minimum).
func relevantMinima(am *ir.AmorphousMedium) []*ir.Field {
	var out []*ir.Field
	for _, f := range am.Fields {
		if len(f.Consumers) == 0 {
			out = append(out, f)
		}
	}
	return out
}
