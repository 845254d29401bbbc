// Package emitter is the top-level orchestration facade: one Emitter
// instance per construction, opcode tables loaded once and treated
// read-only afterward, one EmitFrom call per run. Modeled on
// compregister.Compiler's small constructor-option-bag API: build one
// object up front, then drive many runs through it.
package emitter

import (
	"fmt"
	"log"

	"protokernel/emitter/instr"
	"protokernel/emitter/ir"
	"protokernel/emitter/linearize"
	"protokernel/emitter/propagate"
	"protokernel/emitter/rewrite"
	"protokernel/emitter/serialize"
)

// Emitter is the single entry point for lowering a DFG to a ProtoKernel
// bytecode buffer. Not safe for concurrent EmitFrom calls: one emit run
// owns the instruction chain and the emitter's internal maps start to
// finish.
type Emitter struct {
	Ops    *serialize.OpTable
	Config Config

	// OpDebug threads the process-wide debug flag into the printer as a
	// field on the emitter rather than a package-level bool.
	OpDebug bool
}

// New builds an Emitter from the built-in core opcode table plus any
// extension-op sources, and a configuration option bag. Extension
// sources failing to parse are an input error and are skipped with a
// warning, not fatal to construction.
func New(opts map[string]string, extensionOpsSources ...string) *Emitter {
	ops := serialize.DefaultCoreOps()
	for _, src := range extensionOpsSources {
		if err := ops.LoadExtensionOps(src); err != nil {
			ops.Warnings = append(ops.Warnings, err.Error())
		}
	}
	cfg := NewConfig(opts)
	for _, w := range ops.Warnings {
		if cfg.Verbosity > 0 {
			log.Printf("emitter: input warning: %s", w)
		}
	}
	return &Emitter{Ops: ops, Config: cfg, OpDebug: cfg.OpDebug}
}

// EmitFrom runs the full pipeline: emittability check,
// pre-linearization IR rewrites, linearization, the propagator
// fixed-point loop, a resolution check, and serialization. Returns the
// finished byte buffer, or an *InternalError describing which stage
// failed and why.
func (e *Emitter) EmitFrom(dfg *ir.DFG) ([]byte, error) {
	if e.Config.Verbosity >= 1 {
		log.Printf("emitter: starting emit run over %d relevant amorphous medi(um/a)", len(dfg.Relevant))
	}

	if err := e.checkEmittability(dfg); err != nil {
		return nil, err
	}

	if err := rewrite.Apply(dfg); err != nil {
		return nil, newStructuralError("pre-linearization rewrite failed", err.Error())
	}

	lz := linearize.NewLinearizer(e.Ops)
	start, err := lz.DFG2Instructions(dfg)
	if err != nil {
		return nil, newStructuralError("linearization failed", err.Error())
	}

	ctx := &propagate.Context{Ops: e.Ops, Start: start, LoopAbort: 4}
	converged, err := propagate.RunAll(ctx, propagate.DefaultPropagators(), e.Config.MaxLoops)
	if err != nil {
		return nil, e.wrapPropagateError(err, start)
	}
	if !converged {
		// Soft warning: outer loop exhausted its budget.
		// The resolution check immediately below turns this into a hard
		// error only if something is genuinely still unresolved.
		log.Printf("emitter: warning: propagator loop did not converge within %d iterations", e.Config.MaxLoops)
	}

	if err := e.checkResolution(start); err != nil {
		return nil, err
	}

	buf := serialize.Serialize(start)

	if e.Config.Verbosity >= 2 || e.Config.EmitCompact || e.Config.EmitSemicompact {
		log.Print(serialize.PrintChain(start, e.Ops, serialize.PrintOptions{
			Compact:     e.Config.EmitCompact,
			Semicompact: e.Config.EmitSemicompact,
			OpDebug:     e.OpDebug,
		}))
	}
	if e.Config.HexDump {
		log.Print(serialize.HexDump(buf))
	}

	return buf, nil
}

// checkEmittability checks that every field across every relevant AM
// holds a concrete, local type.
func (e *Emitter) checkEmittability(dfg *ir.DFG) error {
	for _, am := range dfg.Relevant {
		for _, f := range am.Fields {
			if !ir.EmittableField(f) {
				return newEmittabilityError(
					"field type is not local/concrete",
					fmt.Sprintf("field produced by %T", f.Producer.Op),
				)
			}
		}
	}
	return nil
}

func (e *Emitter) wrapPropagateError(err error, start instr.Instr) error {
	dump := serialize.PrintChain(start, e.Ops, serialize.PrintOptions{OpDebug: true})
	return newStructuralError(err.Error(), dump)
}

// checkResolution is the final resolution check: every instruction must
// report itself resolved, and the running stack height must never go
// negative and must return to exactly zero at EXIT. Runs
// unconditionally; Paranoid additionally re-verifies the branch-offset
// law against the resolved locations, which costs an extra chain pass
// and is only worth paying on request.
func (e *Emitter) checkResolution(start instr.Instr) error {
	var unresolved instr.Instr
	propagate.Walk(start, func(i instr.Instr) {
		if unresolved == nil && !i.Resolved() {
			unresolved = i
		}
	})
	if unresolved != nil {
		return newStructuralError(
			"instruction left unresolved after propagator loop",
			unresolved.Describe(e.Ops),
		)
	}

	// The opcode table's deltas are chosen so a flat fold over the
	// whole chain — every function body in program order, both arms of
	// every branch — nets to exactly zero at EXIT and never dips
	// negative along the way (RET's -1 closes out each function's
	// return value; JMP's -1 cancels the taken arm before the
	// fall-through arm is counted). Anything else means the linearizer
	// or a propagator left the chain malformed.
	height, negativeAt := foldStackHeights(start)
	if negativeAt != nil {
		return newStructuralError(
			"operand stack height goes negative",
			negativeAt.Describe(e.Ops),
		)
	}
	if height != 0 {
		return newStructuralError(
			fmt.Sprintf("residual stack height %d at end of program, want 0", height),
			serialize.PrintChain(start, e.Ops, serialize.PrintOptions{OpDebug: true}),
		)
	}

	if e.Config.Paranoid {
		if err := e.checkBranchOffsets(start); err != nil {
			return err
		}
	}
	return nil
}

// foldStackHeights folds net stack delta over the whole chain in flat
// program order, descending into Block contents in place (a Block node
// itself contributes nothing; its children are the real instructions).
// Returns the final height and the first instruction, if any, at which
// the running height went negative.
func foldStackHeights(start instr.Instr) (height int, negativeAt instr.Instr) {
	var fold func(i instr.Instr)
	fold = func(i instr.Instr) {
		for p := i; p != nil; p = p.Base().Next {
			if blk, ok := p.(*instr.Block); ok {
				fold(blk.Contents)
				continue
			}
			height += p.NetStackDelta()
			if height < 0 && negativeAt == nil {
				negativeAt = p
			}
		}
	}
	fold(start)
	return height, negativeAt
}

// checkBranchOffsets re-derives every Branch's stored offset from its
// resolved locations and fails if they've drifted (P7): a paranoid
// double-check of the propagator loop's own work, not something a
// normal run needs to pay for.
func (e *Emitter) checkBranchOffsets(start instr.Instr) error {
	var bad instr.Instr
	propagate.Walk(start, func(i instr.Instr) {
		br, ok := i.(*instr.Branch)
		if !ok || bad != nil {
			return
		}
		want := instr.NextLocation(br.AfterThis) - instr.NextLocation(br)
		if br.Offset != want {
			bad = br
		}
	})
	if bad != nil {
		return newStructuralError("branch offset does not match resolved locations", bad.Describe(e.Ops))
	}
	return nil
}
