// Package propagate implements the instruction propagator framework: a
// fixed-point worklist driver plus the six propagators that resolve
// every mutually-dependent unknown left open by the linearizer (byte
// offsets, global indices, environment depths, branch jump distances,
// per-function sizes, the VM preamble's counts).
//
// The iterative "keep passing over the chain until nothing new
// changes" shape follows the same loop a hoisting compiler pass uses,
// generalized here into a shared driver with change notification so
// each propagator only needs to say what changed, not when to stop.
package propagate

import "protokernel/emitter/instr"

// Propagator is one fixed-point pass: a worklist-driven visitor
// that reads the current chain, mutates instructions it can now
// resolve further, and lets the driver re-queue anything that might be
// affected. PreProp/PostProp bracket a single run of the worklist loop
// (one "pass" in vocabulary); PostProp's bool return reports
// whether it mutated anything chain-wide that the outer fixed-point
// loop needs to see as a change (e.g. a propagator whose real work
// happens entirely between passes, like InsertLetPops).
type Propagator interface {
	Name() string
	PreProp(ctx *Context)
	Act(i instr.Instr, ctx *Context) (changed bool, err error)
	PostProp(ctx *Context) (changed bool, err error)
}

// Context carries what every propagator needs: the opcode resolver for
// re-encoding instructions as their operands change, the chain head
// (always the program's single DEF_VM), and LoopAbort, the multiplier
// used to size the runaway-cycle step budget.
type Context struct {
	Ops       instr.OpResolver
	Start     instr.Instr
	LoopAbort int // multiplier used to size the runaway-cycle step budget; default 4 if <= 0
}

// DefVM returns the program's preamble instruction, which linearization
// guarantees is always first.
func (c *Context) DefVM() *instr.DefVM {
	dv, ok := c.Start.(*instr.DefVM)
	if !ok {
		panic("propagate: chain does not start with DEF_VM")
	}
	return dv
}

// Walk visits every instruction in program order, descending into
// Block.Contents in place so a nested instruction is visited exactly
// where it sits in the eventual byte stream.
func Walk(start instr.Instr, fn func(instr.Instr)) {
	for p := start; p != nil; p = p.Base().Next {
		fn(p)
		if blk, ok := p.(*instr.Block); ok {
			Walk(blk.Contents, fn)
		}
	}
}

// prevFlat returns the instruction immediately preceding i in true
// program order: Blocks are transparent (their last content precedes
// whatever follows the Block; their first content's predecessor is
// whatever precedes the Block itself), matching how Block.Output
// concatenates bytes.
func prevFlat(i instr.Instr) instr.Instr {
	b := i.Base()
	if b.Prev != nil {
		return deepestFlat(b.Prev)
	}
	if b.Container != nil {
		return prevFlat(b.Container)
	}
	return nil
}

func deepestFlat(i instr.Instr) instr.Instr {
	if blk, ok := i.(*instr.Block); ok {
		if blk.Contents != nil {
			return deepestFlat(instr.End(blk.Contents))
		}
		return prevFlat(blk)
	}
	return i
}

// asGlobal extracts the embedded Global from a DefFun or DefTup, the
// only two variants that occupy a slot in the dense global index space
// (the dense global index space).
func asGlobal(i instr.Instr) (*instr.Global, bool) {
	switch v := i.(type) {
	case *instr.DefFun:
		return &v.G, true
	case *instr.DefTup:
		return &v.G, true
	default:
		return nil, false
	}
}

// prevGlobalFlat walks backward in program order to the nearest Global
// (DefFun or DefTup), crossing Block boundaries: global indices are
// dense over the *whole* program, including globals a branch arm's
// Block happens to own (e.g. a tuple literal built inside an if/else
// arm).
func prevGlobalFlat(i instr.Instr) *instr.Global {
	for p := prevFlat(i); p != nil; p = prevFlat(p) {
		if g, ok := asGlobal(p); ok {
			return g
		}
	}
	return nil
}

// DefaultPropagators returns the six propagators, in the fixed order the
// outer loop iterates them.
func DefaultPropagators() []Propagator {
	return []Propagator{
		&DeleteNulls{},
		&InsertLetPops{},
		&ResolveISizes{},
		&ResolveLocations{},
		&StackEnvSizer{},
		&ResolveState{},
	}
}

// RunAll iterates the propagators as a group in an outer loop until one
// full round causes no change or maxLoops is reached.
// Reaching maxLoops without convergence is a soft warning (returns
// converged=false, err=nil): the caller's resolution check is what
// turns a still-unresolved chain into a hard error.
func RunAll(ctx *Context, props []Propagator, maxLoops int) (converged bool, err error) {
	if maxLoops <= 0 {
		maxLoops = 10
	}
	for loop := 0; loop < maxLoops; loop++ {
		anyChange := false
		for _, p := range props {
			changed, err := runOne(ctx, p)
			if err != nil {
				return false, &PropagatorError{Pass: p.Name(), Err: err}
			}
			if changed {
				anyChange = true
			}
		}
		if !anyChange {
			return true, nil
		}
	}
	return false, nil
}

// runOne drives a single propagator to completion over one worklist:
// every instruction in the chain seeds the queue; processing one pops
// the front, calls Act, and on change re-queues prev/next/container/
// dependents via noteChange. The step budget guards against a propagator
// that never settles.
func runOne(ctx *Context, p Propagator) (bool, error) {
	p.PreProp(ctx)

	wl := newWorklist()
	var all []instr.Instr
	Walk(ctx.Start, func(i instr.Instr) { all = append(all, i) })
	for _, i := range all {
		wl.push(i)
	}

	abort := ctx.LoopAbort
	if abort <= 0 {
		abort = 4
	}
	budget := abort * len(all)
	if budget < 64 {
		budget = 64
	}

	changed := false
	steps := 0
	for !wl.empty() {
		if steps >= budget {
			return false, &CycleError{Pass: p.Name(), Budget: budget}
		}
		steps++
		i := wl.pop()
		did, err := p.Act(i, ctx)
		if err != nil {
			return false, err
		}
		if did {
			changed = true
			noteChange(i, wl)
		}
	}

	postChanged, err := p.PostProp(ctx)
	if err != nil {
		return false, err
	}
	return changed || postChanged, nil
}

// noteChange re-queues every neighbor of i that might now be able to
// make progress: its chain neighbors, its owning Block (whose folded
// size/deltas depend on every child), and every registered dependent
// ("wake the dependents" rule — no missed update is
// allowed).
func noteChange(i instr.Instr, wl *worklist) {
	b := i.Base()
	if b.Prev != nil {
		wl.push(b.Prev)
	}
	if b.Next != nil {
		wl.push(b.Next)
	}
	if b.Container != nil {
		wl.push(b.Container)
	}
	for d := range b.Dependents {
		wl.push(d)
	}
}

// worklist is a FIFO queue with set semantics (pushing an
// already-queued instruction is a no-op), giving a total,
// creation-ordered processing sequence so the same DFG always produces
// byte-identical output.
type worklist struct {
	q      []instr.Instr
	queued map[instr.Instr]bool
}

func newWorklist() *worklist {
	return &worklist{queued: map[instr.Instr]bool{}}
}

func (w *worklist) push(i instr.Instr) {
	if w.queued[i] {
		return
	}
	w.queued[i] = true
	w.q = append(w.q, i)
}

func (w *worklist) pop() instr.Instr {
	i := w.q[0]
	w.q = w.q[1:]
	delete(w.queued, i)
	return i
}

func (w *worklist) empty() bool { return len(w.q) == 0 }
