package instr

// Chain primitives. All are O(chain-tail) except Start
// and End, which walk the full chain in the direction requested.

// Start walks to the first instruction of the chain containing i.
func Start(i Instr) Instr {
	if i == nil {
		return nil
	}
	for i.Base().Prev != nil {
		i = i.Base().Prev
	}
	return i
}

// End walks to the last instruction of the chain containing i.
func End(i Instr) Instr {
	if i == nil {
		return nil
	}
	for i.Base().Next != nil {
		i = i.Base().Next
	}
	return i
}

// Append splices the chain containing newInstr, from its Start, after
// the tail of chain (chain may be nil, in which case that segment starts
// a fresh chain) and returns the new tail, so newInstr may be any node
// of the segment, including its tail. If the existing tail has a
// Container, the whole inserted segment inherits that Container and is
// added to its dependents, mirroring chain_i's propagation of container
// membership.
func Append(tail Instr, newInstr Instr) Instr {
	if newInstr == nil {
		return tail
	}
	newInstr = Start(newInstr)
	if tail != nil {
		tail.Base().Next = newInstr
		if tail.Base().Container != nil {
			blk := tail.Base().Container
			for p := newInstr; p != nil; p = p.Base().Next {
				p.Base().Container = blk
				blk.B.AddDependent(p)
			}
		}
	}
	newInstr.Base().Prev = tail
	return End(newInstr)
}

// InsertAfter splices seg between anchor and anchor's current next
// instruction.
func InsertAfter(anchor Instr, seg Instr) {
	segEnd := End(seg)
	if anchor.Base().Next != nil {
		anchor.Base().Next.Base().Prev = segEnd
	}
	segEnd.Base().Next = anchor.Base().Next
	seg.Base().Prev = anchor
	anchor.Base().Next = seg
	if anchor.Base().Container != nil {
		blk := anchor.Base().Container
		for p := seg; p != nil; p = p.Base().Next {
			p.Base().Container = blk
			blk.B.AddDependent(p)
		}
	}
}

// SplitBefore detaches inst's prefix (everything before it) and returns
// that prefix's tail; inst.Prev is set to nil.
func SplitBefore(inst Instr) Instr {
	if inst == nil {
		return nil
	}
	prev := inst.Base().Prev
	inst.Base().Prev = nil
	if prev != nil {
		prev.Base().Next = nil
	}
	return prev
}

// DeleteRange unlinks [a..b] from the chain. Nodes remain live: other
// instructions may still hold pointers to them via Dependents or a
// Reference.Store, so this never frees anything, only relinks around it.
func DeleteRange(a, b Instr) {
	if b.Base().Next != nil {
		b.Base().Next.Base().Prev = a.Base().Prev
	}
	if a.Base().Prev != nil {
		a.Base().Prev.Base().Next = b.Base().Next
	}
}
