package opt

import (
	"unsafe"

	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// DCE performs one mark-and-sweep iteration: effective instructions
// (stores, calls to non-pure functions, returns, and the block
// terminator) are always live; everything else is live only
// transitively through a use of its target. Unreachable blocks (blocks
// not in cfg.RPO, i.e. not reachable from the entry) are dropped
// outright (spec §4.C5.d).
func DCE(fn *mir.Function, c *cfg.CFG, pureFuncs map[string]bool) (bool, error) {
	reachable := map[uint32]bool{}
	for _, b := range c.RPO() {
		reachable[b.ID] = true
	}

	changed := false
	if len(reachable) != len(fn.Blocks) {
		var kept []*mir.BasicBlock
		for _, b := range fn.Blocks {
			if reachable[b.ID] {
				kept = append(kept, b)
				continue
			}
			for _, s := range b.Succ {
				mir.RemoveEdge(b, s)
			}
			changed = true
		}
		fn.Blocks = kept
		if changed {
			c.Analysis()
		}
	}

	live := map[uint32]bool{}
	var worklist []*mir.Instruction
	instrOfTarget := map[uint32]*mir.Instruction{}

	markEffective := func(instr *mir.Instruction) bool {
		switch instr.Variant {
		case mir.VStore, mir.VRet, mir.VJump, mir.VJumpCond:
			return true
		case mir.VCall:
			return !pureFuncs[string(instr.CallFunc)]
		}
		return false
	}

	for _, b := range fn.Blocks {
		for _, instr := range append(append([]*mir.Instruction(nil), b.Phis...), b.Instrs...) {
			if instr.Target != nil {
				instrOfTarget[instr.Target.ID] = instr
			}
			if markEffective(instr) && !live[instrKey(instr)] {
				live[instrKey(instr)] = true
				worklist = append(worklist, instr)
			}
		}
	}

	for len(worklist) > 0 {
		instr := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, r := range instr.GetRead() {
			if def, ok := instrOfTarget[r.ID]; ok {
				if !live[instrKey(def)] {
					live[instrKey(def)] = true
					worklist = append(worklist, def)
				}
			}
		}
	}

	for _, b := range fn.Blocks {
		var keptPhis []*mir.Instruction
		for _, instr := range b.Phis {
			if live[instrKey(instr)] {
				keptPhis = append(keptPhis, instr)
			} else {
				changed = true
			}
		}
		b.Phis = keptPhis

		var keptInstrs []*mir.Instruction
		for _, instr := range b.Instrs {
			if markEffective(instr) || live[instrKey(instr)] {
				keptInstrs = append(keptInstrs, instr)
			} else {
				changed = true
			}
		}
		b.Instrs = keptInstrs
	}

	return changed, nil
}

// instrKey gives a stable per-instruction identity for the live set:
// the target id when present (temps are SSA-unique), else the pointer
// identity for side-effecting instructions with no target.
func instrKey(instr *mir.Instruction) uint32 {
	if instr.Target != nil {
		return instr.Target.ID
	}
	// Side-effecting, targetless instructions (Store/Jump/JumpCond/Ret)
	// are always marked live directly by markEffective and never looked
	// up by this key from a use-site, so collisions across distinct
	// instructions here are harmless; this only needs to be stable for
	// the lifetime of one DCE call.
	addr := uint64(uintptr(unsafe.Pointer(instr)))
	return ^uint32(addr ^ (addr >> 32))
}
