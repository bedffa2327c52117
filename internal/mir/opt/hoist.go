package opt

import "sysyc/internal/mir"
import "sysyc/internal/mir/cfg"

// Hoist moves every side-effect-free instruction whose operands are all
// available in a strictly colder dominator block up into the highest
// (coldest) such block (spec §4.C5.e) — for a loop body that is the
// preheader, whose weight is a tenth of the body's. "Available" means
// every operand is either a constant or a temp defined in a block that
// strictly dominates the hoist target.
func Hoist(fn *mir.Function, c *cfg.CFG) (bool, error) {
	defBlock := map[uint32]*mir.BasicBlock{}
	for _, b := range fn.Blocks {
		for _, instr := range allInstrs(b) {
			if instr.Target != nil {
				defBlock[instr.Target.ID] = b
			}
		}
	}

	changed := false
	for _, b := range fn.Blocks {
		var kept []*mir.Instruction
		for _, instr := range b.Instrs {
			if !sideEffectFree(instr) {
				kept = append(kept, instr)
				continue
			}
			target := b
			for cand := c.Idom(target); cand != nil && cand != target && operandsAvailableIn(instr, cand, defBlock, c); cand = c.Idom(cand) {
				if cand.Weight < target.Weight {
					target = cand
				}
				if cand == c.Entry() {
					break
				}
			}
			if target != b && target.Weight < b.Weight {
				insertBeforeTerminator(target, instr)
				defBlock[instr.Target.ID] = target
				changed = true
				continue
			}
			kept = append(kept, instr)
		}
		b.Instrs = kept
	}
	if changed {
		c.Analysis()
	}
	return changed, nil
}

func sideEffectFree(instr *mir.Instruction) bool {
	switch instr.Variant {
	case mir.VArith, mir.VComp, mir.VConvert, mir.VGEP:
		return true
	case mir.VLoad:
		return false // conservative: a load may alias an intervening store; never hoisted
	default:
		return false
	}
}

func operandsAvailableIn(instr *mir.Instruction, target *mir.BasicBlock, defBlock map[uint32]*mir.BasicBlock, c *cfg.CFG) bool {
	for _, r := range instr.GetRead() {
		db, ok := defBlock[r.ID]
		if !ok {
			continue // parameter or otherwise always-available temp
		}
		if !c.Dominates(db, target) || db == target {
			return false
		}
	}
	return true
}
