package opt

import (
	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// OSR implements classical operator strength reduction (Cocke-Markstein-
// Kennedy): for every `x = iv * rc` where iv is a recognized induction
// variable and rc is a regional constant with respect to the loop
// header, introduce a new induction variable incremented by `step*rc`
// per iteration and replace the multiplication with a read of it (spec
// §4.C5.k). The new IV's definition dominates the multiplication since
// it lives in the same loop, seeded at the pre-header.
func OSR(fn *mir.Function, c *cfg.CFG) (bool, error) {
	changed := false
	for _, lp := range c.Loops.ByHeader {
		ivs := RecognizeInductionVars(fn, c, lp)
		ivByID := map[uint32]*InductionVar{}
		for i := range ivs {
			// A chained IV (len(Steps) > 1, e.g. a running sum stepped by
			// a sibling counter) has no single per-iteration increment to
			// multiply by rc; strength reduction only applies to the
			// ordinary single-coefficient case.
			if ivs[i].Kind == IVInduction && len(ivs[i].Steps) == 1 {
				ivByID[ivs[i].Header.ID] = &ivs[i]
			}
		}
		if len(ivByID) == 0 {
			continue
		}
		pre := lp.Preheader(c)
		if pre == nil {
			continue
		}
		loopBlocks := map[uint32]bool{}
		for _, b := range lp.Blocks() {
			loopBlocks[b.ID] = true
		}
		defBlockOf := map[uint32]*mir.BasicBlock{}
		for _, b := range lp.Blocks() {
			for _, instr := range allInstrs(b) {
				if instr.Target != nil {
					defBlockOf[instr.Target.ID] = b
				}
			}
		}

		for _, b := range lp.BlocksWithoutSubloops() {
			var kept []*mir.Instruction
			for _, instr := range b.Instrs {
				iv, rc, ok := matchMulByRegionalConst(instr, ivByID, loopBlocks, defBlockOf)
				if !ok || usedOutsideLoop(fn, instr.Target.ID, loopBlocks) {
					// An out-of-loop use would observe the reduced IV one
					// increment past the multiplication's final value.
					kept = append(kept, instr)
					continue
				}
				newIV := strengthReduce(fn, lp, pre, iv, rc)
				rewriteUses(fn, instr.Target.ID, mir.TempVal(newIV))
				changed = true
				continue // drop the multiplication
			}
			b.Instrs = kept
		}
	}
	if changed {
		c.Analysis()
	}
	return changed, nil
}

// matchMulByRegionalConst recognizes `x = iv * rc` or `x = rc * iv`
// where rc is defined outside the loop (or is a literal constant).
func matchMulByRegionalConst(instr *mir.Instruction, ivs map[uint32]*InductionVar, loopBlocks map[uint32]bool, defBlockOf map[uint32]*mir.BasicBlock) (*InductionVar, mir.Value, bool) {
	if instr.Variant != mir.VArith || instr.ArithOp != mir.Mul {
		return nil, mir.Value{}, false
	}
	tryOrder := func(a, b mir.Value) (*InductionVar, mir.Value, bool) {
		if a.Kind != mir.ValueTempKind {
			return nil, mir.Value{}, false
		}
		iv, ok := ivs[a.Tmp.ID]
		if !ok {
			return nil, mir.Value{}, false
		}
		if !isRegionalConst(b, loopBlocks, defBlockOf) {
			return nil, mir.Value{}, false
		}
		return iv, b, true
	}
	if iv, rc, ok := tryOrder(instr.LHS, instr.RHS); ok {
		return iv, rc, true
	}
	return tryOrder(instr.RHS, instr.LHS)
}

// usedOutsideLoop reports whether any instruction outside the loop's
// block set reads id.
func usedOutsideLoop(fn *mir.Function, id uint32, loopBlocks map[uint32]bool) bool {
	for _, b := range fn.Blocks {
		if loopBlocks[b.ID] {
			continue
		}
		for _, instr := range allInstrs(b) {
			for _, r := range instr.GetRead() {
				if r.ID == id {
					return true
				}
			}
		}
	}
	return false
}

// isRegionalConst reports whether v is a literal or a temp defined
// outside the loop (its definition dominates the loop header).
func isRegionalConst(v mir.Value, loopBlocks map[uint32]bool, defBlockOf map[uint32]*mir.BasicBlock) bool {
	if v.Kind != mir.ValueTempKind {
		return true
	}
	db, inLoop := defBlockOf[v.Tmp.ID]
	return !inLoop || !loopBlocks[db.ID]
}

// strengthReduce materializes a new IV with the same control structure
// as iv (a header phi incremented by step*rc per back-edge), seeded at
// pre with base*rc, and returns its header-phi target.
func strengthReduce(fn *mir.Function, lp *cfg.Loop, pre *mir.BasicBlock, iv *InductionVar, rc mir.Value) mir.Temp {
	typ := iv.Header.Type
	seedT := fn.TempMgr.New(typ)
	insertBeforeTerminator(pre, mir.NewArith(seedT, mir.Mul, typ, iv.Base, rc))

	stepT := fn.TempMgr.New(typ)
	insertBeforeTerminator(pre, mir.NewArith(stepT, mir.Mul, typ, iv.Steps[0], rc))

	newPhiT := fn.TempMgr.New(typ)
	newPhi := mir.NewPhi(newPhiT, typ)
	newPhi.AddSource(mir.TempVal(seedT), pre.Label)
	lp.Header.AddPhi(newPhi)

	// Increment on every back-edge predecessor of the header, mirroring
	// the original IV's own phi source set.
	for _, src := range iv.PhiInstr.PhiSources {
		if src.Pred == pre.Label {
			continue
		}
		latch := fn.BlockByLabel(src.Pred)
		if latch == nil {
			continue
		}
		incT := fn.TempMgr.New(typ)
		inc := mir.NewArith(incT, mir.Add, typ, mir.TempVal(newPhiT), mir.TempVal(stepT))
		insertBeforeTerminator(latch, inc)
		newPhi.AddSource(mir.TempVal(incT), src.Pred)
	}
	return newPhiT
}

func insertBeforeTerminator(b *mir.BasicBlock, instr *mir.Instruction) {
	if len(b.Instrs) == 0 {
		b.Instrs = append(b.Instrs, instr)
		return
	}
	last := b.Instrs[len(b.Instrs)-1]
	switch last.Variant {
	case mir.VJump, mir.VJumpCond, mir.VRet:
		b.Instrs = append(b.Instrs[:len(b.Instrs)-1], instr, last)
	default:
		b.Instrs = append(b.Instrs, instr)
	}
}

