package opt

import (
	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// LoopSimplify canonicalizes every natural loop to have a dedicated
// pre-header, dedicated exit blocks, and a unique back-edge latch, then
// drops degenerate `X = phi(X, Y)` header phis (spec §4.C5.h).
func LoopSimplify(fn *mir.Function, c *cfg.CFG) (bool, error) {
	changed := false
	for _, lp := range c.Loops.ByHeader {
		if insertPreheader(fn, c, lp) {
			changed = true
		}
	}
	if changed {
		c.Analysis()
	}
	for _, lp := range c.Loops.ByHeader {
		if dedicateExits(fn, c, lp) {
			changed = true
		}
	}
	if changed {
		c.Analysis()
	}
	for _, lp := range c.Loops.ByHeader {
		if uniqueLatch(fn, c, lp) {
			changed = true
		}
	}
	if changed {
		c.Analysis()
	}
	if simplifyHeaderPhis(fn, c) {
		changed = true
	}
	return changed, nil
}

// insertPreheader routes every external predecessor of a multi-predecessor
// loop header through one new block, folding phi sources that agree on
// all external edges and introducing a fresh pre-header phi otherwise.
func insertPreheader(fn *mir.Function, c *cfg.CFG, lp *cfg.Loop) bool {
	header := lp.Header
	var external []*mir.BasicBlock
	for _, p := range header.Prev {
		if !lp.Contains(p) {
			external = append(external, p)
		}
	}
	if len(external) <= 1 {
		return false
	}

	pre := fn.NewBlock()
	pre.Weight = header.Weight * 0.1 // provisional until the next Analysis recomputes it
	pre.Instrs = append(pre.Instrs, mir.NewJump(header.Label))

	for _, ext := range external {
		mir.RemoveEdge(ext, header)
		redirectTerminator(ext, header.Label, pre.Label)
		mir.AddEdge(ext, pre)
	}
	mir.AddEdge(pre, header)

	for _, phi := range header.Phis {
		var folded *mir.Value
		agree := true
		var preSources []mir.PhiSource
		for _, s := range phi.PhiSources {
			isExternal := false
			for _, ext := range external {
				if s.Pred == ext.Label {
					isExternal = true
					break
				}
			}
			if !isExternal {
				continue
			}
			preSources = append(preSources, s)
			if folded == nil {
				v := s.Value
				folded = &v
			} else if !sameValue(*folded, s.Value) {
				agree = false
			}
		}
		// Remove external sources from the header phi; they'll be
		// replaced by one source from the pre-header.
		var kept []mir.PhiSource
		for _, s := range phi.PhiSources {
			keep := true
			for _, ext := range external {
				if s.Pred == ext.Label {
					keep = false
				}
			}
			if keep {
				kept = append(kept, s)
			}
		}
		phi.PhiSources = kept

		if agree && folded != nil {
			phi.AddSource(*folded, pre.Label)
		} else if folded != nil {
			preTarget := fn.TempMgr.New(phi.Type)
			prePhi := mir.NewPhi(preTarget, phi.Type)
			prePhi.PhiSources = preSources
			pre.AddPhi(prePhi)
			phi.AddSource(mir.TempVal(preTarget), pre.Label)
		}
	}
	return true
}

// dedicateExits ensures every loop-exit block that has predecessors
// outside the loop gets a fresh exit block reachable only from inside.
func dedicateExits(fn *mir.Function, c *cfg.CFG, lp *cfg.Loop) bool {
	changed := false
	for _, exit := range lp.ExitBlocks() {
		hasOutside := false
		for _, p := range exit.Prev {
			if !lp.Contains(p) {
				hasOutside = true
			}
		}
		if !hasOutside {
			continue
		}
		dedicated := fn.NewBlock()
		dedicated.Weight = exit.Weight
		dedicated.Instrs = append(dedicated.Instrs, mir.NewJump(exit.Label))
		for _, p := range append([]*mir.BasicBlock(nil), exit.Prev...) {
			if !lp.Contains(p) {
				continue
			}
			mir.RemoveEdge(p, exit)
			redirectTerminator(p, exit.Label, dedicated.Label)
			mir.AddEdge(p, dedicated)
		}
		mir.AddEdge(dedicated, exit)
		for _, phi := range exit.Phis {
			for i := range phi.PhiSources {
				for _, p := range lp.Blocks() {
					if phi.PhiSources[i].Pred == p.Label {
						phi.PhiSources[i].Pred = dedicated.Label
					}
				}
			}
		}
		changed = true
	}
	return changed
}

// uniqueLatch inserts one shared latch block when more than one block
// branches back to the header.
func uniqueLatch(fn *mir.Function, c *cfg.CFG, lp *cfg.Loop) bool {
	latches := lp.Latches(c)
	if len(latches) <= 1 {
		return false
	}
	header := lp.Header
	latch := fn.NewBlock()
	latch.Weight = header.Weight
	latch.Instrs = append(latch.Instrs, mir.NewJump(header.Label))
	for _, l := range latches {
		mir.RemoveEdge(l, header)
		redirectTerminator(l, header.Label, latch.Label)
		mir.AddEdge(l, latch)
	}
	mir.AddEdge(latch, header)
	for _, phi := range header.Phis {
		var folded *mir.Value
		agree := true
		var latchSources []mir.PhiSource
		for _, s := range phi.PhiSources {
			fromLatch := false
			for _, l := range latches {
				if s.Pred == l.Label {
					fromLatch = true
				}
			}
			if fromLatch {
				latchSources = append(latchSources, s)
				if folded == nil {
					v := s.Value
					folded = &v
				} else if !sameValue(*folded, s.Value) {
					agree = false
				}
			}
		}
		var kept []mir.PhiSource
		for _, s := range phi.PhiSources {
			fromLatch := false
			for _, l := range latches {
				if s.Pred == l.Label {
					fromLatch = true
				}
			}
			if !fromLatch {
				kept = append(kept, s)
			}
		}
		phi.PhiSources = kept
		if folded == nil {
			continue
		}
		if agree {
			phi.AddSource(*folded, latch.Label)
		} else {
			lt := fn.TempMgr.New(phi.Type)
			lp2 := mir.NewPhi(lt, phi.Type)
			lp2.PhiSources = latchSources
			latch.AddPhi(lp2)
			phi.AddSource(mir.TempVal(lt), latch.Label)
		}
	}
	return true
}

// simplifyHeaderPhis rewrites every `X = phi(X, Y)` to Y across the
// function, a cleanup enabled once canonicalization settles block shape.
func simplifyHeaderPhis(fn *mir.Function, c *cfg.CFG) bool {
	changed := false
	for _, b := range fn.Blocks {
		var kept []*mir.Instruction
		for _, phi := range b.Phis {
			if repl, ok := trivialPhiValue(phi); ok {
				rewriteUses(fn, phi.Target.ID, repl)
				changed = true
				continue
			}
			kept = append(kept, phi)
		}
		b.Phis = kept
	}
	return changed
}

func trivialPhiValue(phi *mir.Instruction) (mir.Value, bool) {
	var other *mir.Value
	for _, s := range phi.PhiSources {
		if s.Value.Kind == mir.ValueTempKind && s.Value.Tmp.ID == phi.Target.ID {
			continue // self-reference
		}
		if other == nil {
			v := s.Value
			other = &v
		} else if !sameValue(*other, s.Value) {
			return mir.Value{}, false
		}
	}
	if other == nil {
		return mir.Value{}, false
	}
	return *other, true
}

func sameValue(a, b mir.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case mir.ValueInt:
		return a.Int == b.Int
	case mir.ValueFloat:
		return a.Flt == b.Flt
	default:
		return a.Tmp.ID == b.Tmp.ID && a.Tmp.IsGlobal == b.Tmp.IsGlobal && a.Tmp.Name == b.Tmp.Name
	}
}

// redirectTerminator rewrites any reference to `from` in blk's
// terminator to `to`.
func redirectTerminator(blk *mir.BasicBlock, from, to mir.Label) {
	term := blk.Terminator()
	if term == nil {
		return
	}
	if term.JumpTarget == from {
		term.JumpTarget = to
	}
	if term.TrueTarget == from {
		term.TrueTarget = to
	}
	if term.FalseTarget == from {
		term.FalseTarget = to
	}
}
