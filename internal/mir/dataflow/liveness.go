// Package dataflow computes per-function liveness (spec §4.C4): backward
// data-flow to a fixpoint over def/use sets, with phi contributions split
// per predecessor edge.
package dataflow

import "sysyc/internal/mir"

// Compute populates every block's LiveIn/LiveOut/Defs/Uses/PhiDefs in
// place. Callers typically follow a cfg.Analysis() call so block order
// favors fast convergence, but correctness does not depend on order.
func Compute(fn *mir.Function) {
	for _, b := range fn.Blocks {
		b.Defs, b.Uses, b.PhiDefs = localDefUse(b)
		b.LiveIn = map[uint32]mir.Temp{}
		b.LiveOut = map[uint32]mir.Temp{}
	}

	changed := true
	for changed {
		changed = false
		for i := len(fn.Blocks) - 1; i >= 0; i-- {
			b := fn.Blocks[i]

			newOut := map[uint32]mir.Temp{}
			for _, s := range b.Succ {
				for id, t := range s.LiveIn {
					newOut[id] = t
				}
				// Phi contributions: a source value is live-out of b
				// along exactly the edge identified by its phi's
				// predecessor label (spec §4.C4).
				for _, phi := range s.Phis {
					for _, src := range phi.PhiSources {
						if src.Pred != b.Label || src.Value.Kind != mir.ValueTempKind {
							continue
						}
						newOut[src.Value.Tmp.ID] = src.Value.Tmp
					}
				}
			}

			newIn := map[uint32]mir.Temp{}
			for id, t := range b.Uses {
				newIn[id] = t
			}
			for id, t := range newOut {
				if _, isDef := b.Defs[id]; !isDef {
					newIn[id] = t
				}
			}
			for id, t := range b.PhiDefs {
				newIn[id] = t
				_ = t
			}
			// phi-defined temps are not "used" coming into the block
			// through normal dataflow; remove them again since a
			// phi's definition happens at the top of the block, not
			// before it.
			for id := range b.PhiDefs {
				if _, usedBeforeDef := b.Uses[id]; !usedBeforeDef {
					delete(newIn, id)
				}
			}

			if !mapEq(b.LiveIn, newIn) || !mapEq(b.LiveOut, newOut) {
				b.LiveIn, b.LiveOut = newIn, newOut
				changed = true
			}
		}
	}
}

// localDefUse computes def[b] (temps defined in b, including phi
// targets tracked separately in PhiDefs) and use[b] (temps read in b
// before any local redefinition).
func localDefUse(b *mir.BasicBlock) (defs, uses, phiDefs map[uint32]mir.Temp) {
	defs = map[uint32]mir.Temp{}
	uses = map[uint32]mir.Temp{}
	phiDefs = map[uint32]mir.Temp{}

	for _, phi := range b.Phis {
		if phi.Target != nil {
			phiDefs[phi.Target.ID] = *phi.Target
		}
	}
	for _, instr := range b.Instrs {
		for _, r := range instr.GetRead() {
			if _, isDef := defs[r.ID]; !isDef {
				uses[r.ID] = r
			}
		}
		if w := instr.GetWrite(); w != nil {
			defs[w.ID] = *w
		}
	}
	return
}

func mapEq(a, b map[uint32]mir.Temp) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
