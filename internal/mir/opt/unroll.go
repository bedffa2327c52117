package opt

import (
	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// UnrollThreshold caps the combined instruction count (loop body size
// times trip count) that Unroll will fully unroll to; above this it
// leaves the loop alone rather than bloating the function (spec
// §4.C5.l leaves the exact cutoff to the implementer).
const UnrollThreshold = 512

// Unroll fully unrolls single-block counted loops (header and latch
// coincide, the common shape left after LoopSimplify collapses a
// `for` body with no internal control flow) whose trip count is
// provably constant: the header block is cloned once per execution
// (trip count + 1 times, as the exit test sits at its end), each clone's
// phi reads replaced by the carried values threaded from the previous
// clone (or the pre-header on the first), and the last clone jumps
// straight to the loop's exit. Multi-block bodies are left to the
// back end's own block layout, matching the narrower scope the
// spec's Open Question on unrolling leaves to the implementer.
func Unroll(fn *mir.Function, c *cfg.CFG) (bool, error) {
	changed := false
	for _, lp := range c.Loops.ByHeader {
		if len(lp.Blocks()) != 1 {
			continue
		}
		ivs := RecognizeInductionVars(fn, c, lp)
		tc, ok := ComputeTripCount(lp, ivs)
		if !ok || tc.N <= 0 {
			continue
		}
		// A single-block loop tests at the end of the block, after the
		// body has already run: the counter's failing value still gets
		// one body execution, so the block runs N+1 times.
		runs := tc.N + 1
		bodySize := len(allInstrs(lp.Header))
		if int64(bodySize)*runs > UnrollThreshold {
			continue
		}
		if unrollSingleBlockLoop(fn, c, lp, int(runs)) {
			changed = true
		}
	}
	if changed {
		c.Analysis()
	}
	return changed, nil
}

func unrollSingleBlockLoop(fn *mir.Function, c *cfg.CFG, lp *cfg.Loop, n int) bool {
	exits := lp.ExitBlocks()
	if len(exits) != 1 {
		return false
	}
	exit := exits[0]
	pre := lp.Preheader(c)
	if pre == nil {
		return false
	}
	header := lp.Header

	// carried maps each header-phi target to the value flowing into the
	// next clone (starts at the pre-header source of that phi).
	carried := map[uint32]mir.Value{}
	for _, phi := range header.Phis {
		for _, s := range phi.PhiSources {
			if s.Pred == pre.Label {
				carried[phi.Target.ID] = s.Value
			}
		}
	}

	// Body instructions excluding the loop's own exit test, which has no
	// meaning once the trip count is known statically.
	bodyInstrs := header.Instrs
	if len(bodyInstrs) > 0 {
		last := bodyInstrs[len(bodyInstrs)-1]
		switch last.Variant {
		case mir.VJump, mir.VJumpCond, mir.VRet:
			bodyInstrs = bodyInstrs[:len(bodyInstrs)-1]
		}
	}

	clones := make([]*mir.BasicBlock, n)
	for i := 0; i < n; i++ {
		clones[i] = fn.NewBlock()
		clones[i].Weight = header.Weight
	}

	link := pre
	var lastTempMap map[uint32]mir.Temp
	for i := 0; i < n; i++ {
		tempMap := map[uint32]mir.Temp{}
		labelMap := map[mir.Label]mir.Label{}
		nb := clones[i]
		lastTempMap = tempMap

		for id, v := range carried {
			if v.Kind == mir.ValueTempKind {
				tempMap[id] = v.Tmp
			}
		}

		for _, instr := range bodyInstrs {
			nb.AddInstr(cloneInstr(instr, tempMap, labelMap, fn))
		}
		for id, v := range carried {
			if v.Kind != mir.ValueTempKind {
				continue
			}
			for _, instr := range nb.Instrs {
				substituteValue(instr, id, v)
			}
		}

		var next mir.Label
		if i+1 < n {
			next = clones[i+1].Label
		} else {
			next = exit.Label
		}
		nb.AddInstr(mir.NewJump(next))

		mir.AddEdge(link, nb)
		link = nb

		nextCarried := map[uint32]mir.Value{}
		for _, phi := range header.Phis {
			for _, s := range phi.PhiSources {
				if s.Pred == header.Label { // the back-edge source
					v := s.Value
					if v.Kind == mir.ValueTempKind {
						if nt, ok := tempMap[v.Tmp.ID]; ok {
							v = mir.TempVal(nt)
						}
					}
					nextCarried[phi.Target.ID] = v
				}
			}
		}
		carried = nextCarried
	}

	mir.AddEdge(link, exit)
	mir.RemoveEdge(pre, header)
	redirectTerminator(pre, header.Label, clones[0].Label)
	for _, phi := range exit.Phis {
		for i := range phi.PhiSources {
			if phi.PhiSources[i].Pred == header.Label {
				v := phi.PhiSources[i].Value
				if v.Kind == mir.ValueTempKind {
					if cv, ok := carried[v.Tmp.ID]; ok {
						v = cv // a header phi's value after the final iteration
					} else if nt, ok := lastTempMap[v.Tmp.ID]; ok {
						v = mir.TempVal(nt) // a body temp, now defined in the last clone
					}
				}
				phi.PhiSources[i] = mir.PhiSource{Value: v, Pred: link.Label}
			}
		}
	}
	for _, s := range append([]*mir.BasicBlock(nil), header.Succ...) {
		mir.RemoveEdge(header, s)
	}
	fn.RemoveBlock(header)
	return true
}

// substituteValue rewrites any direct operand read of oldID to v
// within instr (used to thread carried loop-carried values through an
// unrolled clone without touching the phi machinery, since the clone
// no longer has a phi for that value).
func substituteValue(instr *mir.Instruction, oldID uint32, v mir.Value) {
	replace := func(val mir.Value) mir.Value {
		if val.Kind == mir.ValueTempKind && val.Tmp.ID == oldID {
			return v
		}
		return val
	}
	instr.LHS = replace(instr.LHS)
	instr.RHS = replace(instr.RHS)
	instr.Cond = replace(instr.Cond)
	instr.StoreValue = replace(instr.StoreValue)
	instr.Addr = replace(instr.Addr)
	instr.GEPOffset = replace(instr.GEPOffset)
	instr.AllocLength = replace(instr.AllocLength)
	if instr.RetValue != nil {
		r := replace(*instr.RetValue)
		instr.RetValue = &r
	}
	for i := range instr.CallParams {
		instr.CallParams[i].Value = replace(instr.CallParams[i].Value)
	}
}
