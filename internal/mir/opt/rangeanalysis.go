package opt

import (
	"math"

	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// interval is an inclusive integer value range; rangeNegInf/rangePosInf
// stand in for unbounded ends so intersection is ordinary min/max with
// no Option wrapper. Only integers are tracked (spec's float arithmetic
// has no comparably cheap per-block narrowing and isn't attempted here).
type interval struct {
	lo, hi int64
}

const (
	rangeNegInf = math.MinInt64
	rangePosInf = math.MaxInt64
)

func fullInterval() interval { return interval{lo: rangeNegInf, hi: rangePosInf} }

func pointInterval(v int64) interval { return interval{lo: v, hi: v} }

func (r interval) intersect(o interval) interval {
	lo, hi := r.lo, r.hi
	if o.lo > lo {
		lo = o.lo
	}
	if o.hi < hi {
		hi = o.hi
	}
	return interval{lo: lo, hi: hi}
}

func (r interval) constVal() (int64, bool) {
	if r.lo == r.hi && r.lo != rangeNegInf && r.lo != rangePosInf {
		return r.lo, true
	}
	return 0, false
}

// RangeAnalysis propagates integer value ranges down the dominator tree,
// narrowing a temp's range on the side of a JumpCond that the preceding
// comparison implies, and folds any later comparison the accumulated
// range already decides into an unconditional Jump (spec §4.C5.k). This
// is a single dominator-order pass with no fixpoint: ranges only ever
// come from a dominating comparison against a literal, never from
// propagating through arithmetic, so one propagation order is already
// exact and a second pass would find nothing new.
func RangeAnalysis(fn *mir.Function, c *cfg.CFG) (bool, error) {
	changed := false

	var walk func(b *mir.BasicBlock, known map[uint32]interval)
	walk = func(b *mir.BasicBlock, known map[uint32]interval) {
		if term := b.Terminator(); term != nil && term.Variant == mir.VJumpCond {
			if cmp := condComp(b, term); cmp != nil {
				if takeTrue, ok := decideFromKnown(cmp, known); ok {
					if rewriteJumpCond(fn, b, term, takeTrue) {
						changed = true
					}
				}
			}
		}

		term := b.Terminator()
		for _, ch := range c.Children(b) {
			childKnown := cloneRanges(known)
			// The branch condition holds on the edge b->ch; it extends to
			// ch as a block fact only when that edge is ch's sole entry
			// (a back edge into ch could carry values outside the range).
			if term != nil && term.Variant == mir.VJumpCond && len(ch.Prev) == 1 {
				if cmp := condComp(b, term); cmp != nil {
					switch ch.Label {
					case term.TrueTarget:
						narrowFromComp(childKnown, cmp, true)
					case term.FalseTarget:
						narrowFromComp(childKnown, cmp, false)
					}
				}
			}
			walk(ch, childKnown)
		}
	}
	walk(c.Entry(), map[uint32]interval{})

	if changed {
		c.Analysis()
	}
	return changed, nil
}

// condComp finds the Icmp instruction that defines term's own Cond temp,
// within the block term terminates (the shape every branch this front
// end emits takes: compare, then branch on the comparison's result).
func condComp(b *mir.BasicBlock, term *mir.Instruction) *mir.Instruction {
	if term.Cond.Kind != mir.ValueTempKind {
		return nil
	}
	for _, instr := range b.Instrs {
		if instr.Target != nil && instr.Target.ID == term.Cond.Tmp.ID && instr.Variant == mir.VComp && instr.CompKind == mir.Icmp {
			return instr
		}
	}
	return nil
}

// decideFromKnown reports whether cmp's outcome is already forced by the
// ranges known to hold at this point, given a literal or already-ranged
// temp on each side.
func decideFromKnown(cmp *mir.Instruction, known map[uint32]interval) (takeTrue, ok bool) {
	lhs, lok := operandRange(cmp.LHS, known)
	rhs, rok := operandRange(cmp.RHS, known)
	if !lok || !rok {
		return false, false
	}
	return evalIntervalComp(cmp.CompOp, lhs, rhs)
}

func operandRange(v mir.Value, known map[uint32]interval) (interval, bool) {
	if v.Kind == mir.ValueInt {
		return pointInterval(int64(v.Int)), true
	}
	if v.Kind == mir.ValueTempKind {
		if r, has := known[v.Tmp.ID]; has {
			return r, true
		}
	}
	return interval{}, false
}

func evalIntervalComp(op mir.CompOp, a, b interval) (takeTrue, ok bool) {
	switch op {
	case mir.SLT:
		if a.hi < b.lo {
			return true, true
		}
		if a.lo >= b.hi {
			return false, true
		}
	case mir.SLE:
		if a.hi <= b.lo {
			return true, true
		}
		if a.lo > b.hi {
			return false, true
		}
	case mir.SGT:
		if a.lo > b.hi {
			return true, true
		}
		if a.hi <= b.lo {
			return false, true
		}
	case mir.SGE:
		if a.lo >= b.hi {
			return true, true
		}
		if a.hi < b.lo {
			return false, true
		}
	case mir.EQ:
		if av, aok := a.constVal(); aok {
			if bv, bok := b.constVal(); bok {
				return av == bv, true
			}
		}
		if a.hi < b.lo || a.lo > b.hi {
			return false, true
		}
	case mir.NE:
		if av, aok := a.constVal(); aok {
			if bv, bok := b.constVal(); bok {
				return av != bv, true
			}
		}
		if a.hi < b.lo || a.lo > b.hi {
			return true, true
		}
	}
	return false, false
}

// narrowFromComp tightens known in place for whichever side of cmp is a
// temp, given the branch actually taken (takeTrue selects cmp's own
// predicate; the false edge narrows by its logical negation).
func narrowFromComp(known map[uint32]interval, cmp *mir.Instruction, takeTrue bool) {
	op := cmp.CompOp
	if !takeTrue {
		var ok bool
		op, ok = negateComp(op)
		if !ok {
			return
		}
	}
	applyConstraint(known, cmp.LHS, op, cmp.RHS)
	applyConstraint(known, cmp.RHS, flipComp(op), cmp.LHS)
}

func applyConstraint(known map[uint32]interval, lhs mir.Value, op mir.CompOp, rhs mir.Value) {
	if lhs.Kind != mir.ValueTempKind || rhs.Kind != mir.ValueInt {
		return
	}
	cur, has := known[lhs.Tmp.ID]
	if !has {
		cur = fullInterval()
	}
	c := int64(rhs.Int)
	switch op {
	case mir.SLT:
		cur = cur.intersect(interval{lo: rangeNegInf, hi: c - 1})
	case mir.SLE:
		cur = cur.intersect(interval{lo: rangeNegInf, hi: c})
	case mir.SGT:
		cur = cur.intersect(interval{lo: c + 1, hi: rangePosInf})
	case mir.SGE:
		cur = cur.intersect(interval{lo: c, hi: rangePosInf})
	case mir.EQ:
		cur = cur.intersect(pointInterval(c))
	default:
		return // NE can't narrow a contiguous range; just drop the constraint
	}
	known[lhs.Tmp.ID] = cur
}

// negateComp returns the logical negation of op (the condition that
// holds on the JumpCond's false edge), or ok=false for predicates this
// pass doesn't reason about (there are none among the six Icmp ops, but
// the signature stays defensive against CompOp growing new variants).
func negateComp(op mir.CompOp) (mir.CompOp, bool) {
	switch op {
	case mir.EQ:
		return mir.NE, true
	case mir.NE:
		return mir.EQ, true
	case mir.SLT:
		return mir.SGE, true
	case mir.SLE:
		return mir.SGT, true
	case mir.SGT:
		return mir.SLE, true
	case mir.SGE:
		return mir.SLT, true
	default:
		return op, false
	}
}

// rewriteJumpCond replaces term with an unconditional Jump to whichever
// target takeTrue selects, dropping the edge (and matching phi sources)
// to the now-unreachable side. Reports false without changing anything
// if both targets are the same block (a branch that can't actually
// prune anything).
func rewriteJumpCond(fn *mir.Function, b *mir.BasicBlock, term *mir.Instruction, takeTrue bool) bool {
	keepLabel, deadLabel := term.FalseTarget, term.TrueTarget
	if takeTrue {
		keepLabel, deadLabel = term.TrueTarget, term.FalseTarget
	}
	if keepLabel == deadLabel {
		return false
	}
	dead := fn.BlockByLabel(deadLabel)
	b.Instrs[len(b.Instrs)-1] = mir.NewJump(keepLabel)
	if dead != nil {
		mir.RemoveEdge(b, dead)
		removePhiSourceFor(dead, b.Label)
	}
	return true
}

func removePhiSourceFor(b *mir.BasicBlock, pred mir.Label) {
	for _, phi := range b.Phis {
		var kept []mir.PhiSource
		for _, s := range phi.PhiSources {
			if s.Pred != pred {
				kept = append(kept, s)
			}
		}
		phi.PhiSources = kept
	}
}

func cloneRanges(known map[uint32]interval) map[uint32]interval {
	out := make(map[uint32]interval, len(known))
	for k, v := range known {
		out[k] = v
	}
	return out
}
