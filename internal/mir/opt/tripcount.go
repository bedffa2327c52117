package opt

import (
	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// TripCount describes a loop whose exit test is `counter CMP bound` with
// a constant step, when the trip count can be proven constant.
type TripCount struct {
	Counter  InductionVar
	Start    int32
	Bound    int32
	Step     int32
	N        int64 // number of iterations
	ExitTest *mir.Instruction
}

// ComputeTripCount looks for the canonical counted-loop shape: a header
// phi IV compared against a loop-invariant constant bound in the
// header's own JumpCond, with a constant integer step. Returns ok=false
// if the loop isn't in this shape or the count can't be proven constant
// at compile time (spec §4.C5.l: `(end-start+step-1)/step` for `<`,
// analogous for `<=`).
func ComputeTripCount(lp *cfg.Loop, ivs []InductionVar) (TripCount, bool) {
	iv, start, step, bound, op, cmp, ok := matchCounterIV(lp, ivs)
	if !ok || bound.Kind != mir.ValueInt {
		return TripCount{}, false
	}

	n, ok := tripCountFor(start, bound.Int, step, op)
	if !ok {
		return TripCount{}, false
	}
	return TripCount{Counter: *iv, Start: start, Bound: bound.Int, Step: step, N: n, ExitTest: cmp}, true
}

// matchCounterIV finds the header's exit-test comparison and the single
// induction variable it compares against, regardless of whether the
// bound is a compile-time constant: a header phi IV on one side, a
// loop-invariant value (literal or symbolic) on the other, added/
// subtracted by a constant integer step each iteration. This is the
// shape both ComputeTripCount (which additionally demands a literal
// bound) and IVExtract's symbolic trip-count path (which doesn't) need
// to recognize.
func matchCounterIV(lp *cfg.Loop, ivs []InductionVar) (iv *InductionVar, start, step int32, bound mir.Value, op mir.CompOp, cmp *mir.Instruction, ok bool) {
	term := lp.Header.Terminator()
	if term == nil || term.Variant != mir.VJumpCond {
		return nil, 0, 0, mir.Value{}, 0, nil, false
	}
	if term.Cond.Kind != mir.ValueTempKind {
		return nil, 0, 0, mir.Value{}, 0, nil, false
	}
	for _, instr := range lp.Header.Instrs {
		if instr.Target != nil && instr.Target.ID == term.Cond.Tmp.ID && instr.Variant == mir.VComp {
			cmp = instr
			break
		}
	}
	if cmp == nil || cmp.CompKind != mir.Icmp {
		return nil, 0, 0, mir.Value{}, 0, nil, false
	}

	reversed := false
	for i := range ivs {
		if ivs[i].Kind != IVInduction || len(ivs[i].Steps) != 1 || ivs[i].Modulus != nil {
			continue // a chained/polynomial/zfp IV never drives its own exit test directly
		}
		if cmp.LHS.Kind == mir.ValueTempKind && cmp.LHS.Tmp.ID == ivs[i].Header.ID {
			iv, bound = &ivs[i], cmp.RHS
			break
		}
		if cmp.RHS.Kind == mir.ValueTempKind && cmp.RHS.Tmp.ID == ivs[i].Header.ID {
			iv, bound, reversed = &ivs[i], cmp.LHS, true
			break
		}
	}
	if iv == nil {
		return nil, 0, 0, mir.Value{}, 0, nil, false
	}
	if iv.Base.Kind != mir.ValueInt || iv.Steps[0].Kind != mir.ValueInt {
		return nil, 0, 0, mir.Value{}, 0, nil, false
	}
	if iv.Op != mir.Add && iv.Op != mir.Sub {
		return nil, 0, 0, mir.Value{}, 0, nil, false
	}

	start = iv.Base.Int
	step = iv.Steps[0].Int
	if iv.Op == mir.Sub {
		step = -step
	}
	op = cmp.CompOp
	if reversed {
		op = flipComp(op)
	}
	return iv, start, step, bound, op, cmp, true
}

func flipComp(op mir.CompOp) mir.CompOp {
	switch op {
	case mir.SLT:
		return mir.SGT
	case mir.SLE:
		return mir.SGE
	case mir.SGT:
		return mir.SLT
	case mir.SGE:
		return mir.SLE
	default:
		return op
	}
}

func tripCountFor(start, bound, step int32, op mir.CompOp) (int64, bool) {
	if step == 0 {
		return 0, false
	}
	switch op {
	case mir.SLT:
		if step < 0 {
			return 0, false
		}
		if start >= bound {
			return 0, true
		}
		return (int64(bound) - int64(start) + int64(step) - 1) / int64(step), true
	case mir.SLE:
		if step < 0 {
			return 0, false
		}
		if start > bound {
			return 0, true
		}
		return (int64(bound) - int64(start) + int64(step)) / int64(step), true
	case mir.SGT:
		if step > 0 {
			return 0, false
		}
		if start <= bound {
			return 0, true
		}
		return (int64(start) - int64(bound) + int64(-step) - 1) / int64(-step), true
	case mir.SGE:
		if step > 0 {
			return 0, false
		}
		if start < bound {
			return 0, true
		}
		return (int64(start) - int64(bound) + int64(-step)) / int64(-step), true
	default:
		return 0, false
	}
}
