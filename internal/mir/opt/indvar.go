package opt

import (
	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// IVKind classifies a header-phi SCC found by induction-variable
// recognition.
type IVKind uint8

const (
	IVNotInductive IVKind = iota
	IVInvariant
	IVInduction
)

// InductionVar records a recognized induction variable: a header phi
// whose update cycle is a chain of add/sub/mul against loop-invariant
// step values, optionally reduced by a constant modulus ("zfp",
// spec GLOSSARY). Steps holds the polynomial's coefficients s1..sk,
// where the IV's value after n iterations is
// Base*C(n,0) + s1*C(n,1) + ... + sk*C(n,k) (Newton's forward-difference
// form); the ordinary single-coefficient counter case is the k=1
// degenerate case. len(Steps) > 1 only arises when classifyPhiCycle
// chains this IV's step onto another, already-recognized IV in the
// same header (an accumulator driven by a counter, e.g. `s += i`).
type InductionVar struct {
	Header   mir.Temp // the header phi's target
	Kind     IVKind
	Base     mir.Value   // the pre-header source value
	Steps    []mir.Value // polynomial coefficients s1..sk (s_i applied via C(n,i))
	Op       mir.ArithOp // Add, Sub, or Mul, the dominant update operator
	Modulus  *int32      // zfp, if the cycle ends in `mod` by a constant
	Useful   bool        // false if the IV is only used to drive the loop counter itself
	PhiInstr *mir.Instruction
}

// RecognizeInductionVars classifies each of lp's header phis as either a
// header-phi induction chain (IVInduction) or neither (IVNotInductive).
// It does not decompose the loop's use-def graph into SCCs, and it does
// not classify non-phi instructions, so IVInvariant is never produced.
// Header phis are classified to a fixpoint rather than in one top-down
// pass, since one phi's step may itself be another header phi not yet
// classified (a running-sum accumulator stepped by a sibling counter).
func RecognizeInductionVars(fn *mir.Function, c *cfg.CFG, lp *cfg.Loop) []InductionVar {
	blocks := map[uint32]bool{}
	for _, b := range lp.Blocks() {
		blocks[b.ID] = true
	}
	defOf := map[uint32]*mir.Instruction{}
	defBlockOf := map[uint32]*mir.BasicBlock{}
	for _, b := range lp.Blocks() {
		for _, instr := range allInstrs(b) {
			if instr.Target != nil {
				defOf[instr.Target.ID] = instr
				defBlockOf[instr.Target.ID] = b
			}
		}
	}

	isInvariant := func(v mir.Value) bool {
		if v.Kind != mir.ValueTempKind {
			return true
		}
		db, inLoop := defBlockOf[v.Tmp.ID]
		return !inLoop || !blocks[db.ID]
	}

	results := make([]InductionVar, len(lp.Header.Phis))
	byHeader := map[uint32]*InductionVar{}
	for i, phi := range lp.Header.Phis {
		results[i] = InductionVar{Header: *phi.Target, PhiInstr: phi, Kind: IVNotInductive}
		byHeader[results[i].Header.ID] = &results[i]
	}

	for pass := 0; pass <= len(results); pass++ {
		progress := false
		for i, phi := range lp.Header.Phis {
			if results[i].Kind != IVNotInductive {
				continue
			}
			base, steps, op, updateInstr, modulus, ok := classifyPhiCycle(phi, lp, defOf, isInvariant, byHeader)
			if !ok {
				continue
			}
			results[i].Kind = IVInduction
			results[i].Base = base
			results[i].Steps = steps
			results[i].Op = op
			results[i].Modulus = modulus
			results[i].Useful = isUsefulOutsideCounter(fn, lp, *phi.Target, updateInstr)
			progress = true
		}
		if !progress {
			break
		}
	}
	return results
}

// classifyPhiCycle walks a header phi's two sources: one must be the
// pre-header base, the other a same-loop instruction whose own operand
// chain bottoms out at the phi itself via add/sub/mul against either an
// invariant step, or (Add/Fadd only) another header phi in known that has
// already been classified as a simple induction variable — chaining
// that sibling's polynomial onto this one's, via the hockey-stick
// identity sum_{j=0}^{n-1} C(j,i) = C(n,i+1).
func classifyPhiCycle(phi *mir.Instruction, lp *cfg.Loop, defOf map[uint32]*mir.Instruction, isInvariant func(mir.Value) bool, known map[uint32]*InductionVar) (base mir.Value, steps []mir.Value, op mir.ArithOp, updateInstr *mir.Instruction, modulus *int32, ok bool) {
	var loopSource *mir.Value
	for _, s := range phi.PhiSources {
		if loopSourceIsInLoop(s.Value, lp, defOf) {
			v := s.Value
			loopSource = &v
			continue
		}
		base = s.Value
	}
	if loopSource == nil {
		return base, nil, op, nil, nil, false
	}
	update, has := defOf[loopSource.Tmp.ID]
	if !has || update.Variant != mir.VArith {
		return base, nil, op, nil, nil, false
	}
	// A cycle terminated by `rem` against a constant is the zfp shape:
	// peel the modulus off and classify the inner update as usual.
	if update.ArithOp == mir.Rem && update.RHS.Kind == mir.ValueInt && update.LHS.Kind == mir.ValueTempKind {
		m := update.RHS.Int
		inner, hasInner := defOf[update.LHS.Tmp.ID]
		if hasInner {
			steps, op, ok = classifyUpdate(phi, inner, isInvariant, known)
			if ok {
				// inner is the instruction reading the phi, so it is the
				// self-update usefulness analysis must exempt.
				return base, steps, op, inner, &m, true
			}
		}
		return base, nil, op, nil, nil, false
	}
	steps, op, ok = classifyUpdate(phi, update, isInvariant, known)
	if !ok {
		return base, nil, op, nil, nil, false
	}
	return base, steps, op, update, nil, true
}

// classifyUpdate matches one add/sub/mul whose operands are the phi
// itself plus either an invariant step or an already-classified sibling
// induction variable (the accumulator case).
func classifyUpdate(phi *mir.Instruction, update *mir.Instruction, isInvariant func(mir.Value) bool, known map[uint32]*InductionVar) (steps []mir.Value, op mir.ArithOp, ok bool) {
	if update.Variant != mir.VArith {
		return nil, op, false
	}
	switch update.ArithOp {
	case mir.Add, mir.Sub, mir.Mul, mir.Fadd, mir.Fsub, mir.Fmul:
	default:
		return nil, op, false
	}
	var stepOperand mir.Value
	if update.LHS.Kind == mir.ValueTempKind && update.LHS.Tmp.ID == phi.Target.ID {
		stepOperand = update.RHS
	} else if update.RHS.Kind == mir.ValueTempKind && update.RHS.Tmp.ID == phi.Target.ID {
		stepOperand = update.LHS
	} else {
		return nil, op, false
	}
	if isInvariant(stepOperand) {
		return []mir.Value{stepOperand}, update.ArithOp, true
	}
	if (update.ArithOp == mir.Add || update.ArithOp == mir.Fadd) && stepOperand.Kind == mir.ValueTempKind {
		if sib, has := known[stepOperand.Tmp.ID]; has && sib.Kind == IVInduction && sib.Modulus == nil && (sib.Op == mir.Add || sib.Op == mir.Fadd) {
			chained := append([]mir.Value{sib.Base}, sib.Steps...)
			return chained, update.ArithOp, true
		}
	}
	return nil, op, false
}

func loopSourceIsInLoop(v mir.Value, lp *cfg.Loop, defOf map[uint32]*mir.Instruction) bool {
	if v.Kind != mir.ValueTempKind {
		return false
	}
	_, has := defOf[v.Tmp.ID]
	return has
}

// isUsefulOutsideCounter reports whether the induction variable is used
// for anything beyond driving its own loop-exit test and its own
// per-iteration update, which determines whether closed-form
// replacement is safe (spec "useful_variants"). selfUpdate is the
// instruction classifyPhiCycle identified as this IV's own cycle step
// (e.g. `sNext = sVal + iVal`): it necessarily reads the phi's current
// value to produce the next one, and that self-reference isn't a use
// that should block extraction — every induction variable has one.
func isUsefulOutsideCounter(fn *mir.Function, lp *cfg.Loop, ivTemp mir.Temp, selfUpdate *mir.Instruction) bool {
	for _, b := range lp.Blocks() {
		term := b.Terminator()
		for _, instr := range allInstrs(b) {
			if instr == selfUpdate {
				continue
			}
			isCompareForExit := instr == term && instr.Variant == mir.VJumpCond
			for _, r := range instr.GetRead() {
				if r.ID == ivTemp.ID && !isCompareForExit {
					return true
				}
			}
		}
	}
	return false
}
