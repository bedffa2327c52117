package opt

import (
	"sysyc/internal/errors"
	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// ArithCanon canonicalizes arithmetic instructions into a normal form
// that later passes (GVN's commutativity check, OSR's regional-constant
// matcher) can pattern-match without repeating the same case analysis
// themselves: both-constant operands fold to a literal outright (spec
// §4.C5.m), commutative operators get their remaining constant operand
// moved to the right, and algebraic identities (`x+0`, `x*1`, `x*0`,
// `x-x`) fold away. Constant division/remainder by a power of two is
// deliberately left to instruction selection (spec §4.C6), which has to
// get C's truncating-toward-zero signed semantics right with a
// sign-correction term this pass has no ISA-level primitive to express
// cheaply; folding it here would just be redone, or done wrong, later.
func ArithCanon(fn *mir.Function, c *cfg.CFG) (bool, error) {
	changed := false
	for _, b := range fn.Blocks {
		var kept []*mir.Instruction
		for _, instr := range b.Instrs {
			if instr.Variant != mir.VArith {
				kept = append(kept, instr)
				continue
			}
			if v, ok, divByZero := mir.FoldConstArith(instr.ArithOp, instr.LHS, instr.RHS); divByZero {
				return false, errors.DivideByZero(fn.Name)
			} else if ok {
				rewriteUses(fn, instr.Target.ID, v)
				changed = true
				continue
			}
			canonicalizeOperandOrder(instr)
			if repl, ok := identityFold(instr); ok {
				rewriteUses(fn, instr.Target.ID, repl)
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

// canonicalizeOperandOrder moves a constant RHS/LHS operand of a
// commutative op to the right, so `const + x` becomes `x + const`.
func canonicalizeOperandOrder(instr *mir.Instruction) {
	if !isCommutative(instr.ArithOp) {
		return
	}
	if instr.LHS.IsConst() && !instr.RHS.IsConst() {
		instr.LHS, instr.RHS = instr.RHS, instr.LHS
	}
}

// identityFold recognizes algebraic identities that eliminate the
// instruction entirely, replacing its uses with one of its operands or
// a freshly synthesized zero constant.
func identityFold(instr *mir.Instruction) (mir.Value, bool) {
	lhs, rhs := instr.LHS, instr.RHS
	switch instr.ArithOp {
	case mir.Add, mir.Fadd:
		if isZero(rhs) {
			return lhs, true
		}
		if isZero(lhs) {
			return rhs, true
		}
	case mir.Sub:
		if isZero(rhs) {
			return lhs, true
		}
		if sameValue(lhs, rhs) {
			return mir.IntVal(0), true
		}
	case mir.Fsub:
		if isZero(rhs) {
			return lhs, true
		}
	case mir.Mul:
		if isOne(rhs) {
			return lhs, true
		}
		if isOne(lhs) {
			return rhs, true
		}
		if isZero(rhs) || isZero(lhs) {
			return mir.IntVal(0), true
		}
	case mir.Fmul:
		if isOne(rhs) {
			return lhs, true
		}
		if isOne(lhs) {
			return rhs, true
		}
	case mir.Div:
		if isOne(rhs) {
			return lhs, true
		}
	case mir.Xor, mir.Or:
		if isZero(rhs) {
			return lhs, true
		}
	case mir.And:
		if isZero(rhs) || isZero(lhs) {
			return mir.IntVal(0), true
		}
	}
	return mir.Value{}, false
}

func isZero(v mir.Value) bool {
	return (v.Kind == mir.ValueInt && v.Int == 0) || (v.Kind == mir.ValueFloat && v.Flt == 0)
}

func isOne(v mir.Value) bool {
	return (v.Kind == mir.ValueInt && v.Int == 1) || (v.Kind == mir.ValueFloat && v.Flt == 1)
}

