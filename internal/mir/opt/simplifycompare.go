package opt

import (
	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// additiveSynonym records that some temp equals base +/- offset, learned
// from a same-function Add/Sub (or Fadd/Fsub) instruction whose other
// operand is a constant. Keyed by the Add/Sub's own target, since that's
// the temp later instructions (in particular a comparison) actually see.
type additiveSynonym struct {
	base   mir.Value
	offset mir.Value // same Kind as base: IntVal or FloatVal
}

// SimplifyCompare folds comparisons between two literal operands to
// their boolean result outright, and rewrites a comparison against a
// constant where the other side is itself a constant offset from some
// value (`x+c1 CMP c2`) into a direct comparison against that value
// (`x CMP c2-c1`), so later passes (loop bound matching, GVN) see one
// canonical comparison instead of an equivalent but differently-shaped
// one.
func SimplifyCompare(fn *mir.Function, c *cfg.CFG) (bool, error) {
	changed := false
	synonyms := collectAdditiveSynonyms(fn)

	for _, b := range fn.Blocks {
		var kept []*mir.Instruction
		for _, instr := range b.Instrs {
			if instr.Variant != mir.VComp {
				kept = append(kept, instr)
				continue
			}
			if result, ok := foldConstCompare(instr); ok {
				rewriteUses(fn, instr.Target.ID, result)
				changed = true
				continue
			}
			if rewriteViaSynonym(instr, synonyms) {
				changed = true
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

// collectAdditiveSynonyms scans every Add/Sub (and float counterpart) in
// fn whose result is a constant offset from a temp, recording that
// relationship keyed by the instruction's own target.
func collectAdditiveSynonyms(fn *mir.Function) map[uint32]additiveSynonym {
	synonyms := map[uint32]additiveSynonym{}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if instr.Variant != mir.VArith {
				continue
			}
			switch instr.ArithOp {
			case mir.Add, mir.Fadd:
				if base, offset, ok := splitConstOperand(instr.LHS, instr.RHS); ok {
					synonyms[instr.Target.ID] = additiveSynonym{base: base, offset: offset}
				}
			case mir.Sub, mir.Fsub:
				if instr.LHS.Kind == mir.ValueTempKind && instr.RHS.IsConst() {
					synonyms[instr.Target.ID] = additiveSynonym{base: instr.LHS, offset: negate(instr.RHS)}
				}
			}
		}
	}
	return synonyms
}

// splitConstOperand reports the (temp, constant) split of a commutative
// add's two operands, in either order.
func splitConstOperand(lhs, rhs mir.Value) (base, offset mir.Value, ok bool) {
	if lhs.Kind == mir.ValueTempKind && rhs.IsConst() {
		return lhs, rhs, true
	}
	if rhs.Kind == mir.ValueTempKind && lhs.IsConst() {
		return rhs, lhs, true
	}
	return mir.Value{}, mir.Value{}, false
}

func negate(v mir.Value) mir.Value {
	if v.Kind == mir.ValueFloat {
		return mir.FloatVal(-v.Flt)
	}
	return mir.IntVal(-v.Int)
}

// rewriteViaSynonym rewrites instr in place if one side is a constant and
// the other is a temp with a known additive synonym, reporting whether
// anything actually changed (a zero offset rewrites to the same shape,
// which isn't progress).
func rewriteViaSynonym(instr *mir.Instruction, synonyms map[uint32]additiveSynonym) bool {
	if instr.LHS.IsConst() && instr.RHS.Kind == mir.ValueTempKind {
		if syn, has := synonyms[instr.RHS.Tmp.ID]; has {
			if adjusted, ok := subtractConst(instr.LHS, syn.offset); ok {
				instr.LHS, instr.RHS = adjusted, syn.base
				return !isZero(syn.offset)
			}
		}
	}
	if instr.RHS.IsConst() && instr.LHS.Kind == mir.ValueTempKind {
		if syn, has := synonyms[instr.LHS.Tmp.ID]; has {
			if adjusted, ok := subtractConst(instr.RHS, syn.offset); ok {
				instr.LHS, instr.RHS = syn.base, adjusted
				return !isZero(syn.offset)
			}
		}
	}
	return false
}

// subtractConst computes c - offset, rejecting int subtraction that
// would overflow int32 rather than silently wrapping a comparison bound.
func subtractConst(c, offset mir.Value) (mir.Value, bool) {
	if c.Kind == mir.ValueFloat && offset.Kind == mir.ValueFloat {
		return mir.FloatVal(c.Flt - offset.Flt), true
	}
	if c.Kind == mir.ValueInt && offset.Kind == mir.ValueInt {
		result := int64(c.Int) - int64(offset.Int)
		if result < -(1<<31) || result > (1<<31)-1 {
			return mir.Value{}, false
		}
		return mir.IntVal(int32(result)), true
	}
	return mir.Value{}, false
}

// foldConstCompare evaluates a comparison whose operands are both
// literals, returning the 0/1 result as an IntVal.
func foldConstCompare(instr *mir.Instruction) (mir.Value, bool) {
	if instr.LHS.Kind == mir.ValueInt && instr.RHS.Kind == mir.ValueInt {
		a, b := instr.LHS.Int, instr.RHS.Int
		if result, ok := evalIntComp(instr.CompOp, a, b); ok {
			return mir.IntVal(boolToInt(result)), true
		}
	}
	if instr.LHS.Kind == mir.ValueFloat && instr.RHS.Kind == mir.ValueFloat {
		a, b := instr.LHS.Flt, instr.RHS.Flt
		if result, ok := evalFloatComp(instr.CompOp, a, b); ok {
			return mir.IntVal(boolToInt(result)), true
		}
	}
	return mir.Value{}, false
}

func evalIntComp(op mir.CompOp, a, b int32) (bool, bool) {
	switch op {
	case mir.EQ:
		return a == b, true
	case mir.NE:
		return a != b, true
	case mir.SGT:
		return a > b, true
	case mir.SGE:
		return a >= b, true
	case mir.SLT:
		return a < b, true
	case mir.SLE:
		return a <= b, true
	default:
		return false, false
	}
}

func evalFloatComp(op mir.CompOp, a, b float32) (bool, bool) {
	switch op {
	case mir.OEQ:
		return a == b, true
	case mir.ONE:
		return a != b, true
	case mir.OGT:
		return a > b, true
	case mir.OGE:
		return a >= b, true
	case mir.OLT:
		return a < b, true
	case mir.OLE:
		return a <= b, true
	default:
		return false, false
	}
}

func boolToInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
