package opt

import (
	"fmt"

	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// valueNumber is an opaque congruence class id. Two temps sharing a
// valueNumber are interchangeable.
type valueNumber string

// GVN assigns a value number to every defined temp via a deterministic
// hash of (operator, operand numbers), with commutativity
// normalization. Constant operands are numbered by their literal text and
// are not folded here; ArithCanon, which runs right after GVN in every
// pipeline round, folds them. When two temps share a number and the
// older dominates the younger, every use of the younger is rewritten to
// the older and its definition is dropped (spec §4.C5.c).
//
// Loads interact with the alias oracle conservatively: a load from a
// global is only congruent with another load of the same global in the
// same block with no intervening store (or call, which may store to any
// global) between them. Cross-block load merging is left to the
// localize pass, which promotes single-function globals to SSA outright.
func GVN(fn *mir.Function, c *cfg.CFG) (bool, error) {
	numberOf := map[uint32]valueNumber{}   // temp id -> value number
	firstDef := map[valueNumber]*mir.Temp{} // value number -> earliest-dominating temp found so far
	firstBlk := map[valueNumber]*mir.BasicBlock{}
	storeGen := 0 // bumped on every store/call; folded into load numbers

	changed := false
	rewrites := map[uint32]mir.Value{}

	for _, b := range c.RPO() {
		for _, instr := range allInstrsOf(b) {
			if instr.Variant == mir.VStore || instr.Variant == mir.VCall {
				storeGen++
			}
			if instr.Target == nil || instr.Variant == mir.VAlloc || instr.Variant == mir.VCall {
				continue // allocs/calls are never congruent with anything else
			}
			vn, ok := numberFor(instr, b, numberOf, storeGen)
			if !ok {
				continue
			}
			numberOf[instr.Target.ID] = vn

			if dom, seen := firstDef[vn]; seen {
				if c.Dominates(firstBlk[vn], b) && dom.ID != instr.Target.ID {
					rewrites[instr.Target.ID] = mir.TempVal(*dom)
					changed = true
					continue
				}
			}
			t := *instr.Target
			firstDef[vn] = &t
			firstBlk[vn] = b
		}
	}

	if !changed {
		return false, nil
	}
	applyRewrites(fn, rewrites)
	removeRewrittenDefs(fn, rewrites)
	return true, nil
}

func allInstrsOf(b *mir.BasicBlock) []*mir.Instruction {
	return b.Instrs
}

// numberFor computes the deterministic congruence key for instr, or
// false if instr's opcode is not a pure value computation participating
// in GVN (branches, stores, etc.).
func numberFor(instr *mir.Instruction, b *mir.BasicBlock, numberOf map[uint32]valueNumber, storeGen int) (valueNumber, bool) {
	operand := func(v mir.Value) string {
		if v.Kind == mir.ValueTempKind {
			if vn, ok := numberOf[v.Tmp.ID]; ok {
				return string(vn)
			}
			return v.Tmp.String()
		}
		return v.String()
	}

	switch instr.Variant {
	case mir.VArith:
		a, b := operand(instr.LHS), operand(instr.RHS)
		if isCommutative(instr.ArithOp) && a > b {
			a, b = b, a
		}
		return valueNumber(fmt.Sprintf("arith:%s:%s:%s:%s", instr.ArithOp, instr.Type, a, b)), true
	case mir.VComp:
		a, b := operand(instr.LHS), operand(instr.RHS)
		return valueNumber(fmt.Sprintf("comp:%v:%s:%s:%s:%s", instr.CompKind, instr.CompOp, instr.Type, a, b)), true
	case mir.VConvert:
		return valueNumber(fmt.Sprintf("conv:%v:%s:%s:%s", instr.ConvertOp, instr.FromType, instr.Type, operand(instr.LHS))), true
	case mir.VGEP:
		return valueNumber(fmt.Sprintf("gep:%s:%s:%s", instr.Type, operand(instr.Addr), operand(instr.GEPOffset))), true
	case mir.VLoad:
		if instr.Addr.Kind != mir.ValueTempKind || !instr.Addr.Tmp.IsGlobal {
			return "", false // local-pointer loads are handled by Mem2Reg, not GVN's alias oracle
		}
		// Block-local numbering only: a cross-block merge would need a
		// path-sensitive oracle (a store on a loop back edge invalidates
		// a header load even though the pre-loop load dominates it).
		return valueNumber(fmt.Sprintf("load:%s:%s:b%d:%d", instr.Type, instr.Addr.Tmp.Name, b.ID, storeGen)), true
	default:
		return "", false
	}
}

func isCommutative(op mir.ArithOp) bool {
	switch op {
	case mir.Add, mir.Mul, mir.And, mir.Or, mir.Xor, mir.Fadd, mir.Fmul:
		return true
	default:
		return false
	}
}

func applyRewrites(fn *mir.Function, rewrites map[uint32]mir.Value) {
	sub := func(v *mir.Value) {
		if v.Kind == mir.ValueTempKind {
			if repl, ok := rewrites[v.Tmp.ID]; ok {
				*v = repl
			}
		}
	}
	for _, b := range fn.Blocks {
		for _, instr := range b.Phis {
			for i := range instr.PhiSources {
				sub(&instr.PhiSources[i].Value)
			}
		}
		for _, instr := range b.Instrs {
			sub(&instr.LHS)
			sub(&instr.RHS)
			sub(&instr.Cond)
			sub(&instr.StoreValue)
			sub(&instr.Addr)
			sub(&instr.GEPOffset)
			if instr.RetValue != nil {
				sub(instr.RetValue)
			}
			for i := range instr.CallParams {
				sub(&instr.CallParams[i].Value)
			}
		}
	}
}

func removeRewrittenDefs(fn *mir.Function, rewrites map[uint32]mir.Value) {
	for _, b := range fn.Blocks {
		var kept []*mir.Instruction
		for _, instr := range b.Instrs {
			if instr.Target != nil {
				if _, dropped := rewrites[instr.Target.ID]; dropped {
					continue
				}
			}
			kept = append(kept, instr)
		}
		b.Instrs = kept
	}
}
