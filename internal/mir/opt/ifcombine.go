package opt

import (
	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// IfCombine recognizes a diamond whose two arms each contain a single
// store of the same address and nothing else, and flattens it to a
// straight-line store of a synthesized select (spec §4.C5.f). Integer
// selects are synthesized with the bit trick `(a-b)&mask + b` where mask
// is all-ones when cond != 0 (computed as `0 - cond` on a 0/1 boolean);
// float selects multiply by the boolean cast to float.
func IfCombine(fn *mir.Function, c *cfg.CFG) (bool, error) {
	changed := false
	for _, b := range append([]*mir.BasicBlock(nil), fn.Blocks...) {
		term := b.Terminator()
		if term == nil || term.Variant != mir.VJumpCond {
			continue
		}
		trueBlk := fn.BlockByLabel(term.TrueTarget)
		falseBlk := fn.BlockByLabel(term.FalseTarget)
		if trueBlk == nil || falseBlk == nil || trueBlk == falseBlk {
			continue
		}
		if len(trueBlk.Prev) != 1 || len(falseBlk.Prev) != 1 {
			continue // an arm reachable from elsewhere is not this diamond's to delete
		}
		tStore, ok1 := singleStore(trueBlk)
		fStore, ok2 := singleStore(falseBlk)
		if !ok1 || !ok2 {
			continue
		}
		if len(trueBlk.Succ) != 1 || len(falseBlk.Succ) != 1 || trueBlk.Succ[0] != falseBlk.Succ[0] {
			continue
		}
		if !sameAddr(tStore.Addr, fStore.Addr) {
			continue
		}
		join := trueBlk.Succ[0]
		if !joinPhisMergeable(join, trueBlk.Label, falseBlk.Label) {
			continue
		}

		selTarget := fn.TempMgr.New(tStore.StoreValue.Type())
		var sel *selectChain
		if tStore.StoreValue.Type().IsFloat() {
			sel = synthesizeFloatSelect(fn, selTarget, term.Cond, tStore.StoreValue, fStore.StoreValue)
		} else {
			sel = synthesizeIntSelect(fn, selTarget, term.Cond, tStore.StoreValue, fStore.StoreValue)
		}

		b.Instrs = b.Instrs[:len(b.Instrs)-1] // drop the JumpCond terminator
		for _, extra := range sel.setup {
			b.AddInstr(extra)
		}
		b.AddInstr(sel.result)
		b.AddInstr(mir.NewStore(mir.TempVal(selTarget), tStore.Addr))
		b.AddInstr(mir.NewJump(join.Label))

		mir.RemoveEdge(b, trueBlk)
		mir.RemoveEdge(b, falseBlk)
		mir.RemoveEdge(trueBlk, join)
		mir.RemoveEdge(falseBlk, join)
		mir.AddEdge(b, join)
		mergeJoinPhiSources(join, trueBlk.Label, falseBlk.Label, b.Label)

		fn.RemoveBlock(trueBlk)
		fn.RemoveBlock(falseBlk)
		changed = true
	}
	if changed {
		c.Analysis()
	}
	return changed, nil
}

// joinPhisMergeable reports whether every phi at the join carries the
// same incoming value along both arm edges, so collapsing the two edges
// into one preserves the phi's meaning.
func joinPhisMergeable(join *mir.BasicBlock, tLabel, fLabel mir.Label) bool {
	for _, phi := range join.Phis {
		var tVal, fVal *mir.Value
		for i := range phi.PhiSources {
			switch phi.PhiSources[i].Pred {
			case tLabel:
				tVal = &phi.PhiSources[i].Value
			case fLabel:
				fVal = &phi.PhiSources[i].Value
			}
		}
		if tVal == nil || fVal == nil || !sameValue(*tVal, *fVal) {
			return false
		}
	}
	return true
}

// mergeJoinPhiSources replaces each phi's two arm sources with a single
// source from the flattened block.
func mergeJoinPhiSources(join *mir.BasicBlock, tLabel, fLabel, newPred mir.Label) {
	for _, phi := range join.Phis {
		var kept []mir.PhiSource
		var merged *mir.Value
		for _, s := range phi.PhiSources {
			if s.Pred == tLabel || s.Pred == fLabel {
				v := s.Value
				merged = &v
				continue
			}
			kept = append(kept, s)
		}
		if merged != nil {
			kept = append(kept, mir.PhiSource{Value: *merged, Pred: newPred})
		}
		phi.PhiSources = kept
	}
}

// selectChain bundles the instruction sequence needed to materialize a
// select, since both paths need intermediate temps before the final
// combining instruction.
type selectChain struct {
	result *mir.Instruction
	setup  []*mir.Instruction
}

// normalizeCond materializes `cond != 0` as a 0/1 boolean; JumpCond
// only promises nonzero-means-true, and the mask trick below needs a
// clean 0/1. GVN merges this with an existing comparison when cond
// already is one.
func normalizeCond(fn *mir.Function, cond mir.Value) (*mir.Instruction, mir.Value) {
	boolT := fn.TempMgr.New(mir.I32)
	cmp := mir.NewComp(boolT, mir.Icmp, mir.NE, mir.I32, cond, mir.IntVal(0))
	return cmp, mir.TempVal(boolT)
}

func synthesizeIntSelect(fn *mir.Function, target mir.Temp, cond, a, b mir.Value) *selectChain {
	norm, cond01 := normalizeCond(fn, cond)
	// mask = 0 - cond  (cond is 0/1, so mask is 0 or all-ones)
	maskT := fn.TempMgr.New(mir.I32)
	mask := mir.NewArith(maskT, mir.Sub, mir.I32, mir.IntVal(0), cond01)
	// diff = a - b
	diffT := fn.TempMgr.New(mir.I32)
	diff := mir.NewArith(diffT, mir.Sub, mir.I32, a, b)
	// masked = diff & mask
	maskedT := fn.TempMgr.New(mir.I32)
	masked := mir.NewArith(maskedT, mir.And, mir.I32, mir.TempVal(diffT), mir.TempVal(maskT))
	// result = masked + b
	result := mir.NewArith(target, mir.Add, mir.I32, mir.TempVal(maskedT), b)
	return &selectChain{result: result, setup: []*mir.Instruction{norm, mask, diff, masked}}
}

func synthesizeFloatSelect(fn *mir.Function, target mir.Temp, cond, a, b mir.Value) *selectChain {
	norm, cond01 := normalizeCond(fn, cond)
	// fcond = int2float(cond); result = a*fcond + b*(1-fcond)
	fcondT := fn.TempMgr.New(mir.F32)
	fcond := mir.NewConvert(fcondT, mir.Int2Float, mir.I32, mir.F32, cond01)
	oneMinusT := fn.TempMgr.New(mir.F32)
	oneMinus := mir.NewArith(oneMinusT, mir.Fsub, mir.F32, mir.FloatVal(1), mir.TempVal(fcondT))
	aPartT := fn.TempMgr.New(mir.F32)
	aPart := mir.NewArith(aPartT, mir.Fmul, mir.F32, a, mir.TempVal(fcondT))
	bPartT := fn.TempMgr.New(mir.F32)
	bPart := mir.NewArith(bPartT, mir.Fmul, mir.F32, b, mir.TempVal(oneMinusT))
	result := mir.NewArith(target, mir.Fadd, mir.F32, mir.TempVal(aPartT), mir.TempVal(bPartT))
	return &selectChain{result: result, setup: []*mir.Instruction{norm, fcond, oneMinus, aPart, bPart}}
}

// singleStore returns the lone Store in blk if blk contains exactly one
// instruction and it is a Store (i.e. the arm is "empty of other side
// effects").
func singleStore(blk *mir.BasicBlock) (*mir.Instruction, bool) {
	if len(blk.Phis) != 0 || len(blk.Instrs) != 2 {
		return nil, false
	}
	if blk.Instrs[0].Variant != mir.VStore {
		return nil, false
	}
	if blk.Instrs[1].Variant != mir.VJump {
		return nil, false
	}
	return blk.Instrs[0], true
}

func sameAddr(a, b mir.Value) bool {
	if a.Kind != mir.ValueTempKind || b.Kind != mir.ValueTempKind {
		return false
	}
	return a.Tmp.ID == b.Tmp.ID && a.Tmp.IsGlobal == b.Tmp.IsGlobal && a.Tmp.Name == b.Tmp.Name
}

