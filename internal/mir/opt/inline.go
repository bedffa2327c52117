package opt

import (
	"sysyc/internal/mir"
)

// InlineSizeThreshold bounds the callee size (instruction count)
// eligible for inlining; tunable per spec §9 note (c).
const InlineSizeThreshold = 40

// Inline inlines every call site whose callee is EntranceSingle
// (non-recursive, single call site) and small enough, by cloning the
// callee's blocks into the caller with fresh temps/labels, rewriting the
// call to a jump into the clone's entry, and converting each Ret into a
// Jump to a fresh post-call block joined by a phi over the returned
// values (spec §4.C5.g).
func Inline(prog *mir.Program) (bool, error) {
	byName := map[string]*mir.Function{}
	for _, f := range prog.Funcs {
		byName[f.Name] = f
	}

	changed := false
	for _, caller := range prog.Funcs {
		for {
			site, callee, ok := findInlineSite(caller, byName)
			if !ok {
				break
			}
			inlineCallSite(caller, site.block, site.index, site.instr, callee)
			changed = true
		}
	}
	return changed, nil
}

type callSite struct {
	block *mir.BasicBlock
	index int
	instr *mir.Instruction
}

func findInlineSite(caller *mir.Function, byName map[string]*mir.Function) (callSite, *mir.Function, bool) {
	for _, b := range caller.Blocks {
		for i, instr := range b.Instrs {
			if instr.Variant != mir.VCall {
				continue
			}
			callee, ok := byName[string(instr.CallFunc)]
			if !ok || callee == caller {
				continue
			}
			if callee.Entrance != mir.EntranceSingle {
				continue
			}
			if callee.InstrCount() > InlineSizeThreshold {
				continue
			}
			return callSite{b, i, instr}, callee, true
		}
	}
	return callSite{}, nil, false
}

func inlineCallSite(caller *mir.Function, block *mir.BasicBlock, index int, call *mir.Instruction, callee *mir.Function) {
	tempMap := map[uint32]mir.Temp{}
	labelMap := map[mir.Label]mir.Label{}

	// Bind each callee parameter to the call-site argument. A constant
	// argument is materialized through an identity add so it has a temp
	// to bind to; arithmetic canonicalization folds it straight back out.
	var argSetup []*mir.Instruction
	for i, p := range callee.Params {
		if p.Kind != mir.ValueTempKind {
			continue
		}
		arg := call.CallParams[i].Value
		if arg.Kind == mir.ValueTempKind {
			tempMap[p.Tmp.ID] = arg.Tmp
			continue
		}
		at := caller.TempMgr.New(p.Tmp.Type)
		op := mir.Add
		zero := mir.IntVal(0)
		if p.Tmp.Type.IsFloat() {
			op, zero = mir.Fadd, mir.FloatVal(0)
		}
		argSetup = append(argSetup, mir.NewArith(at, op, p.Tmp.Type, arg, zero))
		tempMap[p.Tmp.ID] = at
	}

	for _, b := range callee.Blocks {
		labelMap[b.Label] = caller.LabelMgr.New()
	}

	// Create fresh clones of every block (order preserved) and a
	// post-call continuation block that the caller's tail resumes in.
	tail := caller.NewBlock()
	tail.Weight = block.Weight
	tail.Instrs = append([]*mir.Instruction(nil), block.Instrs[index+1:]...)
	tail.Phis = nil
	// any outgoing edges of the original block now belong to tail
	for _, s := range append([]*mir.BasicBlock(nil), block.Succ...) {
		mir.RemoveEdge(block, s)
		mir.AddEdge(tail, s)
		for _, phi := range s.Phis {
			phi.RelabelSource(block.Label, tail.Label)
		}
	}

	// The returned value is joined by a phi that reuses the call's own
	// target temp, so every existing use of the call result stays valid.
	// tempMap is keyed by callee temp ids and must not learn this caller
	// id (the two functions' TempManagers issue overlapping numbers).
	var retTemp *mir.Temp
	var retPhi *mir.Instruction
	if callee.RetType != mir.Void && call.Target != nil {
		retTemp = call.Target
	}

	cloned := map[mir.Label]*mir.BasicBlock{}
	var entryClone *mir.BasicBlock
	for _, b := range callee.Blocks {
		nb := caller.NewBlock()
		nb.Label = labelMap[b.Label]
		nb.Weight = b.Weight * block.Weight
		for _, phi := range b.Phis {
			nb.AddPhi(cloneInstr(phi, tempMap, labelMap, caller))
		}
		for _, instr := range b.Instrs {
			ci := cloneInstr(instr, tempMap, labelMap, caller)
			if ci.Variant == mir.VRet {
				if ci.RetValue != nil && retTemp != nil {
					if retPhi == nil {
						rp := mir.NewPhi(*retTemp, callee.RetType)
						retPhi = rp
						tail.AddPhi(rp)
					}
					retPhi.AddSource(*ci.RetValue, nb.Label)
				}
				ci = mir.NewJump(tail.Label)
			}
			nb.AddInstr(ci)
		}
		cloned[b.Label] = nb
		if b == callee.Entry() {
			entryClone = nb
		}
	}
	// Wire intra-callee edges using the clone's own successor labels.
	for _, b := range callee.Blocks {
		nb := cloned[b.Label]
		term := nb.Terminator()
		if term == nil {
			continue
		}
		switch term.Variant {
		case mir.VJump:
			if target := findBlockByClonedLabel(cloned, term.JumpTarget); target != nil {
				mir.AddEdge(nb, target)
			} else {
				mir.AddEdge(nb, tail)
			}
		case mir.VJumpCond:
			if t := findBlockByClonedLabel(cloned, term.TrueTarget); t != nil {
				mir.AddEdge(nb, t)
			}
			if f := findBlockByClonedLabel(cloned, term.FalseTarget); f != nil {
				mir.AddEdge(nb, f)
			}
		}
	}

	// Truncate the original block to its prefix, bind arguments, and
	// jump into the clone.
	block.Instrs = block.Instrs[:index]
	block.Instrs = append(block.Instrs, argSetup...)
	block.Instrs = append(block.Instrs, mir.NewJump(entryClone.Label))
	mir.AddEdge(block, entryClone)
}

func findBlockByClonedLabel(cloned map[mir.Label]*mir.BasicBlock, target mir.Label) *mir.BasicBlock {
	for _, nb := range cloned {
		if nb.Label == target {
			return nb
		}
	}
	return nil
}

// cloneInstr deep-copies instr with every temp/label rewritten through
// tempMap/labelMap, allocating fresh temps in caller for any callee
// temp not already present in tempMap (i.e. every temp the callee
// itself defines).
func cloneInstr(instr *mir.Instruction, tempMap map[uint32]mir.Temp, labelMap map[mir.Label]mir.Label, caller *mir.Function) *mir.Instruction {
	remap := func(v mir.Value) mir.Value {
		if v.Kind != mir.ValueTempKind {
			return v
		}
		if v.Tmp.IsGlobal {
			return v
		}
		if nt, ok := tempMap[v.Tmp.ID]; ok {
			return mir.TempVal(nt)
		}
		nt := caller.TempMgr.New(v.Tmp.Type)
		tempMap[v.Tmp.ID] = nt
		return mir.TempVal(nt)
	}
	remapTarget := func(t *mir.Temp) *mir.Temp {
		if t == nil {
			return nil
		}
		if nt, ok := tempMap[t.ID]; ok {
			return &nt
		}
		nt := caller.TempMgr.New(t.Type)
		tempMap[t.ID] = nt
		return &nt
	}

	clone := *instr
	clone.Target = remapTarget(instr.Target)
	clone.LHS = remap(instr.LHS)
	clone.RHS = remap(instr.RHS)
	clone.Cond = remap(instr.Cond)
	clone.StoreValue = remap(instr.StoreValue)
	clone.Addr = remap(instr.Addr)
	clone.GEPOffset = remap(instr.GEPOffset)
	clone.AllocLength = remap(instr.AllocLength)
	if instr.RetValue != nil {
		v := remap(*instr.RetValue)
		clone.RetValue = &v
	}
	if instr.PhiSources != nil {
		clone.PhiSources = make([]mir.PhiSource, len(instr.PhiSources))
		for i, s := range instr.PhiSources {
			clone.PhiSources[i] = mir.PhiSource{Value: remap(s.Value), Pred: labelMap[s.Pred]}
		}
	}
	if instr.CallParams != nil {
		clone.CallParams = make([]mir.Param, len(instr.CallParams))
		for i, p := range instr.CallParams {
			clone.CallParams[i] = mir.Param{Type: p.Type, Value: remap(p.Value)}
		}
	}
	if target, ok := labelMap[instr.JumpTarget]; ok {
		clone.JumpTarget = target
	}
	if target, ok := labelMap[instr.TrueTarget]; ok {
		clone.TrueTarget = target
	}
	if target, ok := labelMap[instr.FalseTarget]; ok {
		clone.FalseTarget = target
	}
	return &clone
}
