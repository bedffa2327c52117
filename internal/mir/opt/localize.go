package opt

import (
	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// fillZeroWordsThreshold is the minimum run length of consecutive
// zero-stores BatchZeroInit will fold into one __fill_zero_words call;
// below it the per-store code is already as small as the call site
// would be.
const fillZeroWordsThreshold = 4

// LocalizeGlobals promotes a scalar global to an SSA temp within fn
// when fn is the only function in prog that ever touches it directly
// (no GEP, no address escaping through a call or store) and fn itself
// has a single entry point, reusing Mem2Reg's dominator-tree rewrite
// walk scoped to the global's name instead of an alloca id (spec
// §4.C5.n).
func LocalizeGlobals(prog *mir.Program, fn *mir.Function, c *cfg.CFG) (bool, error) {
	if fn.Entrance == mir.EntranceMulti {
		return false, nil
	}
	candidates := localizableGlobals(prog, fn)
	if len(candidates) == 0 {
		return false, nil
	}

	changed := false
	for name, typ := range candidates {
		if promoteGlobal(fn, c, name, typ) {
			changed = true
		}
	}
	if changed {
		c.Analysis()
	}
	return changed, nil
}

// localizedAttr marks the seed load and write-back stores promoteGlobal
// itself inserts, so a later round does not re-promote a global whose
// only remaining accesses are its own bookkeeping.
const localizedAttr = "localized"

// localizableGlobals returns the scalar globals referenced by fn and
// by no other function in prog, excluding any global whose address
// ever escapes (passed to a call, or used through a GEP, in fn or
// anywhere else).
func localizableGlobals(prog *mir.Program, fn *mir.Function) map[string]mir.Type {
	touchedBy := map[string]map[string]bool{}
	escapes := map[string]bool{}
	unmarked := map[string]bool{}
	typeOf := map[string]mir.Type{}

	note := func(addr mir.Value, fname string, typ mir.Type, instr *mir.Instruction) {
		noteGlobalTouch(addr, fname, touchedBy, typeOf, typ)
		if addr.Kind == mir.ValueTempKind && addr.Tmp.IsGlobal {
			if _, marked := instr.Attr(localizedAttr); !marked {
				unmarked[addr.Tmp.Name] = true
			}
		}
	}

	for _, f := range prog.Funcs {
		for _, b := range f.Blocks {
			for _, instr := range b.Instrs {
				switch instr.Variant {
				case mir.VLoad:
					note(instr.Addr, f.Name, instr.Type, instr)
				case mir.VStore:
					note(instr.Addr, f.Name, instr.StoreValue.Type(), instr)
				case mir.VGEP:
					if instr.Addr.Kind == mir.ValueTempKind && instr.Addr.Tmp.IsGlobal {
						escapes[instr.Addr.Tmp.Name] = true
					}
				case mir.VCall:
					for _, p := range instr.CallParams {
						if p.Value.Kind == mir.ValueTempKind && p.Value.Tmp.IsGlobal {
							escapes[p.Value.Tmp.Name] = true
						}
					}
				}
			}
		}
	}

	out := map[string]mir.Type{}
	for name, funcs := range touchedBy {
		if escapes[name] || len(funcs) != 1 || !funcs[fn.Name] || !unmarked[name] {
			continue
		}
		out[name] = typeOf[name]
	}
	return out
}

func noteGlobalTouch(addr mir.Value, fname string, touchedBy map[string]map[string]bool, typeOf map[string]mir.Type, typ mir.Type) {
	if addr.Kind != mir.ValueTempKind || !addr.Tmp.IsGlobal {
		return
	}
	name := addr.Tmp.Name
	if touchedBy[name] == nil {
		touchedBy[name] = map[string]bool{}
	}
	touchedBy[name][fname] = true
	typeOf[name] = typ
}

// promoteGlobal runs the same phi-insertion and dominator walk
// Mem2Reg uses, keyed on the global's name rather than an alloca id.
// Unlike an alloca the global stays observable after fn returns, so a
// seed load at entry gives every path a defined reaching value and a
// write-back store before each Ret restores the final one.
func promoteGlobal(fn *mir.Function, c *cfg.CFG, name string, typ mir.Type) bool {
	matches := func(addr mir.Value) bool {
		return addr.Kind == mir.ValueTempKind && addr.Tmp.IsGlobal && addr.Tmp.Name == name
	}

	var addr mir.Value
	var defBlocks []*mir.BasicBlock
	for _, b := range fn.Blocks {
		touched := false
		for _, instr := range b.Instrs {
			if instr.Variant == mir.VStore && matches(instr.Addr) {
				addr = instr.Addr
				if !touched {
					touched = true
					defBlocks = append(defBlocks, b)
				}
			}
		}
	}
	if len(defBlocks) == 0 {
		return false
	}
	phiBlocks := c.FrontierClosure(defBlocks)

	phiOf := map[uint32]*mir.Instruction{}
	for _, b := range phiBlocks {
		if len(b.Prev) < 2 {
			continue
		}
		target := fn.TempMgr.New(typ)
		phi := mir.NewPhi(target, typ)
		b.AddPhi(phi)
		phiOf[b.ID] = phi
	}

	seed := fn.TempMgr.New(typ)
	seedLoad := mir.NewLoad(seed, typ, addr)
	seedLoad.SetAttr(localizedAttr, name)
	entry := c.Entry()
	entry.Instrs = append([]*mir.Instruction{seedLoad}, entry.Instrs...)

	changed := false
	var walk func(b *mir.BasicBlock, current mir.Value)
	walk = func(b *mir.BasicBlock, current mir.Value) {
		if phi, ok := phiOf[b.ID]; ok {
			current = mir.TempVal(*phi.Target)
		}
		var kept []*mir.Instruction
		for _, instr := range b.Instrs {
			if _, marked := instr.Attr(localizedAttr); marked {
				kept = append(kept, instr)
				continue
			}
			switch {
			case instr.Variant == mir.VLoad && matches(instr.Addr):
				rewriteUses(fn, instr.Target.ID, current)
				changed = true
				continue
			case instr.Variant == mir.VStore && matches(instr.Addr):
				current = instr.StoreValue
				changed = true
				continue
			}
			if instr.Variant == mir.VRet {
				wb := mir.NewStore(current, addr)
				wb.SetAttr(localizedAttr, name)
				kept = append(kept, wb)
				changed = true
			}
			kept = append(kept, instr)
		}
		b.Instrs = kept

		for _, s := range b.Succ {
			if phi, ok := phiOf[s.ID]; ok {
				phi.AddSource(current, b.Label)
			}
		}
		for _, ch := range c.Children(b) {
			walk(ch, current)
		}
	}
	walk(entry, mir.TempVal(seed))
	return changed
}

// BatchZeroInit replaces runs of consecutive zero-stores to
// successive constant offsets of the same base address with one call
// to the runtime helper __fill_zero_words(addr, count), shrinking
// array-initialization code emitted by the front end (spec §4.C5.n).
func BatchZeroInit(fn *mir.Function) (bool, error) {
	changed := false
	for _, b := range fn.Blocks {
		b.Instrs = batchBlockZeroStores(fn, b.Instrs, &changed)
	}
	return changed, nil
}

func batchBlockZeroStores(fn *mir.Function, instrs []*mir.Instruction, changed *bool) []*mir.Instruction {
	geps := gepDefs(fn)
	var out []*mir.Instruction
	i := 0
	for i < len(instrs) {
		run, consumed := zeroStoreRun(instrs[i:], geps)
		if consumed < fillZeroWordsThreshold {
			out = append(out, instrs[i])
			i++
			continue
		}
		out = append(out, fillZeroWordsCall(fn, run, consumed))
		*changed = true
		i += consumed
	}
	return out
}

type zeroRun struct {
	base mir.Value // address of the run's first word
}

// gepDefs maps each GEP target's temp id to its defining instruction,
// so a store address can be resolved back to (base, constant offset).
func gepDefs(fn *mir.Function) map[uint32]*mir.Instruction {
	out := map[uint32]*mir.Instruction{}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if instr.Variant == mir.VGEP && instr.Target != nil {
				out[instr.Target.ID] = instr
			}
		}
	}
	return out
}

// addrBaseOffset resolves a store address to its base pointer and a
// constant byte offset: a GEP-with-literal-offset yields (gep base,
// offset); a bare pointer temp is its own base at offset 0.
func addrBaseOffset(v mir.Value, geps map[uint32]*mir.Instruction) (mir.Value, int32, bool) {
	if v.Kind != mir.ValueTempKind {
		return mir.Value{}, 0, false
	}
	gep, ok := geps[v.Tmp.ID]
	if !ok {
		return v, 0, true
	}
	if gep.GEPOffset.Kind != mir.ValueInt {
		return mir.Value{}, 0, false
	}
	return gep.Addr, gep.GEPOffset.Int, true
}

func sameBase(a, b mir.Value) bool {
	if a.Kind != mir.ValueTempKind || b.Kind != mir.ValueTempKind {
		return false
	}
	if a.Tmp.IsGlobal || b.Tmp.IsGlobal {
		return a.Tmp.IsGlobal && b.Tmp.IsGlobal && a.Tmp.Name == b.Tmp.Name
	}
	return a.Tmp.ID == b.Tmp.ID
}

// zeroStoreRun scans a maximal prefix of consecutive Store-zero
// instructions sharing one base pointer at consecutive ascending word
// offsets, returning the run and how many instructions it consumed.
func zeroStoreRun(instrs []*mir.Instruction, geps map[uint32]*mir.Instruction) (zeroRun, int) {
	first := instrs[0]
	if first.Variant != mir.VStore || !isZero(first.StoreValue) {
		return zeroRun{}, 0
	}
	base, off, ok := addrBaseOffset(first.Addr, geps)
	if !ok {
		return zeroRun{}, 0
	}
	n := 1
	for n < len(instrs) {
		instr := instrs[n]
		if instr.Variant != mir.VStore || !isZero(instr.StoreValue) {
			break
		}
		b, o, ok := addrBaseOffset(instr.Addr, geps)
		if !ok || !sameBase(b, base) || o != off+int32(n)*4 {
			break
		}
		n++
	}
	return zeroRun{base: first.Addr}, n
}

// fillZeroWordsCall synthesizes a void call to __fill_zero_words with
// the run's base address and a word-count literal.
func fillZeroWordsCall(fn *mir.Function, run zeroRun, count int) *mir.Instruction {
	dummy := fn.TempMgr.New(mir.Void)
	return mir.NewCall(dummy, mir.Void, mir.Label("__fill_zero_words"), []mir.Param{
		{Type: run.base.Type(), Value: run.base},
		{Type: mir.I32, Value: mir.IntVal(int32(count))},
	})
}
