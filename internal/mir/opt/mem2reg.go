package opt

import (
	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// location is a single promotable memory location: either a whole
// scalar alloca, or one distinct constant-offset slot of an array
// alloca that is only ever accessed through GEP-with-constant-offset.
type location struct {
	key  string
	typ  mir.Type
	addr uint32 // the Alloc temp's id this location was carved from
}

// Mem2Reg promotes loads/stores of promotable scalar locals to SSA
// temps (spec §4.C5.b). An alloca is promotable if its pointer never
// escapes: it is never stored anywhere, never passed to a call, and is
// only dereferenced directly or through a GEP whose offset is a
// compile-time constant.
func Mem2Reg(fn *mir.Function, c *cfg.CFG) (bool, error) {
	changed := false
	allocs := findPromotableAllocas(fn)
	if len(allocs) == 0 {
		return false, nil
	}

	for allocID, info := range allocs {
		locs := info.locations
		for _, loc := range locs {
			if promoteLocation(fn, c, allocID, loc) {
				changed = true
			}
		}
	}
	if changed {
		c.Analysis()
		removeDeadAllocas(fn, allocs)
	}
	return changed, nil
}

type allocaInfo struct {
	typ       mir.Type // element type if scalar; Deref type of the alloc
	isArray   bool
	locations []location
}

// findPromotableAllocas scans every Alloc in fn and decides which are
// promotable, expanding array allocas with only constant-offset GEP
// uses into one location per distinct offset.
func findPromotableAllocas(fn *mir.Function) map[uint32]*allocaInfo {
	result := map[uint32]*allocaInfo{}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if instr.Variant != mir.VAlloc {
				continue
			}
			id := instr.Target.ID
			if !allocaEscapes(fn, id) {
				offs := constantGEPOffsets(fn, id)
				info := &allocaInfo{typ: instr.Type.Deref()}
				if offs == nil {
					info.locations = []location{{key: "scalar", typ: info.typ, addr: id}}
				} else {
					info.isArray = true
					for _, off := range offs {
						info.locations = append(info.locations, location{key: off, typ: info.typ, addr: id})
					}
				}
				result[id] = info
			}
		}
	}
	return result
}

// allocaEscapes reports whether the alloca with the given target id is
// ever stored to memory, passed to a call, or used through a
// non-constant-offset GEP (any of which defeats promotion).
func allocaEscapes(fn *mir.Function, id uint32) bool {
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			switch instr.Variant {
			case mir.VStore:
				if instr.StoreValue.Kind == mir.ValueTempKind && instr.StoreValue.Tmp.ID == id {
					return true
				}
			case mir.VCall:
				for _, p := range instr.CallParams {
					if p.Value.Kind == mir.ValueTempKind && p.Value.Tmp.ID == id {
						return true
					}
				}
			case mir.VGEP:
				if instr.Addr.Kind == mir.ValueTempKind && instr.Addr.Tmp.ID == id {
					if instr.GEPOffset.Kind != mir.ValueInt {
						return true
					}
				}
			}
		}
	}
	return false
}

// constantGEPOffsets returns the deduplicated constant-offset strings
// used to index the alloca, in first-use order, or nil if the alloca is used
// directly as a scalar pointer (no GEP at all).
func constantGEPOffsets(fn *mir.Function, id uint32) []string {
	seen := map[string]bool{}
	var out []string
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if instr.Variant == mir.VGEP && instr.Addr.Kind == mir.ValueTempKind && instr.Addr.Tmp.ID == id {
				key := instr.GEPOffset.String()
				if !seen[key] {
					seen[key] = true
					out = append(out, key)
				}
			}
		}
	}
	return out
}

// promoteLocation runs the classical phi-insertion + dominator-tree
// rewrite for one promotable location.
func promoteLocation(fn *mir.Function, c *cfg.CFG, allocID uint32, loc location) bool {
	defBlocks := defBlocksFor(fn, allocID, loc)
	if len(defBlocks) == 0 {
		return false
	}
	phiBlocks := c.FrontierClosure(defBlocks)

	phiOf := map[uint32]*mir.Instruction{}
	for _, b := range phiBlocks {
		if len(b.Prev) < 2 {
			continue // phi only needed at real join points
		}
		target := fn.TempMgr.New(loc.typ)
		phi := mir.NewPhi(target, loc.typ)
		b.AddPhi(phi)
		phiOf[b.ID] = phi
	}

	changed := false
	var walk func(b *mir.BasicBlock, current mir.Value)
	walk = func(b *mir.BasicBlock, current mir.Value) {
		if phi, ok := phiOf[b.ID]; ok {
			current = mir.TempVal(*phi.Target)
		}
		var kept []*mir.Instruction
		for _, instr := range b.Instrs {
			switch {
			case instr.Variant == mir.VLoad && matchesAddr(fn, instr.Addr, allocID, loc):
				rewriteUses(fn, instr.Target.ID, current)
				changed = true
				continue // drop the load
			case instr.Variant == mir.VStore && matchesAddr(fn, instr.Addr, allocID, loc):
				current = instr.StoreValue
				changed = true
				continue // drop the store
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
	walk(c.Entry(), mir.Value{}) // undefined-before-first-store reads are a front-end bug; zero Value is a harmless placeholder
	return changed
}

// gepOffsetOf reports the constant-offset key that addr resolves to, if
// addr is the result of a GEP off allocID. Array locations are
// identified by this offset (the same distinct offset may be produced
// by many GEP instructions in different blocks, all naming one
// location), not by the GEP instruction's own temp id.
func gepOffsetOf(fn *mir.Function, allocID uint32, addrID uint32) (string, bool) {
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if instr.Variant == mir.VGEP && instr.Target.ID == addrID &&
				instr.Addr.Kind == mir.ValueTempKind && instr.Addr.Tmp.ID == allocID {
				return instr.GEPOffset.String(), true
			}
		}
	}
	return "", false
}

func matchesAddr(fn *mir.Function, addr mir.Value, allocID uint32, loc location) bool {
	if addr.Kind != mir.ValueTempKind {
		return false
	}
	if loc.key == "scalar" {
		return addr.Tmp.ID == allocID
	}
	off, ok := gepOffsetOf(fn, allocID, addr.Tmp.ID)
	return ok && off == loc.key
}

func defBlocksFor(fn *mir.Function, allocID uint32, loc location) []*mir.BasicBlock {
	var out []*mir.BasicBlock
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if instr.Variant == mir.VStore && matchesAddr(fn, instr.Addr, allocID, loc) {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// rewriteUses substitutes every read of oldID throughout fn with repl.
// Used after a load is found to always read the same reaching
// definition.
func rewriteUses(fn *mir.Function, oldID uint32, repl mir.Value) {
	sub := func(v *mir.Value) {
		if v.Kind == mir.ValueTempKind && v.Tmp.ID == oldID {
			*v = repl
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
			sub(&instr.AllocLength)
			if instr.RetValue != nil {
				sub(instr.RetValue)
			}
			for i := range instr.CallParams {
				sub(&instr.CallParams[i].Value)
			}
			for i := range instr.PhiSources {
				sub(&instr.PhiSources[i].Value)
			}
		}
	}
}

// removeDeadAllocas deletes the now-unused Alloc instructions for
// locations that were fully promoted (no remaining Load/Store/GEP use).
func removeDeadAllocas(fn *mir.Function, allocs map[uint32]*allocaInfo) {
	stillUsed := map[uint32]bool{}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			for _, r := range instr.GetRead() {
				if _, ok := allocs[r.ID]; ok {
					stillUsed[r.ID] = true
				}
			}
		}
	}
	for _, b := range fn.Blocks {
		var kept []*mir.Instruction
		for _, instr := range b.Instrs {
			if instr.Variant == mir.VAlloc {
				if _, wasPromotable := allocs[instr.Target.ID]; wasPromotable && !stillUsed[instr.Target.ID] {
					continue
				}
			}
			kept = append(kept, instr)
		}
		b.Instrs = kept
	}
}
