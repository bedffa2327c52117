// Package regalloc assigns real registers to the virtual registers the
// instruction selector produced, running one independent Chaitin-style
// graph-coloring pass per register class (spec §4.C7), grounded on the
// VReg/RealReg naming idiom of wazero's backend/regalloc package (its
// own allocator is linear-scan over live intervals; this one instead
// builds an explicit interference graph, the classical alternative the
// idiom still fits cleanly).
package regalloc

import (
	"sysyc/internal/riscv"
)

// defUse returns the vregs i writes and reads, restricted to class c.
// Dst is the sole definition site; every other vreg-typed operand is a
// use. CallArgs never carry vregs (the selector always moves call
// arguments into real argument registers before the Jal), so they are
// not considered here.
func defUse(i *riscv.Instr, c riscv.RegClass) (def *riscv.VReg, uses []riscv.VReg) {
	if i.Dst.Kind == riscv.OperandVReg && i.Dst.VReg.Class == c {
		v := i.Dst.VReg
		def = &v
	}
	for _, op := range [2]riscv.Operand{i.Src1, i.Src2} {
		if op.Kind == riscv.OperandVReg && op.VReg.Class == c {
			uses = append(uses, op.VReg)
		}
	}
	return def, uses
}

// liveness holds per-block live-in/live-out vreg sets for one class.
type liveness struct {
	in, out map[*riscv.Block]map[uint32]bool
}

// computeLiveness runs the standard backward fixpoint over fn's blocks,
// restricted to class c's vregs.
func computeLiveness(fn *riscv.Func, c riscv.RegClass) *liveness {
	lv := &liveness{in: map[*riscv.Block]map[uint32]bool{}, out: map[*riscv.Block]map[uint32]bool{}}
	for _, b := range fn.Blocks {
		lv.in[b] = map[uint32]bool{}
		lv.out[b] = map[uint32]bool{}
	}

	changed := true
	for changed {
		changed = false
		for bi := len(fn.Blocks) - 1; bi >= 0; bi-- {
			b := fn.Blocks[bi]
			out := map[uint32]bool{}
			for _, succ := range b.Succs {
				for id := range lv.in[succ] {
					out[id] = true
				}
			}

			in := map[uint32]bool{}
			for id := range out {
				in[id] = true
			}
			for idx := len(b.Instrs) - 1; idx >= 0; idx-- {
				def, uses := defUse(b.Instrs[idx], c)
				if def != nil {
					delete(in, def.ID)
				}
				for _, u := range uses {
					in[u.ID] = true
				}
			}

			if !sameSet(in, lv.in[b]) {
				lv.in[b] = in
				changed = true
			}
			if !sameSet(out, lv.out[b]) {
				lv.out[b] = out
				changed = true
			}
		}
	}
	return lv
}

func sameSet(a, b map[uint32]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// PerInstrLive returns, for every block, the set of class-c vreg ids
// live immediately after each instruction (index i of the returned
// slice corresponds to b.Instrs[i]). annotateCallClobbers uses this at a
// CallMarkerSave point to find which assigned real registers actually
// need saving across the call: only vregs live after the marker matter.
func PerInstrLive(fn *riscv.Func, c riscv.RegClass) map[*riscv.Block][]map[uint32]bool {
	lv := computeLiveness(fn, c)
	out := map[*riscv.Block][]map[uint32]bool{}
	for _, b := range fn.Blocks {
		live := map[uint32]bool{}
		for id := range lv.out[b] {
			live[id] = true
		}
		after := make([]map[uint32]bool, len(b.Instrs))
		for idx := len(b.Instrs) - 1; idx >= 0; idx-- {
			snapshot := map[uint32]bool{}
			for id := range live {
				snapshot[id] = true
			}
			after[idx] = snapshot

			def, uses := defUse(b.Instrs[idx], c)
			if def != nil {
				delete(live, def.ID)
			}
			for _, u := range uses {
				live[u.ID] = true
			}
		}
		out[b] = after
	}
	return out
}
