package peephole

import "sysyc/internal/riscv"

// LAReduce folds an `la rd, label` pseudo-op into `auipc rd, %hi(label)`
// whenever every read of rd is a zero-offset load or store in the same
// block: each such load/store's offset operand becomes %lo(label)
// against the very register the auipc just computed, so the assembler
// need never re-derive the address with a second relocation pair.
// Grounded on backend/transform/src/la_reduce.rs; unlike the original
// this only fires when rd has no use anywhere else in the function at
// all, standing in for the original's separate liveness analysis
// (la_reduce_func's liveouts parameter) that this back end doesn't
// compute at this stage.
func LAReduce(fn *riscv.Func) bool {
	changed := false
	uses := countVRegUses(fn)
	for _, b := range fn.Blocks {
		if laReduceBlock(b, uses) {
			changed = true
		}
	}
	return changed
}

func laReduceBlock(b *riscv.Block, funcUses map[riscv.VReg]int) bool {
	candidates := map[riscv.VReg]int{} // vreg -> index of its la instr
	labels := map[riscv.VReg]string{}
	qualifying := map[riscv.VReg]int{} // vreg -> count of zero-offset ld/st reading it

	for idx, instr := range b.Instrs {
		if instr.Op == riscv.OpLa {
			if dst, ok := asVReg(instr.Dst); ok {
				candidates[dst] = idx
				labels[dst] = instr.Target
			}
		}
	}
	if len(candidates) == 0 {
		return false
	}

	for _, instr := range b.Instrs {
		base, offset, ok := memOperands(instr)
		if !ok {
			// Not a load/store: any read of a candidate here disqualifies
			// it outright, matching the base-register-must-stay-opaque
			// requirement the original pass checks in its first pass.
			for _, op := range []riscv.Operand{instr.Src1, instr.Src2} {
				if v, ok := asVReg(op); ok {
					delete(candidates, v)
				}
			}
			continue
		}
		v, ok := asVReg(base)
		if !ok {
			continue
		}
		if _, isCandidate := candidates[v]; !isCandidate {
			continue
		}
		if !isZeroOffset(offset) {
			delete(candidates, v)
			continue
		}
		qualifying[v]++
	}

	changed := false
	for v, idx := range candidates {
		if qualifying[v] == 0 || qualifying[v] != funcUses[v] {
			// A read outside this block's qualifying loads/stores means
			// the register is live past this block, which this pass
			// can't prove safe without real liveness data.
			continue
		}
		label := labels[v]
		b.Instrs[idx] = &riscv.Instr{Op: riscv.OpAuipc, Dst: riscv.VRegOperand(v), Src1: riscv.HiOperand(label)}
		for _, instr := range b.Instrs {
			base, _, ok := memOperands(instr)
			if !ok {
				continue
			}
			if bv, ok := asVReg(base); !ok || bv != v {
				continue
			}
			setOffset(instr, riscv.LoOperand(label))
		}
		changed = true
	}
	return changed
}

// memOperands reports the base-register operand and the offset operand
// of a load or store instruction, per the base/offset convention
// Instr's doc comment lays out (Src1/Src2 for loads, Src2/Dst for
// stores); ok is false for anything else.
func memOperands(instr *riscv.Instr) (base, offset riscv.Operand, ok bool) {
	switch instr.Op {
	case riscv.OpLw, riscv.OpFlw, riscv.OpLd:
		return instr.Src1, instr.Src2, true
	case riscv.OpSw, riscv.OpFsw, riscv.OpSd:
		return instr.Src2, instr.Dst, true
	default:
		return riscv.Operand{}, riscv.Operand{}, false
	}
}

func setOffset(instr *riscv.Instr, off riscv.Operand) {
	switch instr.Op {
	case riscv.OpLw, riscv.OpFlw, riscv.OpLd:
		instr.Src2 = off
	case riscv.OpSw, riscv.OpFsw, riscv.OpSd:
		instr.Dst = off
	}
}

func isZeroOffset(op riscv.Operand) bool {
	return op.Kind == riscv.OperandNone || (op.Kind == riscv.OperandImm && op.Imm == 0)
}
