package regalloc

import "sysyc/internal/riscv"

// rewrite replaces every VReg operand in fn with its assigned real
// register, inserting reload/spill-store code around any vreg that did
// not get one. Spilled operands are addressed through a small reserved
// scratch pair per class (see scratchInt/scratchFloat): a use is
// reloaded into scratch[0] (and scratch[1] for a second spilled
// operand) just before the instruction, and a spilled definition is
// written through scratch[0] and stored just after — safe because, by
// the time an instruction's own result is computed, its source
// operands have already been consumed.
func rewrite(fn *riscv.Func, res *Result) {
	for _, b := range fn.Blocks {
		var out []*riscv.Instr
		for _, instr := range b.Instrs {
			out = append(out, rewriteInstr(instr, res)...)
		}
		b.Instrs = out
	}
}

func (res *Result) colorOf(v riscv.VReg) (riscv.RealReg, bool) {
	if v.Class == riscv.RegClassFloat {
		r, ok := res.FloatColor[v.ID]
		return r, ok
	}
	r, ok := res.IntColor[v.ID]
	return r, ok
}

func (res *Result) slotOf(v riscv.VReg) (int64, bool) {
	if v.Class == riscv.RegClassFloat {
		off, ok := res.FloatSpillSlot[v.ID]
		return off, ok
	}
	off, ok := res.IntSpillSlot[v.ID]
	return off, ok
}

func scratchFor(c riscv.RegClass, idx int) riscv.RealReg {
	if c == riscv.RegClassFloat {
		return scratchFloat[idx]
	}
	return scratchInt[idx]
}

func loadOp(c riscv.RegClass) riscv.Op {
	if c == riscv.RegClassFloat {
		return riscv.OpFlw
	}
	return riscv.OpLw
}

func storeOp(c riscv.RegClass) riscv.Op {
	if c == riscv.RegClassFloat {
		return riscv.OpFsw
	}
	return riscv.OpSw
}

// reload materializes the spilled vreg v into scratch with a single
// fp-relative load; the frame pass resolves the slot placeholder to a
// concrete offset (or expands it when the frame outgrows the 12-bit
// field) once the final layout is known.
func reload(out []*riscv.Instr, v riscv.VReg, slot int64, scratch riscv.RealReg) []*riscv.Instr {
	return append(out, &riscv.Instr{
		Op:   loadOp(v.Class),
		Dst:  riscv.RealOperand(scratch, v.Class),
		Src1: riscv.RealOperand(riscv.FP, riscv.RegClassInt),
		Src2: riscv.SpillSlotOperand(slot),
	})
}

// spillStore writes valueScratch (holding the just-computed value for
// spilled vreg v) back to its fp-relative slot.
func spillStore(out []*riscv.Instr, v riscv.VReg, slot int64, valueScratch riscv.RealReg) []*riscv.Instr {
	return append(out, &riscv.Instr{
		Op:   storeOp(v.Class),
		Src1: riscv.RealOperand(valueScratch, v.Class),
		Src2: riscv.RealOperand(riscv.FP, riscv.RegClassInt),
		Dst:  riscv.SpillSlotOperand(slot),
	})
}

func rewriteInstr(instr *riscv.Instr, res *Result) []*riscv.Instr {
	var pre []*riscv.Instr
	var post []*riscv.Instr

	resolveUse := func(op *riscv.Operand, scratchIdx int) {
		if op.Kind != riscv.OperandVReg {
			return
		}
		v := op.VReg
		if c, ok := res.colorOf(v); ok {
			*op = riscv.RealOperand(c, v.Class)
			return
		}
		slot, _ := res.slotOf(v)
		scratch := scratchFor(v.Class, scratchIdx)
		pre = reload(pre, v, slot, scratch)
		*op = riscv.RealOperand(scratch, v.Class)
	}

	resolveUse(&instr.Src1, 0)
	resolveUse(&instr.Src2, 1)

	if instr.Dst.Kind == riscv.OperandVReg {
		v := instr.Dst.VReg
		if c, ok := res.colorOf(v); ok {
			instr.Dst = riscv.RealOperand(c, v.Class)
		} else {
			slot, _ := res.slotOf(v)
			valueScratch := scratchFor(v.Class, 0)
			instr.Dst = riscv.RealOperand(valueScratch, v.Class)
			post = spillStore(post, v, slot, valueScratch)
		}
	}

	out := append(pre, instr)
	out = append(out, post...)
	return out
}
