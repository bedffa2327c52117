// Package peephole runs a small set of post-selection cleanups over the
// virtual-register RISC-V stream, before register allocation fixes
// anything in place: fusing the generic boolean-compare encoding
// instruction selection always emits into native branches, deduplicating
// repeated constant materialization, folding `la` into `auipc`+offset
// where the linker-relaxation pseudo-op would otherwise hide a second
// load, and a short list scheduler that reorders independent arithmetic
// between the barriers real memory/control instructions impose.
package peephole

import "sysyc/internal/riscv"

// BranchCombine recognizes the comparison-then-branch sequences
// lowerComp and isel's JumpCond lowering always produce — `slt`/`xor`
// followed by an optional `xori`/`sltiu`/`sltu` normalization step, then
// `bne dst, zero, target` — and fuses them into RISC-V's native
// branch-on-comparison instructions (blt, bge, beq, bne), whenever the comparison's
// own result has no other use. Grounded on
// backend/pre_optimizer/src/branch_combine.rs, which recovers the same
// native branches from an equivalent generic lowering.
func BranchCombine(fn *riscv.Func) bool {
	changed := false
	uses := countVRegUses(fn)
	for _, b := range fn.Blocks {
		if fused, ok := fuseBlockTail(b.Instrs, uses); ok {
			b.Instrs = fused
			changed = true
		}
	}
	return changed
}

// fuseBlockTail recognizes the pattern at the very end of instrs — the
// shape isel always produces puts the branch pair last — and returns the
// rewritten instruction list if it matched.
func fuseBlockTail(instrs []*riscv.Instr, uses map[riscv.VReg]int) ([]*riscv.Instr, bool) {
	n := len(instrs)
	if n < 2 {
		return instrs, false
	}
	br := instrs[n-2]
	if !isZeroTestBne(br) {
		return instrs, false
	}
	dst, ok := asVReg(br.Src1)
	if !ok {
		return instrs, false
	}

	// The branch is dst's one use for a bare slt; the xori/sltiu/sltu
	// normalizing step reads dst once more, so those shapes count two.
	if n >= 3 && uses[dst] == 1 {
		slt := instrs[n-3]
		if slt.Op == riscv.OpSlt && writesVReg(slt, dst) {
			return spliceBranch(instrs, n-3, riscv.OpBlt, slt.Src1, slt.Src2, br.Target), true
		}
	}
	if n >= 4 && uses[dst] == 2 {
		xori, base := instrs[n-3], instrs[n-4]
		if xori.Op == riscv.OpXori && writesVReg(xori, dst) && isVReg(xori.Src1, dst) && isImm(xori.Src2, 1) &&
			base.Op == riscv.OpSlt && writesVReg(base, dst) {
			return spliceBranch(instrs, n-4, riscv.OpBge, base.Src1, base.Src2, br.Target), true
		}

		cmp, xorI := instrs[n-3], instrs[n-4]
		if xorI.Op == riscv.OpXor && writesVReg(xorI, dst) {
			switch {
			case cmp.Op == riscv.OpSltiu && writesVReg(cmp, dst) && isVReg(cmp.Src1, dst) && isImm(cmp.Src2, 1):
				return spliceBranch(instrs, n-4, riscv.OpBeq, xorI.Src1, xorI.Src2, br.Target), true
			case cmp.Op == riscv.OpSltu && writesVReg(cmp, dst) && isZeroReg(cmp.Src1) && isVReg(cmp.Src2, dst):
				return spliceBranch(instrs, n-4, riscv.OpBne, xorI.Src1, xorI.Src2, br.Target), true
			}
		}
	}
	return instrs, false
}

// spliceBranch replaces instrs[keepUpTo:] (the matched compare sequence
// plus the Bne this function already checked) with a single native
// branch, keeping the trailing Jal (the JumpCond's false-edge jump,
// untouched by this fusion).
func spliceBranch(instrs []*riscv.Instr, keepUpTo int, op riscv.Op, lhs, rhs riscv.Operand, target string) []*riscv.Instr {
	jal := instrs[len(instrs)-1]
	out := append([]*riscv.Instr{}, instrs[:keepUpTo]...)
	out = append(out, &riscv.Instr{Op: op, Src1: lhs, Src2: rhs, Target: target}, jal)
	return out
}

// isZeroTestBne reports whether instr is a `bne _, 0, target` testing a
// boolean result against zero, accepting either an immediate zero or the
// hardwired zero register as instruction selection's own encoding of it.
func isZeroTestBne(instr *riscv.Instr) bool {
	if instr.Op != riscv.OpBne {
		return false
	}
	return isImm(instr.Src2, 0) || isZeroReg(instr.Src2)
}

func isZeroReg(op riscv.Operand) bool {
	return op.Kind == riscv.OperandReal && op.Class == riscv.RegClassInt && op.Real == riscv.X0
}

func asVReg(op riscv.Operand) (riscv.VReg, bool) {
	if op.Kind == riscv.OperandVReg {
		return op.VReg, true
	}
	return riscv.VReg{}, false
}

func writesVReg(instr *riscv.Instr, v riscv.VReg) bool {
	return instr.Dst.Kind == riscv.OperandVReg && instr.Dst.VReg == v
}

func isVReg(op riscv.Operand, v riscv.VReg) bool {
	return op.Kind == riscv.OperandVReg && op.VReg == v
}

func isImm(op riscv.Operand, v int32) bool {
	return op.Kind == riscv.OperandImm && op.Imm == v
}

// countVRegUses counts every read-position occurrence of each VReg
// across fn — Src1/Src2 of every instruction, plus call argument
// operands — so a fusion candidate's comparison result can be confirmed
// dead everywhere except the one branch being folded into it.
func countVRegUses(fn *riscv.Func) map[riscv.VReg]int {
	uses := map[riscv.VReg]int{}
	count := func(op riscv.Operand) {
		if v, ok := asVReg(op); ok {
			uses[v]++
		}
	}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			count(instr.Src1)
			count(instr.Src2)
			for _, a := range instr.CallArgs {
				count(a)
			}
		}
	}
	return uses
}
