package peephole

import "sysyc/internal/riscv"

// liKey identifies a redundant `li` by the constant it materializes.
type liKey struct{ imm int32 }

// addiKey identifies a redundant constant-offset `addi` by its
// (already-canonicalized) base register and the offset added to it.
type addiKey struct {
	base riscv.VReg
	imm  int32
}

// scope is the set of already-computed values visible at a point in the
// dominator tree: every VReg def reachable by walking up through idom,
// the same role mem2reg's per-variable value map plays for MIR.
type scope struct {
	li    map[liKey]riscv.VReg
	addi  map[addiKey]riscv.VReg
	conv  map[riscv.VReg]riscv.VReg // int->float conversion source -> result
	subst map[riscv.VReg]riscv.VReg // redundant def -> its surviving canonical def
}

func newScope() *scope {
	return &scope{
		li:    map[liKey]riscv.VReg{},
		addi:  map[addiKey]riscv.VReg{},
		conv:  map[riscv.VReg]riscv.VReg{},
		subst: map[riscv.VReg]riscv.VReg{},
	}
}

func (s *scope) clone() *scope {
	c := newScope()
	for k, v := range s.li {
		c.li[k] = v
	}
	for k, v := range s.addi {
		c.addi[k] = v
	}
	for k, v := range s.conv {
		c.conv[k] = v
	}
	for k, v := range s.subst {
		c.subst[k] = v
	}
	return c
}

// DedupLoadImm removes redundant constant materialization along each
// dominator-tree path: a repeated `li` of the same constant, a repeated
// `addi` of the same offset off the same base, or a repeated int->float
// conversion of the same source, all collapse to the first computed
// value. Grounded on
// backend/pre_optimizer/src/modify_load_imm.rs's solve_load_imm; unlike
// the original this only dedups within a dominating definition's reach
// and never hoists a constant up to a colder ancestor block
// (detect_load_imm's job there).
func DedupLoadImm(fn *riscv.Func) bool {
	if len(fn.Blocks) == 0 {
		return false
	}
	tree := newDomTree(fn)
	changed := false
	var walk func(b *riscv.Block, s *scope)
	walk = func(b *riscv.Block, s *scope) {
		var kept []*riscv.Instr
		for _, instr := range b.Instrs {
			instr.Src1 = substOperand(instr.Src1, s.subst)
			instr.Src2 = substOperand(instr.Src2, s.subst)
			for i := range instr.CallArgs {
				instr.CallArgs[i] = substOperand(instr.CallArgs[i], s.subst)
			}

			if dropped := tryDedup(instr, s); dropped {
				changed = true
				continue
			}
			kept = append(kept, instr)
		}
		b.Instrs = kept
		for _, child := range tree.children(b) {
			walk(child, s.clone())
		}
	}
	walk(tree.entry(), newScope())
	return changed
}

// tryDedup records instr's definition in s and reports whether instr
// duplicates a value already in scope and can be dropped in favor of it.
func tryDedup(instr *riscv.Instr, s *scope) bool {
	dst, ok := asVReg(instr.Dst)
	if !ok {
		return false
	}
	switch instr.Op {
	case riscv.OpLi:
		key := liKey{imm: instr.Src1.Imm}
		if existing, ok := s.li[key]; ok {
			s.subst[dst] = existing
			return true
		}
		s.li[key] = dst
		return false

	case riscv.OpAddi:
		base, ok := asVReg(instr.Src1)
		if !ok || instr.Src2.Kind != riscv.OperandImm {
			return false
		}
		key := addiKey{base: base, imm: instr.Src2.Imm}
		if existing, ok := s.addi[key]; ok {
			s.subst[dst] = existing
			return true
		}
		s.addi[key] = dst
		return false

	case riscv.OpFcvtSW:
		src, ok := asVReg(instr.Src1)
		if !ok {
			return false
		}
		if existing, ok := s.conv[src]; ok {
			s.subst[dst] = existing
			return true
		}
		s.conv[src] = dst
		return false
	}
	return false
}

func substOperand(op riscv.Operand, subst map[riscv.VReg]riscv.VReg) riscv.Operand {
	v, ok := asVReg(op)
	if !ok {
		return op
	}
	if canon, ok := subst[v]; ok {
		return riscv.VRegOperand(canon)
	}
	return op
}
