// Package isel lowers MIR into the RISC-V virtual-register IR, one
// instruction at a time in program order (spec §4.C6). Phi
// instructions are never selected directly: out-of-SSA resolution
// inserts a move on every incoming edge before selection starts, the
// classical technique the spec calls for ("phi instructions are
// resolved before selection by inserting copies on incoming edges").
package isel

import (
	"math"

	"sysyc/internal/mir"
	"sysyc/internal/riscv"
)

// argRegs are the integer and float argument/return registers SysY's
// calling convention uses; functions with more than 8 arguments of one
// class are outside this selector's scope (spec's front end caps
// parameter counts well below that in practice, and the Non-goals
// exclude variadics).
var intArgRegs = []riscv.RealReg{riscv.A0, riscv.A1, riscv.A2, riscv.A3, riscv.A4, riscv.A5, riscv.A6, riscv.A7}

// floatArgRegs reuses the same numeric indices as intArgRegs: fa0..fa7
// occupy register-file slots 10..17, the same physical index the
// integer a0..a7 occupy in the X file, just resolved through
// floatRegNames instead of intRegNames.
var floatArgRegs = []riscv.RealReg{riscv.A0, riscv.A1, riscv.A2, riscv.A3, riscv.A4, riscv.A5, riscv.A6, riscv.A7}

// SelectProgram lowers every function in prog independently.
func SelectProgram(prog *mir.Program) *riscv.Program {
	out := &riscv.Program{}
	for _, fn := range prog.Funcs {
		out.Funcs = append(out.Funcs, SelectFunction(fn))
	}
	return out
}

type selector struct {
	fn     *mir.Function
	rf     *riscv.Func
	vregOf map[uint32]riscv.VReg
	allocaOff map[uint32]int64
	nextAllocaOff int64
}

// SelectFunction lowers one MIR function to its RISC-V virtual-register
// form.
func SelectFunction(fn *mir.Function) *riscv.Func {
	s := &selector{
		fn:        fn,
		rf:        &riscv.Func{Name: fn.Name, NeedCache: fn.NeedCache},
		vregOf:    map[uint32]riscv.VReg{},
		allocaOff: map[uint32]int64{},
	}
	s.rf.HasRet = fn.RetType != mir.Void
	if s.rf.HasRet {
		s.rf.RetClass = classOf(fn.RetType)
	}

	resolvePhis(fn)

	for _, p := range fn.Params {
		if p.Kind != mir.ValueTempKind {
			continue
		}
		s.rf.Params = append(s.rf.Params, s.vregFor(p.Tmp))
	}

	for _, b := range fn.Blocks {
		rb := s.rf.NewBlock(string(b.Label))
		rb.Weight = b.Weight
	}

	// Incoming arguments arrive in a0../fa0..; copy each into its own
	// vreg at the top of the entry block before the body can clobber
	// the argument registers with its own calls.
	if len(fn.Blocks) > 0 {
		entry := s.rf.BlockByLabel(string(fn.Blocks[0].Label))
		intN, floatN := 0, 0
		for _, p := range fn.Params {
			if p.Kind != mir.ValueTempKind {
				continue
			}
			dst := riscv.VRegOperand(s.vregFor(p.Tmp))
			if classOf(p.Tmp.Type) == riscv.RegClassFloat {
				if floatN < len(floatArgRegs) {
					entry.AddInstr(&riscv.Instr{Op: riscv.OpFmvS, Dst: dst, Src1: riscv.RealOperand(floatArgRegs[floatN], riscv.RegClassFloat)})
					floatN++
				}
			} else {
				if intN < len(intArgRegs) {
					entry.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: dst, Src1: riscv.RealOperand(intArgRegs[intN], riscv.RegClassInt)})
					intN++
				}
			}
		}
	}
	for _, s2 := range fn.Blocks {
		for _, succ := range s2.Succ {
			riscv.AddEdge(s.rf.BlockByLabel(string(s2.Label)), s.rf.BlockByLabel(string(succ.Label)))
		}
	}

	for _, b := range fn.Blocks {
		rb := s.rf.BlockByLabel(string(b.Label))
		for _, instr := range b.Instrs {
			s.lower(rb, instr)
		}
	}

	s.rf.IntVRegCount = s.rf.Regs.IntCount()
	s.rf.FloatVRegCount = s.rf.Regs.FloatCount()
	s.rf.FrameSize = s.nextAllocaOff
	return s.rf
}

// classOf maps a MIR type to its register file. Only an F32 scalar
// value lives in the float file; a pointer is an address regardless of
// its pointee type.
func classOf(t mir.Type) riscv.RegClass {
	if t == mir.F32 {
		return riscv.RegClassFloat
	}
	return riscv.RegClassInt
}

func (s *selector) vregFor(t mir.Temp) riscv.VReg {
	if vr, ok := s.vregOf[t.ID]; ok {
		return vr
	}
	vr := s.rf.Regs.New(classOf(t.Type))
	s.vregOf[t.ID] = vr
	return vr
}

// resolvePhis performs classical out-of-SSA copy insertion: for every
// phi, on every predecessor edge, a move of that edge's source value
// into the phi's own temp is appended just before the predecessor's
// terminator. The phi instructions themselves are then cleared, since
// selection never lowers VPhi directly.
func resolvePhis(fn *mir.Function) {
	for _, b := range fn.Blocks {
		for _, phi := range b.Phis {
			for _, src := range phi.PhiSources {
				pred := fn.BlockByLabel(src.Pred)
				if pred == nil {
					continue
				}
				insertCopyBeforeTerminator(pred, *phi.Target, src.Value)
			}
		}
		b.Phis = nil
	}
}

func insertCopyBeforeTerminator(b *mir.BasicBlock, target mir.Temp, v mir.Value) {
	var copyInstr *mir.Instruction
	if target.Type == mir.F32 {
		copyInstr = mir.NewArith(target, mir.Fadd, target.Type, v, mir.FloatVal(0))
	} else {
		copyInstr = mir.NewArith(target, mir.Add, target.Type, v, mir.IntVal(0))
	}
	if len(b.Instrs) == 0 {
		b.Instrs = append(b.Instrs, copyInstr)
		return
	}
	last := b.Instrs[len(b.Instrs)-1]
	switch last.Variant {
	case mir.VJump, mir.VJumpCond, mir.VRet:
		b.Instrs = append(b.Instrs[:len(b.Instrs)-1], copyInstr, last)
	default:
		b.Instrs = append(b.Instrs, copyInstr)
	}
}

func (s *selector) lower(b *riscv.Block, instr *mir.Instruction) {
	switch instr.Variant {
	case mir.VArith:
		s.lowerArith(b, instr)
	case mir.VComp:
		s.lowerComp(b, instr)
	case mir.VConvert:
		s.lowerConvert(b, instr)
	case mir.VJump:
		b.AddInstr(&riscv.Instr{Op: riscv.OpJal, Target: string(instr.JumpTarget)})
	case mir.VJumpCond:
		cond := s.materialize(b, instr.Cond)
		b.AddInstr(&riscv.Instr{Op: riscv.OpBne, Src1: cond, Src2: riscv.RealOperand(riscv.X0, riscv.RegClassInt), Target: string(instr.TrueTarget)})
		b.AddInstr(&riscv.Instr{Op: riscv.OpJal, Target: string(instr.FalseTarget)})
	case mir.VRet:
		s.lowerRet(b, instr)
	case mir.VAlloc:
		s.lowerAlloc(b, instr)
	case mir.VStore:
		s.lowerStore(b, instr)
	case mir.VLoad:
		s.lowerLoad(b, instr)
	case mir.VGEP:
		s.lowerGEP(b, instr)
	case mir.VCall:
		s.lowerCall(b, instr)
	}
}

// materialize ensures v is sitting in a register operand, emitting a
// Li for a literal constant if necessary (spec's "Li materializes any
// immediate not fitting in the instruction's 12-bit field" generalized
// here to every comparison/branch use site, which always needs a
// register operand regardless of immediate width).
func (s *selector) materialize(b *riscv.Block, v mir.Value) riscv.Operand {
	if v.Kind == mir.ValueTempKind {
		if v.Tmp.IsGlobal {
			return s.loadGlobalAddr(b, v.Tmp)
		}
		return riscv.VRegOperand(s.vregFor(v.Tmp))
	}
	dst := s.rf.Regs.New(riscv.RegClassInt)
	imm := v.Int
	if v.Kind == mir.ValueFloat {
		// The literal's IEEE bit pattern rides through an integer
		// register and fmv.w.x; converting the truncated integer value
		// would lose every fractional literal.
		dst = s.rf.Regs.New(riscv.RegClassFloat)
		itmp := s.rf.Regs.New(riscv.RegClassInt)
		b.AddInstr(&riscv.Instr{Op: riscv.OpLi, Dst: riscv.VRegOperand(itmp), Src1: riscv.ImmOperand(int32(math.Float32bits(v.Flt)))})
		b.AddInstr(&riscv.Instr{Op: riscv.OpFmvWX, Dst: riscv.VRegOperand(dst), Src1: riscv.VRegOperand(itmp)})
		return riscv.VRegOperand(dst)
	}
	b.AddInstr(&riscv.Instr{Op: riscv.OpLi, Dst: riscv.VRegOperand(dst), Src1: riscv.ImmOperand(imm)})
	return riscv.VRegOperand(dst)
}

func (s *selector) loadGlobalAddr(b *riscv.Block, t mir.Temp) riscv.Operand {
	dst := s.rf.Regs.New(riscv.RegClassInt)
	b.AddInstr(&riscv.Instr{Op: riscv.OpLa, Dst: riscv.VRegOperand(dst), Target: t.Name})
	return riscv.VRegOperand(dst)
}

func (s *selector) lowerArith(b *riscv.Block, instr *mir.Instruction) {
	dst := riscv.VRegOperand(s.vregFor(*instr.Target))
	lhs := s.materialize(b, instr.LHS)

	// Pointer-typed adds (phi-resolution copies of addresses) must stay
	// full-width; the W forms would truncate a 64-bit address.
	if instr.Type.IsPointer() && instr.ArithOp == mir.Add {
		if instr.RHS.Kind == mir.ValueInt && riscv.FitsI12(int64(instr.RHS.Int)) {
			b.AddInstr(&riscv.Instr{Op: riscv.OpAddi, Dst: dst, Src1: lhs, Src2: riscv.ImmOperand(instr.RHS.Int)})
			return
		}
		rhs := s.materialize(b, instr.RHS)
		b.AddInstr(&riscv.Instr{Op: riscv.OpAdd, Dst: dst, Src1: lhs, Src2: rhs})
		return
	}

	if op, ok := immArithOp(instr.ArithOp); ok && instr.RHS.Kind == mir.ValueInt && fitsImmField(instr.ArithOp, instr.RHS.Int) {
		b.AddInstr(&riscv.Instr{Op: op, Dst: dst, Src1: lhs, Src2: riscv.ImmOperand(instr.RHS.Int)})
		return
	}
	if instr.RHS.Kind == mir.ValueInt {
		c := instr.RHS.Int
		switch instr.ArithOp {
		case mir.Mul:
			if s.lowerMulConst(b, dst, lhs, c) {
				return
			}
		case mir.Div:
			if c >= 2 && s.lowerDivConst(b, dst, lhs, c) {
				return
			}
		case mir.Rem:
			if c >= 2 && s.lowerRemConst(b, dst, lhs, c) {
				return
			}
		}
	}
	rhs := s.materialize(b, instr.RHS)
	b.AddInstr(&riscv.Instr{Op: regArithOp(instr.ArithOp), Dst: dst, Src1: lhs, Src2: rhs})
}

// lowerMulConst strength-reduces multiplication by c when c, c-1, or
// c+1 is a power of two (spec §4.C6's slli / slli+add / slli+sub
// rules); anything else falls back to a real mul.
func (s *selector) lowerMulConst(b *riscv.Block, dst riscv.Operand, lhs riscv.Operand, c int32) bool {
	switch {
	case riscv.IsPow2(c):
		b.AddInstr(&riscv.Instr{Op: riscv.OpSlliw, Dst: dst, Src1: lhs, Src2: riscv.ImmOperand(riscv.Log2(c))})
	case c > 2 && riscv.IsPow2(c-1):
		t := riscv.VRegOperand(s.rf.Regs.New(riscv.RegClassInt))
		b.AddInstr(&riscv.Instr{Op: riscv.OpSlliw, Dst: t, Src1: lhs, Src2: riscv.ImmOperand(riscv.Log2(c - 1))})
		b.AddInstr(&riscv.Instr{Op: riscv.OpAddw, Dst: dst, Src1: t, Src2: lhs})
	case c > 2 && riscv.IsPow2(c+1):
		t := riscv.VRegOperand(s.rf.Regs.New(riscv.RegClassInt))
		b.AddInstr(&riscv.Instr{Op: riscv.OpSlliw, Dst: t, Src1: lhs, Src2: riscv.ImmOperand(riscv.Log2(c + 1))})
		b.AddInstr(&riscv.Instr{Op: riscv.OpSubw, Dst: dst, Src1: t, Src2: lhs})
	default:
		return false
	}
	return true
}

// lowerDivConst lowers signed division by a positive constant: a power
// of two divides via sign-bias extraction and an arithmetic shift; any
// other divisor multiplies by the Granlund-Montgomery round-up magic
// floor(2^(31+l)/c)+1 in a full 64-bit product, shifts, then converts
// the floor result to C's truncation by adding the dividend's sign bit.
// The 32-bit dividend arrives sign-extended in its 64-bit register, so
// the shift amounts below address the full XLEN word.
func (s *selector) lowerDivConst(b *riscv.Block, dst riscv.Operand, lhs riscv.Operand, c int32) bool {
	newT := func() riscv.Operand { return riscv.VRegOperand(s.rf.Regs.New(riscv.RegClassInt)) }
	if riscv.IsPow2(c) {
		l := riscv.Log2(c)
		sign := newT()
		bias := newT()
		biased := newT()
		b.AddInstr(&riscv.Instr{Op: riscv.OpSrai, Dst: sign, Src1: lhs, Src2: riscv.ImmOperand(31)})
		b.AddInstr(&riscv.Instr{Op: riscv.OpSrli, Dst: bias, Src1: sign, Src2: riscv.ImmOperand(64 - l)})
		b.AddInstr(&riscv.Instr{Op: riscv.OpAdd, Dst: biased, Src1: lhs, Src2: bias})
		b.AddInstr(&riscv.Instr{Op: riscv.OpSrai, Dst: dst, Src1: biased, Src2: riscv.ImmOperand(l)})
		return true
	}

	// p = 31+l keeps the magic below 2^32, so the full 64-bit product
	// of a sign-extended dividend and the magic can't overflow; the
	// round-up error bound m*c - 2^p <= c < 2^l = 2^(p-31) still holds
	// for every dividend in [-2^31, 2^31).
	l := int32(0)
	for (int64(1) << l) < int64(c) {
		l++
	}
	m := (int64(1)<<(31+l))/int64(c) + 1
	magic := s.materializeInt64(b, m)
	prod := newT()
	q := newT()
	sign := newT()
	b.AddInstr(&riscv.Instr{Op: riscv.OpMul, Dst: prod, Src1: lhs, Src2: magic})
	b.AddInstr(&riscv.Instr{Op: riscv.OpSrai, Dst: q, Src1: prod, Src2: riscv.ImmOperand(31 + l)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpSrli, Dst: sign, Src1: lhs, Src2: riscv.ImmOperand(63)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpAddw, Dst: dst, Src1: q, Src2: sign})
	return true
}

// lowerRemConst lowers x rem c as the divisor's bit-twiddle shortcut
// for a power of two, and otherwise as div-by-magic, mul, sub.
func (s *selector) lowerRemConst(b *riscv.Block, dst riscv.Operand, lhs riscv.Operand, c int32) bool {
	newT := func() riscv.Operand { return riscv.VRegOperand(s.rf.Regs.New(riscv.RegClassInt)) }
	if riscv.IsPow2(c) && riscv.FitsI12(int64(-c)) {
		l := riscv.Log2(c)
		sign := newT()
		bias := newT()
		biased := newT()
		floored := newT()
		b.AddInstr(&riscv.Instr{Op: riscv.OpSrai, Dst: sign, Src1: lhs, Src2: riscv.ImmOperand(31)})
		b.AddInstr(&riscv.Instr{Op: riscv.OpSrli, Dst: bias, Src1: sign, Src2: riscv.ImmOperand(64 - l)})
		b.AddInstr(&riscv.Instr{Op: riscv.OpAdd, Dst: biased, Src1: lhs, Src2: bias})
		b.AddInstr(&riscv.Instr{Op: riscv.OpAndi, Dst: floored, Src1: biased, Src2: riscv.ImmOperand(-c)})
		b.AddInstr(&riscv.Instr{Op: riscv.OpSubw, Dst: dst, Src1: lhs, Src2: floored})
		return true
	}
	q := riscv.VRegOperand(s.rf.Regs.New(riscv.RegClassInt))
	if !s.lowerDivConst(b, q, lhs, c) {
		return false
	}
	scaled := newT()
	cv := newT()
	b.AddInstr(&riscv.Instr{Op: riscv.OpLi, Dst: cv, Src1: riscv.ImmOperand(c)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpMulw, Dst: scaled, Src1: q, Src2: cv})
	b.AddInstr(&riscv.Instr{Op: riscv.OpSubw, Dst: dst, Src1: lhs, Src2: scaled})
	return true
}

// materializeInt64 builds a constant too wide for Li's signed 32-bit
// reach (a magic multiplier in [2^31, 2^32)) from its upper and lower
// halves.
func (s *selector) materializeInt64(b *riscv.Block, v int64) riscv.Operand {
	if v >= -(1<<31) && v < (1<<31) {
		t := riscv.VRegOperand(s.rf.Regs.New(riscv.RegClassInt))
		b.AddInstr(&riscv.Instr{Op: riscv.OpLi, Dst: t, Src1: riscv.ImmOperand(int32(v))})
		return t
	}
	hi := riscv.VRegOperand(s.rf.Regs.New(riscv.RegClassInt))
	lo := riscv.VRegOperand(s.rf.Regs.New(riscv.RegClassInt))
	out := riscv.VRegOperand(s.rf.Regs.New(riscv.RegClassInt))
	b.AddInstr(&riscv.Instr{Op: riscv.OpLi, Dst: hi, Src1: riscv.ImmOperand(int32(v >> 12))})
	b.AddInstr(&riscv.Instr{Op: riscv.OpSlli, Dst: hi, Src1: hi, Src2: riscv.ImmOperand(12)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpLi, Dst: lo, Src1: riscv.ImmOperand(int32(v & 0xfff))})
	b.AddInstr(&riscv.Instr{Op: riscv.OpAdd, Dst: out, Src1: hi, Src2: lo})
	return out
}

// fitsImmField reports whether imm can be encoded directly in the
// register-immediate form of op: shifts take a 5-bit shamt (0-31),
// everything else RISC-V's ordinary 12-bit signed immediate.
func fitsImmField(op mir.ArithOp, imm int32) bool {
	switch op {
	case mir.Shl, mir.Lshr, mir.Ashr:
		return imm >= 0 && imm < 32
	default:
		return riscv.FitsI12(int64(imm))
	}
}

// immArithOp and regArithOp pick the W form for I32 arithmetic so each
// result wraps at 32 bits and stays sign-extended in its register; the
// full-width forms are reserved for address arithmetic and the
// division-magic products built explicitly below.
func immArithOp(op mir.ArithOp) (riscv.Op, bool) {
	switch op {
	case mir.Add:
		return riscv.OpAddiw, true
	case mir.And:
		return riscv.OpAndi, true
	case mir.Or:
		return riscv.OpOri, true
	case mir.Xor:
		return riscv.OpXori, true
	case mir.Shl:
		return riscv.OpSlliw, true
	case mir.Lshr:
		return riscv.OpSrliw, true
	case mir.Ashr:
		return riscv.OpSraiw, true
	default:
		return riscv.OpInvalid, false
	}
}

func regArithOp(op mir.ArithOp) riscv.Op {
	switch op {
	case mir.Add:
		return riscv.OpAddw
	case mir.Sub:
		return riscv.OpSubw
	case mir.Mul:
		return riscv.OpMulw
	case mir.Div:
		return riscv.OpDivw
	case mir.Rem:
		return riscv.OpRemw
	case mir.And:
		return riscv.OpAnd
	case mir.Or:
		return riscv.OpOr
	case mir.Xor:
		return riscv.OpXor
	case mir.Shl:
		return riscv.OpSllw
	case mir.Lshr:
		return riscv.OpSrlw
	case mir.Ashr:
		return riscv.OpSraw
	case mir.Fadd:
		return riscv.OpFaddS
	case mir.Fsub:
		return riscv.OpFsubS
	case mir.Fmul:
		return riscv.OpFmulS
	case mir.Fdiv:
		return riscv.OpFdivS
	default:
		return riscv.OpInvalid
	}
}

// lowerComp implements the spec's slt/sltu/xori comparison sequences:
// `<` is a direct slt; `>` swaps the operands, `>=` negates the slt
// with `xori rd, rd, 1`, and `<=` does both; `==`/`!=` xor the operands
// and test the difference with sltiu/sltu.
func (s *selector) lowerComp(b *riscv.Block, instr *mir.Instruction) {
	dst := riscv.VRegOperand(s.vregFor(*instr.Target))
	if instr.CompKind == mir.Fcmp {
		lhs := s.materialize(b, instr.LHS)
		rhs := s.materialize(b, instr.RHS)
		switch instr.CompOp {
		case mir.OEQ:
			b.AddInstr(&riscv.Instr{Op: riscv.OpFeqS, Dst: dst, Src1: lhs, Src2: rhs})
		case mir.ONE:
			b.AddInstr(&riscv.Instr{Op: riscv.OpFeqS, Dst: dst, Src1: lhs, Src2: rhs})
			b.AddInstr(&riscv.Instr{Op: riscv.OpXori, Dst: dst, Src1: dst, Src2: riscv.ImmOperand(1)})
		case mir.OLT:
			b.AddInstr(&riscv.Instr{Op: riscv.OpFltS, Dst: dst, Src1: lhs, Src2: rhs})
		case mir.OLE:
			b.AddInstr(&riscv.Instr{Op: riscv.OpFleS, Dst: dst, Src1: lhs, Src2: rhs})
		case mir.OGT:
			b.AddInstr(&riscv.Instr{Op: riscv.OpFltS, Dst: dst, Src1: rhs, Src2: lhs})
		case mir.OGE:
			b.AddInstr(&riscv.Instr{Op: riscv.OpFleS, Dst: dst, Src1: rhs, Src2: lhs})
		}
		return
	}

	lhs := s.materialize(b, instr.LHS)
	rhs := s.materialize(b, instr.RHS)
	switch instr.CompOp {
	case mir.SLT:
		b.AddInstr(&riscv.Instr{Op: riscv.OpSlt, Dst: dst, Src1: lhs, Src2: rhs})
	case mir.SGT:
		b.AddInstr(&riscv.Instr{Op: riscv.OpSlt, Dst: dst, Src1: rhs, Src2: lhs})
	case mir.SGE:
		b.AddInstr(&riscv.Instr{Op: riscv.OpSlt, Dst: dst, Src1: lhs, Src2: rhs})
		b.AddInstr(&riscv.Instr{Op: riscv.OpXori, Dst: dst, Src1: dst, Src2: riscv.ImmOperand(1)})
	case mir.SLE:
		b.AddInstr(&riscv.Instr{Op: riscv.OpSlt, Dst: dst, Src1: rhs, Src2: lhs})
		b.AddInstr(&riscv.Instr{Op: riscv.OpXori, Dst: dst, Src1: dst, Src2: riscv.ImmOperand(1)})
	case mir.EQ:
		b.AddInstr(&riscv.Instr{Op: riscv.OpXor, Dst: dst, Src1: lhs, Src2: rhs})
		b.AddInstr(&riscv.Instr{Op: riscv.OpSltiu, Dst: dst, Src1: dst, Src2: riscv.ImmOperand(1)})
	case mir.NE:
		b.AddInstr(&riscv.Instr{Op: riscv.OpXor, Dst: dst, Src1: lhs, Src2: rhs})
		b.AddInstr(&riscv.Instr{Op: riscv.OpSltu, Dst: dst, Src1: riscv.RealOperand(riscv.X0, riscv.RegClassInt), Src2: dst})
	}
}

func (s *selector) lowerConvert(b *riscv.Block, instr *mir.Instruction) {
	dst := riscv.VRegOperand(s.vregFor(*instr.Target))
	src := s.materialize(b, instr.LHS)
	if instr.FromType.IsFloat() && !instr.Type.IsFloat() {
		b.AddInstr(&riscv.Instr{Op: riscv.OpFcvtWS, Dst: dst, Src1: src})
	} else if !instr.FromType.IsFloat() && instr.Type.IsFloat() {
		b.AddInstr(&riscv.Instr{Op: riscv.OpFcvtSW, Dst: dst, Src1: src})
	} else {
		b.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: dst, Src1: src})
	}
}

func (s *selector) lowerRet(b *riscv.Block, instr *mir.Instruction) {
	if instr.RetValue != nil {
		v := s.materialize(b, *instr.RetValue)
		if instr.RetValue.Type().IsFloat() {
			b.AddInstr(&riscv.Instr{Op: riscv.OpFmvS, Dst: riscv.RealOperand(riscv.A0, riscv.RegClassFloat), Src1: v})
		} else {
			b.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: riscv.RealOperand(riscv.A0, riscv.RegClassInt), Src1: v})
		}
	}
	b.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})
}

// lowerAlloc assigns a constant-length alloca a frame-pointer-relative
// slot; the offset is final immediately (fp anchors the locals area
// regardless of how much the prologue later grows the frame for
// spills/saves). A non-constant length (spec §4.C6: "non-constant
// allocas use a subtract") decrements sp by the runtime size instead
// and hands out sp as the address.
func (s *selector) lowerAlloc(b *riscv.Block, instr *mir.Instruction) {
	dst := riscv.VRegOperand(s.vregFor(*instr.Target))

	if instr.AllocLength.Kind != mir.ValueInt {
		length := s.materialize(b, instr.AllocLength)
		b.AddInstr(&riscv.Instr{Op: riscv.OpSub, Dst: riscv.RealOperand(riscv.SP, riscv.RegClassInt), Src1: riscv.RealOperand(riscv.SP, riscv.RegClassInt), Src2: length})
		b.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: dst, Src1: riscv.RealOperand(riscv.SP, riscv.RegClassInt)})
		return
	}

	size := mir.AlignArrayBytes(int64(instr.AllocLength.Int))
	if size == 0 {
		size = mir.ElemSize
	}
	s.nextAllocaOff += size
	off := s.nextAllocaOff
	s.allocaOff[instr.Target.ID] = off

	fp := riscv.RealOperand(riscv.FP, riscv.RegClassInt)
	if riscv.FitsI12(-off) {
		b.AddInstr(&riscv.Instr{Op: riscv.OpAddi, Dst: dst, Src1: fp, Src2: riscv.ImmOperand(int32(-off))})
		return
	}
	b.AddInstr(&riscv.Instr{Op: riscv.OpLi, Dst: dst, Src1: riscv.ImmOperand(int32(-off))})
	b.AddInstr(&riscv.Instr{Op: riscv.OpAdd, Dst: dst, Src1: fp, Src2: dst})
}

func (s *selector) lowerStore(b *riscv.Block, instr *mir.Instruction) {
	addr := s.materialize(b, instr.Addr)
	val := s.materialize(b, instr.StoreValue)
	op := riscv.OpSw
	if instr.StoreValue.Type().IsFloat() {
		op = riscv.OpFsw
	}
	b.AddInstr(&riscv.Instr{Op: op, Src1: val, Src2: addr})
}

func (s *selector) lowerLoad(b *riscv.Block, instr *mir.Instruction) {
	dst := riscv.VRegOperand(s.vregFor(*instr.Target))
	addr := s.materialize(b, instr.Addr)
	op := riscv.OpLw
	if instr.Type.IsFloat() {
		op = riscv.OpFlw
	}
	b.AddInstr(&riscv.Instr{Op: op, Dst: dst, Src1: addr})
}

// lowerGEP computes base + offset*ElemSize, folding a constant offset
// into a single addi when it still fits the 12-bit field.
func (s *selector) lowerGEP(b *riscv.Block, instr *mir.Instruction) {
	dst := riscv.VRegOperand(s.vregFor(*instr.Target))
	base := s.materialize(b, instr.Addr)
	if instr.GEPOffset.Kind == mir.ValueInt {
		bytes := int64(instr.GEPOffset.Int) * mir.ElemSize
		if riscv.FitsI12(bytes) {
			b.AddInstr(&riscv.Instr{Op: riscv.OpAddi, Dst: dst, Src1: base, Src2: riscv.ImmOperand(int32(bytes))})
			return
		}
	}
	offReg := s.materialize(b, instr.GEPOffset)
	scaled := s.rf.Regs.New(riscv.RegClassInt)
	b.AddInstr(&riscv.Instr{Op: riscv.OpSlli, Dst: riscv.VRegOperand(scaled), Src1: offReg, Src2: riscv.ImmOperand(2)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpAdd, Dst: dst, Src1: base, Src2: riscv.VRegOperand(scaled)})
}

func (s *selector) lowerCall(b *riscv.Block, instr *mir.Instruction) {
	b.AddInstr(&riscv.Instr{Op: riscv.OpCallMarkerSave})

	intN, floatN := 0, 0
	for _, p := range instr.CallParams {
		v := s.materialize(b, p.Value)
		if classOf(p.Type) == riscv.RegClassFloat {
			if floatN < len(floatArgRegs) {
				b.AddInstr(&riscv.Instr{Op: riscv.OpFmvS, Dst: riscv.RealOperand(floatArgRegs[floatN], riscv.RegClassFloat), Src1: v})
				floatN++
			}
		} else {
			if intN < len(intArgRegs) {
				b.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: riscv.RealOperand(intArgRegs[intN], riscv.RegClassInt), Src1: v})
				intN++
			}
		}
	}

	b.AddInstr(&riscv.Instr{Op: riscv.OpJal, Dst: riscv.RealOperand(riscv.RA, riscv.RegClassInt), Target: string(instr.CallFunc), CallFunc: string(instr.CallFunc)})

	if instr.Target != nil && instr.Type != mir.Void {
		dst := riscv.VRegOperand(s.vregFor(*instr.Target))
		if instr.Type.IsFloat() {
			b.AddInstr(&riscv.Instr{Op: riscv.OpFmvS, Dst: dst, Src1: riscv.RealOperand(riscv.A0, riscv.RegClassFloat)})
		} else {
			b.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: dst, Src1: riscv.RealOperand(riscv.A0, riscv.RegClassInt)})
		}
	}
	b.AddInstr(&riscv.Instr{Op: riscv.OpCallMarkerRestore})
}
