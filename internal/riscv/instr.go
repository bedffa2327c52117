package riscv

import "fmt"

// Op enumerates the RISC-V opcodes and selector pseudo-ops this back
// end emits. Li, Mv and La reach Emit and are printed as the
// assembler's own pseudo-instructions; the frame pass replaces the call
// markers with save/restore code and rewrites every Ret outside the
// epilogue into a jump to it (spec §4.C6).
type Op uint8

const (
	OpInvalid Op = iota

	// Integer arithmetic / logic, register-register. The W forms
	// operate on the low 32 bits and sign-extend the result, keeping
	// every I32 value's 64-bit register representation canonical; the
	// full-width forms serve address arithmetic and the 64-bit products
	// constant-division magic needs.
	OpAdd
	OpAddw
	OpSub
	OpSubw
	OpMul
	OpMulw
	OpDiv
	OpDivw
	OpDivu
	OpRem
	OpRemw
	OpRemu
	OpAnd
	OpOr
	OpXor
	OpSll
	OpSllw
	OpSrl
	OpSrlw
	OpSra
	OpSraw
	OpSlt
	OpSltu

	// Integer arithmetic, register-immediate.
	OpAddi
	OpAddiw
	OpAndi
	OpOri
	OpXori
	OpSlli
	OpSlliw
	OpSrli
	OpSrliw
	OpSrai
	OpSraiw
	OpSlti
	OpSltiu

	OpLui
	OpAuipc
	OpLa // pseudo: load address of a global/label into a register

	// Loads/stores.
	OpLw
	OpSw
	OpFlw
	OpFsw
	// OpSd/OpLd move a full 64-bit XLEN word; the frame pass uses these
	// (never the selector) to save/restore ra, the caller's fp, and any
	// callee-saved integer register across the prologue/epilogue,
	// since those are address-width values rather than the 32-bit
	// scalars Lw/Sw move.
	OpSd
	OpLd

	// Control flow.
	OpJal
	OpJalr
	OpBeq
	OpBne
	OpBlt
	OpBge
	OpBltu
	OpBgeu

	// Floating point (single precision, F extension).
	OpFaddS
	OpFsubS
	OpFmulS
	OpFdivS
	OpFmvS
	OpFeqS
	OpFltS
	OpFleS
	OpFcvtSW  // int -> float
	OpFcvtWS  // float -> int, round-to-zero
	OpFmvWX   // move raw bits X -> F, used to materialize float literals

	// Pseudo-ops. Li and Mv are printed as assembler pseudo-instructions;
	// the call markers and the non-epilogue Rets are replaced by the frame pass.
	OpLi              // materialize any 32-bit immediate
	OpMv              // register-register move (int or float, per Reg class)
	OpRetPseudo       // placeholder for the function's logical return; rewritten to `j epilogue` by the frame pass
	OpCallMarkerSave  // TemporaryMarker(Save): caller-save spill point before a Call
	OpCallMarkerRestore
	OpLabel // a bare label definition with no encoding; no stage creates one, block labels are printed from Block.Label
)

// Cond names the signed/unsigned comparison a Blt/Bge family
// instruction tests, recorded separately from Op so selection can
// build one Branch constructor.
type Cond uint8

const (
	CondEQ Cond = iota
	CondNE
	CondLT
	CondGE
	CondLTU
	CondGEU
)

// Operand is either a virtual register, a real (pre-colored) register,
// an immediate, or a function/block label; exactly one of these is
// meaningful per field, discriminated by Kind.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandVReg
	OperandReal
	OperandImm
	OperandLabel
	// OperandSpillSlot names a not-yet-laid-out spill slot by its local
	// byte offset within the spill area; the frame pass resolves every
	// occurrence to a concrete fp-relative ImmOperand once the final
	// frame size (alloca area + spill area + callee-saved area) is
	// known, since regalloc runs before frame layout is decided.
	OperandSpillSlot
	// OperandHi/OperandLo carry the %hi()/%lo() relocation of a label,
	// produced by the la_reduce peephole once it has proven an `la`'s
	// destination is only ever read by a zero-offset load/store in the
	// same block: the `la` becomes an `auipc` against OperandHi, and
	// each such load/store's own offset operand becomes OperandLo.
	OperandHi
	OperandLo
)

type Operand struct {
	Kind  OperandKind
	VReg  VReg
	Real  RealReg
	Class RegClass // for OperandReal, which register file Real indexes
	Imm   int32
	Label string

	SpillOffset int64 // for OperandSpillSlot
}

func VRegOperand(v VReg) Operand { return Operand{Kind: OperandVReg, VReg: v} }
func RealOperand(r RealReg, c RegClass) Operand {
	return Operand{Kind: OperandReal, Real: r, Class: c}
}
func ImmOperand(v int32) Operand    { return Operand{Kind: OperandImm, Imm: v} }
func LabelOperand(l string) Operand { return Operand{Kind: OperandLabel, Label: l} }
func SpillSlotOperand(off int64) Operand { return Operand{Kind: OperandSpillSlot, SpillOffset: off} }
func HiOperand(l string) Operand { return Operand{Kind: OperandHi, Label: l} }
func LoOperand(l string) Operand { return Operand{Kind: OperandLo, Label: l} }

func (o Operand) String() string {
	switch o.Kind {
	case OperandVReg:
		return o.VReg.String()
	case OperandReal:
		return o.Real.Name(o.Class)
	case OperandImm:
		return fmt.Sprintf("%d", o.Imm)
	case OperandLabel:
		return o.Label
	case OperandSpillSlot:
		return fmt.Sprintf("spill+%d", o.SpillOffset)
	case OperandHi:
		return fmt.Sprintf("%%hi(%s)", o.Label)
	case OperandLo:
		return fmt.Sprintf("%%lo(%s)", o.Label)
	default:
		return "<none>"
	}
}

// Instr is one RISC-V instruction (or pseudo-op) in the selector's
// output stream: at most one destination and two sources, plus an
// optional branch/jump target and a call-specific field set.
//
// Memory instructions (Lw/Sw/Flw/Fsw/Sd/Ld) carry an optional immediate
// byte offset alongside their base address register: a load's Dst is
// the destination value, Src1 the base register, and Src2 (when its
// Kind is OperandImm) the offset, 0 when Src2 is unset; a store's Src1
// is the value, Src2 the base register, and Dst (when its Kind is
// OperandImm) the offset, 0 when Dst is unset. Instruction selection
// always folds the offset into the address register itself and leaves
// the offset field unset; the frame pass (§4.C8) sets explicit
// immediate offsets, since ra/fp/callee-save slots and caller-save
// spill slots are addressed relative to sp before a frame-relative
// address register would make sense, and LAReduce sets a %lo()
// (OperandLo) offset on the loads/stores it rewrites.
type Instr struct {
	Op   Op
	Dst  Operand
	Src1 Operand
	Src2 Operand

	Cond   Cond
	Target string // branch/jump target block label

	// Call-specific.
	CallFunc  string
	CallArgs  []Operand
	// CallClobbers is filled in on a CallMarkerSave instruction by the
	// register allocator: the real registers live across this call site
	// that the frame pass must spill to the stack before the Jal and
	// reload after (spec §4.C8's caller-save set, resolved per call site
	// rather than once globally).
	CallClobbers []ClobberedReg

	Comment string
}

func (i *Instr) String() string {
	switch i.Op {
	case OpLabel:
		return i.Target + ":"
	case OpJal:
		// A call writes ra; a plain block-to-block jump must not (bare
		// `jal label` assembles as `jal ra, label`).
		if i.CallFunc != "" {
			return fmt.Sprintf("call %s", i.Target)
		}
		return fmt.Sprintf("j %s", i.Target)
	case OpJalr:
		return fmt.Sprintf("jalr %s, %s(%s)", i.Dst, i.Src2, i.Src1)
	case OpBeq, OpBne, OpBlt, OpBge, OpBltu, OpBgeu:
		return fmt.Sprintf("%s %s, %s, %s", opName(i.Op), i.Src1, i.Src2, i.Target)
	case OpLi:
		return fmt.Sprintf("li %s, %d", i.Dst, i.Src1.Imm)
	case OpMv:
		return fmt.Sprintf("mv %s, %s", i.Dst, i.Src1)
	case OpLa:
		return fmt.Sprintf("la %s, %s", i.Dst, i.Target)
	case OpRetPseudo:
		return "ret"
	case OpSw, OpFsw, OpSd:
		return fmt.Sprintf("%s %s, %s(%s)", opName(i.Op), i.Src1, offsetStr(i.Dst), i.Src2)
	case OpLw, OpFlw, OpLd:
		return fmt.Sprintf("%s %s, %s(%s)", opName(i.Op), i.Dst, offsetStr(i.Src2), i.Src1)
	case OpFcvtWS:
		return fmt.Sprintf("fcvt.w.s %s, %s, rtz", i.Dst, i.Src1)
	case OpCallMarkerSave:
		return "# temporary-save"
	case OpCallMarkerRestore:
		return "# temporary-restore"
	default:
		if i.Dst.Kind != OperandNone && i.Src2.Kind != OperandNone {
			return fmt.Sprintf("%s %s, %s, %s", opName(i.Op), i.Dst, i.Src1, i.Src2)
		}
		if i.Dst.Kind != OperandNone {
			return fmt.Sprintf("%s %s, %s", opName(i.Op), i.Dst, i.Src1)
		}
		return fmt.Sprintf("%s %s, %s", opName(i.Op), i.Src1, i.Src2)
	}
}

var opNames = map[Op]string{
	OpAdd: "add", OpAddw: "addw", OpSub: "sub", OpSubw: "subw",
	OpMul: "mul", OpMulw: "mulw", OpDiv: "div", OpDivw: "divw", OpDivu: "divu",
	OpRem: "rem", OpRemw: "remw", OpRemu: "remu", OpAnd: "and", OpOr: "or", OpXor: "xor",
	OpSll: "sll", OpSllw: "sllw", OpSrl: "srl", OpSrlw: "srlw",
	OpSra: "sra", OpSraw: "sraw", OpSlt: "slt", OpSltu: "sltu",
	OpAddi: "addi", OpAddiw: "addiw", OpAndi: "andi", OpOri: "ori", OpXori: "xori",
	OpSlli: "slli", OpSlliw: "slliw", OpSrli: "srli", OpSrliw: "srliw",
	OpSrai: "srai", OpSraiw: "sraiw", OpSlti: "slti", OpSltiu: "sltiu",
	OpLui: "lui", OpAuipc: "auipc", OpLw: "lw", OpSw: "sw", OpFlw: "flw", OpFsw: "fsw",
	OpSd: "sd", OpLd: "ld",
	OpBeq: "beq", OpBne: "bne", OpBlt: "blt", OpBge: "bge", OpBltu: "bltu", OpBgeu: "bgeu",
	OpFaddS: "fadd.s", OpFsubS: "fsub.s", OpFmulS: "fmul.s", OpFdivS: "fdiv.s",
	OpFmvS: "fmv.s", OpFeqS: "feq.s", OpFltS: "flt.s", OpFleS: "fle.s",
	OpFcvtSW: "fcvt.s.w", OpFcvtWS: "fcvt.w.s", OpFmvWX: "fmv.w.x",
}

// offsetImm reads the immediate byte offset of a memory instruction's
// offset-carrying operand, defaulting to 0 when the selector left it
// unset (the address register already holds the full address).
func offsetImm(op Operand) int32 {
	if op.Kind == OperandImm {
		return op.Imm
	}
	return 0
}

// offsetStr renders a memory instruction's offset-carrying operand: a
// plain decimal immediate in the common case, or the %lo() relocation
// la_reduce leaves behind once it has folded the base register's `la`
// into an `auipc`.
func offsetStr(op Operand) string {
	if op.Kind == OperandLo {
		return op.String()
	}
	return fmt.Sprintf("%d", offsetImm(op))
}

func opName(op Op) string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return "<unknown>"
}
