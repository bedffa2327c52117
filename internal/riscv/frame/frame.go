// Package frame implements the stackframe construction pass (spec
// §4.C8): it determines each function's callee-save set, lays out the
// frame (ra, the caller's fp and the used callee-saves sit at the
// bottom of the frame, next to sp, below the locals and spill areas;
// see DESIGN.md), resolves the
// register allocator's provisional spill-slot offsets into concrete
// fp-relative immediates, rewrites the selector's Ret pseudo-op into a
// branch to a single shared epilogue block, and materializes the
// caller-save push/pop sequence the allocator recorded on every call
// site's CallMarkerSave/CallMarkerRestore pair.
package frame

import "sysyc/internal/riscv"

// wordSize is the save-slot width for ra, the caller's fp, and any
// callee-saved integer register: RV64's XLEN, not the 4-byte scalar
// width spill slots use (those hold I32/F32 values, not addresses).
const wordSize = 8

// alignFrame rounds n up to the ABI's 16-byte stack alignment.
func alignFrame(n int64) int64 {
	const align = 16
	return (n + align - 1) &^ (align - 1)
}

// epilogueLabel names the shared exit block every Ret is rewritten to
// jump to, matching spec §4.C6's "the epilogue pass rewrites every Ret
// to a branch to a shared epilogue block labelled exit".
const epilogueLabel = "exit"

// Build runs the C8 pass on fn in place. It must run after register
// allocation (C7, which fills fn.SpillSlots and leaves every spill
// address as an OperandSpillSlot placeholder) and, per spec's
// component ordering, after the result-cache injection (C10) for
// cached functions, since the cache's extra blocks also need a
// prologue/epilogue and share vregs already rewritten to real
// registers.
func Build(fn *riscv.Func) {
	usedCallee := collectUsedCalleeSaved(fn)
	fn.UsedCalleeSaved = usedCallee

	localsSize := alignFrame(fn.FrameSize)
	spillAreaSize := alignFrame(fn.SpillSlots)
	calleeSaveAreaSize := int64(2+len(usedCallee)) * wordSize // ra + old fp + each used callee-save
	frameSize := alignFrame(localsSize + spillAreaSize + calleeSaveAreaSize)
	fn.FrameSize = frameSize

	resolveSpillSlots(fn, localsSize)
	insertCallerSaveSequences(fn)
	rewriteRetPseudo(fn)

	prologue, epilogue := buildPrologueEpilogue(frameSize, usedCallee)
	splicePrologue(fn, prologue)
	fn.Epilogue = epilogue
	fn.Blocks = append(fn.Blocks, epilogue)
}

// collectUsedCalleeSaved scans every instruction's destination operand
// for a write to a callee-saved physical register (spec: "Set of
// callee-save physical registers actually written"), in ascending
// register-number order for deterministic frame layout.
func collectUsedCalleeSaved(fn *riscv.Func) []riscv.ClobberedReg {
	intUsed := map[riscv.RealReg]bool{}
	floatUsed := map[riscv.RealReg]bool{}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if instr.Dst.Kind != riscv.OperandReal {
				continue
			}
			r, c := instr.Dst.Real, instr.Dst.Class
			if c == riscv.RegClassFloat && isCalleeSaved(riscv.FloatCalleeSaved, r) {
				floatUsed[r] = true
			} else if c == riscv.RegClassInt && isCalleeSaved(riscv.IntCalleeSaved, r) {
				intUsed[r] = true
			}
		}
	}
	var out []riscv.ClobberedReg
	for _, r := range riscv.IntCalleeSaved {
		if intUsed[r] {
			out = append(out, riscv.ClobberedReg{Reg: r, Class: riscv.RegClassInt})
		}
	}
	for _, r := range riscv.FloatCalleeSaved {
		if floatUsed[r] {
			out = append(out, riscv.ClobberedReg{Reg: r, Class: riscv.RegClassFloat})
		}
	}
	return out
}

func isCalleeSaved(set []riscv.RealReg, r riscv.RealReg) bool {
	for _, x := range set {
		if x == r {
			return true
		}
	}
	return false
}

// spillSlotSize is the width of one spill slot (I32/F32 scalars).
const spillSlotSize = 4

// addrScratch builds large fp-relative addresses for spill code whose
// final offset outgrew the 12-bit field. t6 is reserved from the
// allocator's palette, and the only instruction shapes reaching here
// are regalloc's own fp-based reload/store: a store's value register is
// always t5, and a reload whose destination is t6 overwrites t6 only
// after the load has used the address held in it.
const addrScratch = riscv.T6

// resolveSpillSlots rewrites every OperandSpillSlot operand (emitted by
// regalloc's reload/spillStore with a 0-based offset into the spill
// area alone) into the concrete negative fp-relative immediate that
// addresses it in the final frame: locals sit in [fp-localsSize, fp),
// the spill area immediately below them. An offset past the 12-bit
// range is expanded into li/add addressing through the reserved
// scratch register instead.
func resolveSpillSlots(fn *riscv.Func, localsSize int64) {
	for _, b := range fn.Blocks {
		var out []*riscv.Instr
		for _, instr := range b.Instrs {
			slotOp := spillSlotOperandOf(instr)
			if slotOp == nil {
				out = append(out, instr)
				continue
			}
			final := localsSize + slotOp.SpillOffset + spillSlotSize
			if riscv.FitsI12(-final) {
				*slotOp = riscv.ImmOperand(int32(-final))
				out = append(out, instr)
				continue
			}
			scr := riscv.RealOperand(addrScratch, riscv.RegClassInt)
			out = append(out,
				&riscv.Instr{Op: riscv.OpLi, Dst: scr, Src1: riscv.ImmOperand(int32(-final))},
				&riscv.Instr{Op: riscv.OpAdd, Dst: scr, Src1: fpReal(), Src2: scr})
			*slotOp = riscv.ImmOperand(0)
			switch instr.Op {
			case riscv.OpSw, riscv.OpFsw, riscv.OpSd:
				instr.Src2 = scr
			default:
				instr.Src1 = scr
			}
			out = append(out, instr)
		}
		b.Instrs = out
	}
}

// spillSlotOperandOf returns the instruction's OperandSpillSlot field,
// if any (loads carry it in Src2, stores in Dst).
func spillSlotOperandOf(instr *riscv.Instr) *riscv.Operand {
	switch {
	case instr.Src2.Kind == riscv.OperandSpillSlot:
		return &instr.Src2
	case instr.Dst.Kind == riscv.OperandSpillSlot:
		return &instr.Dst
	case instr.Src1.Kind == riscv.OperandSpillSlot:
		return &instr.Src1
	}
	return nil
}

// rewriteRetPseudo replaces every OpRetPseudo left by the selector with
// an unconditional jump to the shared epilogue block.
func rewriteRetPseudo(fn *riscv.Func) {
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			if instr.Op == riscv.OpRetPseudo {
				instr.Op = riscv.OpJal
				instr.Target = epilogueLabel
			}
		}
	}
}

// insertCallerSaveSequences replaces every CallMarkerSave/
// CallMarkerRestore pair with the concrete push/pop sequence for the
// clobber set the allocator recorded on the Save marker (spec: "emit a
// local addi sp,sp,-k ... at the matching Restore, emit loads and addi
// sp,sp,+k").
func insertCallerSaveSequences(fn *riscv.Func) {
	for _, b := range fn.Blocks {
		var out []*riscv.Instr
		for _, instr := range b.Instrs {
			switch instr.Op {
			case riscv.OpCallMarkerSave:
				out = append(out, saveSequence(instr.CallClobbers)...)
			case riscv.OpCallMarkerRestore:
				// The matching clobber list lives on the Save marker,
				// already consumed above in program order within the
				// same straight-line block (a call site's Save and
				// Restore never span a branch).
				out = append(out, restoreSequence(lastClobbers)...)
			default:
				out = append(out, instr)
			}
		}
		b.Instrs = out
	}
}

// lastClobbers threads the most recently seen Save marker's clobber
// list to its Restore counterpart. Call sites never interleave (the
// selector emits Save, the call's own instructions, then Restore, all
// in one straight-line run with no branches between), so a single
// package-level slot would alias across blocks if this ran
// concurrently; insertCallerSaveSequences is always run once,
// sequentially, over one function.
var lastClobbers []riscv.ClobberedReg

func saveSequence(clobbers []riscv.ClobberedReg) []*riscv.Instr {
	lastClobbers = clobbers
	if len(clobbers) == 0 {
		return nil
	}
	k := int32(len(clobbers)) * wordSize
	out := []*riscv.Instr{
		{Op: riscv.OpAddi, Dst: spReal(), Src1: spReal(), Src2: riscv.ImmOperand(-k)},
	}
	for i, c := range clobbers {
		out = append(out, &riscv.Instr{
			Op:   storeOpFor(c.Class),
			Src1: riscv.RealOperand(c.Reg, c.Class),
			Src2: riscv.RealOperand(riscv.SP, riscv.RegClassInt),
			Dst:  riscv.ImmOperand(int32(i) * wordSize),
		})
	}
	return out
}

func restoreSequence(clobbers []riscv.ClobberedReg) []*riscv.Instr {
	if len(clobbers) == 0 {
		return nil
	}
	var out []*riscv.Instr
	for i, c := range clobbers {
		out = append(out, &riscv.Instr{
			Op:   loadOpFor(c.Class),
			Dst:  riscv.RealOperand(c.Reg, c.Class),
			Src1: riscv.RealOperand(riscv.SP, riscv.RegClassInt),
			Src2: riscv.ImmOperand(int32(i) * wordSize),
		})
	}
	k := int32(len(clobbers)) * wordSize
	out = append(out, &riscv.Instr{Op: riscv.OpAddi, Dst: spReal(), Src1: spReal(), Src2: riscv.ImmOperand(k)})
	return out
}

func storeOpFor(c riscv.RegClass) riscv.Op {
	if c == riscv.RegClassFloat {
		return riscv.OpFsw
	}
	return riscv.OpSd
}

func loadOpFor(c riscv.RegClass) riscv.Op {
	if c == riscv.RegClassFloat {
		return riscv.OpFlw
	}
	return riscv.OpLd
}

func spReal() riscv.Operand { return riscv.RealOperand(riscv.SP, riscv.RegClassInt) }
func fpReal() riscv.Operand { return riscv.RealOperand(riscv.FP, riscv.RegClassInt) }
func raReal() riscv.Operand { return riscv.RealOperand(riscv.RA, riscv.RegClassInt) }

// buildPrologueEpilogue materializes the fixed entry/exit sequence:
// decrement sp by the whole frame, save ra/old-fp/callee-saves at the
// frame's bottom (small sp-relative offsets stay inside the 12-bit
// field no matter how large the locals area grows), establish the new
// fp, and the exact mirror image on the way out, ending in a bare Ret.
func buildPrologueEpilogue(frameSize int64, usedCallee []riscv.ClobberedReg) (prologue []*riscv.Instr, epilogue *riscv.Block) {
	const raOff, fpOff = 0, wordSize

	prologue = append(prologue, adjustSP(-frameSize)...)
	prologue = append(prologue, &riscv.Instr{Op: riscv.OpSd, Src1: raReal(), Src2: spReal(), Dst: riscv.ImmOperand(raOff)})
	prologue = append(prologue, &riscv.Instr{Op: riscv.OpSd, Src1: fpReal(), Src2: spReal(), Dst: riscv.ImmOperand(fpOff)})
	for i, c := range usedCallee {
		off := int32(i+2) * wordSize
		prologue = append(prologue, &riscv.Instr{Op: storeOpFor(c.Class), Src1: riscv.RealOperand(c.Reg, c.Class), Src2: spReal(), Dst: riscv.ImmOperand(off)})
	}
	prologue = append(prologue, setFP(frameSize)...)

	epilogue = &riscv.Block{Label: epilogueLabel}
	for i, c := range usedCallee {
		off := int32(i+2) * wordSize
		epilogue.AddInstr(&riscv.Instr{Op: loadOpFor(c.Class), Dst: riscv.RealOperand(c.Reg, c.Class), Src1: spReal(), Src2: riscv.ImmOperand(off)})
	}
	epilogue.AddInstr(&riscv.Instr{Op: riscv.OpLd, Dst: fpReal(), Src1: spReal(), Src2: riscv.ImmOperand(fpOff)})
	epilogue.AddInstr(&riscv.Instr{Op: riscv.OpLd, Dst: raReal(), Src1: spReal(), Src2: riscv.ImmOperand(raOff)})
	for _, i := range adjustSP(frameSize) {
		epilogue.AddInstr(i)
	}
	epilogue.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})
	return prologue, epilogue
}

// setFP computes fp = sp + frameSize, via the scratch register when the
// frame outgrows addi's immediate.
func setFP(frameSize int64) []*riscv.Instr {
	if riscv.FitsI12(frameSize) {
		return []*riscv.Instr{{Op: riscv.OpAddi, Dst: fpReal(), Src1: spReal(), Src2: riscv.ImmOperand(int32(frameSize))}}
	}
	scr := riscv.RealOperand(addrScratch, riscv.RegClassInt)
	return []*riscv.Instr{
		{Op: riscv.OpLi, Dst: scr, Src1: riscv.ImmOperand(int32(frameSize))},
		{Op: riscv.OpAdd, Dst: fpReal(), Src1: spReal(), Src2: scr},
	}
}

// adjustSP moves sp by delta, going through the reserved scratch when
// delta doesn't fit an addi immediate (large local arrays).
func adjustSP(delta int64) []*riscv.Instr {
	if riscv.FitsI12(delta) {
		return []*riscv.Instr{{Op: riscv.OpAddi, Dst: spReal(), Src1: spReal(), Src2: riscv.ImmOperand(int32(delta))}}
	}
	scr := riscv.RealOperand(addrScratch, riscv.RegClassInt)
	return []*riscv.Instr{
		{Op: riscv.OpLi, Dst: scr, Src1: riscv.ImmOperand(int32(delta))},
		{Op: riscv.OpAdd, Dst: spReal(), Src1: spReal(), Src2: scr},
	}
}

// splicePrologue prepends the prologue instructions to the function's
// entry block, ahead of any instruction already there (including a
// cache hasher block's own first instruction, when C10 ran first: the
// prologue still must execute before any spill/restore code touches
// the frame it establishes).
func splicePrologue(fn *riscv.Func, prologue []*riscv.Instr) {
	if len(fn.Blocks) == 0 {
		return
	}
	entry := fn.Blocks[0]
	entry.Instrs = append(append([]*riscv.Instr{}, prologue...), entry.Instrs...)
}
