package frame_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/riscv"
	"sysyc/internal/riscv/frame"
)

// TestBuildPrependsPrologueAndAppendsEpilogue checks spec §4.C8's two
// structural requirements: the frame pass splices a prologue in front
// of the entry block's own instructions and appends a shared epilogue
// block that every rewritten Ret now targets.
func TestBuildPrependsPrologueAndAppendsEpilogue(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	entry := fn.NewBlock("bb0")
	entry.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: riscv.RealOperand(riscv.A0, riscv.RegClassInt), Src1: riscv.RealOperand(riscv.A0, riscv.RegClassInt)})
	entry.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})

	frame.Build(fn)

	require.NotNil(t, fn.Epilogue)
	require.Equal(t, fn.Blocks[len(fn.Blocks)-1], fn.Epilogue, "epilogue must be appended as the function's last block")

	require.Equal(t, riscv.OpAddi, entry.Instrs[0].Op, "prologue's sp decrement must lead the entry block")

	var sawJumpToExit bool
	for _, instr := range entry.Instrs {
		if instr.Op == riscv.OpJal && instr.Target == "exit" {
			sawJumpToExit = true
		}
		require.NotEqual(t, riscv.OpRetPseudo, instr.Op, "every Ret pseudo must be rewritten away")
	}
	require.True(t, sawJumpToExit)
}

// TestBuildSavesUsedCalleeSavedRegisters checks that a function writing
// to a callee-saved physical register (as regalloc does once the
// caller-save palette is exhausted) gets it saved in the prologue and
// restored in the epilogue.
func TestBuildSavesUsedCalleeSavedRegisters(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	entry := fn.NewBlock("bb0")
	entry.AddInstr(&riscv.Instr{Op: riscv.OpLi, Dst: riscv.RealOperand(riscv.S1, riscv.RegClassInt), Src1: riscv.ImmOperand(1)})
	entry.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})

	frame.Build(fn)

	require.Len(t, fn.UsedCalleeSaved, 1)
	require.Equal(t, riscv.S1, fn.UsedCalleeSaved[0].Reg)

	var savedInEntry, restoredInEpilogue bool
	for _, instr := range entry.Instrs {
		if instr.Op == riscv.OpSd && instr.Src1.Kind == riscv.OperandReal && instr.Src1.Real == riscv.S1 {
			savedInEntry = true
		}
	}
	for _, instr := range fn.Epilogue.Instrs {
		if instr.Op == riscv.OpLd && instr.Dst.Kind == riscv.OperandReal && instr.Dst.Real == riscv.S1 {
			restoredInEpilogue = true
		}
	}
	require.True(t, savedInEntry)
	require.True(t, restoredInEpilogue)
}

// TestBuildResolvesSpillSlotsToFpRelativeImmediates checks that an
// OperandSpillSlot placeholder from the allocator is turned into a
// concrete negative fp-relative 12-bit immediate once the frame size
// is known.
func TestBuildResolvesSpillSlotsToFpRelativeImmediates(t *testing.T) {
	fn := &riscv.Func{Name: "f", SpillSlots: 4}
	entry := fn.NewBlock("bb0")
	entry.AddInstr(&riscv.Instr{Op: riscv.OpLw, Dst: riscv.RealOperand(riscv.A0, riscv.RegClassInt), Src1: riscv.RealOperand(riscv.FP, riscv.RegClassInt), Src2: riscv.SpillSlotOperand(0)})
	entry.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})

	frame.Build(fn)

	require.Equal(t, riscv.OperandImm, entry.Instrs[len(entry.Instrs)-2].Src2.Kind)
	require.Less(t, entry.Instrs[len(entry.Instrs)-2].Src2.Imm, int32(0), "a spill slot sits below fp")
}

// TestBuildMaterializesCallerSaveSequence checks the Save/Restore
// marker pair is replaced with a concrete sp-relative push/pop around
// the call, sized to the clobber list regalloc recorded.
func TestBuildMaterializesCallerSaveSequence(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	entry := fn.NewBlock("bb0")
	entry.AddInstr(&riscv.Instr{Op: riscv.OpCallMarkerSave, CallClobbers: []riscv.ClobberedReg{{Reg: riscv.T0, Class: riscv.RegClassInt}}})
	entry.AddInstr(&riscv.Instr{Op: riscv.OpJal, Target: "g"})
	entry.AddInstr(&riscv.Instr{Op: riscv.OpCallMarkerRestore})
	entry.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})

	frame.Build(fn)

	for _, instr := range entry.Instrs {
		require.NotEqual(t, riscv.OpCallMarkerSave, instr.Op)
		require.NotEqual(t, riscv.OpCallMarkerRestore, instr.Op)
	}

	var sawSpAdjust, sawStore int
	for _, instr := range entry.Instrs {
		if instr.Op == riscv.OpAddi && instr.Dst.Kind == riscv.OperandReal && instr.Dst.Real == riscv.SP {
			sawSpAdjust++
		}
		if instr.Op == riscv.OpSd && instr.Src1.Kind == riscv.OperandReal && instr.Src1.Real == riscv.T0 {
			sawStore++
		}
	}
	require.GreaterOrEqual(t, sawSpAdjust, 2, "caller-save push and pop each adjust sp")
	require.Equal(t, 1, sawStore)
}
