package regalloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/riscv"
	"sysyc/internal/riscv/regalloc"
)

// TestAllocateColorsDisjointLiveRanges checks the common case: two
// vregs whose live ranges never overlap may be allocated without any
// spill code inserted.
func TestAllocateColorsDisjointLiveRanges(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	b := fn.NewBlock("entry")

	a := fn.Regs.New(riscv.RegClassInt)
	c := fn.Regs.New(riscv.RegClassInt)

	b.AddInstr(&riscv.Instr{Op: riscv.OpLi, Dst: riscv.VRegOperand(a), Src1: riscv.ImmOperand(1)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: riscv.RealOperand(riscv.A0, riscv.RegClassInt), Src1: riscv.VRegOperand(a)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpLi, Dst: riscv.VRegOperand(c), Src1: riscv.ImmOperand(2)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: riscv.RealOperand(riscv.A0, riscv.RegClassInt), Src1: riscv.VRegOperand(c)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})

	res := regalloc.Allocate(fn)
	require.Len(t, res.IntColor, 2)
	require.Empty(t, res.IntSpillSlot, "disjoint ranges need no spill slots")

	for _, instr := range b.Instrs {
		require.NotEqual(t, riscv.OperandVReg, instr.Dst.Kind, "rewrite must replace every vreg destination")
		require.NotEqual(t, riscv.OperandVReg, instr.Src1.Kind)
		require.NotEqual(t, riscv.OperandVReg, instr.Src2.Kind)
	}
}

// TestAllocateSpillsWhenPaletteExhausted forces more simultaneously
// live int vregs than the allocatable palette has colors, and checks
// that Allocate falls back to a frame spill slot rather than failing,
// and that every operand is still fully resolved to a real register
// (reload/store code substitutes for the missing color).
func TestAllocateSpillsWhenPaletteExhausted(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	b := fn.NewBlock("entry")

	const n = 40 // comfortably more than IntAllocatable() minus reserved scratch/cache regs
	vregs := make([]riscv.VReg, n)
	for i := range vregs {
		vregs[i] = fn.Regs.New(riscv.RegClassInt)
		b.AddInstr(&riscv.Instr{Op: riscv.OpLi, Dst: riscv.VRegOperand(vregs[i]), Src1: riscv.ImmOperand(int32(i))})
	}
	// Keep every one of them live simultaneously by summing them all at
	// the end, forcing the interference graph into a clique.
	acc := vregs[0]
	for i := 1; i < n; i++ {
		next := fn.Regs.New(riscv.RegClassInt)
		b.AddInstr(&riscv.Instr{Op: riscv.OpAdd, Dst: riscv.VRegOperand(next), Src1: riscv.VRegOperand(acc), Src2: riscv.VRegOperand(vregs[i])})
		acc = next
	}
	b.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: riscv.RealOperand(riscv.A0, riscv.RegClassInt), Src1: riscv.VRegOperand(acc)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})

	res := regalloc.Allocate(fn)
	require.NotEmpty(t, res.IntSpillSlot, "exhausting the palette must produce at least one spill")
	require.Greater(t, fn.SpillSlots, int64(0))

	for _, instr := range b.Instrs {
		require.NotEqual(t, riscv.OperandVReg, instr.Dst.Kind)
		require.NotEqual(t, riscv.OperandVReg, instr.Src1.Kind)
		require.NotEqual(t, riscv.OperandVReg, instr.Src2.Kind)
	}
}

// TestAllocateCoalescesMoveRelatedPair checks the conservative
// coalescing step: a vreg-to-vreg move between non-interfering vregs
// merges the pair and the move itself disappears from the stream.
func TestAllocateCoalescesMoveRelatedPair(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	b := fn.NewBlock("entry")

	a := fn.Regs.New(riscv.RegClassInt)
	m := fn.Regs.New(riscv.RegClassInt)
	b.AddInstr(&riscv.Instr{Op: riscv.OpLi, Dst: riscv.VRegOperand(a), Src1: riscv.ImmOperand(7)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: riscv.VRegOperand(m), Src1: riscv.VRegOperand(a)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: riscv.RealOperand(riscv.A0, riscv.RegClassInt), Src1: riscv.VRegOperand(m)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})

	regalloc.Allocate(fn)

	var mvs int
	for _, instr := range b.Instrs {
		if instr.Op == riscv.OpMv {
			mvs++
		}
	}
	require.Equal(t, 1, mvs, "only the move into a0 survives; the vreg-to-vreg copy coalesces away")
}

// TestAllocateAnnotatesCallClobbers checks spec §4.C8: a CallMarkerSave
// records which caller-saved real registers are live across the call
// site so the frame pass knows what to spill.
func TestAllocateAnnotatesCallClobbers(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	b := fn.NewBlock("entry")

	live := fn.Regs.New(riscv.RegClassInt)
	b.AddInstr(&riscv.Instr{Op: riscv.OpLi, Dst: riscv.VRegOperand(live), Src1: riscv.ImmOperand(9)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpCallMarkerSave})
	b.AddInstr(&riscv.Instr{Op: riscv.OpJal, Target: "g"})
	b.AddInstr(&riscv.Instr{Op: riscv.OpCallMarkerRestore})
	b.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: riscv.RealOperand(riscv.A0, riscv.RegClassInt), Src1: riscv.VRegOperand(live)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})

	regalloc.Allocate(fn)

	var marker *riscv.Instr
	for _, instr := range b.Instrs {
		if instr.Op == riscv.OpCallMarkerSave {
			marker = instr
			break
		}
	}
	require.NotNil(t, marker)
	require.NotEmpty(t, marker.CallClobbers, "the live vreg across the call must be recorded as a clobber to save")
}
