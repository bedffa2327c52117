package peephole

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/riscv"
)

// TestBranchCombineFusesSltBne checks that the `slt`+`bne _,0,target`
// pair isel always emits for `a < b` collapses into a single native
// `blt a, b, target`, with the trailing unconditional jump untouched.
func TestBranchCombineFusesSltBne(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	b := fn.NewBlock("entry")

	a := riscv.VReg{ID: 0, Class: riscv.RegClassInt}
	c := riscv.VReg{ID: 1, Class: riscv.RegClassInt}
	cond := riscv.VReg{ID: 2, Class: riscv.RegClassInt}

	b.AddInstr(&riscv.Instr{Op: riscv.OpSlt, Dst: riscv.VRegOperand(cond), Src1: riscv.VRegOperand(a), Src2: riscv.VRegOperand(c)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpBne, Src1: riscv.VRegOperand(cond), Src2: riscv.ImmOperand(0), Target: "then"})
	b.AddInstr(&riscv.Instr{Op: riscv.OpJal, Target: "else"})

	changed := BranchCombine(fn)
	require.True(t, changed)
	require.Len(t, b.Instrs, 2)
	require.Equal(t, riscv.OpBlt, b.Instrs[0].Op)
	require.Equal(t, riscv.VRegOperand(a), b.Instrs[0].Src1)
	require.Equal(t, riscv.VRegOperand(c), b.Instrs[0].Src2)
	require.Equal(t, "then", b.Instrs[0].Target)
	require.Equal(t, riscv.OpJal, b.Instrs[1].Op)
	require.Equal(t, "else", b.Instrs[1].Target)
}

// TestBranchCombineSkipsWhenCompareHasOtherUse checks that a comparison
// result reused elsewhere (e.g. stored into a variable as well as
// branched on) is left alone, since fusing it would drop that other use.
func TestBranchCombineSkipsWhenCompareHasOtherUse(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	b := fn.NewBlock("entry")

	a := riscv.VReg{ID: 0, Class: riscv.RegClassInt}
	c := riscv.VReg{ID: 1, Class: riscv.RegClassInt}
	cond := riscv.VReg{ID: 2, Class: riscv.RegClassInt}
	saved := riscv.VReg{ID: 3, Class: riscv.RegClassInt}

	b.AddInstr(&riscv.Instr{Op: riscv.OpSlt, Dst: riscv.VRegOperand(cond), Src1: riscv.VRegOperand(a), Src2: riscv.VRegOperand(c)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: riscv.VRegOperand(saved), Src1: riscv.VRegOperand(cond)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpBne, Src1: riscv.VRegOperand(cond), Src2: riscv.ImmOperand(0), Target: "then"})
	b.AddInstr(&riscv.Instr{Op: riscv.OpJal, Target: "else"})

	changed := BranchCombine(fn)
	require.False(t, changed)
	require.Len(t, b.Instrs, 4)
}
