package peephole

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/riscv"
)

// TestLAReduceFoldsIntoAuipcPlusLo checks that an `la` whose destination
// is read only by a zero-offset load in the same block folds into
// `auipc` + a %lo-relocated load offset.
func TestLAReduceFoldsIntoAuipcPlusLo(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	b := fn.NewBlock("entry")

	addr := riscv.VReg{ID: 0, Class: riscv.RegClassInt}
	val := riscv.VReg{ID: 1, Class: riscv.RegClassInt}

	b.AddInstr(&riscv.Instr{Op: riscv.OpLa, Dst: riscv.VRegOperand(addr), Target: "g"})
	b.AddInstr(&riscv.Instr{Op: riscv.OpLw, Dst: riscv.VRegOperand(val), Src1: riscv.VRegOperand(addr)})

	changed := LAReduce(fn)
	require.True(t, changed)
	require.Equal(t, riscv.OpAuipc, b.Instrs[0].Op)
	require.Equal(t, riscv.HiOperand("g"), b.Instrs[0].Src1)
	require.Equal(t, riscv.LoOperand("g"), b.Instrs[1].Src2)
}

// TestLAReduceLeavesLiveOutAddressAlone checks that an `la` whose
// destination is also read outside any qualifying load/store (here, a
// plain arithmetic use) is left as a pseudo-op, since folding it would
// lose the full address that other use needs.
func TestLAReduceLeavesLiveOutAddressAlone(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	b := fn.NewBlock("entry")

	addr := riscv.VReg{ID: 0, Class: riscv.RegClassInt}
	val := riscv.VReg{ID: 1, Class: riscv.RegClassInt}
	sum := riscv.VReg{ID: 2, Class: riscv.RegClassInt}

	b.AddInstr(&riscv.Instr{Op: riscv.OpLa, Dst: riscv.VRegOperand(addr), Target: "g"})
	b.AddInstr(&riscv.Instr{Op: riscv.OpLw, Dst: riscv.VRegOperand(val), Src1: riscv.VRegOperand(addr)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpAdd, Dst: riscv.VRegOperand(sum), Src1: riscv.VRegOperand(addr), Src2: riscv.VRegOperand(val)})

	changed := LAReduce(fn)
	require.False(t, changed)
	require.Equal(t, riscv.OpLa, b.Instrs[0].Op)
}
