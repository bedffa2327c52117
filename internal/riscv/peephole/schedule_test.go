package peephole

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/riscv"
)

// TestScheduleMovesIndependentWorkBeforeItsConsumer checks that two
// independent `li`s feeding a later add may swap places (no dependency
// ties them; li4 ends up ahead of li0), while an unrelated chain computed only for a
// dependency further downstream gets prioritized by height, without
// ever reordering across the trailing branch barrier.
func TestScheduleMovesIndependentWorkBeforeItsConsumer(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	b := fn.NewBlock("entry")

	v0 := riscv.VReg{ID: 0, Class: riscv.RegClassInt}
	v1 := riscv.VReg{ID: 1, Class: riscv.RegClassInt}
	v2 := riscv.VReg{ID: 2, Class: riscv.RegClassInt}
	v3 := riscv.VReg{ID: 3, Class: riscv.RegClassInt}
	v4 := riscv.VReg{ID: 4, Class: riscv.RegClassInt}

	// v2 = v0 + v1, built from a longer chain (v0 depends on nothing,
	// but v1 depends on v3 depends on v4): the v4->v3->v1 chain has
	// greater height and should schedule before the independent v0 li.
	li0 := &riscv.Instr{Op: riscv.OpLi, Dst: riscv.VRegOperand(v0), Src1: riscv.ImmOperand(1)}
	li4 := &riscv.Instr{Op: riscv.OpLi, Dst: riscv.VRegOperand(v4), Src1: riscv.ImmOperand(2)}
	add3 := &riscv.Instr{Op: riscv.OpAddi, Dst: riscv.VRegOperand(v3), Src1: riscv.VRegOperand(v4), Src2: riscv.ImmOperand(1)}
	add1 := &riscv.Instr{Op: riscv.OpAddi, Dst: riscv.VRegOperand(v1), Src1: riscv.VRegOperand(v3), Src2: riscv.ImmOperand(1)}
	add2 := &riscv.Instr{Op: riscv.OpAdd, Dst: riscv.VRegOperand(v2), Src1: riscv.VRegOperand(v0), Src2: riscv.VRegOperand(v1)}
	br := &riscv.Instr{Op: riscv.OpBeq, Src1: riscv.VRegOperand(v2), Src2: riscv.ImmOperand(0), Target: "then"}

	b.AddInstr(li0)
	b.AddInstr(li4)
	b.AddInstr(add3)
	b.AddInstr(add1)
	b.AddInstr(add2)
	b.AddInstr(br)

	changed := Schedule(fn)
	require.True(t, changed)
	require.Equal(t, br, b.Instrs[len(b.Instrs)-1], "the branch barrier must stay last")

	indexOf := func(i *riscv.Instr) int {
		for idx, x := range b.Instrs {
			if x == i {
				return idx
			}
		}
		return -1
	}
	require.Less(t, indexOf(li4), indexOf(add3))
	require.Less(t, indexOf(add3), indexOf(add1))
	require.Less(t, indexOf(add1), indexOf(add2))
	require.Less(t, indexOf(li0), indexOf(add2))
	require.Less(t, indexOf(li4), indexOf(li0), "the taller v4 chain should be pulled ahead of the independent li")
}
