package isel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/riscv"
	"sysyc/internal/riscv/isel"
)

// TestSelectRetLowersToMvA0AndRetPseudo checks spec §4.C6: `Ret` emits
// `mv a0, retval` (or the float counterpart) followed by a Ret pseudo,
// to be rewritten by the epilogue pass later.
func TestSelectRetLowersToMvA0AndRetPseudo(t *testing.T) {
	fn := mir.NewFunction("f", nil, mir.I32)
	entry := fn.NewBlock()
	zero := mir.IntVal(7)
	entry.AddInstr(mir.NewRet(&zero))

	rf := isel.SelectFunction(fn)
	require.Len(t, rf.Blocks, 1)
	last2 := rf.Blocks[0].Instrs
	require.GreaterOrEqual(t, len(last2), 2)
	require.Equal(t, riscv.OpMv, last2[len(last2)-2].Op)
	require.Equal(t, riscv.OperandReal, last2[len(last2)-2].Dst.Kind)
	require.Equal(t, riscv.A0, last2[len(last2)-2].Dst.Real)
	require.Equal(t, riscv.OpRetPseudo, last2[len(last2)-1].Op)
}

// TestMulByPowerOfTwoLowersToShiftLeft checks spec §4.C6: multiplying
// by a constant power of two emits slli instead of mul.
func TestMulByPowerOfTwoLowersToShiftLeft(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Value{}, mir.I32)
	a := fn.TempMgr.New(mir.I32)
	fn.Params = []mir.Value{mir.TempVal(a)}
	entry := fn.NewBlock()
	prodT := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewArith(prodT, mir.Mul, mir.I32, mir.TempVal(a), mir.IntVal(8)))
	pv := mir.TempVal(prodT)
	entry.AddInstr(mir.NewRet(&pv))

	rf := isel.SelectFunction(fn)
	var foundShift, foundMul bool
	for _, i := range rf.Blocks[0].Instrs {
		if i.Op == riscv.OpSlliw {
			foundShift = true
		}
		if i.Op == riscv.OpMulw || i.Op == riscv.OpMul {
			foundMul = true
		}
	}
	require.True(t, foundShift, "mul by 8 must lower to a single shift")
	require.False(t, foundMul)
}

// TestMulByShiftableNeighborLowersToShiftAndSub checks the c+1 rule:
// multiplying by 7 emits slliw+subw rather than a mul.
func TestMulByShiftableNeighborLowersToShiftAndSub(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Value{}, mir.I32)
	a := fn.TempMgr.New(mir.I32)
	fn.Params = []mir.Value{mir.TempVal(a)}
	entry := fn.NewBlock()
	prodT := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewArith(prodT, mir.Mul, mir.I32, mir.TempVal(a), mir.IntVal(7)))
	pv := mir.TempVal(prodT)
	entry.AddInstr(mir.NewRet(&pv))

	rf := isel.SelectFunction(fn)
	var foundShift, foundSub, foundMul bool
	for _, i := range rf.Blocks[0].Instrs {
		switch i.Op {
		case riscv.OpSlliw:
			foundShift = true
		case riscv.OpSubw:
			foundSub = true
		case riscv.OpMulw, riscv.OpMul:
			foundMul = true
		}
	}
	require.True(t, foundShift)
	require.True(t, foundSub)
	require.False(t, foundMul)
}

// TestMulByNonPowerOfTwoFallsThroughToMul checks the spec's fallback:
// a multiplier with no power-of-two neighbor lowers to a real mul.
func TestMulByNonPowerOfTwoFallsThroughToMul(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Value{}, mir.I32)
	a := fn.TempMgr.New(mir.I32)
	fn.Params = []mir.Value{mir.TempVal(a)}
	entry := fn.NewBlock()
	prodT := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewArith(prodT, mir.Mul, mir.I32, mir.TempVal(a), mir.IntVal(10)))
	pv := mir.TempVal(prodT)
	entry.AddInstr(mir.NewRet(&pv))

	rf := isel.SelectFunction(fn)
	var foundMul bool
	for _, i := range rf.Blocks[0].Instrs {
		if i.Op == riscv.OpMulw {
			foundMul = true
		}
	}
	require.True(t, foundMul)
}

// TestDivByPowerOfTwoAvoidsDivInstruction checks spec §4.C6's division
// rule: a power-of-two divisor lowers to the sign-bias shift sequence
// with no div instruction at all.
func TestDivByPowerOfTwoAvoidsDivInstruction(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Value{}, mir.I32)
	a := fn.TempMgr.New(mir.I32)
	fn.Params = []mir.Value{mir.TempVal(a)}
	entry := fn.NewBlock()
	q := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewArith(q, mir.Div, mir.I32, mir.TempVal(a), mir.IntVal(8)))
	qv := mir.TempVal(q)
	entry.AddInstr(mir.NewRet(&qv))

	rf := isel.SelectFunction(fn)
	var foundDiv, foundSrai bool
	for _, i := range rf.Blocks[0].Instrs {
		switch i.Op {
		case riscv.OpDiv, riscv.OpDivw:
			foundDiv = true
		case riscv.OpSrai:
			foundSrai = true
		}
	}
	require.False(t, foundDiv)
	require.True(t, foundSrai)
}

// TestDivByConstantUsesMagicMultiply checks the Granlund-Montgomery
// path: a non-power-of-two divisor lowers to a 64-bit multiply and
// shifts rather than a div.
func TestDivByConstantUsesMagicMultiply(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Value{}, mir.I32)
	a := fn.TempMgr.New(mir.I32)
	fn.Params = []mir.Value{mir.TempVal(a)}
	entry := fn.NewBlock()
	q := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewArith(q, mir.Div, mir.I32, mir.TempVal(a), mir.IntVal(7)))
	qv := mir.TempVal(q)
	entry.AddInstr(mir.NewRet(&qv))

	rf := isel.SelectFunction(fn)
	var foundDiv, foundMul bool
	for _, i := range rf.Blocks[0].Instrs {
		switch i.Op {
		case riscv.OpDiv, riscv.OpDivw:
			foundDiv = true
		case riscv.OpMul:
			foundMul = true
		}
	}
	require.False(t, foundDiv)
	require.True(t, foundMul, "constant division must go through the magic multiply")
}

// TestPhiResolutionInsertsCopiesOnPredecessors checks spec §4.C6's
// out-of-SSA step: a phi turns into a move appended to each of its
// predecessors, never a VPhi lowering.
func TestPhiResolutionInsertsCopiesOnPredecessors(t *testing.T) {
	fn := mir.NewFunction("f", nil, mir.I32)
	entryA := fn.NewBlock()
	entryB := fn.NewBlock()
	join := fn.NewBlock()
	mir.AddEdge(entryA, join)
	mir.AddEdge(entryB, join)
	entryA.AddInstr(mir.NewJump(join.Label))
	entryB.AddInstr(mir.NewJump(join.Label))

	phiTarget := fn.TempMgr.New(mir.I32)
	phi := mir.NewPhi(phiTarget, mir.I32)
	phi.AddSource(mir.IntVal(1), entryA.Label)
	phi.AddSource(mir.IntVal(2), entryB.Label)
	join.AddPhi(phi)
	pv := mir.TempVal(phiTarget)
	join.AddInstr(mir.NewRet(&pv))

	rf := isel.SelectFunction(fn)
	rfA := rf.BlockByLabel(string(entryA.Label))
	rfB := rf.BlockByLabel(string(entryB.Label))
	require.GreaterOrEqual(t, len(rfA.Instrs), 2, "phi resolution must insert a move before the jump")
	require.GreaterOrEqual(t, len(rfB.Instrs), 2)
}

func TestSelectProgramCoversEveryFunction(t *testing.T) {
	prog := &mir.Program{Funcs: []*mir.Function{
		mir.NewFunction("a", nil, mir.Void),
		mir.NewFunction("b", nil, mir.Void),
	}}
	prog.Funcs[0].NewBlock().AddInstr(mir.NewRet(nil))
	prog.Funcs[1].NewBlock().AddInstr(mir.NewRet(nil))

	rprog := isel.SelectProgram(prog)
	require.Len(t, rprog.Funcs, 2)
}
