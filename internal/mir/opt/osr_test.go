package opt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
	"sysyc/internal/mir/opt"
)

// buildCountedStoreLoop builds the canonical two-block counted loop
//
//	for (i = 0; i < 100; i++) { body... }
//
// with the given body builder run against the body block, returning
// the function and its blocks. The loop's counter phi value is handed
// to the body builder.
func buildCountedStoreLoop(body func(fn *mir.Function, blk *mir.BasicBlock, iv mir.Value)) (*mir.Function, *mir.BasicBlock, *mir.BasicBlock, *mir.BasicBlock) {
	fn := mir.NewFunction("f", nil, mir.Void)
	p := fn.TempMgr.New(mir.I32Ptr)
	fn.Params = []mir.Value{mir.TempVal(p)}

	entry := fn.NewBlock()
	header := fn.NewBlock()
	bodyBlk := fn.NewBlock()
	exit := fn.NewBlock()

	entry.AddInstr(mir.NewJump(header.Label))
	mir.AddEdge(entry, header)

	iPhiT := fn.TempMgr.New(mir.I32)
	iPhi := mir.NewPhi(iPhiT, mir.I32)
	header.AddPhi(iPhi)
	cmpT := fn.TempMgr.New(mir.I32)
	header.AddInstr(mir.NewComp(cmpT, mir.Icmp, mir.SLT, mir.I32, mir.TempVal(iPhiT), mir.IntVal(100)))
	header.AddInstr(mir.NewJumpCond(mir.TempVal(cmpT), mir.I32, bodyBlk.Label, exit.Label))
	mir.AddEdge(header, bodyBlk)
	mir.AddEdge(header, exit)

	body(fn, bodyBlk, mir.TempVal(iPhiT))

	i2 := fn.TempMgr.New(mir.I32)
	bodyBlk.AddInstr(mir.NewArith(i2, mir.Add, mir.I32, mir.TempVal(iPhiT), mir.IntVal(1)))
	bodyBlk.AddInstr(mir.NewJump(header.Label))
	mir.AddEdge(bodyBlk, header)
	iPhi.AddSource(mir.IntVal(0), entry.Label)
	iPhi.AddSource(mir.TempVal(i2), bodyBlk.Label)

	exit.AddInstr(mir.NewRet(nil))
	return fn, entry, header, bodyBlk
}

// TestOSRReplacesLoopMultiplication checks the Cocke-Markstein rule:
// `x = iv * 5` inside the loop becomes a fresh induction variable
// stepped by 5, and the multiplication disappears from the body.
func TestOSRReplacesLoopMultiplication(t *testing.T) {
	fn, entry, header, bodyBlk := buildCountedStoreLoop(func(fn *mir.Function, blk *mir.BasicBlock, iv mir.Value) {
		x := fn.TempMgr.New(mir.I32)
		blk.AddInstr(mir.NewArith(x, mir.Mul, mir.I32, iv, mir.IntVal(5)))
		blk.AddInstr(mir.NewStore(mir.TempVal(x), fn.Params[0]))
	})

	c := cfg.New(fn)
	c.Analysis()

	changed, err := opt.OSR(fn, c)
	require.NoError(t, err)
	require.True(t, changed)

	for _, instr := range bodyBlk.Instrs {
		require.False(t, instr.Variant == mir.VArith && instr.ArithOp == mir.Mul,
			"the multiplication must be strength-reduced out of the loop body")
	}
	require.Len(t, header.Phis, 2, "a second induction variable must carry the reduced product")

	var seedMuls int
	for _, instr := range entry.Instrs {
		if instr.Variant == mir.VArith && instr.ArithOp == mir.Mul {
			seedMuls++
		}
	}
	require.Equal(t, 2, seedMuls, "base*rc and step*rc are computed once, in the pre-header")
}

// TestOSRLeavesNonRegionalMultiplierAlone checks a multiplication by a
// value defined inside the loop is not touched.
func TestOSRLeavesNonRegionalMultiplierAlone(t *testing.T) {
	fn, _, header, _ := buildCountedStoreLoop(func(fn *mir.Function, blk *mir.BasicBlock, iv mir.Value) {
		double := fn.TempMgr.New(mir.I32)
		blk.AddInstr(mir.NewArith(double, mir.Add, mir.I32, iv, iv))
		x := fn.TempMgr.New(mir.I32)
		blk.AddInstr(mir.NewArith(x, mir.Mul, mir.I32, iv, mir.TempVal(double)))
		blk.AddInstr(mir.NewStore(mir.TempVal(x), fn.Params[0]))
	})

	c := cfg.New(fn)
	c.Analysis()

	changed, err := opt.OSR(fn, c)
	require.NoError(t, err)
	require.False(t, changed)
	require.Len(t, header.Phis, 1)
}
