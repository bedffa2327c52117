package opt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
	"sysyc/internal/mir/opt"
)

// TestUnrollFullyUnrollsConstantSingleBlockLoop builds the one loop
// shape Unroll handles — a single block that is its own latch, testing
// the counter at the end — with a provably constant bound, and checks
// the back edge is gone, the body was cloned once per execution (the
// failing counter value still runs the body once, since the test sits
// after it), and the exit phi was rewired to the last clone.
func TestUnrollFullyUnrollsConstantSingleBlockLoop(t *testing.T) {
	fn := mir.NewFunction("f", nil, mir.I32)
	entry := fn.NewBlock()
	loop := fn.NewBlock()
	exit := fn.NewBlock()

	entry.AddInstr(mir.NewJump(loop.Label))
	mir.AddEdge(entry, loop)

	iPhiT := fn.TempMgr.New(mir.I32)
	iPhi := mir.NewPhi(iPhiT, mir.I32)
	loop.AddPhi(iPhi)
	i2 := fn.TempMgr.New(mir.I32)
	loop.AddInstr(mir.NewArith(i2, mir.Add, mir.I32, mir.TempVal(iPhiT), mir.IntVal(1)))
	cmpT := fn.TempMgr.New(mir.I32)
	loop.AddInstr(mir.NewComp(cmpT, mir.Icmp, mir.SLT, mir.I32, mir.TempVal(iPhiT), mir.IntVal(3)))
	loop.AddInstr(mir.NewJumpCond(mir.TempVal(cmpT), mir.I32, loop.Label, exit.Label))
	mir.AddEdge(loop, loop)
	mir.AddEdge(loop, exit)
	iPhi.AddSource(mir.IntVal(0), entry.Label)
	iPhi.AddSource(mir.TempVal(i2), loop.Label)

	outT := fn.TempMgr.New(mir.I32)
	outPhi := mir.NewPhi(outT, mir.I32)
	outPhi.AddSource(mir.TempVal(i2), loop.Label)
	exit.AddPhi(outPhi)
	rv := mir.TempVal(outT)
	exit.AddInstr(mir.NewRet(&rv))

	c := cfg.New(fn)
	c.Analysis()

	changed, err := opt.Unroll(fn, c)
	require.NoError(t, err)
	require.True(t, changed)

	for _, b := range fn.Blocks {
		for _, s := range b.Succ {
			require.NotEqual(t, b, s, "no back edge may survive a full unroll")
		}
	}
	// Counter values 0,1,2,3 each execute the body once: entry, four
	// clones, exit.
	require.Len(t, fn.Blocks, 6)

	require.Len(t, outPhi.PhiSources, 1)
	require.NotEqual(t, loop.Label, outPhi.PhiSources[0].Pred, "the exit phi must read from the last clone, not the deleted loop block")
}

// TestUnrollLeavesSymbolicBoundAlone checks a loop bounded by a
// parameter is not touched (the trip count can't be proven constant).
func TestUnrollLeavesSymbolicBoundAlone(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Value{}, mir.Void)
	n := fn.TempMgr.New(mir.I32)
	fn.Params = []mir.Value{mir.TempVal(n)}

	entry := fn.NewBlock()
	loop := fn.NewBlock()
	exit := fn.NewBlock()

	entry.AddInstr(mir.NewJump(loop.Label))
	mir.AddEdge(entry, loop)

	iPhiT := fn.TempMgr.New(mir.I32)
	iPhi := mir.NewPhi(iPhiT, mir.I32)
	loop.AddPhi(iPhi)
	i2 := fn.TempMgr.New(mir.I32)
	loop.AddInstr(mir.NewArith(i2, mir.Add, mir.I32, mir.TempVal(iPhiT), mir.IntVal(1)))
	cmpT := fn.TempMgr.New(mir.I32)
	loop.AddInstr(mir.NewComp(cmpT, mir.Icmp, mir.SLT, mir.I32, mir.TempVal(iPhiT), mir.TempVal(n)))
	loop.AddInstr(mir.NewJumpCond(mir.TempVal(cmpT), mir.I32, loop.Label, exit.Label))
	mir.AddEdge(loop, loop)
	mir.AddEdge(loop, exit)
	iPhi.AddSource(mir.IntVal(0), entry.Label)
	iPhi.AddSource(mir.TempVal(i2), loop.Label)

	exit.AddInstr(mir.NewRet(nil))

	c := cfg.New(fn)
	c.Analysis()

	changed, err := opt.Unroll(fn, c)
	require.NoError(t, err)
	require.False(t, changed)
	require.Len(t, fn.Blocks, 3)
}
