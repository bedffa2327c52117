package dataflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
)

// TestLivenessStraightLine: entry defines x, uses it in a return; x
// must be live-in to the block it's used in and dead everywhere else.
func TestLivenessStraightLine(t *testing.T) {
	fn := mir.NewFunction("f", nil, mir.I32)
	entry := fn.NewBlock()
	x := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewArith(x, mir.Add, mir.I32, mir.IntVal(1), mir.IntVal(2)))
	xv := mir.TempVal(x)
	entry.AddInstr(mir.NewRet(&xv))

	Compute(fn)

	require.Empty(t, entry.LiveIn, "x is defined and used within the same block")
	require.Empty(t, entry.LiveOut)
	require.Contains(t, entry.Defs, x.ID)
	require.NotContains(t, entry.Uses, x.ID, "x is defined before its only read, so it is not an upward-exposed use")
}

// TestLivenessAcrossBlocks: a value defined in a predecessor and used
// only in its successor must be live-out of the former and live-in to
// the latter.
func TestLivenessAcrossBlocks(t *testing.T) {
	fn := mir.NewFunction("f", nil, mir.I32)
	a := fn.NewBlock()
	b := fn.NewBlock()
	mir.AddEdge(a, b)

	x := fn.TempMgr.New(mir.I32)
	a.AddInstr(mir.NewArith(x, mir.Add, mir.I32, mir.IntVal(1), mir.IntVal(2)))
	a.AddInstr(mir.NewJump(b.Label))

	xv := mir.TempVal(x)
	b.AddInstr(mir.NewRet(&xv))

	Compute(fn)

	require.Contains(t, a.LiveOut, x.ID)
	require.Contains(t, b.LiveIn, x.ID)
	require.NotContains(t, a.LiveIn, x.ID, "x is defined in a, not live coming into it")
}

// TestLivenessPhiSplitsPerPredecessorEdge checks spec §4.C4: a phi
// source is live-out of exactly the predecessor block it's labeled
// with, not every predecessor.
func TestLivenessPhiSplitsPerPredecessorEdge(t *testing.T) {
	fn := mir.NewFunction("f", nil, mir.I32)
	predA := fn.NewBlock()
	predB := fn.NewBlock()
	join := fn.NewBlock()
	mir.AddEdge(predA, join)
	mir.AddEdge(predB, join)

	xa := fn.TempMgr.New(mir.I32)
	predA.AddInstr(mir.NewArith(xa, mir.Add, mir.I32, mir.IntVal(1), mir.IntVal(1)))
	predA.AddInstr(mir.NewJump(join.Label))

	xb := fn.TempMgr.New(mir.I32)
	predB.AddInstr(mir.NewArith(xb, mir.Add, mir.I32, mir.IntVal(2), mir.IntVal(2)))
	predB.AddInstr(mir.NewJump(join.Label))

	phiTarget := fn.TempMgr.New(mir.I32)
	phi := mir.NewPhi(phiTarget, mir.I32)
	phi.AddSource(mir.TempVal(xa), predA.Label)
	phi.AddSource(mir.TempVal(xb), predB.Label)
	join.AddPhi(phi)
	pv := mir.TempVal(phiTarget)
	join.AddInstr(mir.NewRet(&pv))

	Compute(fn)

	require.Contains(t, predA.LiveOut, xa.ID)
	require.NotContains(t, predB.LiveOut, xa.ID, "xa is only live-out along the predA->join edge")
	require.Contains(t, predB.LiveOut, xb.ID)
	require.NotContains(t, predA.LiveOut, xb.ID)
}

func TestLivenessLoopFixpoint(t *testing.T) {
	fn := mir.NewFunction("loop", []mir.Value{}, mir.I32)
	n := fn.TempMgr.NewPreColored(mir.I32, "a0")
	fn.Params = []mir.Value{mir.TempVal(n)}

	entry := fn.NewBlock()
	header := fn.NewBlock()
	body := fn.NewBlock()
	exit := fn.NewBlock()
	mir.AddEdge(entry, header)
	mir.AddEdge(header, body)
	mir.AddEdge(header, exit)
	mir.AddEdge(body, header)

	entry.AddInstr(mir.NewJump(header.Label))

	iPhiTarget := fn.TempMgr.New(mir.I32)
	iPhi := mir.NewPhi(iPhiTarget, mir.I32)
	header.AddPhi(iPhi)
	cond := fn.TempMgr.New(mir.I32)
	header.AddInstr(mir.NewComp(cond, mir.Icmp, mir.SLT, mir.I32, mir.TempVal(iPhiTarget), mir.TempVal(n)))
	header.AddInstr(mir.NewJumpCond(mir.TempVal(cond), mir.I32, body.Label, exit.Label))

	iNext := fn.TempMgr.New(mir.I32)
	body.AddInstr(mir.NewArith(iNext, mir.Add, mir.I32, mir.TempVal(iPhiTarget), mir.IntVal(1)))
	body.AddInstr(mir.NewJump(header.Label))

	iPhi.AddSource(mir.IntVal(0), entry.Label)
	iPhi.AddSource(mir.TempVal(iNext), body.Label)

	exit.AddInstr(mir.NewRet(nil))

	Compute(fn)

	require.Contains(t, header.LiveIn, n.ID, "n must stay live through every loop iteration")
	require.Contains(t, body.LiveOut, n.ID)
}
