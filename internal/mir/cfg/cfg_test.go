package cfg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/frontend"
	"sysyc/internal/mir"
)

// buildDiamond builds entry -> {thenB, elseB} -> join, the textbook case
// for dominance frontiers: thenB and elseB are each dominated by entry
// alone, and join is in the frontier of both (and of entry's dominance
// stops there).
func buildDiamond() (fn *mir.Function, entry, thenB, elseB, join *mir.BasicBlock) {
	fn = mir.NewFunction("diamond", nil, mir.Void)
	entry = fn.NewBlock()
	thenB = fn.NewBlock()
	elseB = fn.NewBlock()
	join = fn.NewBlock()

	entry.AddInstr(mir.NewJumpCond(mir.IntVal(1), mir.I32, thenB.Label, elseB.Label))
	mir.AddEdge(entry, thenB)
	mir.AddEdge(entry, elseB)

	thenB.AddInstr(mir.NewJump(join.Label))
	mir.AddEdge(thenB, join)
	elseB.AddInstr(mir.NewJump(join.Label))
	mir.AddEdge(elseB, join)

	join.AddInstr(mir.NewRet(nil))
	return
}

func TestDominatorsOnDiamond(t *testing.T) {
	fn, entry, thenB, elseB, join := buildDiamond()

	c := New(fn)
	c.Analysis()

	require.True(t, c.Dominates(entry, thenB))
	require.True(t, c.Dominates(entry, elseB))
	require.True(t, c.Dominates(entry, join))
	require.False(t, c.Dominates(thenB, join), "thenB does not dominate join: elseB also reaches it")
	require.False(t, c.Dominates(elseB, join))

	require.Equal(t, entry, c.Idom(join))
}

func TestDominanceFrontierOnDiamond(t *testing.T) {
	fn, entry, thenB, elseB, join := buildDiamond()
	c := New(fn)
	c.Analysis()

	frontierOf := func(b *mir.BasicBlock) []uint32 {
		var ids []uint32
		for _, f := range c.Frontier(b) {
			ids = append(ids, f.ID)
		}
		return ids
	}

	require.Equal(t, []uint32{join.ID}, frontierOf(thenB))
	require.Equal(t, []uint32{join.ID}, frontierOf(elseB))
	require.Empty(t, frontierOf(entry))
}

func TestFrontierClosureUnionsMultipleDefs(t *testing.T) {
	fn, _, thenB, elseB, join := buildDiamond()
	c := New(fn)
	c.Analysis()

	closure := c.FrontierClosure([]*mir.BasicBlock{thenB, elseB})
	require.Len(t, closure, 1)
	require.Equal(t, join.ID, closure[0].ID)
}

// TestLoopForestOnSumLoop checks spec §3.8: the header dominates every
// block in the loop and every back-edge lands on the header.
func TestLoopForestOnSumLoop(t *testing.T) {
	prog := frontend.SumLoop()
	fn := prog.FuncByName("sum")
	require.NotNil(t, fn)

	c := New(fn)
	c.Analysis()

	require.Len(t, c.Loops.ByHeader, 1, "sum loop has exactly one natural loop")
	var loop *Loop
	for _, l := range c.Loops.ByHeader {
		loop = l
	}
	require.NotNil(t, loop)

	for _, b := range loop.Blocks() {
		require.True(t, c.Dominates(loop.Header, b), "header must dominate every loop block")
	}
	for _, latch := range loop.Latches(c) {
		require.True(t, c.Dominates(loop.Header, latch))
	}
	require.NotEmpty(t, loop.Latches(c))
}

func TestLoopPreheaderOnSumLoop(t *testing.T) {
	prog := frontend.SumLoop()
	fn := prog.FuncByName("sum")
	c := New(fn)
	c.Analysis()

	var loop *Loop
	for _, l := range c.Loops.ByHeader {
		loop = l
	}
	pre := loop.Preheader(c)
	require.NotNil(t, pre, "single external predecessor must produce a pre-header")
	require.Equal(t, fn.Entry().ID, pre.ID)
}
