package opt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
	"sysyc/internal/mir/opt"
)

// TestMem2RegPromotesStraightLineScalar builds:
//
//	int f(){ int x; x = 1; return x; }
//
// and checks Mem2Reg rewrites the load to the stored SSA value and
// removes the now-dead alloca/store/load.
func TestMem2RegPromotesStraightLineScalar(t *testing.T) {
	fn := mir.NewFunction("f", nil, mir.I32)
	entry := fn.NewBlock()

	addr := fn.TempMgr.New(mir.I32Ptr)
	entry.AddInstr(mir.NewAlloc(addr, mir.I32Ptr, mir.IntVal(4)))
	entry.AddInstr(mir.NewStore(mir.IntVal(1), mir.TempVal(addr)))
	loadT := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewLoad(loadT, mir.I32, mir.TempVal(addr)))
	lv := mir.TempVal(loadT)
	entry.AddInstr(mir.NewRet(&lv))

	c := cfg.New(fn)
	c.Analysis()

	changed, err := opt.Mem2Reg(fn, c)
	require.NoError(t, err)
	require.True(t, changed)

	for _, i := range entry.Instrs {
		require.NotEqual(t, mir.VAlloc, i.Variant, "the promoted alloca must be removed")
		require.NotEqual(t, mir.VLoad, i.Variant, "the load must be rewritten away")
	}
}

// TestMem2RegInsertsPhiAtJoin builds a diamond where each arm stores a
// different constant to the same promotable local, and checks a phi
// with exactly one source per predecessor is inserted at the join.
func TestMem2RegInsertsPhiAtJoin(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Value{}, mir.I32)
	cparam := fn.TempMgr.New(mir.I32)
	fn.Params = []mir.Value{mir.TempVal(cparam)}

	entry := fn.NewBlock()
	thenB := fn.NewBlock()
	elseB := fn.NewBlock()
	join := fn.NewBlock()

	addr := fn.TempMgr.New(mir.I32Ptr)
	entry.AddInstr(mir.NewAlloc(addr, mir.I32Ptr, mir.IntVal(4)))
	entry.AddInstr(mir.NewJumpCond(mir.TempVal(cparam), mir.I32, thenB.Label, elseB.Label))
	mir.AddEdge(entry, thenB)
	mir.AddEdge(entry, elseB)

	thenB.AddInstr(mir.NewStore(mir.IntVal(1), mir.TempVal(addr)))
	thenB.AddInstr(mir.NewJump(join.Label))
	mir.AddEdge(thenB, join)

	elseB.AddInstr(mir.NewStore(mir.IntVal(2), mir.TempVal(addr)))
	elseB.AddInstr(mir.NewJump(join.Label))
	mir.AddEdge(elseB, join)

	loadT := fn.TempMgr.New(mir.I32)
	join.AddInstr(mir.NewLoad(loadT, mir.I32, mir.TempVal(addr)))
	lv := mir.TempVal(loadT)
	join.AddInstr(mir.NewRet(&lv))

	c := cfg.New(fn)
	c.Analysis()

	changed, err := opt.Mem2Reg(fn, c)
	require.NoError(t, err)
	require.True(t, changed)

	require.Len(t, join.Phis, 1)
	require.Len(t, join.Phis[0].PhiSources, 2)
}
