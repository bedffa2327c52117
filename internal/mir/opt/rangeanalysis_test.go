package opt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
	"sysyc/internal/mir/opt"
)

// TestRangeAnalysisFoldsImpliedComparison builds:
//
//	int f(int x){
//	  if (x < 5) {
//	    if (x < 10) return 1; else return 2;
//	  }
//	  return 3;
//	}
//
// Inside the `x < 5` arm, `x < 10` is already implied, so the inner
// branch must fold to an unconditional jump to its true target.
func TestRangeAnalysisFoldsImpliedComparison(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Value{}, mir.I32)
	x := fn.TempMgr.New(mir.I32)
	fn.Params = []mir.Value{mir.TempVal(x)}

	entry := fn.NewBlock()
	outerThen := fn.NewBlock()
	innerThen := fn.NewBlock()
	innerElse := fn.NewBlock()
	outerElse := fn.NewBlock()

	outerCmp := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewComp(outerCmp, mir.Icmp, mir.SLT, mir.I32, mir.TempVal(x), mir.IntVal(5)))
	entry.AddInstr(mir.NewJumpCond(mir.TempVal(outerCmp), mir.I32, outerThen.Label, outerElse.Label))
	mir.AddEdge(entry, outerThen)
	mir.AddEdge(entry, outerElse)

	innerCmp := fn.TempMgr.New(mir.I32)
	outerThen.AddInstr(mir.NewComp(innerCmp, mir.Icmp, mir.SLT, mir.I32, mir.TempVal(x), mir.IntVal(10)))
	outerThen.AddInstr(mir.NewJumpCond(mir.TempVal(innerCmp), mir.I32, innerThen.Label, innerElse.Label))
	mir.AddEdge(outerThen, innerThen)
	mir.AddEdge(outerThen, innerElse)

	one := mir.IntVal(1)
	innerThen.AddInstr(mir.NewRet(&one))
	two := mir.IntVal(2)
	innerElse.AddInstr(mir.NewRet(&two))
	three := mir.IntVal(3)
	outerElse.AddInstr(mir.NewRet(&three))

	c := cfg.New(fn)
	c.Analysis()

	changed, err := opt.RangeAnalysis(fn, c)
	require.NoError(t, err)
	require.True(t, changed, "x<10 must be recognized as implied by the dominating x<5")

	term := outerThen.Terminator()
	require.Equal(t, mir.VJump, term.Variant, "the inner branch must collapse to an unconditional jump")
	require.Equal(t, innerThen.Label, term.JumpTarget, "control must fall straight through to the true arm")
}

// TestRangeAnalysisLeavesUndecidedComparisonAlone checks that a
// comparison whose outcome isn't implied by any dominating branch is
// left untouched.
func TestRangeAnalysisLeavesUndecidedComparisonAlone(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Value{}, mir.I32)
	x := fn.TempMgr.New(mir.I32)
	fn.Params = []mir.Value{mir.TempVal(x)}

	entry := fn.NewBlock()
	thenB := fn.NewBlock()
	elseB := fn.NewBlock()

	cmpT := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewComp(cmpT, mir.Icmp, mir.SLT, mir.I32, mir.TempVal(x), mir.IntVal(5)))
	entry.AddInstr(mir.NewJumpCond(mir.TempVal(cmpT), mir.I32, thenB.Label, elseB.Label))
	mir.AddEdge(entry, thenB)
	mir.AddEdge(entry, elseB)

	one := mir.IntVal(1)
	thenB.AddInstr(mir.NewRet(&one))
	two := mir.IntVal(2)
	elseB.AddInstr(mir.NewRet(&two))

	c := cfg.New(fn)
	c.Analysis()

	changed, err := opt.RangeAnalysis(fn, c)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, mir.VJumpCond, entry.Terminator().Variant)
}
