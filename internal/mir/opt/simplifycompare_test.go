package opt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
	"sysyc/internal/mir/opt"
)

// TestSimplifyCompareFoldsLiteralComparison checks that a comparison
// between two compile-time constants folds to its boolean result
// outright.
func TestSimplifyCompareFoldsLiteralComparison(t *testing.T) {
	fn := mir.NewFunction("f", nil, mir.I32)
	entry := fn.NewBlock()

	cmpT := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewComp(cmpT, mir.Icmp, mir.SLT, mir.I32, mir.IntVal(1), mir.IntVal(2)))
	rv := mir.TempVal(cmpT)
	entry.AddInstr(mir.NewRet(&rv))

	c := cfg.New(fn)
	c.Analysis()

	changed, err := opt.SimplifyCompare(fn, c)
	require.NoError(t, err)
	require.True(t, changed)

	for _, i := range entry.Instrs {
		require.NotEqual(t, mir.VComp, i.Variant, "a fully-constant comparison must not survive")
	}
}

// TestSimplifyCompareRewritesAdditiveSynonym builds:
//
//	int f(int x){ int y = x + 3; return y < 10; }
//
// and checks the comparison is rewritten to compare x directly against
// the adjusted bound 7, eliminating the dependency on y.
func TestSimplifyCompareRewritesAdditiveSynonym(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Value{}, mir.I32)
	x := fn.TempMgr.New(mir.I32)
	fn.Params = []mir.Value{mir.TempVal(x)}

	entry := fn.NewBlock()
	y := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewArith(y, mir.Add, mir.I32, mir.TempVal(x), mir.IntVal(3)))
	cmpT := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewComp(cmpT, mir.Icmp, mir.SLT, mir.I32, mir.TempVal(y), mir.IntVal(10)))
	rv := mir.TempVal(cmpT)
	entry.AddInstr(mir.NewRet(&rv))

	c := cfg.New(fn)
	c.Analysis()

	changed, err := opt.SimplifyCompare(fn, c)
	require.NoError(t, err)
	require.True(t, changed)

	var cmp *mir.Instruction
	for _, i := range entry.Instrs {
		if i.Variant == mir.VComp {
			cmp = i
		}
	}
	require.NotNil(t, cmp)
	require.Equal(t, x, cmp.LHS.Tmp, "the comparison must now read x directly")
	require.Equal(t, mir.ValueInt, cmp.RHS.Kind)
	require.Equal(t, int32(7), cmp.RHS.Int, "the bound must be adjusted by the +3 offset")
}
