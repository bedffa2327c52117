package opt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
	"sysyc/internal/mir/opt"
)

// TestGVNCommutativityNormalization checks spec §8.2: `a + b` and
// `b + a` receive the same value number, so the second redundant
// computation is rewritten to the first.
func TestGVNCommutativityNormalization(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Value{}, mir.I32)
	a := fn.TempMgr.New(mir.I32)
	b := fn.TempMgr.New(mir.I32)
	fn.Params = []mir.Value{mir.TempVal(a), mir.TempVal(b)}

	entry := fn.NewBlock()
	sum1 := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewArith(sum1, mir.Add, mir.I32, mir.TempVal(a), mir.TempVal(b)))
	sum2 := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewArith(sum2, mir.Add, mir.I32, mir.TempVal(b), mir.TempVal(a)))

	prodT := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewArith(prodT, mir.Mul, mir.I32, mir.TempVal(sum1), mir.TempVal(sum2)))
	pv := mir.TempVal(prodT)
	entry.AddInstr(mir.NewRet(&pv))

	c := cfg.New(fn)
	c.Analysis()

	changed, err := opt.GVN(fn, c)
	require.NoError(t, err)
	require.True(t, changed, "b+a must be recognized congruent to a+b and rewritten")

	mulInstr := entry.Instrs[len(entry.Instrs)-2]
	require.Equal(t, mir.VArith, mulInstr.Variant)
	require.Equal(t, mulInstr.LHS, mulInstr.RHS, "both operands of the product must now reference the same temp")
}

// TestGVNRunsTwiceIdempotently checks spec §8.2's idempotence law for
// GVN specifically.
func TestGVNRunsTwiceIdempotently(t *testing.T) {
	fn := mir.NewFunction("f", []mir.Value{}, mir.I32)
	a := fn.TempMgr.New(mir.I32)
	fn.Params = []mir.Value{mir.TempVal(a)}
	entry := fn.NewBlock()
	s1 := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewArith(s1, mir.Add, mir.I32, mir.TempVal(a), mir.IntVal(1)))
	s2 := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewArith(s2, mir.Add, mir.I32, mir.TempVal(a), mir.IntVal(1)))
	rv := mir.TempVal(s2)
	entry.AddInstr(mir.NewRet(&rv))

	c := cfg.New(fn)
	c.Analysis()
	_, err := opt.GVN(fn, c)
	require.NoError(t, err)

	c.Analysis()
	changed, err := opt.GVN(fn, c)
	require.NoError(t, err)
	require.False(t, changed, "a second GVN pass over already-numbered code must be a no-op")
}
