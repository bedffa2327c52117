package opt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/mir/opt"
)

// TestInlineSingleCallSiteCallee checks the C5.g transformation: a
// small callee with exactly one call site is cloned into the caller,
// the call disappears, and the returned value keeps flowing into the
// caller's own use of the call result.
func TestInlineSingleCallSiteCallee(t *testing.T) {
	callee := mir.NewFunction("inc", nil, mir.I32)
	x := callee.TempMgr.New(mir.I32)
	callee.Params = []mir.Value{mir.TempVal(x)}
	cb := callee.NewBlock()
	r := callee.TempMgr.New(mir.I32)
	cb.AddInstr(mir.NewArith(r, mir.Add, mir.I32, mir.TempVal(x), mir.IntVal(1)))
	rv := mir.TempVal(r)
	cb.AddInstr(mir.NewRet(&rv))

	caller := mir.NewFunction("main", nil, mir.I32)
	mb := caller.NewBlock()
	ct := caller.TempMgr.New(mir.I32)
	mb.AddInstr(mir.NewCall(ct, mir.I32, "inc", []mir.Param{{Type: mir.I32, Value: mir.IntVal(41)}}))
	crv := mir.TempVal(ct)
	mb.AddInstr(mir.NewRet(&crv))

	prog := &mir.Program{Funcs: []*mir.Function{callee, caller}}
	opt.ClassifyPurity(prog)
	require.Equal(t, mir.EntranceSingle, callee.Entrance)

	changed, err := opt.Inline(prog)
	require.NoError(t, err)
	require.True(t, changed)

	var calls, retsReadingTarget int
	for _, b := range caller.Blocks {
		for _, instr := range b.AllInstrs() {
			if instr.Variant == mir.VCall && string(instr.CallFunc) == "inc" {
				calls++
			}
			if instr.Variant == mir.VRet && instr.RetValue != nil &&
				instr.RetValue.Kind == mir.ValueTempKind && instr.RetValue.Tmp.ID == ct.ID {
				retsReadingTarget++
			}
		}
	}
	require.Zero(t, calls, "the single call site must be rewritten into a jump into the clone")
	require.Equal(t, 1, retsReadingTarget, "the caller's use of the call result must survive unchanged")
}

// TestInlineSkipsRecursiveCallee checks a self-recursive callee
// (EntranceMulti) is never inlined.
func TestInlineSkipsRecursiveCallee(t *testing.T) {
	callee := mir.NewFunction("loop", nil, mir.I32)
	n := callee.TempMgr.New(mir.I32)
	callee.Params = []mir.Value{mir.TempVal(n)}
	cb := callee.NewBlock()
	ct := callee.TempMgr.New(mir.I32)
	cb.AddInstr(mir.NewCall(ct, mir.I32, "loop", []mir.Param{{Type: mir.I32, Value: mir.TempVal(n)}}))
	cv := mir.TempVal(ct)
	cb.AddInstr(mir.NewRet(&cv))

	caller := mir.NewFunction("main", nil, mir.I32)
	mb := caller.NewBlock()
	rt := caller.TempMgr.New(mir.I32)
	mb.AddInstr(mir.NewCall(rt, mir.I32, "loop", []mir.Param{{Type: mir.I32, Value: mir.IntVal(1)}}))
	rv := mir.TempVal(rt)
	mb.AddInstr(mir.NewRet(&rv))

	prog := &mir.Program{Funcs: []*mir.Function{callee, caller}}
	opt.ClassifyPurity(prog)

	changed, err := opt.Inline(prog)
	require.NoError(t, err)
	require.False(t, changed)
}
