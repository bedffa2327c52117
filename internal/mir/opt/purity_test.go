package opt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/mir/opt"
)

// TestClassifyPurityFlagsGlobalStoreAsImpure checks spec §4.C5.a: a
// store to a global is an external resource.
func TestClassifyPurityFlagsGlobalStoreAsImpure(t *testing.T) {
	prog := &mir.Program{GlobalVars: []*mir.GlobalVar{{Name: "g", Data: []mir.GlobalInit{mir.ZeroInit(4)}}}}
	fn := mir.NewFunction("setter", nil, mir.Void)
	entry := fn.NewBlock()
	entry.AddInstr(mir.NewStore(mir.IntVal(1), mir.TempVal(mir.Global("g", mir.I32Ptr))))
	entry.AddInstr(mir.NewRet(nil))
	prog.Funcs = append(prog.Funcs, fn)

	opt.ClassifyPurity(prog)
	require.False(t, fn.IsPure())
	require.Equal(t, mir.ResourceGlobalStore, fn.ExternalResource)
}

// TestClassifyPuritySelfRecursion checks that a directly
// self-recursive function (like fib) is classified EntranceMulti, per
// spec §4.C5.a's Tarjan-SCC-over-the-call-graph rule (a self-loop also
// counts as recursion).
func TestClassifyPuritySelfRecursion(t *testing.T) {
	fn := mir.NewFunction("fib", []mir.Value{}, mir.I32)
	n := fn.TempMgr.New(mir.I32)
	fn.Params = []mir.Value{mir.TempVal(n)}
	entry := fn.NewBlock()
	callT := fn.TempMgr.New(mir.I32)
	entry.AddInstr(mir.NewCall(callT, mir.I32, "fib", []mir.Param{{Type: mir.I32, Value: mir.TempVal(n)}}))
	cv := mir.TempVal(callT)
	entry.AddInstr(mir.NewRet(&cv))

	prog := &mir.Program{Funcs: []*mir.Function{fn}}
	opt.ClassifyPurity(prog)

	require.Equal(t, mir.EntranceMulti, fn.Entrance)
	require.True(t, fn.IsPure(), "calling only itself introduces no external resource")
}

// TestClassifyPurityCallToImpureCalleePropagates checks that purity
// propagates transitively: a caller of an impure function is impure
// too, even though it has no external resource of its own.
func TestClassifyPurityCallToImpureCalleePropagates(t *testing.T) {
	callee := mir.NewFunction("impure", nil, mir.Void)
	calleeEntry := callee.NewBlock()
	calleeEntry.AddInstr(mir.NewCall(callee.TempMgr.New(mir.Void), mir.Void, "putint", nil))
	calleeEntry.AddInstr(mir.NewRet(nil))

	caller := mir.NewFunction("caller", nil, mir.Void)
	callerEntry := caller.NewBlock()
	callerEntry.AddInstr(mir.NewCall(caller.TempMgr.New(mir.Void), mir.Void, "impure", nil))
	callerEntry.AddInstr(mir.NewRet(nil))

	prog := &mir.Program{Funcs: []*mir.Function{callee, caller}}
	opt.ClassifyPurity(prog)

	require.False(t, callee.IsPure(), "calling the putint runtime helper is an external resource")
	require.False(t, caller.IsPure(), "purity must propagate through the call graph")
	require.Equal(t, mir.ResourceImpureCall, caller.ExternalResource)
}
