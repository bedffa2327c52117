package cache_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/riscv"
	"sysyc/internal/riscv/cache"
	"sysyc/internal/sysyapi"
)

func simpleFunc(name string) *riscv.Func {
	fn := &riscv.Func{Name: name, NeedCache: true, Params: []riscv.VReg{}}
	entry := fn.NewBlock("bb0")
	entry.AddInstr(&riscv.Instr{Op: riscv.OpMv, Dst: riscv.RealOperand(riscv.A0, riscv.RegClassInt), Src1: riscv.RealOperand(riscv.A0, riscv.RegClassInt)})
	entry.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})
	return fn
}

// TestInjectPrependsHasherAndProbeChain checks spec §4.C10: Inject adds
// a hasher block, CacheSize probe blocks, a hit block and a miss block
// ahead of the function's original entry, leaving the original body
// reachable only through the miss path.
func TestInjectPrependsHasherAndProbeChain(t *testing.T) {
	fn := simpleFunc("fib")
	prog := &mir.Program{}
	names := cache.NewNames(prog)

	origEntryLabel := fn.Blocks[0].Label
	globals := cache.Inject(fn, names, false)

	require.NotNil(t, globals.Arg)
	require.NotNil(t, globals.Ret)
	require.NotNil(t, globals.Begin)

	require.Equal(t, "fib$cache_hash", fn.Blocks[0].Label, "the hasher block must become the new function entry")

	var sawProbe0, sawHit, sawMiss, sawOrigEntry bool
	for _, b := range fn.Blocks {
		switch b.Label {
		case "fib$cache_probe0":
			sawProbe0 = true
		case "fib$cache_hit":
			sawHit = true
		case "fib$cache_miss":
			sawMiss = true
		case origEntryLabel:
			sawOrigEntry = true
		}
	}
	require.True(t, sawProbe0)
	require.True(t, sawHit)
	require.True(t, sawMiss)
	require.True(t, sawOrigEntry, "the function's original body must still be present, reachable from the miss block")

	labels := map[string]bool{}
	for _, b := range fn.Blocks {
		labels[b.Label] = true
	}
	for i := 0; i < sysyapi.CacheSize; i++ {
		require.True(t, labels[fmt.Sprintf("fib$cache_probe%d", i)], "probe block %d must be present", i)
	}
}

// TestInjectRewritesReturnsToStoreResult checks that every original
// OpRetPseudo in the function body is preceded by a store into the
// RETURN cache array, so a cache hit on a later call observes this
// call's result.
func TestInjectRewritesReturnsToStoreResult(t *testing.T) {
	fn := simpleFunc("f")
	prog := &mir.Program{}
	names := cache.NewNames(prog)
	globals := cache.Inject(fn, names, false)

	var body *riscv.Block
	for _, b := range fn.Blocks {
		if b.Label == "bb0" {
			body = b
		}
	}
	require.NotNil(t, body)

	var sawStoreToRet bool
	for _, instr := range body.Instrs {
		if instr.Op == riscv.OpLa && instr.Target == globals.Ret.Name {
			sawStoreToRet = true
		}
	}
	require.True(t, sawStoreToRet)
}

// TestNewNamesDisambiguatesCollisions checks that two functions
// mangling to the same cache-global base name get distinct names
// rather than silently colliding.
func TestNewNamesDisambiguatesCollisions(t *testing.T) {
	prog := &mir.Program{}
	names := cache.NewNames(prog)

	fn1 := simpleFunc("dup")
	g1 := cache.Inject(fn1, names, false)

	fn2 := simpleFunc("dup")
	g2 := cache.Inject(fn2, names, false)

	require.NotEqual(t, g1.Arg.Name, g2.Arg.Name)
}
