package emit_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/mir"
	"sysyc/internal/riscv"
	"sysyc/internal/riscv/emit"
)

// TestProgramEmitsBssForZeroGlobalAndDataForInitialized checks spec
// §6.3: an all-zero global goes in .bss, one with a nonzero
// initializer goes in .data.
func TestProgramEmitsBssForZeroGlobalAndDataForInitialized(t *testing.T) {
	mprog := &mir.Program{GlobalVars: []*mir.GlobalVar{
		{Name: "zeroed", Data: []mir.GlobalInit{mir.ZeroInit(4)}},
		{Name: "initialized", Data: []mir.GlobalInit{mir.WordInit(42)}},
	}}
	rprog := &riscv.Program{}

	out := emit.Program(rprog, mprog)

	require.True(t, strings.Contains(out, ".bss"))
	require.True(t, strings.Contains(out, ".data"))
	bssIdx := strings.Index(out, ".bss")
	zeroedIdx := strings.Index(out, "zeroed:")
	dataIdx := strings.Index(out, ".data")
	initIdx := strings.Index(out, "initialized:")
	require.True(t, bssIdx < zeroedIdx && zeroedIdx < dataIdx, "zeroed must be emitted under .bss")
	require.True(t, dataIdx < initIdx, "initialized must be emitted under .data")
	require.True(t, strings.Contains(out, ".word 42"))
}

// TestProgramEmitsFunctionLabelsAndInstructions checks the basic
// function-rendering shape: a global/type/label triple, one
// function-prefixed label per non-entry block (raw block labels repeat
// across functions), and the textual form of every instruction.
func TestProgramEmitsFunctionLabelsAndInstructions(t *testing.T) {
	mprog := &mir.Program{}
	rprog := &riscv.Program{Funcs: []*riscv.Func{{
		Name: "f",
		Blocks: []*riscv.Block{
			{Label: "entry", Instrs: []*riscv.Instr{
				{Op: riscv.OpJal, Target: "exit"},
			}},
			{Label: "exit", Instrs: []*riscv.Instr{
				{Op: riscv.OpRetPseudo},
			}},
		},
	}}}

	out := emit.Program(rprog, mprog)

	require.True(t, strings.Contains(out, "\t.globl f\n"))
	require.True(t, strings.Contains(out, "f:\n"))
	require.True(t, strings.Contains(out, ".L_f_exit:\n"))
	require.True(t, strings.Contains(out, "j .L_f_exit"))
	require.True(t, strings.Contains(out, "ret"))
	require.True(t, strings.Contains(out, "\t.size f, .-f\n"))
}

// TestLocalLabelsDoNotCollideAcrossFunctions checks that two functions
// sharing the same raw block label emit distinct assembler labels.
func TestLocalLabelsDoNotCollideAcrossFunctions(t *testing.T) {
	mkFunc := func(name string) *riscv.Func {
		return &riscv.Func{
			Name: name,
			Blocks: []*riscv.Block{
				{Label: "L0", Instrs: []*riscv.Instr{{Op: riscv.OpJal, Target: "exit"}}},
				{Label: "exit", Instrs: []*riscv.Instr{{Op: riscv.OpRetPseudo}}},
			},
		}
	}
	out := emit.Program(&riscv.Program{Funcs: []*riscv.Func{mkFunc("a"), mkFunc("b")}}, &mir.Program{})

	require.True(t, strings.Contains(out, ".L_a_exit:"))
	require.True(t, strings.Contains(out, ".L_b_exit:"))
	require.False(t, strings.Contains(out, "\nexit:"), "no raw shared label may survive")
}
