// Package emit renders a selected, allocated, serialized riscv.Program
// to the textual RV64IMFD assembly spec §6.3 describes: one .text
// section holding every function, separate .bss and .data sections for
// globals, one label per source global and per non-entry block. This is the
// external-collaborator-adjacent half of the output boundary (the
// other half, MIR pretty-printing, lives in internal/mir/printer); the
// contract is small and self-contained enough that §6.3 is implemented
// directly rather than pulled in from a third-party assembler package
// (see DESIGN.md).
package emit

import (
	"fmt"
	"math"
	"strings"

	"sysyc/internal/mir"
	"sysyc/internal/riscv"
)

func floatBits(f float32) uint32 { return math.Float32bits(f) }

// Program renders rprog's functions together with every global variable
// in mprog, in the layout a RISC-V assembler expects: data/bss globals
// first, then .text.
func Program(rprog *riscv.Program, mprog *mir.Program) string {
	var sb strings.Builder
	sb.WriteString(".option nopic\n")

	writeData(&sb, mprog)

	sb.WriteString("\n\t.text\n")
	for _, fn := range rprog.Funcs {
		sb.WriteByte('\n')
		writeFunc(&sb, fn)
	}
	return sb.String()
}

// writeData emits one assembler directive block per global: a .bss
// entry for an all-zero initializer, a .data entry otherwise.
func writeData(sb *strings.Builder, mprog *mir.Program) {
	var bss, data []*mir.GlobalVar
	for _, g := range mprog.GlobalVars {
		if allZero(g) {
			bss = append(bss, g)
		} else {
			data = append(data, g)
		}
	}

	if len(bss) > 0 {
		sb.WriteString("\t.bss\n")
		for _, g := range bss {
			writeBssGlobal(sb, g)
		}
	}
	if len(data) > 0 {
		sb.WriteString("\t.data\n")
		for _, g := range data {
			writeDataGlobal(sb, g)
		}
	}
}

func allZero(g *mir.GlobalVar) bool {
	for _, d := range g.Data {
		if !d.IsZero {
			return false
		}
	}
	return true
}

func writeBssGlobal(sb *strings.Builder, g *mir.GlobalVar) {
	fmt.Fprintf(sb, "\t.globl %s\n\t.align 4\n%s:\n\t.zero %d\n", g.Name, g.Name, g.ByteSize())
}

func writeDataGlobal(sb *strings.Builder, g *mir.GlobalVar) {
	fmt.Fprintf(sb, "\t.globl %s\n\t.align 4\n%s:\n", g.Name, g.Name)
	for _, d := range g.Data {
		switch {
		case d.IsZero:
			fmt.Fprintf(sb, "\t.zero %d\n", d.ZeroN)
		case d.IsFWord:
			fmt.Fprintf(sb, "\t.word %d\t# %g\n", floatBits(d.FWord), d.FWord)
		default:
			fmt.Fprintf(sb, "\t.word %d\n", d.Word)
		}
	}
}

func writeFunc(sb *strings.Builder, fn *riscv.Func) {
	renameLocalLabels(fn)
	fmt.Fprintf(sb, "\t.globl %s\n\t.type %s, @function\n%s:\n", fn.Name, fn.Name, fn.Name)
	for _, b := range fn.Blocks {
		if b != fn.Blocks[0] {
			fmt.Fprintf(sb, "%s:\n", b.Label)
		}
		for _, instr := range b.Instrs {
			if instr.Op == riscv.OpLabel {
				fmt.Fprintf(sb, "%s:\n", instr.Target)
				continue
			}
			fmt.Fprintf(sb, "\t%s\n", instr.String())
		}
	}
	fmt.Fprintf(sb, "\t.size %s, .-%s\n", fn.Name, fn.Name)
}

// renameLocalLabels prefixes every block-local label with the function
// name: each function's label manager starts counting from zero and
// every epilogue is named "exit", so the raw labels would collide the
// moment two functions land in the same output file. A call's Jal
// targets a function symbol, not a block, and is left alone.
func renameLocalLabels(fn *riscv.Func) {
	rename := map[string]string{}
	for _, b := range fn.Blocks {
		rename[b.Label] = fmt.Sprintf(".L_%s_%s", fn.Name, b.Label)
	}
	for _, b := range fn.Blocks {
		b.Label = rename[b.Label]
		for _, instr := range b.Instrs {
			if instr.CallFunc != "" || instr.Op == riscv.OpLa {
				continue // function symbols and global names, not block labels
			}
			if n, ok := rename[instr.Target]; ok {
				instr.Target = n
			}
		}
	}
}
