// Package printer renders a mir.Program as the textual dump format the
// `-E` driver flag emits: one function per paragraph, one block header
// per label, one instruction per line, each instruction using its own
// Format() one-liner (spec §6.5).
package printer

import (
	"fmt"
	"strings"

	"sysyc/internal/mir"
)

// Program renders every global and function in prog.
func Program(prog *mir.Program) string {
	var sb strings.Builder
	for _, g := range prog.GlobalVars {
		sb.WriteString(globalHeader(g))
		sb.WriteByte('\n')
	}
	for _, fn := range prog.Funcs {
		sb.WriteByte('\n')
		sb.WriteString(Function(fn))
	}
	return sb.String()
}

func globalHeader(g *mir.GlobalVar) string {
	kind := "i32"
	if g.IsFloat {
		kind = "f32"
	}
	if g.IsArray {
		return fmt.Sprintf("global %s %s[%d bytes]", kind, g.Name, g.ByteSize())
	}
	return fmt.Sprintf("global %s %s", kind, g.Name)
}

// Function renders fn's signature, one block header per block (with
// its predecessor list), and every phi/instruction beneath it.
func Function(fn *mir.Function) string {
	var sb strings.Builder
	sb.WriteString(funcHeader(fn))
	sb.WriteByte('\n')
	for _, b := range fn.Blocks {
		sb.WriteString(blockHeader(b))
		sb.WriteByte('\n')
		for _, phi := range b.Phis {
			sb.WriteByte('\t')
			sb.WriteString(phi.Format())
			sb.WriteByte('\n')
		}
		for _, instr := range b.Instrs {
			sb.WriteByte('\t')
			sb.WriteString(instr.Format())
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func funcHeader(fn *mir.Function) string {
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("func @%s(%s) -> %s", fn.Name, strings.Join(params, ", "), fn.RetType)
}

func blockHeader(b *mir.BasicBlock) string {
	if len(b.Prev) == 0 {
		return fmt.Sprintf("%s:", b.Label)
	}
	preds := make([]string, len(b.Prev))
	for i, p := range b.Prev {
		preds[i] = string(p.Label)
	}
	return fmt.Sprintf("%s: <-- (%s)", b.Label, strings.Join(preds, ", "))
}
