package main

import (
	"sysyc/internal/errors"
	"sysyc/internal/frontend"
)

// embeddedPrograms maps the CLI's program-name argument to one of the
// §8.3 literal programs internal/frontend hand-builds in place of a
// real parser (spec §1's front end is explicitly out of scope).
var embeddedPrograms = map[string]func() *frontend.Program{
	"sum":         frontend.SumLoop,
	"fib":         frontend.Fibonacci,
	"deadcode":    frontend.DeadCode,
	"globalstore": frontend.GlobalStoreOrdering,
	"ifcombine":   frontend.IfCombine,
	"matmul":      frontend.MatMul64,
}

// loadEmbeddedProgram resolves name to one of embeddedPrograms, or
// reports a usage error naming the programs actually available.
func loadEmbeddedProgram(name string) (*frontend.Program, *errors.CompilerError) {
	build, ok := embeddedPrograms[name]
	if !ok {
		return nil, errors.New(errors.Usage, "unknown program %q (want one of: sum, fib, deadcode, globalstore, ifcombine, matmul)", name)
	}
	return build(), nil
}
