// Command sysyc drives the pipeline end to end: optimize, select,
// allocate registers, (optionally) wrap in a result cache, build
// stackframes, serialize, and emit either textual MIR (-E) or RISC-V
// assembly (-S). Structured the way cmd/wazero/wazero.go separates out
// a testable doMain(stdOut, stdErr io.Writer) int from main.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"sysyc/internal/config"
	"sysyc/internal/diag"
	"sysyc/internal/errors"
	"sysyc/internal/mir/opt"
	"sysyc/internal/mir/printer"
	"sysyc/internal/riscv"
	"sysyc/internal/riscv/cache"
	"sysyc/internal/riscv/emit"
	"sysyc/internal/riscv/frame"
	"sysyc/internal/riscv/isel"
	"sysyc/internal/riscv/peephole"
	"sysyc/internal/riscv/regalloc"
	"sysyc/internal/riscv/serialize"
)

func main() {
	os.Exit(doMain(os.Stdout, os.Stderr))
}

// doMain is separated out for unit testing (spec §6.1 exit codes: 0
// success, 1 compile error, 2 usage error).
func doMain(stdOut, stdErr io.Writer) int {
	flag.CommandLine.SetOutput(stdErr)

	var emitAsm, emitMIR, optO0, optO1, parallelize bool
	var output string
	flag.BoolVar(&emitAsm, "S", false, "Emit RISC-V assembly.")
	flag.BoolVar(&emitMIR, "E", false, "Emit textual MIR for debugging.")
	flag.BoolVar(&optO0, "O0", false, "Disable optimization.")
	flag.BoolVar(&optO1, "O1", true, "Run the full optimization pipeline (default).")
	flag.BoolVar(&parallelize, "fparallelize", false, "Enable the optional loop-parallelizer (spec §5).")
	flag.StringVar(&output, "o", "", "Output file path.")
	flag.Parse()

	if !emitAsm && !emitMIR {
		fmt.Fprintln(stdErr, "usage: sysyc [-O0|-O1] -S|-E -o <output> <program-name>")
		return 2
	}
	if flag.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing program name")
		return 2
	}
	name := flag.Arg(0)

	cfg := config.Default()
	if optO0 {
		cfg.OptLevel = config.O0
	}
	cfg.Parallelize = parallelize

	prog, err := loadEmbeddedProgram(name)
	if err != nil {
		diag.Print(stdErr, nil, err)
		return 1
	}

	if cfg.OptLevel == config.O1 {
		if rerr := opt.RunPipeline(prog, cfg.Parallelize); rerr != nil {
			cerr, ok := rerr.(*errors.CompilerError)
			if !ok {
				cerr = errors.New(errors.Fatal, "%v", rerr)
			}
			diag.Print(stdErr, nil, cerr)
			return 1
		}
	}

	var out io.Writer = stdOut
	if output != "" {
		outFile, ferr := os.Create(output)
		if ferr != nil {
			diag.Print(stdErr, nil, errors.New(errors.Usage, "cannot create output file: %v", ferr))
			return 1
		}
		defer outFile.Close()
		out = outFile
	}

	if emitMIR {
		fmt.Fprint(out, printer.Program(prog))
		return 0
	}

	rprog := isel.SelectProgram(prog)
	names := cache.NewNames(prog)
	for _, fn := range rprog.Funcs {
		if cfg.OptLevel == config.O1 {
			peephole.Run(fn)
		}
		regalloc.Allocate(fn)
		if fn.NeedCache {
			globals := cache.Inject(fn, names, fn.RetClass == riscv.RegClassFloat)
			prog.GlobalVars = append(prog.GlobalVars, globals.Arg, globals.Ret, globals.Begin)
		}
		frame.Build(fn)
		serialize.Serialize(fn)
	}

	fmt.Fprint(out, emit.Program(rprog, prog))
	return 0
}
