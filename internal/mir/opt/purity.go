// Package opt implements the MIR optimization pipeline: one file per
// pass, run to a fixpoint by RunPipeline.
package opt

import (
	"sort"

	"sysyc/internal/mir"
)

// runtimeHelpers are the unresolved externs of spec §6.4: calling one of
// these counts as a syscall-class external resource.
var runtimeHelpers = map[string]bool{
	"getint": true, "getch": true, "getfloat": true,
	"getarray": true, "getfarray": true,
	"putint": true, "putch": true, "putfloat": true,
	"putarray": true, "putfarray": true, "putf": true,
	"starttime": true, "stoptime": true,
}

// ClassifyPurity builds the program's call graph, runs Tarjan SCC over
// it to flag recursive/multi-entrance functions, and marks every
// function's ExternalResource and Entrance field (spec §4.C5.a).
//
// Purity is transitive: a function is pure iff neither it nor any
// function reachable from it through Call instructions has its own
// external resource. Impurity is pushed from callees to callers by
// sweeping every function until nothing changes, which also settles
// mutually recursive groups; the Tarjan SCCs are used only to flag
// recursion.
func ClassifyPurity(prog *mir.Program) {
	byName := map[string]*mir.Function{}
	for _, f := range prog.Funcs {
		byName[f.Name] = f
	}

	callees := map[string][]string{}
	for _, f := range prog.Funcs {
		own := localExternalResource(f)
		f.ExternalResource = own
		for _, b := range f.Blocks {
			for _, instr := range allInstrs(b) {
				if instr.Variant == mir.VCall {
					callees[f.Name] = append(callees[f.Name], string(instr.CallFunc))
				}
			}
		}
	}

	sccs := tarjanSCC(prog, callees)
	for _, scc := range sccs {
		recursive := len(scc) > 1
		if len(scc) == 1 {
			// Self-loop also counts as recursion.
			for _, callee := range callees[scc[0]] {
				if callee == scc[0] {
					recursive = true
				}
			}
		}
		for _, name := range scc {
			f := byName[name]
			if f == nil {
				continue
			}
			if recursive {
				f.Entrance = mir.EntranceMulti
			}
		}
	}

	// Propagate impurity along the call graph to a fixpoint: a function
	// becomes impure if any callee is impure or unknown (external/extern
	// function with no MIR body, e.g. a runtime helper).
	changed := true
	for changed {
		changed = false
		for _, f := range prog.Funcs {
			if f.ExternalResource != mir.ResourceNone {
				continue
			}
			for _, callee := range callees[f.Name] {
				cf := byName[callee]
				if cf == nil {
					// Calling an unknown extern (runtime helper) makes
					// the caller impure unless the callee is a pure
					// mathematical helper; conservatively treat all
					// unresolved externs as impure, matching spec's
					// "I/O syscall" external resource class.
					f.ExternalResource = mir.ResourceSyscall
					changed = true
					break
				}
				if cf.ExternalResource != mir.ResourceNone {
					f.ExternalResource = mir.ResourceImpureCall
					changed = true
					break
				}
			}
		}
	}

	markEntrance(prog, callees, byName)
}

// markEntrance classifies every function not already flagged Multi as
// Never (unreachable from main), Single (main, or at most one call
// site) or Multi (more than one call site).
func markEntrance(prog *mir.Program, callees map[string][]string, byName map[string]*mir.Function) {
	callCount := map[string]int{}
	for _, cs := range callees {
		for _, c := range cs {
			callCount[c]++
		}
	}
	reachable := map[string]bool{}
	var walk func(string)
	walk = func(name string) {
		if reachable[name] {
			return
		}
		reachable[name] = true
		for _, c := range callees[name] {
			walk(c)
		}
	}
	if _, ok := byName["main"]; ok {
		walk("main")
	}
	for _, f := range prog.Funcs {
		if f.Entrance == mir.EntranceMulti {
			continue
		}
		if f.Name == "main" || reachable[f.Name] {
			if callCount[f.Name] <= 1 {
				f.Entrance = mir.EntranceSingle
			} else {
				f.Entrance = mir.EntranceMulti
			}
		} else {
			f.Entrance = mir.EntranceNever
		}
	}
}

// localExternalResource inspects fn's own instructions (ignoring
// callees) for effects that make it non-pure on its own: stores through
// a pointer parameter, stores to a global, or a call to a runtime
// helper.
func localExternalResource(fn *mir.Function) mir.ExternalResource {
	paramTemps := map[uint32]bool{}
	for _, p := range fn.Params {
		if p.Kind == mir.ValueTempKind {
			paramTemps[p.Tmp.ID] = true
		}
	}
	// A GEP off a pointer parameter still addresses the caller's memory.
	for grew := true; grew; {
		grew = false
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				if instr.Variant == mir.VGEP && instr.Addr.Kind == mir.ValueTempKind &&
					paramTemps[instr.Addr.Tmp.ID] && !paramTemps[instr.Target.ID] {
					paramTemps[instr.Target.ID] = true
					grew = true
				}
			}
		}
	}
	for _, b := range fn.Blocks {
		for _, instr := range allInstrs(b) {
			switch instr.Variant {
			case mir.VStore:
				if instr.Addr.Kind == mir.ValueTempKind {
					t := instr.Addr.Tmp
					if t.IsGlobal {
						return mir.ResourceGlobalStore
					}
					if paramTemps[t.ID] {
						return mir.ResourcePointerStore
					}
				}
			case mir.VCall:
				if runtimeHelpers[string(instr.CallFunc)] {
					return mir.ResourceSyscall
				}
			}
		}
	}
	return mir.ResourceNone
}

func allInstrs(b *mir.BasicBlock) []*mir.Instruction {
	return append(append([]*mir.Instruction(nil), b.Phis...), b.Instrs...)
}

// tarjanSCC returns the strongly-connected components of the call
// graph in reverse-topological (bottom-up) order.
func tarjanSCC(prog *mir.Program, edges map[string][]string) [][]string {
	index := map[string]int{}
	low := map[string]int{}
	onStack := map[string]bool{}
	var stack []string
	var sccs [][]string
	counter := 0

	names := make([]string, 0, len(prog.Funcs))
	for _, f := range prog.Funcs {
		names = append(names, f.Name)
	}
	sort.Strings(names)

	var strongconnect func(v string)
	strongconnect = func(v string) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, ok := index[w]; !ok {
				if _, known := indexOf(names, w); !known {
					continue // unresolved extern, not part of the graph
				}
				strongconnect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] {
				if index[w] < low[v] {
					low[v] = index[w]
				}
			}
		}

		if low[v] == index[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, v := range names {
		if _, ok := index[v]; !ok {
			strongconnect(v)
		}
	}
	return sccs
}

func indexOf(s []string, v string) (int, bool) {
	for i, x := range s {
		if x == v {
			return i, true
		}
	}
	return 0, false
}
