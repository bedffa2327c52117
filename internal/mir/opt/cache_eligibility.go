package opt

import (
	"sysyc/internal/mir"
	"sysyc/internal/sysyapi"
)

// ClassifyCacheEligibility sets Function.NeedCache for every function
// the C10 result-cache pass should wrap (spec §4.C10, §9(c)). It must
// run after ClassifyPurity has produced a final ExternalResource for
// every function, and after inlining has stopped changing call graphs
// (RunPipeline calls it once, last, for that reason).
//
// The source grammar never spells out the eligibility predicate or its
// thresholds (§9(c) calls these out as tunable constants); this
// implementation requires:
//   - the function is pure (no own or transitive external resource)
//   - 1..CacheMaxArgs parameters, every one a scalar i32 (the hasher
//     mixes argument words with plain integer ops; floats would need a
//     bit-reinterpret the selector never emits, so float-parameter
//     functions are left uncached rather than taught a new op for a
//     corner the worked examples never exercise)
//   - a non-void scalar return (i32 or f32; the return slot is just a
//     width-appropriate store, so float returns need no special
//     handling)
//
// §4.C10's own prose calls out "non-recursive pure function", but the
// worked example in §8.3 caches a function defined by direct
// self-recursion (fib). This implementation resolves the contradiction
// in favor of the worked example: recursion does not disqualify a
// function, since nothing in the probe-chain/hasher mechanism actually
// depends on non-recursion -- each call still hashes its own argument
// tuple and probes the same shared table independent of any recursive
// calls in flight. See DESIGN.md.
func ClassifyCacheEligibility(prog *mir.Program) {
	for _, fn := range prog.Funcs {
		fn.NeedCache = eligible(fn)
	}
}

func eligible(fn *mir.Function) bool {
	if !fn.IsPure() {
		return false
	}
	if len(fn.Params) == 0 || len(fn.Params) > sysyapi.CacheMaxArgs {
		return false
	}
	for _, p := range fn.Params {
		if p.Type() != mir.I32 {
			return false
		}
	}
	return fn.RetType == mir.I32 || fn.RetType == mir.F32
}
