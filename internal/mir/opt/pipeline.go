package opt

import (
	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// maxFunctionRounds bounds the inner per-function fixpoint loop; the
// passes it runs are each individually terminating (every round either
// strictly shrinks instruction count or hits its own fixpoint), so this
// is a defensive cap against an unforeseen oscillation rather than an
// expected limit.
const maxFunctionRounds = 32

// maxProgramRounds bounds the outer whole-program loop (inlining
// changes call graphs and can expose new per-function opportunities,
// so one function-level fixpoint pass is not always enough).
const maxProgramRounds = 8

// RunPipeline runs every C5 optimization pass to a fixpoint. The
// implementation has to pick an explicit pass order; the schedule
// below runs cheap local cleanups first so later, more expensive
// structural passes (loop canonicalization, OSR, unrolling) see
// already-simplified code, and interleaves whole-program inlining
// between rounds since it is the one pass that changes a function
// other than the one it's nominally invoked on.
//
// parallelize gates the optional §5 loop-parallelizer; it's a plain
// bool rather than the driver's config.Config so this package doesn't
// take on a dependency running the other direction (cmd/sysyc already
// depends on internal/mir/opt).
func RunPipeline(prog *mir.Program, parallelize bool) error {
	ClassifyPurity(prog)

	for round := 0; round < maxProgramRounds; round++ {
		anyChanged := false

		for _, fn := range prog.Funcs {
			if len(fn.Blocks) == 0 {
				continue
			}
			changed, err := runFunctionFixpoint(prog, fn, parallelize)
			if err != nil {
				return err
			}
			if changed {
				anyChanged = true
			}
		}

		inlined, err := Inline(prog)
		if err != nil {
			return err
		}
		if inlined {
			anyChanged = true
			ClassifyPurity(prog)
		}

		if !anyChanged {
			break
		}
	}

	ClassifyCacheEligibility(prog)
	return nil
}

func runFunctionFixpoint(prog *mir.Program, fn *mir.Function, parallelize bool) (bool, error) {
	c := cfg.New(fn)
	c.Analysis()

	everChanged := false
	for i := 0; i < maxFunctionRounds; i++ {
		roundChanged := false

		if _, err := runPass(Mem2Reg, fn, c, &roundChanged); err != nil {
			return everChanged, err
		}
		if _, err := runPass(GVN, fn, c, &roundChanged); err != nil {
			return everChanged, err
		}
		if _, err := runPass(ArithCanon, fn, c, &roundChanged); err != nil {
			return everChanged, err
		}
		if _, err := runPass(SimplifyCompare, fn, c, &roundChanged); err != nil {
			return everChanged, err
		}
		if _, err := runPass(RangeAnalysis, fn, c, &roundChanged); err != nil {
			return everChanged, err
		}
		if _, err := runPass(Hoist, fn, c, &roundChanged); err != nil {
			return everChanged, err
		}
		if _, err := runPass(IfCombine, fn, c, &roundChanged); err != nil {
			return everChanged, err
		}
		if _, err := runPass(LoopSimplify, fn, c, &roundChanged); err != nil {
			return everChanged, err
		}
		if parallelize {
			if _, err := runPass(Parallelize, fn, c, &roundChanged); err != nil {
				return everChanged, err
			}
		}
		if _, err := runPass(OSR, fn, c, &roundChanged); err != nil {
			return everChanged, err
		}
		if _, err := runPass(IVExtract, fn, c, &roundChanged); err != nil {
			return everChanged, err
		}
		if _, err := runPass(Unroll, fn, c, &roundChanged); err != nil {
			return everChanged, err
		}
		if changed, err := LocalizeGlobals(prog, fn, c); err != nil {
			return everChanged, err
		} else if changed {
			roundChanged = true
		}
		if changed, err := BatchZeroInit(fn); err != nil {
			return everChanged, err
		} else if changed {
			roundChanged = true
			c.Analysis()
		}
		if changed, err := dceRound(fn, c, prog); err != nil {
			return everChanged, err
		} else if changed {
			roundChanged = true
		}

		if roundChanged {
			everChanged = true
		} else {
			break
		}
	}
	return everChanged, nil
}

type passFunc func(*mir.Function, *cfg.CFG) (bool, error)

func runPass(p passFunc, fn *mir.Function, c *cfg.CFG, roundChanged *bool) (bool, error) {
	changed, err := p(fn, c)
	if err != nil {
		return false, err
	}
	if changed {
		*roundChanged = true
	}
	return changed, nil
}

func dceRound(fn *mir.Function, c *cfg.CFG, prog *mir.Program) (bool, error) {
	pureFuncs := map[string]bool{}
	for _, f := range prog.Funcs {
		pureFuncs[f.Name] = f.IsPure()
	}
	return DCE(fn, c, pureFuncs)
}
