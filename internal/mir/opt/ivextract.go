package opt

import (
	"sysyc/internal/mir"
	"sysyc/internal/mir/cfg"
)

// IVExtract replaces a recognized induction variable's header phi with
// its closed form computed once at the pre-header, whenever the loop's
// trip count n is provably constant and the IV is not "useful" for
// anything beyond driving the loop's own exit test (spec §4.C5.j). The
// closed form is evaluated via closedFormValue, which covers both the
// ordinary single-coefficient counter (`base +/- n*step`) and a
// chained accumulator whose step is itself another induction variable
// (`s += i`, spec §8.3.1's flagship case), reduced with Newton's
// forward-difference identity instead of materializing the loop.
func IVExtract(fn *mir.Function, c *cfg.CFG) (bool, error) {
	changed := false
	for _, lp := range c.Loops.ByHeader {
		ivs := RecognizeInductionVars(fn, c, lp)
		pre := lp.Preheader(c)
		if pre == nil {
			continue
		}

		if tc, ok := ComputeTripCount(lp, ivs); ok {
			for _, iv := range ivs {
				if iv.Kind != IVInduction || iv.Useful || iv.Header.ID == tc.Counter.Header.ID {
					continue // the loop's own counter still drives the exit test; leave it live
				}
				replacement, ok := closedFormValue(iv, tc.N)
				if !ok {
					continue
				}
				rewriteUses(fn, iv.Header.ID, replacement)
				removePhi(lp.Header, iv.Header.ID)
				changed = true
			}
			continue
		}

		// The trip count isn't a compile-time constant (e.g. bounded by a
		// function parameter, spec §8.3.1's `for(i=0;i<n;i++) s+=i;`) —
		// fall back to computing it, and any dependent closed form, as
		// real arithmetic emitted into the pre-header rather than folded
		// at compile time. Check that some IV is actually extractable
		// before emitting anything, so a settled loop isn't churned with
		// trip-count arithmetic the next DCE just deletes again.
		counterIV, _, _, _, _, _, ok := matchCounterIV(lp, ivs)
		if !ok || !anySymbolicallyExtractable(ivs, counterIV.Header.ID) {
			continue
		}
		nVal, counterHeaderID, ok := symbolicTripValue(fn, pre, lp, ivs)
		if !ok {
			continue
		}
		for _, iv := range ivs {
			if iv.Kind != IVInduction || iv.Useful || iv.Header.ID == counterHeaderID {
				continue
			}
			replacement, ok := emitClosedForm(fn, pre, iv, nVal)
			if !ok {
				continue
			}
			rewriteUses(fn, iv.Header.ID, replacement)
			removePhi(lp.Header, iv.Header.ID)
			changed = true
		}
	}
	if changed {
		c.Analysis()
	}
	return changed, nil
}

// anySymbolicallyExtractable reports whether the symbolic closed-form
// path would replace at least one induction variable, mirroring
// emitClosedForm's own preconditions without emitting anything.
func anySymbolicallyExtractable(ivs []InductionVar, counterID uint32) bool {
	for _, iv := range ivs {
		if iv.Kind != IVInduction || iv.Useful || iv.Header.ID == counterID || iv.Modulus != nil {
			continue
		}
		if !iv.Base.IsConst() {
			continue
		}
		constSteps := true
		for _, s := range iv.Steps {
			if !s.IsConst() {
				constSteps = false
			}
		}
		if !constSteps {
			continue
		}
		switch iv.Op {
		case mir.Add, mir.Fadd:
			return true
		case mir.Sub, mir.Fsub:
			if len(iv.Steps) == 1 {
				return true
			}
		}
	}
	return false
}

// symbolicTripValue computes a loop's trip count as a pre-header value
// when matchCounterIV finds the canonical counted shape but the bound
// isn't a compile-time constant, mirroring tripCountFor's
// (bound-start+step-1)/step formula (analogous for `<=`) with emitted
// arithmetic instead of int64 math. Only increasing counters (step > 0)
// compared via SLT/SLE are handled — the shape every counted for-loop
// this front end emits takes — so a decreasing counter simply isn't
// extracted symbolically; it still works once/if its bound becomes a
// provable constant via ComputeTripCount.
func symbolicTripValue(fn *mir.Function, pre *mir.BasicBlock, lp *cfg.Loop, ivs []InductionVar) (mir.Value, uint32, bool) {
	iv, start, step, bound, op, _, ok := matchCounterIV(lp, ivs)
	if !ok || step <= 0 || (op != mir.SLT && op != mir.SLE) {
		return mir.Value{}, 0, false
	}
	diff := emitArith(fn, pre, mir.Sub, mir.I32, bound, mir.IntVal(start))
	adjust := step - 1
	if op == mir.SLE {
		adjust = step
	}
	adjusted := emitArith(fn, pre, mir.Add, mir.I32, diff, mir.IntVal(adjust))
	raw := emitArith(fn, pre, mir.Div, mir.I32, adjusted, mir.IntVal(step))
	n := clampNonNegative(fn, pre, raw)
	return n, iv.Header.ID, true
}

// clampNonNegative computes max(v, 0) branch-free: v's own sign bit,
// arithmetic-shifted across the whole word and inverted, is all-ones
// when v >= 0 (so ANDing leaves v unchanged) and all-zero when v < 0
// (so ANDing zeroes it out). Needed because the literal trip-count path
// special-cases a start-past-bound loop as zero iterations (tripCountFor),
// but a symbolic bound can't be compared against start until runtime,
// and the loop's own header test — not this computed value — is what
// actually decides whether the body ever ran.
func clampNonNegative(fn *mir.Function, pre *mir.BasicBlock, v mir.Value) mir.Value {
	signMask := emitArith(fn, pre, mir.Ashr, mir.I32, v, mir.IntVal(31))
	notMask := emitArith(fn, pre, mir.Xor, mir.I32, signMask, mir.IntVal(-1))
	return emitArith(fn, pre, mir.And, mir.I32, v, notMask)
}

// emitArith folds op over a,b at compile time when both are constant,
// and otherwise emits a real instruction into the block, ahead of its
// terminator (the pre-header ends in a Jump to the header).
func emitArith(fn *mir.Function, into *mir.BasicBlock, op mir.ArithOp, typ mir.Type, a, b mir.Value) mir.Value {
	if v, folded, _ := mir.FoldConstArith(op, a, b); folded {
		return v
	}
	t := fn.TempMgr.New(typ)
	insertBeforeTerminator(into, mir.NewArith(t, op, typ, a, b))
	return mir.TempVal(t)
}

// emitClosedForm is closedFormValue's runtime-value counterpart: it
// evaluates Base +/- sum(Steps[i] * C(n,i+1)) the same way, but against
// a pre-header-computed trip-count value n rather than a known int64,
// emitting whatever arithmetic that can't be folded away immediately.
func emitClosedForm(fn *mir.Function, pre *mir.BasicBlock, iv InductionVar, n mir.Value) (mir.Value, bool) {
	if !iv.Base.IsConst() || iv.Modulus != nil {
		return mir.Value{}, false
	}
	for _, s := range iv.Steps {
		if !s.IsConst() {
			return mir.Value{}, false
		}
	}
	typ := iv.Header.Type
	var sub bool
	switch iv.Op {
	case mir.Add, mir.Fadd:
	case mir.Sub, mir.Fsub:
		if len(iv.Steps) != 1 {
			return mir.Value{}, false // chaining only ever produces Add/Fadd cycles
		}
		sub = true
	default:
		return mir.Value{}, false // Mul/Fmul cycles need exponentiation, not a binomial expansion
	}

	result := iv.Base
	for i, s := range iv.Steps {
		coef := emitBinomial(fn, pre, n, i+1) // always an integer count, regardless of iv's own type
		if typ == mir.F32 {
			coef = emitInt2Float(fn, pre, coef)
		}
		term := emitArith(fn, pre, mulOpFor(typ), typ, s, coef)
		if sub {
			result = emitArith(fn, pre, subOpFor(typ), typ, result, term)
		} else {
			result = emitArith(fn, pre, addOpFor(typ), typ, result, term)
		}
	}
	return result, true
}

// emitBinomial computes C(n, k) against a runtime trip-count value n,
// multiplying and dividing one term at a time exactly as binomial does
// over int64, so each partial product is itself an exact binomial
// coefficient even though the division happens at runtime.
func emitBinomial(fn *mir.Function, pre *mir.BasicBlock, n mir.Value, k int) mir.Value {
	result := mir.IntVal(1)
	for i := 0; i < k; i++ {
		term := emitArith(fn, pre, mir.Sub, mir.I32, n, mir.IntVal(int32(i)))
		result = emitArith(fn, pre, mir.Mul, mir.I32, result, term)
		result = emitArith(fn, pre, mir.Div, mir.I32, result, mir.IntVal(int32(i+1)))
	}
	return result
}

// emitInt2Float converts an i32 binomial coefficient to f32 so it can
// multiply a float-typed IV's step, folding immediately if v is already
// a compile-time constant.
func emitInt2Float(fn *mir.Function, pre *mir.BasicBlock, v mir.Value) mir.Value {
	if v.Kind == mir.ValueInt {
		return mir.FloatVal(float32(v.Int))
	}
	t := fn.TempMgr.New(mir.F32)
	insertBeforeTerminator(pre, mir.NewConvert(t, mir.Int2Float, mir.I32, mir.F32, v))
	return mir.TempVal(t)
}

func mulOpFor(typ mir.Type) mir.ArithOp {
	if typ == mir.F32 {
		return mir.Fmul
	}
	return mir.Mul
}

func addOpFor(typ mir.Type) mir.ArithOp {
	if typ == mir.F32 {
		return mir.Fadd
	}
	return mir.Add
}

func subOpFor(typ mir.Type) mir.ArithOp {
	if typ == mir.F32 {
		return mir.Fsub
	}
	return mir.Sub
}

// closedFormValue evaluates iv's value after n loop iterations without
// running the loop. ok is false when the polynomial can't be evaluated
// at compile time: a non-constant base/step, or a Mul/Fmul cycle (those
// only ever carry a single coefficient and would need exponentiation
// rather than a binomial expansion, which this pass doesn't attempt).
func closedFormValue(iv InductionVar, n int64) (mir.Value, bool) {
	if !iv.Base.IsConst() {
		return mir.Value{}, false
	}
	for _, s := range iv.Steps {
		if !s.IsConst() {
			return mir.Value{}, false
		}
	}
	if iv.Modulus != nil {
		// Per-iteration mod and mod-of-the-sum only agree while every
		// intermediate value stays non-negative.
		if iv.Op != mir.Add || iv.Base.Int < 0 || *iv.Modulus <= 0 {
			return mir.Value{}, false
		}
		for _, s := range iv.Steps {
			if s.Kind != mir.ValueInt || s.Int < 0 {
				return mir.Value{}, false
			}
		}
		return mir.IntVal(int32(closedFormInt(iv, n) % int64(*iv.Modulus))), true
	}
	switch iv.Op {
	case mir.Add, mir.Sub:
		if iv.Op == mir.Sub && len(iv.Steps) != 1 {
			return mir.Value{}, false // chaining only ever produces Add cycles
		}
		return mir.IntVal(int32(closedFormInt(iv, n))), true
	case mir.Fadd, mir.Fsub:
		if iv.Op == mir.Fsub && len(iv.Steps) != 1 {
			return mir.Value{}, false
		}
		return mir.FloatVal(float32(closedFormFloat(iv, n))), true
	default:
		return mir.Value{}, false
	}
}

// closedFormInt evaluates Base +/- sum(Steps[i] * C(n, i+1)) over int64,
// the hockey-stick expansion of a Newton forward-difference polynomial
// whose k-th finite difference is Steps[k-1].
func closedFormInt(iv InductionVar, n int64) int64 {
	result := int64(iv.Base.Int)
	sign := int64(1)
	if iv.Op == mir.Sub {
		sign = -1
	}
	for i, s := range iv.Steps {
		result += sign * int64(s.Int) * binomial(n, i+1)
	}
	return result
}

func closedFormFloat(iv InductionVar, n int64) float64 {
	result := float64(iv.Base.Flt)
	sign := float64(1)
	if iv.Op == mir.Fsub {
		sign = -1
	}
	for i, s := range iv.Steps {
		result += sign * float64(s.Flt) * float64(binomial(n, i+1))
	}
	return result
}

// binomial computes C(n, k) for n >= 0, k >= 0, multiplying and
// dividing one term at a time so every intermediate product is itself
// an exact binomial coefficient (and so stays exactly representable in
// int64 for the loop trip counts this compiler deals with).
func binomial(n int64, k int) int64 {
	if k < 0 || n < int64(k) {
		return 0
	}
	result := int64(1)
	for i := 0; i < k; i++ {
		result = result * (n - int64(i)) / int64(i+1)
	}
	return result
}

func removePhi(b *mir.BasicBlock, targetID uint32) {
	var kept []*mir.Instruction
	for _, phi := range b.Phis {
		if phi.Target != nil && phi.Target.ID == targetID {
			continue
		}
		kept = append(kept, phi)
	}
	b.Phis = kept
}
