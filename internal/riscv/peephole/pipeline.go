package peephole

import "sysyc/internal/riscv"

// maxRounds bounds the fixpoint loop the same way
// internal/mir/opt's pipeline does, as a backstop against a pass that
// never quite settles rather than an expected iteration count.
const maxRounds = 16

// Run applies every peephole pass to fn in rounds until a round changes
// nothing (at most maxRounds rounds). Each round runs BranchCombine
// first so DedupLoadImm and Schedule see the fused branches' narrower
// live ranges, then DedupLoadImm, LAReduce and finally Schedule.
func Run(fn *riscv.Func) {
	for round := 0; round < maxRounds; round++ {
		changed := false
		if BranchCombine(fn) {
			changed = true
		}
		if DedupLoadImm(fn) {
			changed = true
		}
		if LAReduce(fn) {
			changed = true
		}
		if Schedule(fn) {
			changed = true
		}
		if !changed {
			return
		}
	}
}
