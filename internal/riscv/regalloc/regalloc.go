package regalloc

import (
	"sort"

	"sysyc/internal/riscv"
)

// scratchInt/scratchFloat are held back from the colorable palette so
// spill reload/store code always has somewhere to put a value, even
// when every other register in the class is already live. Two are
// reserved per class since a single instruction can reference two
// spilled operands at once (e.g. add with both sides spilled).
var scratchInt = [2]riscv.RealReg{riscv.T5, riscv.T6}
var scratchFloat = [2]riscv.RealReg{30, 31} // ft10, ft11

// cacheBucketReg and cacheKeyReg are reserved out of the int palette
// for every function the result cache (C10) wraps: the bucket index
// and packed key the hasher block computes must survive untouched from
// function entry all the way to whichever block eventually returns,
// and cache.Inject runs after this allocator has already colored the
// body, so nothing else may ever be colored to them.
const (
	cacheBucketReg = riscv.S11
	cacheKeyReg    = riscv.S10
)

func allocatablePalette(c riscv.RegClass, needCache bool) []riscv.RealReg {
	var all []riscv.RealReg
	var scratch [2]riscv.RealReg
	if c == riscv.RegClassFloat {
		all = riscv.FloatAllocatable()
		scratch = scratchFloat
	} else {
		all = riscv.IntAllocatable()
		scratch = scratchInt
	}
	out := all[:0:0]
	for _, r := range all {
		if r == scratch[0] || r == scratch[1] {
			continue
		}
		// a0-a7/fa0-fa7 are excluded: the selector writes them directly
		// for call arguments and returns, and this graph carries no
		// precolor edges that would keep a vreg out of their way there.
		if r >= riscv.A0 && r <= riscv.A7 {
			continue
		}
		if needCache && c == riscv.RegClassInt && (r == cacheBucketReg || r == cacheKeyReg) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Result is the allocator's full output for one function: a real
// register or spill slot for every vreg of both classes, plus the
// per-instruction liveness the allocator's annotateCallClobbers uses to
// decide which registers need saving across a call (the frame pass reads
// only the save sets it records).
type Result struct {
	IntColor    map[uint32]riscv.RealReg
	FloatColor  map[uint32]riscv.RealReg
	IntSpillSlot   map[uint32]int64
	FloatSpillSlot map[uint32]int64

	IntLiveAfter   map[*riscv.Block][]map[uint32]bool
	FloatLiveAfter map[*riscv.Block][]map[uint32]bool
}

// Allocate colors every vreg in fn and rewrites its instruction stream
// in place to reference real registers, inserting spill reload/store
// code around any vreg that did not get a color. fn.SpillSlots is
// set to the total byte size of the spill area (the frame pass lays
// that area out just past the alloca area).
func Allocate(fn *riscv.Func) *Result {
	res := &Result{
		IntColor: map[uint32]riscv.RealReg{}, FloatColor: map[uint32]riscv.RealReg{},
		IntSpillSlot: map[uint32]int64{}, FloatSpillSlot: map[uint32]int64{},
	}

	coalesceMoves(fn, riscv.RegClassInt, len(allocatablePalette(riscv.RegClassInt, fn.NeedCache)))
	coalesceMoves(fn, riscv.RegClassFloat, len(allocatablePalette(riscv.RegClassFloat, fn.NeedCache)))

	res.IntLiveAfter = PerInstrLive(fn, riscv.RegClassInt)
	res.FloatLiveAfter = PerInstrLive(fn, riscv.RegClassFloat)

	intGraph := buildGraph(fn, riscv.RegClassInt, res.IntLiveAfter)
	floatGraph := buildGraph(fn, riscv.RegClassFloat, res.FloatLiveAfter)

	intResult := colorGraph(intGraph, allocatablePalette(riscv.RegClassInt, fn.NeedCache), spillCosts(fn, riscv.RegClassInt))
	floatResult := colorGraph(floatGraph, allocatablePalette(riscv.RegClassFloat, fn.NeedCache), spillCosts(fn, riscv.RegClassFloat))

	res.IntColor = intResult.color
	res.FloatColor = floatResult.color

	var nextSlot int64
	res.IntSpillSlot, nextSlot = assignSpillSlots(intGraph, intResult.spilled, 0)
	res.FloatSpillSlot, nextSlot = assignSpillSlots(floatGraph, floatResult.spilled, nextSlot)
	fn.SpillSlots = nextSlot

	annotateCallClobbers(fn, res)
	rewrite(fn, res)
	return res
}

// callerSavedSet builds a lookup of which RealReg values are caller-save
// in their class, used to filter annotateCallClobbers' live-set down to
// registers a callee may actually clobber.
func callerSavedSet(regs []riscv.RealReg) map[riscv.RealReg]bool {
	out := map[riscv.RealReg]bool{}
	for _, r := range regs {
		out[r] = true
	}
	return out
}

var intCallerSavedSet = callerSavedSet(riscv.IntCallerSaved)
var floatCallerSavedSet = callerSavedSet(riscv.FloatCallerSaved)

// annotateCallClobbers records, on every CallMarkerSave instruction, the
// real registers that are both caller-save and colored to a vreg still
// live immediately after the marker. This is the "walk instructions
// bottom-up, maintaining the live-set of physical registers" snapshot
// of spec §4.C8, computed here (top-down from the fixpoint liveness
// already on hand) rather than as a second bottom-up walk, and it must
// run before rewrite() inserts spill code around the marker's
// neighbors: the marker Instr itself survives rewrite unchanged (it has
// no vreg operands), but instruction indices into IntLiveAfter/
// FloatLiveAfter only line up with the still-unrewritten block.
func annotateCallClobbers(fn *riscv.Func, res *Result) {
	for _, b := range fn.Blocks {
		for idx, instr := range b.Instrs {
			if instr.Op != riscv.OpCallMarkerSave {
				continue
			}
			var clobbers []riscv.ClobberedReg
			for id := range res.IntLiveAfter[b][idx] {
				if r, ok := res.IntColor[id]; ok && intCallerSavedSet[r] {
					clobbers = append(clobbers, riscv.ClobberedReg{Reg: r, Class: riscv.RegClassInt})
				}
			}
			for id := range res.FloatLiveAfter[b][idx] {
				if r, ok := res.FloatColor[id]; ok && floatCallerSavedSet[r] {
					clobbers = append(clobbers, riscv.ClobberedReg{Reg: r, Class: riscv.RegClassFloat})
				}
			}
			sort.Slice(clobbers, func(i, j int) bool {
				if clobbers[i].Class != clobbers[j].Class {
					return clobbers[i].Class < clobbers[j].Class
				}
				return clobbers[i].Reg < clobbers[j].Reg
			})
			instr.CallClobbers = clobbers
		}
	}
}
