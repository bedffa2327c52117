// Package cache implements the stateless function result cache (spec
// §4.C10): for each function opt.ClassifyCacheEligibility flagged
// NeedCache, Inject prepends a hasher block, a CACHE_SIZE-deep probe
// chain, a shared return-from-cache block, and a go_to_normal miss path
// ahead of the function's original entry, and returns the three backing
// .bss globals the driver must append to the program.
//
// This runs between register allocation (C7) and frame construction
// (C8), per spec's stated component ordering: the new blocks reference
// real registers directly (there is nothing left to color), and still
// need a prologue/epilogue of their own, which C8 builds once over the
// whole, now-larger, block list.
package cache

import (
	"fmt"
	"math"

	"sysyc/internal/mir"
	"sysyc/internal/riscv"
	"sysyc/internal/sysyapi"

	"github.com/google/uuid"
)

// bucketReg holds the hasher's computed bucket index from function
// entry through to whichever block eventually returns; regalloc holds
// this register out of the palette for every NeedCache function so
// nothing in the body can ever be colored to it (see
// internal/riscv/regalloc's cacheBucketReg).
var bucketReg = riscv.RealOperand(riscv.S11, riscv.RegClassInt)

// keyReg holds the packed argument key from the hasher all the way to
// the body's returns: the (key, result, occupied) triple is written as
// one consistent unit at the return point, never half-early in
// go_to_normal, so a same-bucket nested call can interleave its own
// table update without ever leaving a key paired with someone else's
// result. Like the bucket register it is callee-saved and held out of
// the allocator's palette for cached functions.
var keyReg = riscv.RealOperand(riscv.S10, riscv.RegClassInt)

// Scratch registers live only across the cache prelude's own blocks
// and the short store-result run ahead of each return; no vreg is live
// in a caller-saved temporary at either point, so no reservation is
// needed.
var (
	scratchA = riscv.RealOperand(riscv.T0, riscv.RegClassInt)
	scratchB = riscv.RealOperand(riscv.T1, riscv.RegClassInt)
	scratchC = riscv.RealOperand(riscv.T2, riscv.RegClassInt)
	slotReg  = riscv.RealOperand(riscv.T4, riscv.RegClassInt)
)

var intArgRegs = []riscv.RealReg{riscv.A0, riscv.A1, riscv.A2, riscv.A3, riscv.A4, riscv.A5, riscv.A6, riscv.A7}

// Globals names the three backing arrays Inject allocates for one
// cached function.
type Globals struct {
	Arg   *mir.GlobalVar // stored key per slot
	Ret   *mir.GlobalVar // cached result per slot
	Begin *mir.GlobalVar // 0/1 occupancy flag per slot ("has this slot ever been written")
}

// Names is a program-wide registry of global symbol names already in
// use, threaded across every Inject call so two source functions that
// mangle to the same name never collide on their injected globals;
// on collision a short UUID suffix disambiguates, wiring
// github.com/google/uuid into the symbol-naming path per the project's
// dependency survey.
type Names struct {
	used map[string]bool
}

// NewNames seeds a registry from every global name already in the
// program (front-end globals plus anything an earlier Inject call
// already reserved).
func NewNames(prog *mir.Program) *Names {
	n := &Names{used: map[string]bool{}}
	for _, g := range prog.GlobalVars {
		n.used[g.Name] = true
	}
	return n
}

func (n *Names) reserve(base string) string {
	name := base
	for n.used[name] {
		name = base + "_" + uuid.New().String()[:8]
	}
	n.used[name] = true
	return name
}

// Inject wraps fn in a result cache and returns the three globals the
// caller must append to the program's GlobalVars (the data-section
// emitter reads mir.GlobalVar directly; there is no RISC-V-specific
// global representation). fn must already be register-allocated;
// retIsFloat selects whether the cached return slot is loaded/stored
// with Flw/Fsw or Lw/Sw.
func Inject(fn *riscv.Func, names *Names, retIsFloat bool) *Globals {
	globals := allocGlobals(fn.Name, names, retIsFloat)

	origEntry := fn.Blocks[0]
	origBlocks := append([]*riscv.Block{}, fn.Blocks...)
	rewriteReturns(origBlocks, globals, retIsFloat)

	numArgs := len(fn.Params)
	if numArgs > len(intArgRegs) {
		numArgs = len(intArgRegs)
	}

	hasher := hasherBlock(fn.Name, numArgs)
	probes := make([]*riscv.Block, sysyapi.CacheSize)
	for i := range probes {
		probes[i] = probeBlock(fn.Name, i, globals)
	}
	hit := cacheHitBlock(fn.Name, globals, retIsFloat)
	miss := goToNormalBlock(fn.Name, globals, origEntry.Label)

	wireProbeChain(hasher, probes, hit, miss, origEntry)

	newBlocks := append([]*riscv.Block{hasher}, probes...)
	newBlocks = append(newBlocks, hit, miss)
	fn.Blocks = append(newBlocks, fn.Blocks...)

	return globals
}

// rewriteReturns inserts the full table update — key, result, and the
// occupancy flag, in that order — immediately before every OpRetPseudo
// already present in the function's original body. Both bucketReg and
// keyReg are still valid at every one of these points: nothing in the
// body may be colored to them (regalloc excludes both whenever
// fn.NeedCache is set), and no call along the way clobbers them either,
// since both are callee-saved under the standard ABI.
func rewriteReturns(blocks []*riscv.Block, g *Globals, retIsFloat bool) {
	for _, b := range blocks {
		var out []*riscv.Instr
		for _, instr := range b.Instrs {
			if instr.Op == riscv.OpRetPseudo {
				out = append(out, storeResultSeq(g, retIsFloat)...)
			}
			out = append(out, instr)
		}
		b.Instrs = out
	}
}

func storeResultSeq(g *Globals, retIsFloat bool) []*riscv.Instr {
	var seq []*riscv.Instr
	// ARG[bucket] = key (8-byte slots)
	seq = append(seq, &riscv.Instr{Op: riscv.OpSlli, Dst: scratchA, Src1: bucketReg, Src2: riscv.ImmOperand(3)})
	seq = append(seq, &riscv.Instr{Op: riscv.OpLa, Dst: scratchB, Target: g.Arg.Name})
	seq = append(seq, &riscv.Instr{Op: riscv.OpAdd, Dst: scratchB, Src1: scratchB, Src2: scratchA})
	seq = append(seq, &riscv.Instr{Op: riscv.OpSd, Src1: keyReg, Src2: scratchB, Dst: riscv.Operand{}})
	// RETURN[bucket] = a0/fa0
	seq = append(seq, &riscv.Instr{Op: riscv.OpSlli, Dst: scratchA, Src1: bucketReg, Src2: riscv.ImmOperand(2)})
	seq = append(seq, &riscv.Instr{Op: riscv.OpLa, Dst: scratchB, Target: g.Ret.Name})
	seq = append(seq, &riscv.Instr{Op: riscv.OpAdd, Dst: scratchB, Src1: scratchB, Src2: scratchA})
	if retIsFloat {
		seq = append(seq, &riscv.Instr{Op: riscv.OpFsw, Src1: riscv.RealOperand(riscv.A0, riscv.RegClassFloat), Src2: scratchB, Dst: riscv.Operand{}})
	} else {
		seq = append(seq, &riscv.Instr{Op: riscv.OpSw, Src1: riscv.RealOperand(riscv.A0, riscv.RegClassInt), Src2: scratchB, Dst: riscv.Operand{}})
	}
	// BEGIN[bucket] = 1
	seq = append(seq, &riscv.Instr{Op: riscv.OpSlli, Dst: scratchA, Src1: bucketReg, Src2: riscv.ImmOperand(2)})
	seq = append(seq, &riscv.Instr{Op: riscv.OpAddi, Dst: scratchC, Src1: riscv.RealOperand(riscv.X0, riscv.RegClassInt), Src2: riscv.ImmOperand(1)})
	seq = append(seq, &riscv.Instr{Op: riscv.OpLa, Dst: scratchB, Target: g.Begin.Name})
	seq = append(seq, &riscv.Instr{Op: riscv.OpAdd, Dst: scratchB, Src1: scratchB, Src2: scratchA})
	seq = append(seq, &riscv.Instr{Op: riscv.OpSw, Src1: scratchC, Src2: scratchB, Dst: riscv.Operand{}})
	return seq
}

// keySlotSize is the ARG table's per-slot width: the packed lookup key
// is a full 64-bit word, unlike the 4-byte result/occupancy slots.
const keySlotSize = 8

func allocGlobals(fnName string, names *Names, retIsFloat bool) *Globals {
	slots := int64(sysyapi.CacheSize)
	arg := &mir.GlobalVar{Name: names.reserve("__cache_" + fnName + "_ARG"), IsArray: true, Data: []mir.GlobalInit{mir.ZeroInit(slots * keySlotSize)}}
	begin := &mir.GlobalVar{Name: names.reserve("__cache_" + fnName + "_BEGIN"), IsArray: true, Data: []mir.GlobalInit{mir.ZeroInit(slots * mir.ElemSize)}}
	ret := &mir.GlobalVar{Name: names.reserve("__cache_" + fnName + "_RETURN"), IsArray: true, IsFloat: retIsFloat, Data: []mir.GlobalInit{mir.ZeroInit(slots * mir.ElemSize)}}
	return &Globals{Arg: arg, Ret: ret, Begin: begin}
}

func probeLabel(fnName string, i int) string { return fmt.Sprintf("%s$cache_probe%d", fnName, i) }
func hasherLabel(fnName string) string       { return fnName + "$cache_hash" }
func hitLabel(fnName string) string          { return fnName + "$cache_hit" }
func missLabel(fnName string) string         { return fnName + "$cache_miss" }

// hasherBlock packs the argument words into the 64-bit lookup key in
// keyReg (first argument in the low half, second in the high half, so
// distinct argument tuples always produce distinct keys), then masks
// the key down to a bucket index in bucketReg: the low
// log2(CACHE_SIZE) bits select the bucket.
func hasherBlock(fnName string, numArgs int) *riscv.Block {
	b := &riscv.Block{Label: hasherLabel(fnName), Weight: 1.0}
	a0 := riscv.RealOperand(intArgRegs[0], riscv.RegClassInt)
	// zero-extend the (sign-extended) first argument into the low half
	b.AddInstr(&riscv.Instr{Op: riscv.OpSlli, Dst: keyReg, Src1: a0, Src2: riscv.ImmOperand(32)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpSrli, Dst: keyReg, Src1: keyReg, Src2: riscv.ImmOperand(32)})
	if numArgs > 1 {
		a1 := riscv.RealOperand(intArgRegs[1], riscv.RegClassInt)
		b.AddInstr(&riscv.Instr{Op: riscv.OpSlli, Dst: scratchA, Src1: a1, Src2: riscv.ImmOperand(32)})
		b.AddInstr(&riscv.Instr{Op: riscv.OpOr, Dst: keyReg, Src1: keyReg, Src2: scratchA})
	}
	b.AddInstr(&riscv.Instr{Op: riscv.OpAndi, Dst: bucketReg, Src1: keyReg, Src2: riscv.ImmOperand(int32(sysyapi.CacheSize - 1))})
	b.AddInstr(&riscv.Instr{Op: riscv.OpJal, Target: probeLabel(fnName, 0)})
	return b
}

// probeBlock builds probe i: it checks bucket+i (mod CacheSize), and on
// a valid, matching slot jumps to the shared hit block with the slot
// index left in slotReg; otherwise it falls through to the next probe,
// or to go_to_normal once every slot has been checked.
func probeBlock(fnName string, i int, g *Globals) *riscv.Block {
	weight := 1.0 * math.Pow(0.95, float64(i+1)) // kept cold; spec: "weighted so the optimizer keeps them cold"
	b := &riscv.Block{Label: probeLabel(fnName, i), Weight: weight}

	b.AddInstr(&riscv.Instr{Op: riscv.OpAddi, Dst: slotReg, Src1: bucketReg, Src2: riscv.ImmOperand(int32(i))})
	b.AddInstr(&riscv.Instr{Op: riscv.OpAndi, Dst: slotReg, Src1: slotReg, Src2: riscv.ImmOperand(int32(sysyapi.CacheSize - 1))})

	missTarget := missLabel(fnName)
	if i+1 < sysyapi.CacheSize {
		missTarget = probeLabel(fnName, i+1)
	}

	// valid := BEGIN[slot]; miss if unoccupied.
	b.AddInstr(&riscv.Instr{Op: riscv.OpSlli, Dst: scratchA, Src1: slotReg, Src2: riscv.ImmOperand(2)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpLa, Dst: scratchB, Target: g.Begin.Name})
	b.AddInstr(&riscv.Instr{Op: riscv.OpAdd, Dst: scratchB, Src1: scratchB, Src2: scratchA})
	b.AddInstr(&riscv.Instr{Op: riscv.OpLw, Dst: scratchC, Src1: scratchB, Src2: riscv.Operand{}})
	b.AddInstr(&riscv.Instr{Op: riscv.OpBeq, Src1: scratchC, Src2: riscv.RealOperand(riscv.X0, riscv.RegClassInt), Target: missTarget})

	// stored key := ARG[slot] (8-byte slots); miss if it doesn't match.
	b.AddInstr(&riscv.Instr{Op: riscv.OpSlli, Dst: scratchA, Src1: slotReg, Src2: riscv.ImmOperand(3)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpLa, Dst: scratchB, Target: g.Arg.Name})
	b.AddInstr(&riscv.Instr{Op: riscv.OpAdd, Dst: scratchB, Src1: scratchB, Src2: scratchA})
	b.AddInstr(&riscv.Instr{Op: riscv.OpLd, Dst: scratchC, Src1: scratchB, Src2: riscv.Operand{}})
	b.AddInstr(&riscv.Instr{Op: riscv.OpBne, Src1: scratchC, Src2: keyReg, Target: missTarget})

	b.AddInstr(&riscv.Instr{Op: riscv.OpJal, Target: hitLabel(fnName)})
	return b
}

// cacheHitBlock loads the cached result for slotReg (left set by
// whichever probe jumped here) and returns it directly.
func cacheHitBlock(fnName string, g *Globals, retIsFloat bool) *riscv.Block {
	b := &riscv.Block{Label: hitLabel(fnName), Weight: 0.3}
	b.AddInstr(&riscv.Instr{Op: riscv.OpSlli, Dst: scratchA, Src1: slotReg, Src2: riscv.ImmOperand(2)})
	b.AddInstr(&riscv.Instr{Op: riscv.OpLa, Dst: scratchB, Target: g.Ret.Name})
	b.AddInstr(&riscv.Instr{Op: riscv.OpAdd, Dst: scratchB, Src1: scratchB, Src2: scratchA})
	if retIsFloat {
		b.AddInstr(&riscv.Instr{Op: riscv.OpFlw, Dst: riscv.RealOperand(riscv.A0, riscv.RegClassFloat), Src1: scratchB, Src2: riscv.Operand{}})
	} else {
		b.AddInstr(&riscv.Instr{Op: riscv.OpLw, Dst: riscv.RealOperand(riscv.A0, riscv.RegClassInt), Src1: scratchB, Src2: riscv.Operand{}})
	}
	b.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})
	return b
}

// goToNormalBlock hands control to the function's real body. The table
// itself — key, result, occupancy — is written as one unit by
// rewriteReturns once the body has actually computed the answer, so a
// probe can never observe a key paired with a stale result.
func goToNormalBlock(fnName string, g *Globals, origEntryLabel string) *riscv.Block {
	b := &riscv.Block{Label: missLabel(fnName), Weight: 1.0}
	// An explicit jump, not just list-order fallthrough: serialize (C9)
	// runs after this and is free to lay blocks out differently;
	// elideFallthroughs strips this back out if it does land adjacent.
	b.AddInstr(&riscv.Instr{Op: riscv.OpJal, Target: origEntryLabel})
	return b
}

// wireProbeChain links every cache-prelude block's Preds/Succs.
func wireProbeChain(hasher *riscv.Block, probes []*riscv.Block, hit, miss, origEntry *riscv.Block) {
	riscv.AddEdge(hasher, probes[0])
	for i, p := range probes {
		var next *riscv.Block
		if i+1 < len(probes) {
			next = probes[i+1]
		} else {
			next = miss
		}
		riscv.AddEdge(p, next)
		riscv.AddEdge(p, hit)
	}
	riscv.AddEdge(miss, origEntry)
}
