package peephole

import (
	"sysyc/internal/riscv"
	"sysyc/internal/sysyapi"
)

// Schedule reorders each maximal run of pure register-to-register
// instructions between the memory/control-flow/call barriers a block
// already preserves, moving instructions on a longer dependency chain
// earlier so their results are ready by the time something needs them.
// Grounded on
// backend/pre_optimizer/src/instruction_scheduling/{instr_schedule,instrdag}.rs,
// which builds the same kind of read/write dependency DAG over a
// block's instructions; this is a considerably smaller pass than the
// original's BFS state-search scheduler, which additionally models a
// target's pipeline latencies, register-pressure punishment terms, and
// software pipelining across blocks. None of that hardware cost model
// is reproduced: this pass only orders by a node's height (longest
// remaining dependency chain to a barrier), ties broken by original
// position to keep the output deterministic. The original's
// call-boundary physical-register bookkeeping (preprocess_call /
// postprocess_call) also has no counterpart here, since this runs
// before register allocation ever assigns a physical a0/fa0.
func Schedule(fn *riscv.Func) bool {
	changed := false
	nodes := sysyapi.NewPool[scheduleNode]()
	for _, b := range fn.Blocks {
		if scheduleBlock(b, &nodes) {
			changed = true
		}
	}
	return changed
}

func scheduleBlock(b *riscv.Block, pool *sysyapi.Pool[scheduleNode]) bool {
	changed := false
	var out []*riscv.Instr
	var run []*riscv.Instr
	flush := func() {
		if len(run) > 1 {
			scheduled := listSchedule(run, pool)
			out = append(out, scheduled...)
			for i, instr := range scheduled {
				if instr != run[i] {
					changed = true
				}
			}
		} else {
			out = append(out, run...)
		}
		run = nil
	}
	for _, instr := range b.Instrs {
		if isScheduleBarrier(instr) {
			flush()
			out = append(out, instr)
			continue
		}
		run = append(run, instr)
	}
	flush()
	b.Instrs = out
	return changed
}

func isScheduleBarrier(instr *riscv.Instr) bool {
	switch instr.Op {
	case riscv.OpJal, riscv.OpJalr,
		riscv.OpBeq, riscv.OpBne, riscv.OpBlt, riscv.OpBge, riscv.OpBltu, riscv.OpBgeu,
		riscv.OpLw, riscv.OpSw, riscv.OpFlw, riscv.OpFsw, riscv.OpLd, riscv.OpSd,
		riscv.OpCallMarkerSave, riscv.OpCallMarkerRestore,
		riscv.OpRetPseudo, riscv.OpLabel:
		return true
	}
	return false
}

// scheduleNode is one instruction's place in the run's dependency DAG.
type scheduleNode struct {
	instr  *riscv.Instr
	idx    int
	succs  []*scheduleNode
	indeg  int
	height int
}

// listSchedule reorders a barrier-free run of instructions by
// greedily picking, among those whose dependencies are already
// satisfied, the one with the tallest remaining dependency chain —
// the same "push the long pole first" heuristic the original's
// to_end-driven priority approximates, without its latency model.
func listSchedule(run []*riscv.Instr, pool *sysyapi.Pool[scheduleNode]) []*riscv.Instr {
	pool.Reset()
	nodes := make([]*scheduleNode, len(run))
	for i, instr := range run {
		nodes[i] = pool.Allocate()
		nodes[i].instr = instr
		nodes[i].idx = i
	}

	lastWriter := map[riscv.VReg]*scheduleNode{}
	lastReaders := map[riscv.VReg][]*scheduleNode{}
	addEdge := func(from, to *scheduleNode) {
		if from == nil || from == to {
			return
		}
		from.succs = append(from.succs, to)
		to.indeg++
	}

	for _, n := range nodes {
		reads, writes := instrOperandVRegs(n.instr)
		for _, r := range reads {
			addEdge(lastWriter[r], n) // RAW
		}
		for _, w := range writes {
			addEdge(lastWriter[w], n) // WAW
			for _, reader := range lastReaders[w] {
				addEdge(reader, n) // WAR
			}
			lastReaders[w] = nil
			lastWriter[w] = n
		}
		for _, r := range reads {
			lastReaders[r] = append(lastReaders[r], n)
		}
	}

	var height func(n *scheduleNode) int
	memo := map[*scheduleNode]int{}
	height = func(n *scheduleNode) int {
		if h, ok := memo[n]; ok {
			return h
		}
		best := 0
		for _, s := range n.succs {
			if h := height(s); h+1 > best {
				best = h + 1
			}
		}
		memo[n] = best
		return best
	}
	for _, n := range nodes {
		n.height = height(n)
	}

	var ready []*scheduleNode
	for _, n := range nodes {
		if n.indeg == 0 {
			ready = append(ready, n)
		}
	}

	out := make([]*riscv.Instr, 0, len(nodes))
	for len(out) < len(nodes) {
		best := 0
		for i := 1; i < len(ready); i++ {
			if higherPriority(ready[i], ready[best]) {
				best = i
			}
		}
		n := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		out = append(out, n.instr)
		for _, s := range n.succs {
			s.indeg--
			if s.indeg == 0 {
				ready = append(ready, s)
			}
		}
	}
	return out
}

func higherPriority(a, b *scheduleNode) bool {
	if a.height != b.height {
		return a.height > b.height
	}
	return a.idx < b.idx
}

// instrOperandVRegs reports the VRegs instr reads and writes, used to
// build the run's dependency edges; this only needs to be precise for
// the non-barrier arithmetic/compare/li/convert/move instructions a
// schedulable run ever contains.
func instrOperandVRegs(instr *riscv.Instr) (reads, writes []riscv.VReg) {
	if v, ok := asVReg(instr.Src1); ok {
		reads = append(reads, v)
	}
	if v, ok := asVReg(instr.Src2); ok {
		reads = append(reads, v)
	}
	if v, ok := asVReg(instr.Dst); ok {
		writes = append(writes, v)
	}
	return reads, writes
}
