package regalloc

import (
	"math"
	"sort"

	"sysyc/internal/riscv"
)

// colorResult is one class's outcome: vregs that got a real register,
// and vregs that had to be spilled to a frame slot instead.
type colorResult struct {
	color   map[uint32]riscv.RealReg
	spilled map[uint32]bool
}

// spillCosts estimates each vreg's cost of living in memory: the sum of
// its uses and defs weighted by the owning block's execution-frequency
// estimate, and infinite for a vreg defined twice in one block with no
// intervening use (reloading between the two defs would be pointless;
// such a vreg must keep its register).
func spillCosts(fn *riscv.Func, c riscv.RegClass) map[uint32]float64 {
	cost := map[uint32]float64{}
	for _, b := range fn.Blocks {
		lastEvent := map[uint32]byte{}
		for _, instr := range b.Instrs {
			def, uses := defUse(instr, c)
			for _, u := range uses {
				cost[u.ID] += b.Weight
				lastEvent[u.ID] = 'u'
			}
			if def != nil {
				if lastEvent[def.ID] == 'd' {
					cost[def.ID] = math.Inf(1)
				} else {
					cost[def.ID] += b.Weight
				}
				lastEvent[def.ID] = 'd'
			}
		}
	}
	return cost
}

// colorGraph runs the classical Chaitin simplify/select loop: repeatedly
// remove a node whose degree is below the number of available colors
// (pushing it on the stack), and when none remains, optimistically push
// the node with the lowest spill_cost/degree ratio as the potential
// spill. Colors are assigned on the way back by picking any real
// register not used by an already-colored neighbor; a node that finds
// none is spilled for real.
func colorGraph(g *graph, palette []riscv.RealReg, cost map[uint32]float64) colorResult {
	k := len(palette)
	res := colorResult{color: map[uint32]riscv.RealReg{}, spilled: map[uint32]bool{}}

	work := newGraph()
	work.adj = map[uint32]map[uint32]bool{}
	for id, n := range g.adj {
		cp := map[uint32]bool{}
		for x := range n {
			cp[x] = true
		}
		work.adj[id] = cp
	}
	work.nodes = map[uint32]bool{}
	for id := range g.nodes {
		work.nodes[id] = true
	}

	var stack []uint32
	for len(work.nodes) > 0 {
		picked := false
		for id := range work.nodes {
			if work.degree(id) < k {
				stack = append(stack, id)
				work.removeNode(id)
				picked = true
				break
			}
		}
		if picked {
			continue
		}
		// No low-degree node: optimistically spill-candidate the node
		// with the cheapest cost-per-unit-degree and keep going; it may
		// still color if its neighbors don't use every register.
		var best uint32
		bestRatio := math.Inf(1)
		first := true
		for id := range work.nodes {
			d := work.degree(id)
			if d == 0 {
				d = 1
			}
			ratio := cost[id] / float64(d)
			if first || ratio < bestRatio {
				first = false
				bestRatio = ratio
				best = id
			}
		}
		stack = append(stack, best)
		work.removeNode(best)
	}

	for i := len(stack) - 1; i >= 0; i-- {
		id := stack[i]
		used := map[riscv.RealReg]bool{}
		for neighbor := range g.adj[id] {
			if c, ok := res.color[neighbor]; ok {
				used[c] = true
			}
		}
		assigned := false
		for _, r := range palette {
			if !used[r] {
				res.color[id] = r
				assigned = true
				break
			}
		}
		if !assigned {
			res.spilled[id] = true
		}
	}
	return res
}

// assignSpillSlots colors the spilled vregs a second time, over virtual
// memory slots instead of registers: spilled vregs whose live ranges
// never overlap (no interference edge) may share one stack slot. The
// returned map carries each vreg's byte offset from startOffset, along
// with one past the highest byte used.
func assignSpillSlots(g *graph, spilled map[uint32]bool, startOffset int64) (map[uint32]int64, int64) {
	ids := make([]uint32, 0, len(spilled))
	for id := range spilled {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	const slotSize = 4
	slotOf := map[uint32]int{}
	maxSlot := -1
	for _, id := range ids {
		used := map[int]bool{}
		for n := range g.adj[id] {
			if s, ok := slotOf[n]; ok {
				used[s] = true
			}
		}
		s := 0
		for used[s] {
			s++
		}
		slotOf[id] = s
		if s > maxSlot {
			maxSlot = s
		}
	}

	out := make(map[uint32]int64, len(slotOf))
	for id, s := range slotOf {
		out[id] = startOffset + int64(s)*slotSize
	}
	return out, startOffset + int64(maxSlot+1)*slotSize
}
