// Package serialize implements block ordering and fallthrough elision
// (spec §4.C9): it chooses a linear layout of a function's blocks that
// maximizes how often a block's hottest successor follows it directly
// in the instruction stream, then deletes any terminating jump that
// would only re-state that fallthrough.
package serialize

import (
	"sort"

	"sysyc/internal/riscv"
)

// unionFind is the classical disjoint-set structure used here to track
// which blocks have already been chained together, so a greedy
// fallthrough pairing never closes a cycle (spec: "using union-find to
// greedily bind successor pairs without closing cycles").
type unionFind struct {
	parent map[*riscv.Block]*riscv.Block
}

func newUnionFind(blocks []*riscv.Block) *unionFind {
	uf := &unionFind{parent: map[*riscv.Block]*riscv.Block{}}
	for _, b := range blocks {
		uf.parent[b] = b
	}
	return uf
}

func (uf *unionFind) find(b *riscv.Block) *riscv.Block {
	for uf.parent[b] != b {
		uf.parent[b] = uf.parent[uf.parent[b]]
		b = uf.parent[b]
	}
	return b
}

func (uf *unionFind) union(a, b *riscv.Block) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[ra] = rb
	}
}

// edge is one candidate fallthrough binding: from's hottest successor,
// chosen once before any binding is made, weighted by the successor's
// own estimated frequency.
type edge struct {
	from, to *riscv.Block
	weight   float64
}

// Serialize lays out fn.Blocks in an order that favors fallthrough,
// then rewrites each block's trailing unconditional jump away once its
// target is confirmed to be the very next block in that order. fn's
// first block (the entrance, or the cache hasher block when C10 ran)
// always stays first regardless of weight, since nothing may fall
// through into it from outside the function.
func Serialize(fn *riscv.Func) {
	if len(fn.Blocks) == 0 {
		return
	}
	fn.Blocks = order(fn)
	elideFallthroughs(fn)
}

// order computes the greedy chain layout: candidate (from, hottest
// successor) edges are visited in descending weight, and bound with
// union-find whenever doing so wouldn't give `from` a second outgoing
// fallthrough, give `to` a second incoming one, or close a cycle. The
// resulting chains are then concatenated, entry chain first.
func order(fn *riscv.Func) []*riscv.Block {
	entry := fn.Blocks[0]

	var edges []edge
	for _, b := range fn.Blocks {
		best, bestW := bestSuccessor(b)
		if best != nil {
			edges = append(edges, edge{from: b, to: best, weight: bestW})
		}
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].weight > edges[j].weight })

	next := map[*riscv.Block]*riscv.Block{}
	hasIncoming := map[*riscv.Block]bool{}
	uf := newUnionFind(fn.Blocks)

	for _, e := range edges {
		if next[e.from] != nil || hasIncoming[e.to] {
			continue
		}
		if uf.find(e.from) == uf.find(e.to) {
			continue // would close a cycle
		}
		if e.to == entry {
			continue // nothing may fall through into the entrance
		}
		next[e.from] = e.to
		hasIncoming[e.to] = true
		uf.union(e.from, e.to)
	}

	// Walk every chain starting from a block with no incoming
	// fallthrough binding, entry's chain emitted first.
	visited := map[*riscv.Block]bool{}
	var out []*riscv.Block
	emitChain := func(start *riscv.Block) {
		for b := start; b != nil && !visited[b]; b = next[b] {
			visited[b] = true
			out = append(out, b)
		}
	}
	emitChain(entry)
	for _, b := range fn.Blocks {
		if !hasIncoming[b] && !visited[b] {
			emitChain(b)
		}
	}
	// Any block left over (only reachable via a now-cyclic chain that
	// never got a head) is appended in its original order.
	for _, b := range fn.Blocks {
		if !visited[b] {
			visited[b] = true
			out = append(out, b)
		}
	}
	return out
}

// bestSuccessor picks b's heaviest successor, i.e. the one most worth
// falling through into.
func bestSuccessor(b *riscv.Block) (*riscv.Block, float64) {
	var best *riscv.Block
	var bestW float64 = -1
	for _, s := range b.Succs {
		if best == nil || s.Weight > bestW {
			best, bestW = s, s.Weight
		}
	}
	return best, bestW
}

// elideFallthroughs drops a block's trailing unconditional jump when
// its target is, after layout, the immediately following block; the
// bare label at the top of that next block is enough to reach it.
func elideFallthroughs(fn *riscv.Func) {
	for idx, b := range fn.Blocks {
		if len(b.Instrs) == 0 {
			continue
		}
		last := b.Instrs[len(b.Instrs)-1]
		if last.Op != riscv.OpJal || last.CallFunc != "" {
			continue // a real call's Jal, not a block-to-block jump
		}
		if idx+1 < len(fn.Blocks) && fn.Blocks[idx+1].Label == last.Target {
			b.Instrs = b.Instrs[:len(b.Instrs)-1]
		}
	}
}
