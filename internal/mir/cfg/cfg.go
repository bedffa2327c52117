// Package cfg provides per-function control-flow-graph services on top
// of the mir package: dominator trees, dominance frontiers, and the
// natural-loop forest, plus the entry point that rebuilds liveness (see
// internal/mir/dataflow) as part of Analysis.
package cfg

import (
	"sysyc/internal/mir"
	"sysyc/internal/mir/dataflow"
)

// CFG wraps a mir.Function with computed dominator/loop-forest data.
// Passes call Analysis after mutating blocks and ClearDataFlow before a
// mutation that would invalidate it.
type CFG struct {
	Fn *mir.Function

	rpo   []*mir.BasicBlock
	rpoIx map[uint32]int

	idom map[uint32]*mir.BasicBlock
	df   map[uint32]map[uint32]*mir.BasicBlock

	Loops *LoopForest
}

// New wraps fn for CFG services.
func New(fn *mir.Function) *CFG {
	return &CFG{Fn: fn}
}

// Blocks returns the function's blocks in program order.
func (c *CFG) Blocks() []*mir.BasicBlock { return c.Fn.Blocks }

// Entry returns the function's entry block.
func (c *CFG) Entry() *mir.BasicBlock { return c.Fn.Entry() }

// Analysis recomputes reverse-post-order, dominators, dominance
// frontiers, and the loop forest. Passes that change the CFG shape must
// call this before relying on any of those services again.
func (c *CFG) Analysis() {
	c.computeRPO()
	c.computeDominators()
	c.computeFrontiers()
	c.Loops = buildLoopForest(c)
	c.computeWeights()
	dataflow.Compute(c.Fn)
}

// computeWeights assigns each block's execution-frequency estimate:
// x10 per enclosing loop, halved for a conditional-branch arm. The
// result only breaks ties (hoisting targets, spill victims), so a
// coarse structural estimate is enough.
func (c *CFG) computeWeights() {
	depth := map[uint32]int{}
	for _, l := range c.Loops.ByHeader {
		for _, b := range l.Blocks() {
			depth[b.ID]++
		}
	}
	for _, b := range c.rpo {
		w := 1.0
		for i := 0; i < depth[b.ID]; i++ {
			w *= 10
		}
		if len(b.Prev) == 1 {
			if t := b.Prev[0].Terminator(); t != nil && t.Variant == mir.VJumpCond {
				w *= 0.5
			}
		}
		b.Weight = w
	}
}

// ClearDataFlow drops cached liveness annotations on every block (it
// does not affect dominator/loop data, which is cheap enough to just
// recompute via Analysis when needed).
func (c *CFG) ClearDataFlow() {
	for _, b := range c.Fn.Blocks {
		b.LiveIn, b.LiveOut, b.Defs, b.Uses, b.PhiDefs = nil, nil, nil, nil, nil
	}
}

// RPO returns blocks in reverse post-order from the entry, as computed
// by the last Analysis call.
func (c *CFG) RPO() []*mir.BasicBlock { return c.rpo }

func (c *CFG) computeRPO() {
	visited := make(map[uint32]bool, len(c.Fn.Blocks))
	var post []*mir.BasicBlock

	type frame struct {
		b       *mir.BasicBlock
		succIdx int
	}
	entry := c.Fn.Entry()
	if entry == nil {
		c.rpo = nil
		return
	}
	stack := []frame{{entry, 0}}
	visited[entry.ID] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.succIdx < len(top.b.Succ) {
			s := top.b.Succ[top.succIdx]
			top.succIdx++
			if !visited[s.ID] {
				visited[s.ID] = true
				stack = append(stack, frame{s, 0})
			}
			continue
		}
		post = append(post, top.b)
		stack = stack[:len(stack)-1]
	}
	// reverse postorder = reverse of postorder
	rpo := make([]*mir.BasicBlock, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	c.rpo = rpo
	c.rpoIx = make(map[uint32]int, len(rpo))
	for i, b := range rpo {
		c.rpoIx[b.ID] = i
	}
}
