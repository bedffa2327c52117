package cfg

import "sysyc/internal/mir"

// computeDominators runs the Cooper-Harvey-Kennedy iterative data-flow
// fixpoint ("A Simple, Fast Dominance Algorithm") over the reverse
// post-order computed by computeRPO. Only the forward, entry-rooted
// dominator tree is computed; there is no exit-rooted (post-dominator)
// tree, and DCE works from forward reachability (RPO) instead.
func (c *CFG) computeDominators() {
	if len(c.rpo) == 0 {
		c.idom = nil
		return
	}
	entry := c.rpo[0]
	idom := make(map[uint32]*mir.BasicBlock, len(c.rpo))
	idom[entry.ID] = entry

	changed := true
	for changed {
		changed = false
		for _, b := range c.rpo[1:] {
			var newIdom *mir.BasicBlock
			for _, p := range b.Prev {
				if idom[p.ID] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = c.intersect(idom, newIdom, p)
			}
			if idom[b.ID] != newIdom {
				idom[b.ID] = newIdom
				changed = true
			}
		}
	}
	c.idom = idom
}

func (c *CFG) intersect(idom map[uint32]*mir.BasicBlock, a, b *mir.BasicBlock) *mir.BasicBlock {
	for a != b {
		for c.rpoIx[a.ID] > c.rpoIx[b.ID] {
			a = idom[a.ID]
		}
		for c.rpoIx[b.ID] > c.rpoIx[a.ID] {
			b = idom[b.ID]
		}
	}
	return a
}

// Idom returns the immediate dominator of v (v itself for the entry block).
func (c *CFG) Idom(v *mir.BasicBlock) *mir.BasicBlock {
	return c.idom[v.ID]
}

// Dominates reports whether u dominates v (reflexively: u dominates u).
func (c *CFG) Dominates(u, v *mir.BasicBlock) bool {
	for v != nil {
		if v.ID == u.ID {
			return true
		}
		if c.idom[v.ID] == v {
			return v.ID == u.ID
		}
		v = c.idom[v.ID]
	}
	return false
}

// Children returns the immediate-dominator-tree children of v.
func (c *CFG) Children(v *mir.BasicBlock) []*mir.BasicBlock {
	var out []*mir.BasicBlock
	for _, b := range c.rpo {
		if b.ID == v.ID {
			continue
		}
		if id := c.idom[b.ID]; id != nil && id.ID == v.ID {
			out = append(out, b)
		}
	}
	return out
}

// Frontier returns the dominance frontier of v: the set of blocks where
// v's dominance stops, computed by computeFrontiers.
func (c *CFG) Frontier(v *mir.BasicBlock) []*mir.BasicBlock {
	m := c.df[v.ID]
	out := make([]*mir.BasicBlock, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	return out
}

// computeFrontiers computes the dominance frontier of every block using
// the standard Cytron et al. join-point algorithm: a block b is in the
// frontier of v if v dominates a predecessor of b but does not strictly
// dominate b itself.
func (c *CFG) computeFrontiers() {
	df := make(map[uint32]map[uint32]*mir.BasicBlock, len(c.rpo))
	for _, b := range c.rpo {
		df[b.ID] = map[uint32]*mir.BasicBlock{}
	}
	for _, b := range c.rpo {
		if len(b.Prev) < 2 {
			continue
		}
		for _, p := range b.Prev {
			runner := p
			for runner != nil && runner.ID != c.idom[b.ID].ID {
				df[runner.ID][b.ID] = b
				if c.idom[runner.ID] == nil {
					break
				}
				runner = c.idom[runner.ID]
			}
		}
	}
	c.df = df
}

// FrontierClosure returns the iterated dominance frontier of the given
// set of definition blocks: the fixpoint of repeatedly unioning in the
// frontier of every block in the current set. Used by Mem2Reg to place
// phis.
func (c *CFG) FrontierClosure(defs []*mir.BasicBlock) []*mir.BasicBlock {
	seen := map[uint32]*mir.BasicBlock{}
	worklist := append([]*mir.BasicBlock(nil), defs...)
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, f := range c.Frontier(b) {
			if _, ok := seen[f.ID]; !ok {
				seen[f.ID] = f
				worklist = append(worklist, f)
			}
		}
	}
	out := make([]*mir.BasicBlock, 0, len(seen))
	for _, b := range seen {
		out = append(out, b)
	}
	return out
}
