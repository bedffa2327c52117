package cfg

import "sysyc/internal/mir"

// Loop is a natural loop: header dominates every block in the loop, and
// every back-edge (a block -> header where header dominates the block)
// lands on the header. Subloops nest by set containment. See spec §3.8.
type Loop struct {
	ID     int
	Header *mir.BasicBlock
	Outer  *Loop // nil for the synthetic root loop
	Subloops []*Loop

	blocks map[uint32]*mir.BasicBlock
}

// LoopForest is the collection of natural loops for one function, rooted
// at a synthetic RootLoop that contains every block.
type LoopForest struct {
	RootLoop *Loop
	ByHeader map[uint32]*Loop
}

// Blocks returns every block belonging to this loop, including those
// that also belong to subloops.
func (l *Loop) Blocks() []*mir.BasicBlock {
	out := make([]*mir.BasicBlock, 0, len(l.blocks))
	for _, b := range l.blocks {
		out = append(out, b)
	}
	return out
}

// BlocksWithoutSubloops returns the loop's own blocks minus every block
// claimed by a nested subloop.
func (l *Loop) BlocksWithoutSubloops() []*mir.BasicBlock {
	excl := map[uint32]bool{}
	for _, s := range l.Subloops {
		for id := range s.blocks {
			excl[id] = true
		}
	}
	var out []*mir.BasicBlock
	for id, b := range l.blocks {
		if !excl[id] {
			out = append(out, b)
		}
	}
	return out
}

// Contains reports whether blk belongs to this loop (directly or via a
// subloop).
func (l *Loop) Contains(blk *mir.BasicBlock) bool {
	_, ok := l.blocks[blk.ID]
	return ok
}

// IsSuperLoopOf reports whether l strictly contains other (other != l).
func (l *Loop) IsSuperLoopOf(other *Loop) bool {
	if l == other {
		return false
	}
	for o := other.Outer; o != nil; o = o.Outer {
		if o == l {
			return true
		}
	}
	return false
}

// Latches returns the loop's back-edge source blocks: predecessors of
// the header that the header dominates.
func (l *Loop) Latches(c *CFG) []*mir.BasicBlock {
	var out []*mir.BasicBlock
	for _, p := range l.Header.Prev {
		if c.Dominates(l.Header, p) {
			out = append(out, p)
		}
	}
	return out
}

// Preheader returns the header's predecessor from outside the loop when
// there is exactly one, else nil. Whether that block has successors
// other than the header is not checked. Loop canonicalization (C5.h)
// routes two or more outside predecessors through one new block; a
// single outside predecessor is kept as it is.
func (l *Loop) Preheader(c *CFG) *mir.BasicBlock {
	var external []*mir.BasicBlock
	for _, p := range l.Header.Prev {
		if !l.Contains(p) {
			external = append(external, p)
		}
	}
	if len(external) != 1 {
		return nil
	}
	return external[0]
}

// ExitBlocks returns every block outside the loop that is a successor of
// some block inside the loop.
func (l *Loop) ExitBlocks() []*mir.BasicBlock {
	seen := map[uint32]*mir.BasicBlock{}
	for _, b := range l.blocks {
		for _, s := range b.Succ {
			if !l.Contains(s) {
				seen[s.ID] = s
			}
		}
	}
	out := make([]*mir.BasicBlock, 0, len(seen))
	for _, b := range seen {
		out = append(out, b)
	}
	return out
}

// SingleExit returns the loop's unique exit block, or nil if there is
// more than one (or zero).
func (l *Loop) SingleExit() *mir.BasicBlock {
	exits := l.ExitBlocks()
	if len(exits) != 1 {
		return nil
	}
	return exits[0]
}

// buildLoopForest performs classical natural-loop recognition: find
// back-edges (u -> h where h dominates u via the already-computed
// dominator tree), then grow each loop's body backward from u without
// crossing the header, and finally nest loops by block-set containment.
func buildLoopForest(c *CFG) *LoopForest {
	root := &Loop{ID: -1, blocks: map[uint32]*mir.BasicBlock{}}
	for _, b := range c.rpo {
		root.blocks[b.ID] = b
	}

	byHeader := map[uint32]*Loop{}
	nextID := 0
	for _, u := range c.rpo {
		for _, h := range u.Succ {
			if !c.Dominates(h, u) {
				continue
			}
			lp, ok := byHeader[h.ID]
			if !ok {
				lp = &Loop{ID: nextID, Header: h, blocks: map[uint32]*mir.BasicBlock{h.ID: h}}
				nextID++
				byHeader[h.ID] = lp
			}
			growLoopBody(lp, u)
		}
	}

	// Nest by containment: a loop's Outer is the smallest other loop
	// that strictly contains its header.
	var all []*Loop
	for _, l := range byHeader {
		all = append(all, l)
	}
	for _, l := range all {
		var best *Loop
		for _, cand := range all {
			if cand == l || !cand.Contains(l.Header) {
				continue
			}
			if !cand.Contains(l.Header) || cand.blocks[l.Header.ID] == nil {
				continue
			}
			if len(l.blocks) >= len(cand.blocks) {
				continue
			}
			if best == nil || len(cand.blocks) < len(best.blocks) {
				best = cand
			}
		}
		if best != nil {
			l.Outer = best
			best.Subloops = append(best.Subloops, l)
		} else {
			l.Outer = root
			root.Subloops = append(root.Subloops, l)
		}
	}

	return &LoopForest{RootLoop: root, ByHeader: byHeader}
}

// growLoopBody adds u, and every predecessor reachable from u without
// passing through the header, to lp's block set.
func growLoopBody(lp *Loop, u *mir.BasicBlock) {
	if _, ok := lp.blocks[u.ID]; ok {
		return
	}
	lp.blocks[u.ID] = u
	if u == lp.Header {
		return
	}
	for _, p := range u.Prev {
		growLoopBody(lp, p)
	}
}

// LoopFor returns the innermost loop containing blk, or the root loop.
func (f *LoopForest) LoopFor(blk *mir.BasicBlock) *Loop {
	var best *Loop
	for _, l := range f.ByHeader {
		if l.Contains(blk) {
			if best == nil || len(l.blocks) < len(best.blocks) {
				best = l
			}
		}
	}
	if best == nil {
		return f.RootLoop
	}
	return best
}
