package peephole

import "sysyc/internal/riscv"

// domTree is a minimal immediate-dominator tree over riscv.Block, built
// the same way internal/mir/cfg computes one for MIR blocks (the
// Cooper-Harvey-Kennedy iterative fixpoint over reverse post-order) —
// needed here because the selector's output has no CFG analysis of its
// own yet; regalloc and frame both operate block-by-block without one.
type domTree struct {
	rpo   []*riscv.Block
	rpoIx map[string]int
	idom  map[string]*riscv.Block
}

func newDomTree(fn *riscv.Func) *domTree {
	t := &domTree{}
	if len(fn.Blocks) == 0 {
		return t
	}
	t.rpo = reversePostOrder(fn.Blocks[0])
	t.rpoIx = make(map[string]int, len(t.rpo))
	for i, b := range t.rpo {
		t.rpoIx[b.Label] = i
	}
	t.computeIdom()
	return t
}

func reversePostOrder(entry *riscv.Block) []*riscv.Block {
	visited := map[string]bool{}
	var post []*riscv.Block
	var visit func(b *riscv.Block)
	visit = func(b *riscv.Block) {
		if visited[b.Label] {
			return
		}
		visited[b.Label] = true
		for _, s := range b.Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(entry)
	out := make([]*riscv.Block, len(post))
	for i, b := range post {
		out[len(post)-1-i] = b
	}
	return out
}

func (t *domTree) computeIdom() {
	entry := t.rpo[0]
	idom := map[string]*riscv.Block{entry.Label: entry}

	changed := true
	for changed {
		changed = false
		for _, b := range t.rpo[1:] {
			var newIdom *riscv.Block
			for _, p := range b.Preds {
				if idom[p.Label] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = t.intersect(idom, newIdom, p)
			}
			if idom[b.Label] != newIdom {
				idom[b.Label] = newIdom
				changed = true
			}
		}
	}
	t.idom = idom
}

func (t *domTree) intersect(idom map[string]*riscv.Block, a, b *riscv.Block) *riscv.Block {
	for a != b {
		for t.rpoIx[a.Label] > t.rpoIx[b.Label] {
			a = idom[a.Label]
		}
		for t.rpoIx[b.Label] > t.rpoIx[a.Label] {
			b = idom[b.Label]
		}
	}
	return a
}

// children returns v's immediate-dominator-tree children.
func (t *domTree) children(v *riscv.Block) []*riscv.Block {
	var out []*riscv.Block
	for _, b := range t.rpo {
		if b == v {
			continue
		}
		if id := t.idom[b.Label]; id != nil && id == v {
			out = append(out, b)
		}
	}
	return out
}

func (t *domTree) entry() *riscv.Block {
	if len(t.rpo) == 0 {
		return nil
	}
	return t.rpo[0]
}
