package regalloc

import "sysyc/internal/riscv"

// graph is an undirected interference graph over one class's vregs:
// two vregs interfere when one is defined while the other is live-out
// of that definition (the standard interference rule), except that a
// plain register-register move never creates an edge between its own
// source and destination — at the copy the two hold the same value,
// and leaving the edge out is what lets coalesceMoves merge the pair.
type graph struct {
	nodes map[uint32]bool
	adj   map[uint32]map[uint32]bool
}

func newGraph() *graph {
	return &graph{nodes: map[uint32]bool{}, adj: map[uint32]map[uint32]bool{}}
}

func (g *graph) addNode(id uint32) {
	if g.nodes[id] {
		return
	}
	g.nodes[id] = true
	g.adj[id] = map[uint32]bool{}
}

func (g *graph) addEdge(a, b uint32) {
	if a == b {
		return
	}
	g.addNode(a)
	g.addNode(b)
	g.adj[a][b] = true
	g.adj[b][a] = true
}

func (g *graph) degree(id uint32) int { return len(g.adj[id]) }

func (g *graph) removeNode(id uint32) {
	for other := range g.adj[id] {
		delete(g.adj[other], id)
	}
	delete(g.adj, id)
	delete(g.nodes, id)
}

// isMove reports whether i has a register-copy opcode (Mv/FmvS); it
// does not look at the operands, which its callers check.
func isMove(i *riscv.Instr) bool {
	return i.Op == riscv.OpMv || i.Op == riscv.OpFmvS
}

// buildGraph constructs the interference graph for class c from fn's
// per-instruction liveness.
func buildGraph(fn *riscv.Func, c riscv.RegClass, live map[*riscv.Block][]map[uint32]bool) *graph {
	g := newGraph()
	for _, b := range fn.Blocks {
		for idx, instr := range b.Instrs {
			def, uses := defUse(instr, c)
			for _, u := range uses {
				g.addNode(u.ID)
			}
			if def == nil {
				continue
			}
			g.addNode(def.ID)
			for other := range live[b][idx] {
				if other == def.ID {
					continue
				}
				if isMove(instr) && instr.Src1.Kind == riscv.OperandVReg && instr.Src1.VReg.ID == other {
					continue
				}
				g.addEdge(def.ID, other)
			}
		}
	}
	return g
}
