package mir

// BasicBlock is a single-entry, single-exit run of MIR instructions: all
// Phi instructions precede all regular instructions, and the block ends
// with exactly one terminator (Jump, JumpCond, or Ret).
type BasicBlock struct {
	ID    uint32
	Label Label

	// Weight is an estimated execution-frequency multiplier used to
	// break ties in register allocation and instruction hoisting.
	Weight float64

	Phis   []*Instruction // VPhi instructions only
	Instrs []*Instruction // regular instructions, terminator last
	// KillSize is the number of alloca bytes that must be reclaimed
	// (stack-pointer restored) along any path that exits the block's
	// lexical scope without an intervening function return.
	KillSize int64

	Prev []*BasicBlock // predecessors
	Succ []*BasicBlock // successors

	// Populated by CFG.Analysis(); invalidated by CFG.ClearDataFlow().
	LiveIn, LiveOut, Defs, Uses, PhiDefs map[uint32]Temp
}

// NewBasicBlock constructs an empty block with the given id/label.
func NewBasicBlock(id uint32, label Label) *BasicBlock {
	return &BasicBlock{ID: id, Label: label, Weight: 1.0}
}

// Terminator returns the block's single terminating instruction, or nil
// if the block has not been closed yet.
func (b *BasicBlock) Terminator() *Instruction {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	switch last.Variant {
	case VJump, VJumpCond, VRet:
		return last
	default:
		return nil
	}
}

// AddPhi appends a Phi instruction to the block's phi section.
func (b *BasicBlock) AddPhi(i *Instruction) {
	b.Phis = append(b.Phis, i)
}

// AddInstr appends a regular (non-phi) instruction.
func (b *BasicBlock) AddInstr(i *Instruction) {
	b.Instrs = append(b.Instrs, i)
}

// AllInstrs returns phis followed by regular instructions, matching the
// required Phi-then-regular block layout.
func (b *BasicBlock) AllInstrs() []*Instruction {
	out := make([]*Instruction, 0, len(b.Phis)+len(b.Instrs))
	out = append(out, b.Phis...)
	out = append(out, b.Instrs...)
	return out
}

// AddEdge links b -> s, updating both directions so Prev/Succ stay
// consistent (spec §9: both ends updated atomically).
func AddEdge(b, s *BasicBlock) {
	b.Succ = append(b.Succ, s)
	s.Prev = append(s.Prev, b)
}

// RemoveEdge unlinks b -> s from both directions.
func RemoveEdge(b, s *BasicBlock) {
	b.Succ = removeBlock(b.Succ, s)
	s.Prev = removeBlock(s.Prev, b)
}

func removeBlock(list []*BasicBlock, target *BasicBlock) []*BasicBlock {
	out := list[:0]
	for _, blk := range list {
		if blk != target {
			out = append(out, blk)
		}
	}
	return out
}
