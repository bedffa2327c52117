package riscv

// Block is one selected basic block: a label and its straight-line
// instruction stream (branches/jumps only ever appear as the last
// entry, matching the MIR shape they were lowered from).
type Block struct {
	Label string
	// Weight carries over the originating MIR block's estimated
	// execution frequency (spec §3.5), used by serialize to prefer
	// falling through into hotter successors.
	Weight float64
	Instrs []*Instr

	// Preds/Succs mirror the originating MIR CFG edges; serialize uses
	// them to choose a layout that favors fallthrough over explicit
	// jumps (spec §4.C9).
	Preds []*Block
	Succs []*Block
}

func (b *Block) AddInstr(i *Instr) { b.Instrs = append(b.Instrs, i) }

// Func is one selected function: its blocks in original program order,
// the virtual-register allocator state carried over from selection,
// and frame bookkeeping filled in by later stages.
type Func struct {
	Name    string
	Blocks  []*Block
	Regs    VRegAllocator

	// IntVRegCount/FloatVRegCount record how many of each class
	// selection allocated, used by the register allocator to size its
	// interference-graph arrays before the first pass.
	IntVRegCount   uint32
	FloatVRegCount uint32

	// Frame fields, filled in by internal/riscv/frame.
	FrameSize       int64
	SpillSlots      int64
	UsedCalleeSaved []ClobberedReg
	Epilogue        *Block

	// NeedCache flags functions the cache pass (C10) wraps in a
	// stateless memo table, copied from mir.Function.NeedCache.
	NeedCache bool
	Params    []VReg
	RetClass  RegClass
	HasRet    bool
}

func (f *Func) NewBlock(label string) *Block {
	b := &Block{Label: label}
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Func) BlockByLabel(label string) *Block {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

func AddEdge(from, to *Block) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

// Program is the whole selected module: every function. It carries no
// global-variable layout; the data-section emitter reads mir.GlobalVar
// directly, so no RISC-V-specific representation is needed for it.
type Program struct {
	Funcs []*Func
}
