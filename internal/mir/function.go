package mir

// Entrance classifies how a function may be reached, computed by the
// pure-function/call-graph pass (C5.a) from Tarjan SCC decomposition of
// the call graph.
type Entrance uint8

const (
	// EntranceNever marks a function unreachable from main.
	EntranceNever Entrance = iota
	// EntranceSingle marks a function called from exactly one call site
	// and non-recursive: a candidate for inlining.
	EntranceSingle
	// EntranceMulti marks a function that is recursive or called from
	// more than one site.
	EntranceMulti
)

// ExternalResource records why a function is impure, for diagnostics.
type ExternalResource uint8

const (
	ResourceNone ExternalResource = iota
	ResourceSyscall
	ResourceGlobalStore
	ResourceImpureCall
	ResourcePointerStore
)

// Function is one MIR function: parameters, return type, and a CFG of
// basic blocks in program order.
type Function struct {
	Name    string
	Params  []Value // each a Temp
	RetType Type

	Blocks []*BasicBlock // program order; Blocks[0] is the entry block

	TempMgr  *TempManager
	LabelMgr *LabelManager

	Spills int32
	Total  uint32

	ExternalResource ExternalResource
	Entrance         Entrance
	NeedCache        bool

	nextBlockID uint32
}

// NewFunction constructs an empty function ready to have blocks appended.
func NewFunction(name string, params []Value, ret Type) *Function {
	return &Function{
		Name:     name,
		Params:   params,
		RetType:  ret,
		TempMgr:  NewTempManager(0),
		LabelMgr: NewLabelManager(),
	}
}

// NewBlock allocates and appends a fresh basic block with a unique id.
func (f *Function) NewBlock() *BasicBlock {
	id := f.nextBlockID
	f.nextBlockID++
	blk := NewBasicBlock(id, f.LabelMgr.New())
	f.Blocks = append(f.Blocks, blk)
	return blk
}

// Entry returns the function's entry block.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// BlockByLabel finds a block by its label, or nil.
func (f *Function) BlockByLabel(l Label) *BasicBlock {
	for _, b := range f.Blocks {
		if b.Label == l {
			return b
		}
	}
	return nil
}

// RemoveBlock deletes blk from the function's block list. Callers must
// have already unlinked its edges via RemoveEdge.
func (f *Function) RemoveBlock(blk *BasicBlock) {
	out := f.Blocks[:0]
	for _, b := range f.Blocks {
		if b != blk {
			out = append(out, b)
		}
	}
	f.Blocks = out
}

// InstrCount returns the total instruction count across all blocks,
// used by fatal-invariant checks ("a pass produced more instructions
// than the input while expected not to", spec §7).
func (f *Function) InstrCount() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Phis) + len(b.Instrs)
	}
	return n
}

// IsPure reports whether this function has no external resource of its
// own or transitively through its callees (set by the purity pass).
func (f *Function) IsPure() bool {
	return f.ExternalResource == ResourceNone
}
