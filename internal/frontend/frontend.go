// Package frontend is the stand-in for the out-of-scope lexer/parser/
// Namer/Typer (spec §1's explicit exclusion list): it builds a mir.Program
// directly from Go calls rather than from source text, just enough to
// drive the optimizer and back end end-to-end in tests and in
// cmd/sysyc's -E/-S smoke path. It implements no lexing, parsing, name
// resolution, or type checking.
package frontend

import "sysyc/internal/mir"

// Program is the front end's output type: an already-typed, already-SSA
// mir.Program, exactly the §6.2 input contract the optimizer core expects.
type Program = mir.Program

// Builder accumulates globals and functions into one Program.
type Builder struct {
	Prog *mir.Program
}

// NewBuilder starts an empty program.
func NewBuilder() *Builder {
	return &Builder{Prog: &mir.Program{}}
}

// Scalar declares a zero-initialized scalar global and returns the Temp
// naming its address (Load/Store address operands must be pointer
// typed, same as any other Addr, even though the storage itself is one
// word).
func (b *Builder) Scalar(name string, typ mir.Type) mir.Temp {
	g := &mir.GlobalVar{Name: name, IsFloat: typ.IsFloat(), Data: []mir.GlobalInit{mir.ZeroInit(mir.ElemSize)}}
	b.Prog.GlobalVars = append(b.Prog.GlobalVars, g)
	return mir.Global(name, typ.PointerTo())
}

// Array declares a zero-initialized array global of n elements of typ
// and returns the Temp naming its base pointer.
func (b *Builder) Array(name string, typ mir.Type, n int64) mir.Temp {
	bytes := mir.AlignArrayBytes(n * mir.ElemSize)
	g := &mir.GlobalVar{Name: name, IsArray: true, IsFloat: typ.IsFloat(), Data: []mir.GlobalInit{mir.ZeroInit(bytes)}}
	b.Prog.GlobalVars = append(b.Prog.GlobalVars, g)
	return mir.Global(name, typ.PointerTo())
}

// Func starts a new function with the given parameter types and return
// type, and returns a FuncBuilder positioned with no current block.
func (b *Builder) Func(name string, paramTypes []mir.Type, ret mir.Type) *FuncBuilder {
	fn := mir.NewFunction(name, nil, ret)
	params := make([]mir.Value, len(paramTypes))
	for i, t := range paramTypes {
		params[i] = mir.TempVal(fn.TempMgr.New(t))
	}
	fn.Params = params
	b.Prog.Funcs = append(b.Prog.Funcs, fn)
	return &FuncBuilder{Fn: fn}
}

// FuncBuilder emits instructions into a single mir.Function, always
// appending to whichever block Block/SetBlock last selected.
type FuncBuilder struct {
	Fn  *mir.Function
	cur *mir.BasicBlock
}

// Param returns the value of the fn's i-th parameter.
func (f *FuncBuilder) Param(i int) mir.Value { return f.Fn.Params[i] }

// Block allocates a fresh block, makes it current, and returns it.
func (f *FuncBuilder) Block() *mir.BasicBlock {
	blk := f.Fn.NewBlock()
	f.cur = blk
	return blk
}

// SetBlock switches the insertion point to an already-built block
// (used to finish a branch target built earlier, diamond-control-flow
// style).
func (f *FuncBuilder) SetBlock(b *mir.BasicBlock) { f.cur = b }

// Cur returns the block currently receiving new instructions.
func (f *FuncBuilder) Cur() *mir.BasicBlock { return f.cur }

// Temp allocates a fresh temp of typ without emitting any instruction.
func (f *FuncBuilder) Temp(typ mir.Type) mir.Temp { return f.Fn.TempMgr.New(typ) }

func (f *FuncBuilder) Arith(op mir.ArithOp, typ mir.Type, lhs, rhs mir.Value) mir.Value {
	t := f.Temp(typ)
	f.cur.AddInstr(mir.NewArith(t, op, typ, lhs, rhs))
	return mir.TempVal(t)
}

func (f *FuncBuilder) Comp(kind mir.CompKind, op mir.CompOp, typ mir.Type, lhs, rhs mir.Value) mir.Value {
	t := f.Temp(mir.I32)
	f.cur.AddInstr(mir.NewComp(t, kind, op, typ, lhs, rhs))
	return mir.TempVal(t)
}

func (f *FuncBuilder) Convert(op mir.ConvertOp, from, to mir.Type, v mir.Value) mir.Value {
	t := f.Temp(to)
	f.cur.AddInstr(mir.NewConvert(t, op, from, to, v))
	return mir.TempVal(t)
}

// Jump closes the current block with an unconditional branch and links
// the CFG edge.
func (f *FuncBuilder) Jump(target *mir.BasicBlock) {
	f.cur.AddInstr(mir.NewJump(target.Label))
	mir.AddEdge(f.cur, target)
}

// JumpCond closes the current block with a conditional branch and
// links both CFG edges.
func (f *FuncBuilder) JumpCond(cond mir.Value, typ mir.Type, t, fl *mir.BasicBlock) {
	f.cur.AddInstr(mir.NewJumpCond(cond, typ, t.Label, fl.Label))
	mir.AddEdge(f.cur, t)
	mir.AddEdge(f.cur, fl)
}

// Phi adds a phi to the current block with no sources yet; the caller
// appends sources via the returned instruction's AddSource once every
// predecessor value is known.
func (f *FuncBuilder) Phi(typ mir.Type) (*mir.Instruction, mir.Value) {
	t := f.Temp(typ)
	instr := mir.NewPhi(t, typ)
	f.cur.AddPhi(instr)
	return instr, mir.TempVal(t)
}

func (f *FuncBuilder) Ret(v *mir.Value) { f.cur.AddInstr(mir.NewRet(v)) }

func (f *FuncBuilder) Alloc(varType mir.Type, length mir.Value) mir.Value {
	t := f.Temp(varType)
	f.cur.AddInstr(mir.NewAlloc(t, varType, length))
	return mir.TempVal(t)
}

func (f *FuncBuilder) Store(value, addr mir.Value) { f.cur.AddInstr(mir.NewStore(value, addr)) }

func (f *FuncBuilder) Load(varType mir.Type, addr mir.Value) mir.Value {
	t := f.Temp(varType)
	f.cur.AddInstr(mir.NewLoad(t, varType, addr))
	return mir.TempVal(t)
}

func (f *FuncBuilder) GEP(varType mir.Type, addr, offset mir.Value) mir.Value {
	t := f.Temp(varType)
	f.cur.AddInstr(mir.NewGEP(t, varType, addr, offset))
	return mir.TempVal(t)
}

func (f *FuncBuilder) Call(varType mir.Type, fn mir.Label, params []mir.Param) mir.Value {
	t := f.Temp(varType)
	f.cur.AddInstr(mir.NewCall(t, varType, fn, params))
	return mir.TempVal(t)
}
