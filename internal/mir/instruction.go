package mir

import "fmt"

// ArithOp enumerates the binary arithmetic operators of Arith.
type ArithOp uint8

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
	Rem
	Shl
	Lshr
	Ashr
	And
	Or
	Xor
	Fadd
	Fsub
	Fmul
	Fdiv
)

func (op ArithOp) String() string {
	return [...]string{"add", "sub", "mul", "div", "rem", "shl", "lshr", "ashr",
		"and", "or", "xor", "fadd", "fsub", "fmul", "fdiv"}[op]
}

// IsFloat reports whether op operates on F32 operands.
func (op ArithOp) IsFloat() bool { return op >= Fadd }

// CompKind discriminates integer vs floating comparisons.
type CompKind uint8

const (
	Icmp CompKind = iota
	Fcmp
)

// CompOp enumerates the comparison predicates of Comp.
type CompOp uint8

const (
	EQ CompOp = iota
	NE
	SLT
	SLE
	SGT
	SGE
	OEQ
	ONE
	OLT
	OLE
	OGT
	OGE
)

func (op CompOp) String() string {
	return [...]string{"eq", "ne", "slt", "sle", "sgt", "sge",
		"oeq", "one", "olt", "ole", "ogt", "oge"}[op]
}

// ConvertOp enumerates the two scalar conversions.
type ConvertOp uint8

const (
	Int2Float ConvertOp = iota
	Float2Int
)

// Variant discriminates the 12 MIR instruction kinds.
type Variant uint8

const (
	VArith Variant = iota
	VComp
	VConvert
	VJump
	VJumpCond
	VPhi
	VRet
	VAlloc
	VStore
	VLoad
	VGEP
	VCall
)

func (v Variant) String() string {
	return [...]string{"arith", "comp", "convert", "jump", "jumpcond",
		"phi", "ret", "alloc", "store", "load", "gep", "call"}[v]
}

// PhiSource is one incoming-edge entry of a Phi instruction.
type PhiSource struct {
	Value Value
	Pred  Label
}

// Param is one (type, value) argument pair of a Call instruction.
type Param struct {
	Type  Type
	Value Value
}

// Instruction is the tagged union of all 12 MIR instruction variants.
// Every variant's fields live together in this single struct (rather
// than as one interface implementation per variant) so that passes can
// match exhaustively on Variant without a dispatch layer per field
// access; Get* accessors below form the "single-method trait" described
// by the data model (get_read/get_write/type_valid/get_variant).
type Instruction struct {
	Variant Variant

	// Common fields reused across variants; see per-field doc on each
	// variant's constructor for which ones apply.
	Target *Temp // write target, nil if none (e.g. Jump, Store, Ret-void)
	Type   Type  // the "var_type" of the spec: operation's working type

	ArithOp   ArithOp
	CompKind  CompKind
	CompOp    CompOp
	ConvertOp ConvertOp
	FromType  Type

	LHS, RHS Value // Arith/Comp operands; Convert uses LHS only

	JumpTarget  Label   // Jump
	Cond        Value   // JumpCond
	TrueTarget  Label   // JumpCond
	FalseTarget Label   // JumpCond

	PhiSources []PhiSource // Phi

	RetValue *Value // Ret, nil for a void return

	AllocLength Value // Alloc: length in bytes

	StoreValue Value // Store
	Addr       Value // Store/Load/GEP: pointer-typed operand

	GEPOffset Value // GEP: byte offset

	CallFunc   Label   // Call
	CallParams []Param // Call

	Attrs map[string]string // free-form attribute bag
}

func newTarget(t Temp) *Temp { tt := t; return &tt }

// NewArith constructs an Arith instruction.
func NewArith(target Temp, op ArithOp, typ Type, lhs, rhs Value) *Instruction {
	return &Instruction{Variant: VArith, Target: newTarget(target), ArithOp: op, Type: typ, LHS: lhs, RHS: rhs}
}

// NewComp constructs a Comp instruction. The target is always I32 (0/1).
func NewComp(target Temp, kind CompKind, op CompOp, typ Type, lhs, rhs Value) *Instruction {
	return &Instruction{Variant: VComp, Target: newTarget(target), CompKind: kind, CompOp: op, Type: typ, LHS: lhs, RHS: rhs}
}

// NewConvert constructs a Convert instruction.
func NewConvert(target Temp, op ConvertOp, from, to Type, lhs Value) *Instruction {
	return &Instruction{Variant: VConvert, Target: newTarget(target), ConvertOp: op, FromType: from, Type: to, LHS: lhs}
}

// NewJump constructs an unconditional Jump.
func NewJump(target Label) *Instruction {
	return &Instruction{Variant: VJump, JumpTarget: target}
}

// NewJumpCond constructs a JumpCond; cond nonzero takes targetTrue.
func NewJumpCond(cond Value, typ Type, targetTrue, targetFalse Label) *Instruction {
	return &Instruction{Variant: VJumpCond, Cond: cond, Type: typ, TrueTarget: targetTrue, FalseTarget: targetFalse}
}

// NewPhi constructs a Phi with no sources yet; sources are appended via
// AddSource as the CFG is built or rewritten.
func NewPhi(target Temp, typ Type) *Instruction {
	return &Instruction{Variant: VPhi, Target: newTarget(target), Type: typ}
}

// AddSource appends one incoming-edge entry to a Phi.
func (i *Instruction) AddSource(v Value, pred Label) {
	i.PhiSources = append(i.PhiSources, PhiSource{Value: v, Pred: pred})
}

// RelabelSource updates the predecessor label of the source coming from
// old to new, used whenever a predecessor block is split or renamed.
func (i *Instruction) RelabelSource(old, new_ Label) {
	for idx := range i.PhiSources {
		if i.PhiSources[idx].Pred == old {
			i.PhiSources[idx].Pred = new_
		}
	}
}

// NewRet constructs a Ret; value is nil for a void return.
func NewRet(value *Value) *Instruction {
	return &Instruction{Variant: VRet, RetValue: value}
}

// NewAlloc constructs an Alloc; varType is the pointer type of the
// allocation and length is in bytes (always 16-byte aligned upstream).
func NewAlloc(target Temp, varType Type, length Value) *Instruction {
	return &Instruction{Variant: VAlloc, Target: newTarget(target), Type: varType, AllocLength: length}
}

// NewStore constructs a Store.
func NewStore(value, addr Value) *Instruction {
	return &Instruction{Variant: VStore, StoreValue: value, Addr: addr}
}

// NewLoad constructs a Load.
func NewLoad(target Temp, varType Type, addr Value) *Instruction {
	return &Instruction{Variant: VLoad, Target: newTarget(target), Type: varType, Addr: addr}
}

// NewGEP constructs a GEP (byte offset from a pointer).
func NewGEP(target Temp, varType Type, addr, offset Value) *Instruction {
	return &Instruction{Variant: VGEP, Target: newTarget(target), Type: varType, Addr: addr, GEPOffset: offset}
}

// NewCall constructs a Call. For a Void call, target is still populated
// with a fresh sink temp so every instruction has a uniform Target slot.
func NewCall(target Temp, varType Type, fn Label, params []Param) *Instruction {
	return &Instruction{Variant: VCall, Target: newTarget(target), Type: varType, CallFunc: fn, CallParams: params}
}

// GetWrite returns the temp written by this instruction, if any.
func (i *Instruction) GetWrite() *Temp {
	return i.Target
}

// GetRead returns every temp read by this instruction.
func (i *Instruction) GetRead() []Temp {
	var out []Temp
	add := func(v Value) {
		if v.Kind == ValueTempKind {
			out = append(out, v.Tmp)
		}
	}
	switch i.Variant {
	case VArith, VComp:
		add(i.LHS)
		add(i.RHS)
	case VConvert:
		add(i.LHS)
	case VJumpCond:
		add(i.Cond)
	case VPhi:
		for _, s := range i.PhiSources {
			add(s.Value)
		}
	case VRet:
		if i.RetValue != nil {
			add(*i.RetValue)
		}
	case VAlloc:
		add(i.AllocLength)
	case VStore:
		add(i.StoreValue)
		add(i.Addr)
	case VLoad:
		add(i.Addr)
	case VGEP:
		add(i.Addr)
		add(i.GEPOffset)
	case VCall:
		for _, p := range i.CallParams {
			add(p.Value)
		}
	}
	return out
}

// Attr returns an attribute, and whether it was present.
func (i *Instruction) Attr(key string) (string, bool) {
	if i.Attrs == nil {
		return "", false
	}
	v, ok := i.Attrs[key]
	return v, ok
}

// SetAttr sets a free-form attribute on the instruction.
func (i *Instruction) SetAttr(key, value string) {
	if i.Attrs == nil {
		i.Attrs = map[string]string{}
	}
	i.Attrs[key] = value
}

// TypeValid checks the §3.4 type invariant: operator operand types
// agree, convert endpoints match, store value matches pointee, GEP
// pointer+offset are type-coherent.
func (i *Instruction) TypeValid() bool {
	switch i.Variant {
	case VArith:
		return i.LHS.Type() == i.Type && i.RHS.Type() == i.Type && i.ArithOp.IsFloat() == i.Type.IsFloat()
	case VComp:
		wantFloat := i.CompKind == Fcmp
		return i.LHS.Type() == i.Type && i.RHS.Type() == i.Type && i.Type.IsFloat() == wantFloat && i.Target.Type == I32
	case VConvert:
		if i.ConvertOp == Int2Float {
			return i.FromType == I32 && i.Type == F32 && i.LHS.Type() == I32
		}
		return i.FromType == F32 && i.Type == I32 && i.LHS.Type() == F32
	case VJumpCond:
		return i.Cond.Type() == i.Type
	case VPhi:
		for _, s := range i.PhiSources {
			if s.Value.Type() != i.Type {
				return false
			}
		}
		return true
	case VAlloc:
		return i.Type.IsPointer() && i.AllocLength.Type() == I32
	case VStore:
		if !i.Addr.Type().IsPointer() {
			return false
		}
		return i.StoreValue.Type() == i.Addr.Type().Deref()
	case VLoad:
		if !i.Addr.Type().IsPointer() {
			return false
		}
		return i.Type == i.Addr.Type().Deref()
	case VGEP:
		return i.Addr.Type().IsPointer() && i.Type.IsPointer() && i.GEPOffset.Type() == I32
	case VCall:
		return true
	case VJump, VRet:
		return true
	default:
		return false
	}
}

// Format renders a one-line textual form, used by tests and by the
// debug printer's fallback path.
func (i *Instruction) Format() string {
	switch i.Variant {
	case VArith:
		return fmt.Sprintf("%s = %s %s %s, %s", i.Target, i.ArithOp, i.Type, i.LHS, i.RHS)
	case VComp:
		return fmt.Sprintf("%s = %s %s %s, %s", i.Target, i.CompOp, i.Type, i.LHS, i.RHS)
	case VConvert:
		return fmt.Sprintf("%s = convert %s to %s %s", i.Target, i.FromType, i.Type, i.LHS)
	case VJump:
		return fmt.Sprintf("br %s", i.JumpTarget)
	case VJumpCond:
		return fmt.Sprintf("br %s %s, %s, %s", i.Type, i.Cond, i.TrueTarget, i.FalseTarget)
	case VPhi:
		return fmt.Sprintf("%s = phi %s %v", i.Target, i.Type, i.PhiSources)
	case VRet:
		if i.RetValue == nil {
			return "ret void"
		}
		return fmt.Sprintf("ret %s", *i.RetValue)
	case VAlloc:
		return fmt.Sprintf("%s = alloca %s, %s", i.Target, i.Type, i.AllocLength)
	case VStore:
		return fmt.Sprintf("store %s, %s", i.StoreValue, i.Addr)
	case VLoad:
		return fmt.Sprintf("%s = load %s, %s", i.Target, i.Type, i.Addr)
	case VGEP:
		return fmt.Sprintf("%s = getelementptr %s, %s, %s", i.Target, i.Type, i.Addr, i.GEPOffset)
	case VCall:
		return fmt.Sprintf("%s = call %s @%s(%v)", i.Target, i.Type, i.CallFunc, i.CallParams)
	default:
		return "<invalid>"
	}
}
