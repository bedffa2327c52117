// Package riscv implements the RISC-V IR the instruction selector lowers
// MIR into, and the register/immediate vocabulary every later back-end
// stage (register allocation, frame layout, serialization, emission)
// shares (spec §4.C6, §4.C7, §6.3).
package riscv

import "fmt"

// RegClass distinguishes the integer (X) and floating-point (F) register
// files; the allocator runs one independent Chaitin pass per class
// (spec §4.C7).
type RegClass uint8

const (
	RegClassInt RegClass = iota
	RegClassFloat
)

func (c RegClass) String() string {
	if c == RegClassFloat {
		return "f"
	}
	return "x"
}

// RealReg names one of the 32 physical registers in a class. The
// ABI-fixed registers (zero, ra, sp, gp, tp, fp) never participate in
// allocation.
type RealReg uint8

const (
	RealRegInvalid RealReg = 0xff

	X0  RealReg = 0 // zero
	RA  RealReg = 1
	SP  RealReg = 2
	GP  RealReg = 3
	TP  RealReg = 4
	T0  RealReg = 5
	T1  RealReg = 6
	T2  RealReg = 7
	FP  RealReg = 8 // s0/fp
	S1  RealReg = 9
	A0  RealReg = 10
	A1  RealReg = 11
	A2  RealReg = 12
	A3  RealReg = 13
	A4  RealReg = 14
	A5  RealReg = 15
	A6  RealReg = 16
	A7  RealReg = 17
	S2  RealReg = 18
	S3  RealReg = 19
	S4  RealReg = 20
	S5  RealReg = 21
	S6  RealReg = 22
	S7  RealReg = 23
	S8  RealReg = 24
	S9  RealReg = 25
	S10 RealReg = 26
	S11 RealReg = 27
	T3  RealReg = 28
	T4  RealReg = 29
	T5  RealReg = 30
	T6  RealReg = 31
)

var intRegNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var floatRegNames = [32]string{
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7",
	"fs0", "fs1", "fa0", "fa1", "fa2", "fa3", "fa4", "fa5",
	"fa6", "fa7", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7",
	"fs8", "fs9", "fs10", "fs11", "ft8", "ft9", "ft10", "ft11",
}

// Name renders the RealReg's ABI mnemonic for class c.
func (r RealReg) Name(c RegClass) string {
	if r == RealRegInvalid {
		return "<invalid>"
	}
	if c == RegClassFloat {
		return floatRegNames[r]
	}
	return intRegNames[r]
}

// IntCallerSaved are the integer registers a callee may clobber freely:
// temporaries and argument registers (spec's "caller-save" set).
var IntCallerSaved = []RealReg{T0, T1, T2, A0, A1, A2, A3, A4, A5, A6, A7, T3, T4, T5, T6}

// IntCalleeSaved are the integer registers a callee must preserve
// (saved registers s1-s11; the frame pointer s0 is not in this list and
// is saved separately by the frame pass).
var IntCalleeSaved = []RealReg{S1, S2, S3, S4, S5, S6, S7, S8, S9, S10, S11}

// IntAllocatable is IntCallerSaved ∪ IntCalleeSaved, excluding the
// reserved ABI registers (zero, ra, sp, gp, tp, fp) per spec §4.C7.
func IntAllocatable() []RealReg {
	out := append([]RealReg{}, IntCallerSaved...)
	return append(out, IntCalleeSaved...)
}

// FloatCallerSaved/FloatCalleeSaved mirror the integer sets for the F
// register file; RISC-V's F extension reserves no register, so all 32
// participate.
var FloatCallerSaved = []RealReg{0, 1, 2, 3, 4, 5, 6, 7, 10, 11, 12, 13, 14, 15, 16, 17, 28, 29, 30, 31}
var FloatCalleeSaved = []RealReg{8, 9, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27}

func FloatAllocatable() []RealReg {
	out := append([]RealReg{}, FloatCallerSaved...)
	return append(out, FloatCalleeSaved...)
}

// ClobberedReg names one physical register a call site overwrites,
// tagged with its register class since RealReg ids overlap between the
// integer and float files (both name their argument registers 10-17).
type ClobberedReg struct {
	Reg   RealReg
	Class RegClass
}

// VReg is a virtual register: an opaque id plus its class, assigned to
// real registers by the allocator or spilled to a frame slot.
type VReg struct {
	ID    uint32
	Class RegClass
}

func (v VReg) String() string { return fmt.Sprintf("v%d%s", v.ID, v.Class) }

// VRegAllocator hands out fresh VRegs, one counter per class.
type VRegAllocator struct {
	next [2]uint32
}

func (a *VRegAllocator) New(c RegClass) VReg {
	id := a.next[c]
	a.next[c]++
	return VReg{ID: id, Class: c}
}

// IntCount/FloatCount report how many VRegs of each class have been
// issued so far, used to size the register allocator's interference
// graph before its first pass.
func (a *VRegAllocator) IntCount() uint32   { return a.next[RegClassInt] }
func (a *VRegAllocator) FloatCount() uint32 { return a.next[RegClassFloat] }
