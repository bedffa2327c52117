package mir

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// ValueKind discriminates the three Value variants.
type ValueKind uint8

const (
	ValueInt ValueKind = iota
	ValueFloat
	ValueTempKind
)

// Value is one of Int(i32), Float(f32), Temp(T). Equality is structural;
// use Value.Key for use as a map key since raw Float equality must treat
// NaN/Inf specially (see Key).
type Value struct {
	Kind ValueKind
	Int  int32
	Flt  float32
	Tmp  Temp
}

// IntVal constructs an Int value.
func IntVal(v int32) Value { return Value{Kind: ValueInt, Int: v} }

// FloatVal constructs a Float value.
func FloatVal(v float32) Value { return Value{Kind: ValueFloat, Flt: v} }

// TempVal constructs a Temp value.
func TempVal(t Temp) Value { return Value{Kind: ValueTempKind, Tmp: t} }

// IsConst reports whether v is a compile-time constant (Int or Float).
func (v Value) IsConst() bool { return v.Kind != ValueTempKind }

// Type returns the type of the value.
func (v Value) Type() Type {
	switch v.Kind {
	case ValueInt:
		return I32
	case ValueFloat:
		return F32
	default:
		return v.Tmp.Type
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.Kind {
	case ValueInt:
		return fmt.Sprintf("%d", v.Int)
	case ValueFloat:
		return fmt.Sprintf("%g", v.Flt)
	default:
		return v.Tmp.String()
	}
}

// floatHashSentinel is the bit pattern substituted for any NaN or
// Infinity before hashing, so that all NaN payloads (which are not
// required to compare bit-equal under IEEE-754) and both signed
// infinities hash into the same congruence class as each other but
// never collide with an ordinary finite value. See spec §3.3.
const floatHashSentinel uint32 = 0x7fc00001

// Key returns a value usable as a map/set key that respects the value's
// structural equality, folding NaN and +-Inf bit patterns to a fixed
// sentinel so that equal "don't care" floats hash equally. Used by GVN's
// value-numbering table.
func (v Value) Key() interface{} {
	switch v.Kind {
	case ValueInt:
		return [2]int32{0, v.Int}
	case ValueFloat:
		bits := math.Float32bits(v.Flt)
		if math.IsNaN(float64(v.Flt)) || math.IsInf(float64(v.Flt), 0) {
			bits = floatHashSentinel
		}
		return [2]uint32{1, bits}
	default:
		return [2]uint32{2, v.Tmp.ID}
	}
}

// foldInt evaluates an integer ArithOp over a generic integer type,
// parameterized so the same switch serves both the i32 case this IR
// actually has today and any wider integer type a future front end
// might add. ok is false for Div/Rem by zero, which the caller must
// turn into a DivideByZero compile error rather than silently folding.
func foldInt[T constraints.Integer](op ArithOp, a, b T) (T, bool) {
	switch op {
	case Add:
		return a + b, true
	case Sub:
		return a - b, true
	case Mul:
		return a * b, true
	case Div:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case Rem:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case Shl:
		return a << uint(b), true
	case Lshr:
		return T(uint32(a) >> uint(b)), true
	case Ashr:
		return a >> uint(b), true
	case And:
		return a & b, true
	case Or:
		return a | b, true
	case Xor:
		return a ^ b, true
	default:
		return 0, false
	}
}

// foldFloat evaluates a floating ArithOp over a generic float type.
// Division by a zero float is left to IEEE-754 (yields +-Inf or NaN,
// spec §9's NaN-propagation rule applies downstream), unlike foldInt's
// integer division which has no such representable result.
func foldFloat[T constraints.Float](op ArithOp, a, b T) (T, bool) {
	switch op {
	case Fadd:
		return a + b, true
	case Fsub:
		return a - b, true
	case Fmul:
		return a * b, true
	case Fdiv:
		return a / b, true
	default:
		return 0, false
	}
}

// FoldConstArith evaluates op over two constant operands at compile
// time (spec §4.C5.m's constant folding, run by ArithCanon ahead of
// its algebraic identity rewrites). folded is false if either operand
// isn't constant or op isn't recognized; divByZero is true for an
// integer Div/Rem by the constant zero, which the caller reports as a
// semantic error instead of producing a result.
func FoldConstArith(op ArithOp, lhs, rhs Value) (result Value, folded bool, divByZero bool) {
	if !lhs.IsConst() || !rhs.IsConst() {
		return Value{}, false, false
	}
	if op.IsFloat() {
		v, ok := foldFloat(op, lhs.Flt, rhs.Flt)
		if !ok {
			return Value{}, false, false
		}
		return FloatVal(v), true, false
	}
	v, ok := foldInt(op, lhs.Int, rhs.Int)
	if !ok {
		if op == Div || op == Rem {
			return Value{}, false, true
		}
		return Value{}, false, false
	}
	return IntVal(v), true, false
}
