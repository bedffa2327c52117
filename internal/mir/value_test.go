package mir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFoldConstArithInt(t *testing.T) {
	v, folded, divZero := FoldConstArith(Add, IntVal(2), IntVal(3))
	require.True(t, folded)
	require.False(t, divZero)
	require.Equal(t, IntVal(5), v)
}

func TestFoldConstArithIntDivideByZero(t *testing.T) {
	_, folded, divZero := FoldConstArith(Div, IntVal(7), IntVal(0))
	require.False(t, folded)
	require.True(t, divZero)
}

func TestFoldConstArithRemDivideByZero(t *testing.T) {
	_, folded, divZero := FoldConstArith(Rem, IntVal(7), IntVal(0))
	require.False(t, folded)
	require.True(t, divZero)
}

func TestFoldConstArithFloat(t *testing.T) {
	v, folded, divZero := FoldConstArith(Fmul, FloatVal(2.5), FloatVal(4))
	require.True(t, folded)
	require.False(t, divZero)
	require.Equal(t, FloatVal(10), v)
}

func TestFoldConstArithNonConstOperand(t *testing.T) {
	tmp := Temp{ID: 1, Type: I32}
	_, folded, _ := FoldConstArith(Add, TempVal(tmp), IntVal(1))
	require.False(t, folded)
}

// TestValueKeyNaNSentinel checks spec §3.3: NaN and Inf bit patterns
// must hash equally so GVN's value-number table treats any two "don't
// care" floats as congruent.
func TestValueKeyNaNSentinel(t *testing.T) {
	nan1 := FloatVal(float32(math.NaN()))
	nan2 := FloatVal(math.Float32frombits(0x7fc00042)) // different NaN payload
	require.Equal(t, nan1.Key(), nan2.Key())

	posInf := FloatVal(float32(math.Inf(1)))
	negInf := FloatVal(float32(math.Inf(-1)))
	require.Equal(t, posInf.Key(), negInf.Key())
	require.Equal(t, nan1.Key(), posInf.Key())
}

func TestValueKeyFiniteValuesDistinct(t *testing.T) {
	require.NotEqual(t, FloatVal(1).Key(), FloatVal(2).Key())
	require.NotEqual(t, IntVal(1).Key(), FloatVal(1).Key())
}

func TestValueType(t *testing.T) {
	require.Equal(t, I32, IntVal(1).Type())
	require.Equal(t, F32, FloatVal(1).Type())
	require.Equal(t, F32, TempVal(Temp{Type: F32}).Type())
}
