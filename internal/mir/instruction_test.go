package mir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArithTypeValid(t *testing.T) {
	target := Temp{ID: 0, Type: I32}
	instr := NewArith(target, Add, I32, IntVal(1), IntVal(2))
	require.True(t, instr.TypeValid())
	require.Equal(t, []Temp{}, dropTempless(instr.GetRead()))
}

func TestArithTypeMismatchInvalid(t *testing.T) {
	target := Temp{ID: 0, Type: I32}
	instr := NewArith(target, Fadd, I32, FloatVal(1), FloatVal(2))
	require.False(t, instr.TypeValid(), "Fadd operating on I32 var_type must fail type_valid")
}

func TestCompTargetIsAlwaysI32Bool(t *testing.T) {
	target := Temp{ID: 0, Type: I32}
	instr := NewComp(target, Fcmp, OLT, F32, FloatVal(1), FloatVal(2))
	require.True(t, instr.TypeValid())
	require.Equal(t, I32, instr.Target.Type)
}

func TestConvertEndpointsMustMatch(t *testing.T) {
	target := Temp{ID: 0, Type: F32}
	good := NewConvert(target, Int2Float, I32, F32, IntVal(1))
	require.True(t, good.TypeValid())

	bad := NewConvert(target, Int2Float, F32, F32, FloatVal(1))
	require.False(t, bad.TypeValid())
}

func TestStoreTypeMustMatchPointee(t *testing.T) {
	addrTmp := Temp{ID: 0, Type: I32Ptr}
	ok := NewStore(IntVal(1), TempVal(addrTmp))
	require.True(t, ok.TypeValid())

	mismatch := NewStore(FloatVal(1), TempVal(addrTmp))
	require.False(t, mismatch.TypeValid())
}

func TestLoadTypeMustMatchPointee(t *testing.T) {
	target := Temp{ID: 1, Type: I32}
	addrTmp := Temp{ID: 0, Type: I32Ptr}
	instr := NewLoad(target, I32, TempVal(addrTmp))
	require.True(t, instr.TypeValid())

	badTarget := Temp{ID: 1, Type: F32}
	badInstr := NewLoad(badTarget, F32, TempVal(addrTmp))
	require.False(t, badInstr.TypeValid())
}

func TestGetWriteAndGetReadForArith(t *testing.T) {
	target := Temp{ID: 2, Type: I32}
	lhsT := Temp{ID: 0, Type: I32}
	rhsT := Temp{ID: 1, Type: I32}
	instr := NewArith(target, Add, I32, TempVal(lhsT), TempVal(rhsT))

	require.Equal(t, &target, instr.GetWrite())
	require.ElementsMatch(t, []Temp{lhsT, rhsT}, instr.GetRead())
}

func TestGetReadSkipsConstants(t *testing.T) {
	target := Temp{ID: 0, Type: I32}
	instr := NewArith(target, Add, I32, IntVal(1), IntVal(2))
	require.Empty(t, instr.GetRead())
}

func TestPhiGetReadCollectsEverySource(t *testing.T) {
	target := Temp{ID: 3, Type: I32}
	phi := NewPhi(target, I32)
	a := Temp{ID: 0, Type: I32}
	b := Temp{ID: 1, Type: I32}
	phi.AddSource(TempVal(a), Label("bb0"))
	phi.AddSource(TempVal(b), Label("bb1"))
	require.ElementsMatch(t, []Temp{a, b}, phi.GetRead())
}

func TestPhiRelabelSource(t *testing.T) {
	target := Temp{ID: 0, Type: I32}
	phi := NewPhi(target, I32)
	phi.AddSource(IntVal(1), Label("old"))
	phi.RelabelSource("old", "new")
	require.Equal(t, Label("new"), phi.PhiSources[0].Pred)
}

func TestRetVoidHasNoWrite(t *testing.T) {
	instr := NewRet(nil)
	require.Nil(t, instr.GetWrite())
	require.True(t, instr.TypeValid())
	require.Equal(t, "ret void", instr.Format())
}

func TestAttrRoundTrip(t *testing.T) {
	instr := NewJump("bb1")
	_, ok := instr.Attr("missing")
	require.False(t, ok)
	instr.SetAttr("hoisted", "true")
	v, ok := instr.Attr("hoisted")
	require.True(t, ok)
	require.Equal(t, "true", v)
}

func dropTempless(ts []Temp) []Temp {
	if ts == nil {
		return []Temp{}
	}
	return ts
}
