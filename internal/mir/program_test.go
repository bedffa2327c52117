package mir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGlobalVarByteSizeMixesZeroAndWordInit(t *testing.T) {
	g := &GlobalVar{Data: []GlobalInit{ZeroInit(12), WordInit(7), WordInit(8)}}
	require.Equal(t, int64(12+4+4), g.ByteSize())
}

func TestProgramLookupsByName(t *testing.T) {
	prog := &Program{
		Funcs:      []*Function{NewFunction("f", nil, I32)},
		GlobalVars: []*GlobalVar{{Name: "g"}},
	}
	require.NotNil(t, prog.FuncByName("f"))
	require.Nil(t, prog.FuncByName("missing"))
	require.NotNil(t, prog.GlobalByName("g"))
	require.Nil(t, prog.GlobalByName("missing"))
}
