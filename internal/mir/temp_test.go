package mir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTempManagerIssuesUniqueIncreasingIDs(t *testing.T) {
	m := NewTempManager(0)
	a := m.New(I32)
	b := m.New(I32)
	require.Equal(t, uint32(0), a.ID)
	require.Equal(t, uint32(1), b.ID)
	require.NotEqual(t, a.ID, b.ID)
}

func TestTempManagerSeededHighestIssuedNeverCollides(t *testing.T) {
	m := NewTempManager(5)
	a := m.New(I32)
	require.Equal(t, uint32(5), a.ID)
	require.Equal(t, uint32(6), m.HighestIssued())
}

func TestNewPreColoredSetsRole(t *testing.T) {
	m := NewTempManager(0)
	t0 := m.NewPreColored(I32, "a0")
	require.Equal(t, "a0", t0.PreColor)
}

func TestGlobalTempIsNotCounted(t *testing.T) {
	g := Global("n", I32)
	require.True(t, g.IsGlobal)
	require.Equal(t, "n", g.Name)
	require.Equal(t, "@n", g.String())
}

func TestLabelManagerIssuesUniqueLabels(t *testing.T) {
	m := NewLabelManager()
	a := m.New()
	b := m.New()
	require.NotEqual(t, a, b)
}
