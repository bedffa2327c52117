package serialize_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sysyc/internal/riscv"
	"sysyc/internal/riscv/serialize"
)

// TestSerializeElidesFallthroughJump checks spec §4.C9: when the
// layout places a block's jump target immediately after it, the
// redundant jump is dropped.
func TestSerializeElidesFallthroughJump(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	entry := fn.NewBlock("entry")
	hot := fn.NewBlock("hot")
	cold := fn.NewBlock("cold")
	hot.Weight = 10
	cold.Weight = 1

	riscv.AddEdge(entry, hot)
	riscv.AddEdge(entry, cold)
	entry.AddInstr(&riscv.Instr{Op: riscv.OpJal, Target: "hot"})
	hot.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})
	cold.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})

	serialize.Serialize(fn)

	require.Equal(t, "entry", fn.Blocks[0].Label, "entry must stay first")
	require.Equal(t, "hot", fn.Blocks[1].Label, "hotter successor should be chained immediately after entry")
	require.Empty(t, fn.Blocks[0].Instrs, "the now-redundant jump to hot must be elided")
}

// TestSerializeKeepsEntryFirstRegardlessOfWeight checks that nothing
// may fall through into the entry block even when another block names
// it as its hottest successor (a back-edge from a loop, say).
func TestSerializeKeepsEntryFirstRegardlessOfWeight(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	entry := fn.NewBlock("entry")
	loop := fn.NewBlock("loop")
	loop.Weight = 100
	entry.Weight = 1

	riscv.AddEdge(entry, loop)
	riscv.AddEdge(loop, entry) // back edge
	entry.AddInstr(&riscv.Instr{Op: riscv.OpJal, Target: "loop"})
	loop.AddInstr(&riscv.Instr{Op: riscv.OpJal, Target: "entry"})

	serialize.Serialize(fn)

	require.Equal(t, "entry", fn.Blocks[0].Label)
}

// TestSerializeKeepsRealCallJalIntact checks that a genuine function
// call's Jal (CallFunc set) is never mistaken for a block-to-block
// jump and elided, even when the next block happens to share its
// target's label textually.
func TestSerializeKeepsRealCallJalIntact(t *testing.T) {
	fn := &riscv.Func{Name: "f"}
	entry := fn.NewBlock("entry")
	next := fn.NewBlock("g")
	riscv.AddEdge(entry, next)

	entry.AddInstr(&riscv.Instr{Op: riscv.OpJal, Target: "g", CallFunc: "g"})
	next.AddInstr(&riscv.Instr{Op: riscv.OpRetPseudo})

	serialize.Serialize(fn)

	require.Len(t, entry.Instrs, 1, "a real call's Jal is never elided")
	require.Equal(t, "g", entry.Instrs[0].CallFunc)
}
