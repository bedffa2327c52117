package riscv

// FitsI12 reports whether v fits RISC-V's 12-bit signed immediate
// field used by addi/lw/sw/jalr and friends.
func FitsI12(v int64) bool {
	return v >= -(1<<11) && v < (1<<11)
}

// SplitImm32 decomposes a 32-bit immediate into the `lui`-ready upper
// 20 bits and the sign-adjusted low 12 bits, so that
// `lui rd, Hi20; addi rd, rd, Lo12` reconstructs v exactly (the
// classical RISC-V Li materialization idiom: Lo12 is sign-extended by
// addi, so Hi20 is biased by one when bit 11 of v is set).
func SplitImm32(v int32) (hi20 int32, lo12 int32) {
	lo12 = v << 20 >> 20
	hi20 = (v - lo12) >> 12
	return hi20, lo12
}

// IsPow2 reports whether n is a positive power of two.
func IsPow2(n int32) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns k such that 1<<k == n. Callers must check IsPow2 first.
func Log2(n int32) int32 {
	var k int32
	for v := n; v > 1; v >>= 1 {
		k++
	}
	return k
}
