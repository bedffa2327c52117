package frontend

import "sysyc/internal/mir"

// The functions below build the literal programs spec §8.3 describes in
// source form. They exist for tests and for cmd/sysyc's -E/-S smoke
// path (there being no parser to read the source text directly) and
// are named after the scenario they reproduce.

// SumLoop builds:
//
//	int sum(int n){ int s=0; for(int i=0;i<n;i++) s+=i; return s; }
func SumLoop() *mir.Program {
	b := NewBuilder()
	fn := b.Func("sum", []mir.Type{mir.I32}, mir.I32)
	n := fn.Param(0)

	entry := fn.Block()
	header := fn.Block()
	body := fn.Block()
	exit := fn.Block()

	fn.SetBlock(entry)
	fn.Jump(header)

	fn.SetBlock(header)
	sPhi, sVal := fn.Phi(mir.I32)
	iPhi, iVal := fn.Phi(mir.I32)
	cond := fn.Comp(mir.Icmp, mir.SLT, mir.I32, iVal, n)
	fn.JumpCond(cond, mir.I32, body, exit)

	fn.SetBlock(body)
	sNext := fn.Arith(mir.Add, mir.I32, sVal, iVal)
	iNext := fn.Arith(mir.Add, mir.I32, iVal, mir.IntVal(1))
	fn.Jump(header)

	sPhi.AddSource(mir.IntVal(0), entry.Label)
	sPhi.AddSource(sNext, body.Label)
	iPhi.AddSource(mir.IntVal(0), entry.Label)
	iPhi.AddSource(iNext, body.Label)

	fn.SetBlock(exit)
	fn.Ret(&sVal)

	return b.Prog
}

// Fibonacci builds:
//
//	int fib(int n){ return n<2 ? n : fib(n-1)+fib(n-2); }
//
// eligible for the stateless result cache once ClassifyCacheEligibility
// runs over the program (it is pure, single i32 argument, i32 return).
func Fibonacci() *mir.Program {
	b := NewBuilder()
	fn := b.Func("fib", []mir.Type{mir.I32}, mir.I32)
	n := fn.Param(0)

	entry := fn.Block()
	baseBlk := fn.Block()
	recBlk := fn.Block()

	fn.SetBlock(entry)
	cond := fn.Comp(mir.Icmp, mir.SLT, mir.I32, n, mir.IntVal(2))
	fn.JumpCond(cond, mir.I32, baseBlk, recBlk)

	fn.SetBlock(baseBlk)
	fn.Ret(&n)

	fn.SetBlock(recBlk)
	nm1 := fn.Arith(mir.Sub, mir.I32, n, mir.IntVal(1))
	nm2 := fn.Arith(mir.Sub, mir.I32, n, mir.IntVal(2))
	r1 := fn.Call(mir.I32, "fib", []mir.Param{{Type: mir.I32, Value: nm1}})
	r2 := fn.Call(mir.I32, "fib", []mir.Param{{Type: mir.I32, Value: nm2}})
	sum := fn.Arith(mir.Add, mir.I32, r1, r2)
	fn.Ret(&sum)

	return b.Prog
}

// DeadCode builds:
//
//	int f(){ int x=1; int y=x+2; return 0; }
//
// DCE should reduce this to a single `ret 0` with no surviving
// arithmetic.
func DeadCode() *mir.Program {
	b := NewBuilder()
	fn := b.Func("f", nil, mir.I32)
	entry := fn.Block()
	fn.SetBlock(entry)
	x := mir.IntVal(1)
	_ = fn.Arith(mir.Add, mir.I32, x, mir.IntVal(2))
	zero := mir.IntVal(0)
	fn.Ret(&zero)
	return b.Prog
}

// GlobalStoreOrdering builds:
//
//	int g;
//	int main(){ g=1; g=2; return g; }
//
// Mem2Reg+DCE should collapse the two stores to one (g=2) and return
// the value directly rather than reloading it.
func GlobalStoreOrdering() *mir.Program {
	b := NewBuilder()
	g := b.Scalar("g", mir.I32)

	fn := b.Func("main", nil, mir.I32)
	entry := fn.Block()
	fn.SetBlock(entry)
	fn.Store(mir.IntVal(1), mir.TempVal(g))
	fn.Store(mir.IntVal(2), mir.TempVal(g))
	v := fn.Load(mir.I32, mir.TempVal(g))
	fn.Ret(&v)
	return b.Prog
}

// IfCombine builds:
//
//	void set(int c, int* p){ if(c) *p=1; else *p=2; }
//
// if-combine should lower this to a single store of (c?1:2) through p.
func IfCombine() *mir.Program {
	b := NewBuilder()
	fn := b.Func("set", []mir.Type{mir.I32, mir.I32Ptr}, mir.Void)
	c := fn.Param(0)
	p := fn.Param(1)

	entry := fn.Block()
	thenBlk := fn.Block()
	elseBlk := fn.Block()
	exit := fn.Block()

	fn.SetBlock(entry)
	fn.JumpCond(c, mir.I32, thenBlk, elseBlk)

	fn.SetBlock(thenBlk)
	fn.Store(mir.IntVal(1), p)
	fn.Jump(exit)

	fn.SetBlock(elseBlk)
	fn.Store(mir.IntVal(2), p)
	fn.Jump(exit)

	fn.SetBlock(exit)
	fn.Ret(nil)

	return b.Prog
}

// MatMul64 builds a 64x64 float matrix multiply over three globals a, b,
// c (row-major, 64*64 floats each) with the canonical triple-nested
// loop order i,k,j so the innermost block's load of a[i][k] is
// loop-invariant in j. Hoist does not move loads, so that load stays in
// the innermost body.
func MatMul64() *mir.Program {
	const dim = 64
	b := NewBuilder()
	aArr := b.Array("a", mir.F32, dim*dim)
	bArr := b.Array("b", mir.F32, dim*dim)
	cArr := b.Array("c", mir.F32, dim*dim)

	fn := b.Func("matmul", nil, mir.Void)

	entry := fn.Block()
	iHeader := fn.Block()
	kHeader := fn.Block()
	jHeader := fn.Block()
	jBody := fn.Block()
	kLatch := fn.Block()
	iLatch := fn.Block()
	exit := fn.Block()

	fn.SetBlock(entry)
	fn.Jump(iHeader)

	fn.SetBlock(iHeader)
	iPhi, iVal := fn.Phi(mir.I32)
	iCond := fn.Comp(mir.Icmp, mir.SLT, mir.I32, iVal, mir.IntVal(dim))
	fn.JumpCond(iCond, mir.I32, kHeader, exit)

	fn.SetBlock(kHeader)
	kPhi, kVal := fn.Phi(mir.I32)
	kCond := fn.Comp(mir.Icmp, mir.SLT, mir.I32, kVal, mir.IntVal(dim))
	fn.JumpCond(kCond, mir.I32, jHeader, iLatch)

	fn.SetBlock(jHeader)
	jPhi, jVal := fn.Phi(mir.I32)
	jCond := fn.Comp(mir.Icmp, mir.SLT, mir.I32, jVal, mir.IntVal(dim))
	fn.JumpCond(jCond, mir.I32, jBody, kLatch)

	fn.SetBlock(jBody)
	aIdx := fn.Arith(mir.Add, mir.I32, fn.Arith(mir.Mul, mir.I32, iVal, mir.IntVal(dim)), kVal)
	aVal := fn.Load(mir.F32, fn.GEP(mir.F32Ptr, mir.TempVal(aArr), aIdx))
	bIdx := fn.Arith(mir.Add, mir.I32, fn.Arith(mir.Mul, mir.I32, kVal, mir.IntVal(dim)), jVal)
	bVal := fn.Load(mir.F32, fn.GEP(mir.F32Ptr, mir.TempVal(bArr), bIdx))
	cIdx := fn.Arith(mir.Add, mir.I32, fn.Arith(mir.Mul, mir.I32, iVal, mir.IntVal(dim)), jVal)
	cAddr := fn.GEP(mir.F32Ptr, mir.TempVal(cArr), cIdx)
	cOld := fn.Load(mir.F32, cAddr)
	prod := fn.Arith(mir.Fmul, mir.F32, aVal, bVal)
	cNew := fn.Arith(mir.Fadd, mir.F32, cOld, prod)
	fn.Store(cNew, cAddr)
	jNext := fn.Arith(mir.Add, mir.I32, jVal, mir.IntVal(1))
	fn.Jump(jHeader)
	jPhi.AddSource(mir.IntVal(0), kHeader.Label)
	jPhi.AddSource(jNext, jBody.Label)

	fn.SetBlock(kLatch)
	kNext := fn.Arith(mir.Add, mir.I32, kVal, mir.IntVal(1))
	fn.Jump(kHeader)
	kPhi.AddSource(mir.IntVal(0), iHeader.Label)
	kPhi.AddSource(kNext, kLatch.Label)

	fn.SetBlock(iLatch)
	iNext := fn.Arith(mir.Add, mir.I32, iVal, mir.IntVal(1))
	fn.Jump(iHeader)
	iPhi.AddSource(mir.IntVal(0), entry.Label)
	iPhi.AddSource(iNext, iLatch.Label)

	fn.SetBlock(exit)
	fn.Ret(nil)

	return b.Prog
}
