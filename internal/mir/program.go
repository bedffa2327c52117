package mir

// GlobalInit is one chunk of a global variable's initial-value list.
// Zero(n) reserves n bytes of zero-initialized storage (.bss); Word(v)
// places one 4-byte datum (.data).
type GlobalInit struct {
	IsZero bool
	ZeroN  int64
	Word   int32
	FWord  float32
	IsFWord bool
}

// ZeroInit constructs a Zero(n) initializer.
func ZeroInit(n int64) GlobalInit { return GlobalInit{IsZero: true, ZeroN: n} }

// WordInit constructs a Word(v) initializer.
func WordInit(v int32) GlobalInit { return GlobalInit{Word: v} }

// FloatWordInit constructs a 4-byte float initializer.
func FloatWordInit(v float32) GlobalInit { return GlobalInit{FWord: v, IsFWord: true} }

// GlobalVar is one top-level global variable.
type GlobalVar struct {
	Name    string
	IsArray bool
	IsFloat bool
	Data    []GlobalInit
}

// ByteSize returns the total byte footprint of the global's storage.
func (g *GlobalVar) ByteSize() int64 {
	var n int64
	for _, d := range g.Data {
		if d.IsZero {
			n += d.ZeroN
		} else {
			n += ElemSize
		}
	}
	return n
}

// Program is the whole-module input handed from the front end to the
// optimizer/back-end core (§6.2): global variables plus functions, all
// already typed and in SSA.
type Program struct {
	Funcs      []*Function
	GlobalVars []*GlobalVar
}

// FuncByName finds a function by name, or nil.
func (p *Program) FuncByName(name string) *Function {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// GlobalByName finds a global by name, or nil.
func (p *Program) GlobalByName(name string) *GlobalVar {
	for _, g := range p.GlobalVars {
		if g.Name == name {
			return g
		}
	}
	return nil
}
