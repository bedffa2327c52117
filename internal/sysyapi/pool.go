package sysyapi

const poolPageSize = 128

// Pool is a page-allocated pool of T, handed out by pointer and reset
// between uses without returning memory to the OS. The post-selection
// instruction scheduler allocates one dependency-DAG node per
// instruction in every barrier-free run; a plain pool avoids paying GC
// pressure for that per-block churn.
type Pool[T any] struct {
	pages            []*[poolPageSize]T
	allocated, index int
}

// NewPool returns a ready-to-use Pool.
func NewPool[T any]() Pool[T] {
	var p Pool[T]
	p.Reset()
	return p
}

// Allocated returns how many T are currently checked out of the pool.
func (p *Pool[T]) Allocated() int { return p.allocated }

// Allocate returns a pointer to a fresh zero-valued T.
func (p *Pool[T]) Allocate() *T {
	if p.index == poolPageSize {
		if len(p.pages) == cap(p.pages) {
			p.pages = append(p.pages, new([poolPageSize]T))
		} else {
			i := len(p.pages)
			p.pages = p.pages[:i+1]
			if p.pages[i] == nil {
				p.pages[i] = new([poolPageSize]T)
			}
		}
		p.index = 0
	}
	ret := &p.pages[len(p.pages)-1][p.index]
	p.index++
	p.allocated++
	return ret
}

// View returns the pointer to the i-th allocated item.
func (p *Pool[T]) View(i int) *T {
	page, index := i/poolPageSize, i%poolPageSize
	return &p.pages[page][index]
}

// Reset clears every page for reuse by the next function.
func (p *Pool[T]) Reset() {
	for _, page := range p.pages {
		var zero T
		for i := range page {
			page[i] = zero
		}
	}
	p.pages = p.pages[:0]
	p.index = poolPageSize
	p.allocated = 0
}
