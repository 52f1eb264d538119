package row

import "sync"

// Row is a pooled container holding one positional record.
//
// Contract:
//   - len(r.V) == r.Shape.Len() whenever a row crosses a stage boundary.
//   - The final consumer (loader, error sink) calls r.Free() to return it.
//   - Do not retain references to r or r.V after handing r downstream.
//
// V stays []any so the loader can feed CopyFrom directly.
type Row struct {
	Shape *Shape
	V     []any
	// Line is the 1-based source line, 0 when unknown.
	Line int
}

var rowPool sync.Pool

// Get returns a pooled Row with len(V) == colCount and every element nil.
func Get(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Shape = nil
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// New returns a pooled row bound to shape.
func New(shape *Shape) *Row {
	r := Get(shape.Len())
	r.Shape = shape
	return r
}

// Resize grows or shrinks V to n positions; new positions are nil.
func (r *Row) Resize(n int) {
	if n <= len(r.V) {
		for i := n; i < len(r.V); i++ {
			r.V[i] = nil
		}
		r.V = r.V[:n]
		return
	}
	if cap(r.V) >= n {
		old := len(r.V)
		r.V = r.V[:n]
		for i := old; i < n; i++ {
			r.V[i] = nil
		}
		return
	}
	v := make([]any, n)
	copy(v, r.V)
	r.V = v
}

// Clone returns a pooled copy of r sharing its shape.
func (r *Row) Clone() *Row {
	c := Get(len(r.V))
	copy(c.V, r.V)
	c.Shape = r.Shape
	c.Line = r.Line
	return c
}

// Free returns the Row to the pool. The caller must not use r after Free().
func (r *Row) Free() {
	if r == nil {
		return
	}
	r.Shape = nil
	rowPool.Put(r)
}
