package kruntime

import (
	"fmt"

	"github.com/birdayz/kflow/kgraph"
	"github.com/birdayz/kflow/khandoff"
)

// Body is the implementation of one operator.
//
// In and Out declare the element type of every port the operator reads or
// writes. Build rejects edges on undeclared ports and edges whose two ends
// disagree on the element type.
type Body struct {
	In  map[kgraph.Port]khandoff.Elem
	Out map[kgraph.Port]khandoff.Elem

	// Init is called once from Build, after all buffers exist. Optional.
	Init func(c *Context) error

	// Run is called every time the operator's subgraph runs. It must not
	// block.
	Run func(c *Context, io *IO) error

	// Close releases resources owned by the body. Optional.
	Close func() error
}

// IO gives an operator body access to the buffers wired to its ports.
type IO struct {
	in  map[kgraph.Port][]khandoff.Handoff
	out map[kgraph.Port][]khandoff.Handoff

	inCache  map[kgraph.Port]any
	outCache map[kgraph.Port]any
}

func newIO() *IO {
	return &IO{
		in:       map[kgraph.Port][]khandoff.Handoff{},
		out:      map[kgraph.Port][]khandoff.Handoff{},
		inCache:  map[kgraph.Port]any{},
		outCache: map[kgraph.Port]any{},
	}
}

// In reads every edge connected to one input port as one stream. Edges are
// drained in the order they were inserted into the graph.
type In[T any] struct {
	bufs []khandoff.Reader[T]
}

// Input returns the reader for an input port. A port without edges yields
// an empty reader. It panics if T is not the type the port was declared
// with.
func Input[T any](io *IO, p kgraph.Port) In[T] {
	if c, ok := io.inCache[p].(In[T]); ok {
		return c
	}
	var r In[T]
	for _, h := range io.in[p] {
		typed, ok := h.(khandoff.Reader[T])
		if !ok {
			panic(fmt.Sprintf("kruntime: input port %s carries %s", p, h.ElemType()))
		}
		r.bufs = append(r.bufs, typed)
	}
	io.inCache[p] = r
	return r
}

func (r In[T]) HasData() bool {
	for _, b := range r.bufs {
		if b.HasData() {
			return true
		}
	}
	return false
}

func (r In[T]) Len() int {
	n := 0
	for _, b := range r.bufs {
		n += b.Len()
	}
	return n
}

func (r In[T]) TakeAll() []T {
	if len(r.bufs) == 1 {
		return r.bufs[0].TakeAll()
	}
	var out []T
	for _, b := range r.bufs {
		out = append(out, b.TakeAll()...)
	}
	return out
}

func (r In[T]) Pull() (T, bool) {
	for _, b := range r.bufs {
		if item, ok := b.Pull(); ok {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Out writes to every edge connected to one output port. Each edge gets its
// own copy of an item.
type Out[T any] struct {
	ws []khandoff.Writer[T]
}

// Output returns the writer for an output port. Items written to a port
// without edges are dropped. It panics if T is not the type the port was
// declared with.
func Output[T any](io *IO, p kgraph.Port) Out[T] {
	if c, ok := io.outCache[p].(Out[T]); ok {
		return c
	}
	var w Out[T]
	for _, h := range io.out[p] {
		typed, ok := h.(khandoff.Writer[T])
		if !ok {
			panic(fmt.Sprintf("kruntime: output port %s carries %s", p, h.ElemType()))
		}
		w.ws = append(w.ws, typed)
	}
	io.outCache[p] = w
	return w
}

func (w Out[T]) Give(item T) {
	for i, dst := range w.ws {
		if i == len(w.ws)-1 {
			dst.Give(item)
			break
		}
		dst.Give(khandoff.Clone(item))
	}
}

// GiveAll emits items. The last consumer may keep the slice itself, so the
// caller must not use items afterwards.
func (w Out[T]) GiveAll(items []T) {
	for i, dst := range w.ws {
		if i == len(w.ws)-1 {
			dst.GiveAll(items)
			break
		}
		clones := make([]T, len(items))
		for j, item := range items {
			clones[j] = khandoff.Clone(item)
		}
		dst.GiveAll(clones)
	}
}

// Connected reports whether at least one edge leaves the port.
func (w Out[T]) Connected() bool {
	return len(w.ws) > 0
}
