package khandoff

import "reflect"

// Elem describes the element type of a port and builds handoffs for it, so
// that the runtime can materialize buffers without knowing T.
type Elem interface {
	Type() reflect.Type
	NewVec() Buffer
	NewTee() Fanout
}

// Fanout is the type-erased view of a Tee.
type Fanout interface {
	Handoff
	// NewReader registers a reader and returns it.
	NewReader() Buffer
}

// Of returns the Elem for T.
func Of[T any]() Elem {
	return elem[T]{}
}

type elem[T any] struct{}

func (elem[T]) Type() reflect.Type {
	return typeOf[T]()
}

func (elem[T]) NewVec() Buffer {
	return NewVec[T]()
}

func (elem[T]) NewTee() Fanout {
	return teeFanout[T]{NewTee[T]()}
}

func (e elem[T]) String() string {
	return e.Type().String()
}

type teeFanout[T any] struct {
	*Tee[T]
}

func (f teeFanout[T]) NewReader() Buffer {
	return f.Tee.Tee()
}
