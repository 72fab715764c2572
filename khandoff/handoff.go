// Package khandoff provides the buffers sitting between subgraphs.
//
// A Vec is a FIFO with one writer and one reader. A Tee has one writer and
// any number of readers that can be registered and dropped while data flows.
// None of the types in this package are safe for concurrent use; they are
// owned by the scheduler goroutine.
package khandoff

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrTypeMismatch = errors.New("handoff element type mismatch")
)

// Handoff is the type-erased view of a buffer the scheduler works with.
type Handoff interface {
	// HasData reports whether items are buffered. It is O(1) and has no side
	// effects.
	HasData() bool
	Len() int
	ElemType() reflect.Type
}

// Buffer is a Handoff whose contents can be moved into another Handoff of
// the same element type.
type Buffer interface {
	Handoff
	Transfer(dst Handoff) error
}

// Reader is the consuming side of a handoff.
type Reader[T any] interface {
	Handoff
	// TakeAll drains the buffer. The returned slice is owned by the caller.
	TakeAll() []T
	// Pull removes and returns the oldest item.
	Pull() (T, bool)
}

// Writer is the producing side of a handoff.
type Writer[T any] interface {
	Handoff
	Give(item T)
	GiveAll(items []T)
}

// Cloner is implemented by element types that need a deep copy when a Tee
// hands the same item to several readers. Other types are copied by value.
type Cloner[T any] interface {
	Clone() T
}

// Clone copies an item for an additional reader, using Cloner when T
// implements it.
func Clone[T any](item T) T {
	if c, ok := any(item).(Cloner[T]); ok {
		return c.Clone()
	}
	return item
}

// writerFor asserts that dst accepts items of type T.
func writerFor[T any](dst Handoff) (Writer[T], error) {
	w, ok := dst.(Writer[T])
	if !ok {
		return nil, fmt.Errorf("%w: cannot move %s into %s", ErrTypeMismatch, typeOf[T](), dst.ElemType())
	}
	return w, nil
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}
