package khandoff

import (
	"reflect"

	"golang.org/x/exp/slices"
)

// Tee is the writing side of a multi-reader handoff. Every item given to
// the Tee is delivered once to each reader registered at that time.
//
// Readers are kept in registration order. All readers but the last receive
// clones; the last one receives the original items, and takes a batch by
// move when its queue is empty.
type Tee[T any] struct {
	readers []*TeeReader[T]
}

// NewTee creates a Tee without readers. Items given before the first
// reader is registered are discarded.
func NewTee[T any]() *Tee[T] {
	return &Tee[T]{}
}

// Tee registers a new reader. It only observes items given after this call.
func (t *Tee[T]) Tee() *TeeReader[T] {
	r := &TeeReader[T]{tee: t}
	t.readers = append(t.readers, r)
	return r
}

// Readers returns the number of live readers.
func (t *Tee[T]) Readers() int {
	return len(t.readers)
}

func (t *Tee[T]) Give(item T) {
	n := len(t.readers)
	for i, r := range t.readers {
		if i == n-1 {
			r.buf.Give(item)
			break
		}
		r.buf.Give(Clone(item))
	}
}

func (t *Tee[T]) GiveAll(items []T) {
	if len(items) == 0 {
		return
	}
	n := len(t.readers)
	for i, r := range t.readers {
		if i == n-1 {
			r.buf.GiveAll(items)
			break
		}
		for _, item := range items {
			r.buf.Give(Clone(item))
		}
	}
}

// HasData reports whether any reader has buffered items.
func (t *Tee[T]) HasData() bool {
	for _, r := range t.readers {
		if r.HasData() {
			return true
		}
	}
	return false
}

// Len returns the largest number of items buffered for a single reader.
func (t *Tee[T]) Len() int {
	n := 0
	for _, r := range t.readers {
		n = max(n, r.Len())
	}
	return n
}

func (t *Tee[T]) ElemType() reflect.Type {
	return typeOf[T]()
}

func (t *Tee[T]) drop(r *TeeReader[T]) {
	if i := slices.Index(t.readers, r); i >= 0 {
		t.readers = slices.Delete(t.readers, i, i+1)
	}
}

// TeeReader is one reader of a Tee, with its own queue.
type TeeReader[T any] struct {
	tee     *Tee[T]
	buf     Vec[T]
	dropped bool
}

// Tee registers a sibling reader on the same Tee.
func (r *TeeReader[T]) Tee() *TeeReader[T] {
	return r.tee.Tee()
}

// Drop deregisters the reader and discards its queue. Queues of other
// readers are untouched. Dropping twice is a no-op.
func (r *TeeReader[T]) Drop() {
	if r.dropped {
		return
	}
	r.dropped = true
	r.tee.drop(r)
	r.buf.TakeAll()
}

// Dropped reports whether Drop was called.
func (r *TeeReader[T]) Dropped() bool {
	return r.dropped
}

func (r *TeeReader[T]) TakeAll() []T {
	return r.buf.TakeAll()
}

func (r *TeeReader[T]) Pull() (T, bool) {
	return r.buf.Pull()
}

func (r *TeeReader[T]) HasData() bool {
	return r.buf.HasData()
}

func (r *TeeReader[T]) Len() int {
	return r.buf.Len()
}

func (r *TeeReader[T]) ElemType() reflect.Type {
	return typeOf[T]()
}

// Transfer moves the reader's queue into dst.
func (r *TeeReader[T]) Transfer(dst Handoff) error {
	return r.buf.Transfer(dst)
}
