package khandoff

import "reflect"

// Vec is a FIFO handoff with a single reader.
type Vec[T any] struct {
	buf  []T
	head int
}

// NewVec creates an empty Vec.
func NewVec[T any]() *Vec[T] {
	return &Vec[T]{}
}

func (v *Vec[T]) Give(item T) {
	v.buf = append(v.buf, item)
}

// GiveAll appends items. If the Vec is empty, it takes ownership of the
// slice instead of copying it.
func (v *Vec[T]) GiveAll(items []T) {
	if len(items) == 0 {
		return
	}
	if v.Len() == 0 {
		v.buf, v.head = items, 0
		return
	}
	v.buf = append(v.buf, items...)
}

func (v *Vec[T]) TakeAll() []T {
	out := v.buf[v.head:]
	v.buf, v.head = nil, 0
	if len(out) == 0 {
		return nil
	}
	return out
}

func (v *Vec[T]) Pull() (T, bool) {
	var zero T
	if v.head >= len(v.buf) {
		return zero, false
	}
	item := v.buf[v.head]
	v.buf[v.head] = zero
	v.head++
	if v.head == len(v.buf) {
		v.buf, v.head = v.buf[:0], 0
	}
	return item, true
}

func (v *Vec[T]) HasData() bool {
	return v.head < len(v.buf)
}

func (v *Vec[T]) Len() int {
	return len(v.buf) - v.head
}

func (v *Vec[T]) ElemType() reflect.Type {
	return typeOf[T]()
}

// Transfer moves the whole contents into dst, leaving v empty.
func (v *Vec[T]) Transfer(dst Handoff) error {
	w, err := writerFor[T](dst)
	if err != nil {
		return err
	}
	w.GiveAll(v.TakeAll())
	return nil
}
