package kops

import (
	"github.com/birdayz/kflow/kgraph"
	"github.com/birdayz/kflow/kruntime"
)

// ForEach calls fn for every item.
func ForEach[T any](fn func(T)) *Operator {
	return New(ForEachSpec, &kruntime.Body{
		In: elided[T](),
		Run: func(c *kruntime.Context, io *kruntime.IO) error {
			for _, item := range kruntime.Input[T](io, kgraph.ElidedPort).TakeAll() {
				fn(item)
			}
			return nil
		},
	})
}

// Collect appends every item to dst. dst must only be read while the
// graph is not running.
func Collect[T any](dst *[]T) *Operator {
	return New(ForEachSpec, &kruntime.Body{
		In: elided[T](),
		Run: func(c *kruntime.Context, io *kruntime.IO) error {
			*dst = append(*dst, kruntime.Input[T](io, kgraph.ElidedPort).TakeAll()...)
			return nil
		},
	})
}
