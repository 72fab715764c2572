package kops

import (
	"github.com/birdayz/kflow/kruntime"
)

// Map applies fn to every item.
func Map[In, Out any](fn func(In) Out) *Operator {
	return transform(MapSpec, func(in kruntime.In[In], out kruntime.Out[Out]) {
		for _, item := range in.TakeAll() {
			out.Give(fn(item))
		}
	})
}

// Filter keeps the items pred returns true for.
func Filter[T any](pred func(T) bool) *Operator {
	return transform(FilterSpec, func(in kruntime.In[T], out kruntime.Out[T]) {
		for _, item := range in.TakeAll() {
			if pred(item) {
				out.Give(item)
			}
		}
	})
}

// FlatMap emits every item fn returns, in order. The returned slice is
// copied; fn may return slices it keeps using.
func FlatMap[In, Out any](fn func(In) []Out) *Operator {
	return transform(FlatMapSpec, func(in kruntime.In[In], out kruntime.Out[Out]) {
		for _, item := range in.TakeAll() {
			for _, x := range fn(item) {
				out.Give(x)
			}
		}
	})
}

// Inspect calls fn for every item and passes the item on.
func Inspect[T any](fn func(T)) *Operator {
	return transform(InspectSpec, func(in kruntime.In[T], out kruntime.Out[T]) {
		items := in.TakeAll()
		for _, item := range items {
			fn(item)
		}
		out.GiveAll(items)
	})
}

// Identity passes items through unchanged.
func Identity[T any]() *Operator {
	return transform(IdentitySpec, func(in kruntime.In[T], out kruntime.Out[T]) {
		out.GiveAll(in.TakeAll())
	})
}

// Union merges every edge connected to its input. Items of one edge keep
// their order; edges are drained in the order they were connected.
func Union[T any]() *Operator {
	return transform(UnionSpec, func(in kruntime.In[T], out kruntime.Out[T]) {
		out.GiveAll(in.TakeAll())
	})
}

// Tee copies every item to each edge connected to its output. Items are
// cloned with khandoff.Clone for all edges but the last.
func Tee[T any]() *Operator {
	return transform(TeeSpec, func(in kruntime.In[T], out kruntime.Out[T]) {
		out.GiveAll(in.TakeAll())
	})
}

// DeferTick delays its input by one tick.
//
// Example:
//
//	// Feed the previous tick's state back into a union.
//	b.Connect(state, b.AddNode("prev", kops.DeferTick[int]()))
func DeferTick[T any]() *Operator {
	return transform(DeferTickSpec, func(in kruntime.In[T], out kruntime.Out[T]) {
		out.GiveAll(in.TakeAll())
	})
}
