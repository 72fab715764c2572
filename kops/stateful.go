package kops

import (
	"fmt"

	"github.com/birdayz/kflow/kgraph"
	"github.com/birdayz/kflow/khandoff"
	"github.com/birdayz/kflow/kruntime"
	"github.com/birdayz/kflow/kstate"
)

// Persist accumulates every item it has ever received. The first time it
// runs in a tick it replays everything; later runs in the same tick only
// emit new items. It reschedules itself, so it replays whenever a tick
// runs, but never causes a tick on its own.
func Persist[T any]() *Operator {
	var all []T
	return New(PersistSpec, &kruntime.Body{
		In:  elided[T](),
		Out: elided[T](),
		Run: func(c *kruntime.Context, io *kruntime.IO) error {
			start := len(all)
			if c.IsFirstRunThisTick() {
				start = 0
			}
			all = append(all, kruntime.Input[T](io, kgraph.ElidedPort).TakeAll()...)

			out := kruntime.Output[T](io, kgraph.ElidedPort)
			for _, item := range all[start:] {
				out.Give(khandoff.Clone(item))
			}
			c.Reschedule()
			return nil
		},
	})
}

// KV is one entry of a keyed fold.
type KV[K, V any] struct {
	Key   K
	Value V
}

// Fold groups items by key and folds each group into an accumulator kept in
// store. Accumulators survive across ticks. The first run in a tick emits
// every group in store order; later runs in the same tick emit the groups
// they changed.
//
// Example:
//
//	counts := kops.Fold(kstate.NewMemory[string, int](),
//		func(w string) string { return w },
//		func() int { return 0 },
//		func(n int, _ string) int { return n + 1 })
func Fold[K comparable, V, A any](store kstate.Store[K, A], key func(V) K, init func() A, fn func(A, V) A) *Operator {
	return New(FoldSpec, &kruntime.Body{
		In:  elided[V](),
		Out: elided[KV[K, A]](),
		Run: func(c *kruntime.Context, io *kruntime.IO) error {
			ctx := c.Context()
			first := c.IsFirstRunThisTick()

			var touched []K
			seen := map[K]bool{}
			for _, item := range kruntime.Input[V](io, kgraph.ElidedPort).TakeAll() {
				k := key(item)
				acc, ok, err := store.Get(ctx, k)
				if err != nil {
					return fmt.Errorf("get %v: %w", k, err)
				}
				if !ok {
					acc = init()
				}
				if err := store.Set(ctx, k, fn(acc, item)); err != nil {
					return fmt.Errorf("set %v: %w", k, err)
				}
				if !seen[k] {
					seen[k] = true
					touched = append(touched, k)
				}
			}

			out := kruntime.Output[KV[K, A]](io, kgraph.ElidedPort)
			if first {
				for k, v := range store.All(ctx) {
					out.Give(KV[K, A]{Key: k, Value: v})
				}
			} else {
				for _, k := range touched {
					v, _, err := store.Get(ctx, k)
					if err != nil {
						return fmt.Errorf("get %v: %w", k, err)
					}
					out.Give(KV[K, A]{Key: k, Value: v})
				}
			}
			c.Reschedule()
			return nil
		},
		Close: store.Close,
	})
}

// Difference emits the items of its positive input that are not in its
// negative input. The negative input is complete before Difference runs;
// it is forgotten at the end of every tick.
func Difference[T comparable]() *Operator {
	neg := map[T]struct{}{}
	return New(DifferenceSpec, &kruntime.Body{
		In: map[kgraph.Port]khandoff.Elem{
			DifferencePos: khandoff.Of[T](),
			DifferenceNeg: khandoff.Of[T](),
		},
		Out: elided[T](),
		Init: func(c *kruntime.Context) error {
			c.OnTickStart(func(uint64) {
				clear(neg)
			})
			return nil
		},
		Run: func(c *kruntime.Context, io *kruntime.IO) error {
			for _, item := range kruntime.Input[T](io, DifferenceNeg).TakeAll() {
				neg[item] = struct{}{}
			}
			out := kruntime.Output[T](io, kgraph.ElidedPort)
			for _, item := range kruntime.Input[T](io, DifferencePos).TakeAll() {
				if _, ok := neg[item]; !ok {
					out.Give(item)
				}
			}
			return nil
		},
	})
}
