package kops

import (
	"errors"
	"sync"

	"github.com/birdayz/kflow/kgraph"
	"github.com/birdayz/kflow/kruntime"
)

var (
	ErrInboxClosed = errors.New("inbox closed")
)

// SourceIter emits items once, in the first tick the operator runs.
func SourceIter[T any](items []T) *Operator {
	emitted := false
	return New(SourceSpec, &kruntime.Body{
		Out: elided[T](),
		Run: func(c *kruntime.Context, io *kruntime.IO) error {
			if emitted {
				return nil
			}
			emitted = true
			out := kruntime.Output[T](io, kgraph.ElidedPort)
			for _, item := range items {
				out.Give(item)
			}
			return nil
		},
	})
}

// Inbox feeds a SourceStream from other goroutines. Every Send wakes the
// source's subgraph through the reactor of the graph it was built into.
type Inbox[T any] struct {
	mu      sync.Mutex
	items   []T
	closed  bool
	reactor *kruntime.Reactor
	sg      kruntime.SubgraphID
}

// Send queues items for the next run of the source. It is safe for
// concurrent use. Items sent before the graph is built are delivered in the
// first tick.
func (i *Inbox[T]) Send(items ...T) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrInboxClosed
	}
	i.items = append(i.items, items...)
	reactor, sg := i.reactor, i.sg
	i.mu.Unlock()

	if reactor == nil {
		return nil
	}
	return reactor.Notify(sg)
}

// Close rejects further sends. Items already queued are still delivered.
func (i *Inbox[T]) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
}

// Len returns the number of queued items.
func (i *Inbox[T]) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.items)
}

func (i *Inbox[T]) bind(r *kruntime.Reactor, sg kruntime.SubgraphID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.reactor = r
	i.sg = sg
}

func (i *Inbox[T]) take() []T {
	i.mu.Lock()
	defer i.mu.Unlock()
	items := i.items
	i.items = nil
	return items
}

// SourceStream emits whatever was sent to the returned inbox since its
// last run.
//
// Example:
//
//	src, inbox := kops.SourceStream[string]()
//	go func() { _ = inbox.Send("hello") }()
func SourceStream[T any]() (*Operator, *Inbox[T]) {
	inbox := &Inbox[T]{}
	return New(SourceSpec, &kruntime.Body{
		Out: elided[T](),
		Init: func(c *kruntime.Context) error {
			inbox.bind(c.Reactor(), c.CurrentSubgraph())
			return nil
		},
		Run: func(c *kruntime.Context, io *kruntime.IO) error {
			kruntime.Output[T](io, kgraph.ElidedPort).GiveAll(inbox.take())
			return nil
		},
	}), inbox
}
