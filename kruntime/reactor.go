package kruntime

import (
	"fmt"
	"sync"
)

// Reactor is the only part of a Graph that may be used from other
// goroutines. Collaborators call Notify after feeding a subgraph's inputs
// from outside the scheduler, which wakes up Run and starts a new tick.
//
// The queue is unbounded, so Notify never blocks.
type Reactor struct {
	mu     sync.Mutex
	events []SubgraphID
	closed bool

	// signal has a buffer of one; pending wake-ups coalesce.
	signal chan struct{}

	numSubgraphs int
}

func newReactor(numSubgraphs int) *Reactor {
	return &Reactor{
		signal:       make(chan struct{}, 1),
		numSubgraphs: numSubgraphs,
	}
}

// Notify schedules a subgraph. It is safe for concurrent use.
func (r *Reactor) Notify(id SubgraphID) error {
	if id < 0 || int(id) >= r.numSubgraphs {
		return fmt.Errorf("%w: %s", ErrUnknownSubgraph, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrReactorClosed
	}
	r.events = append(r.events, id)

	select {
	case r.signal <- struct{}{}:
	default:
	}
	return nil
}

// Close stops accepting events. Run returns ErrReactorClosed once the
// events queued before Close have been processed. Closing twice is a no-op.
func (r *Reactor) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	close(r.signal)
}

// Closed reports whether Close was called.
func (r *Reactor) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Len returns the number of events not yet picked up by the scheduler.
func (r *Reactor) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// drain removes and returns every pending event in arrival order.
func (r *Reactor) drain() []SubgraphID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) == 0 {
		return nil
	}
	out := r.events
	r.events = nil
	return out
}

// wait returns a channel that receives when events may be available. It is
// closed when the reactor is closed.
func (r *Reactor) wait() <-chan struct{} {
	return r.signal
}
