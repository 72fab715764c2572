package kruntime

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/birdayz/kflow/kgraph"
)

// Context is handed to operator bodies. It is only valid for the duration
// of the call it was passed to.
type Context struct {
	ctx context.Context
	g   *Graph
	sg  *subgraph
	op  *operator
}

// Context returns the context the scheduler was called with. During Init it
// is context.Background.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// CurrentTick returns the tick in progress.
func (c *Context) CurrentTick() uint64 {
	return c.g.tick
}

// CurrentStratum returns the stratum in progress.
func (c *Context) CurrentStratum() int {
	return c.g.stratum
}

// CurrentSubgraph returns the id of the subgraph the operator belongs to.
func (c *Context) CurrentSubgraph() SubgraphID {
	return c.sg.id
}

// Node returns the graph node of the operator.
func (c *Context) Node() kgraph.NodeID {
	return c.op.node
}

// Operator returns the name of the operator.
func (c *Context) Operator() string {
	return c.op.name
}

// IsFirstRunThisTick reports whether the subgraph has not run before in the
// current tick.
func (c *Context) IsFirstRunThisTick() bool {
	return c.sg.lastTick != int64(c.g.tick)
}

// Reschedule runs the subgraph again in the next tick. It does not start
// that tick by itself: a graph whose only work is rescheduled subgraphs is
// idle.
func (c *Context) Reschedule() {
	if c.sg.rescheduled {
		return
	}
	c.sg.rescheduled = true
	c.g.nextTick = append(c.g.nextTick, c.sg.id)
}

// OnTickStart registers a function called at the start of every tick,
// before any subgraph runs.
func (c *Context) OnTickStart(fn func(tick uint64)) {
	c.g.hooks = append(c.g.hooks, fn)
}

// Reactor returns the reactor of the graph. Operators that receive data
// from other goroutines keep it to wake their subgraph.
func (c *Context) Reactor() *Reactor {
	return c.g.reactor
}

// Logger returns the graph logger, annotated with the operator.
func (c *Context) Logger() logr.Logger {
	return c.g.log.WithValues("operator", c.op.name, "subgraph", c.sg.id.String())
}
