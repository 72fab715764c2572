package kruntime

import (
	"context"
	"runtime/pprof"
)

// schedule appends a subgraph to the queue of its stratum unless it is
// already queued.
func (g *Graph) schedule(sg *subgraph) {
	if sg.scheduled {
		return
	}
	sg.scheduled = true
	sg.state = StateEnqueued
	g.queues[sg.stratum] = append(g.queues[sg.stratum], sg.id)
}

// drainEvents moves external events into the stratum queues. Events for a
// stratum that already ran in the current tick wait for the next tick.
func (g *Graph) drainEvents(ctx context.Context) {
	events := g.reactor.drain()
	if len(events) == 0 {
		return
	}
	g.metrics.reactorEvents.Add(ctx, int64(len(events)), g.metrics.attrs)
	for _, id := range events {
		g.schedule(g.subgraphs[id])
	}
}

// nextStratum returns the lowest stratum at or above the current one with
// queued work.
func (g *Graph) nextStratum() (int, bool) {
	for s := g.stratum; s < len(g.queues); s++ {
		if len(g.queues[s]) > 0 {
			return s, true
		}
	}
	return 0, false
}

func (g *Graph) hasQueued() bool {
	for _, q := range g.queues {
		if len(q) > 0 {
			return true
		}
	}
	return false
}

// canStartTick reports whether a new tick would have anything to do:
// queued subgraphs, data held back at a tick boundary or external events.
// Subgraphs that only rescheduled themselves do not count.
func (g *Graph) canStartTick() bool {
	if g.hasQueued() || g.reactor.Len() > 0 {
		return true
	}
	for _, o := range g.deferred {
		if o.staged.HasData() {
			return true
		}
	}
	return false
}

func (g *Graph) startTick(ctx context.Context) error {
	g.inTick = true
	g.stratum = 0
	g.log.V(1).Info("Tick started", "tick", g.tick)

	for _, hook := range g.hooks {
		hook(g.tick)
	}

	for _, o := range g.deferred {
		if !o.staged.HasData() {
			continue
		}
		if err := o.staged.Transfer(o.read); err != nil {
			g.err = err
			return err
		}
		g.schedule(g.subgraphs[o.info.Subgraph])
	}

	next := g.nextTick
	g.nextTick = nil
	for _, id := range next {
		sg := g.subgraphs[id]
		sg.rescheduled = false
		g.schedule(sg)
	}
	return nil
}

func (g *Graph) endTick(ctx context.Context) {
	g.log.V(1).Info("Tick finished", "tick", g.tick)
	g.metrics.ticks.Add(ctx, 1, g.metrics.attrs)
	g.inTick = false
	g.tick++
	g.stratum = 0
}

// RunStratum runs every queued subgraph of the lowest stratum at or above
// the current one, including subgraphs enqueued while it runs. It starts a
// tick if none is in progress. It returns false if no stratum of the
// current tick has work left.
func (g *Graph) RunStratum(ctx context.Context) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if !g.inTick {
		if err := g.startTick(ctx); err != nil {
			return false, err
		}
	}

	g.drainEvents(ctx)
	s, ok := g.nextStratum()
	if !ok {
		return false, nil
	}
	g.stratum = s

	for {
		q := g.queues[s]
		if len(q) == 0 {
			return true, nil
		}
		id := q[0]
		g.queues[s] = q[1:]

		sg := g.subgraphs[id]
		sg.scheduled = false
		if err := g.runSubgraph(ctx, sg); err != nil {
			return true, err
		}
		g.drainEvents(ctx)
	}
}

// RunTick runs the current tick to completion, stratum by stratum, and
// advances the tick counter. It reports whether any subgraph ran.
func (g *Graph) RunTick(ctx context.Context) (bool, error) {
	work := false
	for {
		ran, err := g.RunStratum(ctx)
		if err != nil {
			return work || ran, err
		}
		if !ran {
			break
		}
		work = true
	}
	g.endTick(ctx)
	return work, nil
}

// RunAvailable runs ticks as long as there is something to do, then
// returns without blocking. A tick is only started for queued subgraphs,
// data waiting at a tick boundary or external events, so calling it again
// on an idle graph runs nothing.
//
// Data that keeps cycling through a tick boundary keeps RunAvailable busy
// forever; use RunTick to step such graphs.
func (g *Graph) RunAvailable(ctx context.Context) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	work := false
	for g.inTick || g.canStartTick() {
		ran, err := g.RunTick(ctx)
		work = work || ran
		if err != nil {
			return work, err
		}
	}
	return work, nil
}

// Run drives the graph until ctx is done, an operator fails or the reactor
// is closed. Between bursts of work it blocks on the reactor.
func (g *Graph) Run(ctx context.Context) error {
	for {
		if _, err := g.RunAvailable(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.reactor.wait():
			if g.reactor.Closed() && g.reactor.Len() == 0 {
				return ErrReactorClosed
			}
		}
	}
}

// RunAsync runs the graph on a new goroutine and reports the result of Run
// on the returned channel. The caller must not touch the graph, except for
// its Reactor, until the channel has delivered.
func (g *Graph) RunAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		labels := pprof.Labels("graph-name", g.name, "graph-id", g.id.String())
		pprof.Do(ctx, labels, func(ctx context.Context) {
			done <- g.Run(ctx)
		})
	}()
	return done
}

func (g *Graph) runSubgraph(ctx context.Context, sg *subgraph) error {
	sg.state = StateRunning
	g.log.V(2).Info("Running subgraph", "subgraph", sg.id.String(), "tick", g.tick, "stratum", g.stratum)

	c := &Context{ctx: ctx, g: g, sg: sg}
	for _, op := range sg.ops {
		c.op = op
		if err := op.body.Run(c, op.io); err != nil {
			sg.state = StateIdle
			g.metrics.recordRun(ctx, true)
			g.err = &SubgraphError{
				Cause:    err,
				Subgraph: sg.id,
				Operator: op.name,
				Node:     op.node,
				Tick:     g.tick,
				Stratum:  g.stratum,
			}
			g.log.Error(err, "Operator failed", "operator", op.name, "subgraph", sg.id.String())
			return g.err
		}
	}
	sg.lastTick = int64(g.tick)
	sg.runs++
	g.metrics.recordRun(ctx, false)

	sg.state = StateIdle
	if sg.scheduled || sg.rescheduled {
		sg.state = StateEnqueued
	}

	for _, h := range sg.outputs {
		for _, o := range h.outputs {
			if o.deferred {
				continue
			}
			if o.read.HasData() {
				g.schedule(g.subgraphs[o.info.Subgraph])
			}
		}
	}
	return nil
}
