package kruntime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/birdayz/kflow/kcompile"
	"github.com/birdayz/kflow/kgraph"
	"github.com/birdayz/kflow/khandoff"
)

var (
	sourceSpec = &kgraph.OperatorSpec{Name: "source", Inputs: kgraph.Exactly(0), Outputs: kgraph.Exactly(1)}
	mapSpec    = &kgraph.OperatorSpec{Name: "map", Inputs: kgraph.Exactly(1), Outputs: kgraph.Exactly(1)}
	sinkSpec   = &kgraph.OperatorSpec{Name: "for_each", Inputs: kgraph.Exactly(1), Outputs: kgraph.Exactly(0)}
	teeSpec    = &kgraph.OperatorSpec{Name: "tee", Inputs: kgraph.Exactly(1), Outputs: kgraph.AtLeast(1), VariadicOutput: true}
	diffSpec   = &kgraph.OperatorSpec{
		Name:    "difference",
		Inputs:  kgraph.Exactly(2),
		Outputs: kgraph.Exactly(1),
		Delays:  map[kgraph.Port]kgraph.DelayType{kgraph.IntPort(1): kgraph.DelayStratum},
	}
	selfSpec = &kgraph.OperatorSpec{Name: "self", Inputs: kgraph.Exactly(0), Outputs: kgraph.Exactly(0)}
)

var (
	ints    = map[kgraph.Port]khandoff.Elem{kgraph.ElidedPort: khandoff.Of[int]()}
	strs    = map[kgraph.Port]khandoff.Elem{kgraph.ElidedPort: khandoff.Of[string]()}
	twoInts = map[kgraph.Port]khandoff.Elem{
		kgraph.IntPort(0): khandoff.Of[int](),
		kgraph.IntPort(1): khandoff.Of[int](),
	}
)

func connect(g *kgraph.Graph, src, dst kgraph.NodeID) {
	g.MustInsertEdge(src, kgraph.ElidedPort, dst, kgraph.ElidedPort)
}

func compile(t *testing.T, g *kgraph.Graph) *kcompile.Program {
	t.Helper()
	prog, err := kcompile.Compile(g)
	assert.NoError(t, err)
	return prog
}

// emitOnce produces items on its first run only.
func emitOnce(items ...int) *Body {
	done := false
	return &Body{
		Out: ints,
		Run: func(c *Context, io *IO) error {
			if done {
				return nil
			}
			done = true
			Output[int](io, kgraph.ElidedPort).GiveAll(append([]int(nil), items...))
			return nil
		},
	}
}

func mapInts(fn func(int) int) *Body {
	return &Body{
		In:  ints,
		Out: ints,
		Run: func(c *Context, io *IO) error {
			out := Output[int](io, kgraph.ElidedPort)
			for _, x := range Input[int](io, kgraph.ElidedPort).TakeAll() {
				out.Give(fn(x))
			}
			return nil
		},
	}
}

func collect(dst *[]int) *Body {
	return &Body{
		In: ints,
		Run: func(c *Context, io *IO) error {
			*dst = append(*dst, Input[int](io, kgraph.ElidedPort).TakeAll()...)
			return nil
		},
	}
}

func totalRuns(g *Graph) uint64 {
	var n uint64
	for _, sg := range g.Program().Subgraphs() {
		n += g.SubgraphRuns(sg.ID)
	}
	return n
}

func TestLinearChain(t *testing.T) {
	g := kgraph.NewGraph()
	src := g.AddOperator("source", sourceSpec, nil)
	double := g.AddOperator("double", mapSpec, nil)
	sink := g.AddOperator("sink", sinkSpec, nil)
	connect(g, src, double)
	connect(g, double, sink)

	var got []int
	graph, err := Build(compile(t, g), map[kgraph.NodeID]*Body{
		src:    emitOnce(1, 2, 3),
		double: mapInts(func(x int) int { return x * 2 }),
		sink:   collect(&got),
	})
	assert.NoError(t, err)
	assert.Equal(t, StateEnqueued, graph.SubgraphState(0))

	ctx := context.Background()
	ran, err := graph.RunAvailable(ctx)
	assert.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []int{2, 4, 6}, got)
	assert.Equal(t, uint64(1), graph.CurrentTick())
	assert.Equal(t, uint64(1), graph.SubgraphRuns(0))
	assert.Equal(t, StateIdle, graph.SubgraphState(0))

	// Nothing left to do.
	ran, err = graph.RunAvailable(ctx)
	assert.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, uint64(1), graph.CurrentTick())
	assert.Equal(t, uint64(1), totalRuns(graph))
}

func TestFeedbackCrossesTicks(t *testing.T) {
	g := kgraph.NewGraph()
	src := g.AddOperator("source", sourceSpec, nil)
	a := g.AddOperator("a", diffSpec, nil)
	b := g.AddOperator("b", mapSpec, nil)
	g.MustInsertEdge(src, kgraph.ElidedPort, a, kgraph.IntPort(0))
	connect(g, a, b)
	g.MustInsertEdge(b, kgraph.ElidedPort, a, kgraph.IntPort(1))

	seen := map[uint64][]int{}
	merge := &Body{
		In:  twoInts,
		Out: ints,
		Run: func(c *Context, io *IO) error {
			items := Input[int](io, kgraph.IntPort(0)).TakeAll()
			items = append(items, Input[int](io, kgraph.IntPort(1)).TakeAll()...)
			seen[c.CurrentTick()] = append(seen[c.CurrentTick()], items...)
			Output[int](io, kgraph.ElidedPort).GiveAll(items)
			return nil
		},
	}
	step := &Body{
		In:  ints,
		Out: ints,
		Run: func(c *Context, io *IO) error {
			out := Output[int](io, kgraph.ElidedPort)
			for _, x := range Input[int](io, kgraph.ElidedPort).TakeAll() {
				if x < 3 {
					out.Give(x + 1)
				}
			}
			return nil
		},
	}

	graph, err := Build(compile(t, g), map[kgraph.NodeID]*Body{
		src: emitOnce(1),
		a:   merge,
		b:   step,
	})
	assert.NoError(t, err)

	ctx := context.Background()
	ran, err := graph.RunTick(ctx)
	assert.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, map[uint64][]int{0: {1}}, seen)

	ran, err = graph.RunAvailable(ctx)
	assert.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, map[uint64][]int{0: {1}, 1: {2}, 2: {3}}, seen)
	assert.Equal(t, uint64(3), graph.CurrentTick())

	ran, err = graph.RunAvailable(ctx)
	assert.NoError(t, err)
	assert.False(t, ran)
}

func TestStrataRunInOrder(t *testing.T) {
	g := kgraph.NewGraph()
	src := g.AddOperator("source", sourceSpec, nil)
	tee := g.AddOperator("tee", teeSpec, nil)
	diff := g.AddOperator("diff", diffSpec, nil)
	sink := g.AddOperator("sink", sinkSpec, nil)
	connect(g, src, tee)
	g.MustInsertEdge(tee, kgraph.ElidedPort, diff, kgraph.IntPort(0))
	g.MustInsertEdge(tee, kgraph.ElidedPort, diff, kgraph.IntPort(1))
	connect(g, diff, sink)

	var (
		got      []int
		stratum  int
		pos, neg []int
	)
	graph, err := Build(compile(t, g), map[kgraph.NodeID]*Body{
		src: emitOnce(1, 2, 3),
		tee: mapInts(func(x int) int { return x }),
		diff: {
			In:  twoInts,
			Out: ints,
			Run: func(c *Context, io *IO) error {
				stratum = c.CurrentStratum()
				pos = append(pos, Input[int](io, kgraph.IntPort(0)).TakeAll()...)
				neg = append(neg, Input[int](io, kgraph.IntPort(1)).TakeAll()...)
				return nil
			},
		},
		sink: collect(&got),
	})
	assert.NoError(t, err)

	_, err = graph.RunTick(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, stratum)
	assert.Equal(t, []int{1, 2, 3}, pos)
	assert.Equal(t, []int{1, 2, 3}, neg)
	assert.Zero(t, got)
}

func TestHandoffTee(t *testing.T) {
	g := kgraph.NewGraph()
	src := g.AddOperator("source", sourceSpec, nil)
	h := g.AddHandoff("fanout", nil)
	left := g.AddOperator("left", sinkSpec, nil)
	right := g.AddOperator("right", sinkSpec, nil)
	connect(g, src, h)
	connect(g, h, left)
	connect(g, h, right)

	var l, r []int
	graph, err := Build(compile(t, g), map[kgraph.NodeID]*Body{
		src:   emitOnce(1, 2, 3),
		left:  collect(&l),
		right: collect(&r),
	})
	assert.NoError(t, err)

	_, err = graph.RunAvailable(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, l)
	assert.Equal(t, []int{1, 2, 3}, r)
}

func TestReschedule(t *testing.T) {
	g := kgraph.NewGraph()
	n := g.AddOperator("self", selfSpec, nil)

	var ticks []uint64
	var first []bool
	graph, err := Build(compile(t, g), map[kgraph.NodeID]*Body{
		n: {
			Run: func(c *Context, io *IO) error {
				ticks = append(ticks, c.CurrentTick())
				first = append(first, c.IsFirstRunThisTick())
				c.Reschedule()
				c.Reschedule()
				return nil
			},
		},
	})
	assert.NoError(t, err)

	ctx := context.Background()
	_, err = graph.RunAvailable(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []uint64{0}, ticks)

	// A rescheduled subgraph alone does not start a tick.
	ran, err := graph.RunAvailable(ctx)
	assert.NoError(t, err)
	assert.False(t, ran)

	ran, err = graph.RunTick(ctx)
	assert.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []uint64{0, 1}, ticks)
	assert.Equal(t, []bool{true, true}, first)
}

func TestTickHooks(t *testing.T) {
	g := kgraph.NewGraph()
	n := g.AddOperator("self", selfSpec, nil)

	var hooks []uint64
	graph, err := Build(compile(t, g), map[kgraph.NodeID]*Body{
		n: {
			Init: func(c *Context) error {
				c.OnTickStart(func(tick uint64) { hooks = append(hooks, tick) })
				return nil
			},
			Run: func(c *Context, io *IO) error { return nil },
		},
	})
	assert.NoError(t, err)

	ctx := context.Background()
	for range 3 {
		_, err := graph.RunTick(ctx)
		assert.NoError(t, err)
	}
	assert.Equal(t, []uint64{0, 1, 2}, hooks)
}

func TestSubgraphError(t *testing.T) {
	g := kgraph.NewGraph()
	src := g.AddOperator("source", sourceSpec, nil)
	sink := g.AddOperator("boom", sinkSpec, nil)
	connect(g, src, sink)

	cause := errors.New("broken")
	graph, err := Build(compile(t, g), map[kgraph.NodeID]*Body{
		src: emitOnce(1),
		sink: {
			In:  ints,
			Run: func(c *Context, io *IO) error { return cause },
		},
	})
	assert.NoError(t, err)

	ctx := context.Background()
	_, err = graph.RunAvailable(ctx)
	assert.IsError(t, err, cause)

	var sgErr *SubgraphError
	assert.True(t, errors.As(err, &sgErr))
	assert.Equal(t, "boom", sgErr.Operator)
	assert.Equal(t, sink, sgErr.Node)
	assert.Equal(t, uint64(0), sgErr.Tick)
	assert.Contains(t, err.Error(), `operator "boom" in subgraph sg0 failed`)

	// The graph stays poisoned.
	_, err = graph.RunTick(ctx)
	assert.IsError(t, err, cause)
	assert.IsError(t, graph.Err(), cause)
}

func TestBuildErrors(t *testing.T) {
	linear := func() (*kgraph.Graph, kgraph.NodeID, kgraph.NodeID) {
		g := kgraph.NewGraph()
		src := g.AddOperator("source", sourceSpec, nil)
		sink := g.AddOperator("sink", sinkSpec, nil)
		connect(g, src, sink)
		return g, src, sink
	}
	var sink []int

	tests := []struct {
		name   string
		bodies func(src, dst kgraph.NodeID) map[kgraph.NodeID]*Body
		err    error
	}{
		{
			name: "missing body",
			bodies: func(src, dst kgraph.NodeID) map[kgraph.NodeID]*Body {
				return map[kgraph.NodeID]*Body{src: emitOnce(1)}
			},
			err: ErrMissingBody,
		},
		{
			name: "undeclared port",
			bodies: func(src, dst kgraph.NodeID) map[kgraph.NodeID]*Body {
				return map[kgraph.NodeID]*Body{
					src: emitOnce(1),
					dst: {Run: func(c *Context, io *IO) error { return nil }},
				}
			},
			err: ErrUndeclaredPort,
		},
		{
			name: "type mismatch",
			bodies: func(src, dst kgraph.NodeID) map[kgraph.NodeID]*Body {
				return map[kgraph.NodeID]*Body{
					src: emitOnce(1),
					dst: {In: strs, Run: func(c *Context, io *IO) error { return nil }},
				}
			},
			err: ErrTypeMismatch,
		},
		{
			name: "init failure",
			bodies: func(src, dst kgraph.NodeID) map[kgraph.NodeID]*Body {
				b := collect(&sink)
				b.Init = func(c *Context) error { return errInit }
				return map[kgraph.NodeID]*Body{src: emitOnce(1), dst: b}
			},
			err: errInit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, src, dst := linear()
			_, err := Build(compile(t, g), tt.bodies(src, dst))
			assert.IsError(t, err, tt.err)
		})
	}

	_, err := Build(nil, nil)
	assert.IsError(t, err, ErrNilProgram)
}

var errInit = errors.New("init failed")

// inbox is fed from outside the scheduler.
type inbox struct {
	mu    sync.Mutex
	items []int
}

func (i *inbox) push(x int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.items = append(i.items, x)
}

func (i *inbox) body() *Body {
	return &Body{
		Out: ints,
		Run: func(c *Context, io *IO) error {
			i.mu.Lock()
			items := i.items
			i.items = nil
			i.mu.Unlock()
			Output[int](io, kgraph.ElidedPort).GiveAll(items)
			return nil
		},
	}
}

func reactorGraph(t *testing.T, in *inbox, out chan<- int) *Graph {
	t.Helper()
	g := kgraph.NewGraph()
	src := g.AddOperator("inbox", sourceSpec, nil)
	sink := g.AddOperator("sink", sinkSpec, nil)
	connect(g, src, sink)

	graph, err := Build(compile(t, g), map[kgraph.NodeID]*Body{
		src: in.body(),
		sink: {
			In: ints,
			Run: func(c *Context, io *IO) error {
				for _, x := range Input[int](io, kgraph.ElidedPort).TakeAll() {
					out <- x
				}
				return nil
			},
		},
	})
	assert.NoError(t, err)
	return graph
}

func TestReactor(t *testing.T) {
	in := &inbox{}
	out := make(chan int, 16)
	graph := reactorGraph(t, in, out)
	ctx := context.Background()

	_, err := graph.RunAvailable(ctx)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), graph.CurrentTick())

	in.push(7)
	assert.NoError(t, graph.Reactor().Notify(0))
	assert.Equal(t, 1, graph.Reactor().Len())

	ran, err := graph.RunAvailable(ctx)
	assert.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 7, <-out)
	assert.Equal(t, uint64(2), graph.CurrentTick())

	assert.IsError(t, graph.Reactor().Notify(5), ErrUnknownSubgraph)

	assert.NoError(t, graph.Close())
	assert.True(t, graph.Reactor().Closed())
	assert.IsError(t, graph.Reactor().Notify(0), ErrReactorClosed)
}

func TestRunAsync(t *testing.T) {
	in := &inbox{}
	out := make(chan int, 16)
	graph := reactorGraph(t, in, out)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := graph.RunAsync(ctx)

	for i := range 3 {
		in.push(i)
		assert.NoError(t, graph.Reactor().Notify(0))
		select {
		case x := <-out:
			assert.Equal(t, i, x)
		case <-ctx.Done():
			t.Fatal("timed out waiting for item")
		}
	}

	graph.Reactor().Close()
	assert.IsError(t, <-done, ErrReactorClosed)
}

func TestRunCancel(t *testing.T) {
	graph := reactorGraph(t, &inbox{}, make(chan int, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := graph.RunAsync(ctx)
	cancel()
	assert.IsError(t, <-done, context.Canceled)
}

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	g := kgraph.NewGraph()
	src := g.AddOperator("source", sourceSpec, nil)
	sink := g.AddOperator("sink", sinkSpec, nil)
	connect(g, src, sink)

	var got []int
	graph, err := Build(compile(t, g), map[kgraph.NodeID]*Body{
		src:  emitOnce(1),
		sink: collect(&got),
	}, WithMeterProvider(mp), WithName("metrics"))
	assert.NoError(t, err)

	ctx := context.Background()
	_, err = graph.RunAvailable(ctx)
	assert.NoError(t, err)

	var rm metricdata.ResourceMetrics
	assert.NoError(t, reader.Collect(ctx, &rm))

	counters := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				counters[m.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), counters["kflow.subgraph.runs"])
	assert.Equal(t, int64(1), counters["kflow.ticks"])
}
