package kruntime

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/birdayz/kflow/kcompile"
	"github.com/birdayz/kflow/kgraph"
	"github.com/birdayz/kflow/khandoff"
)

// SubgraphID identifies a subgraph of the compiled program.
type SubgraphID = kcompile.SubgraphID

// SubgraphState is the scheduling state of a subgraph.
type SubgraphState int

const (
	StateIdle SubgraphState = iota
	StateEnqueued
	StateRunning
)

func (s SubgraphState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateEnqueued:
		return "ENQUEUED"
	case StateRunning:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

type operator struct {
	node kgraph.NodeID
	name string
	body *Body
	io   *IO
}

type subgraph struct {
	id      SubgraphID
	stratum int
	ops     []*operator
	outputs []*handoff

	state SubgraphState
	// scheduled is set while the subgraph sits in a stratum queue.
	scheduled bool
	// rescheduled is set while the subgraph waits for the next tick.
	rescheduled bool

	lastTick int64
	runs     uint64
}

// handoffOutput is the buffer one consumer of a handoff reads from. Across
// a tick boundary the producer fills staged and the scheduler moves its
// contents into read when the next tick starts.
type handoffOutput struct {
	info     kcompile.HandoffOutput
	staged   khandoff.Buffer
	read     khandoff.Buffer
	deferred bool
}

type handoff struct {
	info    *kcompile.Handoff
	writer  khandoff.Handoff
	outputs []*handoffOutput
}

// Graph is a compiled program instantiated with operator bodies and
// buffers, ready to run.
//
// IMPORTANT: Graph is NOT safe for concurrent use. Only the Reactor may be
// shared with other goroutines.
type Graph struct {
	id   uuid.UUID
	name string
	log  logr.Logger

	prog      *kcompile.Program
	subgraphs []*subgraph
	handoffs  []*handoff
	deferred  []*handoffOutput

	// queues holds one FIFO of subgraphs per stratum.
	queues   [][]SubgraphID
	nextTick []SubgraphID

	tick    uint64
	stratum int
	inTick  bool

	reactor *Reactor
	hooks   []func(tick uint64)

	metrics *metrics
	err     error
}

// Build instantiates a compiled program. Every operator of the program
// needs a body; handoffs are created from the element types the bodies
// declare. Handoffs with more than one consumer become tees.
//
// All subgraphs start out enqueued, in id order.
func Build(prog *kcompile.Program, bodies map[kgraph.NodeID]*Body, opts ...Option) (*Graph, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if prog == nil {
		return nil, ErrNilProgram
	}

	id := uuid.New()
	m, err := newMetrics(cfg.meterProvider, cfg.name, id.String())
	if err != nil {
		return nil, err
	}

	g := &Graph{
		id:      id,
		name:    cfg.name,
		log:     cfg.log.WithValues("graph", cfg.name, "graph_id", id.String()),
		prog:    prog,
		queues:  make([][]SubgraphID, prog.NumStrata()),
		reactor: newReactor(len(prog.Subgraphs())),
		metrics: m,
	}

	ops, err := g.bindBodies(bodies)
	if err != nil {
		return nil, err
	}
	if err := g.checkPorts(ops); err != nil {
		return nil, err
	}
	g.wire(ops)

	for _, sg := range g.subgraphs {
		for _, op := range sg.ops {
			if op.body.Init == nil {
				continue
			}
			c := &Context{g: g, sg: sg, op: op}
			if err := op.body.Init(c); err != nil {
				return nil, fmt.Errorf("init operator %q: %w", op.name, err)
			}
		}
	}

	for _, sg := range g.subgraphs {
		g.schedule(sg)
	}

	g.log.V(1).Info("Built graph", "subgraphs", len(g.subgraphs), "handoffs", len(g.handoffs), "strata", prog.NumStrata())
	return g, nil
}

func (g *Graph) bindBodies(bodies map[kgraph.NodeID]*Body) (map[kgraph.NodeID]*operator, error) {
	ops := make(map[kgraph.NodeID]*operator)
	for _, info := range g.prog.Subgraphs() {
		sg := &subgraph{id: info.ID, stratum: info.Stratum, lastTick: -1}
		for _, n := range info.Nodes {
			body := bodies[n]
			if body == nil || body.Run == nil {
				return nil, fmt.Errorf("%w: operator %q (%s)", ErrMissingBody, g.prog.NodeName(n), n)
			}
			op := &operator{node: n, name: g.prog.NodeName(n), body: body, io: newIO()}
			ops[n] = op
			sg.ops = append(sg.ops, op)
		}
		g.subgraphs = append(g.subgraphs, sg)
	}
	return ops, nil
}

// checkPorts verifies that every edge ends on declared ports of matching
// element types.
func (g *Graph) checkPorts(ops map[kgraph.NodeID]*operator) error {
	pg := g.prog.Graph()
	for _, e := range pg.EdgeIDs() {
		edge := pg.Edge(e)
		if src, ok := ops[edge.Src]; ok {
			if _, ok := src.body.Out[edge.SrcPort]; !ok {
				return fmt.Errorf("%w: output %s of operator %q", ErrUndeclaredPort, edge.SrcPort, src.name)
			}
		}
		if dst, ok := ops[edge.Dst]; ok {
			if _, ok := dst.body.In[edge.DstPort]; !ok {
				return fmt.Errorf("%w: input %s of operator %q", ErrUndeclaredPort, edge.DstPort, dst.name)
			}
		}
	}

	for _, e := range pg.EdgeIDs() {
		edge := pg.Edge(e)
		dst, ok := ops[edge.Dst]
		if !ok {
			continue
		}
		srcNode, srcPort := edge.Src, edge.SrcPort
		if h, ok := g.prog.Handoff(edge.Src); ok {
			srcNode, srcPort = h.Src, h.SrcPort
		}
		src := ops[srcNode]
		want := src.body.Out[srcPort].Type()
		got := dst.body.In[edge.DstPort].Type()
		if want != got {
			return fmt.Errorf("%w: %q output %s is %s, %q input %s is %s",
				ErrTypeMismatch, src.name, srcPort, want, dst.name, edge.DstPort, got)
		}
	}
	return nil
}

// wire creates every buffer and hands it to the ports of both endpoints.
// Ports are attached in edge order, so a variadic port drains its edges in
// the order they were inserted into the graph.
func (g *Graph) wire(ops map[kgraph.NodeID]*operator) {
	pg := g.prog.Graph()
	buffers := make(map[kgraph.EdgeID]khandoff.Handoff)

	for _, info := range g.prog.Handoffs() {
		src := ops[info.Src]
		elem := src.body.Out[info.SrcPort]
		h := &handoff{info: info}

		if len(info.Outputs) == 1 {
			vec := elem.NewVec()
			h.writer = vec
			h.outputs = append(h.outputs, &handoffOutput{info: info.Outputs[0], staged: vec})
		} else {
			fan := elem.NewTee()
			h.writer = fan
			for _, o := range info.Outputs {
				h.outputs = append(h.outputs, &handoffOutput{info: o, staged: fan.NewReader()})
			}
		}
		for _, o := range h.outputs {
			o.read = o.staged
			if o.info.TickBoundary {
				o.deferred = true
				o.read = elem.NewVec()
				g.deferred = append(g.deferred, o)
			}
			buffers[o.info.Edge] = o.read
		}
		buffers[pg.PredecessorEdges(info.Node)[0]] = h.writer

		g.handoffs = append(g.handoffs, h)
		producer := g.subgraphs[info.SrcSubgraph]
		producer.outputs = append(producer.outputs, h)
	}

	for _, e := range pg.EdgeIDs() {
		if _, ok := buffers[e]; ok {
			continue
		}
		edge := pg.Edge(e)
		buffers[e] = ops[edge.Src].body.Out[edge.SrcPort].NewVec()
	}

	for _, sg := range g.subgraphs {
		for _, op := range sg.ops {
			for _, e := range pg.PredecessorEdges(op.node) {
				port := pg.Edge(e).DstPort
				op.io.in[port] = append(op.io.in[port], buffers[e])
			}
			for _, e := range pg.SuccessorEdges(op.node) {
				port := pg.Edge(e).SrcPort
				op.io.out[port] = append(op.io.out[port], buffers[e])
			}
		}
	}
}

// ID returns the instance id of the graph.
func (g *Graph) ID() uuid.UUID {
	return g.id
}

// Program returns the compiled program the graph was built from.
func (g *Graph) Program() *kcompile.Program {
	return g.prog
}

// Reactor returns the handle external collaborators use to wake the graph.
func (g *Graph) Reactor() *Reactor {
	return g.reactor
}

// CurrentTick returns the tick in progress, or the next one between ticks.
func (g *Graph) CurrentTick() uint64 {
	return g.tick
}

// CurrentStratum returns the stratum in progress.
func (g *Graph) CurrentStratum() int {
	return g.stratum
}

// SubgraphState returns the scheduling state of a subgraph.
func (g *Graph) SubgraphState(id SubgraphID) SubgraphState {
	return g.subgraphs[id].state
}

// SubgraphRuns returns how often a subgraph has run.
func (g *Graph) SubgraphRuns(id SubgraphID) uint64 {
	return g.subgraphs[id].runs
}

// Err returns the error that stopped the graph, if any.
func (g *Graph) Err() error {
	return g.err
}

// Close closes the reactor and every operator body.
func (g *Graph) Close() error {
	g.reactor.Close()

	var err error
	for _, sg := range g.subgraphs {
		for _, op := range sg.ops {
			if op.body.Close == nil {
				continue
			}
			if cerr := op.body.Close(); cerr != nil {
				err = multierr.Append(err, fmt.Errorf("close operator %q: %w", op.name, cerr))
			}
		}
	}
	return err
}
