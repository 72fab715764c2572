package kcompile

import (
	"errors"

	"github.com/go-logr/logr"

	"github.com/birdayz/kflow/kgraph"
)

var (
	ErrNilGraph = errors.New("graph is nil")
)

type config struct {
	maxNodes int
	log      logr.Logger
}

// Option configures Compile.
type Option func(*config)

// WithMaxNodes overrides DefaultMaxNodes. Zero or less disables the limit.
var WithMaxNodes = func(n int) Option {
	return func(c *config) {
		c.maxNodes = n
	}
}

// WithLogger sets the logger compilation steps are reported to.
var WithLogger = func(log logr.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// Compile partitions g into subgraphs, materializes handoffs on every edge
// crossing a subgraph boundary and assigns strata.
//
// g is not modified; the partitioned graph is available through
// Program.Graph. If any Error-level diagnostic is produced, Compile returns
// a *kdiag.CompileError carrying all diagnostics and no Program.
//
// Example:
//
//	g := kgraph.NewGraph()
//	src := g.AddOperator("source", &kgraph.OperatorSpec{Outputs: kgraph.Exactly(1)}, nil)
//	sink := g.AddOperator("sink", &kgraph.OperatorSpec{Inputs: kgraph.Exactly(1)}, nil)
//	g.MustInsertEdge(src, kgraph.ElidedPort, sink, kgraph.ElidedPort)
//	prog, err := kcompile.Compile(g)
func Compile(g *kgraph.Graph, opts ...Option) (*Program, error) {
	cfg := config{
		maxNodes: DefaultMaxNodes,
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if g == nil {
		return nil, ErrNilGraph
	}

	diags := validate(g, cfg.maxNodes)
	if diags.HasErrors() {
		return nil, diags.Err()
	}

	pg := g.Clone()
	part := newPartitioner(pg)
	part.coalesce()
	inserted := part.insertHandoffs()

	prog := &Program{
		graph:        pg,
		colors:       part.colors,
		subgraphs:    part.subgraphs(),
		nodeSubgraph: make(map[kgraph.NodeID]SubgraphID),
		handoffIdx:   make(map[kgraph.NodeID]int),
	}
	for _, sg := range prog.subgraphs {
		sg.Name = nodeName(pg, sg.Nodes[0])
		for _, n := range sg.Nodes {
			prog.nodeSubgraph[n] = sg.ID
		}
	}
	prog.materializeHandoffs(inserted)
	cfg.log.V(1).Info("Partitioned graph", "nodes", g.NumNodes(), "subgraphs", len(prog.subgraphs), "inserted_handoffs", len(inserted))

	diags = append(diags, rejectUndelayedCycles(pg)...)
	if diags.HasErrors() {
		return nil, diags.Err()
	}
	diags = append(diags, stratify(prog)...)
	if diags.HasErrors() {
		return nil, diags.Err()
	}
	prog.diagnostics = diags

	cfg.log.V(1).Info("Stratified graph", "strata", prog.numStrata, "diagnostics", len(diags))
	return prog, nil
}

func (p *Program) materializeHandoffs(inserted []kgraph.NodeID) {
	isInserted := make(map[kgraph.NodeID]bool, len(inserted))
	for _, n := range inserted {
		isInserted[n] = true
	}

	for _, n := range p.graph.NodeIDs() {
		if !p.graph.Node(n).IsHandoff() {
			continue
		}
		in := p.graph.Edge(p.graph.PredecessorEdges(n)[0])
		h := &Handoff{
			Node:        n,
			Src:         in.Src,
			SrcPort:     in.SrcPort,
			SrcSubgraph: p.nodeSubgraph[in.Src],
			Inserted:    isInserted[n],
		}
		for _, e := range p.graph.SuccessorEdges(n) {
			out := p.graph.Edge(e)
			h.Outputs = append(h.Outputs, HandoffOutput{
				Edge:     e,
				Dst:      out.Dst,
				DstPort:  out.DstPort,
				Subgraph: p.nodeSubgraph[out.Dst],
				Delay:    p.graph.EdgeDelay(e),
			})
		}
		p.handoffIdx[n] = len(p.handoffs)
		p.handoffs = append(p.handoffs, h)
	}
}
