package kcompile

import (
	"fmt"
	"strings"

	"github.com/birdayz/kflow/kdiag"
	"github.com/birdayz/kflow/kgraph"
)

// SubgraphID identifies a subgraph within a Program.
type SubgraphID int

func (id SubgraphID) String() string {
	return fmt.Sprintf("sg%d", int(id))
}

// Subgraph is a group of operators executed as one unit.
type Subgraph struct {
	ID SubgraphID
	// Name is the name of the first member.
	Name string

	// Nodes are the member operators in execution order: every internal
	// edge goes from an earlier node to a later one.
	Nodes []kgraph.NodeID

	Stratum int

	// TickBoundary is set when at least one input of the subgraph is only
	// delivered at the start of the next tick.
	TickBoundary bool
}

// HandoffOutput is one consumer of a handoff.
type HandoffOutput struct {
	Edge     kgraph.EdgeID
	Dst      kgraph.NodeID
	DstPort  kgraph.Port
	Subgraph SubgraphID
	Delay    kgraph.DelayType

	// TickBoundary is set for tick delays and for stratum delays that close
	// a cycle. Data crossing it becomes visible one tick later.
	TickBoundary bool
}

// Handoff is a materialized buffer between subgraphs.
type Handoff struct {
	Node kgraph.NodeID

	// Src is the producing operator and SrcPort its output port.
	Src         kgraph.NodeID
	SrcPort     kgraph.Port
	SrcSubgraph SubgraphID

	Outputs []HandoffOutput

	// Inserted is false for handoffs the front end placed in the graph.
	Inserted bool
}

// Program is a partitioned and stratified graph ready to be instantiated by
// kruntime.
type Program struct {
	graph        *kgraph.Graph
	colors       []Color
	subgraphs    []*Subgraph
	nodeSubgraph map[kgraph.NodeID]SubgraphID
	handoffs     []*Handoff
	handoffIdx   map[kgraph.NodeID]int
	numStrata    int
	diagnostics  kdiag.Diagnostics
}

// Graph returns the partitioned graph, i.e. the input graph plus inserted
// handoffs. It must not be modified.
func (p *Program) Graph() *kgraph.Graph {
	return p.graph
}

// Subgraphs returns all subgraphs ordered by id.
func (p *Program) Subgraphs() []*Subgraph {
	return p.subgraphs
}

// Subgraph returns the subgraph with the given id.
func (p *Program) Subgraph(id SubgraphID) *Subgraph {
	return p.subgraphs[id]
}

// NodeSubgraph returns the subgraph an operator belongs to. Handoffs belong
// to no subgraph.
func (p *Program) NodeSubgraph(n kgraph.NodeID) (SubgraphID, bool) {
	sg, ok := p.nodeSubgraph[n]
	return sg, ok
}

// Handoffs returns every handoff ordered by node id.
func (p *Program) Handoffs() []*Handoff {
	return p.handoffs
}

// Handoff returns the handoff materialized for the given node.
func (p *Program) Handoff(n kgraph.NodeID) (*Handoff, bool) {
	i, ok := p.handoffIdx[n]
	if !ok {
		return nil, false
	}
	return p.handoffs[i], true
}

// InsertedHandoffs returns the handoffs added by the partitioner.
func (p *Program) InsertedHandoffs() []*Handoff {
	var out []*Handoff
	for _, h := range p.handoffs {
		if h.Inserted {
			out = append(out, h)
		}
	}
	return out
}

// Color returns the color the partitioner settled on for a node.
func (p *Program) Color(n kgraph.NodeID) Color {
	if int(n) >= len(p.colors) {
		return ColorHoff
	}
	return p.colors[n]
}

// IsInternal reports whether an edge connects two operators of the same
// subgraph directly.
func (p *Program) IsInternal(e kgraph.EdgeID) bool {
	edge := p.graph.Edge(e)
	return !p.graph.Node(edge.Src).IsHandoff() && !p.graph.Node(edge.Dst).IsHandoff()
}

// NumStrata returns the number of strata, which is one more than the
// highest stratum in use.
func (p *Program) NumStrata() int {
	return p.numStrata
}

// MaxStratum returns the highest stratum in use.
func (p *Program) MaxStratum() int {
	return p.numStrata - 1
}

// Diagnostics returns the advisory diagnostics produced by the compilation.
func (p *Program) Diagnostics() kdiag.Diagnostics {
	return p.diagnostics
}

// NodeName returns a printable name for a node.
func (p *Program) NodeName(n kgraph.NodeID) string {
	return nodeName(p.graph, n)
}

// Describe returns a human readable listing of the subgraphs.
func (p *Program) Describe() string {
	var sb strings.Builder
	for _, sg := range p.subgraphs {
		names := make([]string, len(sg.Nodes))
		for i, n := range sg.Nodes {
			names[i] = p.NodeName(n)
		}
		fmt.Fprintf(&sb, "%s stratum=%d", sg.ID, sg.Stratum)
		if sg.TickBoundary {
			sb.WriteString(" tick-boundary")
		}
		fmt.Fprintf(&sb, ": %s\n", strings.Join(names, ", "))
	}
	for _, h := range p.handoffs {
		dsts := make([]string, len(h.Outputs))
		for i, o := range h.Outputs {
			dsts[i] = fmt.Sprintf("%s(%s)", p.NodeName(o.Dst), o.Delay)
			if o.TickBoundary {
				dsts[i] += "*"
			}
		}
		fmt.Fprintf(&sb, "%s: %s -> %s\n", p.NodeName(h.Node), p.NodeName(h.Src), strings.Join(dsts, ", "))
	}
	return sb.String()
}

func nodeName(g *kgraph.Graph, n kgraph.NodeID) string {
	node := g.Node(n)
	if node.Name != "" {
		return node.Name
	}
	if node.IsHandoff() {
		return "handoff_" + n.String()
	}
	return n.String()
}
