package kgraph

import (
	"errors"
	"fmt"
)

// Graph is the flat operator graph. Nodes and edges live in arenas and are
// referenced by dense integer ids; nothing is ever removed.
//
// IMPORTANT: Graph is NOT safe for concurrent use.
type Graph struct {
	nodes []Node
	edges []Edge

	// Edge lists per node, in insertion order. Port order is whatever order
	// the edges were inserted in.
	succs [][]EdgeID
	preds [][]EdgeID
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// InsertNode adds a node to the graph and returns its id.
func (g *Graph) InsertNode(n Node) NodeID {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.succs = append(g.succs, nil)
	g.preds = append(g.preds, nil)
	return id
}

// AddOperator adds an operator node.
func (g *Graph) AddOperator(name string, spec *OperatorSpec, span fmt.Stringer) NodeID {
	return g.InsertNode(Node{Kind: KindOperator, Name: name, Spec: spec, Span: span})
}

// AddHandoff adds a handoff node.
func (g *Graph) AddHandoff(name string, span fmt.Stringer) NodeID {
	return g.InsertNode(Node{Kind: KindHandoff, Name: name, Span: span})
}

// InsertEdge adds a directed edge from an output port of src to an input
// port of dst.
func (g *Graph) InsertEdge(src NodeID, srcPort Port, dst NodeID, dstPort Port) (EdgeID, error) {
	if !g.has(src) {
		return 0, fmt.Errorf("%w: src %s", ErrNodeNotFound, src)
	}
	if !g.has(dst) {
		return 0, fmt.Errorf("%w: dst %s", ErrNodeNotFound, dst)
	}
	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, Edge{Src: src, SrcPort: srcPort, Dst: dst, DstPort: dstPort})
	g.succs[src] = append(g.succs[src], id)
	g.preds[dst] = append(g.preds[dst], id)
	return id, nil
}

// MustInsertEdge is like InsertEdge but panics on error.
func (g *Graph) MustInsertEdge(src NodeID, srcPort Port, dst NodeID, dstPort Port) EdgeID {
	id, err := g.InsertEdge(src, srcPort, dst, dstPort)
	if err != nil {
		panic(err)
	}
	return id
}

// InsertIntermediateNode splices n into edge e.
//
// Before: src:sp -> dst:dp (e)
// After:  src:sp -> n (e), n -> dst:dp (returned edge)
//
// The original edge keeps its id and position in src's successor list, the
// new edge takes e's position in dst's predecessor list, so port order of
// both endpoints is unchanged.
func (g *Graph) InsertIntermediateNode(e EdgeID, n Node) (NodeID, EdgeID) {
	old := g.edges[e]
	mid := g.InsertNode(n)

	out := EdgeID(len(g.edges))
	g.edges = append(g.edges, Edge{Src: mid, SrcPort: ElidedPort, Dst: old.Dst, DstPort: old.DstPort})

	g.edges[e] = Edge{Src: old.Src, SrcPort: old.SrcPort, Dst: mid, DstPort: ElidedPort}
	g.preds[mid] = append(g.preds[mid], e)
	g.succs[mid] = append(g.succs[mid], out)

	for i, pe := range g.preds[old.Dst] {
		if pe == e {
			g.preds[old.Dst][i] = out
			break
		}
	}
	return mid, out
}

// Node returns the node with the given id. It panics on unknown ids, like
// slice indexing does.
func (g *Graph) Node(id NodeID) *Node {
	return &g.nodes[id]
}

// Edge returns the edge with the given id.
func (g *Graph) Edge(id EdgeID) Edge {
	return g.edges[id]
}

// NumNodes returns the number of nodes.
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// NumEdges returns the number of edges.
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

// NodeIDs returns all node ids in insertion order.
func (g *Graph) NodeIDs() []NodeID {
	ids := make([]NodeID, len(g.nodes))
	for i := range g.nodes {
		ids[i] = NodeID(i)
	}
	return ids
}

// EdgeIDs returns all edge ids in insertion order.
func (g *Graph) EdgeIDs() []EdgeID {
	ids := make([]EdgeID, len(g.edges))
	for i := range g.edges {
		ids[i] = EdgeID(i)
	}
	return ids
}

// SuccessorEdges returns the outgoing edges of a node.
func (g *Graph) SuccessorEdges(id NodeID) []EdgeID {
	return g.succs[id]
}

// PredecessorEdges returns the incoming edges of a node.
func (g *Graph) PredecessorEdges(id NodeID) []EdgeID {
	return g.preds[id]
}

// Successors returns the destination of every outgoing edge. A node appears
// once per edge.
func (g *Graph) Successors(id NodeID) []NodeID {
	out := make([]NodeID, 0, len(g.succs[id]))
	for _, e := range g.succs[id] {
		out = append(out, g.edges[e].Dst)
	}
	return out
}

// Predecessors returns the source of every incoming edge.
func (g *Graph) Predecessors(id NodeID) []NodeID {
	out := make([]NodeID, 0, len(g.preds[id]))
	for _, e := range g.preds[id] {
		out = append(out, g.edges[e].Src)
	}
	return out
}

// InDegree returns the number of incoming edges.
func (g *Graph) InDegree(id NodeID) int {
	return len(g.preds[id])
}

// OutDegree returns the number of outgoing edges.
func (g *Graph) OutDegree(id NodeID) int {
	return len(g.succs[id])
}

// EdgeDelay returns the delay required by the destination port of an edge.
func (g *Graph) EdgeDelay(id EdgeID) DelayType {
	e := g.edges[id]
	dst := &g.nodes[e.Dst]
	if dst.Kind != KindOperator {
		return DelayNone
	}
	return dst.Spec.InputDelay(e.DstPort)
}

// Clone returns a deep copy of the graph structure. Operator specs and spans
// are shared since they are immutable.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes: append([]Node(nil), g.nodes...),
		edges: append([]Edge(nil), g.edges...),
		succs: make([][]EdgeID, len(g.succs)),
		preds: make([][]EdgeID, len(g.preds)),
	}
	for i := range g.succs {
		c.succs[i] = append([]EdgeID(nil), g.succs[i]...)
		c.preds[i] = append([]EdgeID(nil), g.preds[i]...)
	}
	return c
}

func (g *Graph) has(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// Sentinel errors for common failure cases.
var (
	ErrNodeNotFound = errors.New("node not found")
)
