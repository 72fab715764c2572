package kcompile

import (
	"sort"

	"golang.org/x/exp/slices"

	"github.com/birdayz/kflow/kgraph"
)

// partitioner groups operators into subgraphs. It works on a clone of the
// caller's graph and splices handoffs into it.
type partitioner struct {
	g        *kgraph.Graph
	colors   []Color
	uf       *unionFind
	internal map[kgraph.EdgeID]bool

	// crossers are the operators on both sides of delayed edges. Their two
	// sides must never end up in the same group. A delayed edge leaving a
	// handoff is recorded from the operator feeding that handoff.
	crossers [][2]kgraph.NodeID
}

func newPartitioner(g *kgraph.Graph) *partitioner {
	p := &partitioner{
		g:        g,
		colors:   make([]Color, g.NumNodes()),
		uf:       newUnionFind(g.NumNodes()),
		internal: make(map[kgraph.EdgeID]bool),
	}
	for _, n := range g.NodeIDs() {
		p.colors[n] = nodeColor(g.Node(n).IsHandoff(), g.InDegree(n), g.OutDegree(n))
	}
	for _, e := range g.EdgeIDs() {
		if g.EdgeDelay(e) != kgraph.DelayNone {
			edge := g.Edge(e)
			p.crossers = append(p.crossers, [2]kgraph.NodeID{producer(g, edge.Src), edge.Dst})
		}
	}
	return p
}

// producer returns the operator behind n. Handoffs have exactly one input.
func producer(g *kgraph.Graph, n kgraph.NodeID) kgraph.NodeID {
	if g.Node(n).IsHandoff() {
		if preds := g.Predecessors(n); len(preds) > 0 {
			return preds[0]
		}
	}
	return n
}

// canonicalEdges returns every edge ordered by its endpoints and ports, so
// that grouping does not depend on the order edges were inserted in.
func canonicalEdges(g *kgraph.Graph) []kgraph.EdgeID {
	ids := g.EdgeIDs()
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := g.Edge(ids[i]), g.Edge(ids[j])
		if a.Src != b.Src {
			return a.Src < b.Src
		}
		if c := comparePorts(a.SrcPort, b.SrcPort); c != 0 {
			return c < 0
		}
		if a.Dst != b.Dst {
			return a.Dst < b.Dst
		}
		return comparePorts(a.DstPort, b.DstPort) < 0
	})
	return ids
}

func comparePorts(a, b kgraph.Port) int {
	switch {
	case a.Name < b.Name:
		return -1
	case a.Name > b.Name:
		return 1
	case a.Index < b.Index:
		return -1
	case a.Index > b.Index:
		return 1
	}
	return 0
}

// wouldBridge reports whether merging the groups of a and b joins both
// sides of a delayed edge.
func (p *partitioner) wouldBridge(a, b kgraph.NodeID) bool {
	ra, rb := p.uf.find(int(a)), p.uf.find(int(b))
	for _, c := range p.crossers {
		rs, rd := p.uf.find(int(c[0])), p.uf.find(int(c[1]))
		if (rs == ra && rd == rb) || (rs == rb && rd == ra) {
			return true
		}
	}
	return false
}

// coalesce unions compatible neighbors until a full pass makes no progress.
func (p *partitioner) coalesce() {
	edges := canonicalEdges(p.g)
	for progress := true; progress; {
		progress = false
		for _, e := range edges {
			edge := p.g.Edge(e)
			src, dst := edge.Src, edge.Dst
			if p.uf.same(int(src), int(dst)) {
				continue
			}
			if p.wouldBridge(src, dst) {
				continue
			}

			sc, dc := p.colors[src], p.colors[dst]
			if sc == ColorNone && dc != ColorNone {
				sc = inferColor(dc, true)
				p.colors[src] = sc
			} else if dc == ColorNone && sc != ColorNone {
				dc = inferColor(sc, false)
				p.colors[dst] = dc
			}

			if !canConnect(sc, dc) {
				continue
			}
			p.uf.union(int(src), int(dst))
			p.internal[e] = true
			progress = true
		}
	}
}

// insertHandoffs splices a handoff into every edge between two operators
// that did not become internal, self-loops included. Edges that already
// touch a handoff keep it.
func (p *partitioner) insertHandoffs() []kgraph.NodeID {
	var inserted []kgraph.NodeID
	for _, e := range p.g.EdgeIDs() {
		if p.internal[e] {
			continue
		}
		edge := p.g.Edge(e)
		if p.g.Node(edge.Src).IsHandoff() || p.g.Node(edge.Dst).IsHandoff() {
			continue
		}
		h, _ := p.g.InsertIntermediateNode(e, kgraph.Node{
			Kind: kgraph.KindHandoff,
			Span: p.g.Node(edge.Dst).Span,
		})
		p.colors = append(p.colors, ColorHoff)
		inserted = append(inserted, h)
	}
	return inserted
}

// subgraphs groups operators by their union-find representative. Ids are
// handed out in order of each group's smallest node id.
func (p *partitioner) subgraphs() []*Subgraph {
	groups := make(map[int][]kgraph.NodeID)
	var roots []int
	for i := 0; i < p.uf.len(); i++ {
		n := kgraph.NodeID(i)
		if p.g.Node(n).IsHandoff() {
			continue
		}
		r := p.uf.find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], n)
	}

	out := make([]*Subgraph, 0, len(roots))
	for i, r := range roots {
		out = append(out, &Subgraph{
			ID:    SubgraphID(i),
			Nodes: p.orderMembers(groups[r]),
		})
	}
	return out
}

// orderMembers sorts a group topologically over its internal edges using
// Kahn's algorithm, breaking ties by node id.
func (p *partitioner) orderMembers(members []kgraph.NodeID) []kgraph.NodeID {
	inDegree := make(map[kgraph.NodeID]int, len(members))
	for _, n := range members {
		inDegree[n] = 0
	}
	for _, n := range members {
		for _, e := range p.g.SuccessorEdges(n) {
			if p.internal[e] {
				inDegree[p.g.Edge(e).Dst]++
			}
		}
	}

	var queue []kgraph.NodeID
	for _, n := range members {
		if inDegree[n] == 0 {
			queue = insertSorted(queue, n)
		}
	}

	order := make([]kgraph.NodeID, 0, len(members))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, e := range p.g.SuccessorEdges(n) {
			if !p.internal[e] {
				continue
			}
			dst := p.g.Edge(e).Dst
			inDegree[dst]--
			if inDegree[dst] == 0 {
				queue = insertSorted(queue, dst)
			}
		}
	}
	return order
}

// insertSorted inserts an id into a sorted slice maintaining sort order.
func insertSorted(s []kgraph.NodeID, n kgraph.NodeID) []kgraph.NodeID {
	idx := sort.Search(len(s), func(i int) bool {
		return s[i] >= n
	})
	return slices.Insert(s, idx, n)
}
