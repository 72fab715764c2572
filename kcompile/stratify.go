package kcompile

import (
	"sort"
	"strings"

	"github.com/birdayz/kflow/kdiag"
	"github.com/birdayz/kflow/kgraph"
)

// rejectUndelayedCycles reports every cycle of operators whose edges all
// lack a delay. Handoffs are transparent for this check.
func rejectUndelayedCycles(g *kgraph.Graph) kdiag.Diagnostics {
	adj := make([][]int, g.NumNodes())
	for _, n := range g.NodeIDs() {
		if g.Node(n).IsHandoff() {
			continue
		}
		for _, e := range g.SuccessorEdges(n) {
			dst := g.Edge(e).Dst
			if !g.Node(dst).IsHandoff() {
				if g.EdgeDelay(e) == kgraph.DelayNone {
					adj[n] = append(adj[n], int(dst))
				}
				continue
			}
			for _, he := range g.SuccessorEdges(dst) {
				if g.EdgeDelay(he) == kgraph.DelayNone {
					adj[n] = append(adj[n], int(g.Edge(he).Dst))
				}
			}
		}
	}
	succ := func(v int) []int { return adj[v] }

	sccs := tarjanSCC(len(adj), succ)
	// Report in order of each cycle's smallest node.
	sort.Slice(sccs, func(i, j int) bool { return minOf(sccs[i]) < minOf(sccs[j]) })

	var diags kdiag.Diagnostics
	for _, scc := range sccs {
		start := minOf(scc)
		if len(scc) == 1 && !containsInt(adj[start], start) {
			continue
		}
		members := make(map[int]bool, len(scc))
		for _, v := range scc {
			members[v] = true
		}
		path := cyclePath(start, members, succ)
		names := make([]string, len(path))
		for i, v := range path {
			names[i] = nodeName(g, kgraph.NodeID(v))
		}
		span := g.Node(kgraph.NodeID(start)).Span
		diags = append(diags,
			kdiag.Errorf(span, "cycle with no delay: %s", strings.Join(names, " -> ")),
			kdiag.Helpf(span, "add a stratum or tick delay to one of the inputs on this cycle"),
		)
	}
	return diags
}

// sgEdge is a subgraph-level dependency carried by one handoff output.
type sgEdge struct {
	src, dst SubgraphID
	delay    kgraph.DelayType
	producer kgraph.NodeID
	out      *HandoffOutput
}

// stratify assigns a stratum to every subgraph and flags the handoff
// outputs that are delivered across a tick boundary.
//
// Subgraphs joined by undelayed edges in both directions share a stratum. A
// stratum edge that points back into its own cycle cannot be satisfied
// within one tick, so it is cut and becomes a tick boundary. The remaining
// graph is a DAG and strata are the longest path over it, where stratum
// edges weigh one and undelayed edges zero.
func stratify(p *Program) kdiag.Diagnostics {
	var edges []sgEdge
	for _, h := range p.handoffs {
		for i := range h.Outputs {
			out := &h.Outputs[i]
			edges = append(edges, sgEdge{src: h.SrcSubgraph, dst: out.Subgraph, delay: out.Delay, producer: h.Src, out: out})
		}
	}

	var diags kdiag.Diagnostics
	back := func(e sgEdge) {
		e.out.TickBoundary = true
		diags = append(diags, kdiag.Diagnostic{
			Level:   kdiag.LevelNote,
			Message: "stratum delay into " + p.NodeName(e.out.Dst) + " closes a cycle and is delivered on the next tick",
			Span:    p.graph.Node(e.out.Dst).Span,
		})
	}

	// Components of subgraphs connected by undelayed edges.
	n := len(p.subgraphs)
	noneAdj := make([][]int, n)
	for _, e := range edges {
		if e.delay == kgraph.DelayNone && e.src != e.dst {
			noneAdj[e.src] = append(noneAdj[e.src], int(e.dst))
		}
	}
	comp, numComps := components(n, func(v int) []int { return noneAdj[v] })

	type cedge struct {
		src, dst int
		weight   int
		e        sgEdge
	}
	var cedges []cedge
	for _, e := range edges {
		switch e.delay {
		case kgraph.DelayTick:
			e.out.TickBoundary = true
		case kgraph.DelayStratum:
			if e.src == e.dst && e.producer != e.out.Dst {
				// Only a self-loop may keep both ends of a stratum edge in
				// one subgraph.
				diags = append(diags, kdiag.Errorf(p.graph.Node(e.out.Dst).Span,
					"internal error: stratum delay from %s into %s inside subgraph %s", p.NodeName(e.producer), p.NodeName(e.out.Dst), e.src))
				continue
			}
			if comp[e.src] == comp[e.dst] {
				back(e)
				continue
			}
			cedges = append(cedges, cedge{src: comp[e.src], dst: comp[e.dst], weight: 1, e: e})
		default:
			if comp[e.src] != comp[e.dst] {
				cedges = append(cedges, cedge{src: comp[e.src], dst: comp[e.dst], e: e})
			}
		}
	}

	// Cycles through stratum edges between components. Order each cycle by
	// its undelayed edges and cut the stratum edges that point backwards.
	adj := make([][]int, numComps)
	for _, ce := range cedges {
		adj[ce.src] = append(adj[ce.src], ce.dst)
	}
	cycleOf, _ := components(numComps, func(v int) []int { return adj[v] })
	pos := make([]int, numComps)
	for c := range pos {
		pos[c] = -1
	}
	for _, scc := range groupBy(cycleOf) {
		if len(scc) == 1 {
			continue
		}
		var inner [][2]int
		for _, ce := range cedges {
			if ce.weight == 0 && cycleOf[ce.src] == cycleOf[scc[0]] && cycleOf[ce.dst] == cycleOf[scc[0]] {
				inner = append(inner, [2]int{ce.src, ce.dst})
			}
		}
		for i, c := range kahn(scc, inner) {
			pos[c] = i
		}
	}
	kept := cedges[:0:0]
	for _, ce := range cedges {
		if ce.weight == 1 && cycleOf[ce.src] == cycleOf[ce.dst] && pos[ce.dst] <= pos[ce.src] {
			back(ce.e)
			continue
		}
		kept = append(kept, ce)
	}

	// Longest path over what is left.
	level := make([]int, numComps)
	succs := make([][]cedge, numComps)
	inDegree := make([]int, numComps)
	for _, ce := range kept {
		succs[ce.src] = append(succs[ce.src], ce)
		inDegree[ce.dst]++
	}
	var queue []kgraph.NodeID
	for c := 0; c < numComps; c++ {
		if inDegree[c] == 0 {
			queue = insertSorted(queue, kgraph.NodeID(c))
		}
	}
	for len(queue) > 0 {
		c := int(queue[0])
		queue = queue[1:]
		for _, ce := range succs[c] {
			level[ce.dst] = max(level[ce.dst], level[c]+ce.weight)
			inDegree[ce.dst]--
			if inDegree[ce.dst] == 0 {
				queue = insertSorted(queue, kgraph.NodeID(ce.dst))
			}
		}
	}

	p.numStrata = 0
	for _, sg := range p.subgraphs {
		sg.Stratum = level[comp[sg.ID]]
		p.numStrata = max(p.numStrata, sg.Stratum+1)
	}
	for _, e := range edges {
		if e.out.TickBoundary {
			p.subgraphs[e.dst].TickBoundary = true
		}
	}
	return diags
}

// components labels every vertex with the strongly connected component it
// belongs to. Components are numbered by their smallest vertex.
func components(n int, succ func(v int) []int) ([]int, int) {
	sccs := tarjanSCC(n, succ)
	sort.Slice(sccs, func(i, j int) bool { return minOf(sccs[i]) < minOf(sccs[j]) })
	label := make([]int, n)
	for i, scc := range sccs {
		for _, v := range scc {
			label[v] = i
		}
	}
	return label, len(sccs)
}

// groupBy inverts a labelling into its groups, ordered by label.
func groupBy(label []int) [][]int {
	var groups [][]int
	for v, l := range label {
		for len(groups) <= l {
			groups = append(groups, nil)
		}
		groups[l] = append(groups[l], v)
	}
	return groups
}

// kahn orders vertices topologically over the given edges, breaking ties by
// vertex id.
func kahn(vertices []int, edges [][2]int) []int {
	inDegree := make(map[int]int, len(vertices))
	succs := make(map[int][]int, len(vertices))
	for _, e := range edges {
		succs[e[0]] = append(succs[e[0]], e[1])
		inDegree[e[1]]++
	}
	var queue []kgraph.NodeID
	for _, v := range vertices {
		if inDegree[v] == 0 {
			queue = insertSorted(queue, kgraph.NodeID(v))
		}
	}
	order := make([]int, 0, len(vertices))
	for len(queue) > 0 {
		v := int(queue[0])
		queue = queue[1:]
		order = append(order, v)
		for _, w := range succs[v] {
			inDegree[w]--
			if inDegree[w] == 0 {
				queue = insertSorted(queue, kgraph.NodeID(w))
			}
		}
	}
	return order
}

func minOf(vs []int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		m = min(m, v)
	}
	return m
}

func containsInt(vs []int, x int) bool {
	for _, v := range vs {
		if v == x {
			return true
		}
	}
	return false
}
