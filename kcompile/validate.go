package kcompile

import (
	"github.com/birdayz/kflow/kdiag"
	"github.com/birdayz/kflow/kgraph"
)

// DefaultMaxNodes bounds the size of a graph accepted by Compile.
const DefaultMaxNodes = 10000

// validate checks the graph for malformed arity and handoff wiring before
// partitioning. It returns every problem found, not just the first one.
func validate(g *kgraph.Graph, maxNodes int) kdiag.Diagnostics {
	var diags kdiag.Diagnostics
	if maxNodes > 0 && g.NumNodes() > maxNodes {
		return append(diags, kdiag.Errorf(nil, "graph has %d nodes, exceeds maximum %d", g.NumNodes(), maxNodes))
	}

	for _, n := range g.NodeIDs() {
		node := g.Node(n)
		name := nodeName(g, n)
		in, out := g.InDegree(n), g.OutDegree(n)

		if node.IsHandoff() {
			if in != 1 {
				diags = append(diags, kdiag.Errorf(node.Span, "handoff %s must have exactly one input, has %d", name, in))
			}
			if out == 0 {
				diags = append(diags, kdiag.Errorf(node.Span, "handoff %s has no consumers", name))
			}
			for _, dst := range g.Successors(n) {
				if g.Node(dst).IsHandoff() {
					diags = append(diags, kdiag.Errorf(node.Span, "handoff %s feeds handoff %s directly", name, nodeName(g, dst)))
				}
			}
			continue
		}

		if node.Spec == nil {
			diags = append(diags, kdiag.Errorf(node.Span, "operator %s has no spec", name))
			continue
		}
		if in == 0 && out == 0 {
			diags = append(diags, kdiag.Warnf(node.Span, "operator %s is disconnected", name))
		}
		if !node.Spec.Inputs.Contains(in) {
			diags = append(diags, kdiag.Errorf(node.Span, "operator %s (%s) expects %s input(s), got %d", name, node.Spec.Name, node.Spec.Inputs, in))
		}
		if !node.Spec.Outputs.Contains(out) {
			diags = append(diags, kdiag.Errorf(node.Span, "operator %s (%s) expects %s output(s), got %d", name, node.Spec.Name, node.Spec.Outputs, out))
		}
		if !node.Spec.VariadicInput {
			if p, ok := duplicatePort(g, g.PredecessorEdges(n), false); ok {
				diags = append(diags, kdiag.Errorf(node.Span, "input port %s of operator %s is connected more than once", p, name))
			}
		}
		if !node.Spec.VariadicOutput {
			if p, ok := duplicatePort(g, g.SuccessorEdges(n), true); ok {
				diags = append(diags, kdiag.Errorf(node.Span, "output port %s of operator %s is connected more than once", p, name))
			}
		}
	}
	return diags
}

func duplicatePort(g *kgraph.Graph, edges []kgraph.EdgeID, src bool) (kgraph.Port, bool) {
	seen := make(map[kgraph.Port]bool, len(edges))
	for _, e := range edges {
		edge := g.Edge(e)
		p := edge.DstPort
		if src {
			p = edge.SrcPort
		}
		if seen[p] {
			return p, true
		}
		seen[p] = true
	}
	return kgraph.Port{}, false
}
