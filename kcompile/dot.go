package kcompile

import (
	"fmt"
	"io"
	"strings"

	"github.com/birdayz/kflow/kgraph"
)

// WriteDOT renders the partitioned graph in Graphviz format. Each subgraph
// becomes a cluster labelled with its stratum; handoffs sit outside of all
// clusters. Delayed edges are dashed and tick boundaries are drawn red.
func WriteDOT(w io.Writer, p *Program) error {
	var sb strings.Builder
	sb.WriteString("digraph kflow {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded, fontname=\"Arial\"];\n")
	sb.WriteString("  edge [fontname=\"Arial\", fontsize=10];\n")

	for _, sg := range p.subgraphs {
		fmt.Fprintf(&sb, "\n  subgraph cluster_%s {\n", sg.ID)
		fmt.Fprintf(&sb, "    label=\"%s stratum %d\";\n", sg.ID, sg.Stratum)
		for _, n := range sg.Nodes {
			fmt.Fprintf(&sb, "    %s [label=\"%s\\n%s\"];\n", n, escapeDOT(p.NodeName(n)), p.Color(n))
		}
		sb.WriteString("  }\n")
	}

	if len(p.handoffs) > 0 {
		sb.WriteString("\n")
	}
	for _, h := range p.handoffs {
		fmt.Fprintf(&sb, "  %s [label=\"%s\", shape=cds, style=filled, fillcolor=\"lightgrey\"];\n", h.Node, escapeDOT(p.NodeName(h.Node)))
	}

	sb.WriteString("\n")
	for _, e := range p.graph.EdgeIDs() {
		edge := p.graph.Edge(e)
		var attrs []string
		if d := p.graph.EdgeDelay(e); d != kgraph.DelayNone {
			attrs = append(attrs, fmt.Sprintf("label=\"%s\"", d), "style=dashed")
		}
		if p.isTickBoundary(e) {
			attrs = append(attrs, "color=red")
		}
		fmt.Fprintf(&sb, "  %s -> %s", edge.Src, edge.Dst)
		if len(attrs) > 0 {
			fmt.Fprintf(&sb, " [%s]", strings.Join(attrs, ", "))
		}
		sb.WriteString(";\n")
	}
	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteMermaid renders the partitioned graph as a Mermaid flowchart.
func WriteMermaid(w io.Writer, p *Program) error {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	for _, sg := range p.subgraphs {
		fmt.Fprintf(&sb, "  subgraph %s [\"%s stratum %d\"]\n", sg.ID, sg.ID, sg.Stratum)
		for _, n := range sg.Nodes {
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", n, p.NodeName(n))
		}
		sb.WriteString("  end\n")
	}
	for _, h := range p.handoffs {
		fmt.Fprintf(&sb, "  %s[/\"%s\"/]\n", h.Node, p.NodeName(h.Node))
	}
	for _, e := range p.graph.EdgeIDs() {
		edge := p.graph.Edge(e)
		arrow := "-->"
		if d := p.graph.EdgeDelay(e); d != kgraph.DelayNone {
			arrow = fmt.Sprintf("-. %s .->", d)
		}
		fmt.Fprintf(&sb, "  %s %s %s\n", edge.Src, arrow, edge.Dst)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func (p *Program) isTickBoundary(e kgraph.EdgeID) bool {
	src := p.graph.Edge(e).Src
	h, ok := p.Handoff(src)
	if !ok {
		return false
	}
	for _, o := range h.Outputs {
		if o.Edge == e {
			return o.TickBoundary
		}
	}
	return false
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}
