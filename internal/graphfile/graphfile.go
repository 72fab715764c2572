// Package graphfile reads graph descriptions from YAML.
//
//	nodes:
//	  - {name: numbers, op: source}
//	  - {name: h, handoff: true}
//	  - {name: out, op: for_each}
//	edges:
//	  - {from: numbers, to: h}
//	  - {from: h, to: out}
//
// Ports default to the elided port. Integer ports are positional, anything
// else is a named port.
package graphfile

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/birdayz/kflow/kdiag"
	"github.com/birdayz/kflow/kgraph"
	"github.com/birdayz/kflow/kops"
)

// File is a parsed graph description.
type File struct {
	Nodes []Node `yaml:"nodes"`
	Edges []Edge `yaml:"edges"`

	name string
}

type Node struct {
	Name    string `yaml:"name"`
	Op      string `yaml:"op"`
	Handoff bool   `yaml:"handoff"`

	Span kdiag.SourceSpan `yaml:"-"`
}

func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	type plain Node
	if err := knownKeys(value, "node", "name", "op", "handoff"); err != nil {
		return err
	}
	if err := value.Decode((*plain)(n)); err != nil {
		return err
	}
	n.Span = kdiag.SourceSpan{Line: value.Line, Column: value.Column}
	return nil
}

type Edge struct {
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	FromPort string `yaml:"from_port"`
	ToPort   string `yaml:"to_port"`

	Span kdiag.SourceSpan `yaml:"-"`
}

func (e *Edge) UnmarshalYAML(value *yaml.Node) error {
	type plain Edge
	if err := knownKeys(value, "edge", "from", "to", "from_port", "to_port"); err != nil {
		return err
	}
	if err := value.Decode((*plain)(e)); err != nil {
		return err
	}
	e.Span = kdiag.SourceSpan{Line: value.Line, Column: value.Column}
	return nil
}

// knownKeys rejects mapping keys outside known. Decoding through a custom
// unmarshaler does not inherit the decoder's KnownFields setting.
func knownKeys(value *yaml.Node, kind string, known ...string) error {
	if value.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i]
		if !slices.Contains(known, key.Value) {
			return fmt.Errorf("line %d: unknown %s field %q", key.Line, kind, key.Value)
		}
	}
	return nil
}

// Load reads and parses a file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}
	return Parse(path, data)
}

// Parse parses a graph description. name is used as the file of every span.
func Parse(name string, data []byte) (*File, error) {
	f := &File{name: name}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	for i := range f.Nodes {
		f.Nodes[i].Span.File = name
	}
	for i := range f.Edges {
		f.Edges[i].Span.File = name
	}
	return f, nil
}

// Graph builds the described graph with the operator specs of the kops
// catalog. Problems are reported as Error diagnostics pointing into the
// file; the graph is only usable if there are none.
func (f *File) Graph() (*kgraph.Graph, kdiag.Diagnostics) {
	catalog := kops.Catalog()
	g := kgraph.NewGraph()
	ids := map[string]kgraph.NodeID{}
	var diags kdiag.Diagnostics

	for _, n := range f.Nodes {
		if n.Name == "" {
			diags = append(diags, kdiag.Errorf(n.Span, "node without a name"))
			continue
		}
		if _, ok := ids[n.Name]; ok {
			diags = append(diags, kdiag.Errorf(n.Span, "node %q declared twice", n.Name))
			continue
		}

		if n.Handoff {
			if n.Op != "" {
				diags = append(diags, kdiag.Errorf(n.Span, "handoff %q cannot have an operator", n.Name))
				continue
			}
			ids[n.Name] = g.AddHandoff(n.Name, n.Span)
			continue
		}

		spec, ok := catalog[n.Op]
		if !ok {
			diags = append(diags, kdiag.Errorf(n.Span, "node %q: unknown operator %q", n.Name, n.Op))
			continue
		}
		ids[n.Name] = g.AddOperator(n.Name, spec, n.Span)
	}

	for _, e := range f.Edges {
		src, ok := ids[e.From]
		if !ok {
			diags = append(diags, kdiag.Errorf(e.Span, "edge from unknown node %q", e.From))
			continue
		}
		dst, ok := ids[e.To]
		if !ok {
			diags = append(diags, kdiag.Errorf(e.Span, "edge to unknown node %q", e.To))
			continue
		}
		if _, err := g.InsertEdge(src, parsePort(e.FromPort), dst, parsePort(e.ToPort)); err != nil {
			diags = append(diags, kdiag.Errorf(e.Span, "edge %s -> %s: %v", e.From, e.To, err))
		}
	}

	return g, diags
}

func parsePort(s string) kgraph.Port {
	if s == "" {
		return kgraph.ElidedPort
	}
	if i, err := strconv.Atoi(s); err == nil {
		return kgraph.IntPort(i)
	}
	return kgraph.NamedPort(s)
}
