package graphfile

import (
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/birdayz/kflow/kcompile"
	"github.com/birdayz/kflow/kdiag"
	"github.com/birdayz/kflow/kgraph"
)

const feedback = `nodes:
  - {name: numbers, op: source}
  - {name: union, op: union}
  - {name: inc, op: map}
  - {name: tee, op: tee}
  - {name: prev, op: defer_tick}
  - {name: out, op: for_each}
edges:
  - {from: numbers, to: union}
  - {from: union, to: inc}
  - {from: inc, to: tee}
  - {from: tee, to: out}
  - {from: tee, to: prev}
  - {from: prev, to: union}
`

func TestParseAndCompile(t *testing.T) {
	f, err := Parse("feedback.yaml", []byte(feedback))
	assert.NoError(t, err)
	assert.Equal(t, 6, len(f.Nodes))
	assert.Equal(t, kdiag.SourceSpan{File: "feedback.yaml", Line: 3, Column: 5}, f.Nodes[1].Span)

	g, diags := f.Graph()
	assert.False(t, diags.HasErrors())
	assert.Equal(t, 6, g.NumNodes())

	prog, err := kcompile.Compile(g)
	assert.NoError(t, err)
	assert.Equal(t, 1, prog.NumStrata())
}

func TestPorts(t *testing.T) {
	f, err := Parse("diff.yaml", []byte(`nodes:
  - {name: all, op: source}
  - {name: banned, op: source}
  - {name: diff, op: difference}
  - {name: out, op: for_each}
edges:
  - {from: all, to: diff, to_port: "0"}
  - {from: banned, to: diff, to_port: "1"}
  - {from: diff, to: out}
`))
	assert.NoError(t, err)

	g, diags := f.Graph()
	assert.False(t, diags.HasErrors())
	assert.Equal(t, kgraph.IntPort(1), g.Edge(1).DstPort)
	assert.Equal(t, kgraph.ElidedPort, g.Edge(2).DstPort)

	prog, err := kcompile.Compile(g)
	assert.NoError(t, err)
	assert.Equal(t, 2, prog.NumStrata())
}

func TestDiagnostics(t *testing.T) {
	f, err := Parse("bad.yaml", []byte(`nodes:
  - {name: a, op: source}
  - {name: a, op: map}
  - {name: b, op: explode}
  - {name: h, op: map, handoff: true}
edges:
  - {from: a, to: nowhere}
  - {from: ghost, to: a}
`))
	assert.NoError(t, err)

	_, diags := f.Graph()
	var msgs []string
	var lines []int
	for _, d := range diags {
		assert.True(t, d.IsError())
		msgs = append(msgs, d.Message)
		lines = append(lines, d.Span.(kdiag.SourceSpan).Line)
	}
	assert.Equal(t, []string{
		`node "a" declared twice`,
		`node "b": unknown operator "explode"`,
		`handoff "h" cannot have an operator`,
		`edge to unknown node "nowhere"`,
		`edge from unknown node "ghost"`,
	}, msgs)
	assert.Equal(t, []int{3, 4, 5, 7, 8}, lines)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("x.yaml", []byte("nodes:\n  - {name: a, operator: map}\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `line 2: unknown node field "operator"`)

	_, err = Parse("x.yaml", []byte("edges:\n  - {from: a, to: b, to_prot: 1}\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `unknown edge field "to_prot"`)

	_, err = Parse("x.yaml", []byte("nodez: []\n"))
	assert.Error(t, err)

	_, err = Load("testdata/does-not-exist.yaml")
	assert.Error(t, err)
}

func TestParsePort(t *testing.T) {
	assert.Equal(t, kgraph.ElidedPort, parsePort(""))
	assert.Equal(t, kgraph.IntPort(2), parsePort("2"))
	assert.Equal(t, kgraph.NamedPort("neg"), parsePort("neg"))
}
