package kflow

import (
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/multierr"

	"github.com/birdayz/kflow/kcompile"
	"github.com/birdayz/kflow/kdiag"
	"github.com/birdayz/kflow/kgraph"
	"github.com/birdayz/kflow/kruntime"
)

var (
	ErrNodeAlreadyExists = errors.New("node already exists")
	ErrNodeNotFound      = errors.New("node not found")
	ErrNilNode           = errors.New("node is nil")
)

// Node is an operator that can be added to a Builder. *kops.Operator
// implements it.
type Node interface {
	Spec() *kgraph.OperatorSpec
	Body() *kruntime.Body
}

// Builder assembles a graph. Errors are collected and reported by Build,
// so calls can be chained without checking each one.
type Builder struct {
	g      *kgraph.Graph
	names  map[string]kgraph.NodeID
	bodies map[kgraph.NodeID]*kruntime.Body
	err    error
	prog   *kcompile.Program
}

func NewBuilder() *Builder {
	return &Builder{
		g:      kgraph.NewGraph(),
		names:  map[string]kgraph.NodeID{},
		bodies: map[kgraph.NodeID]*kruntime.Body{},
	}
}

// AddNode adds an operator. Diagnostics about the node point at the call
// site of AddNode.
func (b *Builder) AddNode(name string, n Node) kgraph.NodeID {
	span := callerSpan()
	if n == nil {
		b.err = multierr.Append(b.err, fmt.Errorf("%w: %q at %s", ErrNilNode, name, span))
		return -1
	}
	if _, ok := b.names[name]; ok {
		b.err = multierr.Append(b.err, fmt.Errorf("%w: %q at %s", ErrNodeAlreadyExists, name, span))
		return -1
	}
	id := b.g.AddOperator(name, n.Spec(), span)
	b.names[name] = id
	b.bodies[id] = n.Body()
	return id
}

// AddHandoff adds an explicit handoff. Handoffs split the graph into
// separate subgraphs; a handoff with several consumers fans out to all of
// them.
func (b *Builder) AddHandoff(name string) kgraph.NodeID {
	span := callerSpan()
	if _, ok := b.names[name]; ok {
		b.err = multierr.Append(b.err, fmt.Errorf("%w: %q at %s", ErrNodeAlreadyExists, name, span))
		return -1
	}
	id := b.g.AddHandoff(name, span)
	b.names[name] = id
	return id
}

// Connect connects the elided ports of two nodes.
func (b *Builder) Connect(src, dst kgraph.NodeID) {
	b.connect(callerSpan(), src, kgraph.ElidedPort, dst, kgraph.ElidedPort)
}

// ConnectPorts connects an output port of src to an input port of dst.
func (b *Builder) ConnectPorts(src kgraph.NodeID, srcPort kgraph.Port, dst kgraph.NodeID, dstPort kgraph.Port) {
	b.connect(callerSpan(), src, srcPort, dst, dstPort)
}

func (b *Builder) connect(span kdiag.SourceSpan, src kgraph.NodeID, srcPort kgraph.Port, dst kgraph.NodeID, dstPort kgraph.Port) {
	if src < 0 || dst < 0 {
		// The node failed to be added; that error is already recorded.
		return
	}
	if _, err := b.g.InsertEdge(src, srcPort, dst, dstPort); err != nil {
		b.err = multierr.Append(b.err, fmt.Errorf("connect at %s: %w", span, err))
	}
}

// Node looks up a node by name.
func (b *Builder) Node(name string) (kgraph.NodeID, bool) {
	id, ok := b.names[name]
	return id, ok
}

// MustNode looks up a node by name and panics if it does not exist.
func (b *Builder) MustNode(name string) kgraph.NodeID {
	id, ok := b.names[name]
	if !ok {
		panic(fmt.Errorf("%w: %q", ErrNodeNotFound, name))
	}
	return id
}

// Graph returns the graph built so far.
func (b *Builder) Graph() *kgraph.Graph {
	return b.g
}

// Program returns the program compiled by the last successful Build.
func (b *Builder) Program() *kcompile.Program {
	return b.prog
}

// Build compiles the graph and instantiates it. Compile failures are
// returned as *kdiag.CompileError.
func (b *Builder) Build(opts ...Option) (*App, error) {
	if b.err != nil {
		return nil, b.err
	}
	cfg := newConfig(opts)

	prog, err := kcompile.Compile(b.g, cfg.compileOptions()...)
	if err != nil {
		return nil, err
	}
	for _, d := range prog.Diagnostics() {
		cfg.log.Info("Compiler note", "level", d.Level.String(), "message", d.Message, "span", spanString(d))
	}

	graph, err := kruntime.Build(prog, b.bodies, cfg.runtimeOptions()...)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	b.prog = prog
	return newApp(graph, cfg), nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild(opts ...Option) *App {
	app, err := b.Build(opts...)
	if err != nil {
		panic(err)
	}
	return app
}

func spanString(d kdiag.Diagnostic) string {
	if d.Span == nil {
		return ""
	}
	return d.Span.String()
}

// callerSpan returns the location of the caller of the Builder method.
func callerSpan() kdiag.SourceSpan {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return kdiag.SourceSpan{File: "unknown"}
	}
	return kdiag.SourceSpan{File: file, Line: line, Column: 1}
}
