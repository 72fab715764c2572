package kgraph

import (
	"fmt"
	"math"
	"strconv"
)

// NodeID is an arena index into a Graph. It is only meaningful for the Graph
// that returned it.
type NodeID int

func (id NodeID) String() string {
	return "n" + strconv.Itoa(int(id))
}

// EdgeID is an arena index into the edges of a Graph.
type EdgeID int

func (id EdgeID) String() string {
	return "e" + strconv.Itoa(int(id))
}

// NodeKind represents the kind of node in the graph.
type NodeKind int

const (
	KindOperator NodeKind = iota
	KindHandoff
)

func (k NodeKind) String() string {
	switch k {
	case KindOperator:
		return "Operator"
	case KindHandoff:
		return "Handoff"
	default:
		return "Unknown"
	}
}

// DelayType is the scheduling requirement an operator declares on one of
// its inputs.
type DelayType int

const (
	// DelayNone allows the producer and consumer to run in the same stratum,
	// or even fused in the same subgraph.
	DelayNone DelayType = iota
	// DelayStratum requires the producer to be fully computed before the
	// consumer runs, i.e. the consumer is placed in a later stratum.
	DelayStratum
	// DelayTick defers delivery to the next tick (an "epoch" boundary).
	DelayTick
)

func (d DelayType) String() string {
	switch d {
	case DelayNone:
		return "none"
	case DelayStratum:
		return "stratum"
	case DelayTick:
		return "tick"
	default:
		return "unknown"
	}
}

// Port identifies an input or output slot of an operator, either by
// position or by name.
type Port struct {
	Index int
	Name  string
}

// ElidedPort is the port used by operators that only have a single input or
// output.
var ElidedPort = Port{}

// IntPort returns a positional port.
func IntPort(i int) Port {
	return Port{Index: i}
}

// NamedPort returns a symbolic port.
func NamedPort(name string) Port {
	return Port{Name: name}
}

// IsNamed reports whether the port is symbolic.
func (p Port) IsNamed() bool {
	return p.Name != ""
}

func (p Port) String() string {
	if p.IsNamed() {
		return p.Name
	}
	return strconv.Itoa(p.Index)
}

// Unbounded marks a Range without an upper limit.
const Unbounded = math.MaxInt

// Range is an inclusive count range, used for port arities.
type Range struct {
	Min int
	Max int
}

// Exactly returns the range [n, n].
func Exactly(n int) Range {
	return Range{Min: n, Max: n}
}

// AtLeast returns the range [n, Unbounded].
func AtLeast(n int) Range {
	return Range{Min: n, Max: Unbounded}
}

// Contains reports whether n lies within the range.
func (r Range) Contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

func (r Range) String() string {
	switch {
	case r.Min == r.Max:
		return strconv.Itoa(r.Min)
	case r.Max == Unbounded:
		return fmt.Sprintf("at least %d", r.Min)
	default:
		return fmt.Sprintf("%d to %d", r.Min, r.Max)
	}
}

// OperatorSpec describes an operator kind: how many edges it accepts on
// each side and which of its inputs need a delay. Operator semantics are
// not part of the graph model.
type OperatorSpec struct {
	Name    string
	Inputs  Range
	Outputs Range

	// VariadicInput allows several edges to share one input port (e.g. union).
	VariadicInput bool
	// VariadicOutput allows several edges to share one output port (e.g. tee).
	VariadicOutput bool

	// Delays holds the delay requirement per input port. Ports not listed
	// have DelayNone.
	Delays map[Port]DelayType
}

// InputDelay returns the delay the operator declares for the given input port.
func (s *OperatorSpec) InputDelay(p Port) DelayType {
	if s == nil || s.Delays == nil {
		return DelayNone
	}
	return s.Delays[p]
}

// Node is either an operator or a handoff. Handoffs are transparent until
// partitioning materializes them as buffers.
type Node struct {
	Kind NodeKind
	Name string
	Spec *OperatorSpec

	// Span is the front end's source location. It is never interpreted.
	Span fmt.Stringer
}

// IsHandoff reports whether the node is a handoff.
func (n *Node) IsHandoff() bool {
	return n.Kind == KindHandoff
}

// Edge connects an output port of Src to an input port of Dst.
type Edge struct {
	Src     NodeID
	SrcPort Port
	Dst     NodeID
	DstPort Port
}

func (e Edge) String() string {
	return fmt.Sprintf("%s:%s -> %s:%s", e.Src, e.SrcPort, e.Dst, e.DstPort)
}
