package kops

import (
	"github.com/birdayz/kflow/kgraph"
)

// Ports of Difference.
var (
	DifferencePos = kgraph.IntPort(0)
	DifferenceNeg = kgraph.IntPort(1)
)

var (
	SourceSpec = &kgraph.OperatorSpec{
		Name:    "source",
		Inputs:  kgraph.Exactly(0),
		Outputs: kgraph.Exactly(1),
	}
	MapSpec = &kgraph.OperatorSpec{
		Name:    "map",
		Inputs:  kgraph.Exactly(1),
		Outputs: kgraph.Exactly(1),
	}
	FilterSpec = &kgraph.OperatorSpec{
		Name:    "filter",
		Inputs:  kgraph.Exactly(1),
		Outputs: kgraph.Exactly(1),
	}
	FlatMapSpec = &kgraph.OperatorSpec{
		Name:    "flat_map",
		Inputs:  kgraph.Exactly(1),
		Outputs: kgraph.Exactly(1),
	}
	InspectSpec = &kgraph.OperatorSpec{
		Name:    "inspect",
		Inputs:  kgraph.Exactly(1),
		Outputs: kgraph.Exactly(1),
	}
	IdentitySpec = &kgraph.OperatorSpec{
		Name:    "identity",
		Inputs:  kgraph.Exactly(1),
		Outputs: kgraph.Exactly(1),
	}
	UnionSpec = &kgraph.OperatorSpec{
		Name:          "union",
		Inputs:        kgraph.AtLeast(1),
		Outputs:       kgraph.Exactly(1),
		VariadicInput: true,
	}
	TeeSpec = &kgraph.OperatorSpec{
		Name:           "tee",
		Inputs:         kgraph.Exactly(1),
		Outputs:        kgraph.AtLeast(1),
		VariadicOutput: true,
	}
	ForEachSpec = &kgraph.OperatorSpec{
		Name:    "for_each",
		Inputs:  kgraph.Exactly(1),
		Outputs: kgraph.Exactly(0),
	}
	PersistSpec = &kgraph.OperatorSpec{
		Name:    "persist",
		Inputs:  kgraph.Exactly(1),
		Outputs: kgraph.Exactly(1),
	}
	// FoldSpec blocks on its input: a fold only emits once its input is
	// complete for the tick.
	FoldSpec = &kgraph.OperatorSpec{
		Name:    "fold",
		Inputs:  kgraph.Exactly(1),
		Outputs: kgraph.Exactly(1),
		Delays:  map[kgraph.Port]kgraph.DelayType{kgraph.ElidedPort: kgraph.DelayStratum},
	}
	DifferenceSpec = &kgraph.OperatorSpec{
		Name:    "difference",
		Inputs:  kgraph.Exactly(2),
		Outputs: kgraph.Exactly(1),
		Delays:  map[kgraph.Port]kgraph.DelayType{DifferenceNeg: kgraph.DelayStratum},
	}
	DeferTickSpec = &kgraph.OperatorSpec{
		Name:    "defer_tick",
		Inputs:  kgraph.Exactly(1),
		Outputs: kgraph.Exactly(1),
		Delays:  map[kgraph.Port]kgraph.DelayType{kgraph.ElidedPort: kgraph.DelayTick},
	}
)

// Catalog returns the spec of every operator by name. Front ends that only
// need to compile a graph use it to resolve operator names.
func Catalog() map[string]*kgraph.OperatorSpec {
	specs := []*kgraph.OperatorSpec{
		SourceSpec, MapSpec, FilterSpec, FlatMapSpec, InspectSpec, IdentitySpec,
		UnionSpec, TeeSpec, ForEachSpec, PersistSpec, FoldSpec, DifferenceSpec, DeferTickSpec,
	}
	out := make(map[string]*kgraph.OperatorSpec, len(specs))
	for _, s := range specs {
		out[s.Name] = s
	}
	return out
}
