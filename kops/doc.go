// Package kops is a small catalog of generic operators.
//
// Every constructor returns an *Operator: the spec the compiler needs to
// partition and stratify the graph, plus the body the runtime executes.
// Specs describe arity and input delays only; the element types are
// declared by the bodies and checked when the runtime graph is built.
//
//	src := kops.SourceIter([]int{1, 2, 3})
//	double := kops.Map(func(x int) int { return x * 2 })
//	var out []int
//	sink := kops.Collect(&out)
//
// Operators that keep state across runs (Persist, Fold, Difference) are
// instantiated once per graph node and must not be shared between graphs.
package kops
