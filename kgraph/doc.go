// Package kgraph is the flat operator graph consumed by the compiler.
//
// # Overview
//
// A Graph is an arena of nodes and directed, ported edges. A node is either
// an operator, described only by its OperatorSpec (port arities and the
// delay each input requires), or a handoff, a buffering boundary that is
// transparent until kcompile materializes it.
//
//	g := kgraph.NewGraph()
//	src := g.AddOperator("source", kops.SourceIterSpec, nil)
//	dbl := g.AddOperator("double", kops.MapSpec, nil)
//	g.MustInsertEdge(src, kgraph.ElidedPort, dbl, kgraph.ElidedPort)
//
// Node and edge ids are dense integers valid only for the graph that
// produced them. Nodes are never removed; the partitioner only inserts
// handoffs in between existing edges (see InsertIntermediateNode).
//
// # Determinism
//
// Successor and predecessor lists keep insertion order, and all id listings
// are ascending, so every algorithm built on top of the graph iterates in a
// reproducible order.
package kgraph
