// Package kcompile turns a flat kgraph.Graph into a Program: operators
// grouped into subgraphs, handoffs on every edge between subgraphs and a
// stratum per subgraph.
//
// # Partitioning
//
// Each operator is colored by its degree. Pull operators form trees that are
// pulled from, push operators form trees that are pushed into, and a
// computation operator joins one of each. Neighbors with compatible colors
// are merged with a union-find until a full pass over the edges merges
// nothing. Edges into a delayed input are never merged across, so a delay
// always ends up on a handoff.
//
// # Stratification
//
// A subgraph reading a stratum-delayed input runs in a later stratum than
// its producer. Cycles made of undelayed edges only are rejected with a
// diagnostic. A stratum delay that closes a cycle is delivered on the next
// tick instead, and so is every tick delay.
package kcompile
