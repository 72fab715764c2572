package kruntime

import (
	"errors"
	"fmt"

	"github.com/birdayz/kflow/kgraph"
	"github.com/birdayz/kflow/khandoff"
)

// Sentinel errors for construction and driving failures.
var (
	ErrNilProgram      = errors.New("program is nil")
	ErrMissingBody     = errors.New("missing operator body")
	ErrUndeclaredPort  = errors.New("port not declared by operator body")
	ErrTypeMismatch    = khandoff.ErrTypeMismatch
	ErrReactorClosed   = errors.New("reactor closed")
	ErrUnknownSubgraph = errors.New("unknown subgraph")
)

// SubgraphError is returned when an operator body fails. The failure aborts
// the current tick and the graph refuses to run afterwards.
type SubgraphError struct {
	// Cause is the error returned by the operator body
	Cause error

	Subgraph SubgraphID

	// Operator is the name of the failing operator and Node its id
	Operator string
	Node     kgraph.NodeID

	Tick    uint64
	Stratum int
}

func (e *SubgraphError) Error() string {
	return fmt.Sprintf("operator %q in subgraph %s failed (tick=%d stratum=%d): %v",
		e.Operator, e.Subgraph, e.Tick, e.Stratum, e.Cause)
}

func (e *SubgraphError) Unwrap() error {
	return e.Cause
}
