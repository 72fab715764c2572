package kops

import (
	"github.com/birdayz/kflow/kgraph"
	"github.com/birdayz/kflow/khandoff"
	"github.com/birdayz/kflow/kruntime"
)

// Operator couples an operator spec with its runtime body.
type Operator struct {
	spec *kgraph.OperatorSpec
	body *kruntime.Body
}

// New wraps a custom body. The body's ports must agree with the spec.
func New(spec *kgraph.OperatorSpec, body *kruntime.Body) *Operator {
	return &Operator{spec: spec, body: body}
}

func (o *Operator) Spec() *kgraph.OperatorSpec {
	return o.spec
}

func (o *Operator) Body() *kruntime.Body {
	return o.body
}

func port[T any](p kgraph.Port) map[kgraph.Port]khandoff.Elem {
	return map[kgraph.Port]khandoff.Elem{p: khandoff.Of[T]()}
}

func elided[T any]() map[kgraph.Port]khandoff.Elem {
	return port[T](kgraph.ElidedPort)
}

// transform builds the body of a one-in one-out operator.
func transform[In, Out any](spec *kgraph.OperatorSpec, fn func(in kruntime.In[In], out kruntime.Out[Out])) *Operator {
	return New(spec, &kruntime.Body{
		In:  elided[In](),
		Out: elided[Out](),
		Run: func(c *kruntime.Context, io *kruntime.IO) error {
			fn(kruntime.Input[In](io, kgraph.ElidedPort), kruntime.Output[Out](io, kgraph.ElidedPort))
			return nil
		},
	})
}
