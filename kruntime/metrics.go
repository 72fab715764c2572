package kruntime

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/birdayz/kflow/kruntime"

type metrics struct {
	subgraphRuns   metric.Int64Counter
	ticks          metric.Int64Counter
	reactorEvents  metric.Int64Counter
	subgraphErrors metric.Int64Counter
	attrs          metric.MeasurementOption
}

func newMetrics(mp metric.MeterProvider, graph, id string) (*metrics, error) {
	meter := mp.Meter(meterName)

	subgraphRuns, err := meter.Int64Counter("kflow.subgraph.runs",
		metric.WithDescription("Number of subgraph invocations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kflow.subgraph.runs counter: %w", err)
	}

	ticks, err := meter.Int64Counter("kflow.ticks",
		metric.WithDescription("Number of completed ticks"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kflow.ticks counter: %w", err)
	}

	reactorEvents, err := meter.Int64Counter("kflow.reactor.events",
		metric.WithDescription("Number of external events received through the reactor"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kflow.reactor.events counter: %w", err)
	}

	subgraphErrors, err := meter.Int64Counter("kflow.subgraph.errors",
		metric.WithDescription("Number of failed subgraph invocations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kflow.subgraph.errors counter: %w", err)
	}

	return &metrics{
		subgraphRuns:   subgraphRuns,
		ticks:          ticks,
		reactorEvents:  reactorEvents,
		subgraphErrors: subgraphErrors,
		attrs: metric.WithAttributes(
			attribute.String("graph", graph),
			attribute.String("graph.id", id),
		),
	}, nil
}

func (m *metrics) recordRun(ctx context.Context, failed bool) {
	m.subgraphRuns.Add(ctx, 1, m.attrs)
	if failed {
		m.subgraphErrors.Add(ctx, 1, m.attrs)
	}
}
