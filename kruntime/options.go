package kruntime

import (
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type config struct {
	name          string
	log           logr.Logger
	meterProvider metric.MeterProvider
}

func defaultConfig() config {
	return config{
		name:          "kflow",
		log:           logr.Discard(),
		meterProvider: noop.NewMeterProvider(),
	}
}

// Option configures Build.
type Option func(*config)

// WithLogger sets the logger. Ticks are logged at V(1), subgraph runs at
// V(2).
var WithLogger = func(log logr.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithMeterProvider sets the provider metric instruments are created from.
// Metrics are disabled by default.
var WithMeterProvider = func(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}

// WithName names the graph in logs, metrics and profiler labels.
var WithName = func(name string) Option {
	return func(c *config) {
		c.name = name
	}
}
