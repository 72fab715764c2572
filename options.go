package kflow

import (
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/metric"

	"github.com/birdayz/kflow/kcompile"
	"github.com/birdayz/kflow/kruntime"
)

type config struct {
	name            string
	log             logr.Logger
	meterProvider   metric.MeterProvider
	shutdownTimeout time.Duration
	maxNodes        int
	collaborators   []Collaborator
}

func newConfig(opts []Option) *config {
	cfg := &config{
		name:            "kflow",
		log:             logr.Discard(),
		shutdownTimeout: 30 * time.Second,
		maxNodes:        kcompile.DefaultMaxNodes,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *config) compileOptions() []kcompile.Option {
	return []kcompile.Option{
		kcompile.WithLogger(c.log.WithName("compile")),
		kcompile.WithMaxNodes(c.maxNodes),
	}
}

func (c *config) runtimeOptions() []kruntime.Option {
	opts := []kruntime.Option{
		kruntime.WithName(c.name),
		kruntime.WithLogger(c.log.WithName("runtime")),
	}
	if c.meterProvider != nil {
		opts = append(opts, kruntime.WithMeterProvider(c.meterProvider))
	}
	return opts
}

// Option configures Builder.Build.
type Option func(*config)

// WithName names the app in logs, metrics and profiler labels.
var WithName = func(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithLog sets the logger for the application.
var WithLog = func(log logr.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithMeterProvider enables runtime metrics.
var WithMeterProvider = func(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}

// WithShutdownTimeout bounds how long Close waits for Run to return.
var WithShutdownTimeout = func(d time.Duration) Option {
	return func(c *config) {
		c.shutdownTimeout = d
	}
}

// WithMaxNodes limits the size of the graph. See kcompile.WithMaxNodes.
var WithMaxNodes = func(n int) Option {
	return func(c *config) {
		c.maxNodes = n
	}
}

// WithCollaborator adds a collaborator that App runs next to the scheduler.
var WithCollaborator = func(collab Collaborator) Option {
	return func(c *config) {
		c.collaborators = append(c.collaborators, collab)
	}
}
