package kflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/birdayz/kflow/kruntime"
)

var (
	ErrShutdownTimeout = errors.New("shutdown timed out")
	ErrAlreadyRunning  = errors.New("app is already running")
)

//go:generate mockgen -destination=mock_collaborator_test.go -package=kflow_test . Collaborator

// Collaborator runs next to the scheduler and feeds it from the outside,
// typically by sending to an inbox and notifying the reactor. Run must
// return when ctx is done.
type Collaborator interface {
	Run(ctx context.Context) error
	Close() error
}

// App runs a built graph together with its collaborators.
type App struct {
	graph           *kruntime.Graph
	log             logr.Logger
	collaborators   []Collaborator
	shutdownTimeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	closeOnce sync.Once
	closeErr  error
}

func newApp(graph *kruntime.Graph, cfg *config) *App {
	return &App{
		graph:           graph,
		log:             cfg.log.WithValues("app", cfg.name),
		collaborators:   cfg.collaborators,
		shutdownTimeout: cfg.shutdownTimeout,
	}
}

// Graph returns the runtime graph. It must not be driven directly while
// Run is active.
func (a *App) Graph() *kruntime.Graph {
	return a.graph
}

// Reactor returns the reactor of the graph.
func (a *App) Reactor() *kruntime.Reactor {
	return a.graph.Reactor()
}

// Run blocks until ctx is done, Close is called or the scheduler or a
// collaborator fails. A shutdown through ctx or Close returns nil.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true
	done := a.done
	a.mu.Unlock()

	defer close(done)
	defer cancel()

	a.log.Info("Starting app", "collaborators", len(a.collaborators), "graph_id", a.graph.ID().String())

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		err := a.graph.Run(gctx)
		if errors.Is(err, kruntime.ErrReactorClosed) {
			// Nothing can wake the graph anymore; stop the collaborators.
			cancel()
			return nil
		}
		return err
	})
	for _, c := range a.collaborators {
		grp.Go(func() error {
			return c.Run(gctx)
		})
	}

	err := grp.Wait()
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		a.log.Error(err, "App stopped")
		return err
	}
	a.log.Info("App stopped")
	return nil
}

// Close stops Run, waits up to the shutdown timeout for it to return and
// closes the collaborators and the graph. It is safe to call before Run and
// more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.close()
	})
	return a.closeErr
}

func (a *App) close() error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(a.shutdownTimeout):
			err = multierr.Append(err, fmt.Errorf("%w after %s", ErrShutdownTimeout, a.shutdownTimeout))
		}
	}

	for _, c := range a.collaborators {
		if cerr := c.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close collaborator: %w", cerr))
		}
	}
	return multierr.Append(err, a.graph.Close())
}
