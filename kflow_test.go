package kflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"go.uber.org/mock/gomock"

	"github.com/birdayz/kflow"
	"github.com/birdayz/kflow/kdiag"
	"github.com/birdayz/kflow/kgraph"
	"github.com/birdayz/kflow/kops"
	"github.com/birdayz/kflow/kruntime"
)

func TestLinearPipeline(t *testing.T) {
	var out []int

	b := kflow.NewBuilder()
	src := b.AddNode("source", kops.SourceIter([]int{1, 2, 3}))
	double := b.AddNode("double", kops.Map(func(x int) int { return x * 2 }))
	sink := b.AddNode("sink", kops.Collect(&out))
	b.Connect(src, double)
	b.Connect(double, sink)

	app, err := b.Build()
	assert.NoError(t, err)
	assert.Equal(t, 1, len(b.Program().Subgraphs()))

	ctx := context.Background()
	_, err = app.Graph().RunAvailable(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, out)

	ran, err := app.Graph().RunAvailable(ctx)
	assert.NoError(t, err)
	assert.False(t, ran)
	assert.NoError(t, app.Close())
}

func TestTickLoop(t *testing.T) {
	var out []int

	b := kflow.NewBuilder()
	src := b.AddNode("source", kops.SourceIter([]int{0}))
	union := b.AddNode("union", kops.Union[int]())
	below := b.AddNode("below", kops.Filter(func(x int) bool { return x < 3 }))
	inc := b.AddNode("inc", kops.Map(func(x int) int { return x + 1 }))
	tee := b.AddNode("tee", kops.Tee[int]())
	prev := b.AddNode("prev", kops.DeferTick[int]())
	sink := b.AddNode("sink", kops.Collect(&out))

	b.Connect(src, union)
	b.Connect(union, below)
	b.Connect(below, inc)
	b.Connect(inc, tee)
	b.Connect(tee, sink)
	b.Connect(tee, prev)
	b.Connect(prev, union)

	app, err := b.Build()
	assert.NoError(t, err)

	_, err = app.Graph().RunAvailable(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, out)
	assert.Equal(t, uint64(4), app.Graph().CurrentTick())
}

func TestDifferenceAcrossStrata(t *testing.T) {
	var out []string

	b := kflow.NewBuilder()
	all := b.AddNode("all", kops.SourceIter([]string{"a", "b", "c", "d"}))
	banned := b.AddNode("banned", kops.SourceIter([]string{"b", "d"}))
	diff := b.AddNode("diff", kops.Difference[string]())
	sink := b.AddNode("sink", kops.Collect(&out))
	b.ConnectPorts(all, kgraph.ElidedPort, diff, kops.DifferencePos)
	b.ConnectPorts(banned, kgraph.ElidedPort, diff, kops.DifferenceNeg)
	b.Connect(diff, sink)

	app, err := b.Build()
	assert.NoError(t, err)
	assert.Equal(t, 2, b.Program().NumStrata())

	_, err = app.Graph().RunAvailable(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, out)
}

// The negative input arrives through a handoff the caller placed. It must
// still be complete before diff runs, within the same tick.
func TestDifferenceThroughHandoff(t *testing.T) {
	var out []string

	b := kflow.NewBuilder()
	src := b.AddNode("source", kops.SourceIter([]string{"a", "b"}))
	tee := b.AddNode("tee", kops.Tee[string]())
	h := b.AddHandoff("h")
	diff := b.AddNode("diff", kops.Difference[string]())
	sink := b.AddNode("sink", kops.Collect(&out))
	b.Connect(src, tee)
	b.ConnectPorts(tee, kgraph.ElidedPort, diff, kops.DifferencePos)
	b.Connect(tee, h)
	b.ConnectPorts(h, kgraph.ElidedPort, diff, kops.DifferenceNeg)
	b.Connect(diff, sink)

	app, err := b.Build()
	assert.NoError(t, err)
	prog := b.Program()
	assert.Equal(t, 2, prog.NumStrata())
	assert.Equal(t, 0, len(prog.Diagnostics()))
	for _, sg := range prog.Subgraphs() {
		assert.False(t, sg.TickBoundary, "subgraph %s", sg.Name)
	}

	_, err = app.Graph().RunTick(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, len(out), "got %v", out)
}

func TestBuilderErrors(t *testing.T) {
	t.Run("duplicate name", func(t *testing.T) {
		b := kflow.NewBuilder()
		b.AddNode("x", kops.Identity[int]())
		b.AddNode("x", kops.Identity[int]())
		_, err := b.Build()
		assert.IsError(t, err, kflow.ErrNodeAlreadyExists)
		assert.Contains(t, err.Error(), "kflow_test.go")
	})

	t.Run("nil node", func(t *testing.T) {
		b := kflow.NewBuilder()
		b.Connect(b.AddNode("x", nil), b.AddNode("y", kops.Identity[int]()))
		_, err := b.Build()
		assert.IsError(t, err, kflow.ErrNilNode)
	})

	t.Run("cycle", func(t *testing.T) {
		b := kflow.NewBuilder()
		src := b.AddNode("source", kops.SourceIter([]int{1}))
		union := b.AddNode("union", kops.Union[int]())
		double := b.AddNode("double", kops.Map(func(x int) int { return x * 2 }))
		b.Connect(src, union)
		b.Connect(union, double)
		b.Connect(double, union)

		_, err := b.Build()
		ds, ok := kdiag.FromError(err)
		assert.True(t, ok)
		assert.Equal(t, "cycle with no delay: union -> double -> union", ds.Errors()[0].Message)
		assert.Contains(t, ds.Errors()[0].Span.String(), "kflow_test.go:")
	})

	t.Run("type mismatch", func(t *testing.T) {
		b := kflow.NewBuilder()
		src := b.AddNode("source", kops.SourceIter([]int{1}))
		sink := b.AddNode("sink", kops.ForEach(func(string) {}))
		b.Connect(src, sink)
		_, err := b.Build()
		assert.Error(t, err)
		assert.IsError(t, err, kruntime.ErrTypeMismatch)
	})
}

// feeder sends words to inbox and blocks until it is stopped.
func feeder(ctrl *gomock.Controller, inbox *kops.Inbox[string], words ...string) *MockCollaborator {
	c := NewMockCollaborator(ctrl)
	c.EXPECT().Run(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		for _, w := range words {
			if err := inbox.Send(w); err != nil {
				return err
			}
		}
		<-ctx.Done()
		return ctx.Err()
	})
	c.EXPECT().Close().DoAndReturn(func() error {
		inbox.Close()
		return nil
	})
	return c
}

func TestAppRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	src, inbox := kops.SourceStream[string]()
	got := make(chan string, 8)

	b := kflow.NewBuilder()
	upper := b.AddNode("upper", kops.Map(strings.ToUpper))
	b.Connect(b.AddNode("source", src), upper)
	b.Connect(upper, b.AddNode("sink", kops.ForEach(func(s string) { got <- s })))

	app, err := b.Build(kflow.WithCollaborator(feeder(ctrl, inbox, "hello", "world")), kflow.WithName("upper"))
	assert.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	for _, want := range []string{"HELLO", "WORLD"} {
		select {
		case s := <-got:
			assert.Equal(t, want, s)
		case <-time.After(10 * time.Second):
			t.Fatal("timed out")
		}
	}

	assert.NoError(t, app.Close())
	assert.NoError(t, <-done)
	assert.NoError(t, app.Close())
}

func TestAppCollaboratorFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	boom := errors.New("boom")

	c := NewMockCollaborator(ctrl)
	c.EXPECT().Run(gomock.Any()).Return(boom)
	c.EXPECT().Close().Return(nil)

	b := kflow.NewBuilder()
	src, _ := kops.SourceStream[string]()
	b.Connect(b.AddNode("source", src), b.AddNode("sink", kops.ForEach(func(string) {})))
	app, err := b.Build(kflow.WithCollaborator(c))
	assert.NoError(t, err)

	assert.IsError(t, app.Run(context.Background()), boom)
	assert.NoError(t, app.Close())
}

// Once the reactor is closed the graph can never run again, so Run stops
// the collaborators instead of waiting for them.
func TestAppReactorClosed(t *testing.T) {
	ctrl := gomock.NewController(t)
	started := make(chan struct{})

	c := NewMockCollaborator(ctrl)
	c.EXPECT().Run(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	c.EXPECT().Close().Return(nil)

	b := kflow.NewBuilder()
	sourceToSink(b)
	app, err := b.Build(kflow.WithCollaborator(c))
	assert.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()
	<-started
	app.Reactor().Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after the reactor was closed")
	}
	assert.NoError(t, app.Close())
}

func sourceToSink(b *kflow.Builder) {
	b.Connect(b.AddNode("source", kops.SourceIter([]int{1})), b.AddNode("sink", kops.ForEach(func(int) {})))
}

func TestAppShutdownTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	started, release := make(chan struct{}), make(chan struct{})
	defer close(release)

	c := NewMockCollaborator(ctrl)
	c.EXPECT().Run(gomock.Any()).DoAndReturn(func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	c.EXPECT().Close().Return(nil)

	b := kflow.NewBuilder()
	sourceToSink(b)
	app, err := b.Build(kflow.WithCollaborator(c), kflow.WithShutdownTimeout(10*time.Millisecond))
	assert.NoError(t, err)

	go func() { _ = app.Run(context.Background()) }()
	<-started

	assert.IsError(t, app.Close(), kflow.ErrShutdownTimeout)
}

func TestAppCloseBeforeRun(t *testing.T) {
	b := kflow.NewBuilder()
	sourceToSink(b)
	app := b.MustBuild()
	assert.NoError(t, app.Close())

	// The reactor is closed, so Run returns right away.
	assert.NoError(t, app.Run(context.Background()))
}
