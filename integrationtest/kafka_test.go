package integrationtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/go-logr/stdr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/birdayz/kflow"
	"github.com/birdayz/kflow/kkafka"
	"github.com/birdayz/kflow/kops"
	"github.com/birdayz/kflow/kserde"
)

func TestKafkaRoundTrip(t *testing.T) {
	broker := startBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(broker.BootstrapServers()...))
	assert.NoError(t, err)
	defer client.Close()

	assert.NoError(t, kkafka.EnsureTopics(ctx, client, 3, "words", "shouted"))
	// Creating existing topics is not an error.
	assert.NoError(t, kkafka.EnsureTopics(ctx, client, 3, "words"))

	var want []string
	for i := range 20 {
		word := fmt.Sprintf("word-%d", i)
		want = append(want, strings.ToUpper(word))
		rec := &kgo.Record{Topic: "words", Key: []byte(word), Value: []byte(word)}
		assert.NoError(t, client.ProduceSync(ctx, rec).FirstErr())
	}

	log := stdr.New(nil)
	src, err := kkafka.NewSource("round-trip", kserde.StringDeserializer,
		kkafka.WithBrokers(broker.BootstrapServers()...),
		kkafka.WithTopics("words"),
		kkafka.WithCommitInterval(100*time.Millisecond),
		kkafka.WithLogger(log),
	)
	assert.NoError(t, err)

	b := kflow.NewBuilder()
	in := b.AddNode("in", src.Operator())
	upper := b.AddNode("upper", kops.Map(func(r kkafka.Record[string]) kkafka.Record[string] {
		r.Value = strings.ToUpper(r.Value)
		return r
	}))
	out := b.AddNode("out", kkafka.Sink(client, "shouted",
		func(r kkafka.Record[string]) ([]byte, error) { return []byte(r.Value), nil },
		kkafka.WithKey(func(r kkafka.Record[string]) []byte { return r.Key }),
	))
	b.Connect(in, upper)
	b.Connect(upper, out)

	app, err := b.Build(kflow.WithName("round-trip"), kflow.WithLog(log), kflow.WithCollaborator(src))
	assert.NoError(t, err)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- app.Run(runCtx)
	}()

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.BootstrapServers()...),
		kgo.ConsumeTopics("shouted"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	assert.NoError(t, err)
	defer consumer.Close()

	var got []string
	for len(got) < len(want) {
		fetches := consumer.PollFetches(ctx)
		assert.NoError(t, ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			assert.Equal(t, strings.ToUpper(string(r.Key)), string(r.Value))
			got = append(got, string(r.Value))
		})
	}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)

	stop()
	err = <-done
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
	assert.NoError(t, app.Close())
}
