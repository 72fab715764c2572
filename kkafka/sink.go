package kkafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/birdayz/kflow/kgraph"
	"github.com/birdayz/kflow/khandoff"
	"github.com/birdayz/kflow/kops"
	"github.com/birdayz/kflow/kruntime"
	"github.com/birdayz/kflow/kserde"
)

//go:generate mockgen -destination=mock_kkafka/producer.go -package=mock_kkafka . Producer

// Producer is the part of *kgo.Client a Sink uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type sinkConfig[T any] struct {
	key func(T) []byte
}

type SinkOption[T any] func(*sinkConfig[T])

// WithKey derives the record key from an item. Without it records are
// produced without a key.
func WithKey[T any](fn func(T) []byte) SinkOption[T] {
	return func(c *sinkConfig[T]) {
		c.key = fn
	}
}

// Sink produces every item it receives to topic. All items of one run are
// produced as one batch, and the run only succeeds once the broker has
// acknowledged the whole batch.
func Sink[T any](p Producer, topic string, ser kserde.Serializer[T], opts ...SinkOption[T]) *kops.Operator {
	var cfg sinkConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}

	return kops.New(kops.ForEachSpec, &kruntime.Body{
		In: map[kgraph.Port]khandoff.Elem{kgraph.ElidedPort: khandoff.Of[T]()},
		Run: func(c *kruntime.Context, io *kruntime.IO) error {
			items := kruntime.Input[T](io, kgraph.ElidedPort).TakeAll()
			if len(items) == 0 {
				return nil
			}

			recs := make([]*kgo.Record, 0, len(items))
			for _, item := range items {
				v, err := ser(item)
				if err != nil {
					return fmt.Errorf("encode record for %s: %w", topic, err)
				}
				r := &kgo.Record{Topic: topic, Value: v}
				if cfg.key != nil {
					r.Key = cfg.key(item)
				}
				recs = append(recs, r)
			}

			if err := p.ProduceSync(c.Context(), recs...).FirstErr(); err != nil {
				return fmt.Errorf("produce to %s: %w", topic, err)
			}
			c.Logger().V(2).Info("Produced", "topic", topic, "records", len(recs))
			return nil
		},
	})
}
