// Package kkafka connects graphs to Kafka. A Source consumes topics on its
// own goroutine and hands records to the scheduler through the reactor; a
// Sink produces the items it receives.
package kkafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/birdayz/kflow/kgraph"
	"github.com/birdayz/kflow/khandoff"
	"github.com/birdayz/kflow/kops"
	"github.com/birdayz/kflow/kruntime"
	"github.com/birdayz/kflow/kserde"
)

var (
	ErrNoTopics  = errors.New("no topics to consume")
	ErrNoBrokers = errors.New("no brokers")
)

// Record is a decoded Kafka record.
type Record[T any] struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     T
	Timestamp time.Time
}

// committer is the part of *kgo.Client that commits offsets.
type committer interface {
	CommitOffsetsSync(ctx context.Context, uncommitted map[string]map[int32]kgo.EpochOffset, onDone func(*kgo.Client, *kmsg.OffsetCommitRequest, *kmsg.OffsetCommitResponse, error))
}

type topicPartition struct {
	topic     string
	partition int32
}

// Source consumes topics as part of a consumer group. Offsets are committed
// only for records the graph has taken from the source, so a crash
// re-delivers whatever was still waiting for the scheduler.
type Source[T any] struct {
	client         *kgo.Client
	committer      committer
	de             kserde.Deserializer[T]
	log            logr.Logger
	commitInterval time.Duration

	mu       sync.Mutex
	pending  []Record[T]
	consumed map[topicPartition]int64
	reactor  *kruntime.Reactor
	sg       kruntime.SubgraphID

	closeOnce sync.Once
}

type sourceConfig struct {
	brokers        []string
	group          string
	topics         []string
	commitInterval time.Duration
	log            logr.Logger
	extra          []kgo.Opt
}

type SourceOption func(*sourceConfig)

var WithBrokers = func(brokers ...string) SourceOption {
	return func(c *sourceConfig) {
		c.brokers = brokers
	}
}

var WithTopics = func(topics ...string) SourceOption {
	return func(c *sourceConfig) {
		c.topics = topics
	}
}

// WithCommitInterval sets how often consumed offsets are committed.
var WithCommitInterval = func(d time.Duration) SourceOption {
	return func(c *sourceConfig) {
		c.commitInterval = d
	}
}

var WithLogger = func(log logr.Logger) SourceOption {
	return func(c *sourceConfig) {
		c.log = log
	}
}

// WithClientOpts passes additional options to the Kafka client.
var WithClientOpts = func(opts ...kgo.Opt) SourceOption {
	return func(c *sourceConfig) {
		c.extra = append(c.extra, opts...)
	}
}

// NewSource creates a consumer in the given group. Automatic commits are
// disabled; the source commits what the graph consumed.
func NewSource[T any](group string, de kserde.Deserializer[T], opts ...SourceOption) (*Source[T], error) {
	cfg := sourceConfig{
		group:          group,
		commitInterval: 5 * time.Second,
		log:            logr.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if len(cfg.topics) == 0 {
		return nil, ErrNoTopics
	}

	kopts := append([]kgo.Opt{
		kgo.SeedBrokers(cfg.brokers...),
		kgo.ConsumerGroup(cfg.group),
		kgo.ConsumeTopics(cfg.topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}, cfg.extra...)
	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	s := newSource(de, cfg.log.WithValues("group", group))
	s.client = client
	s.committer = client
	s.commitInterval = cfg.commitInterval
	return s, nil
}

func newSource[T any](de kserde.Deserializer[T], log logr.Logger) *Source[T] {
	return &Source[T]{
		de:       de,
		log:      log,
		consumed: map[topicPartition]int64{},
	}
}

// Operator returns the source operator to add to a graph. It must be added
// to exactly one graph.
func (s *Source[T]) Operator() *kops.Operator {
	return kops.New(kops.SourceSpec, &kruntime.Body{
		Out: map[kgraph.Port]khandoff.Elem{kgraph.ElidedPort: khandoff.Of[Record[T]]()},
		Init: func(c *kruntime.Context) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.reactor = c.Reactor()
			s.sg = c.CurrentSubgraph()
			return nil
		},
		Run: func(c *kruntime.Context, io *kruntime.IO) error {
			kruntime.Output[Record[T]](io, kgraph.ElidedPort).GiveAll(s.take())
			return nil
		},
	})
}

// take hands pending records to the graph and marks them consumed.
func (s *Source[T]) take() []Record[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.pending
	s.pending = nil
	for _, r := range recs {
		s.consumed[topicPartition{r.Topic, r.Partition}] = r.Offset + 1
	}
	return recs
}

// deliver decodes a batch and wakes the source's subgraph.
func (s *Source[T]) deliver(recs []*kgo.Record) error {
	if len(recs) == 0 {
		return nil
	}
	decoded := make([]Record[T], 0, len(recs))
	for _, r := range recs {
		v, err := s.de(r.Value)
		if err != nil {
			return fmt.Errorf("decode record %s/%d@%d: %w", r.Topic, r.Partition, r.Offset, err)
		}
		decoded = append(decoded, Record[T]{
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    r.Offset,
			Key:       r.Key,
			Value:     v,
			Timestamp: r.Timestamp,
		})
	}

	s.mu.Lock()
	s.pending = append(s.pending, decoded...)
	reactor, sg := s.reactor, s.sg
	s.mu.Unlock()

	if reactor == nil {
		return nil
	}
	return reactor.Notify(sg)
}

// uncommitted returns the consumed offsets and forgets them.
func (s *Source[T]) uncommitted() map[string]map[int32]kgo.EpochOffset {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.consumed) == 0 {
		return nil
	}
	out := map[string]map[int32]kgo.EpochOffset{}
	for tp, off := range s.consumed {
		if out[tp.topic] == nil {
			out[tp.topic] = map[int32]kgo.EpochOffset{}
		}
		out[tp.topic][tp.partition] = kgo.EpochOffset{Epoch: -1, Offset: off}
	}
	s.consumed = map[topicPartition]int64{}
	return out
}

// restore puts back offsets whose commit failed. Offsets consumed since
// then are newer and win.
func (s *Source[T]) restore(offsets map[string]map[int32]kgo.EpochOffset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for topic, partitions := range offsets {
		for partition, eo := range partitions {
			tp := topicPartition{topic, partition}
			if cur, ok := s.consumed[tp]; !ok || cur < eo.Offset {
				s.consumed[tp] = eo.Offset
			}
		}
	}
}

// Run polls until ctx is done. It implements kflow.Collaborator.
func (s *Source[T]) Run(ctx context.Context) error {
	lastCommit := time.Now()
	for {
		fetches := s.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("fetch %s/%d: %w", fe.Topic, fe.Partition, fe.Err)
		}

		var recs []*kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			recs = append(recs, r)
		})
		if err := s.deliver(recs); err != nil {
			return err
		}

		if time.Since(lastCommit) >= s.commitInterval {
			if err := s.Commit(ctx); err != nil {
				return err
			}
			lastCommit = time.Now()
		}
	}
}

// Commit synchronously commits the offsets of consumed records.
func (s *Source[T]) Commit(ctx context.Context) error {
	if s.committer == nil {
		return nil
	}
	offsets := s.uncommitted()
	if offsets == nil {
		return nil
	}

	errCh := make(chan error, 1)
	s.committer.CommitOffsetsSync(ctx, offsets, func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
		if err != nil {
			errCh <- err
			return
		}
		for _, t := range resp.Topics {
			for _, p := range t.Partitions {
				if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
					errCh <- fmt.Errorf("commit %s/%d: %w", t.Topic, p.Partition, err)
					return
				}
			}
		}
		errCh <- nil
	})
	if err := <-errCh; err != nil {
		s.restore(offsets)
		return err
	}

	s.log.V(1).Info("Committed", "topics", len(offsets))
	return nil
}

// Close commits what was consumed and closes the client.
func (s *Source[T]) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.client == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = s.Commit(ctx)
		s.client.Close()
	})
	return err
}
