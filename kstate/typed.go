package kstate

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/birdayz/kflow/kserde"
)

type typedStore[K comparable, V any] struct {
	backend Backend
	keys    kserde.Serde[K]
	values  kserde.Serde[V]
	log     logr.Logger
}

// NewTyped adapts a byte Backend to a Store using the given serdes. Entries
// that fail to decode during All are logged and skipped.
func NewTyped[K comparable, V any](b Backend, keys kserde.Serde[K], values kserde.Serde[V], log logr.Logger) Store[K, V] {
	return &typedStore[K, V]{backend: b, keys: keys, values: values, log: log}
}

func (s *typedStore[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	k, err := s.keys.Serializer(key)
	if err != nil {
		return zero, false, fmt.Errorf("encode key: %w", err)
	}
	raw, err := s.backend.Get(k)
	if errors.Is(err, ErrKeyNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	v, err := s.values.Deserializer(raw)
	if err != nil {
		return zero, false, fmt.Errorf("decode value: %w", err)
	}
	return v, true, nil
}

func (s *typedStore[K, V]) Set(ctx context.Context, key K, value V) error {
	k, err := s.keys.Serializer(key)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	v, err := s.values.Serializer(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	return s.backend.Set(k, v)
}

func (s *typedStore[K, V]) Delete(ctx context.Context, key K) error {
	k, err := s.keys.Serializer(key)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	return s.backend.Delete(k)
}

func (s *typedStore[K, V]) All(ctx context.Context) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for kb, vb := range s.backend.All() {
			k, err := s.keys.Deserializer(kb)
			if err != nil {
				s.log.Error(err, "Skipping undecodable key")
				continue
			}
			v, err := s.values.Deserializer(vb)
			if err != nil {
				s.log.Error(err, "Skipping undecodable value")
				continue
			}
			if !yield(k, v) {
				return
			}
		}
	}
}

func (s *typedStore[K, V]) Close() error {
	return multierr.Append(s.backend.Flush(), s.backend.Close())
}
