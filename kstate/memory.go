package kstate

import (
	"context"
	"iter"

	"golang.org/x/exp/slices"
)

type memoryStore[K comparable, V any] struct {
	values map[K]V
	// keys keeps insertion order, so All is deterministic.
	keys   []K
	closed bool
}

// NewMemory returns a Store kept in a map. All yields entries in the order
// their keys were first set.
func NewMemory[K comparable, V any]() Store[K, V] {
	return &memoryStore[K, V]{values: map[K]V{}}
}

func (s *memoryStore[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	if s.closed {
		var zero V
		return zero, false, ErrClosed
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memoryStore[K, V]) Set(ctx context.Context, key K, value V) error {
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
	return nil
}

func (s *memoryStore[K, V]) Delete(ctx context.Context, key K) error {
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	if i := slices.Index(s.keys, key); i >= 0 {
		s.keys = slices.Delete(s.keys, i, i+1)
	}
	return nil
}

func (s *memoryStore[K, V]) All(ctx context.Context) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if s.closed {
			return
		}
		for _, k := range slices.Clone(s.keys) {
			v, ok := s.values[k]
			if !ok {
				continue
			}
			if !yield(k, v) {
				return
			}
		}
	}
}

func (s *memoryStore[K, V]) Close() error {
	s.closed = true
	s.values = nil
	s.keys = nil
	return nil
}
