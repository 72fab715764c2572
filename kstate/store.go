// Package kstate holds key/value state owned by operators. Stores are used
// from the scheduler goroutine only and need no locking.
package kstate

import (
	"context"
	"errors"
	"iter"
)

var (
	ErrKeyNotFound = errors.New("store: key not found")
	ErrClosed      = errors.New("store: closed")
)

// Store is a typed key/value store.
type Store[K comparable, V any] interface {
	// Get returns (value, true, nil) if found and (zero, false, nil) if not.
	Get(ctx context.Context, key K) (V, bool, error)

	Set(ctx context.Context, key K, value V) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key K) error

	// All iterates over every entry. The order is defined by the
	// implementation.
	All(ctx context.Context) iter.Seq2[K, V]

	Close() error
}

// Backend is byte-oriented storage that NewTyped turns into a Store.
type Backend interface {
	// Get returns ErrKeyNotFound for missing keys.
	Get(k []byte) ([]byte, error)
	Set(k, v []byte) error
	Delete(k []byte) error
	// All iterates in ascending key order.
	All() iter.Seq2[[]byte, []byte]
	Flush() error
	Close() error
}
