// Package kserde converts values to and from bytes. Serdes are used by
// persistent operator state and by the Kafka collaborators.
package kserde

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidLength = errors.New("invalid encoded length")
)

type Serializer[T any] func(T) ([]byte, error)

type Deserializer[T any] func([]byte) (T, error)

// Serde pairs the two directions of a codec.
type Serde[T any] struct {
	Serializer   Serializer[T]
	Deserializer Deserializer[T]
}

// New builds a Serde from its two halves.
func New[T any](ser Serializer[T], de Deserializer[T]) Serde[T] {
	return Serde[T]{Serializer: ser, Deserializer: de}
}

func checkLen(kind string, data []byte, want int) error {
	if len(data) != want {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidLength, kind, want, len(data))
	}
	return nil
}
