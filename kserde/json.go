package kserde

import (
	"encoding/json"
	"fmt"
)

func JSONSerializer[T any]() Serializer[T] {
	return func(t T) ([]byte, error) {
		return json.Marshal(t)
	}
}

func JSONDeserializer[T any]() Deserializer[T] {
	return func(b []byte) (T, error) {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			var zero T
			return zero, fmt.Errorf("decode %T: %w", zero, err)
		}
		return v, nil
	}
}

// JSON encodes T with encoding/json.
func JSON[T any]() Serde[T] {
	return New(JSONSerializer[T](), JSONDeserializer[T]())
}
