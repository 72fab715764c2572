// Package kproto provides kserde codecs for protobuf messages.
package kproto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/birdayz/kflow/kserde"
)

// Serializer encodes messages in the protobuf wire format. Output is
// deterministic, so encoded messages can be used as state keys.
func Serializer[T proto.Message]() kserde.Serializer[T] {
	opts := proto.MarshalOptions{Deterministic: true}
	return func(v T) ([]byte, error) {
		return opts.Marshal(v)
	}
}

// Deserializer decodes the protobuf wire format into messages created by
// newFn.
//
// Example:
//
//	de := kproto.Deserializer(func() *pb.User { return &pb.User{} })
func Deserializer[T proto.Message](newFn func() T) kserde.Deserializer[T] {
	return func(data []byte) (T, error) {
		msg := newFn()
		if err := proto.Unmarshal(data, msg); err != nil {
			var zero T
			return zero, fmt.Errorf("unmarshal %s: %w", msg.ProtoReflect().Descriptor().FullName(), err)
		}
		return msg, nil
	}
}

// Serde returns a wire format codec for T. Messages are created through
// reflection on the zero value of T.
//
// Example:
//
//	serde := kproto.Serde[*pb.User]()
func Serde[T proto.Message]() kserde.Serde[T] {
	return kserde.New(Serializer[T](), Deserializer(newMessage[T]))
}

// JSON returns a codec for the canonical protobuf JSON mapping, for topics
// read by humans or non-protobuf consumers.
func JSON[T proto.Message]() kserde.Serde[T] {
	return kserde.New(
		func(v T) ([]byte, error) {
			return protojson.Marshal(v)
		},
		func(data []byte) (T, error) {
			msg := newMessage[T]()
			if err := protojson.Unmarshal(data, msg); err != nil {
				var zero T
				return zero, fmt.Errorf("unmarshal %s: %w", msg.ProtoReflect().Descriptor().FullName(), err)
			}
			return msg, nil
		},
	)
}

func newMessage[T proto.Message]() T {
	var zero T
	return zero.ProtoReflect().New().Interface().(T)
}
