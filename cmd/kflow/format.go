package main

import (
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/birdayz/kflow/kproto"
	"github.com/birdayz/kflow/kserde"
)

// formats are the record value encodings selectable with kafka.format.
// The protobuf formats carry the text in a google.protobuf.StringValue.
var formats = map[string]kserde.Serde[string]{
	"string":    kserde.String,
	"proto":     wrapped(kproto.Serde[*wrapperspb.StringValue]()),
	"protojson": wrapped(kproto.JSON[*wrapperspb.StringValue]()),
}

func wrapped(s kserde.Serde[*wrapperspb.StringValue]) kserde.Serde[string] {
	return kserde.New(
		func(v string) ([]byte, error) {
			return s.Serializer(wrapperspb.String(v))
		},
		func(data []byte) (string, error) {
			msg, err := s.Deserializer(data)
			if err != nil {
				return "", err
			}
			return msg.GetValue(), nil
		},
	)
}

// format returns the codec for name, falling back to plain strings.
func format(name string) kserde.Serde[string] {
	if s, ok := formats[name]; ok {
		return s
	}
	return kserde.String
}
