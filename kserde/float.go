package kserde

import (
	"encoding/binary"
	"math"
)

var Float64Serializer = func(data float64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, math.Float64bits(data)), nil
}

var Float64Deserializer = func(data []byte) (float64, error) {
	if err := checkLen("float64", data, 8); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
}

var Float64 = New(Float64Serializer, Float64Deserializer)
