package kserde

import "encoding/binary"

// Int64Serializer writes big-endian bytes, so the encoded keys sort like the
// non-negative integers they hold.
var Int64Serializer = func(data int64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, uint64(data)), nil
}

var Int64Deserializer = func(data []byte) (int64, error) {
	if err := checkLen("int64", data, 8); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

var Int64 = New(Int64Serializer, Int64Deserializer)

var Int32Serializer = func(data int32) ([]byte, error) {
	return binary.BigEndian.AppendUint32(nil, uint32(data)), nil
}

var Int32Deserializer = func(data []byte) (int32, error) {
	if err := checkLen("int32", data, 4); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(data)), nil
}

var Int32 = New(Int32Serializer, Int32Deserializer)

// Int encodes int as 8 bytes regardless of the platform.
var Int = New(
	func(data int) ([]byte, error) { return Int64Serializer(int64(data)) },
	func(data []byte) (int, error) {
		v, err := Int64Deserializer(data)
		return int(v), err
	},
)
