package kserde

var StringSerializer = func(data string) ([]byte, error) {
	return []byte(data), nil
}

var StringDeserializer = func(data []byte) (string, error) {
	return string(data), nil
}

var String = New(StringSerializer, StringDeserializer)

// Bytes passes payloads through. Deserialized slices are copies.
var Bytes = New(
	func(data []byte) ([]byte, error) { return data, nil },
	func(data []byte) ([]byte, error) { return append([]byte(nil), data...), nil },
)
