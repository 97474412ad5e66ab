// Package codec serializes records (attribute bags) and other cached values
// to bytes. Msgpack is the default record codec.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
