package codec

import "encoding/json"

// JSON is a Codec backed by encoding/json. Numbers decode as float64 when V
// holds them in interface values; records compare numerics by value so this
// round trip is lossless for equality and ordering up to 2^53.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
