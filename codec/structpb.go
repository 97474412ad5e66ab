package codec

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Struct encodes attribute bags as google.protobuf.Struct messages, which
// lets non-Go workers read the same cache entries.
//
// The protobuf Struct type only knows null, bool, number, string, list and
// struct. Integers therefore come back as float64 and time.Time values are
// written as RFC3339Nano strings.
type Struct[V ~map[string]any] struct{}

func (Struct[V]) Encode(v V) ([]byte, error) {
	m := make(map[string]any, len(v))
	for k, val := range v {
		m[k] = structValue(val)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("structpb encode: %w", err)
	}
	return proto.Marshal(s)
}

func (Struct[V]) Decode(b []byte) (V, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return V(s.AsMap()), nil
}

func structValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case uint8:
		return uint64(t)
	case uint16:
		return uint64(t)
	default:
		return v
	}
}
