package recordcache

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Record is the opaque attribute bag cached for one row.
type Record map[string]any

func (r Record) Get(attr string) any { return r[attr] }

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type Action uint8

const (
	Create Action = iota + 1
	Update
	Destroy
)

func (a Action) String() string {
	switch a {
	case Create:
		return "create"
	case Update:
		return "update"
	case Destroy:
		return "destroy"
	default:
		return "action(" + strconv.Itoa(int(a)) + ")"
	}
}

// Change describes one committed mutation. Record holds the state after an
// create or update and the last known state for a destroy. Previous holds the
// old values of the attributes an update changed.
type Change struct {
	Action   Action
	Record   Record
	Previous map[string]any
}

// Changed reports whether attr changed in an update and returns its old value.
func (c Change) Changed(attr string) (old any, ok bool) {
	if c.Action != Update {
		return nil, false
	}
	old, ok = c.Previous[attr]
	return old, ok
}

// Noop is true for updates that changed nothing observable.
func (c Change) Noop() bool {
	return c.Action == Update && len(c.Previous) == 0
}

// keyString renders v the way it appears in cache keys and id lists.
// Integral floats render as integers so 7, int64(7) and 7.0 share a key.
func keyString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// flatten turns a variadic value list into a flat []any, expanding a single
// slice argument so Where("id", []int{1, 2}) equals Where("id", 1, 2).
func flatten(values []any) []any {
	if len(values) != 1 {
		return values
	}
	switch x := values[0].(type) {
	case nil, string, []byte:
		return values
	case []any:
		return x
	}
	rv := reflect.ValueOf(values[0])
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return values
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
