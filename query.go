package recordcache

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// AttrType is the declared type of an attribute in an entity schema.
type AttrType uint8

const (
	Other AttrType = iota
	Integer
	String
	Float
	Bool
	Time
)

func (t AttrType) String() string {
	switch t {
	case Integer:
		return "integer"
	case String:
		return "string"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Time:
		return "time"
	default:
		return "other"
	}
}

// ParseAttrType accepts the names produced by AttrType.String.
func ParseAttrType(s string) (AttrType, bool) {
	switch strings.ToLower(s) {
	case "integer", "int":
		return Integer, true
	case "string", "text":
		return String, true
	case "float":
		return Float, true
	case "bool", "boolean":
		return Bool, true
	case "time", "datetime":
		return Time, true
	case "other":
		return Other, true
	}
	return Other, false
}

// Condition is one equality (single value) or IN (several values) constraint.
type Condition struct {
	Attr   string
	Values []any
}

type SortOrder struct {
	Attr      string
	Ascending bool
}

// Query describes a lookup: equality/IN constraints, sort orders and an
// optional limit. Building a query never touches a store. A Query must not
// be mutated once it has been handed to a Dispatcher.
type Query struct {
	wheres   map[string][]any
	attrs    []string // insertion order, for String
	orders   []SortOrder
	limit    int
	hasLimit bool
	key      atomic.Pointer[string] // memoized CacheKey
}

func NewQuery(conds ...Condition) *Query {
	q := &Query{wheres: make(map[string][]any, len(conds))}
	for _, c := range conds {
		q.Where(c.Attr, c.Values...)
	}
	return q
}

// Where constrains attr to the given values. A single slice argument is
// expanded. Calling Where again for the same attribute replaces it.
func (q *Query) Where(attr string, values ...any) *Query {
	if attr == "" {
		return q
	}
	if q.wheres == nil {
		q.wheres = make(map[string][]any)
	}
	if _, ok := q.wheres[attr]; !ok {
		q.attrs = append(q.attrs, attr)
	}
	vals := flatten(values)
	q.wheres[attr] = append([]any(nil), vals...)
	q.key.Store(nil)
	return q
}

// OrderBy appends a sort order.
func (q *Query) OrderBy(attr string, ascending bool) *Query {
	q.orders = append(q.orders, SortOrder{Attr: attr, Ascending: ascending})
	q.key.Store(nil)
	return q
}

// SetLimit sets the row limit. Negative values clear it.
func (q *Query) SetLimit(n int) *Query {
	q.limit, q.hasLimit = n, n >= 0
	if !q.hasLimit {
		q.limit = 0
	}
	q.key.Store(nil)
	return q
}

// Limit returns the row limit and whether one is set.
func (q *Query) Limit() (int, bool) { return q.limit, q.hasLimit }

func (q *Query) Has(attr string) bool {
	_, ok := q.wheres[attr]
	return ok
}

// Values returns the raw values constraining attr.
func (q *Query) Values(attr string) []any { return q.wheres[attr] }

// Wheres returns the constraints in insertion order.
func (q *Query) Wheres() []Condition {
	out := make([]Condition, 0, len(q.attrs))
	for _, a := range q.attrs {
		out = append(out, Condition{Attr: a, Values: q.wheres[a]})
	}
	return out
}

func (q *Query) Sorted() bool { return len(q.orders) > 0 }

func (q *Query) SortOrders() []SortOrder { return append([]SortOrder(nil), q.orders...) }

// Clone returns a deep copy of the query structure (values are shared).
func (q *Query) Clone() *Query {
	c := &Query{
		wheres:   make(map[string][]any, len(q.wheres)),
		attrs:    append([]string(nil), q.attrs...),
		orders:   append([]SortOrder(nil), q.orders...),
		limit:    q.limit,
		hasLimit: q.hasLimit,
	}
	for k, v := range q.wheres {
		c.wheres[k] = v
	}
	c.key.Store(q.key.Load())
	return c
}

// Without returns a copy of q with the constraint on attr removed. Strategies
// use it to build the residual query they hand to in-memory refinement.
func (q *Query) Without(attr string) *Query {
	c := q.Clone()
	if _, ok := c.wheres[attr]; !ok {
		return c
	}
	delete(c.wheres, attr)
	for i, a := range c.attrs {
		if a == attr {
			c.attrs = append(c.attrs[:i], c.attrs[i+1:]...)
			break
		}
	}
	c.key.Store(nil)
	return c
}

// WhereValues returns the values constraining attr coerced to t, or nil.
//
// Integer lookups require every value to be a positive integer (ids);
// anything else yields nil so non-id shaped queries never reach id based
// strategies. String lookups render values as strings. An empty or all-nil
// list yields nil.
func (q *Query) WhereValues(attr string, t AttrType) []any {
	vals, ok := q.wheres[attr]
	if !ok || len(vals) == 0 {
		return nil
	}
	out := make([]any, 0, len(vals))
	switch t {
	case Integer:
		for _, v := range vals {
			n, ok := positiveInt(v)
			if !ok {
				return nil
			}
			out = append(out, n)
		}
	case String:
		for _, v := range vals {
			if v != nil {
				out = append(out, keyString(v))
			}
		}
	default:
		for _, v := range vals {
			if v != nil {
				out = append(out, v)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// WhereValue is WhereValues restricted to exactly one value.
func (q *Query) WhereValue(attr string, t AttrType) (any, bool) {
	vals := q.WhereValues(attr, t)
	if len(vals) != 1 {
		return nil, false
	}
	return vals[0], true
}

// WhereIDs returns the positive integer ids constraining attr, or nil.
func (q *Query) WhereIDs(attr string) []int64 {
	vals := q.WhereValues(attr, Integer)
	if vals == nil {
		return nil
	}
	out := make([]int64, len(vals))
	for i, v := range vals {
		out[i] = v.(int64)
	}
	return out
}

func positiveInt(v any) (int64, bool) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case int32:
		n = int64(x)
	case int16:
		n = int64(x)
	case int8:
		n = int64(x)
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint8:
		n = int64(x)
	case float64:
		if x != math.Trunc(x) || x >= math.MaxInt64 {
			return 0, false
		}
		n = int64(x)
	case float32:
		if float64(x) != math.Trunc(float64(x)) || float64(x) >= math.MaxInt64 {
			return 0, false
		}
		n = int64(x)
	case string:
		p, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false
		}
		n = p
	case []byte:
		return positiveInt(string(x))
	default:
		return 0, false
	}
	return n, n > 0
}

// CacheKey is a deterministic encoding of limit, sort orders and
// constraints: L<limit>+<attr>:<A|D>,...?<attr>=<values>&...
// Constraints are ordered by attribute so insertion order does not matter.
// Keys are only unique within one entity type. Safe for concurrent use on
// a query that is no longer being built.
func (q *Query) CacheKey() string {
	if k := q.key.Load(); k != nil {
		return *k
	}
	var b strings.Builder
	b.WriteByte('L')
	if q.hasLimit {
		b.WriteString(strconv.Itoa(q.limit))
	}
	b.WriteByte('+')
	for i, o := range q.orders {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(o.Attr)
		if o.Ascending {
			b.WriteString(":A")
		} else {
			b.WriteString(":D")
		}
	}
	b.WriteByte('?')
	attrs := make([]string, 0, len(q.wheres))
	for a := range q.wheres {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)
	for i, a := range attrs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(a)
		b.WriteByte('=')
		vals := q.wheres[a]
		if len(vals) != 1 {
			b.WriteByte('[')
		}
		for j, v := range vals {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(keyValue(v))
		}
		if len(vals) != 1 {
			b.WriteByte(']')
		}
	}
	k := b.String()
	q.key.Store(&k)
	return k
}

// keyValue encodes one value for CacheKey. Strings are quoted so "1" and 1
// produce different keys.
func keyValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "~"
	case string:
		return strconv.Quote(x)
	case []byte:
		return strconv.Quote(string(x))
	case time.Time:
		return "t" + x.UTC().Format(time.RFC3339Nano)
	default:
		return keyString(v)
	}
}

// String renders the query in a SQL-like form for logs.
func (q *Query) String() string {
	var b strings.Builder
	b.WriteString("SELECT")
	for i, c := range q.Wheres() {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(c.Attr)
		if len(c.Values) == 1 {
			b.WriteString(" = ")
			b.WriteString(keyValue(c.Values[0]))
			continue
		}
		b.WriteString(" IN (")
		for j, v := range c.Values {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(keyValue(v))
		}
		b.WriteByte(')')
	}
	for i, o := range q.orders {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(o.Attr)
		if o.Ascending {
			b.WriteString(" ASC")
		} else {
			b.WriteString(" DESC")
		}
	}
	if q.hasLimit {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.limit))
	}
	return b.String()
}
