package recordcache

import (
	"cmp"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/unkn0wn-root/recordcache/collate"
)

// Apply filters records by the constraints of q, sorts them by its sort
// orders and truncates to its limit. The input slice is not modified.
// Applying the same query to its own output returns the output unchanged.
func Apply(records []Record, q *Query, coll collate.Collator) []Record {
	out := Filter(records, q.Wheres(), coll)
	if q.Sorted() {
		Sort(out, q.SortOrders(), coll)
	}
	if n, ok := q.Limit(); ok && n < len(out) {
		out = out[:n]
	}
	return out
}

// Filter returns the records matching every condition. A condition with
// several values matches any of them.
func Filter(records []Record, conds []Condition, coll collate.Collator) []Record {
	coll = coalesceCollator(coll)
	out := make([]Record, 0, len(records))
next:
	for _, r := range records {
		for _, c := range conds {
			if !matchAny(r[c.Attr], c.Values, coll) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}

func matchAny(v any, values []any, coll collate.Collator) bool {
	for _, want := range values {
		if valuesEqual(v, want, coll) {
			return true
		}
	}
	return false
}

// Sort orders records in place, stable with respect to equal keys.
func Sort(records []Record, orders []SortOrder, coll collate.Collator) {
	if len(records) < 2 || len(orders) == 0 {
		return
	}
	slices.SortStableFunc(records, Comparator(orders, coll))
}

// Comparator composes one comparator per sort order into a total order.
// Ascending orders put nil first, descending orders put nil last.
func Comparator(orders []SortOrder, coll collate.Collator) func(a, b Record) int {
	coll = coalesceCollator(coll)
	fields := make([]func(a, b Record) int, len(orders))
	for i, o := range orders {
		attr, asc := o.Attr, o.Ascending
		fields[i] = func(a, b Record) int {
			c := compareValues(a[attr], b[attr], coll)
			if !asc {
				return -c
			}
			return c
		}
	}
	return func(a, b Record) int {
		for _, f := range fields {
			if c := f(a, b); c != 0 {
				return c
			}
		}
		return 0
	}
}

func coalesceCollator(c collate.Collator) collate.Collator {
	if c == nil {
		return collate.Fold
	}
	return c
}

type number struct {
	i     int64
	u     uint64
	f     float64
	kind  byte // 'i', 'u', 'f'
	valid bool
}

func asNumber(v any) number {
	switch x := v.(type) {
	case int:
		return number{i: int64(x), kind: 'i', valid: true}
	case int64:
		return number{i: x, kind: 'i', valid: true}
	case int32:
		return number{i: int64(x), kind: 'i', valid: true}
	case int16:
		return number{i: int64(x), kind: 'i', valid: true}
	case int8:
		return number{i: int64(x), kind: 'i', valid: true}
	case uint:
		return number{u: uint64(x), kind: 'u', valid: true}
	case uint64:
		return number{u: x, kind: 'u', valid: true}
	case uint32:
		return number{u: uint64(x), kind: 'u', valid: true}
	case uint16:
		return number{u: uint64(x), kind: 'u', valid: true}
	case uint8:
		return number{u: uint64(x), kind: 'u', valid: true}
	case float64:
		return number{f: x, kind: 'f', valid: true}
	case float32:
		return number{f: float64(x), kind: 'f', valid: true}
	}
	return number{}
}

func (n number) float() float64 {
	switch n.kind {
	case 'i':
		return float64(n.i)
	case 'u':
		return float64(n.u)
	}
	return n.f
}

func compareNumbers(a, b number) int {
	switch {
	case a.kind == 'i' && b.kind == 'i':
		return cmp.Compare(a.i, b.i)
	case a.kind == 'u' && b.kind == 'u':
		return cmp.Compare(a.u, b.u)
	case a.kind == 'i' && b.kind == 'u':
		if a.i < 0 {
			return -1
		}
		return cmp.Compare(uint64(a.i), b.u)
	case a.kind == 'u' && b.kind == 'i':
		return -compareNumbers(b, a)
	}
	// cmp.Compare orders NaN first
	return cmp.Compare(a.float(), b.float())
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}

// valuesEqual is the equality used for in-memory filtering. Numbers compare
// by value across widths, strings through the collator, times by instant.
// A string compared with a number matches the number's canonical form.
func valuesEqual(a, b any, coll collate.Collator) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	na, nb := asNumber(a), asNumber(b)
	sa, aStr := asString(a)
	sb, bStr := asString(b)
	switch {
	case na.valid && nb.valid:
		return compareNumbers(na, nb) == 0
	case aStr && bStr:
		return coll.Equal(sa, sb)
	case aStr && nb.valid:
		return strings.TrimSpace(sa) == keyString(b)
	case na.valid && bStr:
		return keyString(a) == strings.TrimSpace(sb)
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two attribute values with nil before everything.
// Values of unrelated types order by a fixed type rank so the result is
// still a total order.
func compareValues(a, b any, coll collate.Collator) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ra {
	case 1:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case 2:
		return compareNumbers(asNumber(a), asNumber(b))
	case 3:
		return a.(time.Time).Compare(b.(time.Time))
	case 4:
		sa, _ := asString(a)
		sb, _ := asString(b)
		return coll.Compare(sa, sb)
	}
	return strings.Compare(keyString(a), keyString(b))
}

func rank(v any) int {
	if _, ok := v.(bool); ok {
		return 1
	}
	if asNumber(v).valid {
		return 2
	}
	if _, ok := v.(time.Time); ok {
		return 3
	}
	if _, ok := asString(v); ok {
		return 4
	}
	return 5
}
