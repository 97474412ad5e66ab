package recordcache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/recordcache/stats"
)

// Scope is one unit of work (typically one request). Query results fetched
// through a Dispatcher with a request cache are memoized per entity inside
// the Scope found in the context. Begin one with Registry.BeginScope and
// End it when the unit of work finishes.
type Scope struct {
	owner   *scopeSet
	buckets *xsync.MapOf[string, *bucket]
	group   singleflight.Group
	ended   atomic.Bool
}

type bucket struct {
	mu      sync.Mutex
	gen     uint64 // bumped on every clear
	results map[string][]Record
}

type scopeKey struct{}

// WithScope returns a context carrying s.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the live Scope carried by ctx.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	if !ok || s == nil || s.ended.Load() {
		return nil, false
	}
	return s, true
}

// End discards every memoized result and detaches the scope from its
// registry. Further fetches through it are not memoized.
func (s *Scope) End() {
	if s.ended.Swap(true) {
		return
	}
	s.owner.live.Delete(s)
	s.buckets.Clear()
}

// Clear drops the memoized results of one entity.
func (s *Scope) Clear(entity string) {
	if b, ok := s.buckets.Load(entity); ok {
		b.mu.Lock()
		b.gen++
		clear(b.results)
		b.mu.Unlock()
	}
}

// ClearAll drops every memoized result.
func (s *Scope) ClearAll() {
	s.buckets.Range(func(entity string, _ *bucket) bool {
		s.Clear(entity)
		return true
	})
}

// fetch returns a private copy of the memoized result for q or computes it. Concurrent
// identical fetches inside one scope share a single computation. A result
// computed across a Clear is returned to its callers but not memoized.
func (s *Scope) fetch(ctx context.Context, entity string, q *Query, compute func(context.Context) ([]Record, error)) ([]Record, bool, error) {
	b, _ := s.buckets.LoadOrCompute(entity, func() *bucket {
		return &bucket{results: make(map[string][]Record)}
	})
	key := q.CacheKey()

	b.mu.Lock()
	if res, ok := b.results[key]; ok {
		b.mu.Unlock()
		return cloneRecords(res), true, nil
	}
	gen := b.gen
	b.mu.Unlock()

	sfKey := entity + "\x00" + strconv.FormatUint(gen, 10) + "\x00" + key
	v, err, _ := s.group.Do(sfKey, func() (any, error) {
		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		if b.gen == gen && !s.ended.Load() {
			b.results[key] = res
		}
		b.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return cloneRecords(v.([]Record)), false, nil
}

// cloneRecords copies the slice and every record map, so callers editing a
// result never touch what the scope memoized.
func cloneRecords(recs []Record) []Record {
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}

// scopeSet tracks the live scopes of one registry so record changes can
// clear memoized results everywhere.
type scopeSet struct {
	live *xsync.MapOf[*Scope, struct{}]
}

func newScopeSet() *scopeSet {
	return &scopeSet{live: xsync.NewMapOf[*Scope, struct{}]()}
}

func (ss *scopeSet) begin() *Scope {
	s := &Scope{owner: ss, buckets: xsync.NewMapOf[string, *bucket]()}
	ss.live.Store(s, struct{}{})
	return s
}

func (ss *scopeSet) clear(entity string) {
	ss.live.Range(func(s *Scope, _ struct{}) bool {
		s.Clear(entity)
		return true
	})
}

func (ss *scopeSet) len() int { return ss.live.Size() }

// RequestCache memoizes whole query results of one entity inside the Scope
// of the current unit of work. It is not a source of truth: any change to
// the entity clears its bucket in every live scope.
type RequestCache struct {
	entity string
	scopes *scopeSet
	log    Logger
	stats  *stats.Registry
}

func (rc *RequestCache) Attribute() string { return requestCacheAttr }

// Fetch returns the memoized result for q or runs compute. Without a live
// scope from the same registry in ctx it just runs compute.
func (rc *RequestCache) Fetch(ctx context.Context, q *Query, compute func(context.Context) ([]Record, error)) ([]Record, error) {
	s, ok := ScopeFrom(ctx)
	if !ok || s.owner != rc.scopes {
		return compute(ctx)
	}
	res, hit, err := s.fetch(ctx, rc.entity, q, compute)
	if err != nil {
		return nil, err
	}
	if rc.stats != nil && rc.stats.Active() {
		rc.stats.Counter(rc.entity, requestCacheAttr).Add(1, boolToInt(hit))
	}
	if hit {
		rc.log.Debug("request cache hit", Fields{"entity": rc.entity, "query": q.CacheKey()})
	}
	return res, nil
}

func (rc *RequestCache) RecordChange(context.Context, Change) { rc.scopes.clear(rc.entity) }
func (rc *RequestCache) Invalidate(context.Context, any)      { rc.scopes.clear(rc.entity) }
