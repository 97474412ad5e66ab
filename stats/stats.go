// Package stats collects cache hit and miss counts per entity and strategy.
// Collection is off until Start is called; counters are lock-free so the
// bookkeeping stays off the read path's critical section.
package stats

import (
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry owns the counters of one cache registry.
type Registry struct {
	active   atomic.Bool
	entities *xsync.MapOf[string, *xsync.MapOf[string, *Counter]]
}

func New() *Registry {
	return &Registry{entities: xsync.NewMapOf[string, *xsync.MapOf[string, *Counter]]()}
}

func (r *Registry) Active() bool { return r.active.Load() }
func (r *Registry) Start()       { r.active.Store(true) }
func (r *Registry) Stop()        { r.active.Store(false) }

// Toggle flips collection and returns the new state.
func (r *Registry) Toggle() bool {
	for {
		old := r.active.Load()
		if r.active.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Counter returns the counter for entity/strategy, creating it on first use.
func (r *Registry) Counter(entity, strategy string) *Counter {
	m, _ := r.entities.LoadOrCompute(entity, func() *xsync.MapOf[string, *Counter] {
		return xsync.NewMapOf[string, *Counter]()
	})
	c, _ := m.LoadOrCompute(strategy, newCounter)
	return c
}

// Entity returns the counters of one entity keyed by strategy attribute.
func (r *Registry) Entity(entity string) map[string]*Counter {
	out := map[string]*Counter{}
	m, ok := r.entities.Load(entity)
	if !ok {
		return out
	}
	m.Range(func(k string, c *Counter) bool {
		out[k] = c
		return true
	})
	return out
}

// All returns every counter keyed by entity, then strategy attribute.
func (r *Registry) All() map[string]map[string]*Counter {
	out := map[string]map[string]*Counter{}
	r.entities.Range(func(entity string, _ *xsync.MapOf[string, *Counter]) bool {
		out[entity] = r.Entity(entity)
		return true
	})
	return out
}

// Reset zeroes the counters of entity.
func (r *Registry) Reset(entity string) {
	for _, c := range r.Entity(entity) {
		c.Reset()
	}
}

func (r *Registry) ResetAll() {
	for _, m := range r.All() {
		for _, c := range m {
			c.Reset()
		}
	}
}

// Counter accumulates the outcome of cache lookups.
type Counter struct {
	calls  *xsync.Counter
	hits   *xsync.Counter
	misses *xsync.Counter
}

func newCounter() *Counter {
	return &Counter{calls: xsync.NewCounter(), hits: xsync.NewCounter(), misses: xsync.NewCounter()}
}

// Add records one lookup in which queried keys were requested and found of
// them were served from cache.
func (c *Counter) Add(queried, found int) {
	c.calls.Inc()
	c.hits.Add(int64(found))
	c.misses.Add(int64(queried - found))
}

func (c *Counter) Calls() int64  { return c.calls.Value() }
func (c *Counter) Hits() int64   { return c.hits.Value() }
func (c *Counter) Misses() int64 { return c.misses.Value() }

// Percentage is the hit ratio in percent; 0 when nothing was ever found.
func (c *Counter) Percentage() float64 {
	h := c.Hits()
	if h == 0 {
		return 0.0
	}
	return float64(h) / float64(h+c.Misses()) * 100
}

func (c *Counter) Reset() {
	c.calls.Reset()
	c.hits.Reset()
	c.misses.Reset()
}

func (c *Counter) String() string {
	h := c.Hits()
	return fmt.Sprintf("%.1f%% (%d/%d)", c.Percentage(), h, h+c.Misses())
}
