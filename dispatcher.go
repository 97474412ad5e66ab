package recordcache

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FetchFunc answers a query without the cache.
type FetchFunc func(ctx context.Context, q *Query) ([]Record, error)

// Dispatcher routes the queries and changes of one entity type to its
// strategies. Strategies are kept ordered by Kind (unique index, index,
// full table, custom); the first one whose Cacheable holds answers a query.
type Dispatcher struct {
	entity   string
	identity string // "" when the entity has no identity strategy

	mu         sync.RWMutex
	strategies []Strategy
	byAttr     map[string]Strategy

	request *RequestCache // nil when disabled
	tracer  trace.Tracer
	log     Logger
	hooks   Hooks
}

func (d *Dispatcher) Entity() string { return d.entity }

// Strategies returns the strategies in dispatch order.
func (d *Dispatcher) Strategies() []Strategy {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.strategies)
}

func (d *Dispatcher) Strategy(attr string) (Strategy, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.byAttr[attr]
	return s, ok
}

// RequestCache returns the request cache layered around Fetch, if any.
func (d *Dispatcher) RequestCache() (*RequestCache, bool) { return d.request, d.request != nil }

// Add registers a strategy. Custom strategies are placed after the built-in
// ones. Two strategies may not share an attribute.
func (d *Dispatcher) Add(s Strategy) error {
	attr := s.Attribute()
	if attr == requestCacheAttr {
		return configErr(d.entity, attr, "attribute is reserved for the request cache")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.byAttr[attr]; dup {
		return configErr(d.entity, attr, "a strategy is already registered for this attribute")
	}
	i, _ := slices.BinarySearchFunc(d.strategies, s.Kind(), func(e Strategy, k Kind) int {
		if e.Kind() <= k {
			return -1
		}
		return 1
	})
	d.strategies = slices.Insert(d.strategies, i, s)
	d.byAttr[attr] = s
	return nil
}

func (d *Dispatcher) first(q *Query) Strategy {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.strategies {
		if s.Cacheable(q) {
			return s
		}
	}
	return nil
}

// Cacheable reports whether any strategy can answer q.
func (d *Dispatcher) Cacheable(q *Query) bool { return d.first(q) != nil }

// Fetch answers q through the first cacheable strategy. When no strategy
// matches, fallback answers the query; without a fallback Fetch returns
// ErrNotCacheable. The request cache, when configured and ctx carries a
// Scope, memoizes the whole lookup, fallback results included.
func (d *Dispatcher) Fetch(ctx context.Context, q *Query, fallback FetchFunc) (_ []Record, err error) {
	ctx, span := d.tracer.Start(ctx, "recordcache.fetch",
		trace.WithAttributes(attribute.String("recordcache.entity", d.entity)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	s := d.first(q)
	span.SetAttributes(attribute.Bool("recordcache.cacheable", s != nil))
	if s != nil {
		span.SetAttributes(attribute.String("recordcache.strategy", s.Attribute()))
	} else if fallback == nil {
		return nil, ErrNotCacheable
	}

	lookup := func(ctx context.Context) ([]Record, error) {
		if s != nil {
			return s.Fetch(ctx, q)
		}
		d.hooks.SourceFallback(d.entity)
		if debugEnabled(d.log) {
			d.log.Debug("query not cacheable", Fields{"entity": d.entity, "query": q.String()})
		}
		return fallback(ctx, q)
	}
	if d.request == nil {
		return lookup(ctx)
	}
	return d.request.Fetch(ctx, q, lookup)
}

// RecordChange fans a committed mutation out to every strategy and clears
// the request cache. Updates without changed attributes are dropped.
func (d *Dispatcher) RecordChange(ctx context.Context, ch Change) {
	if ch.Noop() || ch.Record == nil {
		return
	}
	for _, s := range d.Strategies() {
		s.RecordChange(ctx, ch)
	}
	if d.request != nil {
		d.request.RecordChange(ctx, ch)
	}
}

// Invalidate drops the partition value of the strategy bound to attr
// ("" means the identity strategy) and clears the request cache.
func (d *Dispatcher) Invalidate(ctx context.Context, attr string, value any) error {
	if d.request != nil {
		d.request.Invalidate(ctx, value)
	}
	if attr == "" {
		attr = d.identity
	}
	if attr == requestCacheAttr && d.request != nil {
		return nil
	}
	s, ok := d.Strategy(attr)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownStrategy, d.entity, attr)
	}
	s.Invalidate(ctx, value)
	return nil
}
