package recordcache

import (
	"context"
	"testing"
)

func TestFindFallsBackForUncacheableQueries(t *testing.T) {
	ctx := context.Background()
	hooks := &recordingHooks{}
	reg := newTestRegistry(t, func(o *Options) { o.Hooks = hooks })
	src := newMemSource(people()...)
	m := mustRegister(t, reg, personConfig(), src)

	q := NewQuery().Where("name", "ada")
	if m.Cacheable(q) {
		t.Fatalf("name lookup should not be cacheable")
	}
	got := mustFind(t, ctx, m, q)
	if len(got) != 1 || src.sel.Load() != 1 {
		t.Fatalf("got %v, Select calls %d", got, src.sel.Load())
	}
	if len(hooks.find("fallback")) != 1 {
		t.Fatalf("fallback not reported")
	}
}

func TestFindOne(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, nil)
	m := mustRegister(t, reg, personConfig(), newMemSource(people()...))

	q := NewQuery().Where("team", 10)
	rec, ok, err := m.FindOne(ctx, q)
	if err != nil || !ok || keyString(rec["team"]) != "10" {
		t.Fatalf("FindOne = %v,%v,%v", rec, ok, err)
	}
	if _, limited := q.Limit(); limited {
		t.Fatalf("FindOne mutated the caller's query")
	}
	if _, ok, err := m.FindOne(ctx, NewQuery().Where("id", 42)); ok || err != nil {
		t.Fatalf("missing record: ok=%v err=%v", ok, err)
	}
}

func TestNoFetchBypassesReadsButMaintainsCache(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, func(o *Options) { o.Status = NoFetch })
	src := newMemSource(people()...)
	m := mustRegister(t, reg, personConfig(), src)

	_ = mustFind(t, ctx, m, NewQuery().Where("id", 1))
	if src.sel.Load() != 1 || src.findBy.Load() != 0 {
		t.Fatalf("NoFetch read used the cache")
	}
	rec := Record{"id": 1, "email": "ada@example.com", "team": 10, "name": "Ada"}
	m.Created(ctx, rec)
	if _, ok := reg.Versions().Current(ctx, "rc/person/1"); !ok {
		t.Fatalf("NoFetch must still maintain the cache")
	}

	reg.SetStatus(Enabled)
	_ = mustFind(t, ctx, m, NewQuery().Where("id", 1))
	if src.findBy.Load() != 0 {
		t.Fatalf("record written on create should be served from cache")
	}
}

func TestDisabledIgnoresChanges(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, func(o *Options) { o.Status = Disabled })
	src := newMemSource(people()...)
	m := mustRegister(t, reg, personConfig(), src)

	m.Created(ctx, people()[0])
	if _, ok := reg.Versions().Current(ctx, "rc/person/1"); ok {
		t.Fatalf("Disabled registry maintained the cache")
	}
	_ = mustFind(t, ctx, m, NewQuery().Where("id", 1))
	if src.sel.Load() != 1 {
		t.Fatalf("Disabled read should go to the source")
	}
	if reg.Status().String() != "disabled" {
		t.Fatalf("status = %s", reg.Status())
	}
}

func TestTransactionBypassesCache(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, nil)
	src := newMemSource(people()...)
	m := mustRegister(t, reg, personConfig(), src)

	tx := WithTransaction(ctx)
	if !InTransaction(tx) || InTransaction(ctx) {
		t.Fatalf("transaction marker broken")
	}
	_ = mustFind(t, tx, m, NewQuery().Where("id", 1))
	if src.sel.Load() != 1 || src.findBy.Load() != 0 {
		t.Fatalf("read inside a transaction used the cache")
	}
	if _, ok := reg.Versions().Current(ctx, "rc/person/1"); ok {
		t.Fatalf("read inside a transaction populated the cache")
	}
}
