package recordcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	pr "github.com/unkn0wn-root/recordcache/provider"
)

func TestIndexCacheable(t *testing.T) {
	s := &Index{base: base{attr: "team", typ: Integer}}
	tests := []struct {
		name string
		q    *Query
		want bool
	}{
		{"single value", NewQuery().Where("team", 10), true},
		{"two values", NewQuery().Where("team", 10, 20), false},
		{"limit 1", NewQuery().Where("team", 10).SetLimit(1), true},
		{"limit 1 sorted", NewQuery().Where("team", 10).SetLimit(1).OrderBy("name", true), false},
		{"limit 2", NewQuery().Where("team", 10).SetLimit(2), false},
		{"sorted without limit", NewQuery().Where("team", 10).OrderBy("name", true), true},
		{"no constraint", NewQuery().Where("name", "x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Cacheable(tt.q); got != tt.want {
				t.Fatalf("Cacheable(%s) = %v, want %v", tt.q, got, tt.want)
			}
		})
	}
}

// TestIndexMovesIDIncrementally checks that with an atomic counter an update
// of the indexed attribute repairs both cached id lists instead of dropping
// them.
func TestIndexMovesIDIncrementally(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, nil)
	src := newMemSource(people()...)
	m := mustRegister(t, reg, personConfig(), src)

	if diff := cmp.Diff([]string{"1", "2"}, sortedIDs(mustFind(t, ctx, m, NewQuery().Where("team", 10)))); diff != "" {
		t.Fatalf("team 10 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"3"}, sortedIDs(mustFind(t, ctx, m, NewQuery().Where("team", 20)))); diff != "" {
		t.Fatalf("team 20 (-want +got):\n%s", diff)
	}
	_ = mustFind(t, ctx, m, NewQuery().Where("team", 10))
	if src.idsBy.Load() != 2 {
		t.Fatalf("id list not cached, IDsBy calls = %d", src.idsBy.Load())
	}

	moved := Record{"id": 1, "email": "ada@example.com", "team": 20, "name": "Ada"}
	src.put(moved)
	m.Updated(ctx, moved, map[string]any{"team": 10})

	findBy := src.findBy.Load()
	if diff := cmp.Diff([]string{"2"}, sortedIDs(mustFind(t, ctx, m, NewQuery().Where("team", 10)))); diff != "" {
		t.Fatalf("team 10 after move (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1", "3"}, sortedIDs(mustFind(t, ctx, m, NewQuery().Where("team", 20)))); diff != "" {
		t.Fatalf("team 20 after move (-want +got):\n%s", diff)
	}
	if src.idsBy.Load() != 2 || src.findBy.Load() != findBy {
		t.Fatalf("repaired lists should be served from cache: IDsBy=%d FindBy=%d->%d",
			src.idsBy.Load(), findBy, src.findBy.Load())
	}
}

func TestIndexWithoutCounterReloadsAfterChange(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, func(o *Options) { o.Versions = &flakyProvider{Provider: newTestStore(t)} })
	src := newMemSource(people()...)
	m := mustRegister(t, reg, personConfig(), src)
	_ = mustFind(t, ctx, m, NewQuery().Where("team", 10))
	_ = mustFind(t, ctx, m, NewQuery().Where("team", 20))

	moved := Record{"id": 1, "email": "ada@example.com", "team": 20, "name": "Ada"}
	src.put(moved)
	m.Updated(ctx, moved, map[string]any{"team": 10})

	if diff := cmp.Diff([]string{"2"}, sortedIDs(mustFind(t, ctx, m, NewQuery().Where("team", 10)))); diff != "" {
		t.Fatalf("team 10 after move (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1", "3"}, sortedIDs(mustFind(t, ctx, m, NewQuery().Where("team", 20)))); diff != "" {
		t.Fatalf("team 20 after move (-want +got):\n%s", diff)
	}
	if src.idsBy.Load() != 4 {
		t.Fatalf("both lists should be reloaded, IDsBy calls = %d", src.idsBy.Load())
	}
	_ = mustFind(t, ctx, m, NewQuery().Where("team", 10))
	if src.idsBy.Load() != 4 {
		t.Fatalf("reloaded list not cached, IDsBy calls = %d", src.idsBy.Load())
	}
}

// gatedProvider parks the first armed Set of key until release is closed.
type gatedProvider struct {
	pr.Provider
	key     string
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedProvider) Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if key == g.key && g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.Provider.Set(ctx, key, value, cost, ttl)
}

// TestIndexConcurrentChangesWithoutCounter interleaves two creates so the
// slower one renews last from a version it read before the faster one ran.
// Neither id may be lost from the list readers see afterwards.
func TestIndexConcurrentChangesWithoutCounter(t *testing.T) {
	ctx := context.Background()
	gate := &gatedProvider{
		Provider: newTestStore(t),
		key:      "rc/person/team=10",
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	reg := newTestRegistry(t, func(o *Options) { o.Versions = gate })
	src := newMemSource(people()...)
	m := mustRegister(t, reg, personConfig(), src)
	_ = mustFind(t, ctx, m, NewQuery().Where("team", 10))

	slow := Record{"id": 4, "email": "dan@example.com", "team": 10, "name": "Dan"}
	fast := Record{"id": 5, "email": "eve@example.com", "team": 10, "name": "Eve"}
	src.put(slow)
	src.put(fast)

	gate.armed.Store(true)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Created(ctx, slow)
	}()
	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("slow create never reached the index version write")
	}
	m.Created(ctx, fast)
	close(gate.release)
	wg.Wait()

	if diff := cmp.Diff([]string{"1", "2", "4", "5"}, sortedIDs(mustFind(t, ctx, m, NewQuery().Where("team", 10)))); diff != "" {
		t.Fatalf("team 10 after concurrent creates (-want +got):\n%s", diff)
	}
}

func TestIndexCreateAndDestroy(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, nil)
	src := newMemSource(people()...)
	m := mustRegister(t, reg, personConfig(), src)
	_ = mustFind(t, ctx, m, NewQuery().Where("team", 10))

	dan := Record{"id": 4, "email": "dan@example.com", "team": 10, "name": "Dan"}
	src.put(dan)
	m.Created(ctx, dan)
	if diff := cmp.Diff([]string{"1", "2", "4"}, sortedIDs(mustFind(t, ctx, m, NewQuery().Where("team", 10)))); diff != "" {
		t.Fatalf("after create (-want +got):\n%s", diff)
	}

	bob := people()[1]
	src.remove(2)
	m.Destroyed(ctx, bob)
	if diff := cmp.Diff([]string{"1", "4"}, sortedIDs(mustFind(t, ctx, m, NewQuery().Where("team", 10)))); diff != "" {
		t.Fatalf("after destroy (-want +got):\n%s", diff)
	}
	if src.idsBy.Load() != 1 {
		t.Fatalf("IDsBy calls = %d, want 1", src.idsBy.Load())
	}
}

func TestIndexIgnoresUnrelatedUpdates(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, nil)
	src := newMemSource(people()...)
	m := mustRegister(t, reg, personConfig(), src)
	_ = mustFind(t, ctx, m, NewQuery().Where("team", 10))

	key := "rc/person/team=10"
	before, _ := reg.Versions().Current(ctx, key)
	rec := Record{"id": 1, "email": "ada@example.com", "team": 10, "name": "Augusta"}
	src.put(rec)
	m.Updated(ctx, rec, map[string]any{"name": "Ada"})
	after, _ := reg.Versions().Current(ctx, key)
	if before != after {
		t.Fatalf("index version changed on unrelated update: %d -> %d", before, after)
	}

	got := mustFind(t, ctx, m, NewQuery().Where("team", 10).OrderBy("name", true))
	if diff := cmp.Diff([]any{"Augusta", "bob"}, names(got)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestIndexInvalidateReloads(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, nil)
	src := newMemSource(people()...)
	m := mustRegister(t, reg, personConfig(), src)
	_ = mustFind(t, ctx, m, NewQuery().Where("team", 20))

	// a change made behind the cache's back
	src.put(Record{"id": 5, "email": "eve@example.com", "team": 20, "name": "Eve"})
	if err := m.Invalidate(ctx, "team", 20); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"3", "5"}, sortedIDs(mustFind(t, ctx, m, NewQuery().Where("team", 20)))); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if src.idsBy.Load() != 2 {
		t.Fatalf("IDsBy calls = %d, want 2", src.idsBy.Load())
	}
}
