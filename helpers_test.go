package recordcache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pr "github.com/unkn0wn-root/recordcache/provider"
	"github.com/unkn0wn-root/recordcache/provider/memory"
)

// memSource is an in-memory system of record that counts every call.
type memSource struct {
	identity string

	mu   sync.Mutex
	rows map[string]Record
	err  error

	findBy atomic.Int32
	idsBy  atomic.Int32
	all    atomic.Int32
	sel    atomic.Int32
}

var _ Source = (*memSource)(nil)

func newMemSource(rows ...Record) *memSource {
	s := &memSource{identity: "id", rows: map[string]Record{}}
	for _, r := range rows {
		s.put(r)
	}
	return s
}

func (s *memSource) put(r Record) {
	s.mu.Lock()
	s.rows[keyString(r[s.identity])] = r.Clone()
	s.mu.Unlock()
}

func (s *memSource) remove(id any) {
	s.mu.Lock()
	delete(s.rows, keyString(id))
	s.mu.Unlock()
}

func (s *memSource) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// snapshot returns clones of all rows ordered by identity.
func (s *memSource) snapshot() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Record, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return compareValues(out[i][s.identity], out[j][s.identity], nil) < 0
	})
	return out, nil
}

func (s *memSource) FindBy(_ context.Context, attr string, values []any) ([]Record, error) {
	s.findBy.Add(1)
	rows, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[keyString(v)] = true
	}
	var out []Record
	for _, r := range rows {
		if r[attr] != nil && want[keyString(r[attr])] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memSource) IDsBy(_ context.Context, identity, attr string, value any) ([]any, error) {
	s.idsBy.Add(1)
	rows, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	var out []any
	for _, r := range rows {
		if r[attr] != nil && keyString(r[attr]) == keyString(value) {
			out = append(out, r[identity])
		}
	}
	return out, nil
}

func (s *memSource) All(context.Context) ([]Record, error) {
	s.all.Add(1)
	return s.snapshot()
}

func (s *memSource) Select(_ context.Context, q *Query) ([]Record, error) {
	s.sel.Add(1)
	rows, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return Apply(rows, q, nil), nil
}

// flakyProvider wraps a provider and injects failures. Embedding hides
// the optional capabilities of the wrapped provider.
type flakyProvider struct {
	pr.Provider
	getErr error
	setErr error
	delErr error
	reject bool
}

func (p *flakyProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if p.getErr != nil {
		return nil, false, p.getErr
	}
	return p.Provider.Get(ctx, key)
}

func (p *flakyProvider) Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if p.setErr != nil {
		return false, p.setErr
	}
	if p.reject {
		return false, nil
	}
	return p.Provider.Set(ctx, key, value, cost, ttl)
}

func (p *flakyProvider) Del(ctx context.Context, key string) error {
	if p.delErr != nil {
		return p.delErr
	}
	return p.Provider.Del(ctx, key)
}

type hookEvent struct {
	kind   string
	key    string
	detail string
}

type recordingHooks struct {
	mu     sync.Mutex
	events []hookEvent
}

var _ Hooks = (*recordingHooks)(nil)

func (h *recordingHooks) add(e hookEvent) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *recordingHooks) WriteFailed(key, op string, _ error) {
	h.add(hookEvent{"write_failed", key, op})
}
func (h *recordingHooks) ReadFailed(key string, _ error) { h.add(hookEvent{"read_failed", key, ""}) }
func (h *recordingHooks) SelfHeal(key, reason string)    { h.add(hookEvent{"self_heal", key, reason}) }
func (h *recordingHooks) ProviderSetRejected(key string) { h.add(hookEvent{"set_rejected", key, ""}) }
func (h *recordingHooks) SourceFallback(entity string)   { h.add(hookEvent{"fallback", entity, ""}) }

func (h *recordingHooks) find(kind string) []hookEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []hookEvent
	for _, e := range h.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func newTestRegistry(t *testing.T, optsOpt func(*Options)) *Registry {
	t.Helper()
	opts := Options{}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	r, err := NewRegistry(opts)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New(0)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func personConfig() EntityConfig {
	return EntityConfig{
		Name: "person",
		Attributes: map[string]AttrType{
			"id":    Integer,
			"email": String,
			"team":  Integer,
			"name":  String,
		},
		Unique: []string{"email"},
		Index:  []string{"team"},
	}
}

func people() []Record {
	return []Record{
		{"id": 1, "email": "ada@example.com", "team": 10, "name": "Ada"},
		{"id": 2, "email": "bob@example.com", "team": 10, "name": "bob"},
		{"id": 3, "email": "cris@example.com", "team": 20, "name": "Cris"},
	}
}

func mustRegister(t *testing.T, r *Registry, cfg EntityConfig, src Source) *Model {
	t.Helper()
	m, err := r.Register(cfg, src)
	if err != nil {
		t.Fatalf("Register %s: %v", cfg.Name, err)
	}
	return m
}

func mustFind(t *testing.T, ctx context.Context, m *Model, q *Query) []Record {
	t.Helper()
	recs, err := m.Find(ctx, q)
	if err != nil {
		t.Fatalf("Find %s: %v", q, err)
	}
	return recs
}

// idsOf renders the identity of each record; codecs may widen or narrow
// integer types on the way through the store.
func idsOf(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = keyString(r["id"])
	}
	return out
}

func sortedIDs(recs []Record) []string {
	ids := idsOf(recs)
	sort.Strings(ids)
	return ids
}
