package recordcache

import "context"

// Model is the data-access façade of one entity: reads go through Find and
// the persistence layer reports committed mutations through Created,
// Updated and Destroyed.
type Model struct {
	reg  *Registry
	name string
	d    *Dispatcher
	src  Source
}

func (m *Model) Name() string            { return m.name }
func (m *Model) Dispatcher() *Dispatcher { return m.d }
func (m *Model) Source() Source          { return m.src }
func (m *Model) Cacheable(q *Query) bool { return m.d.Cacheable(q) }

// Find answers q from the cache when possible and from the source
// otherwise. The cache is bypassed when the registry is not Enabled and
// inside a transaction (see WithTransaction), since the cache only reflects
// committed state.
func (m *Model) Find(ctx context.Context, q *Query) ([]Record, error) {
	if m.reg.Status() != Enabled || InTransaction(ctx) {
		return m.selectSource(ctx, q)
	}
	return m.d.Fetch(ctx, q, m.selectSource)
}

// FindOne is Find with a limit of 1.
func (m *Model) FindOne(ctx context.Context, q *Query) (Record, bool, error) {
	recs, err := m.Find(ctx, q.Clone().SetLimit(1))
	if err != nil || len(recs) == 0 {
		return nil, false, err
	}
	return recs[0], true, nil
}

func (m *Model) selectSource(ctx context.Context, q *Query) ([]Record, error) {
	recs, err := m.src.Select(ctx, q)
	if err != nil {
		return nil, &SourceError{Entity: m.name, Op: "select", Err: err}
	}
	return recs, nil
}

// Created reports a committed insert.
func (m *Model) Created(ctx context.Context, rec Record) {
	m.change(ctx, Change{Action: Create, Record: rec})
}

// Updated reports a committed update. previous holds the old values of the
// attributes that changed; an empty map means nothing observable changed.
func (m *Model) Updated(ctx context.Context, rec Record, previous map[string]any) {
	m.change(ctx, Change{Action: Update, Record: rec, Previous: previous})
}

// Destroyed reports a committed delete.
func (m *Model) Destroyed(ctx context.Context, rec Record) {
	m.change(ctx, Change{Action: Destroy, Record: rec})
}

func (m *Model) change(ctx context.Context, ch Change) {
	if m.reg.Status() == Disabled {
		return
	}
	m.d.RecordChange(ctx, ch)
}

// Invalidate drops one partition; attr "" targets the identity strategy.
func (m *Model) Invalidate(ctx context.Context, attr string, value any) error {
	return m.d.Invalidate(ctx, attr, value)
}

type txKey struct{}

// WithTransaction marks ctx as running inside an open transaction. Reads
// through a Model skip the cache for such contexts. Report mutations only
// after the transaction commits.
func WithTransaction(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey{}, true)
}

func InTransaction(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}
