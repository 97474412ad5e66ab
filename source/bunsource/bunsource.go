// Package bunsource adapts a table reachable through uptrace/bun into a
// recordcache.Source. Rows are scanned into maps, so any table works
// without a model struct.
package bunsource

import (
	"context"
	"errors"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/uptrace/bun"

	"github.com/unkn0wn-root/recordcache"
)

var ErrNilDB = errors.New("bunsource: nil db")

type Config struct {
	DB bun.IDB
	// Table defaults to the plural of the entity name (person -> people).
	Table string
	// Columns restricts the selected columns; empty selects all.
	Columns []string
}

// Source runs every lookup as a single SELECT.
type Source struct {
	db      bun.IDB
	table   string
	columns []string
}

var _ recordcache.Source = (*Source)(nil)

func New(entity string, cfg Config) (*Source, error) {
	if cfg.DB == nil {
		return nil, ErrNilDB
	}
	table := cfg.Table
	if table == "" {
		table = inflection.Plural(strings.ToLower(entity))
	}
	return &Source{db: cfg.DB, table: table, columns: cfg.Columns}, nil
}

func (s *Source) Table() string { return s.table }

func (s *Source) selectQuery() *bun.SelectQuery {
	q := s.db.NewSelect().Table(s.table)
	if len(s.columns) > 0 {
		q = q.Column(s.columns...)
	}
	return q
}

func (s *Source) FindBy(ctx context.Context, attr string, values []any) ([]recordcache.Record, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return s.scan(ctx, where(s.selectQuery(), attr, values))
}

func (s *Source) IDsBy(ctx context.Context, identity, attr string, value any) ([]any, error) {
	var rows []map[string]any
	q := s.db.NewSelect().Table(s.table).Column(identity)
	if err := where(q, attr, []any{value}).Scan(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		if id := normalize(r[identity]); id != nil {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Source) All(ctx context.Context) ([]recordcache.Record, error) {
	return s.scan(ctx, s.selectQuery())
}

// Select translates q into SQL: IN/equality constraints, ORDER BY and LIMIT.
func (s *Source) Select(ctx context.Context, q *recordcache.Query) ([]recordcache.Record, error) {
	sq := s.selectQuery()
	for _, c := range q.Wheres() {
		if len(c.Values) == 0 {
			// IN () matches nothing
			return nil, nil
		}
		sq = where(sq, c.Attr, c.Values)
	}
	for _, o := range q.SortOrders() {
		if o.Ascending {
			sq = sq.OrderExpr("? ASC", bun.Ident(o.Attr))
		} else {
			sq = sq.OrderExpr("? DESC", bun.Ident(o.Attr))
		}
	}
	if n, ok := q.Limit(); ok {
		sq = sq.Limit(n)
	}
	return s.scan(ctx, sq)
}

// where adds attr = v, attr IN (...) or attr IS NULL.
func where(q *bun.SelectQuery, attr string, values []any) *bun.SelectQuery {
	var vals []any
	hasNil := false
	for _, v := range values {
		if v == nil {
			hasNil = true
			continue
		}
		vals = append(vals, v)
	}
	switch {
	case hasNil && len(vals) == 0:
		return q.Where("? IS NULL", bun.Ident(attr))
	case hasNil:
		return q.Where("(? IS NULL OR ? IN (?))", bun.Ident(attr), bun.Ident(attr), bun.In(vals))
	case len(vals) == 1:
		return q.Where("? = ?", bun.Ident(attr), vals[0])
	default:
		return q.Where("? IN (?)", bun.Ident(attr), bun.In(vals))
	}
}

func (s *Source) scan(ctx context.Context, q *bun.SelectQuery) ([]recordcache.Record, error) {
	var rows []map[string]any
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]recordcache.Record, len(rows))
	for i, r := range rows {
		rec := make(recordcache.Record, len(r))
		for k, v := range r {
			rec[k] = normalize(v)
		}
		out[i] = rec
	}
	return out, nil
}

// normalize turns driver byte slices into strings so records compare and
// encode the same way whichever driver produced them.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
