package recordcache

import (
	"context"
	"slices"

	"github.com/unkn0wn-root/recordcache/internal/wire"
)

// Index caches, per attribute value, the list of matching identity values.
// Records themselves are always resolved through the identity strategy.
type Index struct {
	base
	identity *UniqueIndex
}

var _ Strategy = (*Index)(nil)

func (s *Index) Kind() Kind { return KindIndex }

// Cacheable holds for exactly one value of the indexed attribute with no
// limit, or a limit of 1 on an unsorted query.
func (s *Index) Cacheable(q *Query) bool {
	if _, ok := q.WhereValue(s.attr, s.typ); !ok {
		return false
	}
	n, limited := q.Limit()
	return !limited || (n == 1 && !q.Sorted())
}

func (s *Index) valueKey(v any) string {
	return s.key(s.attr + "=" + keyString(v))
}

func (s *Index) Fetch(ctx context.Context, q *Query) ([]Record, error) {
	value, ok := q.WhereValue(s.attr, s.typ)
	if !ok {
		return nil, nil
	}
	key := s.valueKey(value)
	cur, known := s.versions.Current(ctx, key)
	var ids []string
	hit := false
	if known {
		ids, hit = s.readIDs(ctx, key, cur)
	}
	s.count(1, boolToInt(hit))
	if hit {
		s.log.Debug("index hit", Fields{"entity": s.entity, "attr": s.attr, "value": value, "ids": len(ids)})
	} else {
		s.log.Debug("index miss", Fields{"entity": s.entity, "attr": s.attr, "value": value})
	}

	if !hit {
		ver, renewed := cur, known
		if !known {
			v, err := s.versions.RenewForRead(ctx, key)
			ver, renewed = v, err == nil
		}
		raw, err := s.src.IDsBy(ctx, s.identity.attr, s.attr, value)
		if err != nil {
			return nil, s.sourceErr("ids_by "+s.attr, err)
		}
		ids = make([]string, 0, len(raw))
		for _, id := range raw {
			if id != nil {
				ids = append(ids, keyString(id))
			}
		}
		if renewed {
			s.writeIDs(ctx, key, ver, ids)
		}
	}

	recs, err := s.identity.fetchValues(ctx, s.identity.coerce(ids))
	if err != nil {
		return nil, err
	}
	return Apply(recs, q.Without(s.attr), s.coll), nil
}

func (s *Index) readIDs(ctx context.Context, key string, v Version) ([]string, bool) {
	vk := s.versioned(key, v)
	raw, ok, err := s.store.Get(ctx, vk)
	if err != nil {
		s.readFailed(vk, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	ver, ids, err := wire.DecodeIDs(raw)
	if err != nil {
		s.selfHeal(ctx, vk, "corrupt")
		return nil, false
	}
	if Version(ver) != v {
		s.selfHeal(ctx, vk, "version_mismatch")
		return nil, false
	}
	return ids, true
}

func (s *Index) writeIDs(ctx context.Context, key string, v Version, ids []string) {
	vk := s.versioned(key, v)
	blob, err := wire.EncodeIDs(uint64(v), ids)
	if err != nil {
		s.log.Error("id list encode failed", Fields{"entity": s.entity, "key": vk, "err": err})
		return
	}
	s.put(ctx, vk, blob)
}

// RecordChange moves the record's id between value lists. Updates that do
// not touch the indexed attribute are ignored.
func (s *Index) RecordChange(ctx context.Context, ch Change) {
	id := ch.Record[s.identity.attr]
	if id == nil {
		return
	}
	sid := keyString(id)
	add := func(ids []string) []string {
		if slices.Contains(ids, sid) {
			return ids
		}
		return append(ids, sid)
	}
	remove := func(ids []string) []string {
		return slices.DeleteFunc(ids, func(x string) bool { return x == sid })
	}
	switch ch.Action {
	case Create:
		s.adjust(ctx, ch.Record[s.attr], add)
	case Destroy:
		s.adjust(ctx, ch.Record[s.attr], remove)
	case Update:
		old, changed := ch.Changed(s.attr)
		if !changed {
			return
		}
		s.adjust(ctx, old, remove)
		s.adjust(ctx, ch.Record[s.attr], add)
	}
}

// adjust bumps the version of value's list and, when the bump came from an
// atomic counter, repairs a copy of the list cached under the previous
// version. Without a counter Prev may predate another worker's bump, and a
// list repaired from it would miss that worker's change for the life of the
// version, so the renewed version is left empty and the next reader reloads.
func (s *Index) adjust(ctx context.Context, value any, mutate func([]string) []string) {
	if value == nil {
		return
	}
	key := s.valueKey(value)
	inc, err := s.versions.Increment(ctx, key)
	if err != nil {
		_ = s.versions.Delete(ctx, key)
		return
	}
	if !inc.Exact || !inc.HadPrev {
		return
	}
	ids, ok := s.readIDs(ctx, key, inc.Prev)
	if !ok {
		return
	}
	s.writeIDs(ctx, key, inc.Next, mutate(slices.Clone(ids)))
}

func (s *Index) Invalidate(ctx context.Context, value any) {
	if value == nil {
		return
	}
	_ = s.versions.Delete(ctx, s.valueKey(value))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
