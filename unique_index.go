package recordcache

import (
	"context"

	pr "github.com/unkn0wn-root/recordcache/provider"
)

// UniqueIndex caches whole records under the value of a unique attribute.
// The identity strategy of an entity is a UniqueIndex on the identity
// attribute; its keys omit the attribute segment (rc/person/14).
type UniqueIndex struct {
	base
	identity bool
}

var _ Strategy = (*UniqueIndex)(nil)

func (s *UniqueIndex) Kind() Kind { return KindUniqueIndex }

// Cacheable holds when attr is constrained to concrete values and the query
// has no limit, or a limit of 1 with a single value.
func (s *UniqueIndex) Cacheable(q *Query) bool {
	vals := q.WhereValues(s.attr, s.typ)
	if vals == nil {
		return false
	}
	n, limited := q.Limit()
	return !limited || (n == 1 && len(vals) == 1)
}

func (s *UniqueIndex) Fetch(ctx context.Context, q *Query) ([]Record, error) {
	recs, err := s.fetchValues(ctx, q.WhereValues(s.attr, s.typ))
	if err != nil {
		return nil, err
	}
	return Apply(recs, q.Without(s.attr), s.coll), nil
}

func (s *UniqueIndex) valueKey(v any) string {
	if s.identity {
		return s.key(keyString(v))
	}
	return s.key(s.attr + ":" + keyString(v))
}

// coerce converts stored id strings back into lookup values of s.typ.
func (s *UniqueIndex) coerce(ids []string) []any {
	q := NewQuery().Where(s.attr, stringsToAny(ids)...)
	if vals := q.WhereValues(s.attr, s.typ); vals != nil {
		return vals
	}
	// a malformed id poisons WhereValues; keep the well formed ones
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		if v, ok := NewQuery().Where(s.attr, id).WhereValue(s.attr, s.typ); ok {
			out = append(out, v)
		}
	}
	return out
}

// fetchValues returns the records for vals in request order. Cached records
// are read with one batched version read and one batched record read;
// the rest come from the source and are written back.
func (s *UniqueIndex) fetchValues(ctx context.Context, vals []any) ([]Record, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	order := make([]string, 0, len(vals))
	byKey := make(map[string]any, len(vals))
	idKeys := make(map[string]string, len(vals))
	for _, v := range vals {
		ks := keyString(v)
		if _, dup := byKey[ks]; dup {
			continue
		}
		order = append(order, ks)
		byKey[ks] = v
		idKeys[ks] = s.valueKey(v)
	}

	versions := s.versions.CurrentMulti(ctx, idKeys)
	vkeys := make([]string, 0, len(versions))
	owner := make(map[string]string, len(versions))
	for ks, v := range versions {
		vk := s.versioned(idKeys[ks], v)
		vkeys = append(vkeys, vk)
		owner[vk] = ks
	}

	hits := make(map[string]Record, len(vkeys))
	if len(vkeys) > 0 {
		blobs, err := pr.GetMulti(ctx, s.store, vkeys)
		if err != nil {
			s.readFailed(s.prefix, err)
		}
		for vk, raw := range blobs {
			ks := owner[vk]
			if rec, ok := s.decodeRecord(ctx, vk, raw, versions[ks]); ok {
				hits[ks] = rec
			}
		}
	}

	var missing []any
	for _, ks := range order {
		if _, ok := hits[ks]; !ok {
			missing = append(missing, byKey[ks])
		}
	}
	s.count(len(order), len(hits))
	s.logLookup(order, missing)

	loaded := map[string]Record{}
	var extra []Record
	if len(missing) > 0 {
		recs, err := s.load(ctx, missing, idKeys, versions)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			ks := keyString(r[s.attr])
			if _, requested := idKeys[ks]; requested {
				loaded[ks] = r
			} else {
				extra = append(extra, r)
			}
		}
	}

	out := make([]Record, 0, len(order)+len(extra))
	for _, ks := range order {
		if r, ok := hits[ks]; ok {
			out = append(out, r)
		} else if r, ok := loaded[ks]; ok {
			out = append(out, r)
		}
	}
	return append(out, extra...), nil
}

// load reads missing values from the source. Versions for keys that have
// none are renewed before the source read, so a writer committing while we
// load always ends up with a newer version than the one our blob carries.
func (s *UniqueIndex) load(ctx context.Context, missing []any, idKeys map[string]string, versions map[string]Version) ([]Record, error) {
	fresh := make(map[string]Version, len(missing))
	_ = s.versions.Multi(ctx, func(ctx context.Context) error {
		for _, v := range missing {
			ks := keyString(v)
			if _, ok := versions[ks]; ok {
				continue
			}
			if ver, err := s.versions.RenewForRead(ctx, idKeys[ks]); err == nil {
				fresh[ks] = ver
			}
		}
		return nil
	})

	recs, err := s.src.FindBy(ctx, s.attr, missing)
	if err != nil {
		return nil, s.sourceErr("find_by "+s.attr, err)
	}

	_ = pr.Batch(ctx, s.store, func(ctx context.Context) error {
		for _, r := range recs {
			ks := keyString(r[s.attr])
			v, ok := versions[ks]
			if !ok {
				v, ok = fresh[ks]
			}
			if !ok {
				continue
			}
			s.writeRecord(ctx, s.versioned(idKeys[ks], v), v, r)
		}
		return nil
	})
	return recs, nil
}

func (s *UniqueIndex) logLookup(order []string, missing []any) {
	if !debugEnabled(s.log) {
		return
	}
	msg := "unique index hit"
	switch {
	case len(missing) == len(order):
		msg = "unique index miss"
	case len(missing) > 0:
		msg = "unique index partial hit"
	}
	s.log.Debug(msg, Fields{"entity": s.entity, "attr": s.attr, "values": order, "missing": missing})
}

// RecordChange deletes the version on destroy and renews it plus writes the
// new record on create/update. An update that changes the attribute itself
// also drops the key of the old value.
func (s *UniqueIndex) RecordChange(ctx context.Context, ch Change) {
	if old, ok := ch.Changed(s.attr); ok && old != nil {
		_ = s.versions.Delete(ctx, s.valueKey(old))
	}
	v := ch.Record[s.attr]
	if v == nil {
		return
	}
	key := s.valueKey(v)
	if ch.Action == Destroy {
		_ = s.versions.Delete(ctx, key)
		return
	}
	ver, err := s.versions.Renew(ctx, key)
	if err != nil {
		// the old version may still be current; try to make it unreachable
		_ = s.versions.Delete(ctx, key)
		return
	}
	s.writeRecord(ctx, s.versioned(key, ver), ver, ch.Record)
}

func (s *UniqueIndex) Invalidate(ctx context.Context, value any) {
	if value == nil {
		return
	}
	_ = s.versions.Delete(ctx, s.valueKey(value))
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
