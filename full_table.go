package recordcache

import (
	"context"

	"github.com/unkn0wn-root/recordcache/internal/wire"
)

const fullTableAttr = "full_table"

// FullTable caches every record of a small, rarely written entity under one
// key and answers any query in memory. Any change drops the version.
type FullTable struct {
	base
}

var _ Strategy = (*FullTable)(nil)

func (s *FullTable) Kind() Kind            { return KindFullTable }
func (s *FullTable) Cacheable(*Query) bool { return true }
func (s *FullTable) tableKey() string      { return s.key(fullTableSegment) }

func (s *FullTable) Fetch(ctx context.Context, q *Query) ([]Record, error) {
	key := s.tableKey()
	cur, known := s.versions.Current(ctx, key)
	var all []Record
	hit := false
	if known {
		all, hit = s.read(ctx, s.versioned(key, cur), cur)
	}
	s.count(1, boolToInt(hit))
	if hit {
		s.log.Debug("full table hit", Fields{"entity": s.entity, "records": len(all)})
		return Apply(all, q, s.coll), nil
	}
	s.log.Debug("full table miss", Fields{"entity": s.entity})

	ver, renewed := cur, known
	if !known {
		v, err := s.versions.RenewForRead(ctx, key)
		ver, renewed = v, err == nil
	}
	all, err := s.src.All(ctx)
	if err != nil {
		return nil, s.sourceErr("all", err)
	}
	if renewed {
		s.write(ctx, s.versioned(key, ver), ver, all)
	}
	return Apply(all, q, s.coll), nil
}

func (s *FullTable) read(ctx context.Context, vk string, v Version) ([]Record, bool) {
	raw, ok, err := s.store.Get(ctx, vk)
	if err != nil {
		s.readFailed(vk, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	ver, payloads, err := wire.DecodeRecords(raw)
	if err != nil {
		s.selfHeal(ctx, vk, "corrupt")
		return nil, false
	}
	if Version(ver) != v {
		s.selfHeal(ctx, vk, "version_mismatch")
		return nil, false
	}
	out := make([]Record, 0, len(payloads))
	for _, p := range payloads {
		rec, err := s.codec.Decode(p)
		if err != nil {
			s.selfHeal(ctx, vk, "decode")
			return nil, false
		}
		out = append(out, rec)
	}
	return out, true
}

func (s *FullTable) write(ctx context.Context, vk string, v Version, all []Record) {
	payloads := make([][]byte, 0, len(all))
	for _, r := range all {
		p, err := s.codec.Encode(r)
		if err != nil {
			s.log.Error("record encode failed", Fields{"entity": s.entity, "key": vk, "err": err})
			return
		}
		payloads = append(payloads, p)
	}
	blob, err := wire.EncodeRecords(uint64(v), payloads)
	if err != nil {
		s.log.Error("full table encode failed", Fields{"entity": s.entity, "key": vk, "err": err})
		return
	}
	s.put(ctx, vk, blob)
}

func (s *FullTable) RecordChange(ctx context.Context, _ Change) {
	_ = s.versions.Delete(ctx, s.tableKey())
}

func (s *FullTable) Invalidate(ctx context.Context, _ any) {
	_ = s.versions.Delete(ctx, s.tableKey())
}
