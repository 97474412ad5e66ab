package recordcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/recordcache/codec"
	"github.com/unkn0wn-root/recordcache/collate"
	"github.com/unkn0wn-root/recordcache/internal/keys"
	"github.com/unkn0wn-root/recordcache/internal/wire"
	pr "github.com/unkn0wn-root/recordcache/provider"
	"github.com/unkn0wn-root/recordcache/stats"
)

// Kind orders strategies inside a Dispatcher: lower kinds are more
// selective and are asked first.
type Kind uint8

const (
	KindUniqueIndex Kind = iota + 1
	KindIndex
	KindFullTable
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindUniqueIndex:
		return "unique_index"
	case KindIndex:
		return "index"
	case KindFullTable:
		return "full_table"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Strategy owns one lookup shape of one entity type.
type Strategy interface {
	Kind() Kind
	// Attribute is the attribute the strategy is bound to; unique within a
	// Dispatcher.
	Attribute() string
	// Cacheable must be a pure function of the query shape.
	Cacheable(q *Query) bool
	// Fetch answers a query for which Cacheable returned true, including
	// residual filtering, sorting and limit.
	Fetch(ctx context.Context, q *Query) ([]Record, error)
	// RecordChange is called once per committed mutation.
	RecordChange(ctx context.Context, ch Change)
	// Invalidate drops the partition identified by value. Idempotent.
	Invalidate(ctx context.Context, value any)
}

// UnimplementedStrategy can be embedded by custom strategies. Every method
// it provides except Kind panics with ErrNotImplemented, so a partially
// implemented strategy fails on first use instead of silently caching
// nothing.
type UnimplementedStrategy struct{}

func (UnimplementedStrategy) Kind() Kind                                      { return KindCustom }
func (UnimplementedStrategy) Attribute() string                               { panic(ErrNotImplemented) }
func (UnimplementedStrategy) Cacheable(*Query) bool                           { panic(ErrNotImplemented) }
func (UnimplementedStrategy) Fetch(context.Context, *Query) ([]Record, error) { panic(ErrNotImplemented) }
func (UnimplementedStrategy) RecordChange(context.Context, Change)            { panic(ErrNotImplemented) }
func (UnimplementedStrategy) Invalidate(context.Context, any)                 { panic(ErrNotImplemented) }

// base carries what every built-in strategy needs to reach the stores.
type base struct {
	entity    string
	attr      string
	typ       AttrType
	prefix    string // rc/<prefix>/
	keyMax    int
	versions  *VersionStore
	store     pr.Provider
	codec     codec.Codec[Record]
	src       Source
	log       Logger
	hooks     Hooks
	stats     *stats.Registry
	coll      collate.Collator
	recordTTL time.Duration
}

func (b *base) Attribute() string { return b.attr }

func (b *base) key(segment string) string {
	return keys.Shorten(b.prefix+segment, b.keyMax)
}

func (b *base) versioned(key string, v Version) string {
	return keys.Shorten(keys.Versioned(key, uint64(v)), b.keyMax)
}

func (b *base) count(queried, found int) {
	if b.stats != nil && b.stats.Active() {
		b.stats.Counter(b.entity, b.attr).Add(queried, found)
	}
}

func (b *base) selfHeal(ctx context.Context, storageKey, reason string) {
	b.hooks.SelfHeal(storageKey, reason)
	_ = b.store.Del(ctx, storageKey)
	b.log.Debug("dropped cached entry", Fields{"key": storageKey, "reason": reason})
}

func (b *base) readFailed(key string, err error) {
	b.hooks.ReadFailed(key, err)
	b.log.Warn("record store read failed", Fields{"entity": b.entity, "key": key, "err": err})
}

// decodeRecord validates a record blob read under version v.
func (b *base) decodeRecord(ctx context.Context, vkey string, raw []byte, v Version) (Record, bool) {
	ver, payload, err := wire.DecodeRecord(raw)
	if err != nil {
		b.selfHeal(ctx, vkey, "corrupt")
		return nil, false
	}
	if Version(ver) != v {
		b.selfHeal(ctx, vkey, "version_mismatch")
		return nil, false
	}
	rec, err := b.codec.Decode(payload)
	if err != nil {
		b.selfHeal(ctx, vkey, "decode")
		return nil, false
	}
	return rec, true
}

func (b *base) put(ctx context.Context, vkey string, blob []byte) {
	ok, err := b.store.Set(ctx, vkey, blob, int64(len(blob)), b.recordTTL)
	if err != nil {
		b.log.Warn("record store write failed", Fields{"entity": b.entity, "key": vkey, "err": err})
		return
	}
	if !ok {
		b.hooks.ProviderSetRejected(vkey)
	}
}

func (b *base) writeRecord(ctx context.Context, vkey string, v Version, rec Record) {
	payload, err := b.codec.Encode(rec)
	if err != nil {
		b.log.Error("record encode failed", Fields{"entity": b.entity, "key": vkey, "err": err})
		return
	}
	b.put(ctx, vkey, wire.EncodeRecord(uint64(v), payload))
}

func (b *base) sourceErr(op string, err error) error {
	return &SourceError{Entity: b.entity, Op: op, Err: err}
}
