package recordcache

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	pr "github.com/unkn0wn-root/recordcache/provider"
)

// Version marks the current generation of a cache key.
type Version uint64

const maxEntropyBits = 16

var errSetRejected = errors.New("recordcache: version write rejected by provider")

// VersionStoreOptions configure a VersionStore. Only Provider is required.
type VersionStoreOptions struct {
	Provider pr.Provider

	TTL    time.Duration // 0 => versions never expire
	Jitter float64       // extra TTL fraction in [0,1), randomised per write

	// Versions are derived from the wall clock truncated to Resolution
	// (default 100µs). Two workers renewing the same key within one
	// resolution window can collide; EntropyBits (0..16) appends random
	// low bits to shrink that window at the cost of version range.
	Resolution  time.Duration
	EntropyBits uint
	Now         func() time.Time

	Logger Logger
	Hooks  Hooks

	// OnWriteFailure runs after Hooks.WriteFailed when a renew or delete
	// could not be persisted.
	OnWriteFailure func(ctx context.Context, key string, err error)

	// Track records every key written so tests can Reset the store.
	Track bool
}

// VersionStore is the shared logical clock. It never returns errors for
// reads: a failed read is a miss. Failed writes are reported through Hooks
// and OnWriteFailure and returned so callers can skip dependent work.
type VersionStore struct {
	p           pr.Provider
	ttl         time.Duration
	jitter      float64
	resolution  time.Duration
	entropyBits uint
	now         func() time.Time
	log         Logger
	hooks       Hooks
	onFail      func(ctx context.Context, key string, err error)

	last    atomic.Uint64
	tracked *xsync.MapOf[string, struct{}]
}

func NewVersionStore(opts VersionStoreOptions) (*VersionStore, error) {
	if opts.Provider == nil {
		return nil, &ConfigError{Field: "VersionStore.Provider", Message: "provider is required"}
	}
	if opts.Jitter < 0 || opts.Jitter >= 1 {
		return nil, &ConfigError{Field: "VersionStore.Jitter", Message: "must be in [0,1)"}
	}
	if opts.EntropyBits > maxEntropyBits {
		return nil, &ConfigError{Field: "VersionStore.EntropyBits", Message: "must be at most 16"}
	}
	if opts.Resolution < 0 || opts.TTL < 0 {
		return nil, &ConfigError{Field: "VersionStore", Message: "durations must not be negative"}
	}
	vs := &VersionStore{
		p:           opts.Provider,
		ttl:         opts.TTL,
		jitter:      opts.Jitter,
		resolution:  coalesce(opts.Resolution, defaultResolution),
		entropyBits: opts.EntropyBits,
		now:         opts.Now,
		log:         coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:       coalesce[Hooks](opts.Hooks, NopHooks{}),
		onFail:      opts.OnWriteFailure,
	}
	if vs.now == nil {
		vs.now = time.Now
	}
	if opts.Track {
		vs.tracked = xsync.NewMapOf[string, struct{}]()
	}
	return vs, nil
}

// next returns a fresh version, strictly greater than any version this
// process issued before.
func (vs *VersionStore) next() Version {
	v := uint64(vs.now().UnixNano()/int64(vs.resolution)) << vs.entropyBits
	if vs.entropyBits > 0 {
		v |= rand.Uint64N(1 << vs.entropyBits)
	}
	for {
		last := vs.last.Load()
		if v <= last {
			v = last + 1
		}
		if vs.last.CompareAndSwap(last, v) {
			return Version(v)
		}
	}
}

// observe keeps later timestamp versions above a counter value issued by
// the provider.
func (vs *VersionStore) observe(v uint64) {
	for {
		last := vs.last.Load()
		if v <= last || vs.last.CompareAndSwap(last, v) {
			return
		}
	}
}

func (vs *VersionStore) entryTTL() time.Duration {
	if vs.ttl <= 0 {
		return 0
	}
	if vs.jitter == 0 {
		return vs.ttl
	}
	return vs.ttl + time.Duration(rand.Float64()*vs.jitter*float64(vs.ttl))
}

// Current reads the version of key without side effects.
func (vs *VersionStore) Current(ctx context.Context, key string) (Version, bool) {
	b, ok, err := vs.p.Get(ctx, key)
	if err != nil {
		vs.readFailed(key, err)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	return vs.parse(ctx, key, b)
}

func (vs *VersionStore) parse(ctx context.Context, key string, b []byte) (Version, bool) {
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil || n == 0 {
		vs.hooks.SelfHeal(key, "version_decode")
		_ = vs.p.Del(ctx, key)
		return 0, false
	}
	return Version(n), true
}

// CurrentMulti reads the versions of many keys in one batched read when the
// provider supports it. ids maps a caller id to its version key; ids whose
// key has no version are omitted from the result.
func (vs *VersionStore) CurrentMulti(ctx context.Context, ids map[string]string) map[string]Version {
	out := make(map[string]Version, len(ids))
	if len(ids) == 0 {
		return out
	}
	keys := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, k := range ids {
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	raw, err := pr.GetMulti(ctx, vs.p, keys)
	if err != nil {
		for _, k := range keys {
			vs.readFailed(k, err)
		}
		return out
	}
	parsed := make(map[string]Version, len(raw))
	for k, b := range raw {
		if v, ok := vs.parse(ctx, k, b); ok {
			parsed[k] = v
		}
	}
	for id, k := range ids {
		if v, ok := parsed[k]; ok {
			out[id] = v
		}
	}
	return out
}

// Renew installs a fresh version for key, whether or not it existed.
func (vs *VersionStore) Renew(ctx context.Context, key string) (Version, error) {
	return vs.write(ctx, key, vs.next(), "renew", true)
}

// RenewForRead is Renew for the read path: a failure only means the loaded
// data will not be cached, so the write-failure hook does not fire.
func (vs *VersionStore) RenewForRead(ctx context.Context, key string) (Version, error) {
	return vs.write(ctx, key, vs.next(), "renew", false)
}

func (vs *VersionStore) write(ctx context.Context, key string, v Version, op string, report bool) (Version, error) {
	ok, err := vs.p.Set(ctx, key, []byte(strconv.FormatUint(uint64(v), 10)), 1, vs.entryTTL())
	if err == nil && !ok {
		err = errSetRejected
	}
	if err != nil {
		if report {
			vs.fail(ctx, key, op, err)
		} else {
			vs.log.Debug("version "+op+" failed on read path", Fields{"key": key, "err": err})
		}
		return 0, err
	}
	vs.touched(ctx, key)
	vs.log.Debug("version "+op, Fields{"key": key, "version": uint64(v)})
	return v, nil
}

// Increment is the outcome of VersionStore.Increment.
type Increment struct {
	Next    Version
	Prev    Version
	HadPrev bool
	// Exact is true when Prev is guaranteed to be the version Next replaced
	// (atomic counter). Otherwise Prev was read before renewing and another
	// worker may have renewed in between.
	Exact bool
}

// Increment moves key to a new version and reports the previous one, which
// lets callers repair data cached under Prev instead of dropping it. It uses
// the provider's atomic counter when available and falls back to
// Current + Renew otherwise.
func (vs *VersionStore) Increment(ctx context.Context, key string) (Increment, error) {
	inc, ok := vs.p.(pr.Incrementer)
	if !ok {
		prev, had := vs.Current(ctx, key)
		next, err := vs.Renew(ctx, key)
		if err != nil {
			return Increment{}, err
		}
		return Increment{Next: next, Prev: prev, HadPrev: had}, nil
	}
	n, err := inc.Incr(ctx, key, vs.entryTTL())
	if err != nil {
		vs.fail(ctx, key, "increment", err)
		return Increment{}, err
	}
	if n <= 1 {
		// key was missing: start from a timestamp so it cannot collide with
		// versions issued before the key expired
		next, err := vs.Renew(ctx, key)
		if err != nil {
			return Increment{}, err
		}
		return Increment{Next: next}, nil
	}
	vs.observe(uint64(n))
	vs.touched(ctx, key)
	vs.log.Debug("version increment", Fields{"key": key, "version": n})
	return Increment{Next: Version(n), Prev: Version(n - 1), HadPrev: true, Exact: true}, nil
}

// Delete removes the version of key; data cached under any version of key
// becomes unreachable.
func (vs *VersionStore) Delete(ctx context.Context, key string) error {
	if err := vs.p.Del(ctx, key); err != nil {
		vs.fail(ctx, key, "delete", err)
		return err
	}
	vs.log.Debug("version delete", Fields{"key": key})
	return nil
}

type batchKey struct{}

type batchKeys struct {
	mu   sync.Mutex
	keys []string
}

// Multi runs fn inside the provider's write batch (pipelining) when it has
// one. Writes issued with the ctx given to fn may be deferred until fn
// returns; if the batch fails every key written inside it is reported.
func (vs *VersionStore) Multi(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(batchKey{}).(*batchKeys); nested {
		return fn(ctx)
	}
	bk := &batchKeys{}
	var fnErr error
	err := pr.Batch(ctx, vs.p, func(bctx context.Context) error {
		fnErr = fn(context.WithValue(bctx, batchKey{}, bk))
		return fnErr
	})
	if err != nil && fnErr == nil {
		bk.mu.Lock()
		keys := bk.keys
		bk.mu.Unlock()
		for _, k := range keys {
			vs.fail(ctx, k, "multi", err)
		}
	}
	return err
}

func (vs *VersionStore) touched(ctx context.Context, key string) {
	if bk, ok := ctx.Value(batchKey{}).(*batchKeys); ok {
		bk.mu.Lock()
		bk.keys = append(bk.keys, key)
		bk.mu.Unlock()
	}
	if vs.tracked != nil {
		vs.tracked.Store(key, struct{}{})
	}
}

func (vs *VersionStore) fail(ctx context.Context, key, op string, err error) {
	vs.log.Warn("version "+op+" failed", Fields{"key": key, "err": err})
	vs.hooks.WriteFailed(key, op, err)
	if vs.onFail != nil {
		vs.onFail(ctx, key, err)
	}
}

func (vs *VersionStore) readFailed(key string, err error) {
	vs.log.Warn("version read failed", Fields{"key": key, "err": err})
	vs.hooks.ReadFailed(key, err)
}

// Tracked returns the keys written since the store was created or last
// Reset. Nil unless VersionStoreOptions.Track was set.
func (vs *VersionStore) Tracked() []string {
	if vs.tracked == nil {
		return nil
	}
	var out []string
	vs.tracked.Range(func(k string, _ struct{}) bool {
		out = append(out, k)
		return true
	})
	return out
}

// Reset deletes every tracked key, invalidating everything cached through
// this store. Meant for test isolation.
func (vs *VersionStore) Reset(ctx context.Context) error {
	if vs.tracked == nil {
		return nil
	}
	var errs []error
	vs.tracked.Range(func(k string, _ struct{}) bool {
		if err := vs.p.Del(ctx, k); err != nil {
			errs = append(errs, err)
		}
		vs.tracked.Delete(k)
		return true
	})
	return errors.Join(errs...)
}
