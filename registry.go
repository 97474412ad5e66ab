package recordcache

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/recordcache/codec"
	"github.com/unkn0wn-root/recordcache/collate"
	"github.com/unkn0wn-root/recordcache/internal/keys"
	pr "github.com/unkn0wn-root/recordcache/provider"
	"github.com/unkn0wn-root/recordcache/provider/memory"
	"github.com/unkn0wn-root/recordcache/stats"
)

// Status switches the whole registry between modes.
type Status int32

const (
	// Enabled: reads use the cache, changes maintain it.
	Enabled Status = iota
	// NoFetch: reads bypass the cache, changes still maintain it.
	NoFetch
	// Disabled: the cache is neither read nor maintained.
	Disabled
)

func (s Status) String() string {
	switch s {
	case Enabled:
		return "enabled"
	case NoFetch:
		return "no_fetch"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Options tune a Registry. Every field is optional.
type Options struct {
	Versions pr.Provider            // version store; nil => in-process memory store
	Records  pr.Provider            // default record store; nil => in-process memory store
	Stores   map[string]pr.Provider // named record stores for EntityConfig.Store

	Codec    codec.Codec[Record] // nil => msgpack
	Logger   Logger              // if nil, NopLogger is used
	Hooks    Hooks               // if nil, NopHooks is used
	Stats    *stats.Registry     // nil => a fresh, inactive registry
	Tracer   trace.Tracer        // nil => otel global tracer provider
	Collator collate.Collator    // nil => collate.Fold

	VersionTTL      time.Duration // 0 => versions never expire
	VersionJitter   float64       // [0,1)
	ClockResolution time.Duration // 0 => 100µs
	EntropyBits     uint          // 0..16
	RecordTTL       time.Duration // 0 => 10m
	KeyMaxLen       int           // 0 => 250
	CleanupInterval time.Duration // memory stores; 0 => 1h

	OnWriteFailure func(ctx context.Context, key string, err error)
	TrackVersions  bool
	Status         Status
}

// EntityConfig declares how one entity type is cached.
type EntityConfig struct {
	Name       string
	KeyPrefix  string              // defaults to Name
	Identity   string              // defaults to "id" when present in Attributes
	Attributes map[string]AttrType // schema; every cached attribute must be listed

	Unique       []string // extra unique attributes (string or integer)
	Index        []string // non-unique attributes (string or integer)
	FullTable    bool
	RequestCache bool

	Store     string        // name in Options.Stores; "" => Options.Records
	RecordTTL time.Duration // 0 => Options.RecordTTL
}

// Registry is the explicit owner of everything cached for a set of entity
// types: the version store, record stores, dispatchers, live scopes and
// statistics.
type Registry struct {
	opts     Options
	versions *VersionStore
	records  pr.Provider
	codec    codec.Codec[Record]
	log      Logger
	hooks    Hooks
	stats    *stats.Registry
	tracer   trace.Tracer
	coll     collate.Collator
	scopes   *scopeSet
	status   atomic.Int32

	models *xsync.MapOf[string, *Model]
	regMu  sync.Mutex

	owned     []pr.Provider
	closeOnce sync.Once
}

func NewRegistry(opts Options) (*Registry, error) {
	if opts.Status < Enabled || opts.Status > Disabled {
		return nil, &ConfigError{Field: "Status", Message: "unknown status"}
	}
	r := &Registry{
		opts:   opts,
		log:    coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:  coalesce[Hooks](opts.Hooks, NopHooks{}),
		codec:  opts.Codec,
		stats:  opts.Stats,
		tracer: opts.Tracer,
		coll:   coalesce[collate.Collator](opts.Collator, collate.Fold),
		scopes: newScopeSet(),
		models: xsync.NewMapOf[string, *Model](),
	}
	if r.codec == nil {
		r.codec = codec.Msgpack[Record]{}
	}
	if r.stats == nil {
		r.stats = stats.New()
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	cleanup := coalesce(opts.CleanupInterval, time.Hour)
	vp := opts.Versions
	if vp == nil {
		m := memory.New(cleanup)
		r.owned = append(r.owned, m)
		vp = m
	}
	r.records = opts.Records
	if r.records == nil {
		m := memory.New(cleanup)
		r.owned = append(r.owned, m)
		r.records = m
	}
	vs, err := NewVersionStore(VersionStoreOptions{
		Provider:       vp,
		TTL:            opts.VersionTTL,
		Jitter:         opts.VersionJitter,
		Resolution:     opts.ClockResolution,
		EntropyBits:    opts.EntropyBits,
		Logger:         r.log,
		Hooks:          r.hooks,
		OnWriteFailure: opts.OnWriteFailure,
		Track:          opts.TrackVersions,
	})
	if err != nil {
		_ = r.closeOwned(context.Background())
		return nil, err
	}
	r.versions = vs
	r.status.Store(int32(opts.Status))
	return r, nil
}

func (r *Registry) Versions() *VersionStore { return r.versions }
func (r *Registry) Stats() *stats.Registry  { return r.stats }
func (r *Registry) Status() Status          { return Status(r.status.Load()) }
func (r *Registry) SetStatus(s Status)      { r.status.Store(int32(s)) }

// BeginScope starts a unit of work. Attach it with WithScope and call End
// when the unit of work is over.
func (r *Registry) BeginScope() *Scope { return r.scopes.begin() }

// Model returns the façade of a registered entity.
func (r *Registry) Model(entity string) (*Model, bool) { return r.models.Load(entity) }

// Dispatcher returns the dispatcher of a registered entity.
func (r *Registry) Dispatcher(entity string) (*Dispatcher, bool) {
	m, ok := r.models.Load(entity)
	if !ok {
		return nil, false
	}
	return m.d, true
}

// Entities returns the registered entity names, sorted.
func (r *Registry) Entities() []string {
	var out []string
	r.models.Range(func(name string, _ *Model) bool {
		out = append(out, name)
		return true
	})
	sort.Strings(out)
	return out
}

// Register validates cfg, builds the entity's strategies and returns its
// Model. Configuration problems are reported as *ConfigError.
func (r *Registry) Register(cfg EntityConfig, src Source) (*Model, error) {
	if cfg.Name == "" {
		return nil, &ConfigError{Field: "Name", Message: "entity name is required"}
	}
	if src == nil {
		return nil, configErr(cfg.Name, "", "source is required")
	}
	if len(cfg.Attributes) == 0 {
		return nil, configErr(cfg.Name, "Attributes", "at least one attribute is required")
	}
	store := r.records
	if cfg.Store != "" {
		p, ok := r.opts.Stores[cfg.Store]
		if !ok || p == nil {
			return nil, configErr(cfg.Name, "Store", "unknown store %q", cfg.Store)
		}
		store = p
	}

	r.regMu.Lock()
	defer r.regMu.Unlock()
	if _, dup := r.models.Load(cfg.Name); dup {
		return nil, configErr(cfg.Name, "", "entity already registered")
	}

	d := &Dispatcher{
		entity: cfg.Name,
		byAttr: map[string]Strategy{},
		tracer: r.tracer,
		log:    r.log,
		hooks:  r.hooks,
	}
	mk := func(attr string, typ AttrType) base {
		return base{
			entity:    cfg.Name,
			attr:      attr,
			typ:       typ,
			prefix:    keyRoot + "/" + coalesce(cfg.KeyPrefix, cfg.Name) + "/",
			keyMax:    coalesce(r.opts.KeyMaxLen, keys.DefaultMaxLen),
			versions:  r.versions,
			store:     store,
			codec:     r.codec,
			src:       src,
			log:       r.log,
			hooks:     r.hooks,
			stats:     r.stats,
			coll:      r.coll,
			recordTTL: coalesce(cfg.RecordTTL, coalesce(r.opts.RecordTTL, 10*time.Minute)),
		}
	}
	keyed := func(field, attr string) (AttrType, error) {
		typ, ok := cfg.Attributes[attr]
		if !ok {
			return Other, configErr(cfg.Name, field, "no attribute %q", attr)
		}
		if typ != Integer && typ != String {
			return Other, configErr(cfg.Name, field, "attribute %q must be string or integer, found %s", attr, typ)
		}
		return typ, nil
	}

	identity := coalesce(cfg.Identity, defaultIdentity)
	_, hasIdentity := cfg.Attributes[identity]
	if cfg.Identity != "" && !hasIdentity {
		return nil, configErr(cfg.Name, "Identity", "no attribute %q", cfg.Identity)
	}

	var identityStrategy *UniqueIndex
	unique := cfg.Unique
	if hasIdentity && !slices.Contains(unique, identity) {
		unique = append([]string{identity}, unique...)
	}
	for _, attr := range unique {
		typ, err := keyed("Unique", attr)
		if err != nil {
			return nil, err
		}
		s := &UniqueIndex{base: mk(attr, typ), identity: hasIdentity && attr == identity}
		if err := d.Add(s); err != nil {
			return nil, err
		}
		if s.identity {
			identityStrategy = s
			d.identity = identity
		}
	}

	if len(cfg.Index) > 0 {
		if cfg.FullTable {
			return nil, configErr(cfg.Name, "Index", "index cache is redundant with the full table cache")
		}
		if identityStrategy == nil {
			return nil, configErr(cfg.Name, "Index", "index cache requires identity attribute %q", identity)
		}
	}
	for _, attr := range cfg.Index {
		typ, err := keyed("Index", attr)
		if err != nil {
			return nil, err
		}
		if err := d.Add(&Index{base: mk(attr, typ), identity: identityStrategy}); err != nil {
			return nil, err
		}
	}

	if cfg.FullTable {
		if err := d.Add(&FullTable{base: mk(fullTableAttr, Other)}); err != nil {
			return nil, err
		}
	}
	if cfg.RequestCache {
		d.request = &RequestCache{entity: cfg.Name, scopes: r.scopes, log: r.log, stats: r.stats}
	}
	if len(d.strategies) == 0 && d.request == nil {
		return nil, configErr(cfg.Name, "", "no cache strategy configured")
	}

	m := &Model{reg: r, name: cfg.Name, d: d, src: src}
	r.models.Store(cfg.Name, m)
	r.log.Info("entity registered", Fields{"entity": cfg.Name, "strategies": len(d.strategies), "request_cache": cfg.RequestCache})
	return m, nil
}

// Close releases the memory stores the registry created itself. Providers
// passed in Options belong to the caller.
func (r *Registry) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() { err = r.closeOwned(ctx) })
	return err
}

func (r *Registry) closeOwned(ctx context.Context) error {
	var errs []error
	for _, p := range r.owned {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
