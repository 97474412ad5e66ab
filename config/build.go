package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/unkn0wn-root/recordcache"
	"github.com/unkn0wn-root/recordcache/codec"
	"github.com/unkn0wn-root/recordcache/collate"
	pr "github.com/unkn0wn-root/recordcache/provider"
	"github.com/unkn0wn-root/recordcache/provider/bigcache"
	"github.com/unkn0wn-root/recordcache/provider/memory"
	"github.com/unkn0wn-root/recordcache/provider/redis"
	"github.com/unkn0wn-root/recordcache/provider/ristretto"
	"github.com/unkn0wn-root/recordcache/provider/sturdyc"
)

// Deps are the runtime collaborators a file cannot describe.
type Deps struct {
	// Sources maps entity names to their system of record. Every entity in
	// the file needs one.
	Sources map[string]recordcache.Source
	Logger  recordcache.Logger
	Hooks   recordcache.Hooks
}

// Cache is a built registry together with the providers Build created.
type Cache struct {
	Registry *recordcache.Registry
	Models   map[string]*recordcache.Model

	providers []pr.Provider
}

// Close closes the registry and every provider Build created.
func (c *Cache) Close(ctx context.Context) error {
	errs := []error{c.Registry.Close(ctx)}
	for _, p := range c.providers {
		errs = append(errs, p.Close(ctx))
	}
	return errors.Join(errs...)
}

// Build creates the providers described by f, a registry over them and one
// model per entity.
func Build(ctx context.Context, f *File, deps Deps) (*Cache, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}
	c := &Cache{Models: make(map[string]*recordcache.Model, len(f.Entities))}
	fail := func(err error) (*Cache, error) {
		for _, p := range c.providers {
			_ = p.Close(ctx)
		}
		return nil, err
	}

	open := func(name string, sc StoreConfig) (pr.Provider, error) {
		p, err := NewProvider(ctx, sc, f.CleanupInterval.Std())
		if err != nil {
			return nil, &recordcache.ConfigError{Field: name, Message: err.Error()}
		}
		c.providers = append(c.providers, p)
		return p, nil
	}
	versions, err := open("versions", f.Versions)
	if err != nil {
		return fail(err)
	}
	records, err := open("records", f.Records)
	if err != nil {
		return fail(err)
	}
	stores := make(map[string]pr.Provider, len(f.Stores))
	for name, sc := range f.Stores {
		p, err := open("stores."+name, sc)
		if err != nil {
			return fail(err)
		}
		stores[name] = p
	}

	cd, err := Codec(f.Codec)
	if err != nil {
		return fail(err)
	}
	reg, err := recordcache.NewRegistry(recordcache.Options{
		Versions:        versions,
		Records:         records,
		Stores:          stores,
		Codec:           cd,
		Logger:          deps.Logger,
		Hooks:           deps.Hooks,
		Collator:        Collator(f.Collation),
		VersionTTL:      f.VersionTTL.Std(),
		VersionJitter:   f.VersionJitter,
		ClockResolution: f.ClockResolution.Std(),
		EntropyBits:     f.EntropyBits,
		RecordTTL:       f.RecordTTL.Std(),
		KeyMaxLen:       f.KeyMaxLen,
		CleanupInterval: f.CleanupInterval.Std(),
		Status:          status(f.Status),
	})
	if err != nil {
		return fail(err)
	}
	c.Registry = reg

	for _, e := range f.Entities {
		src, ok := deps.Sources[e.Name]
		if !ok {
			_ = reg.Close(ctx)
			return fail(&recordcache.ConfigError{Entity: e.Name, Message: "no source provided"})
		}
		ec, err := e.config()
		if err != nil {
			_ = reg.Close(ctx)
			return fail(err)
		}
		m, err := reg.Register(ec, src)
		if err != nil {
			_ = reg.Close(ctx)
			return fail(err)
		}
		c.Models[e.Name] = m
	}
	return c, nil
}

// NewProvider opens the provider described by sc. cleanup drives the
// expiry sweep of memory stores.
func NewProvider(ctx context.Context, sc StoreConfig, cleanup time.Duration) (pr.Provider, error) {
	switch sc.Kind {
	case "memory":
		if cleanup <= 0 {
			cleanup = time.Hour
		}
		return memory.New(cleanup), nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: sc.Addr, Password: sc.Password, DB: sc.DB})
		return opened(redis.New(redis.Config{Client: client, Prefix: sc.Prefix, CloseClient: true}))
	case "bigcache":
		return opened(bigcache.New(ctx, bigcache.Config{
			LifeWindow:         sc.LifeWindow.Std(),
			CleanWindow:        sc.CleanWindow.Std(),
			Shards:             sc.Shards,
			HardMaxCacheSizeMB: sc.HardMaxMB,
		}))
	case "ristretto":
		buf := sc.BufferItems
		if buf <= 0 {
			buf = 64
		}
		return opened(ristretto.New(ristretto.Config{
			NumCounters: sc.NumCounters,
			MaxCost:     sc.MaxCost,
			BufferItems: buf,
			SyncWrites:  sc.SyncWrites,
		}))
	case "sturdyc":
		cfg := sturdyc.DefaultConfig()
		if sc.Capacity > 0 {
			cfg.Capacity = sc.Capacity
		}
		if sc.Shards > 0 {
			cfg.NumShards = sc.Shards
		}
		if sc.TTL > 0 {
			cfg.TTL = sc.TTL.Std()
		}
		return opened(sturdyc.New(cfg))
	}
	return nil, fmt.Errorf("unknown store kind %q", sc.Kind)
}

// opened keeps a typed nil out of the interface on error.
func opened[P pr.Provider](p P, err error) (pr.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Codec returns the record codec registered under name; "" is msgpack.
func Codec(name string) (codec.Codec[recordcache.Record], error) {
	switch name {
	case "", "msgpack":
		return codec.Msgpack[recordcache.Record]{}, nil
	case "cbor":
		c, err := codec.NewCBOR[recordcache.Record](true)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "json":
		return codec.JSON[recordcache.Record]{}, nil
	case "structpb":
		return codec.Struct[recordcache.Record]{}, nil
	}
	return nil, &recordcache.ConfigError{Field: "codec", Message: fmt.Sprintf("unknown codec %q", name)}
}

// Collator maps the collation setting to a collator; unparsable tags fall
// back to collate.Fold.
func Collator(name string) collate.Collator {
	if name == "" || strings.EqualFold(name, "fold") {
		return collate.Fold
	}
	tag, err := language.Parse(name)
	if err != nil {
		return collate.Fold
	}
	return collate.Locale(tag)
}

func status(s string) recordcache.Status {
	switch s {
	case "no_fetch":
		return recordcache.NoFetch
	case "disabled":
		return recordcache.Disabled
	default:
		return recordcache.Enabled
	}
}
