// Package config loads a registry description from a HuJSON file (JSON with
// comments and trailing commas), lets RECORDCACHE_* environment variables
// override the scalar settings, validates the result and builds the
// providers and the recordcache.Registry it describes.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tailscale/hujson"

	"github.com/unkn0wn-root/recordcache"
)

const EnvPrefix = "RECORDCACHE_"

var errConfigFileRead = errors.New("cannot read config file")

// Duration reads "150ms"/"10m" style strings from both JSON and env.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// File is the on-disk configuration.
type File struct {
	Settings
	Stores   map[string]StoreConfig `json:"stores,omitempty"`
	Entities []Entity               `json:"entities"`
}

// Settings holds everything environment variables may override.
type Settings struct {
	Versions StoreConfig `json:"versions" envPrefix:"VERSIONS_"`
	Records  StoreConfig `json:"records" envPrefix:"RECORDS_"`

	Codec           string   `json:"codec,omitempty" env:"CODEC"`
	Collation       string   `json:"collation,omitempty" env:"COLLATION"` // "" or "fold", else a BCP 47 tag
	Status          string   `json:"status,omitempty" env:"STATUS"`
	VersionTTL      Duration `json:"version_ttl,omitempty" env:"VERSION_TTL"`
	VersionJitter   float64  `json:"version_jitter,omitempty" env:"VERSION_JITTER"`
	ClockResolution Duration `json:"clock_resolution,omitempty" env:"CLOCK_RESOLUTION"`
	EntropyBits     uint     `json:"entropy_bits,omitempty" env:"ENTROPY_BITS"`
	RecordTTL       Duration `json:"record_ttl,omitempty" env:"RECORD_TTL"`
	KeyMaxLen       int      `json:"key_max_len,omitempty" env:"KEY_MAX_LEN"`
	CleanupInterval Duration `json:"cleanup_interval,omitempty" env:"CLEANUP_INTERVAL"`
}

// StoreConfig selects and tunes one provider.
type StoreConfig struct {
	Kind string `json:"kind" env:"KIND"` // memory, redis, bigcache, ristretto, sturdyc

	// redis
	Addr     string `json:"addr,omitempty" env:"ADDR"`
	Password string `json:"password,omitempty" env:"PASSWORD"`
	DB       int    `json:"db,omitempty" env:"DB"`
	Prefix   string `json:"prefix,omitempty" env:"PREFIX"`

	// bigcache
	LifeWindow  Duration `json:"life_window,omitempty" env:"LIFE_WINDOW"`
	CleanWindow Duration `json:"clean_window,omitempty" env:"CLEAN_WINDOW"`
	HardMaxMB   int      `json:"hard_max_mb,omitempty" env:"HARD_MAX_MB"`

	// ristretto
	NumCounters int64 `json:"num_counters,omitempty" env:"NUM_COUNTERS"`
	MaxCost     int64 `json:"max_cost,omitempty" env:"MAX_COST"`
	BufferItems int64 `json:"buffer_items,omitempty" env:"BUFFER_ITEMS"`
	SyncWrites  bool  `json:"sync_writes,omitempty" env:"SYNC_WRITES"`

	// sturdyc
	Capacity int      `json:"capacity,omitempty" env:"CAPACITY"`
	Shards   int      `json:"shards,omitempty" env:"SHARDS"`
	TTL      Duration `json:"ttl,omitempty" env:"TTL"`
}

// Entity mirrors recordcache.EntityConfig with attribute types by name.
type Entity struct {
	Name         string            `json:"name"`
	KeyPrefix    string            `json:"key_prefix,omitempty"`
	Identity     string            `json:"identity,omitempty"`
	Attributes   map[string]string `json:"attributes"`
	Unique       []string          `json:"unique,omitempty"`
	Index        []string          `json:"index,omitempty"`
	FullTable    bool              `json:"full_table,omitempty"`
	RequestCache bool              `json:"request_cache,omitempty"`
	Store        string            `json:"store,omitempty"`
	RecordTTL    Duration          `json:"record_ttl,omitempty"`
}

// Load reads path, applies environment overrides and validates.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errConfigFileRead, path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse is Load without the file.
func Parse(data []byte) (*File, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid HuJSON: %w", err)
	}
	var f File
	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := env.ParseWithOptions(&f.Settings, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := Validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (e Entity) config() (recordcache.EntityConfig, error) {
	attrs := make(map[string]recordcache.AttrType, len(e.Attributes))
	for name, typ := range e.Attributes {
		t, ok := recordcache.ParseAttrType(typ)
		if !ok {
			return recordcache.EntityConfig{}, &recordcache.ConfigError{
				Entity: e.Name, Field: "Attributes", Message: fmt.Sprintf("unknown type %q for %q", typ, name),
			}
		}
		attrs[name] = t
	}
	return recordcache.EntityConfig{
		Name:         e.Name,
		KeyPrefix:    e.KeyPrefix,
		Identity:     e.Identity,
		Attributes:   attrs,
		Unique:       e.Unique,
		Index:        e.Index,
		FullTable:    e.FullTable,
		RequestCache: e.RequestCache,
		Store:        e.Store,
		RecordTTL:    e.RecordTTL.Std(),
	}, nil
}
