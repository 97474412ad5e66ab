// Package sturdyc stores record blobs in a sharded viccon/sturdyc client.
// The client applies one TTL to every entry; per-entry TTLs are ignored.
package sturdyc

import (
	"context"
	"errors"
	"time"

	"github.com/viccon/sturdyc"

	pr "github.com/unkn0wn-root/recordcache/provider"
)

type Provider struct {
	c *sturdyc.Client[[]byte]
}

var (
	_ pr.Provider    = (*Provider)(nil)
	_ pr.MultiGetter = (*Provider)(nil)
)

type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration // 0 keeps the library default
}

func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		TTL:                time.Hour,
		EvictionPercentage: 10,
	}
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return errors.New("sturdyc: Capacity must be greater than 0")
	case c.NumShards <= 0:
		return errors.New("sturdyc: NumShards must be greater than 0")
	case c.TTL <= 0:
		return errors.New("sturdyc: TTL must be greater than 0")
	case c.EvictionPercentage < 1 || c.EvictionPercentage > 100:
		return errors.New("sturdyc: EvictionPercentage must be between 1 and 100")
	}
	return nil
}

func New(cfg Config) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}
	c := sturdyc.New[[]byte](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage, opts...)
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	return p.c.GetMany(keys), nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.c.Set(key, value)
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Delete(key)
	return nil
}

func (p *Provider) Len() int { return p.c.Size() }

func (p *Provider) Close(context.Context) error { return nil }
