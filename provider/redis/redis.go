package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/recordcache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// Redis shares entries across every worker talking to the same server, which
// makes it the natural backend for the version store.
type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	closeClient bool
}

var (
	_ pr.Provider    = (*Redis)(nil)
	_ pr.MultiGetter = (*Redis)(nil)
	_ pr.Batcher     = (*Redis)(nil)
	_ pr.Incrementer = (*Redis)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	Prefix      string // optional namespace prepended to every key
	CloseClient bool   // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, prefix: cfg.Prefix, closeClient: cfg.CloseClient}, nil
}

type pipeKey struct{}

// writer returns the pipeline bound to ctx by Batch, or the client itself.
func (p *Redis) writer(ctx context.Context) goredis.Cmdable {
	if pipe, ok := ctx.Value(pipeKey{}).(goredis.Pipeliner); ok {
		return pipe
	}
	return p.rdb
}

func (p *Redis) key(k string) string { return p.prefix + k }

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, p.key(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// GetMulti issues a single MGET. Missing keys are omitted.
func (p *Redis) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = p.key(k)
	}
	vals, err := p.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
		case string:
			out[keys[i]] = []byte(vv)
		case []byte:
			out[keys[i]] = vv
		default:
			return nil, fmt.Errorf("redis mget: unexpected %T at %s", v, keys[i])
		}
	}
	return out, nil
}

// Set writes through the active pipeline when called inside Batch. In that
// case the write is only queued and ok=true reflects acceptance, not
// durability; Batch reports the outcome.
func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	if err := p.writer(ctx).Set(ctx, p.key(key), value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.writer(ctx).Del(ctx, p.key(key)).Err()
}

// Incr runs INCR and, when ttl > 0, EXPIRE in one pipeline. It always talks
// to the client directly because callers need the counter value.
func (p *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := p.key(key)
	var incr *goredis.IntCmd
	_, err := p.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		if ttl > 0 {
			pipe.Expire(ctx, k, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Batch pipelines every write issued with the ctx handed to fn into a single
// round trip. Nested calls join the outer pipeline.
func (p *Redis) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(pipeKey{}).(goredis.Pipeliner); nested {
		return fn(ctx)
	}
	var fnErr error
	_, err := p.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		fnErr = fn(context.WithValue(ctx, pipeKey{}, pipe))
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil && err != goredis.Nil {
		return err
	}
	return nil
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
