// Package provider defines the key-value store abstraction used by recordcache
// for both the version store and the record stores.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation). If a store performs internal transforms
// (e.g., compression), they MUST be fully reversed so that the bytes returned by
// Get are identical to the bytes provided to Set.
//
// Batched reads, write batching and atomic increments are optional
// capabilities (MultiGetter, Batcher, Incrementer). Callers go through GetMulti and Batch, which fall back to
// sequential calls when a provider lacks them, so strategy code never needs
// to know what the backing store supports.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<= 0 means no expiry). May ignore
	// cost if unsupported. Returns ok=false when the store rejected the write
	// under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// MultiGetter is implemented by providers that can read many keys in one
// round trip. Missing keys are omitted from the result.
type MultiGetter interface {
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)
}

// Batcher is implemented by providers that can group writes (e.g. Redis
// pipelining). Writes issued with the ctx passed to fn may be deferred until
// fn returns; their errors are reported by Batch. Reads are never deferred.
type Batcher interface {
	Batch(ctx context.Context, fn func(ctx context.Context) error) error
}

// Incrementer is implemented by providers with an atomic counter primitive
// (Redis INCR). Incr adds one to the decimal integer stored at key, creating
// it with value 1 when missing, and (re)applies ttl when ttl > 0.
type Incrementer interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// GetMulti reads keys through p's batched read when available and otherwise
// degrades to one Get per key. The first Get error aborts the sequential path.
func GetMulti(ctx context.Context, p Provider, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	if mg, ok := p.(MultiGetter); ok {
		return mg.GetMulti(ctx, keys)
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		b, ok, err := p.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = b
		}
	}
	return out, nil
}

// Batch runs fn inside p's write batch when supported; otherwise it just runs fn.
func Batch(ctx context.Context, p Provider, fn func(ctx context.Context) error) error {
	if b, ok := p.(Batcher); ok {
		return b.Batch(ctx, fn)
	}
	return fn(ctx)
}
