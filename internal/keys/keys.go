// Package keys composes cache keys and keeps them within store key limits.
package keys

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// DefaultMaxLen matches the memcached key limit, the tightest of the
// supported stores.
const DefaultMaxLen = 250

// Versioned appends the version token to a cache key, e.g. rc/person/14v1729.
func Versioned(key string, version uint64) string {
	return key + "v" + strconv.FormatUint(version, 10)
}

// Shorten returns key unchanged when it fits in max bytes. Longer keys keep a
// readable prefix and end with the xxhash of the full key, so distinct long
// keys stay distinct and the result is exactly max bytes long.
func Shorten(key string, max int) string {
	if max <= 0 || len(key) <= max {
		return key
	}
	sum := strconv.FormatUint(xxhash.Sum64String(key), 16)
	keep := max - len(sum) - 1
	if keep < 0 {
		return sum[:max]
	}
	return key[:keep] + "#" + sum
}
