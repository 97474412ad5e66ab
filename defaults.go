package recordcache

import "time"

const (
	defaultResolution = 100 * time.Microsecond
	defaultIdentity   = "id"
	keyRoot           = "rc"
	fullTableSegment  = "full-table"
	requestCacheAttr  = "request_cache"
	tracerName        = "github.com/unkn0wn-root/recordcache"
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
