package recordcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A version store write failed. op ∈ {"renew", "increment", "delete", "multi"}.
	// Data guarded by key must be treated as untrusted.
	WriteFailed(key, op string, err error)

	// A store read failed and was treated as a miss.
	ReadFailed(key string, err error)

	// A cached entry was deleted on read.
	// reason ∈ {"corrupt", "version_mismatch", "decode", "version_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// No strategy could answer a query; the source was queried directly.
	SourceFallback(entity string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) WriteFailed(string, string, error) {}
func (NopHooks) ReadFailed(string, error)          {}
func (NopHooks) SelfHeal(string, string)           {}
func (NopHooks) ProviderSetRejected(string)        {}
func (NopHooks) SourceFallback(string)             {}
