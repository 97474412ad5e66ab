package recordcache

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger. Provide an adapter around logging stack.
// If Logger is nil in Options, logging is disabled.
//
// Strategies log one Debug line per lookup ("unique index hit", "index
// miss", "full table hit", "request cache hit") and per version write
// ("version renew", "version delete").
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// DebugEnabler is an optional Logger capability. When DebugEnabled reports
// false, per-lookup fields are not built at all.
type DebugEnabler interface {
	DebugEnabled() bool
}

// debugEnabled reports true for loggers that cannot tell.
func debugEnabled(l Logger) bool {
	if de, ok := l.(DebugEnabler); ok {
		return de.DebugEnabled()
	}
	return true
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
func (NopLogger) DebugEnabled() bool   { return false }
