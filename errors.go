package recordcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotImplemented is the panic value of UnimplementedStrategy methods.
	ErrNotImplemented = errors.New("recordcache: strategy operation not implemented")

	// ErrNotCacheable is returned by Dispatcher.Fetch when no strategy can
	// answer the query and no fallback was given.
	ErrNotCacheable = errors.New("recordcache: query not cacheable")

	// ErrUnknownEntity is returned for entities that were never registered.
	ErrUnknownEntity = errors.New("recordcache: unknown entity")

	// ErrUnknownStrategy is returned by Dispatcher.Invalidate for an
	// attribute no strategy is bound to.
	ErrUnknownStrategy = errors.New("recordcache: no strategy for attribute")
)

// ConfigError reports an invalid entity or registry configuration. It is
// returned at setup time and never during read/write traffic.
type ConfigError struct {
	Entity  string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Entity != "" && e.Field != "":
		return fmt.Sprintf("recordcache: %s.%s: %s", e.Entity, e.Field, e.Message)
	case e.Entity != "":
		return fmt.Sprintf("recordcache: %s: %s", e.Entity, e.Message)
	case e.Field != "":
		return fmt.Sprintf("recordcache: %s: %s", e.Field, e.Message)
	default:
		return "recordcache: " + e.Message
	}
}

func configErr(entity, field, format string, args ...any) *ConfigError {
	return &ConfigError{Entity: entity, Field: field, Message: fmt.Sprintf(format, args...)}
}

// SourceError wraps a failure of the system of record. Unlike store
// failures these reach the caller.
type SourceError struct {
	Entity string
	Op     string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("recordcache: %s source %s: %v", e.Entity, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
