// Package slog adapts a *slog.Logger to recordcache.Logger.
package slog

import (
	"context"
	stdslog "log/slog"
	"sort"

	"github.com/unkn0wn-root/recordcache"
)

var (
	_ recordcache.Logger       = Logger{}
	_ recordcache.DebugEnabler = Logger{}
)

type Logger struct{ L *stdslog.Logger }

// New groups every attribute under "recordcache".
func New(l *stdslog.Logger) Logger { return Logger{L: l.WithGroup("recordcache")} }

func (s Logger) Debug(msg string, f recordcache.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f recordcache.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f recordcache.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f recordcache.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) DebugEnabled() bool {
	return s.L.Enabled(context.Background(), stdslog.LevelDebug)
}

func (s Logger) log(lvl stdslog.Level, msg string, f recordcache.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, lvl) {
		return
	}
	s.L.LogAttrs(ctx, lvl, msg, attrs(f)...)
}

func attrs(f recordcache.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]stdslog.Attr, 0, len(f))
	for _, k := range names {
		out = append(out, stdslog.Any(k, f[k]))
	}
	return out
}
