// Package zap adapts a *zap.Logger to recordcache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/recordcache"
)

type ZapLogger struct{ L *zap.Logger }

var (
	_ recordcache.Logger       = ZapLogger{}
	_ recordcache.DebugEnabler = ZapLogger{}
)

// New names the logger "recordcache" so cache lines are easy to filter.
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l.Named("recordcache")} }

func (z ZapLogger) Debug(msg string, f recordcache.Fields) { z.log(zapcore.DebugLevel, msg, f) }
func (z ZapLogger) Info(msg string, f recordcache.Fields)  { z.log(zapcore.InfoLevel, msg, f) }
func (z ZapLogger) Warn(msg string, f recordcache.Fields)  { z.log(zapcore.WarnLevel, msg, f) }
func (z ZapLogger) Error(msg string, f recordcache.Fields) { z.log(zapcore.ErrorLevel, msg, f) }

func (z ZapLogger) DebugEnabled() bool { return z.L.Core().Enabled(zapcore.DebugLevel) }

func (z ZapLogger) log(lvl zapcore.Level, msg string, f recordcache.Fields) {
	if ce := z.L.Check(lvl, msg); ce != nil {
		ce.Write(zf(f)...)
	}
}

// zf converts fields in key order; "err" values become zap.Error fields.
func zf(f recordcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]zap.Field, 0, len(f))
	for _, k := range names {
		if err, ok := f[k].(error); ok && k == "err" {
			out = append(out, zap.Error(err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
