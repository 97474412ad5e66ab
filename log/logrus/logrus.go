// Package logrus adapts a *logrus.Entry to recordcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/recordcache"
)

type LogrusLogger struct{ E *logrus.Entry }

var (
	_ recordcache.Logger       = LogrusLogger{}
	_ recordcache.DebugEnabler = LogrusLogger{}
)

// New tags every line with component=recordcache.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "recordcache")}
}

func (l LogrusLogger) Debug(msg string, f recordcache.Fields) { l.log(logrus.DebugLevel, msg, f) }
func (l LogrusLogger) Info(msg string, f recordcache.Fields)  { l.log(logrus.InfoLevel, msg, f) }
func (l LogrusLogger) Warn(msg string, f recordcache.Fields)  { l.log(logrus.WarnLevel, msg, f) }
func (l LogrusLogger) Error(msg string, f recordcache.Fields) { l.log(logrus.ErrorLevel, msg, f) }

func (l LogrusLogger) DebugEnabled() bool { return l.E.Logger.IsLevelEnabled(logrus.DebugLevel) }

func (l LogrusLogger) log(lvl logrus.Level, msg string, f recordcache.Fields) {
	if !l.E.Logger.IsLevelEnabled(lvl) {
		return
	}
	fields := make(logrus.Fields, len(f))
	for k, v := range f {
		if k == "err" {
			k = logrus.ErrorKey
		}
		fields[k] = v
	}
	l.E.WithFields(fields).Log(lvl, msg)
}
