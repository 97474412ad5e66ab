// Package sloghooks reports recordcache hook events through log/slog.
// Storage keys are redacted by default since they embed attribute values.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/recordcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	ReadFailEvery uint64
	FallbackEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	readFailCtr atomic.Uint64
	fallbackCtr atomic.Uint64
}

var _ recordcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) WriteFailed(key, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("recordcache.version_write_failed",
		"key", h.redact(key),
		"op", op,
		"err", err)
}

func (h *Hooks) ReadFailed(key string, err error) {
	if h.l == nil || !sample(h.opts.ReadFailEvery, &h.readFailCtr) {
		return
	}
	h.l.Warn("recordcache.read_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("recordcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("recordcache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) SourceFallback(entity string) {
	if h.l == nil || !sample(h.opts.FallbackEvery, &h.fallbackCtr) {
		return
	}
	h.l.Info("recordcache.source_fallback",
		"entity", entity)
}
