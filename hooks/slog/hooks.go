package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/cachemodel"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	// Hits and misses are not logged unless set; 1 = log all.
	HitMissEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	hitMissCtr  atomic.Uint64
}

var _ cachemodel.Hooks = (*Hooks)(nil)

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

func (h *Hooks) hitMiss(msg, k string) {
	if h.l == nil || h.opts.HitMissEvery == 0 || !sample(h.opts.HitMissEvery, &h.hitMissCtr) {
		return
	}
	h.l.Debug(msg, "key", h.redact(k))
}

func (h *Hooks) CacheHit(k string)  { h.hitMiss("cachemodel.hit", k) }
func (h *Hooks) CacheMiss(k string) { h.hitMiss("cachemodel.miss", k) }

func (h *Hooks) Recomputed(k, reason string) {
	if h.l == nil || reason == "miss" {
		return
	}
	h.l.Debug("cachemodel.recomputed",
		"key", h.redact(k),
		"reason", reason)
}

func (h *Hooks) StaleServed(k string) {
	if h.l == nil {
		return
	}
	h.l.Debug("cachemodel.stale_served", "key", h.redact(k))
}

func (h *Hooks) RevalidationEnqueued(k string) {
	if h.l == nil {
		return
	}
	h.l.Debug("cachemodel.revalidation_enqueued", "key", h.redact(k))
}

func (h *Hooks) RevalidationFailed(k string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("cachemodel.revalidation_failed",
		"key", h.redact(k),
		"err", err)
}

func (h *Hooks) NamespaceFlushed(ns string, gen uint64) {
	if h.l == nil {
		return
	}
	h.l.Debug("cachemodel.namespace_flushed",
		"ns", h.redact(ns),
		"gen", gen)
}

func (h *Hooks) FieldPurgeError(typ, field string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("cachemodel.field_purge_error",
		"type", typ,
		"field", field,
		"err", err)
}

func (h *Hooks) GenStoreError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("cachemodel.genstore_error",
		"op", op,
		"err", err)
}

func (h *Hooks) SelfHeal(k, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("cachemodel.self_heal",
		"key", h.redact(k),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(k string) {
	if h.l == nil {
		return
	}
	h.l.Warn("cachemodel.provider_set_rejected", "key", h.redact(k))
}
