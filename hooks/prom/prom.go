// Package promhook exports cache events as Prometheus counters.
//
// Keys are reduced to their type segment ("Article:by_slug:x" => "Article")
// so label cardinality stays bounded by the number of entity types.
package promhook

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/cachemodel"
	"github.com/unkn0wn-root/cachemodel/keys"
)

type Hooks struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	recomputed    *prometheus.CounterVec
	stale         *prometheus.CounterVec
	revalidations *prometheus.CounterVec
	flushes       *prometheus.CounterVec
	fieldPurge    *prometheus.CounterVec
	genErrors     *prometheus.CounterVec
	selfHeals     *prometheus.CounterVec
	rejected      *prometheus.CounterVec
}

var _ cachemodel.Hooks = (*Hooks)(nil)

// New registers the collectors on reg (prometheus.DefaultRegisterer when
// nil). prefix defaults to "cachemodel".
func New(reg prometheus.Registerer, prefix string) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if prefix == "" {
		prefix = "cachemodel"
	}
	f := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_" + name,
			Help: help,
		}, labels)
	}

	return &Hooks{
		hits:          counter("hits_total", "Total number of cache hits", "type"),
		misses:        counter("misses_total", "Total number of cache misses", "type"),
		recomputed:    counter("recomputed_total", "Values computed and stored", "type", "reason"),
		stale:         counter("stale_served_total", "Dirty values served while revalidating", "type"),
		revalidations: counter("revalidations_total", "Revalidation hand-offs", "type", "result"), // "enqueued", "failed"
		flushes:       counter("namespace_flushes_total", "Namespace generation bumps", "type"),
		fieldPurge:    counter("field_purge_errors_total", "Failed best-effort by-field purges", "type", "field"),
		genErrors:     counter("genstore_errors_total", "Generation store errors", "op"),
		selfHeals:     counter("self_heals_total", "Entries deleted on read", "reason"),
		rejected:      counter("provider_set_rejected_total", "Writes rejected by the provider", "type"),
	}
}

func typeOf(key string) string {
	if i := strings.Index(key, keys.Sep); i >= 0 {
		key = key[:i]
	}
	if key == "" || strings.HasPrefix(key, "#") {
		return "_system"
	}
	return key
}

func (h *Hooks) CacheHit(k string)  { h.hits.WithLabelValues(typeOf(k)).Inc() }
func (h *Hooks) CacheMiss(k string) { h.misses.WithLabelValues(typeOf(k)).Inc() }
func (h *Hooks) Recomputed(k, reason string) {
	h.recomputed.WithLabelValues(typeOf(k), reason).Inc()
}
func (h *Hooks) StaleServed(k string) { h.stale.WithLabelValues(typeOf(k)).Inc() }
func (h *Hooks) RevalidationEnqueued(k string) {
	h.revalidations.WithLabelValues(typeOf(k), "enqueued").Inc()
}
func (h *Hooks) RevalidationFailed(k string, _ error) {
	h.revalidations.WithLabelValues(typeOf(k), "failed").Inc()
}
func (h *Hooks) NamespaceFlushed(ns string, _ uint64) { h.flushes.WithLabelValues(typeOf(ns)).Inc() }
func (h *Hooks) FieldPurgeError(typ, field string, _ error) {
	h.fieldPurge.WithLabelValues(typ, field).Inc()
}
func (h *Hooks) GenStoreError(op string, _ error) { h.genErrors.WithLabelValues(op).Inc() }
func (h *Hooks) SelfHeal(_ string, reason string) { h.selfHeals.WithLabelValues(reason).Inc() }
func (h *Hooks) ProviderSetRejected(k string)     { h.rejected.WithLabelValues(typeOf(k)).Inc() }
