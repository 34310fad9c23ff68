package cachemodel

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: they run on the read path.
// Wrap slow sinks with hooks/async.
type Hooks interface {
	CacheHit(key string)
	CacheMiss(key string)

	// A value was computed and stored.
	// reason ∈ {"miss", "dirty", "force_update", "bypass", "revalidated"}
	Recomputed(key, reason string)

	// A DIRTY value was served while a revalidation job was handed off.
	StaleServed(key string)
	RevalidationEnqueued(key string)
	// Marking FORCE_UPDATE or enqueueing failed; the stale value was still served.
	RevalidationFailed(key string, err error)

	NamespaceFlushed(ns string, gen uint64)

	// A best-effort by-field purge failed during invalidation.
	FieldPurgeError(typeName, field string, err error)

	// GenStore errors. op ∈ {"snapshot", "bump"}
	GenStoreError(op string, err error)

	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "value_decode", "field_mismatch", "stale_generation"}
	SelfHeal(key, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(key string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CacheHit(string)                       {}
func (NopHooks) CacheMiss(string)                      {}
func (NopHooks) Recomputed(string, string)             {}
func (NopHooks) StaleServed(string)                    {}
func (NopHooks) RevalidationEnqueued(string)           {}
func (NopHooks) RevalidationFailed(string, error)      {}
func (NopHooks) NamespaceFlushed(string, uint64)       {}
func (NopHooks) FieldPurgeError(string, string, error) {}
func (NopHooks) GenStoreError(string, error)           {}
func (NopHooks) SelfHeal(string, string)               {}
func (NopHooks) ProviderSetRejected(string)            {}
