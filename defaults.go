package cachemodel

import "time"

const (
	// Forever is the "no expiry within practical bounds" timeout. It resolves to
	// Options.ForeverTimeout before reaching the provider.
	Forever time.Duration = -1

	defaultForever   = 365 * 24 * time.Hour
	defaultMaxKeyLen = 250 // memcached's key limit
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
