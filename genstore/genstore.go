// Package genstore keeps namespace generation tokens.
//
// A namespace key embeds the current generation of its namespace; bumping the
// generation orphans every key minted before it. Missing generations read as 0.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
//
//   - ProviderGenStore: the token is an ordinary cache entry next to the data
//     (read-modify-write; concurrent bumps may collapse into one).
//   - RedisGenStore: atomic INCR, shared by every process on the same Redis.
//   - LocalGenStore: in-process only; fine for tests and single-replica setups.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, ns string) (uint64, error)
	// SnapshotMany returns gens for many namespaces; missing => 0.
	SnapshotMany(ctx context.Context, nss []string) (map[string]uint64, error)
	// Bump increments and returns the new generation.
	Bump(ctx context.Context, ns string) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for shared stores).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
