package genstore

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/cachemodel/internal/wire"
	pr "github.com/unkn0wn-root/cachemodel/provider"
)

// ProviderGenStore stores each generation as a framed entry in the cache
// store itself, under "#gen:<ns>". Bump is read-modify-write: two concurrent
// bumps of one namespace may produce the same new generation. Both writers
// still moved the namespace past the generation they read, so keys minted
// before either bump stay orphaned.
type ProviderGenStore struct {
	p   pr.Provider
	ttl time.Duration
}

var _ GenStore = (*ProviderGenStore)(nil)

// NewProviderGenStore keeps generations in p with the given TTL
// (ttl <= 0 => no expiry).
func NewProviderGenStore(p pr.Provider, ttl time.Duration) *ProviderGenStore {
	return &ProviderGenStore{p: p, ttl: ttl}
}

func (s *ProviderGenStore) key(ns string) string { return "#gen:" + ns }

func (s *ProviderGenStore) Snapshot(ctx context.Context, ns string) (uint64, error) {
	raw, ok, err := s.p.Get(ctx, s.key(ns))
	if err != nil || !ok {
		return 0, err
	}
	g, err := wire.DecodeGen(raw)
	if err != nil {
		// a foreign value under our key; report rather than silently restart at 0
		return 0, errors.Join(errors.New("genstore: corrupt generation for "+ns), err)
	}
	return g, nil
}

func (s *ProviderGenStore) SnapshotMany(ctx context.Context, nss []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(nss))
	for _, ns := range nss {
		g, err := s.Snapshot(ctx, ns)
		if err != nil {
			return nil, err
		}
		out[ns] = g
	}
	return out, nil
}

func (s *ProviderGenStore) Bump(ctx context.Context, ns string) (uint64, error) {
	cur, err := s.Snapshot(ctx, ns)
	if err != nil && !errors.Is(err, wire.ErrCorrupt) {
		return 0, err
	}
	next := cur + 1
	ok, err := s.p.Set(ctx, s.key(ns), wire.EncodeGen(next), 1, s.ttl)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New("genstore: provider rejected generation write for " + ns)
	}
	return next, nil
}

func (s *ProviderGenStore) Cleanup(time.Duration) {}

// Close does not close the provider; the cache owns it.
func (s *ProviderGenStore) Close(context.Context) error { return nil }
