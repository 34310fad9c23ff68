package genstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/cachemodel/internal/wire"
	pr "github.com/unkn0wn-root/cachemodel/provider"
)

type memProvider struct {
	mu sync.Mutex
	m  map[string][]byte
}

var _ pr.Provider = (*memProvider)(nil)

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = value
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func TestProviderGenStoreDefaultsToZeroAndBumps(t *testing.T) {
	ctx := context.Background()
	mp := &memProvider{m: map[string][]byte{}}
	s := NewProviderGenStore(mp, 0)

	if g, err := s.Snapshot(ctx, "Widget:1"); err != nil || g != 0 {
		t.Fatalf("fresh namespace: g=%d err=%v", g, err)
	}
	for want := uint64(1); want <= 3; want++ {
		g, err := s.Bump(ctx, "Widget:1")
		if err != nil || g != want {
			t.Fatalf("Bump: g=%d err=%v want %d", g, err, want)
		}
	}
	if _, ok := mp.m["#gen:Widget:1"]; !ok {
		t.Fatalf("generation should live in the provider under #gen:<ns>")
	}

	got, err := s.SnapshotMany(ctx, []string{"Widget:1", "Widget:2"})
	if err != nil {
		t.Fatal(err)
	}
	if got["Widget:1"] != 3 || got["Widget:2"] != 0 {
		t.Fatalf("SnapshotMany=%v", got)
	}
}

func TestProviderGenStoreCorruptEntry(t *testing.T) {
	ctx := context.Background()
	mp := &memProvider{m: map[string][]byte{"#gen:ns": []byte("garbage")}}
	s := NewProviderGenStore(mp, 0)

	if _, err := s.Snapshot(ctx, "ns"); !errors.Is(err, wire.ErrCorrupt) {
		t.Fatalf("want ErrCorrupt, got %v", err)
	}
	// Bump overwrites the corrupt token with a valid one.
	if g, err := s.Bump(ctx, "ns"); err != nil || g != 1 {
		t.Fatalf("Bump over corrupt: g=%d err=%v", g, err)
	}
	if g, err := s.Snapshot(ctx, "ns"); err != nil || g != 1 {
		t.Fatalf("Snapshot after repair: g=%d err=%v", g, err)
	}
}
