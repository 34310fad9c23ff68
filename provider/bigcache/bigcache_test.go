package bigcache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestBigcacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, Config{LifeWindow: time.Hour, Shards: 16, MaxEntriesInWindow: 100, MaxEntrySize: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	if _, hit, err := p.Get(ctx, "missing"); err != nil || hit {
		t.Fatalf("miss expected: hit=%v err=%v", hit, err)
	}
	if ok, err := p.Set(ctx, "k", []byte("v"), 1, -1); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	got, hit, err := p.Get(ctx, "k")
	if err != nil || !hit || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get: hit=%v err=%v got=%q", hit, err, got)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("Del of missing key must not fail: %v", err)
	}
}

func TestBigcacheRequiresLifeWindow(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without LifeWindow")
	}
}
