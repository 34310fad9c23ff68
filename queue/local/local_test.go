package local

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/cachemodel"
	"github.com/unkn0wn-root/cachemodel/keys"
	"github.com/unkn0wn-root/cachemodel/provider/ristretto"
)

type handlerFunc func(context.Context, cachemodel.Job) error

func (f handlerFunc) HandleJob(ctx context.Context, j cachemodel.Job) error { return f(ctx, j) }

func TestEnqueueFullAndClosed(t *testing.T) {
	q := New(Options{QueueLen: 1})
	ctx := context.Background()
	job := cachemodel.Job{Type: "Article", Function: "f", Key: "k", IsManager: true}

	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, job); !errors.Is(err, ErrFull) {
		t.Fatalf("want ErrFull, got %v", err)
	}
	q.Close()
	if err := q.Enqueue(ctx, job); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	q.Close() // idempotent
}

func TestWorkersRunJobsWithTimeout(t *testing.T) {
	q := New(Options{Workers: 3, QueueLen: 16, Timeout: time.Second})
	var (
		mu   sync.Mutex
		seen []string
	)
	q.Start(handlerFunc(func(ctx context.Context, j cachemodel.Job) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("job context has no deadline")
		}
		mu.Lock()
		seen = append(seen, j.Key)
		mu.Unlock()
		return nil
	}))
	for _, k := range []string{"a", "b", "c", "d"} {
		if err := q.Enqueue(context.Background(), cachemodel.Job{Key: k}); err != nil {
			t.Fatal(err)
		}
	}
	q.Close()
	if len(seen) != 4 {
		t.Fatalf("ran %d jobs", len(seen))
	}
}

func TestRevalidatesThroughCache(t *testing.T) {
	ctx := context.Background()
	p, err := ristretto.New(ristretto.Config{NumCounters: 1e4, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatal(err)
	}
	q := New(Options{Workers: 1, QueueLen: 8})
	c, err := cachemodel.New(cachemodel.Options{Provider: p, Enqueuer: q, DefaultTimeout: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(ctx)
	q.Start(c)

	var n int
	var mu sync.Mutex
	m, err := cachemodel.NewMethod(c, cachemodel.MethodOptions[int]{
		Type:  "Article",
		Name:  "count",
		Keys:  cachemodel.KeysSignature,
		Async: true,
		Compute: func(context.Context, cachemodel.Entity, keys.Args) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			n++
			return n, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	args := keys.Of("published")
	if v, _ := m.Call(ctx, nil, args); v != 1 {
		t.Fatalf("first=%d", v)
	}
	_ = m.MarkDirty(ctx, nil, args)
	if v, _ := m.Call(ctx, nil, args); v != 1 {
		t.Fatalf("stale=%d", v)
	}
	q.Close() // waits for the revalidation

	key, _ := m.Key(ctx, nil, args)
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok || string(raw) != "2" {
		t.Fatalf("worker result: %q ok=%v err=%v", raw, ok, err)
	}
	if mk := c.Marker(ctx, key); mk != cachemodel.MarkerForceUpdate {
		t.Fatalf("marker=%v", mk)
	}
}
