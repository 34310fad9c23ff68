package redisq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/cachemodel"
	"github.com/unkn0wn-root/cachemodel/genstore"
	"github.com/unkn0wn-root/cachemodel/internal/testredis"
	"github.com/unkn0wn-root/cachemodel/keys"
	rp "github.com/unkn0wn-root/cachemodel/provider/redis"
)

type article struct{ ID int64 }

func (article) TypeName() string  { return "Article" }
func (a article) InstanceID() any { return a.ID }

func TestNilClient(t *testing.T) {
	if _, err := New(nil, Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("want ErrNilClient, got %v", err)
	}
}

func TestJobRoundTripAndMaxLen(t *testing.T) {
	rdb := testredis.Client(t)
	ctx := context.Background()
	q, err := New(rdb, Config{List: "test:jobs", MaxLen: 1})
	if err != nil {
		t.Fatal(err)
	}

	job := cachemodel.Job{
		ID:         "j1",
		Type:       "Article",
		InstanceID: int64(7),
		Function:   "summary",
		Key:        "Article:7:summary:#0",
		Args:       []any{"a", int64(2)},
		Kwargs:     []keys.KV{{Key: "lang", Value: "en"}},
		Owner:      article{ID: 7},
	}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, job); !errors.Is(err, ErrFull) {
		t.Fatalf("want ErrFull, got %v", err)
	}

	var got cachemodel.Job
	w := q.Worker(handlerFunc(func(_ context.Context, j cachemodel.Job) error {
		got = j
		return nil
	}), WorkerOptions{Block: time.Second})
	taken, err := w.ProcessOne(ctx)
	if err != nil || !taken {
		t.Fatalf("ProcessOne: taken=%v err=%v", taken, err)
	}
	if got.ID != "j1" || got.Key != job.Key || got.Owner != nil {
		t.Fatalf("job=%+v", got)
	}
	if id, _ := got.InstanceID.(int64); id != 7 {
		t.Fatalf("instance id %T %v", got.InstanceID, got.InstanceID)
	}
	if keys.Encode(got.Args[1]) != "2" || got.Kwargs[0].Key != "lang" {
		t.Fatalf("args=%v kwargs=%v", got.Args, got.Kwargs)
	}

	// empty list: nothing taken, no error
	taken, err = w.ProcessOne(ctx)
	if err != nil || taken {
		t.Fatalf("empty poll: taken=%v err=%v", taken, err)
	}
}

func TestGarbagePayloadIsMalformed(t *testing.T) {
	rdb := testredis.Client(t)
	ctx := context.Background()
	q, _ := New(rdb, Config{List: "test:jobs"})
	rdb.LPush(ctx, "test:jobs", "not msgpack")

	w := q.Worker(handlerFunc(func(context.Context, cachemodel.Job) error {
		t.Fatalf("handler must not run")
		return nil
	}), WorkerOptions{Block: time.Second})
	if _, err := w.ProcessOne(ctx); !errors.Is(err, cachemodel.ErrMalformedJob) {
		t.Fatalf("want ErrMalformedJob, got %v", err)
	}
}

func TestCrossProcessRevalidation(t *testing.T) {
	rdb := testredis.Client(t)
	ctx := context.Background()

	// web and worker share Redis for values, generations and jobs
	newCache := func() *cachemodel.Cache {
		p, err := rp.New(rp.Config{Client: rdb, Prefix: "test:"})
		if err != nil {
			t.Fatal(err)
		}
		q, _ := New(rdb, Config{List: "test:jobs"})
		c, err := cachemodel.New(cachemodel.Options{
			Provider:       p,
			GenStore:       genstore.NewRedisGenStore(rdb, "test"),
			Enqueuer:       q,
			DefaultTimeout: time.Minute,
		})
		if err != nil {
			t.Fatal(err)
		}
		return c
	}
	version := 0
	register := func(c *cachemodel.Cache) *cachemodel.Method[string] {
		m, err := cachemodel.NewMethod(c, cachemodel.MethodOptions[string]{
			Type:  "Article",
			Name:  "summary",
			Async: true,
			Compute: func(_ context.Context, owner cachemodel.Entity, _ keys.Args) (string, error) {
				version++
				return "v" + keys.Encode(version), nil
			},
			Resolver: func(_ context.Context, _ string, id any) (cachemodel.Entity, error) {
				n, _ := id.(int64)
				return article{ID: n}, nil
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		return m
	}
	web, worker := newCache(), newCache()
	wm := register(web)
	_ = register(worker)

	owner := article{ID: 3}
	if v, _ := wm.Call(ctx, owner, keys.Args{}); v != "v1" {
		t.Fatalf("first=%q", v)
	}
	_ = wm.MarkDirty(ctx, owner, keys.Args{})
	if v, _ := wm.Call(ctx, owner, keys.Args{}); v != "v1" {
		t.Fatalf("stale=%q", v)
	}

	wq, _ := New(rdb, Config{List: "test:jobs"})
	taken, err := wq.Worker(worker, WorkerOptions{Block: time.Second}).ProcessOne(ctx)
	if err != nil || !taken {
		t.Fatalf("worker: taken=%v err=%v", taken, err)
	}
	key, _ := wm.Key(ctx, owner, keys.Args{})
	raw, ok, _ := web.Get(ctx, key)
	if !ok || string(raw) != `"v2"` {
		t.Fatalf("worker result seen by web: %q ok=%v", raw, ok)
	}

	// a flush on the worker side retires the web's key too
	if _, err := worker.FlushNamespace(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if next, _ := wm.Key(ctx, owner, keys.Args{}); next == key {
		t.Fatalf("shared generation should move the key, still %q", next)
	}
}

type handlerFunc func(context.Context, cachemodel.Job) error

func (f handlerFunc) HandleJob(ctx context.Context, j cachemodel.Job) error { return f(ctx, j) }
