package cachemodel

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/cachemodel/keys"
	pr "github.com/unkn0wn-root/cachemodel/provider"
)

type memProvider struct {
	mu      sync.Mutex
	m       map[string][]byte
	ttl     map[string]time.Duration
	failDel func(key string) bool
	reject  func(key string) bool
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider {
	return &memProvider{m: make(map[string][]byte), ttl: make(map[string]time.Duration)}
}

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject != nil && p.reject(key) {
		return false, nil
	}
	p.m[key] = value
	p.ttl[key] = ttl
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failDel != nil && p.failDel(key) {
		return errors.New("del refused")
	}
	delete(p.m, key)
	delete(p.ttl, key)
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

func (p *memProvider) put(key string, raw []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = raw
}

// failingGens errors on the operations it is told to.
type failingGens struct {
	snapshot, bump bool
}

var errGens = errors.New("gens down")

func (g failingGens) Snapshot(context.Context, string) (uint64, error) {
	if g.snapshot {
		return 0, errGens
	}
	return 0, nil
}

func (g failingGens) SnapshotMany(context.Context, []string) (map[string]uint64, error) {
	return nil, errGens
}

func (g failingGens) Bump(context.Context, string) (uint64, error) {
	if g.bump {
		return 0, errGens
	}
	return 1, nil
}

func (failingGens) Cleanup(time.Duration)       {}
func (failingGens) Close(context.Context) error { return nil }

type recordingHooks struct {
	NopHooks
	mu     sync.Mutex
	events []string
}

func (h *recordingHooks) add(format string, a ...any) {
	h.mu.Lock()
	h.events = append(h.events, fmt.Sprintf(format, a...))
	h.mu.Unlock()
}

func (h *recordingHooks) SelfHeal(key, reason string)     { h.add("selfheal %s %s", key, reason) }
func (h *recordingHooks) StaleServed(key string)          { h.add("stale %s", key) }
func (h *recordingHooks) Recomputed(key, reason string)   { h.add("recomputed %s %s", key, reason) }
func (h *recordingHooks) RevalidationEnqueued(key string) { h.add("enqueued %s", key) }
func (h *recordingHooks) FieldPurgeError(typ, field string, _ error) {
	h.add("purge_error %s %s", typ, field)
}

func (h *recordingHooks) has(event string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Contains(h.events, event)
}

type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (q *recordingEnqueuer) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingEnqueuer) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func newTestCache(t *testing.T, mp pr.Provider, optsOpt func(*Options)) *Cache {
	t.Helper()
	opts := Options{
		Provider:       mp,
		DefaultTimeout: time.Minute,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

type article struct {
	ID      int64  `json:"id"`
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

func (*article) TypeName() string  { return "Article" }
func (a *article) InstanceID() any { return a.ID }

func (a *article) Field(name string) (any, bool) {
	switch name {
	case "id":
		return a.ID, true
	case "slug":
		return a.Slug, true
	case "title":
		return a.Title, true
	case "summary":
		return a.Summary, true
	}
	return nil, false
}

func (a *article) SetField(name string, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("field %s: want string, got %T", name, v)
	}
	switch name {
	case "summary":
		a.Summary = s
	case "title":
		a.Title = s
	default:
		return fmt.Errorf("field %s is not settable", name)
	}
	return nil
}

type memRepo struct {
	mu         sync.Mutex
	rows       map[int64]article
	findCalls  int
	queryCalls int
	allCalls   int
}

var _ Repository[*article] = (*memRepo)(nil)

func newMemRepo(rows ...article) *memRepo {
	r := &memRepo{rows: make(map[int64]article)}
	for _, a := range rows {
		r.rows[a.ID] = a
	}
	return r
}

func (r *memRepo) FindBy(_ context.Context, field string, value any) (*article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	for _, a := range r.rows {
		if v, ok := a.Field(field); ok && keys.Encode(v) == keys.Encode(value) {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("article %s=%v: %w", field, value, ErrNotFound)
}

func (r *memRepo) Query(ctx context.Context, args keys.Args) (*article, error) {
	r.mu.Lock()
	r.queryCalls++
	r.mu.Unlock()
	for _, kv := range args.Named {
		return r.find(kv.Key, kv.Value)
	}
	if len(args.Positional) == 1 {
		return r.find("id", args.Positional[0])
	}
	return nil, fmt.Errorf("article query %s: %w", args.Signature(), ErrNotFound)
}

func (r *memRepo) find(field string, value any) (*article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if v, ok := a.Field(field); ok && keys.Encode(v) == keys.Encode(value) {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("article %s=%v: %w", field, value, ErrNotFound)
}

func (r *memRepo) All(context.Context) ([]*article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allCalls++
	out := make([]*article, 0, len(r.rows))
	for _, a := range r.rows {
		out = append(out, &a)
	}
	slices.SortFunc(out, func(x, y *article) int { return cmp.Compare(x.ID, y.ID) })
	return out, nil
}

func (r *memRepo) Save(_ context.Context, a *article) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[a.ID] = *a
	return nil
}

func (r *memRepo) Delete(_ context.Context, a *article) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, a.ID)
	return nil
}

func (r *memRepo) row(id int64) article {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

func (r *memRepo) counts() (find, query, all int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findCalls, r.queryCalls, r.allCalls
}
