// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/cachemodel"
//	"github.com/unkn0wn-root/cachemodel/hooks/async"
//	"github.com/unkn0wn-root/cachemodel/hooks/slog"
//
// )
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{
//	    SelfHealEvery: 10, // sample logs: ~every 10th self-heal
//	    HitMissEvery:  1000,
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	cache, _ := cachemodel.New(cachemodel.Options{
//	    Provider: provider,
//	    Hooks:    hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/cachemodel"
)

// Hooks fans events out to inner on a bounded pool of goroutines.
// Events that do not fit in the queue are dropped and counted.
type Hooks struct {
	inner   cachemodel.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ cachemodel.Hooks = (*Hooks)(nil)

func New(inner cachemodel.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) CacheHit(k string)             { h.try(func() { h.inner.CacheHit(k) }) }
func (h *Hooks) CacheMiss(k string)            { h.try(func() { h.inner.CacheMiss(k) }) }
func (h *Hooks) Recomputed(k, r string)        { h.try(func() { h.inner.Recomputed(k, r) }) }
func (h *Hooks) StaleServed(k string)          { h.try(func() { h.inner.StaleServed(k) }) }
func (h *Hooks) RevalidationEnqueued(k string) { h.try(func() { h.inner.RevalidationEnqueued(k) }) }
func (h *Hooks) SelfHeal(k, r string)          { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string)  { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) GenStoreError(op string, err error) {
	h.try(func() { h.inner.GenStoreError(op, err) })
}
func (h *Hooks) RevalidationFailed(k string, err error) {
	h.try(func() { h.inner.RevalidationFailed(k, err) })
}
func (h *Hooks) NamespaceFlushed(ns string, gen uint64) {
	h.try(func() { h.inner.NamespaceFlushed(ns, gen) })
}
func (h *Hooks) FieldPurgeError(typ, field string, err error) {
	h.try(func() { h.inner.FieldPurgeError(typ, field, err) })
}
