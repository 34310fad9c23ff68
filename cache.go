package cachemodel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gen "github.com/unkn0wn-root/cachemodel/genstore"
	"github.com/unkn0wn-root/cachemodel/internal/wire"
	"github.com/unkn0wn-root/cachemodel/keys"
	pr "github.com/unkn0wn-root/cachemodel/provider"
)

// Cache is the store façade shared by every Method, Coordinator and Manager:
// framed reads and writes, namespace generations, signature sets, dirty
// markers, the by-field index and the async revalidation bridge.
// Safe for concurrent use.
type Cache struct {
	provider       pr.Provider
	gens           gen.GenStore
	ownsGens       bool
	log            Logger
	hooks          Hooks
	enabled        bool
	forever        time.Duration
	maxKeyLen      int
	computeSetCost SetCostFunc
	enq            Enqueuer

	tmu        sync.Mutex
	defTimeout time.Duration // 0 => unset

	jmu  sync.RWMutex
	jobs map[string]JobFunc

	handoffs sync.Map // key -> struct{}; revalidations being handed off

	closeOnce sync.Once
	closeErr  error
}

func newCache(opts Options) (*Cache, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("cachemodel: provider is required")
	}
	if opts.ForeverTimeout < 0 {
		return nil, fmt.Errorf("cachemodel: negative ForeverTimeout %v", opts.ForeverTimeout)
	}

	c := &Cache{
		provider:   opts.Provider,
		enabled:    !opts.Disabled,
		enq:        opts.Enqueuer,
		defTimeout: opts.DefaultTimeout,
		jobs:       make(map[string]JobFunc),
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.forever = coalesce[time.Duration](opts.ForeverTimeout, defaultForever)
	c.maxKeyLen = coalesce[int](opts.MaxKeyLen, defaultMaxKeyLen)

	if opts.ComputeSetCost != nil {
		c.computeSetCost = opts.ComputeSetCost
	} else {
		c.computeSetCost = func(string, []byte) int64 { return 1 }
	}

	if opts.GenStore != nil {
		c.gens = opts.GenStore
	} else {
		// generation tokens are ordinary cache entries next to the data
		c.gens = gen.NewProviderGenStore(c.provider, c.forever)
		c.ownsGens = true
	}
	return c, nil
}

func (c *Cache) Enabled() bool { return c.enabled }

// Close closes the generation store (best effort, only when the Cache created
// it) and then the provider. Repeated calls return the first result.
func (c *Cache) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if c.ownsGens {
			_ = c.gens.Close(ctx)
		}
		c.closeErr = c.provider.Close(ctx)
	})
	return c.closeErr
}

// SetDefaultTimeout sets the process-wide value timeout. It may be called any
// number of times with the same value; a different value than the one already
// in place fails with ErrTimeoutConflict, so two packages can not silently
// disagree about the default.
func (c *Cache) SetDefaultTimeout(d time.Duration) error {
	if d == 0 {
		return fmt.Errorf("%w: zero default timeout", ErrNoTimeout)
	}
	c.tmu.Lock()
	defer c.tmu.Unlock()
	if c.defTimeout != 0 && c.defTimeout != d {
		return fmt.Errorf("%w to %v, cannot set to %v", ErrTimeoutConflict, c.defTimeout, d)
	}
	c.defTimeout = d
	return nil
}

// DefaultTimeout reports the process-wide timeout, if one is set.
func (c *Cache) DefaultTimeout() (time.Duration, bool) {
	c.tmu.Lock()
	defer c.tmu.Unlock()
	return c.defTimeout, c.defTimeout != 0
}

// ResolveTimeout picks the first non-zero of perCall, declared and the
// process-wide default.
func (c *Cache) ResolveTimeout(perCall, declared time.Duration) (time.Duration, error) {
	if perCall != 0 {
		return perCall, nil
	}
	if declared != 0 {
		return declared, nil
	}
	if d, ok := c.DefaultTimeout(); ok {
		return d, nil
	}
	return 0, ErrNoTimeout
}

// Get returns the payload stored at key by Set.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !c.enabled {
		return nil, false, nil
	}
	sk := c.storageKey(key)
	raw, ok, err := c.provider.Get(ctx, sk)
	if err != nil || !ok {
		return nil, false, err
	}
	payload, err := wire.DecodeValue(raw)
	if err != nil {
		c.selfHeal(ctx, key, "corrupt")
		return nil, false, nil
	}
	return payload, true, nil
}

// Set stores payload at key. timeout is a duration or Forever.
func (c *Cache) Set(ctx context.Context, key string, payload []byte, timeout time.Duration) error {
	if !c.enabled {
		return nil
	}
	return ignoreRejected(c.put(ctx, key, wire.EncodeValue(payload), timeout))
}

// Delete removes key (best-effort at the provider).
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	return c.provider.Del(ctx, c.storageKey(key))
}

func (c *Cache) put(ctx context.Context, key string, framed []byte, timeout time.Duration) error {
	sk := c.storageKey(key)
	ok, err := c.provider.Set(ctx, sk, framed, c.computeSetCost(sk, framed), c.ttl(timeout))
	if err != nil {
		return err
	}
	if !ok {
		c.log.Debug("write rejected by provider (pressure)", Fields{"key": sk})
		c.hooks.ProviderSetRejected(sk)
		return fmt.Errorf("%w: %s", ErrWriteRejected, sk)
	}
	return nil
}

// ignoreRejected drops ErrWriteRejected for value writes: a declined value
// is just a future miss.
func ignoreRejected(err error) error {
	if errors.Is(err, ErrWriteRejected) {
		return nil
	}
	return err
}

func (c *Cache) ttl(timeout time.Duration) time.Duration {
	if timeout < 0 {
		return c.forever
	}
	return timeout
}

func (c *Cache) storageKey(key string) string {
	return keys.Bound(key, c.maxKeyLen)
}

func (c *Cache) selfHeal(ctx context.Context, key, reason string) {
	_ = c.provider.Del(ctx, c.storageKey(key))
	c.log.Debug("self-healed entry", Fields{"key": key, "reason": reason})
	c.hooks.SelfHeal(key, reason)
}

// readSet returns the members of the key set at setKey; absent => empty.
func (c *Cache) readSet(ctx context.Context, setKey string) ([]string, error) {
	if !c.enabled {
		return nil, nil
	}
	raw, ok, err := c.provider.Get(ctx, c.storageKey(setKey))
	if err != nil || !ok {
		return nil, err
	}
	members, err := wire.DecodeKeySet(raw)
	if err != nil {
		c.selfHeal(ctx, setKey, "corrupt")
		return nil, nil
	}
	return members, nil
}

// addToSet is a read-modify-write against the provider. Concurrent adders may
// overwrite each other; a lost member only means a future mass operation
// misses one key, never a wrong read.
func (c *Cache) addToSet(ctx context.Context, setKey, member string) error {
	if !c.enabled {
		return nil
	}
	members, err := c.readSet(ctx, setKey)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m == member {
			return nil
		}
	}
	framed, err := wire.EncodeKeySet(append(members, member))
	if err != nil {
		return err
	}
	return c.put(ctx, setKey, framed, Forever)
}

var errEmptyName = errors.New("cachemodel: empty name")
