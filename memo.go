package cachemodel

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/cachemodel/codec"
	"github.com/unkn0wn-root/cachemodel/keys"
)

// KeyStrategy decides how a Method names its entries.
type KeyStrategy int

const (
	// KeysInstance: inside the owning instance's namespace, flushed with it.
	KeysInstance KeyStrategy = iota
	// KeysType: inside the owning type's namespace.
	KeysType
	// KeysSignature: {root}:{name}:{digest}, recorded in the signature set of
	// {root}:{name}. Outside any generation; invalidated with MarkAllDirty.
	KeysSignature
)

func (s KeyStrategy) String() string {
	switch s {
	case KeysInstance:
		return "instance"
	case KeysType:
		return "type"
	case KeysSignature:
		return "signature"
	default:
		return "unknown"
	}
}

// ComputeFunc produces the value for one call. owner is the instance (or
// TypeOf(type) for type-level methods) the value belongs to.
type ComputeFunc[V any] func(ctx context.Context, owner Entity, args keys.Args) (V, error)

// Resolver loads the owner of a revalidation job that arrived without one
// (jobs that crossed a process boundary).
type Resolver func(ctx context.Context, typeName string, id any) (Entity, error)

type MethodOptions[V any] struct {
	Type    string // required
	Name    string // required, unique per Type
	Compute ComputeFunc[V]

	Codec    codec.Codec[V] // nil => codec.JSON[V]
	Timeout  time.Duration  // 0 => process default; Forever allowed
	Keys     KeyStrategy
	KeyFunc  KeyFunc // KeysSignature only; nil => DigestKey
	Async    bool    // serve stale + revalidate in the background on DIRTY
	Resolver Resolver
}

// Method memoizes one computation. Safe for concurrent use.
type Method[V any] struct {
	c        *Cache
	typ      string
	name     string
	compute  ComputeFunc[V]
	codec    codec.Codec[V]
	timeout  time.Duration
	strategy KeyStrategy
	keyFn    KeyFunc
	async    bool
	resolve  Resolver

	sf singleflight.Group
}

// NewMethod validates opts and registers the method's revalidation job.
// Configuration problems fail here, not on the first call.
func NewMethod[V any](c *Cache, opts MethodOptions[V]) (*Method[V], error) {
	if opts.Type == "" || opts.Name == "" {
		return nil, errEmptyName
	}
	if opts.Compute == nil {
		return nil, fmt.Errorf("cachemodel: %s.%s: nil compute func", opts.Type, opts.Name)
	}
	if _, err := c.ResolveTimeout(0, opts.Timeout); err != nil {
		return nil, fmt.Errorf("%s.%s: %w", opts.Type, opts.Name, err)
	}
	if opts.Async && !c.AsyncEnabled() {
		return nil, fmt.Errorf("%s.%s: %w", opts.Type, opts.Name, ErrAsyncDisabled)
	}

	m := &Method[V]{
		c:        c,
		typ:      opts.Type,
		name:     opts.Name,
		compute:  opts.Compute,
		codec:    opts.Codec,
		timeout:  opts.Timeout,
		strategy: opts.Keys,
		keyFn:    opts.KeyFunc,
		async:    opts.Async,
		resolve:  opts.Resolver,
	}
	if m.codec == nil {
		m.codec = codec.JSON[V]{}
	}
	if err := c.RegisterJob(m.typ, m.name, m.handleJob); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Method[V]) Name() string { return m.name }

type callOptions struct {
	timeout time.Duration
	bypass  bool
}

type CallOption func(*callOptions)

// WithTimeout overrides the method and process timeouts for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// Bypass recomputes and stores regardless of cache state.
func Bypass() CallOption {
	return func(o *callOptions) { o.bypass = true }
}

func (m *Method[V]) owner(owner Entity) (Entity, error) {
	if owner == nil {
		owner = TypeOf(m.typ)
	}
	if m.strategy == KeysInstance && owner.InstanceID() == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoOwner, m.typ, m.name)
	}
	if m.strategy == KeysType {
		owner = TypeOf(owner.TypeName())
	}
	return owner, nil
}

func (m *Method[V]) prefix(owner Entity) string {
	return NamespaceRoot(owner) + keys.Sep + keys.Encode(m.name)
}

// Key returns the key the call (owner, args) reads and writes.
func (m *Method[V]) Key(ctx context.Context, owner Entity, args keys.Args) (string, error) {
	owner, err := m.owner(owner)
	if err != nil {
		return "", err
	}
	return m.key(ctx, owner, args)
}

func (m *Method[V]) key(ctx context.Context, owner Entity, args keys.Args) (string, error) {
	if m.strategy == KeysSignature {
		return m.c.SignatureKey(ctx, m.prefix(owner), m.keyFunc(owner), args), nil
	}
	if args.Empty() {
		return m.c.NamespaceKey(ctx, owner, m.name)
	}
	return m.c.NamespaceKey(ctx, owner, m.name, args.Digest())
}

func (m *Method[V]) keyFunc(owner Entity) KeyFunc {
	if m.keyFn != nil {
		return m.keyFn
	}
	return DigestKey(m.prefix(owner))
}

// Call returns the memoized value for (owner, args), computing it when the
// entry is missing or dirty. owner may be nil for type-level methods.
// Errors from the computation are returned unchanged and never cached.
func (m *Method[V]) Call(ctx context.Context, owner Entity, args keys.Args, opts ...CallOption) (V, error) {
	var zero V
	var co callOptions
	for _, o := range opts {
		o(&co)
	}

	owner, err := m.owner(owner)
	if err != nil {
		return zero, err
	}
	timeout, err := m.c.ResolveTimeout(co.timeout, m.timeout)
	if err != nil {
		return zero, err
	}
	if !m.c.enabled {
		return m.compute(ctx, owner, args)
	}

	key, err := m.key(ctx, owner, args)
	if err != nil {
		// no trustworthy key; serve the computation uncached
		return m.compute(ctx, owner, args)
	}

	if co.bypass {
		return m.recompute(ctx, key, owner, args, timeout, "bypass")
	}

	switch m.c.Marker(ctx, key) {
	case MarkerForceUpdate:
		return m.recompute(ctx, key, owner, args, timeout, "force_update")
	case MarkerDirty:
		if m.async {
			if v, ok := m.load(ctx, key); ok {
				m.handOff(ctx, key, owner, args)
				m.c.hooks.StaleServed(key)
				return v, nil
			}
		}
		return m.recompute(ctx, key, owner, args, timeout, "dirty")
	}

	if v, ok := m.load(ctx, key); ok {
		m.c.hooks.CacheHit(key)
		return v, nil
	}
	m.c.hooks.CacheMiss(key)
	return m.recompute(ctx, key, owner, args, timeout, "miss")
}

// Refresh is Call with Bypass: recompute, store and return.
func (m *Method[V]) Refresh(ctx context.Context, owner Entity, args keys.Args, opts ...CallOption) (V, error) {
	return m.Call(ctx, owner, args, append(opts, Bypass())...)
}

// Put stores v as the value of (owner, args) and clears its marker.
func (m *Method[V]) Put(ctx context.Context, owner Entity, args keys.Args, v V, opts ...CallOption) error {
	var co callOptions
	for _, o := range opts {
		o(&co)
	}
	owner, err := m.owner(owner)
	if err != nil {
		return err
	}
	timeout, err := m.c.ResolveTimeout(co.timeout, m.timeout)
	if err != nil {
		return err
	}
	key, err := m.key(ctx, owner, args)
	if err != nil {
		return err
	}
	if err := m.store(ctx, key, v, timeout); err != nil {
		return err
	}
	return m.c.ClearMarker(ctx, key)
}

// MarkDirty marks the entry of (owner, args) DIRTY.
func (m *Method[V]) MarkDirty(ctx context.Context, owner Entity, args keys.Args) error {
	key, err := m.Key(ctx, owner, args)
	if err != nil {
		return err
	}
	return m.c.SetMarker(ctx, key, MarkerDirty)
}

// MarkAllDirty marks every recorded argument combination of a
// signature-keyed method DIRTY. owner may be nil for type-level methods.
func (m *Method[V]) MarkAllDirty(ctx context.Context, owner Entity) (int, error) {
	if m.strategy != KeysSignature {
		return 0, fmt.Errorf("cachemodel: %s.%s uses %s keys, not signatures", m.typ, m.name, m.strategy)
	}
	owner, err := m.owner(owner)
	if err != nil {
		return 0, err
	}
	return m.c.MarkAllDirty(ctx, m.prefix(owner))
}

func (m *Method[V]) load(ctx context.Context, key string) (V, bool) {
	var zero V
	raw, ok, err := m.c.Get(ctx, key)
	if err != nil || !ok {
		return zero, false
	}
	v, err := m.codec.Decode(raw)
	if err != nil {
		m.c.selfHeal(ctx, key, "value_decode")
		return zero, false
	}
	return v, true
}

func (m *Method[V]) store(ctx context.Context, key string, v V, timeout time.Duration) error {
	payload, err := m.codec.Encode(v)
	if err != nil {
		return err
	}
	return m.c.Set(ctx, key, payload, timeout)
}

// recompute runs the computation once per key in this process, stores the
// result and clears the marker afterwards.
func (m *Method[V]) recompute(ctx context.Context, key string, owner Entity, args keys.Args, timeout time.Duration, reason string) (V, error) {
	v, err, _ := m.sf.Do(key, func() (any, error) {
		v, err := m.compute(ctx, owner, args)
		if err != nil {
			return v, err
		}
		if err := m.store(ctx, key, v, timeout); err != nil {
			m.c.log.Warn("store failed", Fields{"key": key, "err": err})
			return v, nil
		}
		if err := m.c.ClearMarker(ctx, key); err != nil {
			m.c.log.Debug("clear marker failed", Fields{"key": key, "err": err})
		}
		m.c.hooks.Recomputed(key, reason)
		return v, nil
	})
	out, _ := v.(V)
	return out, err
}

func (m *Method[V]) handOff(ctx context.Context, key string, owner Entity, args keys.Args) {
	job := Job{
		IsManager:  owner.InstanceID() == nil,
		Type:       m.typ,
		InstanceID: owner.InstanceID(),
		Function:   m.name,
		Key:        key,
		Args:       args.Positional,
		Kwargs:     args.Named,
		Owner:      owner,
	}
	handed, err := m.c.revalidate(ctx, job)
	if err != nil {
		m.c.log.Warn("revalidation hand-off failed", Fields{"key": key, "err": err})
		m.c.hooks.RevalidationFailed(key, err)
		return
	}
	if handed {
		m.c.hooks.RevalidationEnqueued(key)
	}
}

// handleJob is the worker side: recompute with the captured arguments and
// store at the captured key. The marker is left for the read path to clear.
func (m *Method[V]) handleJob(ctx context.Context, job Job) error {
	owner := job.Owner
	if owner == nil {
		if job.IsManager {
			owner = TypeOf(job.Type)
		} else {
			if m.resolve == nil {
				return fmt.Errorf("%w: %s.%s", ErrNoResolver, m.typ, m.name)
			}
			o, err := m.resolve(ctx, job.Type, job.InstanceID)
			if err != nil {
				m.c.hooks.RevalidationFailed(job.Key, err)
				return err
			}
			owner = o
		}
	}
	v, err := m.compute(ctx, owner, job.args())
	if err != nil {
		m.c.hooks.RevalidationFailed(job.Key, err)
		return err
	}
	if err := m.store(ctx, job.Key, v, Forever); err != nil {
		m.c.hooks.RevalidationFailed(job.Key, err)
		return err
	}
	m.c.hooks.Recomputed(job.Key, "revalidated")
	return nil
}
