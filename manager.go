package cachemodel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/unkn0wn-root/cachemodel/codec"
	"github.com/unkn0wn-root/cachemodel/keys"
)

// Repository is the persistence collaborator of a Manager.
//
// FindBy and Query must return an error wrapping ErrNotFound when no row
// matches; the Manager never caches that outcome.
type Repository[E Entity] interface {
	FindBy(ctx context.Context, field string, value any) (E, error)
	Query(ctx context.Context, args keys.Args) (E, error)
	All(ctx context.Context) ([]E, error)
	Save(ctx context.Context, e E) error
	Delete(ctx context.Context, e E) error
}

// LookupFunc is a by-field accessor bound to one field.
type LookupFunc[E Entity] func(ctx context.Context, value any, opts ...CallOption) (E, error)

type ManagerOptions[E Entity] struct {
	Type       string // required
	Repository Repository[E]

	Codec       codec.Codec[E]   // nil => codec.JSON[E]
	ListCodec   codec.Codec[[]E] // nil => codec.JSON[[]E]
	Timeout     time.Duration    // by-field and All entries; 0 => process default
	Async       bool             // stale-while-revalidate for GetCached
	Lookups     []string         // fields GetBy accepts
	Coordinator *Coordinator     // nil => a private one
}

// Manager is the cached collection of one entity type: by-field lookups,
// a signature-tracked query cache, the whole-table cache and the write path
// that keeps all three coherent.
type Manager[E Entity] struct {
	c       *Cache
	coord   *Coordinator
	typ     string
	repo    Repository[E]
	codec   codec.Codec[E]
	timeout time.Duration

	getCached *Method[E]
	all       *Method[[]E]

	mu      sync.RWMutex
	lookups []string
}

func NewManager[E Entity](c *Cache, opts ManagerOptions[E]) (*Manager[E], error) {
	if opts.Type == "" {
		return nil, errEmptyName
	}
	if opts.Repository == nil {
		return nil, fmt.Errorf("cachemodel: %s: repository is required", opts.Type)
	}
	if _, err := c.ResolveTimeout(0, opts.Timeout); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.Type, err)
	}

	m := &Manager[E]{
		c:       c,
		coord:   opts.Coordinator,
		typ:     opts.Type,
		repo:    opts.Repository,
		codec:   opts.Codec,
		timeout: opts.Timeout,
	}
	if m.coord == nil {
		m.coord = NewCoordinator(c)
	}
	if m.codec == nil {
		m.codec = codec.JSON[E]{}
	}
	for _, f := range opts.Lookups {
		if err := m.RegisterLookup(f); err != nil {
			return nil, err
		}
	}

	var err error
	m.getCached, err = NewMethod(c, MethodOptions[E]{
		Type:    opts.Type,
		Name:    "get_cached",
		Codec:   m.codec,
		Timeout: Forever,
		Keys:    KeysSignature,
		Async:   opts.Async,
		Compute: func(ctx context.Context, _ Entity, args keys.Args) (E, error) {
			return m.repo.Query(ctx, args)
		},
	})
	if err != nil {
		return nil, err
	}
	m.all, err = NewMethod(c, MethodOptions[[]E]{
		Type:    opts.Type,
		Name:    "all",
		Codec:   opts.ListCodec,
		Timeout: opts.Timeout,
		Keys:    KeysType,
		Compute: func(ctx context.Context, _ Entity, _ keys.Args) ([]E, error) {
			return m.repo.All(ctx)
		},
	})
	if err != nil {
		return nil, err
	}

	m.coord.OnInvalidate(opts.Type, m.invalidateType)
	return m, nil
}

func (m *Manager[E]) Type() string              { return m.typ }
func (m *Manager[E]) Coordinator() *Coordinator { return m.coord }

// RegisterLookup allows GetBy on field.
func (m *Manager[E]) RegisterLookup(field string) error {
	if field == "" {
		return errEmptyName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.lookups, field) {
		m.lookups = append(m.lookups, field)
	}
	return nil
}

func (m *Manager[E]) lookupFields() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.lookups)
}

func (m *Manager[E]) hasLookup(field string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.lookups, field)
}

// RegisterDenormalized binds a denormalized field of this type.
func (m *Manager[E]) RegisterDenormalized(field string, fn Denormalizer) error {
	return m.coord.RegisterDenormalized(m.typ, field, fn)
}

// Lookup returns GetBy bound to field.
func (m *Manager[E]) Lookup(field string) (LookupFunc[E], error) {
	if !m.hasLookup(field) {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownLookup, m.typ, field)
	}
	return func(ctx context.Context, value any, opts ...CallOption) (E, error) {
		return m.GetBy(ctx, field, value, opts...)
	}, nil
}

// GetBy returns the entity whose field equals value, from cache when
// possible. The field is recorded in the type's field index so writes purge
// the entry. Not-found is returned as the repository reported it and is
// never cached.
func (m *Manager[E]) GetBy(ctx context.Context, field string, value any, opts ...CallOption) (E, error) {
	var zero E
	if !m.hasLookup(field) {
		return zero, fmt.Errorf("%w: %s.%s", ErrUnknownLookup, m.typ, field)
	}
	var co callOptions
	for _, o := range opts {
		o(&co)
	}
	timeout, err := m.c.ResolveTimeout(co.timeout, m.timeout)
	if err != nil {
		return zero, err
	}

	if err := m.c.RecordField(ctx, m.typ, field); err != nil {
		m.c.log.Warn("field index update failed", Fields{"type": m.typ, "field": field, "err": err})
	}

	key := FieldKey(m.typ, field, value)
	if !co.bypass {
		if e, ok := m.loadBy(ctx, key, field, value); ok {
			m.c.hooks.CacheHit(key)
			return e, nil
		}
		m.c.hooks.CacheMiss(key)
	}

	e, err := m.repo.FindBy(ctx, field, value)
	if err != nil {
		return zero, err
	}
	m.storeBy(ctx, key, e, timeout)
	return e, nil
}

// loadBy returns the cached entity at key. By-field entries carry the
// generation of the entity's namespace at store time, so any write to the
// entity retires them even when the lookup value itself changed.
func (m *Manager[E]) loadBy(ctx context.Context, key, field string, value any) (E, bool) {
	var zero E
	stamp, raw, ok := m.c.getStamped(ctx, key)
	if !ok {
		return zero, false
	}
	e, err := m.codec.Decode(raw)
	if err != nil {
		m.c.selfHeal(ctx, key, "value_decode")
		return zero, false
	}
	g, err := m.c.generation(ctx, e)
	if err != nil {
		return zero, false
	}
	if g != stamp {
		m.c.selfHeal(ctx, key, "stale_generation")
		return zero, false
	}
	if fe, ok := any(e).(Fielder); ok {
		if cur, ok := fe.Field(field); ok && keys.Encode(cur) != keys.Encode(value) {
			m.c.selfHeal(ctx, key, "field_mismatch")
			return zero, false
		}
	}
	return e, true
}

func (m *Manager[E]) storeBy(ctx context.Context, key string, e E, timeout time.Duration) {
	g, err := m.c.generation(ctx, e)
	if err != nil {
		return
	}
	payload, err := m.codec.Encode(e)
	if err != nil {
		m.c.log.Warn("encode failed", Fields{"key": key, "err": err})
		return
	}
	if err := m.c.setStamped(ctx, key, g, payload, timeout); err != nil {
		m.c.log.Warn("store failed", Fields{"key": key, "err": err})
	}
}

// GetCached is the signature-tracked query cache: one entry per distinct
// args, all marked dirty on every write to the type.
func (m *Manager[E]) GetCached(ctx context.Context, args keys.Args, opts ...CallOption) (E, error) {
	return m.getCached.Call(ctx, nil, args, opts...)
}

// All returns every entity of the type, cached in the type namespace.
func (m *Manager[E]) All(ctx context.Context, opts ...CallOption) ([]E, error) {
	return m.all.Call(ctx, nil, keys.Args{}, opts...)
}

// Save denormalizes e, persists it and invalidates every cache it touches.
// The persisted row is authoritative once Save returns, even with an error
// from invalidation.
func (m *Manager[E]) Save(ctx context.Context, e E) error {
	if err := m.coord.PreSave(ctx, e); err != nil {
		return err
	}
	if err := m.repo.Save(ctx, e); err != nil {
		return err
	}
	return m.coord.Invalidate(ctx, e)
}

func (m *Manager[E]) Delete(ctx context.Context, e E) error {
	if err := m.repo.Delete(ctx, e); err != nil {
		return err
	}
	return m.coord.Invalidate(ctx, e)
}

// invalidateType flushes the type namespace and dirties every recorded
// GetCached signature.
func (m *Manager[E]) invalidateType(ctx context.Context, _ Entity) error {
	var errs []error
	if _, err := m.c.FlushNamespace(ctx, TypeOf(m.typ)); err != nil {
		errs = append(errs, err)
	}
	if _, err := m.getCached.MarkAllDirty(ctx, nil); err != nil {
		m.c.log.Warn("mark signatures dirty failed", Fields{"type": m.typ, "err": err})
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// WarmCache loads the whole table and populates the All entry and every
// registered by-field entry. Safe to run repeatedly.
func (m *Manager[E]) WarmCache(ctx context.Context) error {
	list, err := m.all.Refresh(ctx, nil, keys.Args{})
	if err != nil {
		return err
	}
	timeout, err := m.c.ResolveTimeout(0, m.timeout)
	if err != nil {
		return err
	}

	var errs []error
	for _, f := range m.lookupFields() {
		if err := m.c.RecordField(ctx, m.typ, f); err != nil {
			errs = append(errs, err)
		}
		for _, e := range list {
			fe, ok := any(e).(Fielder)
			if !ok {
				continue
			}
			if v, ok := fe.Field(f); ok {
				m.storeBy(ctx, FieldKey(m.typ, f, v), e, timeout)
			}
		}
	}
	m.c.log.Info("cache warmed", Fields{"type": m.typ, "rows": len(list)})
	return errors.Join(errs...)
}
