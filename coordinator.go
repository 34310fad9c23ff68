package cachemodel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/cachemodel/keys"
)

// Denormalizer computes the value persisted into a denormalized field.
type Denormalizer func(ctx context.Context, e Entity) (any, error)

// InvalidateListener runs after an entity's instance namespace was flushed.
// Managers use it to flush type-level caches.
type InvalidateListener func(ctx context.Context, e Entity) error

type denormField struct {
	field string
	fn    Denormalizer
}

// Coordinator runs the write-path protocol: denormalization before an entity
// is persisted, cache invalidation after.
type Coordinator struct {
	c *Cache

	mu        sync.RWMutex
	denorm    map[string][]denormField
	listeners map[string][]InvalidateListener
}

func NewCoordinator(c *Cache) *Coordinator {
	return &Coordinator{
		c:         c,
		denorm:    make(map[string][]denormField),
		listeners: make(map[string][]InvalidateListener),
	}
}

func (co *Coordinator) Cache() *Cache { return co.c }

// RegisterDenormalized adds field to the denormalized fields of typeName.
// Fields are computed in registration order.
func (co *Coordinator) RegisterDenormalized(typeName, field string, fn Denormalizer) error {
	if typeName == "" || field == "" {
		return errEmptyName
	}
	if fn == nil {
		return fmt.Errorf("cachemodel: %s.%s: nil denormalizer", typeName, field)
	}
	co.mu.Lock()
	defer co.mu.Unlock()
	for _, d := range co.denorm[typeName] {
		if d.field == field {
			return fmt.Errorf("%w: denormalized %s.%s", ErrDuplicateMethod, typeName, field)
		}
	}
	co.denorm[typeName] = append(co.denorm[typeName], denormField{field: field, fn: fn})
	return nil
}

// Denormalized lists the denormalized fields of typeName in order.
func (co *Coordinator) Denormalized(typeName string) []string {
	co.mu.RLock()
	defer co.mu.RUnlock()
	out := make([]string, 0, len(co.denorm[typeName]))
	for _, d := range co.denorm[typeName] {
		out = append(out, d.field)
	}
	return out
}

// OnInvalidate registers fn to run at the end of every Invalidate of typeName.
func (co *Coordinator) OnInvalidate(typeName string, fn InvalidateListener) {
	co.mu.Lock()
	co.listeners[typeName] = append(co.listeners[typeName], fn)
	co.mu.Unlock()
}

// Denormalize evaluates every denormalizer of e's type and returns the
// (field, value) pairs in registration order. Nothing is written.
func (co *Coordinator) Denormalize(ctx context.Context, e Entity) ([]keys.KV, error) {
	co.mu.RLock()
	ds := co.denorm[e.TypeName()]
	co.mu.RUnlock()

	if len(ds) == 0 {
		return nil, nil
	}
	out := make([]keys.KV, 0, len(ds))
	for _, d := range ds {
		v, err := d.fn(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("denormalize %s.%s: %w", e.TypeName(), d.field, err)
		}
		out = append(out, keys.KV{Key: d.field, Value: v})
	}
	return out, nil
}

// PreSave writes every denormalized value into e. Call it right before the
// entity is persisted. e must implement FieldSetter when its type has
// denormalized fields.
func (co *Coordinator) PreSave(ctx context.Context, e Entity) error {
	vals, err := co.Denormalize(ctx, e)
	if err != nil || len(vals) == 0 {
		return err
	}
	fs, ok := e.(FieldSetter)
	if !ok {
		return fmt.Errorf("cachemodel: %s has denormalized fields but does not implement FieldSetter", e.TypeName())
	}
	for _, kv := range vals {
		if err := fs.SetField(kv.Key, kv.Value); err != nil {
			return fmt.Errorf("denormalize %s.%s: %w", e.TypeName(), kv.Key, err)
		}
	}
	return nil
}

// Invalidate runs after e was created, updated or deleted:
//
//  1. purge the by-field entry of every recorded lookup field, using the
//     field's current value on e. Best effort: a failing field is logged
//     and the rest are still purged.
//  2. flush e's instance namespace.
//  3. run the listeners registered for e's type.
//
// An *InvalidateError is returned only when the flush fails. Listener
// errors are joined onto the result.
func (co *Coordinator) Invalidate(ctx context.Context, e Entity) error {
	typ := e.TypeName()
	fieldErrs := co.purgeFields(ctx, e)

	var err error
	if _, ferr := co.c.FlushNamespace(ctx, e); ferr != nil {
		err = &InvalidateError{Type: typ, ID: e.InstanceID(), FieldErrs: fieldErrs, FlushErr: ferr}
	}

	co.mu.RLock()
	ls := co.listeners[typ]
	co.mu.RUnlock()
	for _, fn := range ls {
		if lerr := fn(ctx, e); lerr != nil {
			err = errors.Join(err, lerr)
		}
	}
	return err
}

func (co *Coordinator) purgeFields(ctx context.Context, e Entity) map[string]error {
	typ := e.TypeName()
	fields, err := co.c.CachedFields(ctx, typ)
	if err != nil {
		co.fieldErr(typ, "#fields", err)
		return map[string]error{"#fields": err}
	}
	if len(fields) == 0 {
		return nil
	}
	fe, ok := e.(Fielder)
	if !ok {
		co.c.log.Warn("entity has cached lookup fields but no field accessor", Fields{"type": typ, "fields": fields})
		return nil
	}

	var errs map[string]error
	for _, f := range fields {
		v, ok := fe.Field(f)
		if !ok {
			continue
		}
		if err := co.c.Delete(ctx, FieldKey(typ, f, v)); err != nil {
			co.fieldErr(typ, f, err)
			if errs == nil {
				errs = make(map[string]error)
			}
			errs[f] = err
		}
	}
	return errs
}

func (co *Coordinator) fieldErr(typ, field string, err error) {
	co.c.log.Warn("field purge failed", Fields{"type": typ, "field": field, "err": err})
	co.c.hooks.FieldPurgeError(typ, field, err)
}
