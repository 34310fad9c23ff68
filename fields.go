package cachemodel

import (
	"context"
	"time"

	"github.com/unkn0wn-root/cachemodel/internal/wire"
	"github.com/unkn0wn-root/cachemodel/keys"
)

// FieldKey is the by-field lookup key: {Type}:by_{field}:{value}.
func FieldKey(typeName, field string, value any) string {
	return ClassKey(typeName, "by_"+field, value)
}

func fieldIndexKey(typeName string) string {
	return keys.Encode(typeName) + keys.Sep + "#fields"
}

// RecordField adds field to the set of fields used for by-field lookups of
// typeName. Invalidate purges the by-field entry of every recorded field.
func (c *Cache) RecordField(ctx context.Context, typeName, field string) error {
	return c.addToSet(ctx, fieldIndexKey(typeName), field)
}

// CachedFields returns the fields recorded for typeName.
func (c *Cache) CachedFields(ctx context.Context, typeName string) ([]string, error) {
	return c.readSet(ctx, fieldIndexKey(typeName))
}

// getStamped reads a value written by setStamped.
func (c *Cache) getStamped(ctx context.Context, key string) (uint64, []byte, bool) {
	if !c.enabled {
		return 0, nil, false
	}
	raw, ok, err := c.provider.Get(ctx, c.storageKey(key))
	if err != nil || !ok {
		return 0, nil, false
	}
	g, payload, err := wire.DecodeStamped(raw)
	if err != nil {
		c.selfHeal(ctx, key, "corrupt")
		return 0, nil, false
	}
	return g, payload, true
}

// setStamped stores payload together with the generation it was read under.
func (c *Cache) setStamped(ctx context.Context, key string, gen uint64, payload []byte, timeout time.Duration) error {
	if !c.enabled {
		return nil
	}
	return ignoreRejected(c.put(ctx, key, wire.EncodeStamped(gen, payload), timeout))
}

// generation is the current generation of owner's namespace.
func (c *Cache) generation(ctx context.Context, owner Entity) (uint64, error) {
	root := NamespaceRoot(owner)
	g, err := c.gens.Snapshot(ctx, root)
	if err != nil {
		c.hooks.GenStoreError("snapshot", err)
		c.log.Warn("generation snapshot failed", Fields{"ns": root, "err": err})
	}
	return g, err
}
