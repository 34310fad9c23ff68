package cachemodel

import (
	"context"
	"strconv"

	"github.com/unkn0wn-root/cachemodel/keys"
)

// NamespaceRoot is {Type}:{ID} for an instance owner and {Type} for a type owner.
func NamespaceRoot(owner Entity) string {
	if id := owner.InstanceID(); id != nil {
		return keys.Join("", owner.TypeName(), id)
	}
	return keys.Join("", owner.TypeName())
}

// ClassKey builds a type-scoped key outside any generation: {Type}:{parts}.
// Entries under it survive namespace flushes and must be purged explicitly.
func ClassKey(typeName string, parts ...any) string {
	return keys.Join("", append([]any{typeName}, parts...)...)
}

// NamespaceKey mints a key inside owner's namespace tagged with the current
// generation. A flush bumps the generation, so every key minted before it
// becomes unreachable.
//
// The generation is read fresh on every call. When it can not be read the
// error is returned and callers must not touch the cache: an older key could
// still hold pre-flush data.
func (c *Cache) NamespaceKey(ctx context.Context, owner Entity, parts ...any) (string, error) {
	g, err := c.generation(ctx, owner)
	if err != nil {
		return "", err
	}
	return keys.Join(NamespaceRoot(owner), parts...) + keys.Sep + "#" + strconv.FormatUint(g, 10), nil
}

// FlushNamespace invalidates every key ever minted in owner's namespace.
// Old entries are not deleted; they age out through the provider's TTL.
func (c *Cache) FlushNamespace(ctx context.Context, owner Entity) (uint64, error) {
	root := NamespaceRoot(owner)
	g, err := c.gens.Bump(ctx, root)
	if err != nil {
		c.hooks.GenStoreError("bump", err)
		c.log.Error("namespace flush failed", Fields{"ns": root, "err": err})
		return 0, err
	}
	c.hooks.NamespaceFlushed(root, g)
	return g, nil
}
