package cachemodel

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/cachemodel/keys"
)

// KeyFunc resolves the cache key of one argument combination.
type KeyFunc func(args keys.Args) string

// DigestKey is the default KeyFunc: {prefix}:{digest(signature)}.
func DigestKey(prefix string) KeyFunc {
	return func(args keys.Args) string {
		return prefix + keys.Sep + args.Digest()
	}
}

func signatureSetKey(prefix string) string {
	return "#sigs" + keys.Sep + prefix
}

// SignatureKey resolves the key for args through keyFn and records it in the
// signature set of prefix so MarkAllDirty can reach it later.
//
// Recording is a read-modify-write. A failure is logged and the key is still
// returned: a missing member only means one key escapes the next mass dirtying.
func (c *Cache) SignatureKey(ctx context.Context, prefix string, keyFn KeyFunc, args keys.Args) string {
	if keyFn == nil {
		keyFn = DigestKey(prefix)
	}
	key := keyFn(args)
	if err := c.addToSet(ctx, signatureSetKey(prefix), key); err != nil {
		c.log.Warn("signature record failed", Fields{"prefix": prefix, "key": key, "err": err})
	}
	return key
}

// Signatures lists every key recorded under prefix.
func (c *Cache) Signatures(ctx context.Context, prefix string) ([]string, error) {
	return c.readSet(ctx, signatureSetKey(prefix))
}

// MarkAllDirty writes a DIRTY marker next to every key recorded under prefix
// and returns how many were marked. Members stay in the set.
func (c *Cache) MarkAllDirty(ctx context.Context, prefix string) (int, error) {
	members, err := c.Signatures(ctx, prefix)
	if err != nil {
		return 0, err
	}
	var (
		n    int
		errs []error
	)
	for _, k := range members {
		if err := c.SetMarker(ctx, k, MarkerDirty); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
