package cachemodel

import (
	"context"

	"github.com/unkn0wn-root/cachemodel/internal/wire"
	"github.com/unkn0wn-root/cachemodel/keys"
)

// Marker is the dirty state stored next to a value.
type Marker byte

const (
	MarkerNone Marker = iota
	// MarkerDirty: the value is stale.
	MarkerDirty
	// MarkerForceUpdate: a revalidation was handed off; the next read
	// recomputes synchronously and clears the marker.
	MarkerForceUpdate
)

func (m Marker) String() string {
	switch m {
	case MarkerNone:
		return "none"
	case MarkerDirty:
		return "dirty"
	case MarkerForceUpdate:
		return "force_update"
	default:
		return "unknown"
	}
}

// MarkerKey is where the marker of key lives.
func MarkerKey(key string) string { return key + keys.Sep + "#dirty" }

// Marker reads the marker of key. Read errors and unreadable markers are
// reported as MarkerNone.
func (c *Cache) Marker(ctx context.Context, key string) Marker {
	if !c.enabled {
		return MarkerNone
	}
	mk := MarkerKey(key)
	raw, ok, err := c.provider.Get(ctx, c.storageKey(mk))
	if err != nil || !ok {
		return MarkerNone
	}
	state, err := wire.DecodeMarker(raw)
	if err != nil || Marker(state) > MarkerForceUpdate {
		c.selfHeal(ctx, mk, "corrupt")
		return MarkerNone
	}
	return Marker(state)
}

// SetMarker stores m next to key with the Forever timeout.
func (c *Cache) SetMarker(ctx context.Context, key string, m Marker) error {
	if !c.enabled {
		return nil
	}
	if m == MarkerNone {
		return c.ClearMarker(ctx, key)
	}
	return c.put(ctx, MarkerKey(key), wire.EncodeMarker(byte(m)), Forever)
}

func (c *Cache) ClearMarker(ctx context.Context, key string) error {
	return c.Delete(ctx, MarkerKey(key))
}
