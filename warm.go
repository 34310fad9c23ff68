package cachemodel

import (
	"context"
	"errors"
	"fmt"
)

// Warmer populates caches ahead of traffic. *Manager implements it.
type Warmer interface {
	Type() string
	WarmCache(ctx context.Context) error
}

// WarmCache warms every w in order. A failing warmer does not stop the rest.
func WarmCache(ctx context.Context, ws ...Warmer) error {
	var errs []error
	for _, w := range ws {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := w.WarmCache(ctx); err != nil {
			errs = append(errs, fmt.Errorf("warm %s: %w", w.Type(), err))
		}
	}
	return errors.Join(errs...)
}
