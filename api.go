package cachemodel

import (
	"time"

	gen "github.com/unkn0wn-root/cachemodel/genstore"
	pr "github.com/unkn0wn-root/cachemodel/provider"
)

type SetCostFunc func(key string, raw []byte) int64

// Options tune a Cache. Only Provider is required; others have sensible defaults.
type Options struct {
	// Required
	Provider pr.Provider

	GenStore       gen.GenStore  // nil => generations stored in Provider (ProviderGenStore)
	Logger         Logger        // nil => NopLogger
	Hooks          Hooks         // nil => NopHooks
	DefaultTimeout time.Duration // process-wide value timeout; 0 => unset (see SetDefaultTimeout)
	ForeverTimeout time.Duration // what Forever means; 0 => 365 days
	Enqueuer       Enqueuer      // nil => async revalidation unavailable
	MaxKeyLen      int           // 0 => 250; < 0 disables key bounding
	ComputeSetCost SetCostFunc   // default 1
	Disabled       bool          // every read misses, every write is dropped
}

// New builds a Cache. The returned Cache owns Provider (Close closes it) and,
// when GenStore is nil, the generation store it creates over Provider.
func New(opts Options) (*Cache, error) {
	return newCache(opts)
}
