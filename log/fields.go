// Package log holds what the logger adapters under log/ share.
package log

import (
	"slices"

	"github.com/unkn0wn-root/cachemodel"
)

// SortedKeys returns the keys of f in lexical order so adapters emit
// fields deterministically.
func SortedKeys(f cachemodel.Fields) []string {
	if len(f) == 0 {
		return nil
	}
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
