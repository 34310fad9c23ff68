package cachemodel

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// Configuration errors. Returned from New, NewMethod, NewManager and
	// SetDefaultTimeout; never from the read path.
	ErrTimeoutConflict = errors.New("cachemodel: default timeout already set")
	ErrNoTimeout       = errors.New("cachemodel: no cache timeout configured")
	ErrAsyncDisabled   = errors.New("cachemodel: async revalidation requires an Enqueuer")
	ErrDuplicateMethod = errors.New("cachemodel: method already registered")

	// ErrNotFound is what repositories wrap when a lookup finds no row.
	// Not-found results are never cached.
	ErrNotFound = errors.New("cachemodel: not found")

	// ErrWriteRejected: the provider declined a dirty marker or key set write
	// (eviction pressure, contention). Value writes that are declined are
	// only logged.
	ErrWriteRejected = errors.New("cachemodel: write rejected by provider")

	ErrUnknownLookup = errors.New("cachemodel: lookup field not registered")
	ErrNoOwner       = errors.New("cachemodel: instance-scoped call without an owning instance")

	// Worker-side errors.
	ErrMalformedJob = errors.New("cachemodel: malformed revalidation job")
	ErrUnknownJob   = errors.New("cachemodel: no handler registered for job")
	ErrNoResolver   = errors.New("cachemodel: job owner cannot be resolved")
)

// InvalidateError is returned by Coordinator.Invalidate when the namespace
// flush failed. FieldErrs carries the by-field purge failures that were
// swallowed along the way (nil when every purge succeeded).
type InvalidateError struct {
	Type      string
	ID        any
	FieldErrs map[string]error
	FlushErr  error
}

func (e *InvalidateError) Error() string {
	msg := fmt.Sprintf("invalidate %s %v: namespace flush failed: %v", e.Type, e.ID, e.FlushErr)
	if len(e.FieldErrs) == 0 {
		return msg
	}
	fields := make([]string, 0, len(e.FieldErrs))
	for f := range e.FieldErrs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return msg + "; field purge failed for " + strings.Join(fields, ",")
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 1+len(e.FieldErrs))
	if e.FlushErr != nil {
		errs = append(errs, e.FlushErr)
	}
	for _, err := range e.FieldErrs {
		errs = append(errs, err)
	}
	return errs
}
