package cachemodel

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/cachemodel/keys"
)

// Job is the unit of deferred work handed to a worker queue. The worker
// delivers it back through HandleJob; results travel only through the cache.
type Job struct {
	ID         string    `json:"id" msgpack:"id"`
	IsManager  bool      `json:"is_manager" msgpack:"is_manager"`
	Type       string    `json:"type" msgpack:"type"`
	InstanceID any       `json:"instance_id,omitempty" msgpack:"instance_id,omitempty"`
	Function   string    `json:"function_name" msgpack:"function_name"`
	Key        string    `json:"key" msgpack:"key"`
	Args       []any     `json:"args,omitempty" msgpack:"args,omitempty"`
	Kwargs     []keys.KV `json:"kwargs,omitempty" msgpack:"kwargs,omitempty"`

	// Owner short-circuits owner resolution for in-process queues.
	// Never serialized.
	Owner Entity `json:"-" msgpack:"-"`
}

// Validate reports the first required field that is missing.
func (j Job) Validate() error {
	switch {
	case j.Type == "":
		return fmt.Errorf("%w: missing type", ErrMalformedJob)
	case j.Function == "":
		return fmt.Errorf("%w: missing function", ErrMalformedJob)
	case j.Key == "":
		return fmt.Errorf("%w: missing key", ErrMalformedJob)
	case !j.IsManager && j.InstanceID == nil && j.Owner == nil:
		return fmt.Errorf("%w: instance job without instance id", ErrMalformedJob)
	}
	return nil
}

func (j Job) args() keys.Args {
	return keys.Args{Positional: j.Args, Named: j.Kwargs}
}

// Enqueuer hands jobs to a worker substrate. It must not block on the
// worker; a full queue is an error.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// JobHandler is what a worker calls for every dequeued job. *Cache
// implements it.
type JobHandler interface {
	HandleJob(ctx context.Context, job Job) error
}

// JobFunc recomputes the value a job names and stores it at job.Key.
type JobFunc func(ctx context.Context, job Job) error

func jobName(typeName, function string) string { return typeName + "." + function }

// RegisterJob binds typeName/function to fn. Methods and managers register
// themselves; a second registration of the same pair fails.
func (c *Cache) RegisterJob(typeName, function string, fn JobFunc) error {
	if typeName == "" || function == "" {
		return errEmptyName
	}
	name := jobName(typeName, function)
	c.jmu.Lock()
	defer c.jmu.Unlock()
	if _, dup := c.jobs[name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateMethod, name)
	}
	c.jobs[name] = fn
	return nil
}

// AsyncEnabled reports whether an Enqueuer is configured.
func (c *Cache) AsyncEnabled() bool { return c.enq != nil }

// HandleJob validates job and runs the function registered for it.
// Malformed jobs fail before anything runs.
func (c *Cache) HandleJob(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	c.jmu.RLock()
	fn, ok := c.jobs[jobName(job.Type, job.Function)]
	c.jmu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobName(job.Type, job.Function))
	}
	return fn(ctx, job)
}

// revalidate flips key to FORCE_UPDATE and then hands job off. The marker
// goes first so readers that arrive while the job is queued recompute
// synchronously instead of enqueueing again. Readers in this process that
// saw the same DIRTY marker concurrently are collapsed into one hand-off;
// handed reports whether this call enqueued.
func (c *Cache) revalidate(ctx context.Context, job Job) (handed bool, err error) {
	if c.enq == nil {
		return false, ErrAsyncDisabled
	}
	if _, busy := c.handoffs.LoadOrStore(job.Key, struct{}{}); busy {
		return false, nil
	}
	defer c.handoffs.Delete(job.Key)

	// a reader that raced us may have handed off already
	if c.Marker(ctx, job.Key) != MarkerDirty {
		return false, nil
	}
	if err := c.SetMarker(ctx, job.Key, MarkerForceUpdate); err != nil {
		return false, err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if err := c.enq.Enqueue(ctx, job); err != nil {
		return false, err
	}
	return true, nil
}
