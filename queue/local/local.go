// Package local runs revalidation jobs on an in-process worker pool.
//
//	q := local.New(local.Options{Workers: 4, QueueLen: 1024})
//	c, _ := cachemodel.New(cachemodel.Options{Provider: p, Enqueuer: q})
//	q.Start(c)
//	defer q.Close()
package local

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unkn0wn-root/cachemodel"
)

var (
	ErrFull   = errors.New("cachemodel/local: queue full")
	ErrClosed = errors.New("cachemodel/local: queue closed")
)

type Options struct {
	Workers  int           // default 1
	QueueLen int           // default 1024
	Timeout  time.Duration // per job; 0 => none
	Logger   cachemodel.Logger
}

// Queue is a bounded channel drained by a fixed set of goroutines. Jobs run
// detached from the context of the request that enqueued them.
type Queue struct {
	opts Options
	log  cachemodel.Logger
	q    chan cachemodel.Job
	wg   sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	start   sync.Once
	closing sync.Once
}

var _ cachemodel.Enqueuer = (*Queue)(nil)

func New(opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueLen <= 0 {
		opts.QueueLen = 1024
	}
	q := &Queue{opts: opts, log: opts.Logger, q: make(chan cachemodel.Job, opts.QueueLen)}
	if q.log == nil {
		q.log = cachemodel.NopLogger{}
	}
	return q
}

// Start launches the workers. Jobs enqueued earlier wait in the buffer.
// Later calls are no-ops.
func (q *Queue) Start(h cachemodel.JobHandler) {
	q.start.Do(func() {
		q.wg.Add(q.opts.Workers)
		for i := 0; i < q.opts.Workers; i++ {
			go func() {
				defer q.wg.Done()
				for job := range q.q {
					q.run(h, job)
				}
			}()
		}
	})
}

func (q *Queue) run(h cachemodel.JobHandler, job cachemodel.Job) {
	ctx := context.Background()
	if q.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.opts.Timeout)
		defer cancel()
	}
	if err := h.HandleJob(ctx, job); err != nil {
		q.log.Warn("revalidation job failed", cachemodel.Fields{
			"id": job.ID, "type": job.Type, "function": job.Function, "key": job.Key, "err": err,
		})
	}
}

// Enqueue never blocks: a full buffer fails with ErrFull.
func (q *Queue) Enqueue(_ context.Context, job cachemodel.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.q <- job:
		return nil
	default:
		return ErrFull
	}
}

// Len reports how many jobs wait in the buffer.
func (q *Queue) Len() int { return len(q.q) }

// Close stops accepting jobs and waits for the queued ones to finish.
// Jobs still buffered on a queue that was never started are discarded.
func (q *Queue) Close() {
	q.closing.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.q)
		q.mu.Unlock()
		q.wg.Wait()
	})
}
