// Package redisq carries revalidation jobs over a Redis list so that any
// process sharing the Redis instance can run them.
//
// Producers LPUSH, workers BRPOP. Payloads are msgpack-encoded Jobs.
// In-process Owner references do not survive the trip; methods of
// instance-owned values need a Resolver.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/cachemodel"
	"github.com/unkn0wn-root/cachemodel/codec"
)

const defaultList = "cachemodel:jobs"

var (
	ErrNilClient = errors.New("redisq: nil client")
	ErrFull      = errors.New("redisq: queue full")
)

type Config struct {
	List   string                      // default "cachemodel:jobs"
	Codec  codec.Codec[cachemodel.Job] // default codec.Msgpack
	MaxLen int64                       // 0 => unbounded; checked before each push
}

type Queue struct {
	rdb    redis.UniversalClient
	list   string
	codec  codec.Codec[cachemodel.Job]
	maxLen int64
}

var _ cachemodel.Enqueuer = (*Queue)(nil)

func New(rdb redis.UniversalClient, cfg Config) (*Queue, error) {
	if rdb == nil {
		return nil, ErrNilClient
	}
	q := &Queue{rdb: rdb, list: cfg.List, codec: cfg.Codec, maxLen: cfg.MaxLen}
	if q.list == "" {
		q.list = defaultList
	}
	if q.codec == nil {
		q.codec = codec.Msgpack[cachemodel.Job]{}
	}
	return q, nil
}

func (q *Queue) Enqueue(ctx context.Context, job cachemodel.Job) error {
	if q.maxLen > 0 {
		n, err := q.rdb.LLen(ctx, q.list).Result()
		if err != nil {
			return err
		}
		if n >= q.maxLen {
			return ErrFull
		}
	}
	b, err := q.codec.Encode(job)
	if err != nil {
		return fmt.Errorf("redisq: encode job: %w", err)
	}
	return q.rdb.LPush(ctx, q.list, b).Err()
}

// Len reports the number of queued jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.list).Result()
}

type WorkerOptions struct {
	Block   time.Duration // BRPOP timeout per poll; default 5s
	Timeout time.Duration // per job; 0 => none
	Logger  cachemodel.Logger
}

type Worker struct {
	q    *Queue
	h    cachemodel.JobHandler
	opts WorkerOptions
	log  cachemodel.Logger
}

func (q *Queue) Worker(h cachemodel.JobHandler, opts WorkerOptions) *Worker {
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	w := &Worker{q: q, h: h, opts: opts, log: opts.Logger}
	if w.log == nil {
		w.log = cachemodel.NopLogger{}
	}
	return w
}

// ProcessOne waits up to Block for a job and runs it. It reports whether a
// job was taken. Undecodable payloads are dropped and reported as
// cachemodel.ErrMalformedJob.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	res, err := w.q.rdb.BRPop(ctx, w.opts.Block, w.q.list).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// res = [list, payload]
	job, err := w.q.codec.Decode([]byte(res[1]))
	if err != nil {
		w.log.Error("dropping undecodable job", cachemodel.Fields{"list": w.q.list, "err": err})
		return true, fmt.Errorf("%w: %w", cachemodel.ErrMalformedJob, err)
	}

	jctx := ctx
	if w.opts.Timeout > 0 {
		var cancel context.CancelFunc
		jctx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
	}
	if err := w.h.HandleJob(jctx, job); err != nil {
		w.log.Warn("revalidation job failed", cachemodel.Fields{
			"id": job.ID, "type": job.Type, "function": job.Function, "key": job.Key, "err": err,
		})
		return true, err
	}
	return true, nil
}

// Run processes jobs until ctx is done. Job failures are logged and do not
// stop the loop; Redis errors back off for one second.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		taken, err := w.ProcessOne(ctx)
		if err == nil || taken || ctx.Err() != nil {
			continue
		}
		w.log.Warn("job poll failed", cachemodel.Fields{"list": w.q.list, "err": err})
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
}
