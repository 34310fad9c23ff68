package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGenStore shares generations across processes and survives restarts.
// Optionally, a TTL can be applied to generation keys to prevent unbounded
// growth; it is refreshed on every bump. Use a TTL longer than any value
// timeout, since an expired generation reads as 0 again.
type RedisGenStore struct {
	rdb redis.UniversalClient
	ns  string
	ttl time.Duration
}

var _ GenStore = (*RedisGenStore)(nil)

// NewRedisGenStore creates a Redis-backed generation store without TTL.
func NewRedisGenStore(client redis.UniversalClient, namespace string) *RedisGenStore {
	return &RedisGenStore{rdb: client, ns: namespace}
}

// NewRedisGenStoreWithTTL creates a Redis-backed generation store with TTL.
// If ttl <= 0, keys do not expire.
func NewRedisGenStoreWithTTL(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisGenStore {
	return &RedisGenStore{rdb: client, ns: namespace, ttl: ttl}
}

func (s *RedisGenStore) key(k string) string { return "gen:" + s.ns + ":" + k }

func (s *RedisGenStore) Snapshot(ctx context.Context, ns string) (uint64, error) {
	u, err := s.rdb.Get(ctx, s.key(ns)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis gen snapshot: %w", err)
	}
	return u, nil
}

func (s *RedisGenStore) SnapshotMany(ctx context.Context, nss []string) (map[string]uint64, error) {
	if len(nss) == 0 {
		return map[string]uint64{}, nil
	}
	keys := make([]string, len(nss))
	for i, k := range nss {
		keys[i] = s.key(k)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64, len(nss))
	for i, v := range vals {
		if v == nil {
			out[nss[i]] = 0
			continue
		}
		u, err := strconv.ParseUint(fmt.Sprint(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis gen parse at %s: %w", nss[i], err)
		}
		out[nss[i]] = u
	}
	return out, nil
}

// Bump is a single INCR, or INCR+EXPIRE pipelined when a TTL is set.
func (s *RedisGenStore) Bump(ctx context.Context, ns string) (uint64, error) {
	k := s.key(ns)
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is not applicable (Redis handles expiry if TTL is set).
func (s *RedisGenStore) Cleanup(time.Duration) {}

// Close does not close the client; the caller owns it.
func (s *RedisGenStore) Close(context.Context) error { return nil }
