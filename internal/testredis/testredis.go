// Package testredis hands tests a Redis client on a scratch database, or
// skips the test when no server is reachable.
package testredis

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

// Client connects to CACHEMODEL_TEST_REDIS_ADDR (default localhost:6379),
// DB 15, flushes it and registers cleanup.
func Client(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("CACHEMODEL_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}
