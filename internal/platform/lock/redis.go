package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisManager is a Manager backed by Redis SET NX PX, for deployments that
// run more than one process and need the dedup guard to hold across all of
// them. The work queue itself stays in-process either way.
type RedisManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisManager connects to redisURL and verifies connectivity.
func NewRedisManager(ctx context.Context, redisURL string, ttl time.Duration) (*RedisManager, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisManager{client: client, ttl: ttl}, nil
}

func (m *RedisManager) TryAcquire(ctx context.Context, key string) (bool, error) {
	ok, err := m.client.SetNX(ctx, key, "1", m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return ok, nil
}

func (m *RedisManager) Release(ctx context.Context, key string) error {
	if err := m.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (m *RedisManager) Close() error {
	return m.client.Close()
}
