package intake

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"municipal-complaint-service/shared/lockx"
)

// RedisLocker serializes intake turns per citizen across api replicas.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := lockx.AcquireWait(ctx, l.client, key, l.ttl, 50*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return func() {
		_ = lockx.Release(context.Background(), l.client, lock)
	}, nil
}
