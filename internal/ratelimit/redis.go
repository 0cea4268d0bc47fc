package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares the Allow window across processes using SET NX with expiry.
type RedisLimiter struct {
	client   *redis.Client
	prefix   string
	interval time.Duration
}

func NewRedis(client *redis.Client, prefix string, interval time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		prefix:   prefix,
		interval: interval,
	}
}

// Allow fails open: if Redis is unreachable the request is let through.
func (l *RedisLimiter) Allow(key string) bool {
	if l.interval <= 0 {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ok, err := l.client.SetNX(ctx, l.prefix+key, time.Now().Unix(), l.interval).Result()
	if err != nil {
		return true
	}
	return ok
}

var _ RateLimiter = (*RedisLimiter)(nil)
