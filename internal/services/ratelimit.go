package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scrapsail/scrapsail-backend/internal/apperrors"
)

// RateLimiter is a fixed-window counter in Redis. A nil limiter, or one
// without a client, allows everything.
type RateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: client, prefix: prefix, limit: limit, window: window}
}

// Allow counts one attempt for key. It fails open when Redis is unreachable.
func (l *RateLimiter) Allow(ctx context.Context, key string) error {
	if l == nil || l.redis == nil || l.limit <= 0 {
		return nil
	}

	k := "ratelimit:" + l.prefix + ":" + key
	n, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		slog.Warn("rate limiter unavailable", "error", err)
		return nil
	}
	if n == 1 {
		if err := l.redis.Expire(ctx, k, l.window).Err(); err != nil {
			slog.Warn("rate limiter expire failed", "error", err)
		}
	}
	if n > int64(l.limit) {
		return apperrors.RateLimited("Too many requests, please try again later")
	}
	return nil
}
