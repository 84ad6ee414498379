// Package ratelimit throttles enumeration-prone endpoints with a shared
// counter in redis. Counters keyed by client identity survive restarts and
// are shared by all worker processes, unlike an in-process map.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLimited is returned when the caller exhausted its attempts for
	// the current window.
	ErrLimited = errors.New("too many attempts")
	// ErrUnavailable wraps redis failures so callers can decide whether to
	// fail open.
	ErrUnavailable = errors.New("rate limit backend unavailable")
)

// Limiter counts attempts per key with a TTL-bounded window.
type Limiter struct {
	redis       *redis.Client
	maxAttempts int64
	window      time.Duration
}

// NewLimiter builds a Limiter allowing maxAttempts per window per key.
func NewLimiter(client *redis.Client, maxAttempts int64, window time.Duration) *Limiter {
	return &Limiter{redis: client, maxAttempts: maxAttempts, window: window}
}

// Allow registers one attempt for key and returns ErrLimited once the
// window's budget is exceeded. The first attempt of a window sets the TTL.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > l.maxAttempts {
		return ErrLimited
	}

	return nil
}

// LoginKey builds the counter key for login attempts from a client IP.
func LoginKey(ip string) string {
	return "auth:login:" + ip
}
