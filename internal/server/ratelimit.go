package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a redis-backed fixed-window request limiter shared across
// service instances. Windows are one second wide; counting is a single
// INCR so concurrent instances agree on the total.
type RateLimiter struct {
	client    *redis.Client
	perSecond int
	logger    *slog.Logger
}

// NewRateLimiter creates a limiter allowing perSecond requests per
// one-second window.
func NewRateLimiter(addr string, perSecond int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		client:    redis.NewClient(&redis.Options{Addr: addr}),
		perSecond: perSecond,
		logger:    logger,
	}
}

// Close releases the redis connection.
func (rl *RateLimiter) Close() error {
	return rl.client.Close()
}

// Middleware rejects requests over the limit with 429. Redis errors fail
// open: an unreachable redis must not take the service down with it.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(r *http.Request) bool {
	ctx := r.Context()
	key := fmt.Sprintf("contextgate:ratelimit:%d", time.Now().Unix())

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		rl.logger.Warn("rate limiter unavailable, allowing request", slog.String("error", err.Error()))
		return true
	}
	if count == 1 {
		// First hit in this window owns the expiry.
		rl.client.Expire(ctx, key, 2*time.Second)
	}

	return count <= int64(rl.perSecond)
}
