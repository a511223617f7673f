package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"blogapi/internal/metrics"
)

const RateLimitKeyPrefix = "ratelimit:"

// Limiter counts hits for a key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
	Limit() int
	Window() time.Duration
}

// counterStore is the part of the Redis client the limiter needs.
type counterStore interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// RedisLimiter is a fixed-window counter. Each hit runs SET NX EX and INCR
// in one MULTI, so a counter never exists without its TTL.
type RedisLimiter struct {
	store  counterStore
	limit  int
	window time.Duration
}

func NewRedisLimiter(client counterStore, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{store: client, limit: limit, window: window}
}

func (l *RedisLimiter) Limit() int            { return l.limit }
func (l *RedisLimiter) Window() time.Duration { return l.window }

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	k := RateLimitKeyPrefix + key
	var incr *redis.IntCmd
	_, err := l.store.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, 0, l.window)
		incr = pipe.Incr(ctx, k)
		return nil
	})
	if err != nil {
		return true, 0, err
	}
	count := incr.Val()
	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(l.limit), remaining, nil
}

// RateLimit rejects requests over the limiter's budget per route and client
// IP. A nil limiter disables limiting; limiter errors let the request through.
func RateLimit(limiter Limiter, logger *slog.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		route := c.FullPath()
		allowed, remaining, err := limiter.Allow(c.Request.Context(), route+":"+c.ClientIP())
		if err != nil {
			logger.Warn("rate limiter unavailable, allowing request", "route", route, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			m.RateLimitHit(route)
			c.Header("Retry-After", strconv.Itoa(int(limiter.Window().Seconds())))
			abortJSON(c, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}
		c.Next()
	}
}
