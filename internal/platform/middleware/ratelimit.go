package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig bounds how fast a single client may hit the API.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig is generous enough for a monitor ingesting one
// observation per patient per second while still stopping runaway clients.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// bucket is a token bucket refilled lazily on each take.
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	last     time.Time
}

func newBucket(cfg RateLimitConfig) *bucket {
	return &bucket{
		tokens:   float64(cfg.BurstSize),
		capacity: float64(cfg.BurstSize),
		rate:     cfg.RequestsPerSecond,
		last:     time.Now(),
	}
}

// take consumes one token. When the bucket is empty it reports how many
// whole seconds until a token becomes available.
func (b *bucket) take() (ok bool, retryAfter int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.last).Seconds() * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if b.rate <= 0 {
		return false, 1
	}
	return false, int((1-b.tokens)/b.rate) + 1
}

// RateLimit applies a per-client-IP token bucket to the routes it wraps.
// Buckets are created on first sight of an IP and live for the process.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	var (
		mu      sync.RWMutex
		buckets = make(map[string]*bucket)
	)

	bucketFor := func(ip string) *bucket {
		mu.RLock()
		b, ok := buckets[ip]
		mu.RUnlock()
		if ok {
			return b
		}

		mu.Lock()
		defer mu.Unlock()
		if b, ok := buckets[ip]; ok {
			return b
		}
		b = newBucket(cfg)
		buckets[ip] = b
		return b
	}

	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("X-RateLimit-Limit", limit)

			ok, retryAfter := bucketFor(c.RealIP()).take()
			if !ok {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
