package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL drops buckets of clients not seen for this long. Zero keeps
	// them forever.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig is sized for the login form: a handful of attempts
// per client address, then a slow trickle.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 5,
		BurstSize:         10,
		IdleTTL:           10 * time.Minute,
	}
}

type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastSeen   time.Time
}

func (b *tokenBucket) allow(now time.Time) bool {
	b.tokens += now.Sub(b.lastSeen).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *tokenBucket) retryAfter() int {
	if b.refillRate <= 0 {
		return 1
	}
	return int((1-b.tokens)/b.refillRate) + 1
}

// limiter holds one bucket per client address.
type limiter struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	buckets   map[string]*tokenBucket
	now       func() time.Time
	lastSweep time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{cfg: cfg, buckets: make(map[string]*tokenBucket), now: time.Now}
}

// take reports whether key may proceed, and otherwise how many seconds to
// wait.
func (l *limiter) take(key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{
			tokens:     float64(l.cfg.BurstSize),
			maxTokens:  float64(l.cfg.BurstSize),
			refillRate: l.cfg.RequestsPerSecond,
			lastSeen:   now,
		}
		l.buckets[key] = b
	}
	if b.allow(now) {
		return true, 0
	}
	return false, b.retryAfter()
}

func (l *limiter) sweep(now time.Time) {
	if l.cfg.IdleTTL <= 0 || now.Sub(l.lastSweep) < l.cfg.IdleTTL {
		return
	}
	l.lastSweep = now
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.cfg.IdleTTL {
			delete(l.buckets, k)
		}
	}
}

// RateLimit limits requests per client IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newLimiter(cfg))
}

func rateLimit(l *limiter) echo.MiddlewareFunc {
	limit := strconv.FormatFloat(l.cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			ok, wait := l.take(c.RealIP())
			if !ok {
				h.Set("Retry-After", strconv.Itoa(wait))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many sign-in attempts, try again shortly")
			}
			return next(c)
		}
	}
}
