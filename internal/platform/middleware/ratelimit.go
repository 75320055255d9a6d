package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/autoshine/autoshine/internal/platform/auth"
)

const (
	defaultRPS   = 100
	defaultBurst = 200
	// Limiters idle this long are dropped; a returning client starts with a
	// full burst.
	limiterIdleTTL = 10 * time.Minute
	maxLimiters    = 10000
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = defaultRPS
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
	return c
}

// limiterSet hands out one limiter per key, bounded in count and idle time.
type limiterSet struct {
	cfg RateLimitConfig

	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	return &limiterSet{
		cfg:      cfg,
		limiters: expirable.NewLRU[string, *rate.Limiter](maxLimiters, nil, limiterIdleTTL),
	}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)
	s.limiters.Add(key, l)
	return l
}

// rateLimitKey buckets by shop and client IP so one busy front desk cannot
// starve another shop behind the same proxy.
func rateLimitKey(c echo.Context) string {
	shop, _ := c.Get(auth.TenantClaimKey).(string)
	if shop == "" {
		shop = c.Request().Header.Get("X-Tenant-ID")
	}
	return shop + "|" + c.RealIP()
}

// retryAfter is the whole number of seconds until l grants one more token.
func retryAfter(l *rate.Limiter, now time.Time) int {
	r := l.ReserveN(now, 1)
	if !r.OK() {
		return 1
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return int(math.Max(1, math.Ceil(delay.Seconds())))
}

// RateLimit throttles each shop and client pair with a token bucket.
// Non-positive settings fall back to 100 rps with a burst of 200.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	cfg = cfg.withDefaults()
	set := newLimiterSet(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			l := set.get(rateLimitKey(c))
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			now := time.Now()
			if !l.AllowN(now, 1) {
				h.Set("Retry-After", strconv.Itoa(retryAfter(l, now)))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			h.Set("X-RateLimit-Remaining", strconv.Itoa(int(l.TokensAt(now))))
			return next(c)
		}
	}
}
