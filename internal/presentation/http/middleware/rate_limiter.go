package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sangkips/pharmadesk/internal/presentation/http/dto/response"
	"golang.org/x/time/rate"
)

// UserRateLimiter limits each authenticated user separately, falling back to
// the client IP for anonymous requests.
type UserRateLimiter struct {
	limiters    map[string]*rateLimiterEntry
	mu          sync.Mutex
	rate        rate.Limit
	burst       int
	cleanupTick time.Duration
	entryTTL    time.Duration
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterConfig holds configuration for the rate limiter
type RateLimiterConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	CleanupInterval   time.Duration
	EntryTTL          time.Duration
}

// DefaultRateLimiterConfig returns sensible defaults
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		CleanupInterval:   5 * time.Minute,
		EntryTTL:          10 * time.Minute,
	}
}

// RateLimiterConfigFrom turns "requests per duration seconds" into a token
// bucket that allows the whole window as a burst.
func RateLimiterConfigFrom(requests, durationSeconds int) RateLimiterConfig {
	cfg := DefaultRateLimiterConfig()
	if requests > 0 && durationSeconds > 0 {
		cfg.RequestsPerSecond = float64(requests) / float64(durationSeconds)
		cfg.BurstSize = requests
	}
	return cfg
}

// NewUserRateLimiter creates a per-user rate limiter. Call Run to evict idle
// entries.
func NewUserRateLimiter(cfg RateLimiterConfig) *UserRateLimiter {
	return &UserRateLimiter{
		limiters:    make(map[string]*rateLimiterEntry),
		rate:        rate.Limit(cfg.RequestsPerSecond),
		burst:       cfg.BurstSize,
		cleanupTick: cfg.CleanupInterval,
		entryTTL:    cfg.EntryTTL,
	}
}

func (rl *UserRateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.limiters[key]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = &rateLimiterEntry{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

// Run evicts idle entries until ctx is done
func (rl *UserRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.cleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.cleanup(now)
		}
	}
}

func (rl *UserRateLimiter) cleanup(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := now.Add(-rl.entryTTL)
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Middleware returns a Gin middleware that applies the limit. It must run
// after AuthMiddleware for the per-user key to be available.
func (rl *UserRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString("user_id")
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		limiter := rl.getLimiter(key)
		limit := strconv.Itoa(rl.burst)

		if !limiter.Allow() {
			c.Header("X-RateLimit-Limit", limit)
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			response.ErrorWithCode(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))

		c.Next()
	}
}
