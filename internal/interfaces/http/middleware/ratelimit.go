package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window in-memory limiter. One instance is shared
// across all requests; state is keyed per caller.
type RateLimiter struct {
	mu          sync.Mutex
	clients     map[string]*clientWindow
	limit       int           // requests allowed per window
	window      time.Duration // window length
	cleanupTick time.Duration
}

type clientWindow struct {
	remaining int
	resetAt   time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients:     make(map[string]*clientWindow),
		limit:       limit,
		window:      window,
		cleanupTick: window * 2,
	}
	go rl.cleanup()
	return rl
}

// cleanup drops windows that expired more than one full window ago
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupTick)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, w := range rl.clients {
			if now.Sub(w.resetAt) > rl.window {
				delete(rl.clients, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Allow consumes one request from the key's window, opening a fresh window
// when the previous one has elapsed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.clients[key]
	if !ok || now.After(w.resetAt) {
		rl.clients[key] = &clientWindow{
			remaining: rl.limit - 1,
			resetAt:   now.Add(rl.window),
		}
		return true
	}

	if w.remaining > 0 {
		w.remaining--
		return true
	}
	return false
}

// Remaining reports how many requests the key has left in its window
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.clients[key]
	if !ok || time.Now().After(w.resetAt) {
		return rl.limit
	}
	return w.remaining
}

// rateLimitKey scopes the limit per household when the gateway header is
// present, falling back to the client IP for unauthenticated traffic
func rateLimitKey(c *gin.Context) string {
	if householdID := c.GetHeader("X-Household-ID"); householdID != "" {
		return householdID
	}
	return c.ClientIP()
}

// RateLimit returns a rate limiting middleware
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, rateLimitKey)
}

// RateLimitByKey returns a rate limiting middleware with a custom key extractor
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)

		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Too many requests. Please try again later.",
				},
			})
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", limiter.Remaining(key)))

		c.Next()
	}
}
