// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the HTTP-edge rate limiter: one in-memory token
// bucket per caller, evicted after a period of inactivity. It protects the
// service from abusive clients and is distinct from the repository's
// per-operation fixed-window limiter, which enforces the data layer's own
// budget regardless of transport.
//
// The limiter is process-local; a horizontally scaled deployment that needs
// a global limit should move to a shared backend (e.g. Redis) instead. It
// is abuse control at the edge, not an authorization mechanism.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket. It must
// return a stable string for the duration of a request, such as
// "user:<id>" or "ip:<addr>".
type keyFunc func(*gin.Context) string

// KeyByUserOrIP returns a keyFunc that prefers the user identity resolved
// by the Identity middleware and falls back to the client IP address.
// Keys are prefixed so the user and IP namespaces cannot collide
// ("user:abc123" vs "ip:203.0.113.7").
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get(ctxKeyUserID); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// clientBucket pairs a token bucket with the last time its key was seen,
// so idle buckets can be swept.
type clientBucket struct {
	lim     *rate.Limiter
	touched time.Time
}

// sweepEvery is the number of lookups between idle-bucket sweeps.
const sweepEvery = 5000

// RateLimiter enforces a per-key token-bucket limit.
//
// Buckets are created on demand in a mutex-guarded map. There is no
// background goroutine; instead every sweepEvery-th lookup evicts buckets
// idle longer than idleAfter, which bounds memory without a timer to
// manage. Safe for concurrent use.
type RateLimiter struct {
	rps       rate.Limit
	burst     int
	keyFn     keyFunc
	idleAfter time.Duration

	mu         sync.Mutex
	clients    map[string]*clientBucket
	sinceSweep uint64
}

// NewRateLimiter builds a RateLimiter replenishing rps tokens per second
// with the given burst size, keyed by keyFn. A burst <= 0 is coerced to 1
// so the limiter always admits at least one request. Install it with
// Handler().
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		keyFn:     keyFn,
		idleAfter: 10 * time.Minute,
		clients:   make(map[string]*clientBucket),
	}
}

// evictIdleLocked drops buckets whose last touch is at least idleAfter
// old. Callers must hold mu.
func (rl *RateLimiter) evictIdleLocked(now time.Time) {
	for key, cb := range rl.clients {
		if now.Sub(cb.touched) >= rl.idleAfter {
			delete(rl.clients, key)
		}
	}
}

// limiterFor returns the bucket for key, creating it if absent and
// refreshing its last-seen time. The periodic sweep runs before the key
// is touched, so a stale bucket is evicted even when it is the one being
// fetched.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sinceSweep++
	if rl.sinceSweep >= sweepEvery {
		rl.evictIdleLocked(now)
		rl.sinceSweep = 0
	}

	cb, ok := rl.clients[key]
	if !ok {
		cb = &clientBucket{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[key] = cb
	}
	cb.touched = now
	return cb.lim
}

// Handler returns the Gin middleware enforcing the limit. A rejected
// request gets a Retry-After header and the standard error envelope:
//
//	HTTP/1.1 429 Too Many Requests
//	{
//	  "request_id": "<uuid>",
//	  "code":       "too_many_requests",
//	  "message":    "rate limit exceeded"
//	}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limiterFor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
