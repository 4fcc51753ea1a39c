package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyContext builds a test context with a fixed client address and, when uid
// is non-nil, a resolved user identity.
func keyContext(t *testing.T, uid any) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	if uid != nil {
		c.Set(ctxKeyUserID, uid)
	}
	return c
}

func TestKeyByUserOrIP(t *testing.T) {
	keyFn := KeyByUserOrIP()

	if got := keyFn(keyContext(t, "u123")); got != "user:u123" {
		t.Fatalf("resolved identity: key %q, want user:u123", got)
	}

	// No identity and a non-string identity both fall back to the client IP.
	for _, uid := range []any{nil, 42} {
		key := keyFn(keyContext(t, uid))
		if !strings.HasPrefix(key, "ip:") || !strings.Contains(key, "203.0.113.9") {
			t.Fatalf("uid %v: key %q, want ip-based fallback", uid, key)
		}
	}
}

func TestNewRateLimiter_BurstCoercion_AndBucketReuse(t *testing.T) {
	rl := NewRateLimiter(2.0, 0, KeyByUserOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d after coercion, want 1", rl.burst)
	}

	first := rl.limiterFor("k1")
	if first == nil {
		t.Fatal("limiterFor returned nil")
	}
	if second := rl.limiterFor("k1"); second != first {
		t.Fatal("same key must map to the same bucket")
	}
}

func TestRateLimiter_IdleSweep(t *testing.T) {
	rl := NewRateLimiter(1.0, 1, KeyByUserOrIP())
	rl.idleAfter = 1 * time.Nanosecond

	// Seed an idle bucket and arm the counter so the next lookup sweeps.
	rl.mu.Lock()
	rl.clients["old"] = &clientBucket{
		lim:     rate.NewLimiter(1, 1),
		touched: time.Now().Add(-time.Hour),
	}
	rl.sinceSweep = sweepEvery - 1
	rl.mu.Unlock()

	_ = rl.limiterFor("new")

	rl.mu.Lock()
	_, existsOld := rl.clients["old"]
	_, existsNew := rl.clients["new"]
	rl.mu.Unlock()

	if existsOld {
		t.Fatalf("expected 'old' bucket to be evicted by the sweep")
	}
	if !existsNew {
		t.Fatalf("expected 'new' bucket to be created")
	}
}

func TestRateLimiter_Handler_AllowThenDeny(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// rps=1, burst=1: the first immediate request fits, the second does not.
	rl := NewRateLimiter(1.0, 1, KeyByUserOrIP())

	r := gin.New()
	// Stand-in for the RequestID middleware so the envelope carries an id.
	r.Use(func(c *gin.Context) { c.Header(requestIDHeader, "rid-1"); c.Next() })
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		return w
	}

	if w := send(); w.Code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", w.Code)
	}

	w := send()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q, want \"1\"", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("429 body is not JSON: %v", err)
	}
	if body["code"] != "too_many_requests" || body["message"] != "rate limit exceeded" {
		t.Fatalf("429 body = %v", body)
	}
	if body["request_id"] != "rid-1" {
		t.Fatalf("request_id = %v, want rid-1", body["request_id"])
	}
}

func TestRateLimiter_Handler_SeparateBucketsPerUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(1.0, 1, KeyByUserOrIP())

	r := gin.New()
	r.Use(Identity(""))
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	do := func(user string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		if user != "" {
			req.Header.Set(HeaderUserID, user)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	// User A exhausts its bucket; user B still has a fresh one.
	if code := do("alice"); code != http.StatusOK {
		t.Fatalf("alice first request -> %d", code)
	}
	if code := do("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("alice second request -> %d; want 429", code)
	}
	if code := do("bob"); code != http.StatusOK {
		t.Fatalf("bob first request -> %d; want separate bucket", code)
	}
}
