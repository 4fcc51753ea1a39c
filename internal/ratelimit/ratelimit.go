// Package ratelimit implements the fixed-window operation limiter that
// guards the nudge data layer.
//
// Each operation key gets an independent counter per wall-clock minute: the
// first call in a minute opens the window, every call increments it, and
// calls past the limit are rejected until the minute rolls over. Windows are
// process-local; a horizontally scaled deployment that needs global limits
// should front this with a shared limiter instead.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultLimit is the per-operation ceiling per minute window.
const DefaultLimit = 100

type window struct {
	count int
	start time.Time
}

// Limiter counts operations per (key, minute) window. Safe for concurrent
// use.
type Limiter struct {
	// Now is the clock that buckets operations into windows. Defaults to
	// time.Now; replace only before first use.
	Now func() time.Time

	mu      sync.Mutex
	limit   int
	windows map[string]window
}

// New returns a limiter allowing limit operations per key per minute.
// Values <= 0 are coerced to DefaultLimit.
func New(limit int) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Limiter{
		Now:     time.Now,
		limit:   limit,
		windows: make(map[string]window),
	}
}

// Allow records one call under op and reports whether it is within the
// current window's limit. The count is incremented before the check, so with
// a limit of 100 the 101st call in a minute is the first rejection.
func (l *Limiter) Allow(op string) bool {
	now := l.Now()
	bucket := now.Truncate(time.Minute)
	key := op + "|" + bucket.Format("2006-01-02T15:04")

	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok {
		w = window{start: bucket}
	}
	w.count++
	l.windows[key] = w
	return w.count <= l.limit
}

// Sweep drops windows whose minute has fully elapsed at now and reports how
// many were removed. The window currently receiving traffic is never
// touched.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	swept := 0
	for key, w := range l.windows {
		if !now.Before(w.start.Add(time.Minute)) {
			delete(l.windows, key)
			swept++
		}
	}
	return swept
}
