// Package cache provides the two caching tiers the nudge layer sits on: a
// generic in-process TTL cache (Memory) for hot reads, and a persisted
// key-value tier (KV, with SQLite and Redis implementations) that survives
// process restarts.
//
// Expiry is half-open: an entry is dead the instant the clock reaches its
// expiry time. Expired entries are invisible to Get immediately and are
// physically removed by the periodic sweep.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Memory is a concurrency-safe in-process cache with per-entry TTLs. The
// zero value is not usable; call NewMemory.
type Memory[T any] struct {
	// Now is the clock used for expiry decisions. Defaults to time.Now;
	// replace only before first use.
	Now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry[T]
}

// NewMemory returns an empty cache.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{
		Now:     time.Now,
		entries: make(map[string]entry[T]),
	}
}

// Get returns the live value for key. Expired entries are misses; physical
// removal is left to PurgeExpired.
func (m *Memory[T]) Get(key string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || !m.Now().Before(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Put stores value under key for ttl from now.
func (m *Memory[T]) Put(key string, value T, ttl time.Duration) {
	m.PutUntil(key, value, m.Now().Add(ttl))
}

// PutUntil stores value under key with an absolute expiry. Callers use it
// when the deadline is externally bounded, such as caches that must not
// outlive the current day.
func (m *Memory[T]) PutUntil(key string, value T, expiresAt time.Time) {
	m.mu.Lock()
	m.entries[key] = entry[T]{value: value, expiresAt: expiresAt}
	m.mu.Unlock()
}

// Invalidate removes the given keys; absent keys are ignored.
func (m *Memory[T]) Invalidate(keys ...string) {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
}

// Clear drops every entry.
func (m *Memory[T]) Clear() {
	m.mu.Lock()
	m.entries = make(map[string]entry[T])
	m.mu.Unlock()
}

// PurgeExpired removes entries dead at now and reports how many went.
func (m *Memory[T]) PurgeExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			purged++
		}
	}
	return purged
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
