package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryPutGet(t *testing.T) {
	clk := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	m := NewMemory[string]()
	m.Now = clk.Now

	if _, ok := m.Get("missing"); ok {
		t.Fatal("empty cache must miss")
	}

	m.Put("k", "v", 15*time.Minute)
	got, ok := m.Get("k")
	if !ok || got != "v" {
		t.Fatalf("Get = %q, %v; want v, true", got, ok)
	}
}

func TestMemoryExpiryIsHalfOpen(t *testing.T) {
	clk := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	m := NewMemory[int]()
	m.Now = clk.Now

	m.Put("k", 7, 15*time.Minute)

	clk.Advance(15*time.Minute - time.Nanosecond)
	if _, ok := m.Get("k"); !ok {
		t.Fatal("entry must be live just before expiry")
	}

	clk.Advance(time.Nanosecond)
	if _, ok := m.Get("k"); ok {
		t.Fatal("entry must be dead the instant the clock reaches expiry")
	}
}

func TestMemoryPutUntil(t *testing.T) {
	start := time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)
	clk := newFakeClock(start)
	m := NewMemory[int]()
	m.Now = clk.Now

	endOfDay := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	m.PutUntil("stats", 42, endOfDay)

	clk.Advance(9 * time.Minute)
	if _, ok := m.Get("stats"); !ok {
		t.Fatal("entry must survive until its absolute deadline")
	}
	clk.Advance(time.Minute)
	if _, ok := m.Get("stats"); ok {
		t.Fatal("entry must not outlive its absolute deadline")
	}
}

func TestMemoryInvalidateAndClear(t *testing.T) {
	m := NewMemory[int]()
	m.Put("a", 1, time.Hour)
	m.Put("b", 2, time.Hour)
	m.Put("c", 3, time.Hour)

	m.Invalidate("a", "b", "never-existed")
	if _, ok := m.Get("a"); ok {
		t.Fatal("a should be gone")
	}
	if _, ok := m.Get("c"); !ok {
		t.Fatal("c should survive")
	}

	m.Clear()
	if m.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", m.Len())
	}
}

func TestMemoryPurgeExpired(t *testing.T) {
	clk := newFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	m := NewMemory[int]()
	m.Now = clk.Now

	m.Put("short-a", 1, 5*time.Minute)
	m.Put("short-b", 2, 5*time.Minute)
	m.Put("long", 3, time.Hour)

	clk.Advance(10 * time.Minute)
	if purged := m.PurgeExpired(clk.Now()); purged != 2 {
		t.Fatalf("purged = %d, want 2", purged)
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}
	if _, ok := m.Get("long"); !ok {
		t.Fatal("live entry must survive the purge")
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory[int]()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Put("shared", n, time.Hour)
				m.Get("shared")
				m.PurgeExpired(time.Now())
			}
		}(i)
	}
	wg.Wait()
	if _, ok := m.Get("shared"); !ok {
		t.Fatal("entry lost under concurrent access")
	}
}
