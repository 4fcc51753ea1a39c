package repo

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ePaysa-ind/milo-sub005/internal/docstore/memstore"
	"github.com/ePaysa-ind/milo-sub005/internal/domain"
	"github.com/ePaysa-ind/milo-sub005/internal/identity"
)

func recvEmission(t *testing.T, ch <-chan []domain.Nudge) []domain.Nudge {
	t.Helper()
	select {
	case items, ok := <-ch:
		if !ok {
			t.Fatal("stream closed unexpectedly")
		}
		return items
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a stream emission")
	}
	return nil
}

func TestNudgesStreamEmitsInitialAndUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	store := memstore.New()
	r := newTestRepo(t, store, clk)
	seedNudge(t, store, "first", clk.Now().Add(-time.Hour), nil)

	ch := r.NudgesStream(ctx, 10, "", true)
	initial := recvEmission(t, ch)
	if len(initial) != 1 || initial[0].Content != "first" {
		t.Fatalf("initial emission = %v, want the current contents", pageContents(initial))
	}

	seedNudge(t, store, "second", clk.Now(), nil)
	updated := recvEmission(t, ch)
	if len(updated) != 2 {
		t.Fatalf("update emission = %v, want both nudges", pageContents(updated))
	}
	if updated[0].Content != "second" {
		t.Errorf("emission order = %v, want newest first", pageContents(updated))
	}
}

func TestNudgesStreamClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clk := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	store := memstore.New()
	r := newTestRepo(t, store, clk)

	ch := r.NudgesStream(ctx, 10, "", true)
	recvEmission(t, ch)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}

func TestNudgesStreamRateLimitedEmitsEmptyAndCloses(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	r, err := New(ctx, store, newTestKV(t), identity.Static{UserID: "u"}, Config{RateLimit: 1}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	first := r.NudgesStream(ctx, 10, "", true)
	recvEmission(t, first)

	second := r.NudgesStream(ctx, 10, "", true)
	items, ok := <-second
	if !ok {
		t.Fatal("rejected stream must emit once before closing")
	}
	if len(items) != 0 {
		t.Errorf("rejected stream emission = %v, want empty", pageContents(items))
	}
	if _, ok := <-second; ok {
		t.Error("rejected stream must close after its empty emission")
	}
}

func TestNudgesStreamReplacesUndecodableSnapshotWithEmpty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	store := memstore.New()
	r := newTestRepo(t, store, clk)
	seedNudge(t, store, "healthy", clk.Now().Add(-time.Hour), nil)

	ch := r.NudgesStream(ctx, 10, "", true)
	if initial := recvEmission(t, ch); len(initial) != 1 {
		t.Fatalf("initial emission = %v", pageContents(initial))
	}

	// A document with no content fails decoding; the stream must stay alive
	// and deliver an empty list instead of an error.
	if _, err := store.Add(ctx, CollectionNudges, map[string]any{
		domain.FieldCreatedAt: clk.Now(),
	}); err != nil {
		t.Fatalf("seed corrupt doc: %v", err)
	}
	if items := recvEmission(t, ch); len(items) != 0 {
		t.Errorf("emission after corrupt write = %v, want empty", pageContents(items))
	}
}
