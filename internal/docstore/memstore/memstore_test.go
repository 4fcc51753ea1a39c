package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ePaysa-ind/milo-sub005/internal/docstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustAdd(t *testing.T, s *Store, collection string, data map[string]any) string {
	t.Helper()
	id, err := s.Add(context.Background(), collection, data)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return id
}

func TestAddGetRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := mustAdd(t, s, "nudges", map[string]any{
		"content":   "drink water",
		"active":    true,
		"createdAt": docstore.ServerTimestamp,
	})
	if id == "" {
		t.Fatal("expected a generated id")
	}

	doc, err := s.Get(ctx, "nudges", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Data["content"] != "drink water" {
		t.Errorf("content = %v, want drink water", doc.Data["content"])
	}
	if _, ok := doc.Data["createdAt"].(time.Time); !ok {
		t.Errorf("createdAt = %T, want time.Time", doc.Data["createdAt"])
	}

	// The returned document is a copy; callers must not be able to reach
	// into the store through it.
	doc.Data["content"] = "tampered"
	again, err := s.Get(ctx, "nudges", id)
	if err != nil {
		t.Fatalf("Get after tamper: %v", err)
	}
	if again.Data["content"] != "drink water" {
		t.Errorf("stored content changed to %v", again.Data["content"])
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nudges", "nope")
	if !docstore.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestUpdateMergesAndResolvesSentinels(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return fixed }
	ctx := context.Background()

	id := mustAdd(t, s, "nudges", map[string]any{
		"content":       "stretch",
		"deliveryCount": int64(2),
	})
	err := s.Update(ctx, "nudges", id, map[string]any{
		"deliveryCount": docstore.Increment(1),
		"lastDelivered": docstore.ServerTimestamp,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, err := s.Get(ctx, "nudges", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := doc.Data["deliveryCount"]; got != int64(3) {
		t.Errorf("deliveryCount = %v, want 3", got)
	}
	if got := doc.Data["lastDelivered"]; got != fixed {
		t.Errorf("lastDelivered = %v, want %v", got, fixed)
	}
	if doc.Data["content"] != "stretch" {
		t.Errorf("content lost on merge: %v", doc.Data["content"])
	}
}

func TestUpdateMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.Update(context.Background(), "nudges", "ghost", map[string]any{"active": false})
	if !docstore.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustAdd(t, s, "nudges", map[string]any{"content": "x"})

	if err := s.Delete(ctx, "nudges", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "nudges", id); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := s.Get(ctx, "nudges", id); !docstore.IsNotFound(err) {
		t.Fatalf("Get after delete = %v, want not-found", err)
	}
}

func TestQueryFiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, "nudges", map[string]any{"content": "a", "active": true, "scheduleMinute": 540, "scheduleDays": []int{1, 3}})
	mustAdd(t, s, "nudges", map[string]any{"content": "b", "active": true, "scheduleMinute": 300, "scheduleDays": []int{2}})
	mustAdd(t, s, "nudges", map[string]any{"content": "c", "active": false, "scheduleMinute": 600, "scheduleDays": []int{1}})
	mustAdd(t, s, "nudges", map[string]any{"content": "d", "active": true, "scheduleDays": []int{1}}) // no scheduleMinute

	docs, err := s.Query(ctx, "nudges", docstore.Query{
		Filters: []docstore.Filter{
			{Field: "active", Op: docstore.OpEqual, Value: true},
			{Field: "scheduleDays", Op: docstore.OpArrayContains, Value: 1},
			{Field: "scheduleMinute", Op: docstore.OpLessOrEqual, Value: 560},
		},
		OrderBy:    "scheduleMinute",
		Descending: true,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	// Only "a" matches: "b" is scheduled on other days, "c" is inactive,
	// "d" has no order-by field and is excluded from ordered results.
	if len(docs) != 1 || docs[0].Data["content"] != "a" {
		t.Fatalf("got %d docs (first=%v), want just a", len(docs), first(docs))
	}
}

func TestQueryCursorPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		mustAdd(t, s, "nudges", map[string]any{
			"content":   string(rune('a' + i)),
			"createdAt": base.Add(time.Duration(i) * time.Hour),
		})
	}

	q := docstore.Query{OrderBy: "createdAt", Descending: true, Limit: 2}
	var seen []string
	var cursor *docstore.Document
	for {
		q.StartAfter = cursor
		page, err := s.Query(ctx, "nudges", q)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(page) == 0 {
			break
		}
		for _, d := range page {
			seen = append(seen, d.Data["content"].(string))
		}
		last := page[len(page)-1]
		cursor = &last
	}

	want := []string{"e", "d", "c", "b", "a"}
	if len(seen) != len(want) {
		t.Fatalf("walked %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("walked %v, want %v", seen, want)
		}
	}
}

func TestCountHonorsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		mustAdd(t, s, "nudges", map[string]any{"active": true})
	}

	n, err := s.Count(ctx, "nudges", docstore.Query{
		Filters: []docstore.Filter{{Field: "active", Op: docstore.OpEqual, Value: true}},
	})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Errorf("count = %d, want 4", n)
	}

	n, err = s.Count(ctx, "nudges", docstore.Query{Limit: 2})
	if err != nil {
		t.Fatalf("Count with limit: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestApplyBatchIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustAdd(t, s, "nudges", map[string]any{"content": "keep", "active": true})

	err := s.ApplyBatch(ctx, "nudges", []docstore.Write{
		{Kind: docstore.WriteUpdate, ID: id, Data: map[string]any{"active": false}},
		{Kind: docstore.WriteUpdate, ID: "missing", Data: map[string]any{"active": false}},
	})
	if !docstore.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}

	doc, err := s.Get(ctx, "nudges", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Data["active"] != true {
		t.Error("failed batch must leave documents untouched")
	}
}

func TestApplyBatchSizeLimit(t *testing.T) {
	s := newTestStore(t)
	writes := make([]docstore.Write, docstore.MaxBatchSize+1)
	for i := range writes {
		writes[i] = docstore.Write{Kind: docstore.WriteCreate, Data: map[string]any{"n": i}}
	}
	err := s.ApplyBatch(context.Background(), "nudges", writes)
	var derr *docstore.Error
	if !errors.As(err, &derr) || derr.Code != docstore.CodeInvalidArgument {
		t.Fatalf("err = %v, want invalid-argument", err)
	}
}

func TestRunTransactionRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustAdd(t, s, "nudges", map[string]any{"ratingCount": int64(1)})

	boom := errors.New("boom")
	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		if err := tx.Update("nudges", id, map[string]any{"ratingCount": docstore.Increment(1)}); err != nil {
			return err
		}
		if err := tx.Set("nudge_feedback", "f1", map[string]any{"rating": 5}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	doc, err := s.Get(ctx, "nudges", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Data["ratingCount"] != int64(1) {
		t.Errorf("ratingCount = %v, want rollback to 1", doc.Data["ratingCount"])
	}
	if _, err := s.Get(ctx, "nudge_feedback", "f1"); !docstore.IsNotFound(err) {
		t.Errorf("feedback doc survived rollback: %v", err)
	}
}

func TestRunTransactionReadsOwnWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustAdd(t, s, "nudges", map[string]any{"ratingCount": int64(0)})

	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		if err := tx.Update("nudges", id, map[string]any{"ratingCount": docstore.Increment(1)}); err != nil {
			return err
		}
		doc, err := tx.Get("nudges", id)
		if err != nil {
			return err
		}
		if doc.Data["ratingCount"] != int64(1) {
			t.Errorf("in-tx ratingCount = %v, want 1", doc.Data["ratingCount"])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}
}

func TestConcurrentTransactionsSerialize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustAdd(t, s, "nudges", map[string]any{"ratingCount": int64(0)})

	const workers = 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.RunTransaction(ctx, func(tx docstore.Tx) error {
				doc, err := tx.Get("nudges", id)
				if err != nil {
					return err
				}
				n := doc.Data["ratingCount"].(int64)
				return tx.Update("nudges", id, map[string]any{"ratingCount": n + 1})
			})
		}()
	}
	wg.Wait()

	doc, err := s.Get(ctx, "nudges", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Data["ratingCount"] != int64(workers) {
		t.Errorf("ratingCount = %v, want %d", doc.Data["ratingCount"], workers)
	}
}

func TestWatchEmitsInitialAndUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mustAdd(t, s, "nudges", map[string]any{"content": "first", "active": true})

	ch, err := s.Watch(ctx, "nudges", docstore.Query{
		Filters: []docstore.Filter{{Field: "active", Op: docstore.OpEqual, Value: true}},
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	initial := recvDocs(t, ch)
	if len(initial) != 1 {
		t.Fatalf("initial emission has %d docs, want 1", len(initial))
	}

	mustAdd(t, s, "nudges", map[string]any{"content": "second", "active": true})

	next := recvDocs(t, ch)
	if len(next) != 2 {
		t.Fatalf("emission after add has %d docs, want 2", len(next))
	}
}

func TestWatchClosesOnCancel(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := s.Watch(ctx, "nudges", docstore.Query{})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	recvDocs(t, ch) // drain the initial emission
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel did not close after cancel")
		}
	}
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s := New()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err := s.Get(context.Background(), "nudges", "x")
	if !docstore.IsTransient(err) {
		t.Fatalf("err = %v, want a transient unavailable error", err)
	}
	var derr *docstore.Error
	if !errors.As(err, &derr) || derr.Code != docstore.CodeUnavailable {
		t.Fatalf("err = %v, want code unavailable", err)
	}
}

func recvDocs(t *testing.T, ch <-chan []docstore.Document) []docstore.Document {
	t.Helper()
	select {
	case docs, ok := <-ch:
		if !ok {
			t.Fatal("watch channel closed unexpectedly")
		}
		return docs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emission")
		return nil
	}
}

func first(docs []docstore.Document) any {
	if len(docs) == 0 {
		return nil
	}
	return docs[0].Data["content"]
}
