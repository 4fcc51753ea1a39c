// Package memstore provides an embedded, in-memory docstore.Store. It backs
// local development and tests, and is the default store when no external
// database is configured.
//
// Concurrency: one RWMutex guards the document maps; transactions hold the
// write lock end to end, so concurrent transactions serialize. Watchers are
// notified synchronously after each mutation through per-subscriber
// latest-wins channels, so a slow consumer can never block a write.
//
// Query semantics follow the remote-store conventions the rest of the code
// assumes: filters are conjunctive, documents missing the order-by field are
// excluded from ordered queries, and start-after cursors resume strictly
// after the cursor's order-by value with the document id as tiebreak.
package memstore

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ePaysa-ind/milo-sub005/internal/docstore"
)

var errClosed = errors.New("memstore closed")

var (
	_ docstore.Store = (*Store)(nil)
	_ docstore.Tx    = (*memTx)(nil)
)

// Store is the in-memory document store. The zero value is not usable; call
// New.
type Store struct {
	// Now is the clock used to resolve server timestamps. Defaults to
	// time.Now; replace only before first use.
	Now func() time.Time

	mu     sync.RWMutex
	data   map[string]map[string]map[string]any // collection → id → document
	closed bool

	wmu      sync.Mutex
	watchers map[int]*watcher
	nextWID  int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		Now:      time.Now,
		data:     make(map[string]map[string]map[string]any),
		watchers: make(map[int]*watcher),
	}
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if err := s.readable(ctx, "memstore.Get"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, &docstore.Error{Code: docstore.CodeNotFound, Op: "memstore.Get"}
	}
	return &docstore.Document{ID: id, Data: docstore.CopyData(doc)}, nil
}

// Add implements docstore.Store: it assigns a fresh id, resolves write
// sentinels, and stores the document.
func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := s.writable(ctx, "memstore.Add"); err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.ensureCollection(collection)[id] = docstore.ResolveValues(data, s.Now())
	s.mu.Unlock()
	s.notify(collection)
	return id, nil
}

// Set implements docstore.Store (create-or-replace).
func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := s.writable(ctx, "memstore.Set"); err != nil {
		return err
	}
	s.mu.Lock()
	s.ensureCollection(collection)[id] = docstore.ResolveValues(data, s.Now())
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

// Update implements docstore.Store: merge into an existing document,
// resolving sentinels; CodeNotFound when the document is absent.
func (s *Store) Update(ctx context.Context, collection, id string, updates map[string]any) error {
	if err := s.writable(ctx, "memstore.Update"); err != nil {
		return err
	}
	s.mu.Lock()
	existing, ok := s.data[collection][id]
	if !ok {
		s.mu.Unlock()
		return &docstore.Error{Code: docstore.CodeNotFound, Op: "memstore.Update"}
	}
	s.data[collection][id] = docstore.ApplyUpdates(existing, updates, s.Now())
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

// Delete implements docstore.Store. Deleting an absent document is a no-op,
// matching remote-store delete semantics.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.writable(ctx, "memstore.Delete"); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.data[collection], id)
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := s.readable(ctx, "memstore.Query"); err != nil {
		return nil, err
	}
	return s.runQuery(collection, q), nil
}

// Count implements docstore.Store: the number of documents the identical
// Query would return (limit included when set).
func (s *Store) Count(ctx context.Context, collection string, q docstore.Query) (int64, error) {
	if err := s.readable(ctx, "memstore.Count"); err != nil {
		return 0, err
	}
	return int64(len(s.runQuery(collection, q))), nil
}

// ApplyBatch implements docstore.Store. The batch is atomic: updates are
// validated against existing documents before anything is applied, so a
// failing write leaves the store untouched.
func (s *Store) ApplyBatch(ctx context.Context, collection string, writes []docstore.Write) error {
	if err := s.writable(ctx, "memstore.ApplyBatch"); err != nil {
		return err
	}
	if len(writes) > docstore.MaxBatchSize {
		return &docstore.Error{
			Code: docstore.CodeInvalidArgument,
			Op:   "memstore.ApplyBatch",
			Err:  errors.New("batch exceeds max size"),
		}
	}
	now := s.Now()
	s.mu.Lock()
	docs := s.ensureCollection(collection)
	for _, w := range writes {
		if w.Kind == docstore.WriteUpdate {
			if _, ok := docs[w.ID]; !ok {
				s.mu.Unlock()
				return &docstore.Error{Code: docstore.CodeNotFound, Op: "memstore.ApplyBatch"}
			}
		}
	}
	for _, w := range writes {
		switch w.Kind {
		case docstore.WriteCreate:
			docs[uuid.NewString()] = docstore.ResolveValues(w.Data, now)
		case docstore.WriteUpdate:
			docs[w.ID] = docstore.ApplyUpdates(docs[w.ID], w.Data, now)
		case docstore.WriteDelete:
			delete(docs, w.ID)
		default:
			s.mu.Unlock()
			return &docstore.Error{
				Code: docstore.CodeInvalidArgument,
				Op:   "memstore.ApplyBatch",
				Err:  errors.New("unknown write kind"),
			}
		}
	}
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

// RunTransaction implements docstore.Store. The callback runs under the
// store's write lock against the live maps; on error the pre-transaction
// state is restored wholesale, so partial effects can never leak.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	if err := s.writable(ctx, "memstore.RunTransaction"); err != nil {
		return err
	}
	s.mu.Lock()
	backup := s.snapshotLocked()
	touched := make(map[string]struct{})
	err := fn(&memTx{store: s, touched: touched})
	if err != nil {
		s.data = backup
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	for collection := range touched {
		s.notify(collection)
	}
	return nil
}

// Watch implements docstore.Store. The current result is delivered
// immediately; afterwards every mutation of the collection triggers a fresh
// evaluation. Emissions coalesce (latest wins) and the channel closes when
// ctx is cancelled.
func (s *Store) Watch(ctx context.Context, collection string, q docstore.Query) (<-chan []docstore.Document, error) {
	if err := s.readable(ctx, "memstore.Watch"); err != nil {
		return nil, err
	}
	w := &watcher{
		collection: collection,
		query:      q,
		ch:         make(chan []docstore.Document, 1),
	}
	s.wmu.Lock()
	id := s.nextWID
	s.nextWID++
	s.watchers[id] = w
	s.wmu.Unlock()

	w.send(s.runQuery(collection, q))

	go func() {
		<-ctx.Done()
		s.wmu.Lock()
		delete(s.watchers, id)
		s.wmu.Unlock()
		w.shutdown()
	}()
	return w.ch, nil
}

// Close implements docstore.Store: further operations fail with
// CodeUnavailable and all watcher channels close.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.wmu.Lock()
	for id, w := range s.watchers {
		delete(s.watchers, id)
		w.shutdown()
	}
	s.wmu.Unlock()
	return nil
}

// --- internals ---

func (s *Store) readable(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return &docstore.Error{Code: docstore.CodeDeadlineExceeded, Op: op, Err: err}
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return &docstore.Error{Code: docstore.CodeUnavailable, Op: op, Err: errClosed}
	}
	return nil
}

func (s *Store) writable(ctx context.Context, op string) error {
	return s.readable(ctx, op)
}

// ensureCollection must be called with the write lock held.
func (s *Store) ensureCollection(collection string) map[string]map[string]any {
	docs, ok := s.data[collection]
	if !ok {
		docs = make(map[string]map[string]any)
		s.data[collection] = docs
	}
	return docs
}

// snapshotLocked deep-copies every collection; write lock must be held.
func (s *Store) snapshotLocked() map[string]map[string]map[string]any {
	out := make(map[string]map[string]map[string]any, len(s.data))
	for col, docs := range s.data {
		cp := make(map[string]map[string]any, len(docs))
		for id, doc := range docs {
			cp[id] = docstore.CopyData(doc)
		}
		out[col] = cp
	}
	return out
}

func (s *Store) runQuery(collection string, q docstore.Query) []docstore.Document {
	s.mu.RLock()
	matched := make([]docstore.Document, 0)
	for id, doc := range s.data[collection] {
		if !matchesAll(doc, q.Filters) {
			continue
		}
		if q.OrderBy != "" {
			if _, present := doc[q.OrderBy]; !present {
				continue
			}
		}
		matched = append(matched, docstore.Document{ID: id, Data: docstore.CopyData(doc)})
	}
	s.mu.RUnlock()

	if q.OrderBy != "" {
		sortDocs(matched, q.OrderBy, q.Descending)
	} else {
		sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	}
	if q.StartAfter != nil {
		matched = trimToCursor(matched, q)
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched
}

func (s *Store) notify(collection string) {
	s.wmu.Lock()
	targets := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		if w.collection == collection {
			targets = append(targets, w)
		}
	}
	s.wmu.Unlock()
	for _, w := range targets {
		w.send(s.runQuery(collection, w.query))
	}
}

type watcher struct {
	collection string
	query      docstore.Query

	mu     sync.Mutex
	closed bool
	ch     chan []docstore.Document
}

// send delivers docs without ever blocking: a pending undelivered emission
// is replaced by the newer one.
func (w *watcher) send(docs []docstore.Document) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.ch <- docs:
		return
	default:
	}
	select {
	case <-w.ch:
	default:
	}
	select {
	case w.ch <- docs:
	default:
	}
}

func (w *watcher) shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}

// memTx operates on the live maps; RunTransaction already holds the write
// lock and restores a snapshot on error.
type memTx struct {
	store   *Store
	touched map[string]struct{}
}

func (t *memTx) Get(collection, id string) (*docstore.Document, error) {
	doc, ok := t.store.data[collection][id]
	if !ok {
		return nil, &docstore.Error{Code: docstore.CodeNotFound, Op: "memstore.Tx.Get"}
	}
	return &docstore.Document{ID: id, Data: docstore.CopyData(doc)}, nil
}

func (t *memTx) Set(collection, id string, data map[string]any) error {
	t.store.ensureCollection(collection)[id] = docstore.ResolveValues(data, t.store.Now())
	t.touched[collection] = struct{}{}
	return nil
}

func (t *memTx) Update(collection, id string, updates map[string]any) error {
	existing, ok := t.store.data[collection][id]
	if !ok {
		return &docstore.Error{Code: docstore.CodeNotFound, Op: "memstore.Tx.Update"}
	}
	t.store.data[collection][id] = docstore.ApplyUpdates(existing, updates, t.store.Now())
	t.touched[collection] = struct{}{}
	return nil
}

// --- query evaluation ---

func matchesAll(doc map[string]any, filters []docstore.Filter) bool {
	for _, f := range filters {
		if !matches(doc, f) {
			return false
		}
	}
	return true
}

func matches(doc map[string]any, f docstore.Filter) bool {
	v, present := doc[f.Field]
	switch f.Op {
	case docstore.OpEqual:
		return present && equalValues(v, f.Value)
	case docstore.OpArrayContains:
		if !present {
			return false
		}
		return sliceContains(v, f.Value)
	case docstore.OpLess, docstore.OpLessOrEqual, docstore.OpGreater, docstore.OpGreaterOrEqual:
		if !present {
			return false
		}
		c, ok := compareValues(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case docstore.OpLess:
			return c < 0
		case docstore.OpLessOrEqual:
			return c <= 0
		case docstore.OpGreater:
			return c > 0
		default:
			return c >= 0
		}
	default:
		return false
	}
}

func sliceContains(v, target any) bool {
	switch xs := v.(type) {
	case []int:
		for _, x := range xs {
			if equalValues(x, target) {
				return true
			}
		}
	case []string:
		for _, x := range xs {
			if equalValues(x, target) {
				return true
			}
		}
	case []float64:
		for _, x := range xs {
			if equalValues(x, target) {
				return true
			}
		}
	case []any:
		for _, x := range xs {
			if equalValues(x, target) {
				return true
			}
		}
	}
	return false
}

func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	if at, aok := toTime(a); aok {
		bt, bok := toTime(b)
		return bok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values of compatible types: -1, 0, or 1. The
// second return is false when the values cannot be ordered.
func compareValues(a, b any) (int, bool) {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if at, aok := toTime(a); aok {
		bt, bok := toTime(b)
		if !bok {
			return 0, false
		}
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		default:
			return 0, true
		}
	}
	if as, aok := a.(string); aok {
		bs, bok := b.(string)
		if !bok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, true
	default:
		return time.Time{}, false
	}
}

func sortDocs(docs []docstore.Document, orderBy string, descending bool) {
	sort.SliceStable(docs, func(i, j int) bool {
		c, ok := compareValues(docs[i].Data[orderBy], docs[j].Data[orderBy])
		if !ok || c == 0 {
			if descending {
				return docs[i].ID > docs[j].ID
			}
			return docs[i].ID < docs[j].ID
		}
		if descending {
			return c > 0
		}
		return c < 0
	})
}

// trimToCursor drops every document at or before the cursor position in the
// sorted order (cursor value first, document id as tiebreak).
func trimToCursor(docs []docstore.Document, q docstore.Query) []docstore.Document {
	cursorVal, hasVal := q.StartAfter.Data[q.OrderBy]
	if q.OrderBy == "" || !hasVal {
		// Without an order-by value the only anchor is the id itself.
		for i, d := range docs {
			if d.ID == q.StartAfter.ID {
				return docs[i+1:]
			}
		}
		return docs
	}
	out := docs[:0]
	for _, d := range docs {
		if afterCursor(d, cursorVal, q.StartAfter.ID, q.OrderBy, q.Descending) {
			out = append(out, d)
		}
	}
	return out
}

func afterCursor(d docstore.Document, cursorVal any, cursorID, orderBy string, descending bool) bool {
	c, ok := compareValues(d.Data[orderBy], cursorVal)
	if !ok {
		return false
	}
	if c == 0 {
		if descending {
			return d.ID < cursorID
		}
		return d.ID > cursorID
	}
	if descending {
		return c < 0
	}
	return c > 0
}
