// Package docstore defines the remote document-store contract the nudge
// layer is written against: collections of string-keyed documents with
// filtered/ordered/paginated queries, atomic field updates, multi-document
// transactions, bounded batched writes, count aggregates, and live change
// subscriptions.
//
// Two implementations exist: memstore (embedded, mutex-guarded) and pgstore
// (Postgres JSONB). Every implementation reports failures as *Error values
// carrying a stable Code so callers can classify transient conditions
// without knowing which backend they talk to.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Code classifies a store failure. The set mirrors the error kinds a remote
// document database distinguishes; only CodeUnavailable and
// CodeDeadlineExceeded are retry-eligible.
type Code string

const (
	CodeUnavailable      Code = "unavailable"
	CodeDeadlineExceeded Code = "deadline-exceeded"
	CodeNotFound         Code = "not-found"
	CodeAborted          Code = "aborted"
	CodeInvalidArgument  Code = "invalid-argument"
	CodeInternal         Code = "internal"
)

// Error is the coded failure type returned by every Store implementation.
type Error struct {
	Code Code   // stable classification
	Op   string // originating operation, e.g. "memstore.Get"
	Err  error  // underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the Code from err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// IsTransient reports whether err is a retry-eligible remote-store
// condition: service unavailable or deadline exceeded. Any other failure —
// not-found, invalid argument, decode problems — must propagate without
// retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case CodeUnavailable, CodeDeadlineExceeded:
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsNotFound reports whether err means the addressed document does not
// exist.
func IsNotFound(err error) bool {
	return err != nil && CodeOf(err) == CodeNotFound
}

// Document is one stored record: an id plus its string-keyed data.
type Document struct {
	ID   string
	Data map[string]any
}

// Filter operators supported by Query.
const (
	OpEqual          = "=="
	OpLess           = "<"
	OpLessOrEqual    = "<="
	OpGreater        = ">"
	OpGreaterOrEqual = ">="
	OpArrayContains  = "array-contains"
)

// Filter constrains a query to documents whose Field relates to Value under
// Op. Multiple filters are conjunctive.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query describes a filtered, ordered, limited read over one collection.
// StartAfter is a cursor document: results resume strictly after its
// order-by value (document id breaks ties), matching start-after pagination
// semantics.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
	StartAfter *Document
}

// WriteKind discriminates batched write variants.
type WriteKind int

const (
	WriteCreate WriteKind = iota + 1 // store assigns a fresh id
	WriteUpdate                      // merge fields into an existing document
	WriteDelete                      // remove by id (idempotent)
)

// Write is one element of an atomic batch.
type Write struct {
	Kind WriteKind
	ID   string
	Data map[string]any
}

// MaxBatchSize is the hard upper bound on writes per physical batch. Every
// implementation rejects larger batches with CodeInvalidArgument.
const MaxBatchSize = 500

// ServerTimestamp is a sentinel value: a field set to it resolves to the
// store's current time at write application.
var ServerTimestamp = serverTimestampSentinel{}

type serverTimestampSentinel struct{}

// IncrementValue is the sentinel produced by Increment.
type IncrementValue struct{ Delta int64 }

// Increment returns a sentinel that atomically adds delta to the current
// numeric value of a field (treating a missing or non-numeric field as 0).
func Increment(delta int64) IncrementValue { return IncrementValue{Delta: delta} }

// Store is the document-store contract.
//
// Semantics:
//   - Get returns a CodeNotFound error (never a nil, nil pair) when the
//     document does not exist.
//   - Add assigns and returns a fresh document id.
//   - Set creates or fully replaces.
//   - Update merges the given fields into an existing document, resolving
//     ServerTimestamp/Increment sentinels atomically; it fails with
//     CodeNotFound when the document is absent.
//   - ApplyBatch applies at most MaxBatchSize writes as one atomic unit.
//   - Watch delivers the current query result immediately and again after
//     every relevant change; the channel closes when ctx is cancelled.
//     Slow consumers observe coalesced (latest-wins) emissions, never a
//     blocked store.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	Set(ctx context.Context, collection, id string, data map[string]any) error
	Update(ctx context.Context, collection, id string, updates map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Count(ctx context.Context, collection string, q Query) (int64, error)
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	ApplyBatch(ctx context.Context, collection string, writes []Write) error
	Watch(ctx context.Context, collection string, q Query) (<-chan []Document, error)
	Close() error
}

// Tx is the handle passed to RunTransaction callbacks. Reads observe a
// consistent view; writes become visible atomically iff the callback
// returns nil.
type Tx interface {
	Get(collection, id string) (*Document, error)
	Set(collection, id string, data map[string]any) error
	Update(collection, id string, updates map[string]any) error
}

// ApplyUpdates merges updates into existing (which may be nil), resolving
// write sentinels against now: ServerTimestamp becomes now in UTC and
// Increment adds its delta to the current numeric value. The result is a
// fresh map; neither input is mutated. Shared by every Store implementation
// so sentinel semantics cannot drift between backends.
func ApplyUpdates(existing, updates map[string]any, now time.Time) map[string]any {
	out := CopyData(existing)
	if out == nil {
		out = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		out[k] = resolveValue(out[k], v, now)
	}
	return out
}

// ResolveValues returns a copy of data with write sentinels resolved, for
// create/set paths where no prior value exists. An Increment in a fresh
// document resolves to its bare delta.
func ResolveValues(data map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = resolveValue(nil, v, now)
	}
	return out
}

func resolveValue(existing, v any, now time.Time) any {
	switch x := v.(type) {
	case serverTimestampSentinel:
		return now.UTC()
	case IncrementValue:
		cur, _ := toInt64(existing)
		return cur + x.Delta
	default:
		return copyValue(v)
	}
}

// CopyData deep-copies a document data map: nested maps and slices are
// duplicated, scalars shared. Returns nil for nil input.
func CopyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return CopyData(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	case []int:
		return append([]int(nil), x...)
	case []string:
		return append([]string(nil), x...)
	case []float64:
		return append([]float64(nil), x...)
	default:
		return v
	}
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}
