// Package domain defines the core entities of the nudge data layer: the
// Nudge reminder record, feedback entries, derived statistics, pagination
// results, and batch write descriptors. It also owns the document codec —
// the explicit serialize/deserialize boundary between these typed records
// and the string-keyed documents held by the remote store.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Document field names shared by the codec and by façade queries. Stored
// documents use these exact keys; changing one is a data migration.
const (
	FieldUserID         = "userId"
	FieldContent        = "content"
	FieldActive         = "active"
	FieldScheduleDays   = "scheduleDays"
	FieldScheduleMinute = "scheduleMinute"
	FieldLastDelivered  = "lastDelivered"
	FieldDeliveryCount  = "deliveryCount"
	FieldLastActed      = "lastActed"
	FieldActionCount    = "actionCount"
	FieldAverageRating  = "averageRating"
	FieldRatingCount    = "ratingCount"
	FieldCreatedAt      = "createdAt"
	FieldUpdatedAt      = "updatedAt"

	// Feedback document fields.
	FieldNudgeID = "nudgeId"
	FieldRating  = "rating"
	FieldComment = "comment"

	// Template document fields.
	FieldTitle         = "title"
	FieldCategory      = "category"
	FieldDefaultDays   = "defaultDays"
	FieldDefaultMinute = "defaultMinute"
)

// Validation sentinels. The façade wraps these into its ErrValidation kind;
// they are exported so tests and callers can branch on the precise rule.
var (
	ErrEmptyContent          = errors.New("nudge content must not be empty")
	ErrMissingID             = errors.New("nudge id must not be empty")
	ErrInvalidScheduleDay    = errors.New("schedule days must be weekday numbers in 1..7")
	ErrInvalidScheduleMinute = errors.New("schedule minute must be in 0..1439")
	ErrInvalidBatchOperation = errors.New("invalid batch operation")
)

// Nudge represents a scheduled reminder/prompt with delivery and engagement
// tracking. The store assigns ID and the createdAt/updatedAt timestamps;
// everything else is caller-owned.
//
// Fields:
//   - ID: store-assigned document id; empty until first persisted.
//   - UserID: owner; filled from the current identity at creation if unset.
//   - Content: the prompt text; required non-empty at creation.
//   - Active: whether the nudge participates in active-schedule queries.
//   - ScheduleDays: weekday numbers 1..7 (Monday=1 … Sunday=7).
//   - ScheduleMinute: minute of day 0..1439 at which the nudge fires.
//   - LastDeliveredAt / DeliveryCount: delivery tracking; the count is
//     monotonically non-decreasing.
//   - LastActedAt / ActionCount: engagement tracking; monotonic as above.
//   - AverageRating / RatingCount: running weighted mean maintained
//     transactionally with the count; both monotonic in count.
//   - CreatedAt / UpdatedAt: server-assigned timestamps.
type Nudge struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id,omitempty"`
	Content         string     `json:"content"`
	Active          bool       `json:"active"`
	ScheduleDays    []int      `json:"schedule_days,omitempty"`
	ScheduleMinute  int        `json:"schedule_minute"`
	LastDeliveredAt *time.Time `json:"last_delivered_at,omitempty"`
	DeliveryCount   int64      `json:"delivery_count"`
	LastActedAt     *time.Time `json:"last_acted_at,omitempty"`
	ActionCount     int64      `json:"action_count"`
	AverageRating   float64    `json:"average_rating"`
	RatingCount     int64      `json:"rating_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Validate applies the rules enforced when a nudge is first persisted:
// non-empty content, schedule days within 1..7, schedule minute within the
// day. Updates deliberately re-check only the id (see the façade contract).
func (n *Nudge) Validate() error {
	if n.Content == "" {
		return ErrEmptyContent
	}
	for _, d := range n.ScheduleDays {
		if d < 1 || d > 7 {
			return fmt.Errorf("%w: got %d", ErrInvalidScheduleDay, d)
		}
	}
	if n.ScheduleMinute < 0 || n.ScheduleMinute > 1439 {
		return fmt.Errorf("%w: got %d", ErrInvalidScheduleMinute, n.ScheduleMinute)
	}
	return nil
}

// Clone returns a deep copy. Cached nudges are always cloned on the way in
// and out of the cache so callers can never alias cache-owned memory.
func (n *Nudge) Clone() *Nudge {
	if n == nil {
		return nil
	}
	out := *n
	if n.ScheduleDays != nil {
		out.ScheduleDays = append([]int(nil), n.ScheduleDays...)
	}
	if n.LastDeliveredAt != nil {
		t := *n.LastDeliveredAt
		out.LastDeliveredAt = &t
	}
	if n.LastActedAt != nil {
		t := *n.LastActedAt
		out.LastActedAt = &t
	}
	return &out
}

// EncodeNudge serializes the caller-owned fields of a nudge into a document
// map. It never emits id, createdAt, or updatedAt — those are store-assigned
// and layered on by the façade (as server-timestamp sentinels on writes).
// Nil last-delivered/last-acted timestamps are omitted rather than written
// as nulls.
func EncodeNudge(n *Nudge) map[string]any {
	data := map[string]any{
		FieldContent:        n.Content,
		FieldActive:         n.Active,
		FieldScheduleDays:   append([]int(nil), n.ScheduleDays...),
		FieldScheduleMinute: n.ScheduleMinute,
		FieldDeliveryCount:  n.DeliveryCount,
		FieldActionCount:    n.ActionCount,
		FieldAverageRating:  n.AverageRating,
		FieldRatingCount:    n.RatingCount,
	}
	if n.UserID != "" {
		data[FieldUserID] = n.UserID
	}
	if n.LastDeliveredAt != nil {
		data[FieldLastDelivered] = n.LastDeliveredAt.UTC()
	}
	if n.LastActedAt != nil {
		data[FieldLastActed] = n.LastActedAt.UTC()
	}
	return data
}

// DecodeNudge rebuilds a Nudge from a stored document, validating as it
// goes: content must be present and non-empty, schedule days must be
// weekday numbers, and every field must carry a coercible type. Numeric
// fields tolerate int/int64/float64/json.Number (stores differ in how they
// round-trip numbers); time fields tolerate time.Time or RFC 3339 strings.
// The returned error names the offending field.
func DecodeNudge(id string, data map[string]any) (*Nudge, error) {
	if id == "" {
		return nil, errors.New("decode nudge: missing document id")
	}
	n := &Nudge{ID: id}

	content, ok := asString(data[FieldContent])
	if !ok || content == "" {
		return nil, decodeErr(id, FieldContent, data[FieldContent])
	}
	n.Content = content

	if v, present := data[FieldUserID]; present {
		s, ok := asString(v)
		if !ok {
			return nil, decodeErr(id, FieldUserID, v)
		}
		n.UserID = s
	}
	if v, present := data[FieldActive]; present {
		b, ok := asBool(v)
		if !ok {
			return nil, decodeErr(id, FieldActive, v)
		}
		n.Active = b
	}
	if v, present := data[FieldScheduleDays]; present && v != nil {
		days, ok := asIntSlice(v)
		if !ok {
			return nil, decodeErr(id, FieldScheduleDays, v)
		}
		for _, d := range days {
			if d < 1 || d > 7 {
				return nil, fmt.Errorf("decode nudge %q: field %q: %w", id, FieldScheduleDays, ErrInvalidScheduleDay)
			}
		}
		n.ScheduleDays = days
	}
	if v, present := data[FieldScheduleMinute]; present {
		m, ok := asInt64(v)
		if !ok || m < 0 || m > 1439 {
			return nil, decodeErr(id, FieldScheduleMinute, v)
		}
		n.ScheduleMinute = int(m)
	}

	var err error
	if n.DeliveryCount, err = optInt64(id, data, FieldDeliveryCount); err != nil {
		return nil, err
	}
	if n.ActionCount, err = optInt64(id, data, FieldActionCount); err != nil {
		return nil, err
	}
	if n.RatingCount, err = optInt64(id, data, FieldRatingCount); err != nil {
		return nil, err
	}
	if v, present := data[FieldAverageRating]; present {
		f, ok := asFloat(v)
		if !ok {
			return nil, decodeErr(id, FieldAverageRating, v)
		}
		n.AverageRating = f
	}
	if n.LastDeliveredAt, err = optTime(id, data, FieldLastDelivered); err != nil {
		return nil, err
	}
	if n.LastActedAt, err = optTime(id, data, FieldLastActed); err != nil {
		return nil, err
	}
	if t, err := optTime(id, data, FieldCreatedAt); err != nil {
		return nil, err
	} else if t != nil {
		n.CreatedAt = *t
	}
	if t, err := optTime(id, data, FieldUpdatedAt); err != nil {
		return nil, err
	} else if t != nil {
		n.UpdatedAt = *t
	}
	return n, nil
}

// Feedback is a single rating left on a nudge. It is written inside the
// same transaction that recomputes the nudge's running average; nothing in
// this layer reads feedback back, so only the encode direction exists.
type Feedback struct {
	ID        string    `json:"id"`
	NudgeID   string    `json:"nudge_id"`
	UserID    string    `json:"user_id"`
	Rating    float64   `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EncodeFeedback serializes a feedback record into a document map. As with
// EncodeNudge, createdAt is layered on by the façade as a server-timestamp
// sentinel.
func EncodeFeedback(f *Feedback) map[string]any {
	data := map[string]any{
		FieldNudgeID: f.NudgeID,
		FieldRating:  f.Rating,
	}
	if f.UserID != "" {
		data[FieldUserID] = f.UserID
	}
	if f.Comment != "" {
		data[FieldComment] = f.Comment
	}
	return data
}

// NudgeTemplate is a rarely-changing starter nudge offered to users. Title
// may be absent in the stored document, in which case the façade derives a
// display title from the content.
type NudgeTemplate struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	Category      string `json:"category,omitempty"`
	DefaultDays   []int  `json:"default_days,omitempty"`
	DefaultMinute int    `json:"default_minute"`
}

// DecodeNudgeTemplate rebuilds a template from a stored document. Content
// is required; everything else is optional.
func DecodeNudgeTemplate(id string, data map[string]any) (*NudgeTemplate, error) {
	if id == "" {
		return nil, errors.New("decode template: missing document id")
	}
	content, ok := asString(data[FieldContent])
	if !ok || content == "" {
		return nil, decodeErr(id, FieldContent, data[FieldContent])
	}
	t := &NudgeTemplate{ID: id, Content: content}

	if v, present := data[FieldTitle]; present {
		s, ok := asString(v)
		if !ok {
			return nil, decodeErr(id, FieldTitle, v)
		}
		t.Title = s
	}
	if v, present := data[FieldCategory]; present {
		s, ok := asString(v)
		if !ok {
			return nil, decodeErr(id, FieldCategory, v)
		}
		t.Category = s
	}
	if v, present := data[FieldDefaultDays]; present && v != nil {
		days, ok := asIntSlice(v)
		if !ok {
			return nil, decodeErr(id, FieldDefaultDays, v)
		}
		t.DefaultDays = days
	}
	if v, present := data[FieldDefaultMinute]; present {
		m, ok := asInt64(v)
		if !ok {
			return nil, decodeErr(id, FieldDefaultMinute, v)
		}
		t.DefaultMinute = int(m)
	}
	return t, nil
}

// NudgeStats aggregates engagement over the most-recent nudges (a capped
// scan, not a full-collection aggregate). Err carries the failure when the
// stats are a best-effort zero-valued fallback; it is never serialized.
type NudgeStats struct {
	Total         int       `json:"total"`
	Active        int       `json:"active"`
	Delivered     int       `json:"delivered"`
	ActedUpon     int       `json:"acted_upon"`
	AverageRating float64   `json:"average_rating"`
	GeneratedAt   time.Time `json:"generated_at"`
	Err           error     `json:"-"`
}

// NudgePage is one page of an ordered nudge listing. LastID is the opaque
// cursor to pass as startAfter on the next call. HasMore is the documented
// len(items) >= limit approximation, not a server-confirmed flag.
type NudgePage struct {
	Items   []Nudge `json:"items"`
	HasMore bool    `json:"has_more"`
	LastID  string  `json:"last_id,omitempty"`
}

// BatchKind discriminates the three batch write variants.
type BatchKind int

const (
	BatchCreate BatchKind = iota + 1
	BatchUpdate
	BatchDelete
)

// String returns the lowercase name of the kind.
func (k BatchKind) String() string {
	switch k {
	case BatchCreate:
		return "create"
	case BatchUpdate:
		return "update"
	case BatchDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// BatchOperation is one element of a bulk write: a tagged
// create/update/delete. Use the NewBatch* constructors.
type BatchOperation struct {
	Kind  BatchKind
	ID    string
	Nudge *Nudge
}

// NewBatchCreate describes the creation of a new nudge within a batch.
func NewBatchCreate(n *Nudge) BatchOperation {
	return BatchOperation{Kind: BatchCreate, Nudge: n}
}

// NewBatchUpdate describes a full-document update of an existing nudge.
func NewBatchUpdate(id string, n *Nudge) BatchOperation {
	return BatchOperation{Kind: BatchUpdate, ID: id, Nudge: n}
}

// NewBatchDelete describes the deletion of a nudge by id.
func NewBatchDelete(id string) BatchOperation {
	return BatchOperation{Kind: BatchDelete, ID: id}
}

// Validate checks structural soundness: creates and updates carry a payload,
// updates and deletes carry an id.
func (op BatchOperation) Validate() error {
	switch op.Kind {
	case BatchCreate:
		if op.Nudge == nil {
			return fmt.Errorf("%w: create without payload", ErrInvalidBatchOperation)
		}
	case BatchUpdate:
		if op.ID == "" {
			return fmt.Errorf("%w: update without id", ErrInvalidBatchOperation)
		}
		if op.Nudge == nil {
			return fmt.Errorf("%w: update without payload", ErrInvalidBatchOperation)
		}
	case BatchDelete:
		if op.ID == "" {
			return fmt.Errorf("%w: delete without id", ErrInvalidBatchOperation)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidBatchOperation, int(op.Kind))
	}
	return nil
}

// --- codec coercion helpers ---
//
// Stored documents come back with driver-dependent scalar types: the
// in-memory store round-trips Go values as written, while a JSON-backed
// store hands back float64 and strings. The helpers below accept every
// representation a supported backend produces.

func decodeErr(id, field string, v any) error {
	return fmt.Errorf("decode document %q: field %q has unusable value %v (%T)", id, field, v, v)
}

func optInt64(id string, data map[string]any, field string) (int64, error) {
	v, present := data[field]
	if !present || v == nil {
		return 0, nil
	}
	n, ok := asInt64(v)
	if !ok {
		return 0, decodeErr(id, field, v)
	}
	return n, nil
}

func optTime(id string, data map[string]any, field string) (*time.Time, error) {
	v, present := data[field]
	if !present || v == nil {
		return nil, nil
	}
	t, ok := asTime(v)
	if !ok {
		return nil, decodeErr(id, field, v)
	}
	return &t, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		return int64(x), true
	case float32:
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			f, ferr := x.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, x); err == nil {
			return t, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func asIntSlice(v any) ([]int, bool) {
	switch xs := v.(type) {
	case []int:
		return append([]int(nil), xs...), true
	case []int64:
		out := make([]int, len(xs))
		for i, x := range xs {
			out[i] = int(x)
		}
		return out, true
	case []float64:
		out := make([]int, len(xs))
		for i, x := range xs {
			out[i] = int(x)
		}
		return out, true
	case []any:
		out := make([]int, len(xs))
		for i, x := range xs {
			n, ok := asInt64(x)
			if !ok {
				return nil, false
			}
			out[i] = int(n)
		}
		return out, true
	default:
		return nil, false
	}
}
