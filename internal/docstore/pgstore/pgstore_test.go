package pgstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ePaysa-ind/milo-sub005/internal/docstore"
)

func TestQuerySQLFiltersOrderAndLimit(t *testing.T) {
	q := docstore.Query{
		Filters: []docstore.Filter{
			{Field: "active", Op: docstore.OpEqual, Value: true},
			{Field: "scheduleDays", Op: docstore.OpArrayContains, Value: 3},
			{Field: "scheduleMinute", Op: docstore.OpLessOrEqual, Value: 540},
		},
		OrderBy:    "scheduleMinute",
		Descending: true,
		Limit:      20,
	}
	sqlText, args, err := querySQL("nudges", q, false)
	if err != nil {
		t.Fatalf("querySQL: %v", err)
	}

	want := `SELECT id, data, updated_at FROM documents WHERE collection = $1` +
		` AND data @> $2::jsonb` +
		` AND data->$3 @> $4::jsonb` +
		` AND (data->>$5)::numeric <= $6` +
		` ORDER BY data->$7 DESC, id DESC` +
		` LIMIT $8`
	if sqlText != want {
		t.Errorf("sql =\n%s\nwant\n%s", sqlText, want)
	}

	wantArgs := []any{"nudges", `{"active":true}`, "scheduleDays", `3`, "scheduleMinute", 540, "scheduleMinute", 20}
	if len(args) != len(wantArgs) {
		t.Fatalf("args = %v, want %v", args, wantArgs)
	}
	for i := range wantArgs {
		if args[i] != wantArgs[i] {
			t.Errorf("args[%d] = %v, want %v", i, args[i], wantArgs[i])
		}
	}
}

func TestQuerySQLCursor(t *testing.T) {
	created := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)
	q := docstore.Query{
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      10,
		StartAfter: &docstore.Document{
			ID:   "doc-7",
			Data: map[string]any{"createdAt": created},
		},
	}
	sqlText, args, err := querySQL("nudges", q, false)
	if err != nil {
		t.Fatalf("querySQL: %v", err)
	}

	if !strings.Contains(sqlText, "(data->$2, id) < ($3::jsonb, $4)") {
		t.Errorf("missing descending cursor predicate in %s", sqlText)
	}
	// The cursor timestamp must be encoded exactly like stored documents so
	// the jsonb comparison lines up.
	if args[2] != `"2026-02-10T08:30:00.000000000Z"` {
		t.Errorf("cursor arg = %v", args[2])
	}
	if args[3] != "doc-7" {
		t.Errorf("cursor id arg = %v", args[3])
	}
}

func TestQuerySQLCursorWithoutOrderValueIsIgnored(t *testing.T) {
	q := docstore.Query{
		OrderBy:    "createdAt",
		StartAfter: &docstore.Document{ID: "doc-1", Data: map[string]any{}},
	}
	sqlText, _, err := querySQL("nudges", q, false)
	if err != nil {
		t.Fatalf("querySQL: %v", err)
	}
	if strings.Contains(sqlText, "::jsonb, ") {
		t.Errorf("cursor predicate rendered without an anchor value: %s", sqlText)
	}
}

func TestQuerySQLCount(t *testing.T) {
	sqlText, _, err := querySQL("nudges", docstore.Query{Limit: 5}, true)
	if err != nil {
		t.Fatalf("querySQL: %v", err)
	}
	if !strings.HasPrefix(sqlText, "SELECT count(*) FROM (SELECT 1 FROM documents") {
		t.Errorf("count sql = %s", sqlText)
	}
	if !strings.Contains(sqlText, "LIMIT $2") {
		t.Errorf("count sql must keep the inner limit: %s", sqlText)
	}
}

func TestFilterPredicateRangeTypes(t *testing.T) {
	when := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		filter docstore.Filter
		want   string
	}{
		{"numeric", docstore.Filter{Field: "deliveryCount", Op: docstore.OpGreater, Value: int64(0)}, "(data->>$4)::numeric > $5"},
		{"time", docstore.Filter{Field: "createdAt", Op: docstore.OpLess, Value: when}, "(data->>$4)::timestamptz < $5"},
		{"string", docstore.Filter{Field: "userId", Op: docstore.OpGreaterOrEqual, Value: "u1"}, "data->>$4 >= $5"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clause, args, err := filterPredicate(tc.filter, 4)
			if err != nil {
				t.Fatalf("filterPredicate: %v", err)
			}
			if clause != tc.want {
				t.Errorf("clause = %s, want %s", clause, tc.want)
			}
			if len(args) != 2 || args[0] != tc.filter.Field {
				t.Errorf("args = %v", args)
			}
		})
	}
}

func TestFilterPredicateRejectsOddValues(t *testing.T) {
	_, _, err := filterPredicate(docstore.Filter{Field: "x", Op: docstore.OpLess, Value: struct{}{}}, 2)
	var derr *docstore.Error
	if !errors.As(err, &derr) || derr.Code != docstore.CodeInvalidArgument {
		t.Fatalf("err = %v, want invalid-argument", err)
	}
}

func TestNormalizeValueTimes(t *testing.T) {
	when := time.Date(2026, 5, 4, 12, 0, 0, 500, time.UTC)
	doc := map[string]any{
		"createdAt":    when,
		"lastActed":    &when,
		"scheduleDays": []any{1, 2},
		"nested":       map[string]any{"at": when},
		"content":      "x",
	}
	got, ok := normalizeValue(doc).(map[string]any)
	if !ok {
		t.Fatal("normalizeValue did not return a map")
	}
	const want = "2026-05-04T12:00:00.000000500Z"
	if got["createdAt"] != want {
		t.Errorf("createdAt = %v, want %s", got["createdAt"], want)
	}
	if got["lastActed"] != want {
		t.Errorf("lastActed = %v, want %s", got["lastActed"], want)
	}
	nested := got["nested"].(map[string]any)
	if nested["at"] != want {
		t.Errorf("nested.at = %v", nested["at"])
	}
	if got["content"] != "x" {
		t.Errorf("content changed: %v", got["content"])
	}

	// Fixed-width encoding keeps lexicographic order chronological even when
	// sub-second precision differs.
	early := normalizeValue(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)).(string)
	late := normalizeValue(time.Date(2026, 5, 4, 12, 0, 0, 500_000_000, time.UTC)).(string)
	if !(early < late) {
		t.Errorf("ordering broken: %q !< %q", early, late)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want docstore.Code
	}{
		{"no rows", sql.ErrNoRows, docstore.CodeNotFound},
		{"deadline", context.DeadlineExceeded, docstore.CodeDeadlineExceeded},
		{"bad conn", driver.ErrBadConn, docstore.CodeUnavailable},
		{"connection failure", &pgconn.PgError{Code: "08006"}, docstore.CodeUnavailable},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, docstore.CodeAborted},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, docstore.CodeDeadlineExceeded},
		{"anything else", errors.New("column does not exist"), docstore.CodeInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("pgstore.Test", tc.err)
			if got := docstore.CodeOf(err); got != tc.want {
				t.Errorf("code = %s, want %s", got, tc.want)
			}
			if !errors.Is(err, tc.err) {
				t.Error("classified error must wrap the cause")
			}
		})
	}
	if classify("pgstore.Test", nil) != nil {
		t.Error("nil must stay nil")
	}
}
