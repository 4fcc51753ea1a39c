// Package pgstore implements docstore.Store on PostgreSQL. Documents live in
// a single jsonb-backed table keyed by (collection, id), which keeps the
// schema-less document model intact while giving writes real transactions
// and queries a GIN index to lean on.
//
// Values are normalized before storage: timestamps are stored as fixed-width
// UTC RFC 3339 strings so that the jsonb ordering used by ORDER BY and
// cursor predicates matches chronological order. Change feeds are polled;
// PostgreSQL has no per-query server push, so Watch re-runs its query on an
// interval and emits only when the result set changes.
package pgstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/ePaysa-ind/milo-sub005/internal/docstore"
)

// timeLayout is RFC 3339 with fixed-width nanoseconds. Fixed width keeps
// lexicographic jsonb string comparison identical to chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// watchPollInterval is how often Watch re-evaluates its query.
const watchPollInterval = 2 * time.Second

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT        NOT NULL,
    id         TEXT        NOT NULL,
    data       JSONB       NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING gin (data);
`

var (
	_ docstore.Store = (*Store)(nil)
	_ docstore.Tx    = (*pgTx)(nil)
)

// Store is a PostgreSQL-backed document store.
type Store struct {
	// Log receives watch-poll failures and other background noise. Defaults
	// to a no-op logger.
	Log zerolog.Logger

	db *sqlx.DB
}

// Open connects to PostgreSQL, verifies the connection, and ensures the
// documents table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, classify("pgstore.Open", err)
	}
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(100)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, classify("pgstore.Open", err)
	}
	return &Store{Log: zerolog.Nop(), db: db}, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	var raw []byte
	err := sqlx.GetContext(ctx, s.db, &raw,
		"SELECT data FROM documents WHERE collection = $1 AND id = $2", collection, id)
	if err != nil {
		return nil, classify("pgstore.Get", err)
	}
	data, err := decodeRow(raw)
	if err != nil {
		return nil, &docstore.Error{Code: docstore.CodeInternal, Op: "pgstore.Get", Err: err}
	}
	return &docstore.Document{ID: id, Data: data}, nil
}

// Add implements docstore.Store.
func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	raw, err := encodeDoc(docstore.ResolveValues(data, time.Now()))
	if err != nil {
		return "", &docstore.Error{Code: docstore.CodeInvalidArgument, Op: "pgstore.Add", Err: err}
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)", collection, id, raw)
	if err != nil {
		return "", classify("pgstore.Add", err)
	}
	return id, nil
}

// Set implements docstore.Store (create-or-replace).
func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	raw, err := encodeDoc(docstore.ResolveValues(data, time.Now()))
	if err != nil {
		return &docstore.Error{Code: docstore.CodeInvalidArgument, Op: "pgstore.Set", Err: err}
	}
	_, err = s.db.ExecContext(ctx, upsertSQL, collection, id, raw)
	if err != nil {
		return classify("pgstore.Set", err)
	}
	return nil
}

const upsertSQL = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

// Update implements docstore.Store. The read-modify-write runs in a
// transaction with the row locked so concurrent increments cannot clobber
// each other.
func (s *Store) Update(ctx context.Context, collection, id string, updates map[string]any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("pgstore.Update", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	if err := applyUpdate(ctx, tx, collection, id, updates, "pgstore.Update"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("pgstore.Update", err)
	}
	return nil
}

// Delete implements docstore.Store; deleting an absent document succeeds.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = $1 AND id = $2", collection, id)
	if err != nil {
		return classify("pgstore.Delete", err)
	}
	return nil
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	docs, _, err := s.runQuery(ctx, collection, q)
	return docs, err
}

// Count implements docstore.Store.
func (s *Store) Count(ctx context.Context, collection string, q docstore.Query) (int64, error) {
	query, args, err := querySQL(collection, q, true)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := sqlx.GetContext(ctx, s.db, &n, query, args...); err != nil {
		return 0, classify("pgstore.Count", err)
	}
	return n, nil
}

// RunTransaction implements docstore.Store. Callback errors come back
// unchanged; only begin and commit failures are classified.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("pgstore.RunTransaction", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("pgstore.RunTransaction", err)
	}
	return nil
}

// ApplyBatch implements docstore.Store: all writes in one transaction.
func (s *Store) ApplyBatch(ctx context.Context, collection string, writes []docstore.Write) error {
	if len(writes) > docstore.MaxBatchSize {
		return &docstore.Error{
			Code: docstore.CodeInvalidArgument,
			Op:   "pgstore.ApplyBatch",
			Err:  errors.New("batch exceeds max size"),
		}
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("pgstore.ApplyBatch", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit
	for _, w := range writes {
		switch w.Kind {
		case docstore.WriteCreate:
			raw, err := encodeDoc(docstore.ResolveValues(w.Data, time.Now()))
			if err != nil {
				return &docstore.Error{Code: docstore.CodeInvalidArgument, Op: "pgstore.ApplyBatch", Err: err}
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)",
				collection, uuid.NewString(), raw); err != nil {
				return classify("pgstore.ApplyBatch", err)
			}
		case docstore.WriteUpdate:
			if err := applyUpdate(ctx, tx, collection, w.ID, w.Data, "pgstore.ApplyBatch"); err != nil {
				return err
			}
		case docstore.WriteDelete:
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM documents WHERE collection = $1 AND id = $2", collection, w.ID); err != nil {
				return classify("pgstore.ApplyBatch", err)
			}
		default:
			return &docstore.Error{
				Code: docstore.CodeInvalidArgument,
				Op:   "pgstore.ApplyBatch",
				Err:  errors.New("unknown write kind"),
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return classify("pgstore.ApplyBatch", err)
	}
	return nil
}

// Watch implements docstore.Store by polling: the query runs immediately,
// then on an interval, and a new result set is emitted only when it differs
// from the previous one. The channel closes when ctx is cancelled.
func (s *Store) Watch(ctx context.Context, collection string, q docstore.Query) (<-chan []docstore.Document, error) {
	docs, fp, err := s.runQuery(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	ch := make(chan []docstore.Document, 1)
	ch <- docs

	go func() {
		defer close(ch)
		last := fp
		ticker := time.NewTicker(watchPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			docs, fp, err := s.runQuery(ctx, collection, q)
			if err != nil {
				s.Log.Debug().Err(err).Str("collection", collection).Msg("watch poll failed")
				continue
			}
			if fp == last {
				continue
			}
			last = fp
			sendLatest(ch, docs)
		}
	}()
	return ch, nil
}

// Close implements docstore.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- transaction ---

type pgTx struct {
	ctx context.Context
	tx  *sqlx.Tx
}

// Get reads a document and locks its row for the rest of the transaction.
func (t *pgTx) Get(collection, id string) (*docstore.Document, error) {
	data, err := getForUpdate(t.ctx, t.tx, collection, id, "pgstore.Tx.Get")
	if err != nil {
		return nil, err
	}
	return &docstore.Document{ID: id, Data: data}, nil
}

func (t *pgTx) Set(collection, id string, data map[string]any) error {
	raw, err := encodeDoc(docstore.ResolveValues(data, time.Now()))
	if err != nil {
		return &docstore.Error{Code: docstore.CodeInvalidArgument, Op: "pgstore.Tx.Set", Err: err}
	}
	if _, err := t.tx.ExecContext(t.ctx, upsertSQL, collection, id, raw); err != nil {
		return classify("pgstore.Tx.Set", err)
	}
	return nil
}

func (t *pgTx) Update(collection, id string, updates map[string]any) error {
	return applyUpdate(t.ctx, t.tx, collection, id, updates, "pgstore.Tx.Update")
}

// --- helpers ---

func getForUpdate(ctx context.Context, q sqlx.ExtContext, collection, id, op string) (map[string]any, error) {
	var raw []byte
	err := sqlx.GetContext(ctx, q, &raw,
		"SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE", collection, id)
	if err != nil {
		return nil, classify(op, err)
	}
	data, err := decodeRow(raw)
	if err != nil {
		return nil, &docstore.Error{Code: docstore.CodeInternal, Op: op, Err: err}
	}
	return data, nil
}

func applyUpdate(ctx context.Context, q sqlx.ExtContext, collection, id string, updates map[string]any, op string) error {
	existing, err := getForUpdate(ctx, q, collection, id, op)
	if err != nil {
		return err
	}
	merged := docstore.ApplyUpdates(existing, updates, time.Now())
	raw, err := encodeDoc(merged)
	if err != nil {
		return &docstore.Error{Code: docstore.CodeInvalidArgument, Op: op, Err: err}
	}
	if _, err := q.ExecContext(ctx,
		"UPDATE documents SET data = $3, updated_at = now() WHERE collection = $1 AND id = $2",
		collection, id, raw); err != nil {
		return classify(op, err)
	}
	return nil
}

type docRow struct {
	ID        string    `db:"id"`
	Data      []byte    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

// runQuery executes the query and returns the documents plus a fingerprint
// of the result set used by Watch to detect change.
func (s *Store) runQuery(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, string, error) {
	query, args, err := querySQL(collection, q, false)
	if err != nil {
		return nil, "", err
	}
	var rows []docRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, "", classify("pgstore.Query", err)
	}
	docs := make([]docstore.Document, 0, len(rows))
	var fp strings.Builder
	for _, r := range rows {
		data, err := decodeRow(r.Data)
		if err != nil {
			return nil, "", &docstore.Error{Code: docstore.CodeInternal, Op: "pgstore.Query", Err: err}
		}
		docs = append(docs, docstore.Document{ID: r.ID, Data: data})
		fmt.Fprintf(&fp, "%s@%d;", r.ID, r.UpdatedAt.UnixNano())
	}
	return docs, fp.String(), nil
}

// querySQL renders a docstore.Query as parameterized SQL. Ordering and
// cursor predicates compare the raw jsonb values, which sorts numbers
// numerically and normalized timestamps chronologically.
func querySQL(collection string, q docstore.Query, forCount bool) (string, []any, error) {
	var b strings.Builder
	args := []any{collection}

	selectList := "id, data, updated_at"
	if forCount {
		selectList = "1"
	}
	fmt.Fprintf(&b, "SELECT %s FROM documents WHERE collection = $1", selectList)

	for _, f := range q.Filters {
		clause, fargs, err := filterPredicate(f, len(args)+1)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" AND ")
		b.WriteString(clause)
		args = append(args, fargs...)
	}

	if q.StartAfter != nil && q.OrderBy != "" {
		if cursorVal, ok := q.StartAfter.Data[q.OrderBy]; ok {
			cmp := ">"
			if q.Descending {
				cmp = "<"
			}
			encoded, err := jsonArg(cursorVal)
			if err != nil {
				return "", nil, &docstore.Error{Code: docstore.CodeInvalidArgument, Op: "pgstore.Query", Err: err}
			}
			fmt.Fprintf(&b, " AND (data->$%d, id) %s ($%d::jsonb, $%d)", len(args)+1, cmp, len(args)+2, len(args)+3)
			args = append(args, q.OrderBy, encoded, q.StartAfter.ID)
		}
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY data->$%d %s, id %s", len(args)+1, dir, dir)
		args = append(args, q.OrderBy)
	} else {
		b.WriteString(" ORDER BY id ASC")
	}

	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT $%d", len(args)+1)
		args = append(args, q.Limit)
	}

	sqlText := b.String()
	if forCount {
		sqlText = "SELECT count(*) FROM (" + sqlText + ") AS sub"
	}
	return sqlText, args, nil
}

var rangeOps = map[string]string{
	docstore.OpLess:           "<",
	docstore.OpLessOrEqual:    "<=",
	docstore.OpGreater:        ">",
	docstore.OpGreaterOrEqual: ">=",
}

// filterPredicate renders one filter. idx is the 1-based position of the
// first placeholder the clause may use.
func filterPredicate(f docstore.Filter, idx int) (string, []any, error) {
	switch f.Op {
	case docstore.OpEqual:
		encoded, err := jsonArg(map[string]any{f.Field: f.Value})
		if err != nil {
			return "", nil, &docstore.Error{Code: docstore.CodeInvalidArgument, Op: "pgstore.Query", Err: err}
		}
		return fmt.Sprintf("data @> $%d::jsonb", idx), []any{encoded}, nil

	case docstore.OpArrayContains:
		encoded, err := jsonArg(f.Value)
		if err != nil {
			return "", nil, &docstore.Error{Code: docstore.CodeInvalidArgument, Op: "pgstore.Query", Err: err}
		}
		return fmt.Sprintf("data->$%d @> $%d::jsonb", idx, idx+1), []any{f.Field, encoded}, nil

	case docstore.OpLess, docstore.OpLessOrEqual, docstore.OpGreater, docstore.OpGreaterOrEqual:
		op := rangeOps[f.Op]
		if _, ok := toFloat(f.Value); ok {
			return fmt.Sprintf("(data->>$%d)::numeric %s $%d", idx, op, idx+1), []any{f.Field, f.Value}, nil
		}
		if t, ok := toTime(f.Value); ok {
			return fmt.Sprintf("(data->>$%d)::timestamptz %s $%d", idx, op, idx+1), []any{f.Field, t}, nil
		}
		if str, ok := f.Value.(string); ok {
			return fmt.Sprintf("data->>$%d %s $%d", idx, op, idx+1), []any{f.Field, str}, nil
		}
		return "", nil, &docstore.Error{
			Code: docstore.CodeInvalidArgument,
			Op:   "pgstore.Query",
			Err:  fmt.Errorf("unsupported range value type %T", f.Value),
		}

	default:
		return "", nil, &docstore.Error{
			Code: docstore.CodeInvalidArgument,
			Op:   "pgstore.Query",
			Err:  fmt.Errorf("unsupported filter op %q", f.Op),
		}
	}
}

// jsonArg marshals a filter or cursor value with the same normalization
// applied to stored documents.
func jsonArg(v any) (string, error) {
	raw, err := json.Marshal(normalizeValue(v))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func encodeDoc(data map[string]any) ([]byte, error) {
	normalized, _ := normalizeValue(data).(map[string]any)
	return json.Marshal(normalized)
}

func decodeRow(raw []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return data, nil
}

// normalizeValue rewrites time values into the fixed-width layout before
// JSON encoding; everything else passes through untouched.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(timeLayout)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(timeLayout)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = normalizeValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = normalizeValue(vv)
		}
		return out
	default:
		return v
	}
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

// classify maps a database error onto the docstore error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	code := docstore.CodeInternal
	var pgErr *pgconn.PgError
	var netErr net.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		code = docstore.CodeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		code = docstore.CodeDeadlineExceeded
	case errors.Is(err, driver.ErrBadConn):
		code = docstore.CodeUnavailable
	case errors.As(err, &pgErr):
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception class
			code = docstore.CodeUnavailable
		case pgErr.Code == "40001" || pgErr.Code == "40P01": // serialization, deadlock
			code = docstore.CodeAborted
		case pgErr.Code == "57014": // statement timeout
			code = docstore.CodeDeadlineExceeded
		}
	case errors.As(err, &netErr):
		code = docstore.CodeUnavailable
	}
	return &docstore.Error{Code: code, Op: op, Err: err}
}

// sendLatest delivers docs on a capacity-1 channel, replacing any pending
// emission so the consumer always sees the newest result.
func sendLatest(ch chan []docstore.Document, docs []docstore.Document) {
	select {
	case ch <- docs:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- docs:
	default:
	}
}
