package repo

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ePaysa-ind/milo-sub005/internal/docstore"
	"github.com/ePaysa-ind/milo-sub005/internal/domain"
	"github.com/ePaysa-ind/milo-sub005/internal/metrics"
	"github.com/ePaysa-ind/milo-sub005/internal/retry"
)

// GetNudges returns one ordered page of nudges. startAfterID is the opaque
// cursor from the previous page's LastID; an unknown cursor id is treated as
// absent, so the listing restarts from the beginning rather than failing.
// Results are served from the list cache when a page with identical
// parameters was fetched within the list TTL.
func (r *Repository) GetNudges(ctx context.Context, limit int, startAfterID, orderBy string, descending bool) (*domain.NudgePage, error) {
	tr := otel.Tracer("repo/NudgeRepository")
	ctx, span := tr.Start(ctx, "GetNudges",
		trace.WithAttributes(
			attribute.Int("limit", limit),
			attribute.String("cursor", startAfterID),
			attribute.String("order_by", orderBy),
		),
	)
	defer span.End()

	if err := r.checkRateLimit(opGetNudges); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if orderBy == "" {
		orderBy = domain.FieldCreatedAt
	}

	key := listKey(limit, startAfterID, orderBy, descending)
	if items, ok := r.lists.Get(key); ok {
		metrics.CacheHits.WithLabelValues("list", "memory").Inc()
		return pageOf(cloneNudges(items), limit), nil
	}
	metrics.CacheMisses.WithLabelValues("list", "memory").Inc()

	var cursor *docstore.Document
	if startAfterID != "" {
		doc, err := retry.DoValue(ctx, r.policyFor(opGetNudges), func(ctx context.Context) (*docstore.Document, error) {
			return r.store.Get(ctx, CollectionNudges, startAfterID)
		})
		switch {
		case docstore.IsNotFound(err):
			// Cursor document no longer exists; restart the listing.
		case err != nil:
			return nil, fmt.Errorf("get nudges: resolve cursor %q: %w: %w", startAfterID, ErrDataFetch, err)
		default:
			cursor = doc
		}
	}

	q := docstore.Query{
		OrderBy:    orderBy,
		Descending: descending,
		Limit:      limit,
		StartAfter: cursor,
	}
	docs, err := retry.DoValue(ctx, r.policyFor(opGetNudges), func(ctx context.Context) ([]docstore.Document, error) {
		return r.store.Query(ctx, CollectionNudges, q)
	})
	if err != nil {
		return nil, fmt.Errorf("get nudges: %w: %w", ErrDataFetch, err)
	}

	items := make([]domain.Nudge, 0, len(docs))
	for _, doc := range docs {
		n, err := domain.DecodeNudge(doc.ID, doc.Data)
		if err != nil {
			return nil, fmt.Errorf("get nudges: %w: %w", ErrDataFetch, err)
		}
		items = append(items, *n)
	}

	r.lists.Put(key, cloneNudges(items), r.cfg.ListTTL)
	for i := range items {
		r.entities.Put(items[i].ID, *items[i].Clone(), r.cfg.EntityTTL)
	}
	return pageOf(items, limit), nil
}

// GetNudgeByID returns a single nudge, or (nil, nil) when no document with
// that id exists — absence is an answer, not an error. Lookups go memory
// tier, then persisted tier, then store; a store hit repopulates both tiers.
func (r *Repository) GetNudgeByID(ctx context.Context, id string) (*domain.Nudge, error) {
	if err := r.checkRateLimit(opGetNudgeByID); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("get nudge by id: %w: %w", ErrValidation, domain.ErrMissingID)
	}

	if n, ok := r.entities.Get(id); ok {
		metrics.CacheHits.WithLabelValues("entity", "memory").Inc()
		return (&n).Clone(), nil
	}
	metrics.CacheMisses.WithLabelValues("entity", "memory").Inc()

	if n := r.entityFromKV(ctx, id); n != nil {
		metrics.CacheHits.WithLabelValues("entity", "kv").Inc()
		r.entities.Put(id, *n.Clone(), r.cfg.EntityTTL)
		return n, nil
	}
	metrics.CacheMisses.WithLabelValues("entity", "kv").Inc()

	doc, err := retry.DoValue(ctx, r.policyFor(opGetNudgeByID), func(ctx context.Context) (*docstore.Document, error) {
		return r.store.Get(ctx, CollectionNudges, id)
	})
	if docstore.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get nudge %q: %w: %w", id, ErrDataFetch, err)
	}

	n, err := domain.DecodeNudge(doc.ID, doc.Data)
	if err != nil {
		return nil, fmt.Errorf("get nudge %q: %w: %w", id, ErrDataFetch, err)
	}
	r.cacheEntity(ctx, n)
	return n, nil
}

// GetActiveNudges returns the nudges due for delivery right now: active,
// scheduled for today's weekday, with a fire minute at or before the
// current minute of day, most-imminent first. The result is cached under
// the short active TTL because it is a function of wall-clock time.
func (r *Repository) GetActiveNudges(ctx context.Context, limit int) ([]domain.Nudge, error) {
	if err := r.checkRateLimit(opGetActiveNudges); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	key := activeKey(limit)
	if items, ok := r.lists.Get(key); ok {
		metrics.CacheHits.WithLabelValues("active", "memory").Inc()
		return cloneNudges(items), nil
	}
	metrics.CacheMisses.WithLabelValues("active", "memory").Inc()

	now := r.now()
	minuteOfDay := now.Hour()*60 + now.Minute()
	q := docstore.Query{
		Filters: []docstore.Filter{
			{Field: domain.FieldActive, Op: docstore.OpEqual, Value: true},
			{Field: domain.FieldScheduleDays, Op: docstore.OpArrayContains, Value: isoWeekday(now)},
			{Field: domain.FieldScheduleMinute, Op: docstore.OpLessOrEqual, Value: minuteOfDay},
		},
		OrderBy:    domain.FieldScheduleMinute,
		Descending: true,
		Limit:      limit,
	}
	docs, err := retry.DoValue(ctx, r.policyFor(opGetActiveNudges), func(ctx context.Context) ([]docstore.Document, error) {
		return r.store.Query(ctx, CollectionNudges, q)
	})
	if err != nil {
		return nil, fmt.Errorf("get active nudges: %w: %w", ErrDataFetch, err)
	}

	items := make([]domain.Nudge, 0, len(docs))
	for _, doc := range docs {
		n, err := domain.DecodeNudge(doc.ID, doc.Data)
		if err != nil {
			return nil, fmt.Errorf("get active nudges: %w: %w", ErrDataFetch, err)
		}
		items = append(items, *n)
	}
	r.lists.Put(key, cloneNudges(items), r.cfg.ActiveTTL)
	return items, nil
}

// GetNudgeTemplates returns the starter-template gallery, cached for 24h.
// A template stored without a title gets one derived from its content.
// Templates that fail to decode are skipped rather than sinking the whole
// gallery; the skip is logged.
func (r *Repository) GetNudgeTemplates(ctx context.Context) ([]domain.NudgeTemplate, error) {
	if err := r.checkRateLimit(opGetTemplates); err != nil {
		return nil, err
	}

	if v, ok := r.settings.Get(templatesKey); ok {
		if cached, ok := v.([]domain.NudgeTemplate); ok {
			metrics.CacheHits.WithLabelValues("templates", "memory").Inc()
			return cloneTemplates(cached), nil
		}
	}
	metrics.CacheMisses.WithLabelValues("templates", "memory").Inc()

	docs, err := retry.DoValue(ctx, r.policyFor(opGetTemplates), func(ctx context.Context) ([]docstore.Document, error) {
		return r.store.Query(ctx, CollectionTemplates, docstore.Query{})
	})
	if err != nil {
		return nil, fmt.Errorf("get nudge templates: %w: %w", ErrDataFetch, err)
	}

	items := make([]domain.NudgeTemplate, 0, len(docs))
	for _, doc := range docs {
		t, err := domain.DecodeNudgeTemplate(doc.ID, doc.Data)
		if err != nil {
			r.log.Warn().Err(err).Str("template_id", doc.ID).Msg("skipping undecodable template")
			continue
		}
		if t.Title == "" {
			t.Title = deriveTitle(t.Content)
		}
		items = append(items, *t)
	}
	r.settings.Put(templatesKey, cloneTemplates(items), r.cfg.TemplateTTL)
	return items, nil
}

func pageOf(items []domain.Nudge, limit int) *domain.NudgePage {
	return &domain.NudgePage{
		Items:   items,
		HasMore: len(items) >= limit,
		LastID:  lastID(items),
	}
}

func cloneTemplates(items []domain.NudgeTemplate) []domain.NudgeTemplate {
	out := make([]domain.NudgeTemplate, len(items))
	for i, t := range items {
		out[i] = t
		if t.DefaultDays != nil {
			out[i].DefaultDays = append([]int(nil), t.DefaultDays...)
		}
	}
	return out
}
