package repo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ePaysa-ind/milo-sub005/internal/docstore"
	"github.com/ePaysa-ind/milo-sub005/internal/domain"
	"github.com/ePaysa-ind/milo-sub005/internal/metrics"
	"github.com/ePaysa-ind/milo-sub005/internal/retry"
)

// GetNudgeStats aggregates engagement over the most-recent nudges (a capped
// scan of statsScanLimit documents, newest first). It never returns an
// error: on any failure the zero-valued stats come back with Err set so a
// dashboard renders zeros instead of breaking. Successful aggregates are
// cached for the settings TTL, capped at end of day so a new day never
// serves yesterday's numbers.
func (r *Repository) GetNudgeStats(ctx context.Context) *domain.NudgeStats {
	now := r.now()
	if err := r.checkRateLimit(opGetNudgeStats); err != nil {
		return &domain.NudgeStats{GeneratedAt: now, Err: err}
	}

	key := statsKey(now)
	if v, ok := r.settings.Get(key); ok {
		if cached, ok := v.(domain.NudgeStats); ok {
			metrics.CacheHits.WithLabelValues("stats", "memory").Inc()
			return &cached
		}
	}
	metrics.CacheMisses.WithLabelValues("stats", "memory").Inc()

	q := docstore.Query{
		OrderBy:    domain.FieldCreatedAt,
		Descending: true,
		Limit:      statsScanLimit,
	}
	docs, err := retry.DoValue(ctx, r.policyFor(opGetNudgeStats), func(ctx context.Context) ([]docstore.Document, error) {
		return r.store.Query(ctx, CollectionNudges, q)
	})
	if err != nil {
		r.log.Error().Err(err).Msg("nudge stats query failed, returning zeros")
		return &domain.NudgeStats{
			GeneratedAt: now,
			Err:         fmt.Errorf("get nudge stats: %w: %w", ErrDataFetch, err),
		}
	}

	stats := domain.NudgeStats{GeneratedAt: now}
	var ratingSum float64
	var ratingCount int64
	for _, doc := range docs {
		n, err := domain.DecodeNudge(doc.ID, doc.Data)
		if err != nil {
			r.log.Warn().Err(err).Str("nudge_id", doc.ID).Msg("skipping undecodable nudge in stats")
			continue
		}
		stats.Total++
		if n.Active {
			stats.Active++
		}
		if n.DeliveryCount > 0 {
			stats.Delivered++
		}
		if n.ActionCount > 0 {
			stats.ActedUpon++
		}
		if n.RatingCount > 0 {
			ratingSum += n.AverageRating * float64(n.RatingCount)
			ratingCount += n.RatingCount
		}
	}
	if ratingCount > 0 {
		stats.AverageRating = ratingSum / float64(ratingCount)
	}

	expires := now.Add(r.cfg.SettingsTTL)
	if eod := endOfDay(now); eod.Before(expires) {
		expires = eod
	}
	r.settings.PutUntil(key, stats, expires)
	return &stats
}

// GetUnreadNudgeCount returns the number of nudges delivered but not yet
// acted upon. Like the stats, it degrades to zero on failure instead of
// erroring. The count is cached in the persisted tier only, keyed by hour
// bucket: it survives restarts, and the bucket in the key rolls the value
// over naturally at the top of each hour.
func (r *Repository) GetUnreadNudgeCount(ctx context.Context) int {
	if err := r.checkRateLimit(opGetUnreadCount); err != nil {
		return 0
	}

	key := r.unreadKey(r.now())
	if raw, ok, err := r.kv.Get(ctx, key); err != nil {
		r.log.Warn().Err(err).Msg("unread count cache read failed")
	} else if ok {
		if count, err := strconv.Atoi(string(raw)); err == nil {
			metrics.CacheHits.WithLabelValues("unread", "kv").Inc()
			return count
		}
		r.log.Warn().Str("value", string(raw)).Msg("unread count cache entry corrupt, ignoring")
	}
	metrics.CacheMisses.WithLabelValues("unread", "kv").Inc()

	q := docstore.Query{Filters: []docstore.Filter{
		{Field: domain.FieldDeliveryCount, Op: docstore.OpGreater, Value: 0},
		{Field: domain.FieldActionCount, Op: docstore.OpEqual, Value: 0},
	}}
	count, err := retry.DoValue(ctx, r.policyFor(opGetUnreadCount), func(ctx context.Context) (int64, error) {
		return r.store.Count(ctx, CollectionNudges, q)
	})
	if err != nil {
		r.log.Error().Err(err).Msg("unread count query failed, returning zero")
		return 0
	}

	if err := r.kv.Set(ctx, key, []byte(strconv.FormatInt(count, 10)), r.cfg.SettingsTTL); err != nil {
		r.log.Warn().Err(err).Msg("unread count cache write failed")
	}
	return int(count)
}
