package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/ePaysa-ind/milo-sub005/internal/docstore"
	"github.com/ePaysa-ind/milo-sub005/internal/domain"
	"github.com/ePaysa-ind/milo-sub005/internal/metrics"
	"github.com/ePaysa-ind/milo-sub005/internal/retry"
)

// CreateNudge validates and persists a new nudge. Validation and
// authentication failures are returned to the caller; a store failure after
// that point is swallowed — logged, counted, and reported as (nil, nil) — so
// a flaky backend degrades creation to a silent no-op instead of an error
// surface. Callers must treat a nil nudge with a nil error as "not created".
//
// The returned nudge carries client-clock approximations of the
// server-assigned timestamps; the next store read replaces them with the
// authoritative values.
func (r *Repository) CreateNudge(ctx context.Context, n *domain.Nudge) (*domain.Nudge, error) {
	if err := r.checkRateLimit(opCreateNudge); err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("create nudge: %w: nil nudge", ErrValidation)
	}
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("create nudge: %w: %w", ErrValidation, err)
	}
	userID := n.UserID
	if userID == "" {
		id, err := r.ident.CurrentUserID(ctx)
		if err != nil {
			return nil, fmt.Errorf("create nudge: %w: %w", ErrAuthentication, err)
		}
		userID = id
	}

	data := domain.EncodeNudge(n)
	data[domain.FieldUserID] = userID
	data[domain.FieldCreatedAt] = docstore.ServerTimestamp
	data[domain.FieldUpdatedAt] = docstore.ServerTimestamp

	id, err := retry.DoValue(ctx, r.policyFor(opCreateNudge), func(ctx context.Context) (string, error) {
		return r.store.Add(ctx, CollectionNudges, data)
	})
	if err != nil {
		metrics.SwallowedCreates.Inc()
		r.log.Error().Err(err).Msg("nudge creation failed, returning nil")
		return nil, nil
	}

	now := r.now()
	created := n.Clone()
	created.ID = id
	created.UserID = userID
	created.CreatedAt = now
	created.UpdatedAt = now

	r.entities.Put(id, *created.Clone(), r.cfg.EntityTTL)
	r.lists.Clear()
	r.log.Info().Str("nudge_id", id).Msg("nudge created")
	return created, nil
}

// UpdateNudge replaces the caller-owned fields of an existing nudge. The
// update timestamp is server-assigned; both cache tiers are refreshed with
// the new value and every cached listing is dropped.
func (r *Repository) UpdateNudge(ctx context.Context, n *domain.Nudge) error {
	if err := r.checkRateLimit(opUpdateNudge); err != nil {
		return err
	}
	if n == nil || n.ID == "" {
		return fmt.Errorf("update nudge: %w: %w", ErrValidation, domain.ErrMissingID)
	}
	if err := n.Validate(); err != nil {
		return fmt.Errorf("update nudge: %w: %w", ErrValidation, err)
	}

	updates := domain.EncodeNudge(n)
	updates[domain.FieldUpdatedAt] = docstore.ServerTimestamp

	err := retry.Do(ctx, r.policyFor(opUpdateNudge), func(ctx context.Context) error {
		return r.store.Update(ctx, CollectionNudges, n.ID, updates)
	})
	if err != nil {
		return fmt.Errorf("update nudge %q: %w: %w", n.ID, ErrDataWrite, err)
	}

	refreshed := n.Clone()
	refreshed.UpdatedAt = r.now()
	r.cacheEntity(ctx, refreshed)
	r.lists.Clear()
	return nil
}

// DeleteNudge removes a nudge by id. Deletion of an id that does not exist
// succeeds (the store treats it as idempotent). Cache eviction happens after
// the store confirms; an eviction failure is logged, never raised.
func (r *Repository) DeleteNudge(ctx context.Context, id string) error {
	if err := r.checkRateLimit(opDeleteNudge); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("delete nudge: %w: %w", ErrValidation, domain.ErrMissingID)
	}

	err := retry.Do(ctx, r.policyFor(opDeleteNudge), func(ctx context.Context) error {
		return r.store.Delete(ctx, CollectionNudges, id)
	})
	if err != nil {
		return fmt.Errorf("delete nudge %q: %w: %w", id, ErrDataWrite, err)
	}

	r.dropEntityCaches(ctx, id)
	r.lists.Clear()
	r.log.Info().Str("nudge_id", id).Msg("nudge deleted")
	return nil
}

// MarkNudgeAsDelivered records one delivery: increments the delivery count
// and stamps the delivery time, both server-side.
func (r *Repository) MarkNudgeAsDelivered(ctx context.Context, id string) error {
	return r.markNudge(ctx, opMarkDelivered, "mark nudge delivered", id,
		domain.FieldDeliveryCount, domain.FieldLastDelivered,
		func(n *domain.Nudge, now time.Time) {
			n.DeliveryCount++
			t := now
			n.LastDeliveredAt = &t
		})
}

// MarkNudgeAsActedUpon records one user engagement: increments the action
// count and stamps the action time, both server-side.
func (r *Repository) MarkNudgeAsActedUpon(ctx context.Context, id string) error {
	return r.markNudge(ctx, opMarkActedUpon, "mark nudge acted upon", id,
		domain.FieldActionCount, domain.FieldLastActed,
		func(n *domain.Nudge, now time.Time) {
			n.ActionCount++
			t := now
			n.LastActedAt = &t
		})
}

// markNudge is the shared engagement-mark path: a server-side increment plus
// server timestamps, then a cache patch. A cached copy is patched in place
// with client-clock approximations; an uncached id just has its persisted
// row dropped so the next read refetches. Listing caches are left alone —
// counts and timestamps do not affect list membership under the current
// orderings, and the marks fire far too often to pay a full list flush.
func (r *Repository) markNudge(ctx context.Context, op, label, id, countField, timeField string, patch func(*domain.Nudge, time.Time)) error {
	if err := r.checkRateLimit(op); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%s: %w: %w", label, ErrValidation, domain.ErrMissingID)
	}

	updates := map[string]any{
		countField:            docstore.Increment(1),
		timeField:             docstore.ServerTimestamp,
		domain.FieldUpdatedAt: docstore.ServerTimestamp,
	}
	err := retry.Do(ctx, r.policyFor(op), func(ctx context.Context) error {
		return r.store.Update(ctx, CollectionNudges, id, updates)
	})
	if err != nil {
		return fmt.Errorf("%s %q: %w: %w", label, id, ErrDataWrite, err)
	}

	if n, ok := r.entities.Get(id); ok {
		now := r.now()
		patch(&n, now)
		n.UpdatedAt = now
		r.cacheEntity(ctx, &n)
	} else {
		r.dropEntityCaches(ctx, id)
	}
	return nil
}

// dropEntityCaches evicts one nudge from both cache tiers. The
// persisted-tier failure is logged, never raised.
func (r *Repository) dropEntityCaches(ctx context.Context, id string) {
	r.entities.Invalidate(id)
	if err := r.kv.Delete(ctx, r.entityKey(id)); err != nil {
		r.log.Warn().Err(err).Str("nudge_id", id).Msg("persisted cache delete failed")
	}
}
