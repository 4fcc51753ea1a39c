package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ePaysa-ind/milo-sub005/internal/docstore"
	"github.com/ePaysa-ind/milo-sub005/internal/domain"
	"github.com/ePaysa-ind/milo-sub005/internal/retry"
)

// RecordNudgeFeedback stores one rating and folds it into the nudge's
// running average, atomically. The feedback document and the recomputed
// aggregate commit or roll back together, so concurrent raters can never
// leave the mean and the count disagreeing.
//
// The rating scale is the caller's business; this layer only aggregates.
func (r *Repository) RecordNudgeFeedback(ctx context.Context, id string, rating float64, comment string) error {
	tr := otel.Tracer("repo/NudgeRepository")
	ctx, span := tr.Start(ctx, "RecordNudgeFeedback",
		trace.WithAttributes(
			attribute.String("nudge.id", id),
			attribute.Float64("rating", rating),
		),
	)
	defer span.End()

	if err := r.checkRateLimit(opRecordFeedback); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("record nudge feedback: %w: %w", ErrValidation, domain.ErrMissingID)
	}
	userID, err := r.ident.CurrentUserID(ctx)
	if err != nil {
		return fmt.Errorf("record nudge feedback: %w: %w", ErrAuthentication, err)
	}

	err = retry.Do(ctx, r.policyFor(opRecordFeedback), func(ctx context.Context) error {
		return r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
			// 1. Read the current aggregate under the transaction.
			doc, err := tx.Get(CollectionNudges, id)
			if err != nil {
				return err
			}
			n, err := domain.DecodeNudge(doc.ID, doc.Data)
			if err != nil {
				return err
			}

			// 2. Write the feedback record.
			data := domain.EncodeFeedback(&domain.Feedback{
				NudgeID: id,
				UserID:  userID,
				Rating:  rating,
				Comment: comment,
			})
			data[domain.FieldCreatedAt] = docstore.ServerTimestamp
			if err := tx.Set(CollectionFeedback, uuid.NewString(), data); err != nil {
				return err
			}

			// 3. Fold the rating into the running weighted mean.
			newCount := n.RatingCount + 1
			newAvg := (n.AverageRating*float64(n.RatingCount) + rating) / float64(newCount)
			return tx.Update(CollectionNudges, id, map[string]any{
				domain.FieldAverageRating: newAvg,
				domain.FieldRatingCount:   newCount,
				domain.FieldUpdatedAt:     docstore.ServerTimestamp,
			})
		})
	})
	if err != nil {
		return fmt.Errorf("record nudge feedback %q: %w: %w", id, ErrTransaction, err)
	}

	// The authoritative mean was computed from store state inside the
	// transaction, so invalidate rather than patch the cached copy.
	r.dropEntityCaches(ctx, id)
	r.log.Debug().Str("nudge_id", id).Float64("rating", rating).Msg("nudge feedback recorded")
	return nil
}

// ExecuteTransaction runs fn atomically against the store. fn may read and
// write arbitrary documents, so every cache this repository holds is
// dropped afterwards, commit or not.
func (r *Repository) ExecuteTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	if err := r.checkRateLimit(opExecuteTransaction); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("execute transaction: %w: nil function", ErrValidation)
	}

	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.ClearCache(cctx); err != nil {
			r.log.Warn().Err(err).Msg("cache clear after transaction failed")
		}
	}()

	err := retry.Do(ctx, r.policyFor(opExecuteTransaction), func(ctx context.Context) error {
		return r.store.RunTransaction(ctx, fn)
	})
	if err != nil {
		return fmt.Errorf("execute transaction: %w: %w", ErrTransaction, err)
	}
	return nil
}

// PerformBatchOperations applies a mixed list of creates, updates, and
// deletes in store-atomic chunks of at most docstore.MaxBatchSize writes.
// Chunks commit in order: when chunk N fails, chunks before it stay
// committed and chunks after it are never attempted — the returned error
// names the failed chunk and its operation range so the caller knows where
// application stopped.
//
// All operations are validated before anything is written; create payloads
// additionally pass nudge validation. Batch creates persist the payload
// exactly as given (plus server timestamps) — no identity stamping happens
// here.
func (r *Repository) PerformBatchOperations(ctx context.Context, ops []domain.BatchOperation) error {
	tr := otel.Tracer("repo/NudgeRepository")
	ctx, span := tr.Start(ctx, "PerformBatchOperations",
		trace.WithAttributes(attribute.Int("operations", len(ops))),
	)
	defer span.End()

	if err := r.checkRateLimit(opPerformBatch); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("batch operation %d: %w: %w", i, ErrValidation, err)
		}
		if op.Kind == domain.BatchCreate {
			if err := op.Nudge.Validate(); err != nil {
				return fmt.Errorf("batch operation %d: %w: %w", i, ErrValidation, err)
			}
		}
	}

	writes := make([]docstore.Write, 0, len(ops))
	var touched []string
	for _, op := range ops {
		switch op.Kind {
		case domain.BatchCreate:
			data := domain.EncodeNudge(op.Nudge)
			data[domain.FieldCreatedAt] = docstore.ServerTimestamp
			data[domain.FieldUpdatedAt] = docstore.ServerTimestamp
			writes = append(writes, docstore.Write{Kind: docstore.WriteCreate, Data: data})
		case domain.BatchUpdate:
			data := domain.EncodeNudge(op.Nudge)
			data[domain.FieldUpdatedAt] = docstore.ServerTimestamp
			writes = append(writes, docstore.Write{Kind: docstore.WriteUpdate, ID: op.ID, Data: data})
			touched = append(touched, op.ID)
		case domain.BatchDelete:
			writes = append(writes, docstore.Write{Kind: docstore.WriteDelete, ID: op.ID})
			touched = append(touched, op.ID)
		}
	}

	var failure error
	applied := 0
	for start := 0; start < len(writes); start += docstore.MaxBatchSize {
		end := min(start+docstore.MaxBatchSize, len(writes))
		chunk := writes[start:end]
		err := retry.Do(ctx, r.policyFor(opPerformBatch), func(ctx context.Context) error {
			return r.store.ApplyBatch(ctx, CollectionNudges, chunk)
		})
		if err != nil {
			failure = fmt.Errorf("batch chunk %d (operations %d-%d): %w: %w",
				start/docstore.MaxBatchSize+1, start, end-1, ErrDataWrite, err)
			break
		}
		applied += len(chunk)
	}

	if applied > 0 {
		r.invalidateAfterBatch(touched)
	}
	if failure != nil {
		return failure
	}
	r.log.Info().Int("operations", len(ops)).Msg("batch operations applied")
	return nil
}

// invalidateAfterBatch drops every in-memory cache plus the persisted rows
// of the ids a batch updated or deleted. Runs after any chunk committed,
// including on partial failure, since the committed prefix already changed
// store state.
func (r *Repository) invalidateAfterBatch(ids []string) {
	r.clearMemory()
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.entityKey(id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.kv.Delete(ctx, keys...); err != nil {
		r.log.Warn().Err(err).Int("keys", len(keys)).Msg("persisted cache delete after batch failed")
	}
}
