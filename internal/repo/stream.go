package repo

import (
	"context"
	"fmt"

	"github.com/ePaysa-ind/milo-sub005/internal/docstore"
	"github.com/ePaysa-ind/milo-sub005/internal/domain"
)

// NudgesStream returns a live, ordered view of the nudge collection: one
// emission with the current contents, then one per observed change. The
// stream never errors — rate limiting, watch setup failures, and decode
// failures all surface as an empty-list emission with the cause in the
// logs — and the channel closes when ctx is canceled.
func (r *Repository) NudgesStream(ctx context.Context, limit int, orderBy string, descending bool) <-chan []domain.Nudge {
	out := make(chan []domain.Nudge, 1)
	if err := r.checkRateLimit(opNudgesStream); err != nil {
		out <- []domain.Nudge{}
		close(out)
		return out
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if orderBy == "" {
		orderBy = domain.FieldCreatedAt
	}

	q := docstore.Query{OrderBy: orderBy, Descending: descending, Limit: limit}
	watch, err := r.store.Watch(ctx, CollectionNudges, q)
	if err != nil {
		r.log.Error().Err(fmt.Errorf("%w: %w", ErrStream, err)).Msg("nudge stream failed to start")
		out <- []domain.Nudge{}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		for docs := range watch {
			items := make([]domain.Nudge, 0, len(docs))
			decoded := true
			for _, doc := range docs {
				n, err := domain.DecodeNudge(doc.ID, doc.Data)
				if err != nil {
					r.log.Warn().
						Err(fmt.Errorf("%w: %w", ErrStream, err)).
						Str("nudge_id", doc.ID).
						Msg("nudge stream decode failed, emitting empty list")
					decoded = false
					break
				}
				items = append(items, *n)
			}
			if !decoded {
				items = []domain.Nudge{}
			} else {
				for i := range items {
					r.entities.Put(items[i].ID, *items[i].Clone(), r.cfg.EntityTTL)
				}
			}
			select {
			case out <- items:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
