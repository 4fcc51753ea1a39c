package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ePaysa-ind/milo-sub005/internal/cache"
	"github.com/ePaysa-ind/milo-sub005/internal/docstore"
	"github.com/ePaysa-ind/milo-sub005/internal/domain"
	"github.com/ePaysa-ind/milo-sub005/internal/identity"
	"github.com/ePaysa-ind/milo-sub005/internal/metrics"
	"github.com/ePaysa-ind/milo-sub005/internal/ratelimit"
	"github.com/ePaysa-ind/milo-sub005/internal/retry"
)

// Store collections.
const (
	CollectionNudges    = "nudges"
	CollectionFeedback  = "nudge_feedback"
	CollectionTemplates = "nudge_templates"
)

// DefaultPageSize is applied when a caller passes a non-positive limit.
const DefaultPageSize = 20

// statsScanLimit caps the statistics aggregation at the most-recent
// documents; the result is an approximation over that window, not a full
// collection aggregate.
const statsScanLimit = 1000

// Operation keys for the rate limiter. One window per key per minute.
const (
	opGetNudges          = "getNudges"
	opGetNudgeByID       = "getNudgeById"
	opCreateNudge        = "createNudge"
	opUpdateNudge        = "updateNudge"
	opDeleteNudge        = "deleteNudge"
	opGetActiveNudges    = "getActiveNudges"
	opMarkDelivered      = "markNudgeAsDelivered"
	opMarkActedUpon      = "markNudgeAsActedUpon"
	opRecordFeedback     = "recordNudgeFeedback"
	opGetNudgeStats      = "getNudgeStats"
	opNudgesStream       = "nudgesStream"
	opPerformBatch       = "performBatchOperations"
	opExecuteTransaction = "executeTransaction"
	opGetUnreadCount     = "getUnreadNudgeCount"
	opGetTemplates       = "getNudgeTemplates"
)

// Config tunes the repository. The zero value is usable: every field falls
// back to the documented default.
type Config struct {
	// RateLimit is the per-operation call ceiling per minute. Default 100.
	RateLimit int

	// EntityTTL and ListTTL bound the in-memory entity and list caches.
	// Default 15m each.
	EntityTTL time.Duration
	ListTTL   time.Duration

	// ActiveTTL bounds the time-sensitive active-nudge list. Default 5m.
	ActiveTTL time.Duration

	// SettingsTTL bounds settings and aggregate caches (stats, unread
	// count). Default 1h; the daily stats entry is additionally capped at
	// end of day.
	SettingsTTL time.Duration

	// TemplateTTL bounds the rarely-changing template gallery. Default 24h.
	TemplateTTL time.Duration

	// SweepInterval is the cadence of the housekeeping sweep. Default 5m.
	SweepInterval time.Duration

	// RetryAttempts and RetryInitialDelay shape the transient-failure
	// policy applied to every store call. Defaults 3 and 200ms.
	RetryAttempts     int
	RetryInitialDelay time.Duration

	// KeyPrefix namespaces every persisted-cache key this repository owns;
	// ClearCache purges exactly this prefix. Default "nudge:".
	KeyPrefix string

	// Clock overrides the time source. Defaults to time.Now; tests inject
	// a fake to exercise TTL and window behavior.
	Clock func() time.Time
}

func (c Config) withDefaults() Config {
	if c.RateLimit <= 0 {
		c.RateLimit = ratelimit.DefaultLimit
	}
	if c.EntityTTL <= 0 {
		c.EntityTTL = 15 * time.Minute
	}
	if c.ListTTL <= 0 {
		c.ListTTL = 15 * time.Minute
	}
	if c.ActiveTTL <= 0 {
		c.ActiveTTL = 5 * time.Minute
	}
	if c.SettingsTTL <= 0 {
		c.SettingsTTL = time.Hour
	}
	if c.TemplateTTL <= 0 {
		c.TemplateTTL = 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = retry.DefaultMaxAttempts
	}
	if c.RetryInitialDelay <= 0 {
		c.RetryInitialDelay = retry.DefaultInitialDelay
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "nudge:"
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Repository is the nudge data-access façade. Every public operation runs a
// rate-limit check first, consults the caches where applicable, and reaches
// the store through the retry policy. All internal state is mutex-guarded;
// the façade adds no cross-call ordering beyond that (store-level
// last-write-wins races are accepted).
type Repository struct {
	store docstore.Store
	kv    cache.KV
	ident identity.Provider
	log   zerolog.Logger

	cfg Config
	now func() time.Time

	limiter  *ratelimit.Limiter
	entities *cache.Memory[domain.Nudge]
	lists    *cache.Memory[[]domain.Nudge]
	settings *cache.Memory[any]

	sweepCancel context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// New builds a fully-initialized repository: collaborators are validated,
// the persisted cache is probed, and the housekeeping sweeper is started.
// There is no lazily-initialized singleton — a returned *Repository is
// always ready.
func New(ctx context.Context, store docstore.Store, kv cache.KV, ident identity.Provider, cfg Config, log zerolog.Logger) (*Repository, error) {
	if store == nil {
		return nil, fmt.Errorf("document store: %w", ErrResource)
	}
	if kv == nil {
		return nil, fmt.Errorf("persisted cache: %w", ErrResource)
	}
	if ident == nil {
		return nil, fmt.Errorf("identity provider: %w", ErrResource)
	}
	cfg = cfg.withDefaults()

	if err := kv.Ping(ctx); err != nil {
		return nil, fmt.Errorf("persisted cache ping: %w: %w", ErrResource, err)
	}

	r := &Repository{
		store: store,
		kv:    kv,
		ident: ident,
		log:   log,
		cfg:   cfg,
		now:   cfg.Clock,
	}
	r.limiter = ratelimit.New(cfg.RateLimit)
	r.limiter.Now = r.now
	r.entities = cache.NewMemory[domain.Nudge]()
	r.entities.Now = r.now
	r.lists = cache.NewMemory[[]domain.Nudge]()
	r.lists.Now = r.now
	r.settings = cache.NewMemory[any]()
	r.settings.Now = r.now

	sweepCtx, cancel := context.WithCancel(context.Background())
	r.sweepCancel = cancel
	r.wg.Add(1)
	go r.sweepLoop(sweepCtx)

	log.Info().
		Dur("entity_ttl", cfg.EntityTTL).
		Dur("sweep_interval", cfg.SweepInterval).
		Int("rate_limit", cfg.RateLimit).
		Msg("nudge repository ready")
	return r, nil
}

// Close stops the sweeper and drops the in-memory caches. The store and
// persisted cache are owned by the caller and stay open.
func (r *Repository) Close() error {
	r.closeOnce.Do(func() {
		r.sweepCancel()
		r.wg.Wait()
		r.clearMemory()
	})
	return nil
}

// ClearCache drops every in-memory cache and purges persisted keys carrying
// this repository's prefix.
func (r *Repository) ClearCache(ctx context.Context) error {
	r.clearMemory()
	if err := r.kv.DeletePrefix(ctx, r.cfg.KeyPrefix); err != nil {
		return fmt.Errorf("clear persisted cache: %w: %w", ErrCache, err)
	}
	return nil
}

// --- internals shared across operation files ---

// checkRateLimit records one call under op and converts a window rejection
// into ErrRateLimitExceeded.
func (r *Repository) checkRateLimit(op string) error {
	if r.limiter.Allow(op) {
		return nil
	}
	metrics.RateLimitRejections.WithLabelValues(op).Inc()
	r.log.Warn().Str("operation", op).Msg("rate limit exceeded")
	return fmt.Errorf("%s: %w", op, ErrRateLimitExceeded)
}

// policyFor builds the transient-failure retry policy for one operation,
// wiring retry observations into logs and metrics.
func (r *Repository) policyFor(op string) retry.Policy {
	return retry.Policy{
		MaxAttempts:  r.cfg.RetryAttempts,
		InitialDelay: r.cfg.RetryInitialDelay,
		Retryable:    docstore.IsTransient,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			metrics.RetryAttempts.WithLabelValues(op).Inc()
			r.log.Warn().
				Str("operation", op).
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(err).
				Msg("transient store failure, retrying")
		},
	}
}

func (r *Repository) clearMemory() {
	r.entities.Clear()
	r.lists.Clear()
	r.settings.Clear()
}

func (r *Repository) sweepLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep purges expired entries from the in-memory caches, stale rate-limit
// windows, and dead persisted rows. Purely housekeeping: lookups already
// check expiry, so a missed sweep never causes an incorrect read.
func (r *Repository) sweep() {
	now := r.now()
	mem := r.entities.PurgeExpired(now) + r.lists.PurgeExpired(now) + r.settings.PurgeExpired(now)
	windows := r.limiter.Sweep(now)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	persisted, err := r.kv.PurgeExpired(ctx, now)
	if err != nil {
		r.log.Warn().Err(err).Msg("persisted cache purge failed")
	}

	metrics.SweptEntries.WithLabelValues("memory").Add(float64(mem))
	metrics.SweptEntries.WithLabelValues("windows").Add(float64(windows))
	metrics.SweptEntries.WithLabelValues("kv").Add(float64(persisted))
	r.log.Debug().
		Int("memory", mem).
		Int("windows", windows).
		Int64("persisted", persisted).
		Msg("cache sweep complete")
}

// kvEnvelope is the serialized form of a persisted entity-cache entry. The
// write timestamp is re-validated against the entity TTL on read, so a row
// surviving a process restart is still subject to the same freshness rule.
type kvEnvelope struct {
	Nudge    *domain.Nudge `json:"nudge"`
	CachedAt time.Time     `json:"cachedAt"`
}

func (r *Repository) entityKey(id string) string {
	return r.cfg.KeyPrefix + "entity:" + id
}

func (r *Repository) unreadKey(now time.Time) string {
	return r.cfg.KeyPrefix + "unread:" + now.Format("2006-01-02T15")
}

func listKey(limit int, startAfterID, orderBy string, descending bool) string {
	return fmt.Sprintf("list:limit=%d:after=%s:order=%s:desc=%t", limit, startAfterID, orderBy, descending)
}

func activeKey(limit int) string {
	return fmt.Sprintf("active:limit=%d", limit)
}

func statsKey(now time.Time) string {
	return "stats:" + now.Format("2006-01-02")
}

const templatesKey = "templates"

// cacheEntity stores a nudge in both cache tiers. Persisted-tier failures
// are logged, never raised: a cache problem must not fail a successful
// read or write.
func (r *Repository) cacheEntity(ctx context.Context, n *domain.Nudge) {
	if n == nil || n.ID == "" {
		return
	}
	r.entities.Put(n.ID, *n.Clone(), r.cfg.EntityTTL)

	raw, err := json.Marshal(kvEnvelope{Nudge: n, CachedAt: r.now()})
	if err == nil {
		err = r.kv.Set(ctx, r.entityKey(n.ID), raw, r.cfg.EntityTTL)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("nudge_id", n.ID).Msg("persisted cache write failed")
	}
}

// entityFromKV reads the persisted tier, deserializes, and re-validates the
// stored write timestamp against the entity TTL. Any problem is a miss.
func (r *Repository) entityFromKV(ctx context.Context, id string) *domain.Nudge {
	raw, ok, err := r.kv.Get(ctx, r.entityKey(id))
	if err != nil {
		r.log.Warn().Err(err).Str("nudge_id", id).Msg("persisted cache read failed")
		return nil
	}
	if !ok {
		return nil
	}
	var env kvEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Nudge == nil {
		r.log.Warn().Err(err).Str("nudge_id", id).Msg("persisted cache entry corrupt, ignoring")
		return nil
	}
	if r.now().Sub(env.CachedAt) >= r.cfg.EntityTTL {
		return nil
	}
	return env.Nudge
}

// isoWeekday maps Go's Sunday-first weekday onto the schedule convention
// Monday=1 … Sunday=7.
func isoWeekday(t time.Time) int {
	d := int(t.Weekday())
	if d == 0 {
		d = 7
	}
	return d
}

// endOfDay is the first instant of the next calendar day in t's location.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}

func cloneNudges(items []domain.Nudge) []domain.Nudge {
	out := make([]domain.Nudge, len(items))
	for i := range items {
		out[i] = *items[i].Clone()
	}
	return out
}

func lastID(items []domain.Nudge) string {
	if len(items) == 0 {
		return ""
	}
	return items[len(items)-1].ID
}
