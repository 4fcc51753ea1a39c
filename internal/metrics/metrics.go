// Package metrics exposes Prometheus instrumentation for the nudge data
// layer: cache effectiveness, rate-limit pressure, retry churn, and the
// write failures the layer deliberately absorbs.
//
// Label cardinality stays bounded by construction — cache names, tiers, and
// operation keys are small fixed sets defined by the repository itself.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CacheHits counts cache lookups that returned a live entry, by cache
	// name (entity, list, active, settings, stats, unread) and tier
	// (memory, kv).
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_cache_hits_total",
			Help: "Cache lookups served from a live entry.",
		},
		[]string{"cache", "tier"},
	)

	// CacheMisses counts cache lookups that fell through to the store.
	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_cache_misses_total",
			Help: "Cache lookups that fell through to the store.",
		},
		[]string{"cache", "tier"},
	)

	// RateLimitRejections counts operations refused by the per-operation
	// minute window.
	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_rate_limit_rejections_total",
			Help: "Data-layer operations rejected by the rate limiter.",
		},
		[]string{"operation"},
	)

	// RetryAttempts counts scheduled retries of transient store failures.
	// One observation per wait, not per call.
	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_store_retries_total",
			Help: "Retries scheduled after transient store failures.",
		},
		[]string{"operation"},
	)

	// SwallowedCreates counts create failures the layer absorbed instead of
	// surfacing. A steadily rising value means the store is rejecting
	// writes while callers see silent nulls.
	SwallowedCreates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nudge_creates_swallowed_total",
			Help: "Create failures logged and absorbed by the data layer.",
		},
	)

	// SweptEntries counts entries removed by the periodic cache sweep, by
	// target (memory, kv, windows).
	SweptEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nudge_cache_swept_entries_total",
			Help: "Expired entries removed by the periodic sweep.",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(
		CacheHits,
		CacheMisses,
		RateLimitRejections,
		RetryAttempts,
		SwallowedCreates,
		SweptEntries,
	)
}
