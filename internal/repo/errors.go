// Package repo implements the nudge repository façade: rate-limited, cached,
// retrying access to the remote nudge store. This file centralizes the
// error kinds the façade returns so that callers can classify failures with
// errors.Is without inspecting messages.
//
// Translation into HTTP status codes happens at the handler layer; these
// values only name the failure class.
package repo

import "errors"

var (
	// ErrAuthentication indicates no signed-in user was available for an
	// operation that must attribute its write.
	ErrAuthentication = errors.New("no authenticated user")

	// ErrValidation indicates the input failed a precondition (empty
	// content, missing id) before any store contact.
	ErrValidation = errors.New("validation failed")

	// ErrRateLimitExceeded indicates the per-operation minute window is
	// exhausted. The same operation succeeds again once the minute rolls
	// over.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrDataFetch wraps read failures after retries are exhausted.
	ErrDataFetch = errors.New("data fetch failed")

	// ErrDataWrite wraps write failures after retries are exhausted.
	ErrDataWrite = errors.New("data write failed")

	// ErrTransaction wraps multi-document transaction failures.
	ErrTransaction = errors.New("transaction failed")

	// ErrStream marks live-query subscription failures. Streams never
	// surface it to consumers — they emit an empty list instead — so it
	// appears only in logs.
	ErrStream = errors.New("stream failed")

	// ErrCache wraps persisted-cache failures on operations whose purpose
	// is the cache itself (ClearCache). Cache problems during reads and
	// writes are logged, never raised.
	ErrCache = errors.New("cache failure")

	// ErrResource indicates a missing or unready collaborator at
	// construction time.
	ErrResource = errors.New("resource unavailable")
)
