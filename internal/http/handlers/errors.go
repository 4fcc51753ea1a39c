// Package handlers defines the HTTP-layer error codes used across all API
// endpoints and the translation from repository error kinds to HTTP
// responses.
//
// The symbolic constants below give clients a stable, machine-readable
// error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless noted.
//   - Generic codes (bad_request, unauthorized, not_found) mirror common
//     HTTP status semantics.
//   - Domain-specific codes (create_failed, fetch_failed, write_failed,
//     transaction_failed, cache_failed) name the repository operation class
//     that failed when status alone is not enough.
//   - All error responses include both an HTTP status and one of these
//     codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "write_failed",
//	  "message": "update nudge: data write failed: unavailable"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ePaysa-ind/milo-sub005/internal/repo"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeCreateFailed      = "create_failed"
	ErrCodeFetchFailed       = "fetch_failed"
	ErrCodeWriteFailed       = "write_failed"
	ErrCodeTransactionFailed = "transaction_failed"
	ErrCodeCacheFailed       = "cache_failed"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)

// respondError translates a repository error into the HTTP envelope.
//
// Classification uses errors.Is on the repository's error kinds:
// validation → 400, missing identity → 401, exhausted operation budget →
// 429. Store-contact failures keep their operation class (fetch, write,
// transaction, cache) at 500; anything unrecognized falls back to 500 with
// fallbackCode.
func respondError(c *gin.Context, err error, fallbackCode string) {
	switch {
	case errors.Is(err, repo.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, repo.ErrAuthentication):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case errors.Is(err, repo.ErrRateLimitExceeded):
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, err.Error())
	case errors.Is(err, repo.ErrDataFetch):
		fail(c, http.StatusInternalServerError, ErrCodeFetchFailed, err.Error())
	case errors.Is(err, repo.ErrDataWrite):
		fail(c, http.StatusInternalServerError, ErrCodeWriteFailed, err.Error())
	case errors.Is(err, repo.ErrTransaction):
		fail(c, http.StatusInternalServerError, ErrCodeTransactionFailed, err.Error())
	case errors.Is(err, repo.ErrCache):
		fail(c, http.StatusInternalServerError, ErrCodeCacheFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}
