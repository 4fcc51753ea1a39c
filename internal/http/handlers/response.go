// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the response utilities every endpoint shares: the error
// envelope, its JSON shape, and the success helpers. Keeping them in one
// place makes the API uniform — every failure carries a stable `code`, an
// optional correlation id, and a display-safe message, and every success
// is plain JSON with the status the operation calls for.
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "nudge not found"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ePaysa-ind/milo-sub005/internal/http/middleware"
)

// ErrorResponse is the envelope returned by every failing endpoint. The
// code values are the errors.go constants; RequestID echoes X-Request-ID
// so a client report can be matched to server logs. Swagger annotations
// reference this type for all error statuses.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"nudge not found"`
}

// fail aborts the request with the standard envelope. Server-side errors
// (>= 500) are additionally logged through the request-scoped logger so
// they surface with the correlation id; client errors stay quiet.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail exposes fail to packages outside handlers, such as the router's
// fallback routes.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response with the given HTTP status code.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 for operations that succeed without a body.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
