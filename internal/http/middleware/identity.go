// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the acting user for each request. Single-user
// deployments pin the id via configuration; multi-user callers send it in
// the X-User-ID header. The resolved id feeds three consumers: the edge
// rate limiter (bucket key), the access log, and the repository's
// context-based identity provider.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ePaysa-ind/milo-sub005/internal/identity"
	"github.com/ePaysa-ind/milo-sub005/internal/sysutil"
)

const (
	// ctxKeyUserID is the Gin context key under which the resolved user id
	// is stored for later middleware (rate limiting, logging).
	ctxKeyUserID = "userID"
	// HeaderUserID carries the caller-supplied user id.
	HeaderUserID = "X-User-ID"
)

// Identity returns a middleware that resolves the acting user id: the
// X-User-ID header when present, otherwise fallbackUserID (empty disables
// the fallback).
//
// When an id resolves, it is stored in the Gin context under "userID" and
// deposited in the request context via identity.WithUser so the
// repository's Contextual provider can pick it up. When no id resolves the
// request proceeds anonymously; operations that must attribute a write then
// fail with 401 at the handler layer.
func Identity(fallbackUserID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := sysutil.FirstNonEmpty(strings.TrimSpace(c.GetHeader(HeaderUserID)), fallbackUserID)
		if uid != "" {
			c.Set(ctxKeyUserID, uid)
			c.Request = c.Request.WithContext(identity.WithUser(c.Request.Context(), uid))
		}
		c.Next()
	}
}
