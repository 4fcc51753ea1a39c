// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the correlation and logging backbone of the request
// pipeline:
//
//   - RequestID() ensures every request carries a stable correlation ID
//     (propagated via X-Request-ID and stored in the Gin context).
//   - RequestLogger() emits one structured access log per request with
//     request/response metadata (latency, status, sizes) while scrubbing
//     obvious PII from query strings and header values. It also attaches a
//     request-scoped zerolog.Logger for handlers to enrich.
//   - Recovery() converts panics into JSON 500 responses while preserving
//     the correlation ID and emitting a stack trace to logs.
//   - LoggerFrom() retrieves the request-scoped logger inside handlers
//     (e.g., lg.Warn().Str("nudge_id", id).Msg("…")).
//
// Compose as RequestID() → RequestLogger() → Recovery() so panics and errors
// are logged with the correlation ID. Bodies are never logged; query strings
// are redacted and capped. Authorization, Cookie and Set-Cookie are always
// fully masked, and deployments add their own headers via RedactOptions (the
// router masks X-User-ID).
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey locates the correlation id in the Gin context.
	requestIDKey = "requestID"
	// requestIDHeader carries the correlation id on the wire.
	requestIDHeader = "X-Request-ID"
	// loggerKey locates the request-scoped logger in the Gin context.
	loggerKey = "logger"
	// maxQueryLogLength caps how much of the raw query string is logged.
	maxQueryLogLength = 2048
)

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// scrubbers run in order. UUIDs go first so the loose phone pattern cannot
// match the digit runs inside an id.
var scrubbers = []struct {
	re   *regexp.Regexp
	mark string
}{
	{uuidRE, "[REDACTED:id]"},
	{emailRE, "[REDACTED:email]"},
	{phoneRE, "[REDACTED:phone]"},
}

// redact scrubs identifier-like substrings (ids, emails, phone numbers)
// from s.
func redact(s string) string {
	if s == "" {
		return s
	}
	for _, sc := range scrubbers {
		s = sc.re.ReplaceAllString(s, sc.mark)
	}
	return s
}

// requestIDFor reuses the caller-supplied correlation id when present and
// mints a UUIDv4 otherwise.
func requestIDFor(c *gin.Context) string {
	if rid := c.GetHeader(requestIDHeader); rid != "" {
		return rid
	}
	return uuid.NewString()
}

// RequestID attaches (or propagates) a correlation identifier per request.
// The id is written back to the response header and stored in the Gin
// context under "requestID".
//
// Place this first in the chain so every later middleware and handler can
// rely on the ID for logging and error responses.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := requestIDFor(c)
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RedactOptions configures additional scrub behavior for RequestLogger.
//
// MaskHeaders names extra HTTP headers whose values are fully replaced with
// "[REDACTED]". Matching is case-insensitive and merged with the built-in
// sensitive headers (Authorization, Cookie, Set-Cookie).
type RedactOptions struct {
	MaskHeaders []string
}

// alwaysMasked headers never reach the logs regardless of RedactOptions.
var alwaysMasked = []string{"authorization", "cookie", "set-cookie"}

func maskSet(extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(alwaysMasked)+len(extra))
	for _, h := range alwaysMasked {
		set[h] = struct{}{}
	}
	for _, h := range extra {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			set[h] = struct{}{}
		}
	}
	return set
}

// scrubHeaders flattens hdr into a loggable map, fully masking names in
// masked and regex-scrubbing the rest.
func scrubHeaders(hdr http.Header, masked map[string]struct{}) map[string]string {
	out := make(map[string]string, len(hdr))
	for name, vals := range hdr {
		if _, hide := masked[strings.ToLower(name)]; hide {
			out[name] = "[REDACTED]"
			continue
		}
		out[name] = redact(strings.Join(vals, ", "))
	}
	return out
}

// RequestLogger returns a Gin middleware that writes one structured,
// PII-scrubbed access log per request and attaches a request-scoped
// zerolog.Logger to the Gin context.
//
// Behavior:
//   - Logs method, route path, redacted query, status, response size,
//     latency, and request headers (masked or regex-scrubbed).
//   - Emits at INFO for 2xx/3xx, WARN for 4xx, ERROR for 5xx or when the
//     Gin context collected errors.
//   - Stores the request-scoped logger under the "logger" key so downstream
//     code can emit enriched logs tied to the request (see LoggerFrom).
func RequestLogger(opts RedactOptions) gin.HandlerFunc {
	masked := maskSet(opts.MaskHeaders)

	return func(c *gin.Context) {
		start := time.Now()
		rid, _ := c.Get(requestIDKey)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path // unmatched route, logged as the raw path
		}

		// Request headers cannot change mid-request; scrub them up front.
		safeHeaders := scrubHeaders(c.Request.Header, masked)
		safeQuery := truncate(redact(c.Request.URL.RawQuery), maxQueryLogLength)

		// Request-scoped logger for handlers and the repository layer.
		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("query", safeQuery).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		accessEvent(&l, c).
			Int("status", c.Writer.Status()).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}

// accessEvent picks the level for the access line: errors collected by Gin
// or a 5xx status log at error, 4xx at warn, everything else at info.
func accessEvent(l *zerolog.Logger, c *gin.Context) *zerolog.Event {
	if len(c.Errors) > 0 {
		return l.Error().Str("errors", c.Errors.String())
	}
	switch status := c.Writer.Status(); {
	case status >= http.StatusInternalServerError:
		return l.Error()
	case status >= http.StatusBadRequest:
		return l.Warn()
	}
	return l.Info()
}

// Recovery intercepts panics, logs the panic value with a stack trace and
// the correlation id, and answers with the standardized JSON 500 envelope
// when nothing has been written yet.
//
// Place this after RequestLogger() so the panic is captured with structured
// context.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid, _ := c.Get(requestIDKey)
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", asString(rid)).
				Msg("panic recovered")
			panicResponse(c, asString(rid))
		}()
		c.Next()
	}
}

// panicResponse emits the standard JSON 500. When a handler already started
// the response only the status is forced, leaving the partial body alone.
func panicResponse(c *gin.Context, rid string) {
	if c.Writer.Written() {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Header("Content-Type", "application/json")
	c.Header(requestIDHeader, rid)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"request_id": rid,
		"code":       "internal_error",
		"message":    "internal server error",
	})
}

// LoggerFrom returns the request-scoped zerolog.Logger, or a fallback
// without request fields when RequestLogger did not run. The result is
// never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, isLogger := v.(*zerolog.Logger); isLogger {
			return lg
		}
	}
	fallback := log.With().Logger()
	return &fallback
}

// asString unwraps a context value as a string, "" for anything else.
func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// truncate cuts s to max bytes and appends an ellipsis; max <= 0 disables
// the cap. Byte-level cutting is fine for log output.
func truncate(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max] + "…"
	}
	return s
}
