// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, which stamps a conservative set of
// hardening headers onto every response of a JSON API running behind a
// reverse proxy. There is no Content-Security-Policy here: the API serves
// no HTML, and a CSP would only complicate non-browser clients. HSTS is
// opt-in and emitted only when the request actually arrived over HTTPS.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// defaultHSTSMaxAge applies when SecurityOptions.HSTSMaxAge is unset.
const defaultHSTSMaxAge = 180 * 24 * time.Hour

// Header groups stamped by SecurityHeaders, split by the option that
// enables them. The baseline group is unconditional.
var (
	baselineHeaders = [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	policyHeaders = [][2]string{
		{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
		{"X-Permitted-Cross-Domain-Policies", "none"},
	}
	noStoreHeaders = [][2]string{
		{"Cache-Control", "no-store"},
		{"Pragma", "no-cache"},
		{"Expires", "0"},
	}
)

// SecurityOptions configures the headers emitted by SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests, never
	// on plain HTTP. Enable only when traffic is HTTPS end-to-end,
	// including between proxy and app.
	EnableHSTS bool

	// HSTSMaxAge is the HSTS lifetime; values <= 0 fall back to 180 days.
	HSTSMaxAge time.Duration

	// NoStore adds Cache-Control: no-store plus the legacy Pragma/Expires
	// pair so sensitive responses are never cached.
	NoStore bool

	// EnablePolicy sends browser feature policies (Permissions-Policy and
	// X-Permitted-Cross-Domain-Policies). They only affect user agents and
	// are harmless for non-browser clients.
	EnablePolicy bool
}

// SecurityHeaders returns a Gin middleware applying the configured header
// groups to each response. When the response already carries X-Request-ID
// it is also added to Access-Control-Expose-Headers so browser clients
// can read it. Safe to combine with the CORS and logging middlewares.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	secs := int(opt.HSTSMaxAge.Seconds())
	if secs <= 0 {
		secs = int(defaultHSTSMaxAge.Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(secs) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		setAll(h, baselineHeaders)
		if opt.EnablePolicy {
			setAll(h, policyHeaders)
		}
		if opt.NoStore {
			setAll(h, noStoreHeaders)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		exposeRequestID(h)

		c.Next()
	}
}

func setAll(h http.Header, pairs [][2]string) {
	for _, p := range pairs {
		h.Set(p[0], p[1])
	}
}

// exposeRequestID appends X-Request-ID to Access-Control-Expose-Headers
// when the response carries one, without clobbering headers some earlier
// middleware already exposed or listing the id twice.
func exposeRequestID(h http.Header) {
	if h.Get(requestIDHeader) == "" {
		return
	}
	const hdr = "Access-Control-Expose-Headers"
	switch cur := h.Get(hdr); {
	case cur == "":
		h.Set(hdr, requestIDHeader)
	case !strings.Contains(cur, requestIDHeader):
		h.Set(hdr, cur+", "+requestIDHeader)
	}
}

// isHTTPS reports whether the request used HTTPS, either directly or via
// a reverse proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
