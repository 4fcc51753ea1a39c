// Package httpapi wires the HTTP transport (Gin) to the nudge repository,
// middleware, and route handlers. Cross-cutting concerns live here: tracing,
// correlation IDs, logging/redaction, panic recovery, metrics, compression,
// CORS, security headers, identity resolution, and edge rate limiting.
//
// The ordering of middleware is deliberate. Observability wraps everything,
// recovery sits below the logger so panics are logged with a request id, and
// the limiter runs after identity resolution so buckets key on the acting
// user rather than the socket.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ePaysa-ind/milo-sub005/docs"
	"github.com/ePaysa-ind/milo-sub005/internal/config"
	"github.com/ePaysa-ind/milo-sub005/internal/http/handlers"
	"github.com/ePaysa-ind/milo-sub005/internal/http/middleware"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine, then mounts the versioned public API under the configured base
// path.
//
// Middleware pipeline, outermost first:
//  1. OpenTelemetry tracing
//  2. Request id generation/propagation
//  3. Structured logging with PII scrubbing (X-User-ID masked)
//  4. Panic recovery into the JSON error envelope
//  5. Request body cap
//  6. Gzip (SSE stream and /metrics excluded)
//  7. Prometheus instrumentation
//  8. Identity resolution for limiter keys and the data layer
//  9. Per-user/IP token-bucket limiter
//  10. CORS posture and security headers
func RegisterRoutes(r *gin.Engine, svc handlers.NudgeService, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())

	// User ids are attribution data, not log payload, so the identity
	// header is masked.
	r.Use(middleware.RequestLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderUserID},
	}))

	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	// The SSE stream must flush each event immediately and /metrics
	// negotiates its own encoding, so both skip compression.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		joinBasePath(cfg.APIBasePath, "/nudges/stream"),
		"/metrics",
	})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.Identity(cfg.DefaultUserID))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	applyCORS(r, cfg.CORS.AllowedOrigins)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Unmatched routes and methods still answer with the shared envelope.
	r.NoRoute(routeNotFound)
	r.NoMethod(methodNotAllowed)

	r.GET("/health", healthcheck)

	// OpenAPI documentation (opt-in)
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Nudges
		api.POST("/nudges", h.CreateNudge)
		api.GET("/nudges", h.ListNudges)
		api.GET("/nudges/active", h.ListActiveNudges)
		api.GET("/nudges/templates", h.ListTemplates)
		api.GET("/nudges/stats", h.GetStats)
		api.GET("/nudges/unread-count", h.GetUnreadCount)
		api.GET("/nudges/stream", h.StreamNudges)
		api.GET("/nudges/:id", h.GetNudge)
		api.PUT("/nudges/:id", h.UpdateNudge)
		api.DELETE("/nudges/:id", h.DeleteNudge)

		// Engagement
		api.POST("/nudges/:id/delivered", h.MarkDelivered)
		api.POST("/nudges/:id/acted", h.MarkActedUpon)
		api.POST("/nudges/:id/feedback", h.RecordFeedback)

		// Bulk writes
		api.POST("/nudges/batch", h.PerformBatch)

		// Maintenance
		api.DELETE("/cache", h.ClearCache)
	}
}

// corsPolicy is the CORS configuration shared by the wildcard and allowlist
// postures. Origins are filled in by applyCORS.
func corsPolicy() cors.Config {
	return cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
}

// applyCORS installs the CORS layer. Without an allowlist every origin is
// accepted and ACAO is stamped "*" on all responses, including ones with no
// Origin header (plain health checks and tests see the permissive posture
// too). With an allowlist, matching origins are echoed back alongside the
// gin-contrib/cors enforcement.
func applyCORS(r *gin.Engine, origins []string) {
	policy := corsPolicy()

	if len(origins) == 0 {
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		policy.AllowAllOrigins = true // credentials stay off with the wildcard
		r.Use(cors.New(policy))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	policy.AllowOrigins = origins
	r.Use(cors.New(policy))
}

func routeNotFound(c *gin.Context) {
	handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
}

func methodNotAllowed(c *gin.Context) {
	handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
}

func healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// limitBody caps request bodies at maxBytes via http.MaxBytesReader; body
// reads past the cap fail downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a route group at prefix. "" and "/" both mean the
// engine root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	switch prefix {
	case "", "/":
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinBasePath prefixes route with the API base path, treating "" and "/" as
// root.
func joinBasePath(base, route string) string {
	if base == "" || base == "/" {
		return route
	}
	return base + route
}
