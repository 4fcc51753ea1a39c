package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ePaysa-ind/milo-sub005/internal/config"
	"github.com/ePaysa-ind/milo-sub005/internal/domain"
	"github.com/ePaysa-ind/milo-sub005/internal/http/handlers"
)

// --- canned service so routes terminate without a store ---

type stubService struct{}

func (stubService) GetNudges(_ context.Context, _ int, _, _ string, _ bool) (*domain.NudgePage, error) {
	return &domain.NudgePage{Items: []domain.Nudge{{ID: "n1", Content: "hydrate"}}, LastID: "n1"}, nil
}

func (stubService) GetNudgeByID(_ context.Context, id string) (*domain.Nudge, error) {
	return &domain.Nudge{ID: id, Content: "hydrate", Active: true}, nil
}

func (stubService) CreateNudge(_ context.Context, n *domain.Nudge) (*domain.Nudge, error) {
	out := *n
	out.ID = "n-created"
	return &out, nil
}

func (stubService) UpdateNudge(context.Context, *domain.Nudge) error { return nil }

func (stubService) DeleteNudge(context.Context, string) error { return nil }

func (stubService) GetActiveNudges(context.Context, int) ([]domain.Nudge, error) {
	return []domain.Nudge{}, nil
}

func (stubService) MarkNudgeAsDelivered(context.Context, string) error { return nil }

func (stubService) MarkNudgeAsActedUpon(context.Context, string) error { return nil }

func (stubService) RecordNudgeFeedback(context.Context, string, float64, string) error { return nil }

func (stubService) GetNudgeStats(context.Context) *domain.NudgeStats { return &domain.NudgeStats{} }

func (stubService) GetUnreadNudgeCount(context.Context) int { return 0 }

func (stubService) GetNudgeTemplates(context.Context) ([]domain.NudgeTemplate, error) {
	return []domain.NudgeTemplate{}, nil
}

func (stubService) NudgesStream(context.Context, int, string, bool) <-chan []domain.Nudge {
	ch := make(chan []domain.Nudge)
	close(ch)
	return ch
}

func (stubService) PerformBatchOperations(context.Context, []domain.BatchOperation) error {
	return nil
}

func (stubService) ClearCache(context.Context) error { return nil }

// closeNotifyRecorder satisfies the CloseNotifier assertion gin's Stream
// helper makes on the response writer.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	done chan bool
}

func newCloseNotifyRecorder() *closeNotifyRecorder {
	return &closeNotifyRecorder{httptest.NewRecorder(), make(chan bool, 1)}
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.done }

func baseConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   50,
		CORS:        config.CORSConfig{AllowedOrigins: nil}, // allow-all branch
		Security:    config.SecurityConfig{EnableHSTS: false},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newEngine(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, stubService{}, cfg)
	return r
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newEngine(t, baseConfig())

	// /health works
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404 with the shared envelope
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	var er handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("404 envelope: %v (%s)", err, w.Body.String())
	}
	if er.Code != handlers.ErrCodeNotFound || er.RequestID == "" {
		t.Fatalf("unexpected 404 envelope: %+v", er)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
	er = handlers.ErrorResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != handlers.ErrCodeMethodNotAllowed {
		t.Fatalf("unexpected 405 envelope: %+v err=%v", er, err)
	}
}

func TestRegisterRoutes_CORSWithOrigins_EchoAndReject(t *testing.T) {
	cfg := baseConfig()
	cfg.CORS.AllowedOrigins = []string{"http://example.com"}
	r := newEngine(t, cfg)

	// Allowed origin is echoed back
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	// Unlisted origin is rejected by the CORS layer
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("unlisted origin expected 403, got %d", w.Code)
	}
}

func TestRegisterRoutes_MountsVersionedAPI(t *testing.T) {
	r := newEngine(t, baseConfig())

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodPost, "/api/v1/nudges", `{"content":"hydrate"}`, http.StatusCreated},
		{http.MethodGet, "/api/v1/nudges", "", http.StatusOK},
		{http.MethodGet, "/api/v1/nudges/active", "", http.StatusOK},
		{http.MethodGet, "/api/v1/nudges/templates", "", http.StatusOK},
		{http.MethodGet, "/api/v1/nudges/stats", "", http.StatusOK},
		{http.MethodGet, "/api/v1/nudges/unread-count", "", http.StatusOK},
		{http.MethodGet, "/api/v1/nudges/n1", "", http.StatusOK},
		{http.MethodPut, "/api/v1/nudges/n1", `{"content":"walk"}`, http.StatusNoContent},
		{http.MethodDelete, "/api/v1/nudges/n1", "", http.StatusNoContent},
		{http.MethodPost, "/api/v1/nudges/n1/delivered", "", http.StatusNoContent},
		{http.MethodPost, "/api/v1/nudges/n1/acted", "", http.StatusNoContent},
		{http.MethodPost, "/api/v1/nudges/n1/feedback", `{"rating":4}`, http.StatusNoContent},
		{http.MethodPost, "/api/v1/nudges/batch", `{"operations":[{"kind":"delete","id":"n1"}]}`, http.StatusNoContent},
		{http.MethodDelete, "/api/v1/cache", "", http.StatusNoContent},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		var req *http.Request
		if tc.body == "" {
			req = httptest.NewRequest(tc.method, tc.path, nil)
		} else {
			req = httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s %s = %d, want %d (body %s)", tc.method, tc.path, w.Code, tc.want, w.Body.String())
		}
	}
}

func TestRegisterRoutes_StreamBypassesGzip(t *testing.T) {
	r := newEngine(t, baseConfig())

	w := newCloseNotifyRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/nudges/stream", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /nudges/stream = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	// The SSE path is excluded from compression so events flush uncompressed.
	if ce := w.Header().Get("Content-Encoding"); ce == "gzip" {
		t.Fatalf("stream response must not be gzip-compressed")
	}
}

func TestRegisterRoutes_SwaggerToggle(t *testing.T) {
	// Disabled (default): not mounted
	r := newEngine(t, baseConfig())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled: expected 404, got %d", w.Code)
	}

	// Enabled: UI served
	cfg := baseConfig()
	cfg.SwaggerEnabled = true
	r = newEngine(t, cfg)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("swagger enabled: expected 200, got %d", w.Code)
	}
	if !strings.Contains(strings.ToLower(w.Body.String()), "swagger") {
		t.Fatalf("swagger UI body looks wrong: %q", w.Body.String()[:min(120, w.Body.Len())])
	}
}

// Smoke test that a request traverses tracing, correlation, logging,
// compression, metrics, identity, rate limiting, and security headers.
func TestPipeline_Smoke(t *testing.T) {
	cfg := baseConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour} // only set on https
	r := newEngine(t, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	// RequestID header should be present (from RequestID middleware)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	// Security baseline applies to every response
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	// HSTS must not appear on plain HTTP even when enabled
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("unexpected HSTS on plain http: %q", got)
	}
	// Compression negotiated for a non-excluded path
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func Test_joinBasePath(t *testing.T) {
	cases := []struct {
		base, route, want string
	}{
		{"", "/nudges/stream", "/nudges/stream"},
		{"/", "/nudges/stream", "/nudges/stream"},
		{"/api/v1", "/nudges/stream", "/api/v1/nudges/stream"},
	}
	for _, tc := range cases {
		if got := joinBasePath(tc.base, tc.route); got != tc.want {
			t.Fatalf("joinBasePath(%q, %q) = %q, want %q", tc.base, tc.route, got, tc.want)
		}
	}
}
