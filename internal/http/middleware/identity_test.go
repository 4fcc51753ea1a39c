package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ePaysa-ind/milo-sub005/internal/identity"
)

// resolveUser runs one request through Identity(fallback) and reports what
// the Gin context and the request context ended up with.
func resolveUser(t *testing.T, fallback, header string) (ginUser string, ctxUser string, ctxOK bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Identity(fallback))
	r.GET("/whoami", func(c *gin.Context) {
		if v, ok := c.Get(ctxKeyUserID); ok {
			ginUser, _ = v.(string)
		}
		ctxUser, ctxOK = identity.UserFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set(HeaderUserID, header)
	}
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("request failed: %d", w.Code)
	}
	return ginUser, ctxUser, ctxOK
}

func TestIdentity_HeaderWinsOverFallback(t *testing.T) {
	ginUser, ctxUser, ok := resolveUser(t, "solo-user", "header-user")
	if ginUser != "header-user" {
		t.Fatalf("gin user = %q; want header-user", ginUser)
	}
	if !ok || ctxUser != "header-user" {
		t.Fatalf("request context user = %q ok=%v; want header-user", ctxUser, ok)
	}
}

func TestIdentity_FallbackWhenHeaderAbsent(t *testing.T) {
	ginUser, ctxUser, ok := resolveUser(t, "solo-user", "")
	if ginUser != "solo-user" {
		t.Fatalf("gin user = %q; want solo-user", ginUser)
	}
	if !ok || ctxUser != "solo-user" {
		t.Fatalf("request context user = %q ok=%v; want solo-user", ctxUser, ok)
	}
}

func TestIdentity_WhitespaceHeaderFallsBack(t *testing.T) {
	ginUser, _, _ := resolveUser(t, "solo-user", "   ")
	if ginUser != "solo-user" {
		t.Fatalf("gin user = %q; want fallback for whitespace header", ginUser)
	}
}

func TestIdentity_AnonymousProceeds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Identity(""))
	r.GET("/whoami", func(c *gin.Context) {
		if _, ok := c.Get(ctxKeyUserID); ok {
			t.Fatalf("gin context must not carry a user id for anonymous requests")
		}
		if _, ok := identity.UserFrom(c.Request.Context()); ok {
			t.Fatalf("request context must not carry a user id for anonymous requests")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("anonymous request must proceed, got %d", w.Code)
	}
}
