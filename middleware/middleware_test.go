package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	midsec "PPGate/middleware/security"
	"PPGate/tools/errs"
	toolsec "PPGate/tools/security"
)

type fixedVerifier struct{}

func (fixedVerifier) Verify(_ context.Context, credential string) (toolsec.Identity, error) {
	if credential != "good" {
		return toolsec.Identity{}, errs.ErrAuth
	}
	return toolsec.Identity{UserID: "u1", Username: "alice"}, nil
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	mgr := NewManager()
	mgr.Add(Origin("http://localhost:5173"))
	r := gin.New()
	r.Use(mgr.Use())
	return r
}

func TestOrigin(t *testing.T) {
	r := newEngine()
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("preflight: %d %v", w.Code, w.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("get: %d %v", w.Code, w.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("foreign origin echoed")
	}
}

func TestAuthRoutes(t *testing.T) {
	Manager().SetAuth(midsec.Middleware(midsec.Options{Verifier: fixedVerifier{}}))
	t.Cleanup(func() { Manager().SetAuth(nil) })

	r := newEngine()
	GET(r, "/me", func(c *gin.Context) {
		id, ok := midsec.IdentityFrom(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.String(http.StatusOK, id.Username)
	}, RouteOpt{IsAuth: true})
	POST(r, "/open", func(c *gin.Context) { c.String(http.StatusOK, "open") }, RouteOpt{})

	cases := []struct {
		name   string
		method string
		path   string
		cookie string
		code   int
	}{
		{"no cookie", http.MethodGet, "/me", "", http.StatusUnauthorized},
		{"bad cookie", http.MethodGet, "/me", "bad", http.StatusUnauthorized},
		{"good cookie", http.MethodGet, "/me", "good", http.StatusOK},
		{"open route", http.MethodPost, "/open", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "token", Value: tc.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.code {
				t.Fatalf("code = %d, want %d", w.Code, tc.code)
			}
		})
	}
}

func TestOptionalAuthLetsAnonymousThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/maybe", midsec.Middleware(midsec.Options{Verifier: fixedVerifier{}, Optional: true}), func(c *gin.Context) {
		if _, ok := midsec.IdentityFrom(c); ok {
			t.Error("identity set for anonymous request")
		}
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/maybe", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
}
