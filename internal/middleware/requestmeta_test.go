package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/ratelimit-demo-go/internal/identity"
	"github.com/serroba/ratelimit-demo-go/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOutput struct {
	Body string `json:"body"`
}

func setupMetaAPI(t *testing.T, trust bool) (*chi.Mux, chan middleware.RequestMeta) {
	t.Helper()

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("Test", "1.0.0"))
	api.UseMiddleware(middleware.RequestMetaMiddleware(
		identity.Extractor{TrustForwardedFor: trust},
		func() string { return "generated-id" },
	))

	metas := make(chan middleware.RequestMeta, 1)

	huma.Get(api, "/test", func(ctx context.Context, _ *struct{}) (*testOutput, error) {
		meta, ok := middleware.RequestMetaFromContext(ctx)
		require.True(t, ok)
		metas <- meta

		return &testOutput{Body: "ok"}, nil
	})

	return router, metas
}

func TestRequestMeta(t *testing.T) {
	t.Run("generates request id when absent", func(t *testing.T) {
		router, metas := setupMetaAPI(t, true)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("User-Agent", "TestAgent/1.0")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		meta := <-metas
		assert.Equal(t, "generated-id", meta.RequestID)
		assert.Equal(t, "TestAgent/1.0", meta.UserAgent)
		assert.Equal(t, "generated-id", w.Header().Get(middleware.HeaderRequestID))
	})

	t.Run("reuses incoming request id", func(t *testing.T) {
		router, metas := setupMetaAPI(t, true)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(middleware.HeaderRequestID, "abc123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "abc123", (<-metas).RequestID)
		assert.Equal(t, "abc123", w.Header().Get(middleware.HeaderRequestID))
	})

	t.Run("replaces oversized request id", func(t *testing.T) {
		router, metas := setupMetaAPI(t, true)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(middleware.HeaderRequestID, strings.Repeat("x", 500))
		router.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "generated-id", (<-metas).RequestID)
	})

	t.Run("uses first forwarded-for address when trusted", func(t *testing.T) {
		router, metas := setupMetaAPI(t, true)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(identity.HeaderForwardedFor, "9.9.9.9, 10.0.0.1")
		router.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "9.9.9.9", (<-metas).ClientIP)
	})

	t.Run("falls back to peer address", func(t *testing.T) {
		router, metas := setupMetaAPI(t, false)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		req.Header.Set(identity.HeaderForwardedFor, "9.9.9.9")
		router.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "203.0.113.7", (<-metas).ClientIP)
	})
}
