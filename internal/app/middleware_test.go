package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/oxiliere/oxutils/internal/testing/guard"
)

func TestMiddlewareStackSkipsRateLimitInTestMode(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())

	cfg := &Config{AppEnv: "development", RateLimitPerMinute: 1}
	stack := MiddlewareStack(MiddlewareConfig{Config: cfg})

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}

	// With the limiter active a second request within the minute would be
	// rejected; in test mode both pass.
	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestMiddlewareStackSetsSecureHeaders(t *testing.T) {
	RefreshTestMode()

	stack := MiddlewareStack(MiddlewareConfig{Config: &Config{AppEnv: "development"}})

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
