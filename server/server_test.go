package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitshopapp/sessionkit/internal/config"
	"github.com/gitshopapp/sessionkit/internal/cookie"
	"github.com/gitshopapp/sessionkit/internal/handlers"
	"github.com/gitshopapp/sessionkit/internal/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		Port:  "0",
		Key:   session.DefaultKey,
		Store: config.StoreConfig{Provider: session.ProviderMemory},
	}
	store, err := session.NewMemoryStore(0, "")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h, err := handlers.New(handlers.Dependencies{
		Config:   cfg,
		Store:    store,
		Sessions: session.NewController(store, cookie.NewJar([]string{"secret"})),
		Logger:   logger,
	})
	require.NoError(t, err)

	srv, err := New(cfg, logger, h)
	require.NoError(t, err)
	return srv
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		path   string
		origin string
		want   int
	}{
		{name: "views", method: http.MethodGet, path: "/", want: http.StatusOK},
		{name: "health", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "show session", method: http.MethodGet, path: "/session", want: http.StatusOK},
		{name: "clear session", method: http.MethodDelete, path: "/session", origin: "http://example.com", want: http.StatusNoContent},
		{name: "cross origin write", method: http.MethodPost, path: "/session", origin: "https://attacker.example", want: http.StatusForbidden},
		{name: "private", method: http.MethodGet, path: "/private", want: http.StatusUnauthorized},
		{name: "unknown", method: http.MethodGet, path: "/missing", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t)
			req := httptest.NewRequest(tt.method, "http://example.com"+tt.path, strings.NewReader("{}"))
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()

			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, nil)
	assert.Error(t, err)
}
