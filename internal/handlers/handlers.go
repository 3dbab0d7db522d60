package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gitshopapp/sessionkit/internal/config"
	"github.com/gitshopapp/sessionkit/internal/logging"
	"github.com/gitshopapp/sessionkit/internal/session"
)

// Handlers provides the HTTP handlers of the session demo server.
type Handlers struct {
	config   *config.Config
	store    session.Store
	sessions *session.Controller
	logger   *slog.Logger
}

type Dependencies struct {
	Config   *config.Config
	Store    session.Store
	Sessions *session.Controller
	Logger   *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("handlers dependencies: store is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("handlers dependencies: sessions is required")
	}

	return &Handlers{
		config:   deps.Config,
		store:    deps.Store,
		sessions: deps.Sessions,
		logger:   logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if pinger, ok := h.store.(session.Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			logger.Error("session store health check failed", "error", err)
			http.Error(w, "Session store unhealthy", http.StatusServiceUnavailable)
			return
		}
	}

	writeJSON(w, logger, http.StatusOK, map[string]string{
		"status": "healthy",
		"store":  h.config.Store.Provider,
	})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
