package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gitshopapp/sessionkit/internal/config"
	"github.com/gitshopapp/sessionkit/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port, "session_store", s.cfg.Store.Provider, "session_key", s.cfg.Key)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet).Name("health")
	r.Handle("/", h.Handle(h.Views)).Methods(http.MethodGet).Name("views")
	r.Handle("/private", h.Handle(h.Private)).Methods(http.MethodGet).Name("private")

	sessionRouter := r.PathPrefix("/session").Subrouter()
	sessionRouter.Use(h.RequireSameOrigin)
	sessionRouter.Handle("", h.Handle(h.ShowSession)).Methods(http.MethodGet).Name("session.show")
	sessionRouter.Handle("", h.Handle(h.MergeSession)).Methods(http.MethodPost).Name("session.merge")
	sessionRouter.Handle("", h.Handle(h.ReplaceSession)).Methods(http.MethodPut).Name("session.replace")
	sessionRouter.Handle("", h.Handle(h.ClearSession)).Methods(http.MethodDelete).Name("session.clear")

	// mux does not run middleware for unmatched routes.
	r.NotFoundHandler = h.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	}))

	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
