package handlers

import (
	"errors"
	"net/http"

	"github.com/gitshopapp/sessionkit/internal/session"
)

// StatusError is an error that renders with a specific HTTP status.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return http.StatusText(e.Status)
	}
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func statusError(status int, err error) error {
	return &StatusError{Status: status, Err: err}
}

// Handle runs fn inside the session lifecycle and renders any error it or
// the session finalization returns. Headers set during finalization, such
// as the session cookie, are kept on error responses.
func (h *Handlers) Handle(fn session.HandlerFunc) http.Handler {
	wrapped := h.sessions.Wrap(fn)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := wrapped(w, r); err != nil {
			h.HandleError(w, r, err)
		}
	})
}

// HandleError writes err as a plain-text response. StatusError decides the
// status; anything else is a 500.
func (h *Handlers) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		status = statusErr.Status
	}

	logger := h.loggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	logger.Warn("request rejected", "status", status, "error", err)
	http.Error(w, statusErr.Error(), status)
}
