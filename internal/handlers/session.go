package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gitshopapp/sessionkit/internal/session"
)

const maxSessionBodyBytes = 64 << 10

var (
	errSessionCleared = errors.New("session has been cleared")
	errNotSignedIn    = errors.New("sign in required")
)

// Views counts page views in the session.
func (h *Handlers) Views(w http.ResponseWriter, r *http.Request) error {
	sess := session.Get(r.Context())
	if sess == nil {
		return statusError(http.StatusConflict, errSessionCleared)
	}

	views, _ := sess.GetInt("views")
	views++
	sess.Set("views", views)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err := fmt.Fprintf(w, "%d views\n", views)
	return err
}

// ShowSession returns the session fields as JSON without modifying them.
func (h *Handlers) ShowSession(w http.ResponseWriter, r *http.Request) error {
	st, ok := session.FromContext(r.Context())
	if !ok {
		return session.ErrNoState
	}

	sess := st.Session()
	writeJSON(w, h.loggerFromContext(r.Context()), http.StatusOK, map[string]any{
		"id":     st.ID(),
		"isNew":  sess.IsNew(),
		"fields": sess.Values(),
	})
	return nil
}

// MergeSession copies the fields of a JSON object body into the session.
func (h *Handlers) MergeSession(w http.ResponseWriter, r *http.Request) error {
	fields, err := decodeObject(r)
	if err != nil {
		return err
	}

	sess := session.Get(r.Context())
	if sess == nil {
		return statusError(http.StatusConflict, errSessionCleared)
	}
	for k, v := range fields {
		if session.IsReserved(k) {
			continue
		}
		sess.Set(k, v)
	}

	writeJSON(w, h.loggerFromContext(r.Context()), http.StatusOK, sess.Values())
	return nil
}

// ReplaceSession swaps the session for the JSON body. A null body clears it.
func (h *Handlers) ReplaceSession(w http.ResponseWriter, r *http.Request) error {
	var body any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSessionBodyBytes)).Decode(&body); err != nil {
		return statusError(http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
	}

	if err := session.Set(r.Context(), body); err != nil {
		if errors.Is(err, session.ErrInvalidValue) {
			return statusError(http.StatusUnprocessableEntity, err)
		}
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// ClearSession removes the session and expires its cookie.
func (h *Handlers) ClearSession(w http.ResponseWriter, r *http.Request) error {
	if err := session.Clear(r.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// Private records the attempt in the session and rejects callers without a
// "user" field. The attempt counter is persisted even though the response is
// an error.
func (h *Handlers) Private(w http.ResponseWriter, r *http.Request) error {
	sess := session.Get(r.Context())
	if sess == nil {
		return statusError(http.StatusUnauthorized, errNotSignedIn)
	}

	attempts, _ := sess.GetInt("attempts")
	sess.Set("attempts", attempts+1)

	user, ok := sess.GetString("user")
	if !ok || user == "" {
		return statusError(http.StatusUnauthorized, errNotSignedIn)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err := fmt.Fprintf(w, "hello %s\n", user)
	return err
}

func decodeObject(r *http.Request) (map[string]any, error) {
	var fields map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSessionBodyBytes)).Decode(&fields); err != nil {
		return nil, statusError(http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
	}
	if fields == nil {
		return nil, statusError(http.StatusBadRequest, errors.New("body must be a JSON object"))
	}
	return fields, nil
}
