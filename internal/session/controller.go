package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gitshopapp/sessionkit/internal/cookie"
	"github.com/gitshopapp/sessionkit/internal/logging"
	"github.com/gitshopapp/sessionkit/internal/observability"
)

// DefaultKey is the cookie name used when none is configured.
const DefaultKey = "koa:sess"

// CookieJar reads and writes the session id cookie. *cookie.Jar implements it.
type CookieJar interface {
	Get(r *http.Request, name string, opts ...cookie.Option) (string, error)
	Set(w http.ResponseWriter, name, value string, opts ...cookie.Option) error
	Delete(w http.ResponseWriter, name string, opts ...cookie.Option) error
}

// HandlerFunc is an HTTP handler that reports failures to its caller.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ErrorHandler renders an error returned through Controller.Middleware.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Controller runs the session lifecycle around a handler: it resolves the
// session from the cookie and store before the handler runs and persists,
// deletes or ignores it afterwards.
type Controller struct {
	store        Store
	jar          CookieJar
	key          string
	cookieOpts   []cookie.Option
	logger       *slog.Logger
	newID        IDGenerator
	errorHandler ErrorHandler
}

type Option func(*Controller)

// WithKey sets the cookie name.
func WithKey(key string) Option {
	return func(c *Controller) {
		if key != "" {
			c.key = key
		}
	}
}

// WithCookieOptions applies opts to every read and write of the id cookie,
// on top of the jar's defaults.
func WithCookieOptions(opts ...cookie.Option) Option {
	return func(c *Controller) {
		c.cookieOpts = append(c.cookieOpts, opts...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithIDGenerator(gen IDGenerator) Option {
	return func(c *Controller) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithErrorHandler sets how Middleware renders errors. The default writes a
// plain 500.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Controller) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

func NewController(store Store, jar CookieJar, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		jar:    jar,
		key:    DefaultKey,
		logger: discardLogger(),
		newID:  NewID,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.errorHandler == nil {
		c.errorHandler = c.defaultErrorHandler
	}
	return c
}

// Key returns the cookie name.
func (c *Controller) Key() string {
	return c.key
}

// Wrap runs next with a session state in its request context. The session
// is finalized once next returns, fails or panics. A downstream error is
// returned joined with any finalization error; in that case the buffered
// body is dropped so the caller can render the error, while headers such as
// Set-Cookie are kept.
func (c *Controller) Wrap(next HandlerFunc) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) (err error) {
		ctx := r.Context()
		logger := logging.FromContext(ctx, c.logger).With("component", "session")

		st, err := c.resolve(r, logger)
		if err != nil {
			return err
		}

		buf := newBufferedWriter(w)
		r = r.WithContext(WithState(ctx, st))

		defer func() {
			rec := recover()
			finalizeErr := c.finalize(context.WithoutCancel(ctx), buf, st, logger)
			if rec != nil {
				buf.discard()
				if finalizeErr != nil {
					logger.Error("failed to finalize session", "error", finalizeErr)
				}
				panic(rec)
			}

			err = errors.Join(err, finalizeErr)
			if err != nil {
				buf.discard()
				return
			}
			err = buf.flush()
		}()

		return next(buf, r)
	}
}

// Middleware adapts Wrap to net/http. Errors go to the error handler.
func (c *Controller) Middleware(next http.Handler) http.Handler {
	wrapped := c.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		next.ServeHTTP(w, r)
		return nil
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := wrapped(w, r); err != nil {
			c.errorHandler(w, r, err)
		}
	})
}

func (c *Controller) resolve(r *http.Request, logger *slog.Logger) (*State, error) {
	ctx := r.Context()

	id, err := c.jar.Get(r, c.key, c.cookieOpts...)
	switch {
	case err == nil:
	case errors.Is(err, cookie.ErrNoKeys):
		return nil, err
	case errors.Is(err, cookie.ErrInvalidSignature):
		logger.Debug("ignoring session cookie with invalid signature")
		id = ""
	default:
		id = ""
	}

	if id != "" && ValidID(id) {
		if st := c.load(ctx, id, logger); st != nil {
			return st, nil
		}
	}

	id, err = c.newID()
	if err != nil {
		return nil, err
	}
	return newState(id, New(nil), nil), nil
}

// load returns nil when the id has no usable stored payload. Store and
// decode failures are logged and treated as a miss.
func (c *Controller) load(ctx context.Context, id string, logger *slog.Logger) *State {
	data, err := c.store.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("failed to load session", "error", err)
			c.count(ctx, "session.load_errors")
		}
		return nil
	}

	sess, err := Decode(data)
	if err != nil {
		logger.Warn("discarding corrupt session payload", "error", err)
		c.count(ctx, "session.corrupt")
		return nil
	}
	return newState(id, sess, data)
}

func (c *Controller) finalize(ctx context.Context, w http.ResponseWriter, st *State, logger *slog.Logger) error {
	switch st.Status() {
	case Untouched:
		return nil
	case Cleared:
		if err := c.jar.Delete(w, c.key, c.cookieOpts...); err != nil {
			return fmt.Errorf("failed to expire session cookie: %w", err)
		}
		if err := c.store.Delete(ctx, st.ID()); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		logger.Debug("session destroyed")
		c.count(ctx, "session.destroyed")
		return nil
	}

	sess := st.current
	if st.baseline == nil && sess.Len() == 0 {
		return nil
	}
	if !sess.Changed(st.baseline) {
		return nil
	}

	data, err := sess.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := c.store.Save(ctx, st.ID(), data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if err := c.jar.Set(w, c.key, st.ID(), c.cookieOpts...); err != nil {
		return fmt.Errorf("failed to set session cookie: %w", err)
	}
	logger.Debug("session saved", "fields", sess.Len())
	c.count(ctx, "session.saved")
	return nil
}

func (c *Controller) count(ctx context.Context, name string) {
	observability.MeterFromContext(ctx).Count(name, 1)
}

func (c *Controller) defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context(), c.logger).Error("session request failed", "error", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
