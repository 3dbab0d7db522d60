package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fallback := slog.New(slog.NewTextHandler(&buf, nil))

	assert.Same(t, fallback, FromContext(context.Background(), fallback))
	assert.NotNil(t, FromContext(context.Background(), nil), "no-op logger")

	scoped := fallback.With("request_id", "abc")
	ctx := WithLogger(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx, fallback))
}

func TestMultiHandlerFansOutByLevel(t *testing.T) {
	t.Parallel()

	var debug, errorsOnly bytes.Buffer
	logger := slog.New(MultiHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		nil,
		slog.NewTextHandler(&errorsOnly, &slog.HandlerOptions{Level: slog.LevelError}),
	)).With("component", "test")

	logger.Info("session saved")
	logger.Error("session store down")

	assert.Contains(t, debug.String(), "session saved")
	assert.Contains(t, debug.String(), "session store down")
	assert.NotContains(t, errorsOnly.String(), "session saved")
	assert.Contains(t, errorsOnly.String(), "component=test", "attrs reach every handler")
}

func TestMultiHandlerWithoutHandlers(t *testing.T) {
	t.Parallel()

	assert.False(t, MultiHandler(nil).Enabled(context.Background(), slog.LevelError))
}
