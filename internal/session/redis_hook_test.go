package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisEventHook_LogsEveryDialAsDial(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	hook := newRedisEventHook(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	dialErr := errors.New("connection refused")
	dial := hook.DialHook(func(context.Context, string, string) (net.Conn, error) {
		return nil, dialErr
	})

	for range 3 {
		_, err := dial(context.Background(), "tcp", "127.0.0.1:6379")
		require.ErrorIs(t, err, dialErr)
	}

	events := make([]string, 0)
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		events = append(events, entry["event"].(string))
	}
	assert.Equal(t, []string{"dial", "error", "dial", "error", "dial", "error"}, events)
}
