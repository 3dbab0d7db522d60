package session_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitshopapp/sessionkit/internal/session"
)

func newRedisStore(t *testing.T, ttl time.Duration) *session.RedisStore {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	cfg := session.DefaultRedisConfig()
	cfg.URL = url
	cfg.RetryAttempts = 1

	store, err := session.NewRedisStore(context.Background(), cfg, ttl,
		session.WithKeyPrefix("sessionkit-test:"+t.Name()+":"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store := newRedisStore(t, 0)

	require.NoError(t, store.Ping(ctx))

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, store.Save(ctx, "id", []byte(`{"msg":"a;b"}`)))
	got, err := store.Load(ctx, "id")
	require.NoError(t, err)
	assert.Equal(t, `{"msg":"a;b"}`, string(got))

	ttl, err := store.Client().TTL(ctx, "sessionkit-test:"+t.Name()+":id").Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl, "no expiry without a ttl")

	require.NoError(t, store.Delete(ctx, "id"))
	_, err = store.Load(ctx, "id")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRedisStore_SaveRefreshesExpiry(t *testing.T) {
	ctx := context.Background()
	store := newRedisStore(t, time.Minute)

	require.NoError(t, store.Save(ctx, "id", []byte(`{}`)))
	t.Cleanup(func() { _ = store.Delete(ctx, "id") })

	ttl, err := store.Client().TTL(ctx, "sessionkit-test:"+t.Name()+":id").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisConfig_InvalidURL(t *testing.T) {
	t.Parallel()

	cfg := session.DefaultRedisConfig()
	cfg.URL = "://not-a-url"

	_, err := session.ConnectRedis(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, session.ErrFailedToParseRedisURL)
}

// recordingHook answers commands in-process and records what was sent, so
// the store can be exercised without a Redis server.
type recordingHook struct {
	mu       sync.Mutex
	commands []string
	batches  [][]string
	respond  func(ctx context.Context, cmd redis.Cmder) error
}

func (h *recordingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *recordingHook) ProcessHook(_ redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.mu.Lock()
		h.commands = append(h.commands, cmd.Name())
		h.mu.Unlock()
		if h.respond != nil {
			return h.respond(ctx, cmd)
		}
		return nil
	}
}

func (h *recordingHook) ProcessPipelineHook(_ redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(_ context.Context, cmds []redis.Cmder) error {
		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		h.mu.Lock()
		h.batches = append(h.batches, names)
		h.mu.Unlock()
		return nil
	}
}

func newRecordedRedisStore(t *testing.T, ttl time.Duration, hook *recordingHook, opts ...session.StoreOption) *session.RedisStore {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(hook)
	store := session.NewRedisStoreFromClient(client, ttl, opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStore_SaveSendsSetAndExpireInOneTransaction(t *testing.T) {
	t.Parallel()

	hook := &recordingHook{}
	store := newRecordedRedisStore(t, time.Minute, hook)

	require.NoError(t, store.Save(context.Background(), "id", []byte(`{"a":1}`)))
	require.NoError(t, store.Save(context.Background(), "id", []byte(`{"a":2}`)))

	require.Len(t, hook.batches, 2)
	for _, batch := range hook.batches {
		assert.Equal(t, []string{"multi", "set", "expire", "exec"}, batch)
	}
}

func TestRedisStore_SaveWithoutTTLSkipsExpire(t *testing.T) {
	t.Parallel()

	hook := &recordingHook{}
	store := newRecordedRedisStore(t, 0, hook)

	require.NoError(t, store.Save(context.Background(), "id", []byte(`{}`)))

	require.Len(t, hook.batches, 1)
	assert.Equal(t, []string{"multi", "set", "exec"}, hook.batches[0])
}

func TestRedisStore_LoadMapsNilToNotFound(t *testing.T) {
	t.Parallel()

	hook := &recordingHook{respond: func(_ context.Context, cmd redis.Cmder) error {
		cmd.SetErr(redis.Nil)
		return redis.Nil
	}}
	store := newRecordedRedisStore(t, 0, hook)

	_, err := store.Load(context.Background(), "id")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, []string{"get"}, hook.commands)
}

func TestRedisStore_PingIsBoundedByOpTimeout(t *testing.T) {
	t.Parallel()

	hook := &recordingHook{respond: func(ctx context.Context, _ redis.Cmder) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	store := newRecordedRedisStore(t, 0, hook, session.WithOpTimeout(20*time.Millisecond))

	start := time.Now()
	err := store.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
