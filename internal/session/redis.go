package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrFailedToParseRedisURL = errors.New("failed to parse redis connection string")
	ErrRedisNotReady         = errors.New("redis did not become ready within the given time period")
)

// RedisConfig describes the Redis connection. URL, when set, takes
// precedence over host, port, db and credentials.
type RedisConfig struct {
	Host     string
	Port     int
	DB       int
	Username string
	Password string
	URL      string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int

	RetryAttempts  int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:           "127.0.0.1",
		Port:           6379,
		DB:             0,
		RetryAttempts:  3,
		RetryInterval:  time.Second,
		ConnectTimeout: 30 * time.Second,
	}
}

func (c RedisConfig) options() (*redis.Options, error) {
	if c.URL != "" {
		opts, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, errors.Join(ErrFailedToParseRedisURL, err)
		}
		return opts, nil
	}

	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 6379
	}

	return &redis.Options{
		Addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		DB:           c.DB,
		Username:     c.Username,
		Password:     c.Password,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     c.PoolSize,
	}, nil
}

// ConnectRedis creates a client and pings it, retrying up to
// cfg.RetryAttempts times within cfg.ConnectTimeout.
func ConnectRedis(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if logger == nil {
		logger = discardLogger()
	}

	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}

	hook := newRedisEventHook(logger)
	opts.OnConnect = hook.onConnect

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	attempts := max(cfg.RetryAttempts, 1)
	var lastErr error
	for attempt := range attempts {
		client := redis.NewClient(opts)
		client.AddHook(hook)

		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			logger.Debug("redis client ready", "addr", opts.Addr, "db", opts.DB)
			return client, nil
		}

		_ = client.Close()
		logger.Warn("redis ping failed", "attempt", attempt+1, "error", lastErr)

		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, errors.Join(ErrRedisNotReady, lastErr)
}

// RedisStore keeps sessions in Redis as JSON strings.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	opts   storeOptions
}

// NewRedisStore connects to Redis and returns a store. A positive ttl is
// applied with EXPIRE after every save.
func NewRedisStore(ctx context.Context, cfg RedisConfig, ttl time.Duration, opts ...StoreOption) (*RedisStore, error) {
	o := applyStoreOptions(opts)
	client, err := ConnectRedis(ctx, cfg, o.logger.With("component", "redis"))
	if err != nil {
		return nil, err
	}
	return NewRedisStoreFromClient(client, ttl, opts...), nil
}

// NewRedisStoreFromClient wraps an existing client, such as a cluster or
// failover client. The store takes ownership of the client and closes it on
// Close.
func NewRedisStoreFromClient(client redis.UniversalClient, ttl time.Duration, opts ...StoreOption) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, opts: applyStoreOptions(opts)}
}

func (s *RedisStore) Load(ctx context.Context, id string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.opTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.opTimeout)
	defer cancel()

	key := s.key(id)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, value, 0)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.opTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis healthcheck failed: %w", err)
	}
	return nil
}

// Client returns the underlying client.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.opts.logger.Debug("redis connection ended", "event", "end")
	return err
}

func (s *RedisStore) key(id string) string {
	return s.opts.keyPrefix + id
}

// redisEventHook logs connection lifecycle events. Dials happen per pool
// connection, so "dial" is logged for each new connection.
type redisEventHook struct {
	logger *slog.Logger
}

func newRedisEventHook(logger *slog.Logger) *redisEventHook {
	return &redisEventHook{logger: logger}
}

func (h *redisEventHook) onConnect(_ context.Context, _ *redis.Conn) error {
	h.logger.Debug("redis connection ready", "event", "ready")
	return nil
}

func (h *redisEventHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		h.logger.Debug("redis dialing", "event", "dial", "addr", addr)

		conn, err := next(ctx, network, addr)
		if err != nil {
			h.logger.Warn("redis dial failed", "event", "error", "addr", addr, "error", err)
		}
		return conn, err
	}
}

func (h *redisEventHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			h.logger.Warn("redis command failed", "event", "error", "command", cmd.Name(), "error", err)
		}
		return err
	}
}

func (h *redisEventHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			h.logger.Warn("redis pipeline failed", "event", "error", "commands", len(cmds), "error", err)
		}
		return err
	}
}
