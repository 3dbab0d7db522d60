package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gitshopapp/sessionkit/internal/db"
)

// Store persists serialized sessions in an external key-value service. The
// session id is the key.
type Store interface {
	// Load returns the stored payload or ErrNotFound.
	Load(ctx context.Context, id string) ([]byte, error)
	// Save writes the payload and refreshes its expiry when a TTL is configured.
	Save(ctx context.Context, id string, value []byte) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Provider names accepted by NewStore.
const (
	ProviderMemory   = "memory"
	ProviderRedis    = "redis"
	ProviderPostgres = "postgres"
)

const defaultOpTimeout = 5 * time.Second

type Config struct {
	Provider  string
	TTL       time.Duration
	KeyPrefix string
	// OpTimeout bounds each store command. Defaults to 5s.
	OpTimeout time.Duration

	Redis RedisConfig

	Postgres db.PoolConfig

	Logger *slog.Logger
}

// NewStore builds the store selected by cfg.Provider.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Provider {
	case "", ProviderMemory:
		return NewMemoryStore(cfg.TTL, cfg.KeyPrefix)
	case ProviderRedis:
		return NewRedisStore(ctx, cfg.Redis, cfg.TTL,
			WithKeyPrefix(cfg.KeyPrefix),
			WithOpTimeout(cfg.OpTimeout),
			WithStoreLogger(cfg.Logger),
		)
	case ProviderPostgres:
		return NewPostgresStore(ctx, cfg.Postgres, cfg.TTL,
			WithKeyPrefix(cfg.KeyPrefix),
			WithOpTimeout(cfg.OpTimeout),
			WithStoreLogger(cfg.Logger),
		)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// StoreOption configures the network-backed stores.
type StoreOption func(*storeOptions)

type storeOptions struct {
	keyPrefix string
	opTimeout time.Duration
	logger    *slog.Logger
}

func WithKeyPrefix(prefix string) StoreOption {
	return func(o *storeOptions) {
		o.keyPrefix = prefix
	}
}

func WithOpTimeout(d time.Duration) StoreOption {
	return func(o *storeOptions) {
		if d > 0 {
			o.opTimeout = d
		}
	}
}

func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{
		opTimeout: defaultOpTimeout,
		logger:    discardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
