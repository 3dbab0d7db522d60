package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitshopapp/sessionkit/internal/db"
)

const (
	createSessionsTable = `CREATE TABLE IF NOT EXISTS sessions (
	id         text PRIMARY KEY,
	value      text NOT NULL,
	expires_at timestamptz
)`
	createSessionsExpiryIndex = `CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at)`

	loadSession = `SELECT value FROM sessions
WHERE id = $1 AND (expires_at IS NULL OR expires_at > now())`
	upsertSession = `INSERT INTO sessions (id, value, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`
	deleteSession        = `DELETE FROM sessions WHERE id = $1`
	deleteExpiredSession = `DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= now()`
)

// PostgresStore keeps sessions in a "sessions" table. Expired rows are
// invisible to Load and removed by DeleteExpired.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	opts storeOptions
}

// NewPostgresStore opens a pool and creates the sessions table if it does
// not exist.
func NewPostgresStore(ctx context.Context, cfg db.PoolConfig, ttl time.Duration, opts ...StoreOption) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := NewPostgresStoreFromPool(pool, ttl, opts...)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromPool wraps an existing pool. The store closes the pool on Close.
func NewPostgresStoreFromPool(pool *pgxpool.Pool, ttl time.Duration, opts ...StoreOption) *PostgresStore {
	return &PostgresStore{pool: pool, ttl: ttl, opts: applyStoreOptions(opts)}
}

// Migrate creates the sessions table and its expiry index.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range []string{createSessionsTable, createSessionsExpiryIndex} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate sessions table: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.opTimeout)
	defer cancel()

	var value string
	err := s.pool.QueryRow(ctx, loadSession, s.opts.keyPrefix+id).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres load: %w", err)
	}
	return []byte(value), nil
}

func (s *PostgresStore) Save(ctx context.Context, id string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.opTimeout)
	defer cancel()

	var expiresAt pgtype.Timestamptz
	if s.ttl > 0 {
		expiresAt = pgtype.Timestamptz{Time: time.Now().Add(s.ttl), Valid: true}
	}

	if _, err := s.pool.Exec(ctx, upsertSession, s.opts.keyPrefix+id, string(value), expiresAt); err != nil {
		return fmt.Errorf("postgres save: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.opTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, deleteSession, s.opts.keyPrefix+id); err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}

// DeleteExpired removes expired rows and returns how many were deleted.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, deleteExpiredSession)
	if err != nil {
		return 0, fmt.Errorf("postgres delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RunJanitor calls DeleteExpired every interval until ctx is done.
func (s *PostgresStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.DeleteExpired(ctx)
			if err != nil {
				s.opts.logger.Warn("failed to delete expired sessions", "error", err)
				continue
			}
			if n > 0 {
				s.opts.logger.Debug("deleted expired sessions", "count", n)
			}
		}
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
