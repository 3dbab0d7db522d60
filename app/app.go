package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/lmittmann/tint"

	"github.com/gitshopapp/sessionkit/internal/config"
	"github.com/gitshopapp/sessionkit/internal/cookie"
	"github.com/gitshopapp/sessionkit/internal/db"
	"github.com/gitshopapp/sessionkit/internal/handlers"
	"github.com/gitshopapp/sessionkit/internal/logging"
	"github.com/gitshopapp/sessionkit/internal/session"
)

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    session.Store
	Sessions *session.Controller
	Handlers *handlers.Handlers

	stopJanitor context.CancelFunc
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := initSentry(cfg); err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	store, err := session.NewStore(startupCtx, session.Config{
		Provider:    cfg.Store.Provider,
		TTL:         cfg.Store.TTL,
		KeyPrefix:   cfg.Store.KeyPrefix,
		Redis:       redisConfig(cfg),
		Postgres:    postgresConfig(cfg),
		Logger:      logger.With("component", "session_store"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	sessions := session.NewController(store, newCookieJar(cfg),
		session.WithKey(cfg.Key),
		session.WithLogger(logger),
	)

	h, err := handlers.New(handlers.Dependencies{
		Config:   cfg,
		Store:    store,
		Sessions: sessions,
		Logger:   logger,
	})
	if err != nil {
		closeStore(logger, store)
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Sessions: sessions,
		Handlers: h,
	}
	a.startJanitor()

	return a, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.stopJanitor != nil {
		a.stopJanitor()
	}
	if a.Store != nil {
		closeStore(a.Logger, a.Store)
	}
	sentry.Flush(2 * time.Second)
}

// startJanitor periodically purges expired rows when sessions live in Postgres.
// Redis and the memory store expire entries themselves.
func (a *App) startJanitor() {
	pg, ok := a.Store.(*session.PostgresStore)
	if !ok || a.Config.Store.CleanupInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.stopJanitor = cancel
	go pg.RunJanitor(ctx, a.Config.Store.CleanupInterval)
}

func redisConfig(cfg *config.Config) session.RedisConfig {
	return session.RedisConfig{
		Host:           cfg.Store.Host,
		Port:           cfg.Store.Port,
		DB:             cfg.Store.DB,
		URL:            cfg.Store.URL,
		Username:       cfg.Store.Options.Username,
		Password:       cfg.Store.Options.Password,
		DialTimeout:    cfg.Store.Options.DialTimeout,
		ReadTimeout:    cfg.Store.Options.ReadTimeout,
		WriteTimeout:   cfg.Store.Options.WriteTimeout,
		PoolSize:       cfg.Store.Options.PoolSize,
		RetryAttempts:  cfg.Store.Options.RetryAttempts,
		RetryInterval:  cfg.Store.Options.RetryInterval,
		ConnectTimeout: cfg.Store.Options.ConnectTimeout,
	}
}

func postgresConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:             cfg.Store.DatabaseURL,
		MaxConns:        cfg.Store.Postgres.MaxConns,
		MinConns:        cfg.Store.Postgres.MinConns,
		MaxConnIdleTime: cfg.Store.Postgres.MaxConnIdleTime,
	}
}

func newCookieJar(cfg *config.Config) *cookie.Jar {
	return cookie.NewJar(cfg.CookieSecrets(),
		cookie.WithSigned(cfg.Cookie.Signed),
		cookie.WithOverwrite(cfg.Cookie.Overwrite),
		cookie.WithHTTPOnly(cfg.Cookie.HTTPOnly),
		cookie.WithSecure(cfg.Cookie.Secure),
		cookie.WithMaxAge(cfg.CookieMaxAge()),
		cookie.WithPath(cfg.Cookie.Path),
		cookie.WithDomain(cfg.Cookie.Domain),
		cookie.WithSameSite(cfg.Cookie.SameSiteMode()),
	)
}

func initSentry(cfg *config.Config) error {
	if strings.TrimSpace(cfg.SentryDSN) == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:        cfg.SentryDSN,
		EnableLogs: true,
	}); err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var console slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		console = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	default:
		console = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}

	if strings.TrimSpace(cfg.SentryDSN) == "" {
		return slog.New(console)
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelInfo},
	}.NewSentryHandler(context.Background())
	return slog.New(logging.MultiHandler(console, sentryHandler))
}

func closeStore(logger *slog.Logger, store session.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil && logger != nil {
		logger.Warn("failed to close session store", "error", err)
	}
}
