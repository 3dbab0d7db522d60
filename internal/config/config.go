package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port      string     `env:"PORT" envDefault:"8080" yaml:"port"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO" yaml:"log_level"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" yaml:"log_format" validate:"omitempty,oneof=text json"`
	SentryDSN string     `env:"SENTRY_DSN" yaml:"sentry_dsn"`

	// ConfigFile is an optional YAML file whose values override the environment.
	ConfigFile string `env:"SESSION_CONFIG_FILE" yaml:"-"`

	// Key is the session cookie name.
	Key    string       `env:"SESSION_KEY" envDefault:"koa:sess" yaml:"key" validate:"required"`
	Store  StoreConfig  `yaml:"store"`
	Cookie CookieConfig `yaml:"cookie"`
}

type StoreConfig struct {
	Provider  string        `env:"SESSION_STORE_PROVIDER" envDefault:"memory" yaml:"provider" validate:"omitempty,oneof=memory redis postgres"`
	TTL       time.Duration `env:"SESSION_TTL" yaml:"ttl" validate:"min=0"`
	KeyPrefix string        `env:"SESSION_KEY_PREFIX" yaml:"key_prefix"`

	Host    string       `env:"REDIS_HOST" envDefault:"127.0.0.1" yaml:"host"`
	Port    int          `env:"REDIS_PORT" envDefault:"6379" yaml:"port" validate:"min=1,max=65535"`
	DB      int          `env:"REDIS_DB" envDefault:"0" yaml:"db" validate:"min=0"`
	URL     string       `env:"REDIS_URL" yaml:"url" validate:"omitempty,url"`
	Options RedisOptions `yaml:"options"`

	DatabaseURL     string           `env:"DATABASE_URL" yaml:"database_url" validate:"required_if=Provider postgres"`
	Postgres        PostgresSettings `yaml:"postgres"`
	CleanupInterval time.Duration    `env:"SESSION_CLEANUP_INTERVAL" envDefault:"10m" yaml:"cleanup_interval" validate:"min=0"`
}

type PostgresSettings struct {
	MaxConns        int32         `env:"POSTGRES_MAX_CONNS" envDefault:"10" yaml:"max_conns" validate:"min=0"`
	MinConns        int32         `env:"POSTGRES_MIN_CONNS" yaml:"min_conns" validate:"min=0"`
	MaxConnIdleTime time.Duration `env:"POSTGRES_MAX_CONN_IDLE_TIME" envDefault:"5m" yaml:"max_conn_idle_time" validate:"min=0"`
}

type RedisOptions struct {
	Username       string        `env:"REDIS_USERNAME" yaml:"username"`
	Password       string        `env:"REDIS_PASSWORD" yaml:"password"`
	DialTimeout    time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s" yaml:"dial_timeout"`
	ReadTimeout    time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s" yaml:"read_timeout"`
	WriteTimeout   time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s" yaml:"write_timeout"`
	PoolSize       int           `env:"REDIS_POOL_SIZE" envDefault:"10" yaml:"pool_size" validate:"min=0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3" yaml:"retry_attempts" validate:"min=0"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"1s" yaml:"retry_interval"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s" yaml:"connect_timeout"`
}

type CookieConfig struct {
	Secrets   []string      `env:"COOKIE_SECRETS" envSeparator:"," yaml:"secrets"`
	Signed    bool          `env:"COOKIE_SIGNED" envDefault:"true" yaml:"signed"`
	Overwrite bool          `env:"COOKIE_OVERWRITE" envDefault:"true" yaml:"overwrite"`
	HTTPOnly  bool          `env:"COOKIE_HTTP_ONLY" envDefault:"true" yaml:"httpOnly"`
	Secure    bool          `env:"COOKIE_SECURE" yaml:"secure"`
	MaxAge    time.Duration `env:"COOKIE_MAX_AGE" yaml:"maxAge" validate:"min=0"`
	Path      string        `env:"COOKIE_PATH" envDefault:"/" yaml:"path"`
	Domain    string        `env:"COOKIE_DOMAIN" yaml:"domain"`
	SameSite  string        `env:"COOKIE_SAME_SITE" envDefault:"lax" yaml:"sameSite" validate:"omitempty,oneof=lax strict none default"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if path := strings.TrimSpace(cfg.ConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadFile overlays the keys present in a YAML file onto c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	if c.Cookie.Signed && len(nonEmpty(c.Cookie.Secrets)) == 0 {
		return fmt.Errorf("COOKIE_SECRETS is required when COOKIE_SIGNED is true")
	}

	if strings.EqualFold(c.Cookie.SameSite, "none") && !c.Cookie.Secure {
		return fmt.Errorf("COOKIE_SAME_SITE=none requires COOKIE_SECURE=true")
	}

	return nil
}

// CookieMaxAge returns the configured cookie max age, falling back to the
// store TTL. Zero means a browser-session cookie.
func (c *Config) CookieMaxAge() time.Duration {
	if c.Cookie.MaxAge > 0 {
		return c.Cookie.MaxAge
	}
	return c.Store.TTL
}

// CookieSecrets returns the non-empty secrets, signing key first.
func (c *Config) CookieSecrets() []string {
	return nonEmpty(c.Cookie.Secrets)
}

func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(strings.TrimSpace(c.SameSite)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
