package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Port           int      `yaml:"port" env:"PORT"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	// MediaURL prefixes relative avatar paths when absolute URLs are rendered.
	MediaURL        string        `yaml:"media_url" env:"MEDIA_URL"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	DSN         string `yaml:"url" env:"URL"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	AccessLifetime  time.Duration `yaml:"access_lifetime" env:"ACCESS_LIFETIME"`
	RefreshLifetime time.Duration `yaml:"refresh_lifetime" env:"REFRESH_LIFETIME"`
	PasswordHistory int           `yaml:"password_history" env:"PASSWORD_HISTORY"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort     int    `yaml:"smtp_port" env:"SMTP_PORT"`
	SMTPUser     string `yaml:"smtp_user" env:"SMTP_USER"`
	SMTPPassword string `yaml:"smtp_password" env:"SMTP_PASSWORD"`
	FromEmail    string `yaml:"from_email" env:"FROM_EMAIL"`
	SendAttempts uint   `yaml:"send_attempts" env:"SEND_ATTEMPTS"`
}

type EmailChangeConfig struct {
	ExpireMinutes int           `yaml:"expire_minutes" env:"EXPIRE_MINUTES"`
	AttemptLimit  int           `yaml:"attempt_limit" env:"ATTEMPT_LIMIT"`
	FEBaseURL     string        `yaml:"fe_base_url" env:"FE_BASE_URL"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

func (c EmailChangeConfig) TTL() time.Duration {
	return time.Duration(c.ExpireMinutes) * time.Minute
}

type OutboxConfig struct {
	RelayEnabled      bool          `yaml:"relay_enabled" env:"RELAY_ENABLED"`
	PollInterval      time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	BatchSize         int           `yaml:"batch_size" env:"BATCH_SIZE"`
	LockTTL           time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`
	MaxAttempts       int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	MaxBackoff        time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
	SingleActive      bool          `yaml:"single_active" env:"SINGLE_ACTIVE"`
	DispatchTimeout   time.Duration `yaml:"dispatch_timeout" env:"DISPATCH_TIMEOUT"`
	CleanerEnabled    bool          `yaml:"cleaner_enabled" env:"CLEANER_ENABLED"`
	CleanerInterval   time.Duration `yaml:"cleaner_interval" env:"CLEANER_INTERVAL"`
	CleanerRetention  time.Duration `yaml:"cleaner_retention" env:"CLEANER_RETENTION"`
	LastErrorMaxBytes int           `yaml:"last_error_max_bytes" env:"LAST_ERROR_MAX_BYTES"`
}

type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Rate uses the limiter format, e.g. "100-M" or "10-S".
	Rate     string `yaml:"rate" env:"RATE"`
	Store    string `yaml:"store" env:"STORE"`
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
}

func (r *RateLimitConfig) Validate() error {
	if r.Store != "memory" && r.Store != "redis" {
		return fmt.Errorf("rate limit store must be 'memory' or 'redis', got %q", r.Store)
	}
	if r.Store == "redis" && r.RedisURL == "" {
		return errors.New("rate limit redis_url is required when store is 'redis'")
	}
	return nil
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type Config struct {
	Server      ServerConfig      `yaml:"server" envPrefix:"SERVER_"`
	Database    DatabaseConfig    `yaml:"database" envPrefix:"DATABASE_"`
	Auth        AuthConfig        `yaml:"auth" envPrefix:"AUTH_"`
	Email       EmailConfig       `yaml:"email" envPrefix:"EMAIL_"`
	EmailChange EmailChangeConfig `yaml:"email_change" envPrefix:"EMAIL_CHANGE_"`
	Outbox      OutboxConfig      `yaml:"outbox" envPrefix:"OUTBOX_"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Metrics     MetricsConfig     `yaml:"metrics" envPrefix:"METRICS_"`
	Log         LogConfig         `yaml:"log" envPrefix:"LOG_"`
}

// Load decodes the yaml file at path (a missing file is allowed), applies
// .env files and RICAUTH_* environment overrides, then fills defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := loadEnvFiles(".env", ".env.local"); err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "RICAUTH_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(files ...string) error {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MediaURL == "" {
		c.Server.MediaURL = "/media/"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Auth.AccessLifetime == 0 {
		c.Auth.AccessLifetime = time.Hour
	}
	if c.Auth.RefreshLifetime == 0 {
		c.Auth.RefreshLifetime = 24 * time.Hour
	}
	if c.Auth.PasswordHistory == 0 {
		c.Auth.PasswordHistory = 5
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Email.SendAttempts == 0 {
		c.Email.SendAttempts = 3
	}
	if c.EmailChange.ExpireMinutes == 0 {
		c.EmailChange.ExpireMinutes = 30
	}
	if c.EmailChange.AttemptLimit == 0 {
		c.EmailChange.AttemptLimit = 5
	}
	if c.EmailChange.SweepInterval == 0 {
		c.EmailChange.SweepInterval = time.Minute
	}
	c.EmailChange.FEBaseURL = strings.TrimRight(c.EmailChange.FEBaseURL, "/")
	if c.Outbox.PollInterval == 0 {
		c.Outbox.PollInterval = time.Second
	}
	if c.Outbox.MaxAttempts == 0 {
		c.Outbox.MaxAttempts = 10
	}
	if c.Outbox.CleanerInterval == 0 {
		c.Outbox.CleanerInterval = time.Hour
	}
	if c.Outbox.CleanerRetention == 0 {
		c.Outbox.CleanerRetention = 7 * 24 * time.Hour
	}
	if c.RateLimit.Rate == "" {
		c.RateLimit.Rate = "100-M"
	}
	if c.RateLimit.Store == "" {
		c.RateLimit.Store = "memory"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	if c.EmailChange.AttemptLimit < 1 {
		return fmt.Errorf("email_change.attempt_limit must be positive, got %d", c.EmailChange.AttemptLimit)
	}
	if c.EmailChange.ExpireMinutes < 1 {
		return fmt.Errorf("email_change.expire_minutes must be positive, got %d", c.EmailChange.ExpireMinutes)
	}
	if c.RateLimit.Enabled {
		if err := c.RateLimit.Validate(); err != nil {
			return fmt.Errorf("rate limit configuration error: %w", err)
		}
	}
	return nil
}

// NewLogger builds the process logger from the log section.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
