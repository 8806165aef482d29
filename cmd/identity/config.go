// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"net/url"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/identity/internal/auth"
	"github.com/holomush/identity/internal/httpapi"
	"github.com/holomush/identity/internal/logging"
	"github.com/holomush/identity/internal/notify"
	"github.com/holomush/identity/internal/store"
)

// Config is the service configuration after defaults, the config file,
// environment secrets and flags have been merged, in that order.
type Config struct {
	HTTP            HTTPConfig     `koanf:"http"`
	Metrics         MetricsConfig  `koanf:"metrics"`
	Log             LogConfig      `koanf:"log"`
	Database        DatabaseConfig `koanf:"database"`
	JWTSecret       string         `koanf:"jwt_secret"`
	VerificationTTL time.Duration  `koanf:"verification_ttl"`
	SessionTTL      time.Duration  `koanf:"session_ttl"`
	HashWorkers     int            `koanf:"hash_workers"`
	Argon2          Argon2Config   `koanf:"argon2"`
	FrontendURL     string         `koanf:"frontend_url"`
	SenderEmail     string         `koanf:"sender_email"`
	SendGrid        SendGridConfig `koanf:"sendgrid"`
	PublicRoutes    []string       `koanf:"public_routes"`
	ShutdownTimeout time.Duration  `koanf:"shutdown_timeout"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DatabaseConfig configures PostgreSQL access.
type DatabaseConfig struct {
	URL          string `koanf:"url"`
	MaxConns     int32  `koanf:"max_conns"`
	PingAttempts uint64 `koanf:"ping_attempts"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// Argon2Config holds the cost of newly created password hashes.
type Argon2Config struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

// SendGridConfig configures outbound email. Without an API key verification
// links are only logged.
type SendGridConfig struct {
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// Default values for configuration keys.
const (
	defaultHTTPAddr        = ":8080"
	defaultMetricsAddr     = "127.0.0.1:9100"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultShutdownTimeout = 10 * time.Second
	defaultSendGridTimeout = 10 * time.Second
)

func defaultValues() map[string]any {
	pool := store.DefaultPoolConfig()
	return map[string]any{
		"http.addr":              defaultHTTPAddr,
		"http.read_timeout":      10 * time.Second,
		"http.write_timeout":     30 * time.Second,
		"metrics.addr":           defaultMetricsAddr,
		"log.level":              defaultLogLevel,
		"log.format":             defaultLogFormat,
		"database.max_conns":     pool.MaxConns,
		"database.ping_attempts": pool.PingAttempts,
		"database.auto_migrate":  false,
		"verification_ttl":       auth.DefaultVerificationTTL,
		"session_ttl":            auth.DefaultSessionTTL,
		"hash_workers":           0,
		"argon2.time":            auth.DefaultHashParams.Time,
		"argon2.memory_kib":      auth.DefaultHashParams.MemoryKiB,
		"argon2.threads":         auth.DefaultHashParams.Threads,
		"sendgrid.base_url":      notify.DefaultSendGridURL,
		"sendgrid.timeout":       defaultSendGridTimeout,
		"public_routes":          httpapi.DefaultPublicRoutes,
		"shutdown_timeout":       defaultShutdownTimeout,
	}
}

// envKeys maps the environment variables that carry secrets and
// deployment-specific values to config keys.
var envKeys = map[string]string{
	"DATABASE_URL":     "database.url",
	"JWT_SECRET":       "jwt_secret",
	"SENDGRID_API_KEY": "sendgrid.api_key",
	"SENDER_EMAIL":     "sender_email",
	"FRONTEND_URL":     "frontend_url",
}

// flagKeys maps command-line flags to config keys. Flags not listed here
// are not configuration.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"auto-migrate": "database.auto_migrate",
}

// loadConfig merges defaults, the YAML file at path (if any), environment
// values and explicitly set flags. lookupEnv is os.LookupEnv outside tests.
func loadConfig(path string, flags *pflag.FlagSet, lookupEnv func(string) (string, bool)) (*Config, error) {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	k := koanf.New(".")

	for key, val := range defaultValues() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrapf(err, "load config file")
		}
	}

	for env, key := range envKeys {
		if val, ok := lookupEnv(env); ok && val != "" {
			if err := k.Set(key, val); err != nil {
				return nil, oops.Code("CONFIG_INVALID").With("env", env).Wrap(err)
			}
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "decode config")
	}
	return &cfg, nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// ValidateDatabase checks only what the migrate command needs.
func (c *Config) ValidateDatabase() error {
	if c.Database.URL == "" {
		return invalid("database.url", "database url is required (DATABASE_URL)")
	}
	return nil
}

// Validate checks the configuration needed to serve.
func (c *Config) Validate() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http address is required")
	}
	if c.JWTSecret == "" {
		return invalid("jwt_secret", "jwt secret is required (JWT_SECRET)")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if !logging.ValidFormat(c.Log.Format) {
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if c.VerificationTTL <= 0 || c.VerificationTTL%time.Second != 0 {
		return invalid("verification_ttl", "verification ttl must be a positive whole number of seconds")
	}
	if c.SessionTTL <= 0 || c.SessionTTL%time.Second != 0 {
		return invalid("session_ttl", "session ttl must be a positive whole number of seconds")
	}
	if c.HashWorkers < 0 {
		return invalid("hash_workers", "hash workers cannot be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return invalid("shutdown_timeout", "shutdown timeout must be positive")
	}
	u, err := url.Parse(c.FrontendURL)
	if c.FrontendURL == "" || err != nil || !u.IsAbs() {
		return invalid("frontend_url", "frontend url must be an absolute URL (FRONTEND_URL)")
	}
	if c.SendGrid.APIKey != "" && c.SenderEmail == "" {
		return invalid("sender_email", "sender email is required when sendgrid is enabled (SENDER_EMAIL)")
	}
	return nil
}

// hashParams returns the argon2id parameters for new hashes.
func (c *Config) hashParams() auth.HashParams {
	p := auth.DefaultHashParams
	p.Time = c.Argon2.Time
	p.MemoryKiB = c.Argon2.MemoryKiB
	p.Threads = c.Argon2.Threads
	return p
}

// poolConfig returns the connection pool settings.
func (c *Config) poolConfig() store.PoolConfig {
	p := store.DefaultPoolConfig()
	p.MaxConns = c.Database.MaxConns
	if c.Database.PingAttempts > 0 {
		p.PingAttempts = c.Database.PingAttempts
	}
	return p
}
