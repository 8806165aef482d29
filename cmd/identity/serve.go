// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/identity/internal/auth"
	"github.com/holomush/identity/internal/auth/postgres"
	"github.com/holomush/identity/internal/httpapi"
	"github.com/holomush/identity/internal/logging"
	"github.com/holomush/identity/internal/notify"
	"github.com/holomush/identity/internal/observability"
	"github.com/holomush/identity/internal/store"
	"github.com/holomush/identity/internal/token"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the identity HTTP API",
		Long: `Start the HTTP API serving signup, set-password, signin and the
authenticated user routes, plus the metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile, cmd.Flags(), nil)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().String("http-addr", defaultHTTPAddr, "API listen address")
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().Bool("auto-migrate", false, "apply pending migrations before serving")

	return cmd
}

// requestAttrs adds the request id to every log record made while serving
// a request.
func requestAttrs(ctx context.Context) []slog.Attr {
	if id := httpapi.RequestIDFromContext(ctx); id != "" {
		return []slog.Attr{slog.String("request_id", id)}
	}
	return nil
}

func defaultNotifier(cfg *Config, logger *slog.Logger) (auth.Notifier, error) {
	if cfg.SendGrid.APIKey == "" {
		logger.Warn("sendgrid api key not set, verification links will only be logged")
		return notify.NewLogNotifier(cfg.FrontendURL, logger), nil
	}
	n, err := notify.NewSendGridNotifier(notify.SendGridConfig{
		APIKey:      cfg.SendGrid.APIKey,
		SenderEmail: cfg.SenderEmail,
		FrontendURL: cfg.FrontendURL,
		BaseURL:     cfg.SendGrid.BaseURL,
		Timeout:     cfg.SendGrid.Timeout,
		LinkTTL:     cfg.VerificationTTL,
	}, logger)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	if d == nil {
		d = &ServeDeps{}
	}
	if d.PoolFactory == nil {
		d.PoolFactory = func(ctx context.Context, dsn string, cfg store.PoolConfig, logger *slog.Logger) (Pool, error) {
			return store.Open(ctx, dsn, cfg, logger)
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = defaultMigratorFactory
	}
	if d.NotifierFactory == nil {
		d.NotifierFactory = defaultNotifier
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, opts ...observability.Option) ObservabilityServer {
			return observability.NewServer(addr, opts...)
		}
	}
	if d.APIServerFactory == nil {
		d.APIServerFactory = func(cfg httpapi.ServerConfig, handler http.Handler) APIServer {
			return httpapi.NewServer(cfg, handler)
		}
	}
	return d
}

// runServeWithDeps starts the service with injectable dependencies and
// blocks until a signal, a server failure or ctx ends.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.SetDefault(logging.Options{
		Service:      "identity",
		Version:      version,
		Format:       cfg.Log.Format,
		Level:        level,
		Writer:       cmd.ErrOrStderr(),
		ContextAttrs: requestAttrs,
	})

	logger.Info("starting identity service",
		"http_addr", cfg.HTTP.Addr,
		"log_level", cfg.Log.Level,
		"log_format", cfg.Log.Format)

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, cfg.poolConfig(), logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	codec, err := token.NewCodec([]byte(cfg.JWTSecret))
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "jwt_secret").Wrap(err)
	}

	argon, err := auth.NewArgon2idHasherWithParams(cfg.hashParams())
	if err != nil {
		return err
	}
	hasher, err := auth.NewBoundedHasher(argon, cfg.HashWorkers)
	if err != nil {
		return err
	}

	notifier, err := deps.NotifierFactory(cfg, logger)
	if err != nil {
		return err
	}

	accounts, err := auth.NewAccountServiceWithLogger(
		postgres.NewAccountRepository(pool),
		hasher,
		codec,
		notifier,
		auth.AccountConfig{VerificationTTL: cfg.VerificationTTL, SessionTTL: cfg.SessionTTL},
		logger.With("component", "accounts"),
	)
	if err != nil {
		return err
	}

	handlers, err := httpapi.NewHandlers(accounts, logger.With("component", "http"))
	if err != nil {
		return err
	}
	gate, err := httpapi.NewGate(codec, cfg.PublicRoutes, logger.With("component", "gate"))
	if err != nil {
		return err
	}
	router := httpapi.NewRouter(handlers, gate, logger.With("component", "http"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		register := []func(prometheus.Registerer){auth.RegisterMetrics, httpapi.RegisterMetrics}
		if stats, ok := pool.(store.StatSource); ok {
			register = append(register, func(reg prometheus.Registerer) {
				reg.MustRegister(store.NewPoolCollector(stats))
			})
		}
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr,
			observability.WithLogger(logger.With("component", "observability")),
			observability.WithChecks(observability.Check{Name: "database", Probe: store.ReadinessProbe(pool)}),
			observability.WithCollectors(register...),
		)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		defer stopServer(obsServer, "observability", cfg)
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		obsServer.Metrics().BuildInfo.WithLabelValues(version).Set(1)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	apiServer := deps.APIServerFactory(httpapi.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, router)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	setServing(obsServer, true)
	cmd.Println("Identity service started")
	logger.Info("identity service ready", "http_addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	setServing(obsServer, false)
	stopServer(apiServer, "api", cfg)

	logger.Info("shutdown complete")
	return nil
}

type stopper interface {
	Stop(ctx context.Context) error
}

// stopServer drains s within the configured shutdown timeout.
func stopServer(s stopper, name string, cfg *Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

func setServing(s ObservabilityServer, serving bool) {
	if s != nil {
		s.SetServing(serving)
	}
}

// autoMigrate applies pending migrations before the pool is opened.
func autoMigrate(databaseURL string, factory func(string) (Migrator, error), logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	pending, err := migrator.PendingMigrations()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "list pending migrations").Wrap(err)
	}
	if len(pending) == 0 {
		logger.Info("database schema up to date")
		return nil
	}
	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("applied migrations", "count", len(pending))
	return nil
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
