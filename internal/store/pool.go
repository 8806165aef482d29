// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig tunes the connection pool and the boot-time connectivity check.
type PoolConfig struct {
	MaxConns        int32
	ConnectTimeout  time.Duration
	MaxConnIdleTime time.Duration
	MaxConnLifetime time.Duration

	// PingAttempts is how many times Open pings before giving up.
	PingAttempts uint64
	// PingBackoff is the first delay between pings; it doubles each retry.
	PingBackoff time.Duration
}

// DefaultPoolConfig returns the pool settings used by the service.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        20,
		ConnectTimeout:  3 * time.Second,
		MaxConnIdleTime: 10 * time.Minute,
		MaxConnLifetime: 30 * time.Minute,
		PingAttempts:    5,
		PingBackoff:     500 * time.Millisecond,
	}
}

// ParsePoolConfig builds a pgxpool config from dsn with cfg applied on top.
func ParsePoolConfig(dsn string, cfg PoolConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	return poolCfg, nil
}

// Open creates a pool for dsn and waits until the database answers a ping.
// The pool is closed again if the database never becomes reachable.
func Open(ctx context.Context, dsn string, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := ParsePoolConfig(dsn, cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := PingWithRetry(ctx, pool, cfg.PingAttempts, cfg.PingBackoff, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingWithRetry pings until success, attempts are exhausted or ctx ends.
// Backoff doubles from base between attempts.
func PingWithRetry(ctx context.Context, p Pinger, attempts uint64, base time.Duration, logger *slog.Logger) error {
	if attempts == 0 {
		attempts = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var tries uint64
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tries++
		if err := p.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not reachable", "attempt", tries, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", tries).
			Wrap(err)
	}
	return nil
}

// ReadinessProbe returns a probe that fails while the database does not
// answer a ping. Each call is bounded by ctx.
func ReadinessProbe(p Pinger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return oops.Code("DB_UNREACHABLE").With("operation", "readiness ping").Wrap(err)
		}
		return nil
	}
}
