// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

// Package store opens the PostgreSQL pool and manages the auth schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig configures the connection pool.
type PoolConfig struct {
	DSN      string
	MaxConns int32

	// ConnectRetries is how many times a failed initial ping is retried.
	ConnectRetries uint64
	// ConnectBackoff is the initial delay between connection attempts.
	ConnectBackoff time.Duration
}

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// Open creates a pool and waits until the database answers a ping, retrying
// with exponential backoff. The database may still be starting when the
// service boots.
func Open(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, oops.Code("DB_CONFIG_INVALID").Errorf("database url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForDB(ctx, pool, cfg, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForDB(ctx context.Context, db pinger, cfg PoolConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	backoff := cfg.ConnectBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	attempt := 0
	b := retry.WithMaxRetries(cfg.ConnectRetries, retry.WithCappedDuration(10*time.Second, retry.NewExponential(backoff)))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
