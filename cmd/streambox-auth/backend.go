// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/streambox/auth-service/internal/auth"
	"github.com/streambox/auth-service/internal/auth/memstore"
	"github.com/streambox/auth-service/internal/auth/postgres"
	"github.com/streambox/auth-service/internal/config"
	"github.com/streambox/auth-service/internal/store"
)

// readinessTimeout bounds the database ping behind the readiness probe.
const readinessTimeout = 2 * time.Second

// backend is the storage behind the auth stores.
type backend struct {
	users     auth.UserDirectory
	sessions  auth.SessionRepository
	blacklist auth.BlacklistRepository

	// pool is nil for the memory backend.
	pool *pgxpool.Pool
}

// Close releases the backend's connections.
func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

// Ready reports whether the backend can serve queries.
func (b *backend) Ready() bool {
	if b.pool == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
	defer cancel()
	return b.pool.Ping(ctx) == nil
}

// openBackend connects the configured storage backend, applying migrations
// first when auto-migrate is on.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	if cfg.Storage.Backend == config.BackendMemory {
		logger.WarnContext(ctx, "using in-memory storage; all data is lost on exit")
		return &backend{
			users:     memstore.NewUsers(),
			sessions:  memstore.NewSessions(),
			blacklist: memstore.NewBlacklist(),
		}, nil
	}

	pool, err := openPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := migrateUp(cfg.DatabaseURL, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &backend{
		users:     postgres.NewUserRepository(pool),
		sessions:  postgres.NewSessionRepository(pool),
		blacklist: postgres.NewBlacklistRepository(pool),
		pool:      pool,
	}, nil
}

func openPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := store.Open(ctx, store.PoolConfig{
		DSN:            cfg.DatabaseURL,
		MaxConns:       cfg.Storage.MaxConns,
		ConnectRetries: cfg.Storage.ConnectRetries,
	}, logger)
	if err != nil {
		return nil, oops.With("operation", "connect to database").Wrap(err)
	}
	logger.InfoContext(ctx, "connected to database")
	return pool, nil
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	version, _, err := migrator.Version()
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "version", version)
	return nil
}

// stores wraps the backend repositories in the auth stores.
type stores struct {
	sessions  *auth.SessionStore
	blacklist *auth.BlacklistStore
}

func newStores(b *backend, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	sessions, err := auth.NewSessionStore(b.sessions, cfg.Storage.QueryTimeout, logger)
	if err != nil {
		return nil, err
	}
	blacklist, err := auth.NewBlacklistStore(b.blacklist, cfg.Storage.QueryTimeout)
	if err != nil {
		return nil, err
	}
	return &stores{sessions: sessions, blacklist: blacklist}, nil
}
