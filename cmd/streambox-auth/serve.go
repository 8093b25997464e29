// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/streambox/auth-service/internal/auth"
	"github.com/streambox/auth-service/internal/config"
	"github.com/streambox/auth-service/internal/httpapi"
	"github.com/streambox/auth-service/internal/observability"
	"github.com/streambox/auth-service/internal/token"
	"github.com/streambox/auth-service/internal/validate"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers.
const shutdownTimeout = 10 * time.Second

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// OnReady is called with the API address once every server is listening.
	OnReady func(apiAddr string)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	Registry() *prometheus.Registry
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the auth HTTP API",
		Long: `Start the auth HTTP API together with the metrics and health endpoints
and the background sweep that purges expired tokens and sessions.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// runServeWithDeps runs the service until ctx is cancelled, a signal
// arrives, or a server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}

	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "starting auth service",
		"http_addr", cfg.HTTPAddr,
		"storage", cfg.Storage.Backend,
		"version", version,
	)

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Metrics exist only when the observability server is enabled.
	var (
		obsServer   ObservabilityServer
		authMetrics *auth.Metrics
		httpMetrics *observability.Metrics
	)
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, b.Ready)
		authMetrics = auth.NewMetrics(obsServer.Registry())
		httpMetrics = obsServer.Metrics()
	}

	sweeper, handler, err := buildService(cfg, b, logger, authMetrics, httpMetrics)
	if err != nil {
		return err
	}

	api := httpapi.NewServer(cfg.HTTPAddr, handler, httpapi.DefaultRequestTimeout)
	apiErrCh, err := api.Start()
	if err != nil {
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			stopServer(api, logger, "api")
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	if err := sweeper.Start(ctx); err != nil {
		stopServer(api, logger, "api")
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Auth service started on " + api.Addr())
	logger.InfoContext(ctx, "auth service ready", "api_addr", api.Addr())
	if deps.OnReady != nil {
		deps.OnReady(api.Addr())
	}

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	stopServer(api, logger, "api")
	if obsServer != nil {
		stopServer(obsServer, logger, "observability")
	}
	sweeper.Stop()

	logger.Info("shutdown complete")
	return nil
}

// buildService wires the auth service behind an HTTP handler and creates
// the sweeper for its stores.
func buildService(cfg *config.Config, b *backend, logger *slog.Logger, authMetrics *auth.Metrics, httpMetrics *observability.Metrics) (*auth.Sweeper, *httpapi.Handler, error) {
	st, err := newStores(b, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	codec, err := token.NewJWTCodec(cfg.TokenConfig())
	if err != nil {
		return nil, nil, err
	}

	svc, err := auth.NewService(auth.ServiceDeps{
		Users:        b.users,
		Sessions:     st.sessions,
		Blacklist:    st.blacklist,
		Codec:        codec,
		Hasher:       auth.NewArgon2idHasher(),
		Lockout:      cfg.LockoutPolicy(),
		QueryTimeout: cfg.Storage.QueryTimeout,
		Logger:       logger,
		Metrics:      authMetrics,
	})
	if err != nil {
		return nil, nil, err
	}

	sweepCfg := auth.DefaultSweeperConfig()
	sweepCfg.Interval = cfg.Cleanup.Interval
	sweeper, err := auth.NewSweeper(sweepCfg, st.blacklist, st.sessions, logger, authMetrics)
	if err != nil {
		return nil, nil, err
	}

	v, err := validate.New()
	if err != nil {
		return nil, nil, err
	}
	handler, err := httpapi.NewHandler(httpapi.Deps{
		Auth:           svc,
		Validator:      v,
		Bearer:         codec,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logger,
		Metrics:        httpMetrics,
	})
	if err != nil {
		return nil, nil, err
	}
	return sweeper, handler, nil
}

type stopper interface {
	Stop(ctx context.Context) error
}

func stopServer(s stopper, logger *slog.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
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
