// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default sweep schedule.
const (
	DefaultSweepInterval = time.Hour
	DefaultSweepRetries  = 3
	DefaultSweepBackoff  = 500 * time.Millisecond
)

// SweeperConfig controls the sweep schedule.
type SweeperConfig struct {
	Interval   time.Duration // How often to run a sweep
	MaxRetries uint64        // Retries per step for retryable failures
	Backoff    time.Duration // Initial backoff between retries
}

// DefaultSweeperConfig returns the default sweep schedule.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:   DefaultSweepInterval,
		MaxRetries: DefaultSweepRetries,
		Backoff:    DefaultSweepBackoff,
	}
}

// Sweeper periodically purges expired blacklist entries and marks sessions
// whose refresh token expired.
type Sweeper struct {
	cfg       SweeperConfig
	blacklist *BlacklistStore
	sessions  *SessionStore
	logger    *slog.Logger
	metrics   *Metrics
	clock     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper. Metrics may be nil.
func NewSweeper(cfg SweeperConfig, blacklist *BlacklistStore, sessions *SessionStore, logger *slog.Logger, metrics *Metrics) (*Sweeper, error) {
	if blacklist == nil || sessions == nil {
		return nil, oops.Code("SWEEPER_INVALID").Errorf("blacklist and session stores are required")
	}
	if cfg.Interval <= 0 {
		return nil, oops.Code("SWEEPER_INVALID").
			With("interval", cfg.Interval).
			Errorf("sweep interval must be positive")
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultSweepBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cfg:       cfg,
		blacklist: blacklist,
		sessions:  sessions,
		logger:    logger,
		metrics:   metrics,
		clock:     time.Now,
	}, nil
}

// SweepResult reports what one sweep removed.
type SweepResult struct {
	BlacklistPurged int64
	SessionsExpired int64
}

// RunOnce executes a single sweep. Both steps are attempted even if one
// fails; errors are combined.
func (w *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	now := w.clock().UTC()
	var (
		res  SweepResult
		errs []error
	)

	purged, err := w.withRetry(ctx, func(ctx context.Context) (int64, error) {
		return w.blacklist.PurgeExpired(ctx, now)
	})
	res.BlacklistPurged = purged
	w.metrics.purged("blacklist", purged)
	if err != nil {
		w.logger.ErrorContext(ctx, "purge expired blacklist entries failed", "error", err)
		errs = append(errs, err)
	} else if purged > 0 {
		w.logger.InfoContext(ctx, "purged expired blacklist entries", "count", purged)
	}

	expired, err := w.withRetry(ctx, func(ctx context.Context) (int64, error) {
		return w.sessions.ExpireStale(ctx, now)
	})
	res.SessionsExpired = expired
	w.metrics.purged("sessions", expired)
	if err != nil {
		w.logger.ErrorContext(ctx, "expire stale sessions failed", "error", err)
		errs = append(errs, err)
	} else if expired > 0 {
		w.logger.InfoContext(ctx, "marked stale sessions expired", "count", expired)
	}

	return res, errors.Join(errs...)
}

// withRetry runs step, retrying retryable failures with exponential backoff.
// Rows removed by failed attempts still count.
func (w *Sweeper) withRetry(ctx context.Context, step func(context.Context) (int64, error)) (int64, error) {
	var total int64
	backoff := retry.WithMaxRetries(w.cfg.MaxRetries, retry.NewExponential(w.cfg.Backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		n, err := step(ctx)
		total += n
		if err != nil && IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	return total, err //nolint:wrapcheck // step errors are already classified
}

// Start begins periodic sweeping. Calling Start on a running sweeper is an error.
func (w *Sweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return oops.Code("SWEEPER_RUNNING").Errorf("sweeper already running")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

// Stop stops the sweeper and waits for an in-flight sweep to finish.
func (w *Sweeper) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

func (w *Sweeper) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	// Run once immediately
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "sweep cycle failed", "error", err)
	}
}
