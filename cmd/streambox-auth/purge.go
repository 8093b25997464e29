// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/streambox/auth-service/internal/auth"
)

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Run one expiry sweep and exit",
		Long: `Delete expired blacklist entries and mark sessions whose refresh token
expired, once. Useful as a cron job when the server's own sweep is disabled.`,
		RunE: runPurge,
	}
}

func runPurge(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	st, err := newStores(b, cfg, logger)
	if err != nil {
		return err
	}
	sweeper, err := auth.NewSweeper(auth.DefaultSweeperConfig(), st.blacklist, st.sessions, logger, nil)
	if err != nil {
		return err
	}

	res, err := sweeper.RunOnce(ctx)
	cmd.Printf("Purged %d blacklist entries, expired %d sessions\n", res.BlacklistPurged, res.SessionsExpired)
	return err //nolint:wrapcheck // sweep errors are already classified
}
