// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/streambox/auth-service/internal/auth"
	"github.com/streambox/auth-service/internal/auth/postgres"
	"github.com/streambox/auth-service/internal/config"
)

// StatusSetter changes an account's status by email.
type StatusSetter interface {
	SetStatus(ctx context.Context, email string, status auth.UserStatus) error
}

// NewUserCmd creates the user subcommand.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer user accounts",
	}
	cmd.AddCommand(newUserStatusCmd("enable", "Re-enable a disabled account", auth.UserStatusActive))
	cmd.AddCommand(newUserStatusCmd("disable", "Disable an account so it can no longer log in", auth.UserStatusDisabled))
	return cmd
}

func newUserStatusCmd(use, short string, status auth.UserStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " EMAIL",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Storage.Backend != config.BackendPostgres {
				return oops.Code("CONFIG_INVALID").Errorf("user administration requires the postgres backend, got %q", cfg.Storage.Backend)
			}
			logger, err := setupLogging(cfg)
			if err != nil {
				return err
			}

			pool, err := openPool(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			return setUserStatus(cmd, postgres.NewUserRepository(pool), args[0], status)
		},
	}
}

func setUserStatus(cmd *cobra.Command, users StatusSetter, email string, status auth.UserStatus) error {
	email = auth.NormalizeEmail(email)
	if err := users.SetStatus(cmd.Context(), email, status); err != nil {
		return oops.With("email", email).With("status", status).Wrap(err)
	}
	cmd.Printf("User %s is now %s\n", email, status)
	return nil
}
