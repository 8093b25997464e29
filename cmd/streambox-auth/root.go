// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/streambox/auth-service/internal/config"
	"github.com/streambox/auth-service/internal/logging"
	"github.com/streambox/auth-service/internal/xdg"
)

// serviceName labels logs and traces.
const serviceName = "streambox-auth"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the auth service CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streambox-auth",
		Short: "StreamBox authentication service",
		Long: `streambox-auth issues and verifies the access and refresh tokens used
across StreamBox, and manages user accounts and login sessions.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPurgeCmd())
	cmd.AddCommand(NewUserCmd())

	return cmd
}

// loadConfig loads configuration for cmd from the config file, the
// environment and its flags. Without --config, the XDG locations are searched.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, err := xdg.FindConfigFile()
		if err != nil {
			return nil, err
		}
		path = found
	}

	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, oops.With("config_file", path).Wrap(err)
	}
	return cfg, nil
}

// setupLogging installs the default logger described by cfg.
func setupLogging(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.SetDefault(serviceName, version, cfg.Log.Format, level), nil
}
