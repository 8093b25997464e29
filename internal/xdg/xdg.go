// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

// Package xdg locates the auth service's configuration file using the XDG
// Base Directory layout.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const (
	appName        = "streambox"
	configFileName = "auth.yaml"
)

// SystemConfigDir is searched after the user's config directory.
var SystemConfigDir = "/etc/streambox"

// ConfigDir returns the user config directory for StreamBox.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// SearchPaths lists the config file locations in lookup order.
func SearchPaths() []string {
	return []string{
		filepath.Join(ConfigDir(), configFileName),
		filepath.Join(SystemConfigDir, configFileName),
	}
}

// FindConfigFile returns the first config file in SearchPaths that exists,
// or "" if there is none. A path that exists but cannot be inspected is an
// error rather than being skipped.
func FindConfigFile() (string, error) {
	for _, path := range SearchPaths() {
		info, err := os.Stat(path)
		switch {
		case err == nil:
			if info.IsDir() {
				return "", oops.Code("CONFIG_FILE_INVALID").With("path", path).Errorf("config path is a directory")
			}
			return path, nil
		case errors.Is(err, fs.ErrNotExist):
			continue
		default:
			return "", oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
		}
	}
	return "", nil
}
