// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	pending []uint
	version uint
	dirty   bool
	upErr   error
	forced  int
	upCalls int
	downed  bool
	closed  bool
}

func (f *fakeMigrator) Up() error                          { f.upCalls++; return f.upErr }
func (f *fakeMigrator) Down() error                        { f.downed = true; return nil }
func (f *fakeMigrator) Version() (uint, bool, error)       { return f.version, f.dirty, nil }
func (f *fakeMigrator) Force(v int) error                  { f.forced = v; return nil }
func (f *fakeMigrator) PendingMigrations() ([]uint, error) { return f.pending, nil }
func (f *fakeMigrator) Close() error                       { f.closed = true; return nil }

// useMigrator swaps the migrator factory for the duration of a test.
func useMigrator(t *testing.T, m *fakeMigrator) *string {
	t.Helper()
	var gotURL string
	orig := migratorFactory
	migratorFactory = func(url string) (Migrator, error) {
		gotURL = url
		return m, nil
	}
	t.Cleanup(func() { migratorFactory = orig })
	return &gotURL
}

func postgresEnv(t *testing.T) {
	t.Helper()
	memoryEnv(t)
	t.Setenv("STREAMBOX_STORAGE__BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://auth:secret@db:5432/auth")
}

func TestMigrateUp(t *testing.T) {
	postgresEnv(t)
	m := &fakeMigrator{pending: []uint{1, 2}}
	url := useMigrator(t, m)

	output, err := execute(t, "migrate", "up")
	require.NoError(t, err)

	assert.Equal(t, "postgres://auth:secret@db:5432/auth", *url)
	assert.Contains(t, output, "Applying 000001_users")
	assert.Contains(t, output, "Applying 000002_user_sessions")
	assert.Contains(t, output, "Migrations completed successfully")
	assert.Equal(t, 1, m.upCalls)
	assert.True(t, m.closed)
}

func TestMigrateUp_NothingPending(t *testing.T) {
	postgresEnv(t)
	m := &fakeMigrator{}
	useMigrator(t, m)

	output, err := execute(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, output, "Schema is up to date")
	assert.Zero(t, m.upCalls)
}

func TestMigrateUp_Failure(t *testing.T) {
	postgresEnv(t)
	m := &fakeMigrator{pending: []uint{3}, upErr: errors.New("syntax error")}
	useMigrator(t, m)

	_, err := execute(t, "migrate", "up")
	require.Error(t, err)
	assert.True(t, m.closed)
}

func TestMigrateDownVersionForce(t *testing.T) {
	postgresEnv(t)
	m := &fakeMigrator{version: 2, dirty: true}
	useMigrator(t, m)

	output, err := execute(t, "migrate", "version")
	require.NoError(t, err)
	assert.Contains(t, output, "Schema version 2 (dirty)")

	output, err = execute(t, "migrate", "force", "2")
	require.NoError(t, err)
	assert.Contains(t, output, "Forced schema version 2")
	assert.Equal(t, 2, m.forced)

	_, err = execute(t, "migrate", "force", "two")
	require.Error(t, err)

	_, err = execute(t, "migrate", "down")
	require.NoError(t, err)
	assert.True(t, m.downed)
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	memoryEnv(t)
	useMigrator(t, &fakeMigrator{})

	_, err := execute(t, "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres backend")
}
