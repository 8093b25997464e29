// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package store

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streambox/auth-service/pkg/errutil"
)

// mockMigrate implements migrateIface for testing.
type mockMigrate struct {
	upErr          error
	downErr        error
	stepsErr       error
	versionVal     uint
	versionErr     error
	dirty          bool
	forceErr       error
	closeSourceErr error
	closeDbErr     error
}

func (m *mockMigrate) Up() error                    { return m.upErr }
func (m *mockMigrate) Down() error                  { return m.downErr }
func (m *mockMigrate) Steps(_ int) error            { return m.stepsErr }
func (m *mockMigrate) Version() (uint, bool, error) { return m.versionVal, m.dirty, m.versionErr }
func (m *mockMigrate) Force(_ int) error            { return m.forceErr }
func (m *mockMigrate) Close() (error, error)        { return m.closeSourceErr, m.closeDbErr }

func TestNewMigrator_InvalidURL(t *testing.T) {
	for _, url := range []string{"invalid://url", "badscheme://localhost:5432/testdb"} {
		_, err := NewMigrator(url)
		errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
	}
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/auth", migrateURL("postgres://u:p@db:5432/auth"))
	assert.Equal(t, "pgx5://db/auth", migrateURL("postgresql://db/auth"))
	assert.Equal(t, "pgx5://db/auth", migrateURL("pgx5://db/auth"))
}

func TestMigrator_Operations(t *testing.T) {
	boom := errors.New("database locked")

	tests := []struct {
		name     string
		mock     *mockMigrate
		run      func(*Migrator) error
		wantCode string
	}{
		{"up", &mockMigrate{}, (*Migrator).Up, ""},
		{"up no change", &mockMigrate{upErr: migrate.ErrNoChange}, (*Migrator).Up, ""},
		{"up error", &mockMigrate{upErr: boom}, (*Migrator).Up, "MIGRATION_UP_FAILED"},
		{"down no change", &mockMigrate{downErr: migrate.ErrNoChange}, (*Migrator).Down, ""},
		{"down error", &mockMigrate{downErr: boom}, (*Migrator).Down, "MIGRATION_DOWN_FAILED"},
		{"steps no change", &mockMigrate{stepsErr: migrate.ErrNoChange}, func(m *Migrator) error { return m.Steps(0) }, ""},
		{"steps error", &mockMigrate{stepsErr: boom}, func(m *Migrator) error { return m.Steps(-1) }, "MIGRATION_STEPS_FAILED"},
		{"force", &mockMigrate{}, func(m *Migrator) error { return m.Force(2) }, ""},
		{"force negative", &mockMigrate{}, func(m *Migrator) error { return m.Force(-1) }, "INVALID_VERSION"},
		{"force error", &mockMigrate{forceErr: boom}, func(m *Migrator) error { return m.Force(2) }, "MIGRATION_FORCE_FAILED"},
		{"close", &mockMigrate{}, (*Migrator).Close, ""},
		{"close source error", &mockMigrate{closeSourceErr: boom}, (*Migrator).Close, "MIGRATION_CLOSE_FAILED"},
		{"close both errors", &mockMigrate{closeSourceErr: boom, closeDbErr: boom}, (*Migrator).Close, "MIGRATION_CLOSE_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(&Migrator{m: tt.mock})
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestMigrator_Version(t *testing.T) {
	t.Run("dirty", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{versionVal: 2, dirty: true}}
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(2), version)
		assert.True(t, dirty)
	})

	t.Run("unmigrated database is version zero", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{versionErr: migrate.ErrNilVersion}}
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Zero(t, version)
		assert.False(t, dirty)
	})

	t.Run("error", func(t *testing.T) {
		m := &Migrator{m: &mockMigrate{versionErr: errors.New("connection lost")}}
		_, _, err := m.Version()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrator_PendingMigrations(t *testing.T) {
	all, err := migrationVersions()
	require.NoError(t, err)
	latest := all[len(all)-1]

	pending, err := (&Migrator{m: &mockMigrate{versionErr: migrate.ErrNilVersion}}).PendingMigrations()
	require.NoError(t, err)
	assert.Equal(t, all, pending)

	pending, err = (&Migrator{m: &mockMigrate{versionVal: 1}}).PendingMigrations()
	require.NoError(t, err)
	assert.Equal(t, all[1:], pending)

	pending, err = (&Migrator{m: &mockMigrate{versionVal: latest}}).PendingMigrations()
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = (&Migrator{m: &mockMigrate{versionErr: errors.New("connection lost")}}).PendingMigrations()
	require.Error(t, err)
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(1)
	require.NoError(t, err)
	assert.Equal(t, "000001_users", name)

	name, err = MigrationName(999)
	require.NoError(t, err)
	assert.Empty(t, name)
}
