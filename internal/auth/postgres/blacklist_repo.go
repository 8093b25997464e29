// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package postgres

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/streambox/auth-service/internal/auth"
)

// BlacklistRepository implements auth.BlacklistRepository using PostgreSQL.
type BlacklistRepository struct {
	db DB
}

// NewBlacklistRepository creates a new BlacklistRepository.
func NewBlacklistRepository(db DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

// Insert stores an entry. Inserting an already blacklisted token is a no-op.
func (r *BlacklistRepository) Insert(ctx context.Context, entry *auth.BlacklistEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO token_blacklist (token_id, user_id, reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_id) DO NOTHING
	`, entry.TokenID, entry.UserID, entry.Reason, entry.ExpiresAt, entry.CreatedAt)
	if err != nil {
		return oops.Code("BLACKLIST_INSERT_FAILED").
			With("operation", "insert blacklist entry").
			With("token_id", entry.TokenID).
			Wrap(err)
	}
	return nil
}

// Exists reports whether tokenID is blacklisted.
func (r *BlacklistRepository) Exists(ctx context.Context, tokenID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE token_id = $1)`, tokenID).Scan(&exists)
	if err != nil {
		return false, oops.Code("BLACKLIST_EXISTS_FAILED").
			With("operation", "check blacklist").
			With("token_id", tokenID).
			Wrap(err)
	}
	return exists, nil
}

// DeleteExpired removes up to limit entries that expired at or before now.
// Rows locked by a concurrent purge are skipped. A non-positive limit
// removes every expired entry.
func (r *BlacklistRepository) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	var (
		sql  string
		args []any
	)
	if limit > 0 {
		sql = `
			DELETE FROM token_blacklist
			WHERE token_id IN (
				SELECT token_id FROM token_blacklist
				WHERE expires_at <= $1
				ORDER BY expires_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)`
		args = []any{now, limit}
	} else {
		sql = `DELETE FROM token_blacklist WHERE expires_at <= $1`
		args = []any{now}
	}

	result, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, oops.Code("BLACKLIST_PURGE_FAILED").
			With("operation", "delete expired blacklist entries").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.BlacklistRepository = (*BlacklistRepository)(nil)
