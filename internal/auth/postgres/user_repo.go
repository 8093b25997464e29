// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/streambox/auth-service/internal/auth"
)

const userColumns = `id, email, password_hash, first_name, last_name, phone_number, age,
		       preferred_genres, status, email_verified, failed_attempts, locked_until,
		       last_login_at, created_at, updated_at`

// UserRepository implements auth.UserDirectory using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user. Returns auth.ErrConflict if the email is taken.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	genres := user.PreferredGenres
	if genres == nil {
		genres = []string{}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO users (
			id, email, password_hash, first_name, last_name, phone_number, age,
			preferred_genres, status, email_verified, failed_attempts, locked_until,
			last_login_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.Age,
		genres,
		string(user.Status),
		user.EmailVerified,
		user.FailedAttempts,
		user.LockedUntil,
		user.LastLoginAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return oops.Code("USER_EMAIL_TAKEN").
				With("constraint", constraint).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// FindByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// UpdateLastLogin records a successful login and clears any lockout.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET last_login_at = $2, failed_attempts = 0, locked_until = NULL, updated_at = $2
		WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return oops.Code("USER_UPDATE_LAST_LOGIN_FAILED").
			With("operation", "update last login").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RecordLoginFailure increments the failed-login counter in a single
// statement, so concurrent failures are all counted. A lock running at now
// is kept as is; a lapsed one is cleared and the count restarts at one.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id ulid.ULID, threshold int, now, lockUntil time.Time) (int, error) {
	var failures int
	err := r.db.QueryRow(ctx, `
		UPDATE users SET
			failed_attempts = CASE WHEN locked_until <= $3 THEN 1 ELSE failed_attempts + 1 END,
			locked_until = CASE
				WHEN locked_until > $3 THEN locked_until
				WHEN (CASE WHEN locked_until <= $3 THEN 1 ELSE failed_attempts + 1 END) >= $2 THEN $4
				ELSE NULL
			END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING failed_attempts
	`, id.String(), threshold, now, lockUntil).Scan(&failures)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("USER_RECORD_FAILURE_FAILED").
			With("operation", "record login failure").
			With("id", id.String()).
			Wrap(err)
	}
	return failures, nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), hash, time.Now().UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetStatus enables or disables an account by email.
func (r *UserRepository) SetStatus(ctx context.Context, email string, status auth.UserStatus) error {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET status = $2, updated_at = $3
		WHERE LOWER(email) = LOWER($1)
	`, email, string(status), time.Now().UTC())
	if err != nil {
		return oops.Code("USER_SET_STATUS_FAILED").
			With("operation", "set user status").
			With("status", string(status)).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row rowScanner) (*auth.User, error) {
	var (
		idStr  string
		status string
		user   auth.User
	)

	err := row.Scan(
		&idStr,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.PhoneNumber,
		&user.Age,
		&user.PreferredGenres,
		&status,
		&user.EmailVerified,
		&user.FailedAttempts,
		&user.LockedUntil,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	user.ID = id
	user.Status = auth.UserStatus(status)
	return &user, nil
}

// Compile-time interface check.
var _ auth.UserDirectory = (*UserRepository)(nil)
