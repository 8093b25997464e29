// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/streambox/auth-service/internal/auth"
)

const sessionColumns = `id, user_id, refresh_token_id, refresh_token_hash, device_info, ip_address,
		       user_agent, state, created_at, last_activity_at, expires_at, revoked_at, revoke_reason`

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session. Returns auth.ErrConflict if the refresh token
// is already bound to a session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	deviceJSON, err := json.Marshal(session.DeviceInfo)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "marshal device info").
			Wrap(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO user_sessions (
			id, user_id, refresh_token_id, refresh_token_hash, device_info, ip_address,
			user_agent, state, created_at, last_activity_at, expires_at, revoked_at, revoke_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.RefreshTokenID,
		session.RefreshTokenHash,
		deviceJSON,
		session.IPAddress,
		session.UserAgent,
		string(session.State),
		session.CreatedAt,
		session.LastActivityAt,
		session.ExpiresAt,
		session.RevokedAt,
		session.RevokeReason,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			return oops.Code("SESSION_TOKEN_BOUND").
				With("constraint", constraint).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert user_session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE id = $1`, id.String())

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by id").
			With("id", id.String()).
			Wrap(err)
	}
	return session, nil
}

// GetByRefreshHash retrieves a session by its refresh token hash.
func (r *SessionRepository) GetByRefreshHash(ctx context.Context, hash string) (*auth.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE refresh_token_hash = $1`, hash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by refresh hash").
			Wrap(err)
	}
	return session, nil
}

// ListActiveByUser returns a user's sessions that are active and unexpired at
// now, newest first.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID ulid.ULID, now time.Time) ([]*auth.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM user_sessions
		WHERE user_id = $1 AND state = 'active' AND expires_at > $2
		ORDER BY created_at DESC
	`, userID.String(), now)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list active sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_ROWS_ERROR").
			With("operation", "iterate session rows").
			Wrap(err)
	}
	return sessions, nil
}

// Touch updates LastActivityAt for an active session.
func (r *SessionRepository) Touch(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE user_sessions SET last_activity_at = $2
		WHERE id = $1 AND state = 'active'
	`, id.String(), at)
	if err != nil {
		return oops.Code("SESSION_TOUCH_FAILED").
			With("operation", "touch session").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Revoke marks an unexpired active session owned by userID as revoked and
// returns it. The row is kept for audit.
func (r *SessionRepository) Revoke(ctx context.Context, id, userID ulid.ULID, at time.Time, reason string) (*auth.Session, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE user_sessions SET state = 'revoked', revoked_at = $3, revoke_reason = $4
		WHERE id = $1 AND user_id = $2 AND state = 'active' AND expires_at > $3
		RETURNING `+sessionColumns,
		id.String(), userID.String(), at, reason)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			With("user_id", userID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke session").
			With("id", id.String()).
			Wrap(err)
	}
	return session, nil
}

// ExpireStale marks active sessions whose refresh token expired at or before
// now as expired.
func (r *SessionRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE user_sessions SET state = 'expired', revoke_reason = $2
		WHERE state = 'active' AND expires_at <= $1
	`, now, auth.ReasonExpired)
	if err != nil {
		return 0, oops.Code("SESSION_EXPIRE_FAILED").
			With("operation", "expire stale sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans a single row into a Session.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSession(row rowScanner) (*auth.Session, error) {
	var (
		idStr      string
		userIDStr  string
		deviceJSON []byte
		state      string
		session    auth.Session
	)

	err := row.Scan(
		&idStr,
		&userIDStr,
		&session.RefreshTokenID,
		&session.RefreshTokenHash,
		&deviceJSON,
		&session.IPAddress,
		&session.UserAgent,
		&state,
		&session.CreatedAt,
		&session.LastActivityAt,
		&session.ExpiresAt,
		&session.RevokedAt,
		&session.RevokeReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "scan user_session").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}
	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	session.DeviceInfo = map[string]any{}
	if len(deviceJSON) > 0 {
		if err := json.Unmarshal(deviceJSON, &session.DeviceInfo); err != nil {
			return nil, oops.Code("SESSION_INVALID_DEVICE_INFO").
				With("operation", "unmarshal device info").
				Wrap(err)
		}
	}

	session.ID = id
	session.UserID = userID
	session.State = auth.SessionState(state)
	return &session, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
