// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/streambox/auth-service/internal/token"
)

// SessionState is the lifecycle state of a session.
type SessionState string

// Session states. Revoked and expired are terminal.
const (
	SessionActive  SessionState = "active"
	SessionRevoked SessionState = "revoked"
	SessionExpired SessionState = "expired"
)

// Revocation reasons recorded on sessions and blacklist entries.
const (
	ReasonLogout  = "logout"
	ReasonRevoked = "revoked"
	ReasonExpired = "expired"
)

// DeviceContext describes the client a session was opened from.
type DeviceContext struct {
	Info      map[string]any
	IPAddress string
	UserAgent string
}

// Session is one login's refresh-token lineage.
type Session struct {
	ID               ulid.ULID
	UserID           ulid.ULID
	RefreshTokenID   string
	RefreshTokenHash string
	DeviceInfo       map[string]any
	IPAddress        string
	UserAgent        string
	State            SessionState
	CreatedAt        time.Time
	LastActivityAt   time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time
	RevokeReason     string
}

// NewSession creates a validated active Session bound to a refresh token.
func NewSession(id, userID ulid.ULID, refresh token.Issued, device DeviceContext, now time.Time) (*Session, error) {
	if id.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_ID").Errorf("session ID cannot be zero")
	}
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if refresh.Token == "" || refresh.ID == "" {
		return nil, oops.Code("SESSION_INVALID_TOKEN").Errorf("refresh token and token ID are required")
	}
	if refresh.ExpiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	info := device.Info
	if info == nil {
		info = map[string]any{}
	}
	return &Session{
		ID:               id,
		UserID:           userID,
		RefreshTokenID:   refresh.ID,
		RefreshTokenHash: HashRefreshToken(refresh.Token),
		DeviceInfo:       info,
		IPAddress:        device.IPAddress,
		UserAgent:        device.UserAgent,
		State:            SessionActive,
		CreatedAt:        now,
		LastActivityAt:   now,
		ExpiresAt:        refresh.ExpiresAt,
	}, nil
}

// IsActive reports whether the session can still mint access tokens.
func (s *Session) IsActive() bool {
	return s.State == SessionActive
}

// IsExpiredAt returns true if the session's refresh token has expired at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// IsActiveAt reports whether the session is active and unexpired at t.
// A session past its expiry is expired even before the sweeper records it.
func (s *Session) IsActiveAt(t time.Time) bool {
	return s.IsActive() && !s.IsExpiredAt(t)
}

// HashRefreshToken computes the SHA256 hash of a raw refresh token.
// Only the hash is stored.
func HashRefreshToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// SessionSummary is the session view returned to clients.
type SessionSummary struct {
	ID             string         `json:"id"`
	DeviceInfo     map[string]any `json:"deviceInfo"`
	IPAddress      string         `json:"ipAddress,omitempty"`
	UserAgent      string         `json:"userAgent,omitempty"`
	State          SessionState   `json:"state"`
	IsActive       bool           `json:"isActive"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
	ExpiresAt      time.Time      `json:"expiresAt"`
}

// Summary returns the client-facing view of s.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:             s.ID.String(),
		DeviceInfo:     s.DeviceInfo,
		IPAddress:      s.IPAddress,
		UserAgent:      s.UserAgent,
		State:          s.State,
		IsActive:       s.IsActive(),
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
	}
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session. Returns ErrConflict if the refresh token
	// ID or hash is already bound to a session.
	Create(ctx context.Context, session *Session) error

	// GetByID retrieves a session by its ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Session, error)

	// GetByRefreshHash retrieves a session by its refresh token hash.
	GetByRefreshHash(ctx context.Context, hash string) (*Session, error)

	// ListActiveByUser returns a user's sessions that are active and
	// unexpired at now, newest first.
	ListActiveByUser(ctx context.Context, userID ulid.ULID, now time.Time) ([]*Session, error)

	// Touch updates LastActivityAt for an active session.
	Touch(ctx context.Context, id ulid.ULID, at time.Time) error

	// Revoke marks an active, unexpired session owned by userID as revoked
	// and returns it. Returns ErrNotFound if no such session matches both.
	Revoke(ctx context.Context, id, userID ulid.ULID, at time.Time, reason string) (*Session, error)

	// ExpireStale marks active sessions whose refresh token expired before
	// now as expired and returns the count.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// SessionStore records refresh-token-backed sessions. It maps repository
// failures onto error kinds and bounds every call with a timeout.
type SessionStore struct {
	repo    SessionRepository
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// SessionStoreOption configures a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithSessionClock overrides the clock used for activity, revocation and
// expiry checks.
func WithSessionClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) { s.now = now }
}

// NewSessionStore creates a SessionStore. A zero timeout disables the bound.
func NewSessionStore(repo SessionRepository, timeout time.Duration, logger *slog.Logger, opts ...SessionStoreOption) (*SessionStore, error) {
	if repo == nil {
		return nil, oops.Code("SESSION_STORE_INVALID").Errorf("session repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &SessionStore{repo: repo, timeout: timeout, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create opens a session for userID bound to the refresh token.
func (s *SessionStore) Create(ctx context.Context, id, userID ulid.ULID, refresh token.Issued, device DeviceContext) (*Session, error) {
	session, err := NewSession(id, userID, refresh, device, s.now().UTC())
	if err != nil {
		return nil, InternalError("SESSION_CREATE_FAILED", "Failed to create session", err)
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Create(ctx, session); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, &Error{
				Kind:    KindConflict,
				Code:    "SESSION_TOKEN_BOUND",
				Message: "Refresh token is already bound to a session",
				Err:     err,
			}
		}
		return nil, InternalError("SESSION_CREATE_FAILED", "Failed to create session", err)
	}
	return session, nil
}

// Touch records activity on a session. Failures are logged and never returned.
func (s *SessionStore) Touch(ctx context.Context, id ulid.ULID) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Touch(ctx, id, s.now().UTC()); err != nil {
		s.logger.WarnContext(ctx, "session touch failed",
			"session_id", id.String(),
			"error", err)
	}
}

// Revoke revokes a session owned by userID.
func (s *SessionStore) Revoke(ctx context.Context, id, userID ulid.ULID, reason string) (*Session, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.repo.Revoke(ctx, id, userID, s.now().UTC(), reason)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &Error{
				Kind:    KindNotFound,
				Code:    "SESSION_NOT_FOUND",
				Message: "Session not found",
				Err:     err,
			}
		}
		return nil, InternalError("SESSION_REVOKE_FAILED", "Failed to revoke session", err)
	}
	return session, nil
}

// FindByRefreshToken looks up the session bound to a raw refresh token.
func (s *SessionStore) FindByRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.repo.GetByRefreshHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &Error{
				Kind:    KindNotFound,
				Code:    "SESSION_NOT_FOUND",
				Message: "Session not found",
				Err:     err,
			}
		}
		return nil, InternalError("SESSION_LOOKUP_FAILED", "Failed to look up session", err)
	}
	return session, nil
}

// ListActive returns the active, unexpired sessions of a user.
func (s *SessionStore) ListActive(ctx context.Context, userID ulid.ULID) ([]*Session, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	sessions, err := s.repo.ListActiveByUser(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, InternalError("SESSION_LIST_FAILED", "Failed to list sessions", err)
	}
	return sessions, nil
}

// ExpireStale marks sessions whose refresh token expired before now.
func (s *SessionStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.repo.ExpireStale(ctx, now)
	if err != nil {
		return 0, InternalError("SESSION_EXPIRE_FAILED", "Failed to expire sessions", err)
	}
	return n, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
