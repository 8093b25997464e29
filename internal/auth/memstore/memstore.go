// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

// Package memstore provides in-memory auth repositories for development and
// tests. Uniqueness is enforced under a mutex, matching the unique indexes of
// the postgres schema. Returned values are copies.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/streambox/auth-service/internal/auth"
)

// Users implements auth.UserDirectory.
type Users struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
}

// NewUsers creates an empty user directory.
func NewUsers() *Users {
	return &Users{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// FindByEmail retrieves a user by email (case-insensitive).
func (u *Users) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u.mu.RLock()
	defer u.mu.RUnlock()

	id, ok := u.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return cloneUser(u.byID[id]), nil
}

// GetByID retrieves a user by ID.
func (u *Users) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return cloneUser(user), nil
}

// Create stores a new user. Returns auth.ErrConflict if the email is taken.
func (u *Users) Create(ctx context.Context, user *auth.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	email := auth.NormalizeEmail(user.Email)
	if _, taken := u.byEmail[email]; taken {
		return oops.Code("USER_EMAIL_TAKEN").Wrap(auth.ErrConflict)
	}
	if _, taken := u.byID[user.ID]; taken {
		return oops.Code("USER_ID_TAKEN").With("id", user.ID.String()).Wrap(auth.ErrConflict)
	}
	stored := cloneUser(user)
	stored.Email = email
	u.byID[user.ID] = stored
	u.byEmail[email] = user.ID
	return nil
}

// UpdateLastLogin records a successful login.
func (u *Users) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	return u.update(ctx, id, func(user *auth.User) {
		user.LastLoginAt = &at
		user.FailedAttempts = 0
		user.LockedUntil = nil
		user.UpdatedAt = at
	})
}

// RecordLoginFailure increments the failed-login counter, locking the
// account once it reaches threshold. A running lock is never extended.
func (u *Users) RecordLoginFailure(ctx context.Context, id ulid.ULID, threshold int, now, lockUntil time.Time) (int, error) {
	var failures int
	err := u.update(ctx, id, func(user *auth.User) {
		if user.IsLockedAt(now) {
			user.FailedAttempts++
			failures = user.FailedAttempts
			return
		}
		if user.LockedUntil != nil {
			user.FailedAttempts = 0
			user.LockedUntil = nil
		}
		user.FailedAttempts++
		if user.FailedAttempts >= threshold {
			user.LockedUntil = &lockUntil
		}
		user.UpdatedAt = time.Now().UTC()
		failures = user.FailedAttempts
	})
	return failures, err
}

// UpdatePasswordHash replaces the stored password hash.
func (u *Users) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	return u.update(ctx, id, func(user *auth.User) {
		user.PasswordHash = hash
		user.UpdatedAt = time.Now().UTC()
	})
}

// SetStatus changes a user's account status.
func (u *Users) SetStatus(ctx context.Context, id ulid.ULID, status auth.UserStatus) error {
	return u.update(ctx, id, func(user *auth.User) {
		user.Status = status
		user.UpdatedAt = time.Now().UTC()
	})
}

func (u *Users) update(ctx context.Context, id ulid.ULID, fn func(*auth.User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.byID[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	fn(user)
	return nil
}

func cloneUser(u *auth.User) *auth.User {
	c := *u
	c.PreferredGenres = slices.Clone(u.PreferredGenres)
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

// Sessions implements auth.SessionRepository.
type Sessions struct {
	mu          sync.RWMutex
	byID        map[ulid.ULID]*auth.Session
	byHash      map[string]ulid.ULID
	byRefreshID map[string]ulid.ULID
}

// NewSessions creates an empty session repository.
func NewSessions() *Sessions {
	return &Sessions{
		byID:        make(map[ulid.ULID]*auth.Session),
		byHash:      make(map[string]ulid.ULID),
		byRefreshID: make(map[string]ulid.ULID),
	}
}

// Create stores a new session. Returns auth.ErrConflict if the refresh token
// is already bound.
func (s *Sessions) Create(ctx context.Context, session *auth.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byHash[session.RefreshTokenHash]; taken {
		return oops.Code("SESSION_TOKEN_BOUND").Wrap(auth.ErrConflict)
	}
	if _, taken := s.byRefreshID[session.RefreshTokenID]; taken {
		return oops.Code("SESSION_TOKEN_BOUND").Wrap(auth.ErrConflict)
	}
	if _, taken := s.byID[session.ID]; taken {
		return oops.Code("SESSION_ID_TAKEN").With("id", session.ID.String()).Wrap(auth.ErrConflict)
	}
	s.byID[session.ID] = cloneSession(session)
	s.byHash[session.RefreshTokenHash] = session.ID
	s.byRefreshID[session.RefreshTokenID] = session.ID
	return nil
}

// GetByID retrieves a session by its ID.
func (s *Sessions) GetByID(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.byID[id]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return cloneSession(session), nil
}

// GetByRefreshHash retrieves a session by its refresh token hash.
func (s *Sessions) GetByRefreshHash(ctx context.Context, hash string) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return cloneSession(s.byID[id]), nil
}

// ListActiveByUser returns a user's unexpired active sessions, newest first.
func (s *Sessions) ListActiveByUser(ctx context.Context, userID ulid.ULID, now time.Time) ([]*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*auth.Session
	for _, session := range s.byID {
		if session.UserID == userID && session.IsActiveAt(now) {
			out = append(out, cloneSession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Touch updates LastActivityAt for an active session.
func (s *Sessions) Touch(ctx context.Context, id ulid.ULID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byID[id]
	if !ok || !session.IsActive() {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	session.LastActivityAt = at
	return nil
}

// Revoke marks an unexpired active session owned by userID as revoked.
func (s *Sessions) Revoke(ctx context.Context, id, userID ulid.ULID, at time.Time, reason string) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byID[id]
	if !ok || session.UserID != userID || !session.IsActiveAt(at) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			With("user_id", userID.String()).
			Wrap(auth.ErrNotFound)
	}
	session.State = auth.SessionRevoked
	session.RevokedAt = &at
	session.RevokeReason = reason
	return cloneSession(session), nil
}

// ExpireStale marks active sessions whose refresh token expired as expired.
func (s *Sessions) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, session := range s.byID {
		if session.IsActive() && session.IsExpiredAt(now) {
			session.State = auth.SessionExpired
			session.RevokeReason = auth.ReasonExpired
			n++
		}
	}
	return n, nil
}

func cloneSession(s *auth.Session) *auth.Session {
	c := *s
	c.DeviceInfo = maps.Clone(s.DeviceInfo)
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

// Blacklist implements auth.BlacklistRepository.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string]auth.BlacklistEntry
}

// NewBlacklist creates an empty blacklist repository.
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]auth.BlacklistEntry)}
}

// Insert stores an entry. Inserting an existing token ID is a no-op.
func (b *Blacklist) Insert(ctx context.Context, entry *auth.BlacklistEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[entry.TokenID]; !exists {
		b.entries[entry.TokenID] = *entry
	}
	return nil
}

// Exists reports whether tokenID is blacklisted.
func (b *Blacklist) Exists(ctx context.Context, tokenID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.entries[tokenID]
	return ok, nil
}

// DeleteExpired removes up to limit entries with ExpiresAt <= now.
func (b *Blacklist) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	for id, entry := range b.entries {
		if limit > 0 && n >= int64(limit) {
			break
		}
		if !entry.ExpiresAt.After(now) {
			delete(b.entries, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Compile-time interface checks.
var (
	_ auth.UserDirectory       = (*Users)(nil)
	_ auth.SessionRepository   = (*Sessions)(nil)
	_ auth.BlacklistRepository = (*Blacklist)(nil)
)
