// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

// Package mocks provides testify mocks of the auth package's collaborators.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/streambox/auth-service/internal/auth"
	"github.com/streambox/auth-service/internal/token"
)

// mockT is the subset of testing.T the constructors need.
type mockT interface {
	mock.TestingT
	Cleanup(func())
}

func register(t mockT, m *mock.Mock) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

// MockUserDirectory mocks auth.UserDirectory.
type MockUserDirectory struct{ mock.Mock }

// NewMockUserDirectory creates a MockUserDirectory that asserts its
// expectations when the test ends.
func NewMockUserDirectory(t mockT) *MockUserDirectory {
	m := &MockUserDirectory{}
	register(t, &m.Mock)
	return m
}

func (m *MockUserDirectory) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUserDirectory) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUserDirectory) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserDirectory) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockUserDirectory) RecordLoginFailure(ctx context.Context, id ulid.ULID, threshold int, now, lockUntil time.Time) (int, error) {
	args := m.Called(ctx, id, threshold, now, lockUntil)
	return args.Int(0), args.Error(1)
}

func (m *MockUserDirectory) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	return m.Called(ctx, id, hash).Error(0)
}

// MockSessionRepository mocks auth.SessionRepository.
type MockSessionRepository struct{ mock.Mock }

// NewMockSessionRepository creates a MockSessionRepository.
func NewMockSessionRepository(t mockT) *MockSessionRepository {
	m := &MockSessionRepository{}
	register(t, &m.Mock)
	return m
}

func (m *MockSessionRepository) Create(ctx context.Context, session *auth.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	args := m.Called(ctx, id)
	session, _ := args.Get(0).(*auth.Session)
	return session, args.Error(1)
}

func (m *MockSessionRepository) GetByRefreshHash(ctx context.Context, hash string) (*auth.Session, error) {
	args := m.Called(ctx, hash)
	session, _ := args.Get(0).(*auth.Session)
	return session, args.Error(1)
}

func (m *MockSessionRepository) ListActiveByUser(ctx context.Context, userID ulid.ULID, now time.Time) ([]*auth.Session, error) {
	args := m.Called(ctx, userID, now)
	sessions, _ := args.Get(0).([]*auth.Session)
	return sessions, args.Error(1)
}

func (m *MockSessionRepository) Touch(ctx context.Context, id ulid.ULID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockSessionRepository) Revoke(ctx context.Context, id, userID ulid.ULID, at time.Time, reason string) (*auth.Session, error) {
	args := m.Called(ctx, id, userID, at, reason)
	session, _ := args.Get(0).(*auth.Session)
	return session, args.Error(1)
}

func (m *MockSessionRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

// MockBlacklistRepository mocks auth.BlacklistRepository.
type MockBlacklistRepository struct{ mock.Mock }

// NewMockBlacklistRepository creates a MockBlacklistRepository.
func NewMockBlacklistRepository(t mockT) *MockBlacklistRepository {
	m := &MockBlacklistRepository{}
	register(t, &m.Mock)
	return m
}

func (m *MockBlacklistRepository) Insert(ctx context.Context, entry *auth.BlacklistEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockBlacklistRepository) Exists(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBlacklistRepository) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	args := m.Called(ctx, now, limit)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct{ mock.Mock }

// NewMockPasswordHasher creates a MockPasswordHasher.
func NewMockPasswordHasher(t mockT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	register(t, &m.Mock)
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockCodec mocks token.Codec.
type MockCodec struct{ mock.Mock }

// NewMockCodec creates a MockCodec.
func NewMockCodec(t mockT) *MockCodec {
	m := &MockCodec{}
	register(t, &m.Mock)
	return m
}

func (m *MockCodec) IssueAccessToken(id token.Identity) (token.Issued, error) {
	args := m.Called(id)
	issued, _ := args.Get(0).(token.Issued)
	return issued, args.Error(1)
}

func (m *MockCodec) IssueRefreshToken(id token.Identity) (token.Issued, error) {
	args := m.Called(id)
	issued, _ := args.Get(0).(token.Issued)
	return issued, args.Error(1)
}

func (m *MockCodec) VerifyAccessToken(raw string) token.Verification {
	v, _ := m.Called(raw).Get(0).(token.Verification)
	return v
}

func (m *MockCodec) VerifyRefreshToken(raw string) token.Verification {
	v, _ := m.Called(raw).Get(0).(token.Verification)
	return v
}

func (m *MockCodec) ExtractBearer(header string) (string, bool) {
	args := m.Called(header)
	return args.String(0), args.Bool(1)
}

// Compile-time interface checks.
var (
	_ auth.UserDirectory       = (*MockUserDirectory)(nil)
	_ auth.SessionRepository   = (*MockSessionRepository)(nil)
	_ auth.BlacklistRepository = (*MockBlacklistRepository)(nil)
	_ auth.PasswordHasher      = (*MockPasswordHasher)(nil)
	_ token.Codec              = (*MockCodec)(nil)
)
