// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/streambox/auth-service/internal/auth"
	"github.com/streambox/auth-service/internal/auth/mocks"
	"github.com/streambox/auth-service/internal/token"
	"github.com/streambox/auth-service/pkg/errutil"
)

func testRefresh() token.Issued {
	now := time.Now().UTC()
	return token.Issued{
		Token:     "header.payload." + ulid.Make().String(),
		ID:        ulid.Make().String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
	}
}

func TestNewSession(t *testing.T) {
	now := time.Now().UTC()
	refresh := testRefresh()

	t.Run("creates active session bound to refresh token", func(t *testing.T) {
		id, userID := ulid.Make(), ulid.Make()
		session, err := auth.NewSession(id, userID, refresh, auth.DeviceContext{
			Info:      map[string]any{"platform": "web"},
			IPAddress: "10.0.0.1",
			UserAgent: "Mozilla/5.0",
		}, now)
		require.NoError(t, err)

		assert.Equal(t, id, session.ID)
		assert.Equal(t, userID, session.UserID)
		assert.Equal(t, refresh.ID, session.RefreshTokenID)
		assert.Equal(t, auth.HashRefreshToken(refresh.Token), session.RefreshTokenHash)
		assert.NotEqual(t, refresh.Token, session.RefreshTokenHash)
		assert.Equal(t, refresh.ExpiresAt, session.ExpiresAt)
		assert.True(t, session.IsActive())
		assert.Nil(t, session.RevokedAt)
		assert.Equal(t, "web", session.DeviceInfo["platform"])
	})

	t.Run("nil device info becomes empty map", func(t *testing.T) {
		session, err := auth.NewSession(ulid.Make(), ulid.Make(), refresh, auth.DeviceContext{}, now)
		require.NoError(t, err)
		assert.NotNil(t, session.DeviceInfo)
	})

	invalid := []struct {
		name    string
		id      ulid.ULID
		userID  ulid.ULID
		refresh token.Issued
		code    string
	}{
		{"zero id", ulid.ULID{}, ulid.Make(), refresh, "SESSION_INVALID_ID"},
		{"zero user", ulid.Make(), ulid.ULID{}, refresh, "SESSION_INVALID_USER"},
		{"missing token", ulid.Make(), ulid.Make(), token.Issued{ID: "x", ExpiresAt: now}, "SESSION_INVALID_TOKEN"},
		{"missing expiry", ulid.Make(), ulid.Make(), token.Issued{Token: "t", ID: "x"}, "SESSION_INVALID_EXPIRY"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			session, err := auth.NewSession(tt.id, tt.userID, tt.refresh, auth.DeviceContext{}, now)
			assert.Nil(t, session)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestSession_IsExpiredAt(t *testing.T) {
	expires := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	session := &auth.Session{ExpiresAt: expires}

	assert.False(t, session.IsExpiredAt(expires.Add(-time.Second)))
	assert.True(t, session.IsExpiredAt(expires))
	assert.True(t, session.IsExpiredAt(expires.Add(time.Second)))
}

func TestHashRefreshToken(t *testing.T) {
	h1 := auth.HashRefreshToken("token-a")
	h2 := auth.HashRefreshToken("token-a")
	h3 := auth.HashRefreshToken("token-b")

	assert.Len(t, h1, 64)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

func TestSession_Summary(t *testing.T) {
	session, err := auth.NewSession(ulid.Make(), ulid.Make(), testRefresh(),
		auth.DeviceContext{Info: map[string]any{"os": "linux"}}, time.Now())
	require.NoError(t, err)

	summary := session.Summary()
	assert.Equal(t, session.ID.String(), summary.ID)
	assert.True(t, summary.IsActive)
	assert.Equal(t, auth.SessionActive, summary.State)
	assert.Equal(t, "linux", summary.DeviceInfo["os"])
}

func newSessionStore(t *testing.T, repo auth.SessionRepository, logger *slog.Logger) *auth.SessionStore {
	t.Helper()
	store, err := auth.NewSessionStore(repo, time.Second, logger)
	require.NoError(t, err)
	return store
}

func TestNewSessionStore_NilRepository(t *testing.T) {
	store, err := auth.NewSessionStore(nil, time.Second, nil)
	assert.Nil(t, store)
	errutil.AssertErrorCode(t, err, "SESSION_STORE_INVALID")
}

func TestSessionStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("persists session with a deadline", func(t *testing.T) {
		repo := mocks.NewMockSessionRepository(t)
		store := newSessionStore(t, repo, nil)

		repo.On("Create", mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := ctx.Deadline()
			return ok
		}), mock.AnythingOfType("*auth.Session")).Return(nil)

		session, err := store.Create(ctx, ulid.Make(), ulid.Make(), testRefresh(), auth.DeviceContext{})
		require.NoError(t, err)
		assert.True(t, session.IsActive())
	})

	t.Run("bound refresh token is a conflict", func(t *testing.T) {
		repo := mocks.NewMockSessionRepository(t)
		store := newSessionStore(t, repo, nil)

		repo.On("Create", mock.Anything, mock.Anything).
			Return(oops.Code("SESSION_TOKEN_BOUND").Wrap(auth.ErrConflict))

		_, err := store.Create(ctx, ulid.Make(), ulid.Make(), testRefresh(), auth.DeviceContext{})
		errutil.AssertErrorKind(t, err, string(auth.KindConflict), "SESSION_TOKEN_BOUND")
	})

	t.Run("storage failure is internal", func(t *testing.T) {
		repo := mocks.NewMockSessionRepository(t)
		store := newSessionStore(t, repo, nil)

		repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		_, err := store.Create(ctx, ulid.Make(), ulid.Make(), testRefresh(), auth.DeviceContext{})
		errutil.AssertErrorKind(t, err, string(auth.KindInternal), "SESSION_CREATE_FAILED")
	})
}

func TestSessionStore_Touch_BestEffort(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	repo := mocks.NewMockSessionRepository(t)
	store := newSessionStore(t, repo, logger)

	id := ulid.Make()
	repo.On("Touch", mock.Anything, id, mock.AnythingOfType("time.Time")).Return(errors.New("timeout"))

	store.Touch(context.Background(), id)

	assert.Contains(t, buf.String(), "session touch failed")
	assert.Contains(t, buf.String(), id.String())
}

func TestSessionStore_Revoke(t *testing.T) {
	ctx := context.Background()
	id, userID := ulid.Make(), ulid.Make()

	t.Run("not found when no active owned session matches", func(t *testing.T) {
		repo := mocks.NewMockSessionRepository(t)
		store := newSessionStore(t, repo, nil)

		repo.On("Revoke", mock.Anything, id, userID, mock.Anything, auth.ReasonLogout).
			Return(nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound))

		_, err := store.Revoke(ctx, id, userID, auth.ReasonLogout)
		errutil.AssertErrorKind(t, err, string(auth.KindNotFound), "SESSION_NOT_FOUND")
	})

	t.Run("returns revoked session", func(t *testing.T) {
		repo := mocks.NewMockSessionRepository(t)
		store := newSessionStore(t, repo, nil)

		revokedAt := time.Now()
		repo.On("Revoke", mock.Anything, id, userID, mock.Anything, auth.ReasonRevoked).
			Return(&auth.Session{ID: id, UserID: userID, State: auth.SessionRevoked, RevokedAt: &revokedAt}, nil)

		session, err := store.Revoke(ctx, id, userID, auth.ReasonRevoked)
		require.NoError(t, err)
		assert.False(t, session.IsActive())
	})
}

func TestSessionStore_FindByRefreshToken(t *testing.T) {
	ctx := context.Background()

	t.Run("looks up by hash", func(t *testing.T) {
		repo := mocks.NewMockSessionRepository(t)
		store := newSessionStore(t, repo, nil)

		want := &auth.Session{ID: ulid.Make(), State: auth.SessionActive}
		repo.On("GetByRefreshHash", mock.Anything, auth.HashRefreshToken("raw-token")).Return(want, nil)

		got, err := store.FindByRefreshToken(ctx, "raw-token")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
	})

	t.Run("timeout surfaces as retryable internal error", func(t *testing.T) {
		repo := mocks.NewMockSessionRepository(t)
		store := newSessionStore(t, repo, nil)

		repo.On("GetByRefreshHash", mock.Anything, mock.Anything).
			Return(nil, oops.Code("SESSION_GET_FAILED").Wrap(context.DeadlineExceeded))

		_, err := store.FindByRefreshToken(ctx, "raw-token")
		errutil.AssertErrorKind(t, err, string(auth.KindInternal), "SESSION_LOOKUP_FAILED")
		assert.True(t, auth.IsRetryable(err))
	})
}
