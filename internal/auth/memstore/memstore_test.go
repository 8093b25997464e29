// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streambox/auth-service/internal/auth"
	"github.com/streambox/auth-service/internal/auth/memstore"
	"github.com/streambox/auth-service/internal/token"
)

func TestUsers(t *testing.T) {
	ctx := context.Background()
	users := memstore.NewUsers()

	user, err := auth.NewUser("a@b.com", "$argon2id$hash", auth.Profile{PreferredGenres: []string{"Drama"}})
	require.NoError(t, err)
	require.NoError(t, users.Create(ctx, user))

	t.Run("duplicate email conflicts", func(t *testing.T) {
		dup, err := auth.NewUser("A@B.com", "$argon2id$hash", auth.Profile{})
		require.NoError(t, err)
		assert.ErrorIs(t, users.Create(ctx, dup), auth.ErrConflict)
	})

	t.Run("returns copies", func(t *testing.T) {
		got, err := users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		got.PreferredGenres[0] = "Horror"
		got.Email = "changed@b.com"

		again, err := users.FindByEmail(ctx, "a@b.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"Drama"}, again.PreferredGenres)
	})

	t.Run("updates", func(t *testing.T) {
		at := time.Now().UTC()
		require.NoError(t, users.UpdateLastLogin(ctx, user.ID, at))
		require.NoError(t, users.UpdatePasswordHash(ctx, user.ID, "$argon2id$new"))

		got, err := users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastLoginAt)
		assert.True(t, got.LastLoginAt.Equal(at))
		assert.Equal(t, "$argon2id$new", got.PasswordHash)
	})

	t.Run("login failures lock without extending a running lock", func(t *testing.T) {
		now := time.Now().UTC()
		lockUntil := now.Add(15 * time.Minute)
		for want := 1; want <= 3; want++ {
			n, err := users.RecordLoginFailure(ctx, user.ID, 3, now, lockUntil)
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}

		_, err := users.RecordLoginFailure(ctx, user.ID, 3, now.Add(time.Minute), lockUntil.Add(time.Minute))
		require.NoError(t, err)
		got, err := users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LockedUntil)
		assert.True(t, got.LockedUntil.Equal(lockUntil))

		after := lockUntil.Add(time.Second)
		n, err := users.RecordLoginFailure(ctx, user.ID, 3, after, after.Add(15*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		got, err = users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, got.LockedUntil)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := users.GetByID(ctx, ulid.Make())
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.ErrorIs(t, users.UpdateLastLogin(ctx, ulid.Make(), time.Now()), auth.ErrNotFound)
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := users.FindByEmail(canceled, "a@b.com")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func newSession(t *testing.T, userID ulid.ULID, raw string, expires time.Time) *auth.Session {
	t.Helper()
	session, err := auth.NewSession(ulid.Make(), userID, token.Issued{
		Token: raw, ID: raw + "-id", IssuedAt: time.Now(), ExpiresAt: expires,
	}, auth.DeviceContext{}, time.Now().UTC())
	require.NoError(t, err)
	return session
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	sessions := memstore.NewSessions()
	userID := ulid.Make()
	session := newSession(t, userID, "raw-1", time.Now().Add(time.Hour))
	require.NoError(t, sessions.Create(ctx, session))

	t.Run("refresh token binds one session", func(t *testing.T) {
		dup := newSession(t, ulid.Make(), "raw-1", time.Now().Add(time.Hour))
		assert.ErrorIs(t, sessions.Create(ctx, dup), auth.ErrConflict)
	})

	t.Run("lookup by hash", func(t *testing.T) {
		got, err := sessions.GetByRefreshHash(ctx, auth.HashRefreshToken("raw-1"))
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)

		_, err = sessions.GetByRefreshHash(ctx, auth.HashRefreshToken("raw-2"))
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("revoke requires owner", func(t *testing.T) {
		_, err := sessions.Revoke(ctx, session.ID, ulid.Make(), time.Now(), auth.ReasonLogout)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("revoke is one way", func(t *testing.T) {
		revoked, err := sessions.Revoke(ctx, session.ID, userID, time.Now(), auth.ReasonLogout)
		require.NoError(t, err)
		assert.Equal(t, auth.SessionRevoked, revoked.State)
		require.NotNil(t, revoked.RevokedAt)

		_, err = sessions.Revoke(ctx, session.ID, userID, time.Now(), auth.ReasonLogout)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.ErrorIs(t, sessions.Touch(ctx, session.ID, time.Now()), auth.ErrNotFound)

		active, err := sessions.ListActiveByUser(ctx, userID, time.Now())
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("sessions past expiry are neither listed nor revocable", func(t *testing.T) {
		owner := ulid.Make()
		lapsing := newSession(t, owner, "raw-lapsing", time.Now().Add(time.Minute))
		require.NoError(t, sessions.Create(ctx, lapsing))
		later := time.Now().Add(2 * time.Minute)

		active, err := sessions.ListActiveByUser(ctx, owner, time.Now())
		require.NoError(t, err)
		assert.Len(t, active, 1)

		active, err = sessions.ListActiveByUser(ctx, owner, later)
		require.NoError(t, err)
		assert.Empty(t, active)

		_, err = sessions.Revoke(ctx, lapsing.ID, owner, later, auth.ReasonRevoked)
		assert.ErrorIs(t, err, auth.ErrNotFound)

		got, err := sessions.GetByID(ctx, lapsing.ID)
		require.NoError(t, err)
		assert.Nil(t, got.RevokedAt)
	})

	t.Run("expire stale", func(t *testing.T) {
		stale := newSession(t, userID, "raw-stale", time.Now().Add(-time.Minute))
		require.NoError(t, sessions.Create(ctx, stale))

		n, err := sessions.ExpireStale(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := sessions.GetByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, auth.SessionExpired, got.State)

		n, err = sessions.ExpireStale(ctx, time.Now())
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestBlacklist(t *testing.T) {
	ctx := context.Background()
	bl := memstore.NewBlacklist()
	now := time.Now().UTC()

	for i, offset := range []time.Duration{-3 * time.Minute, -2 * time.Minute, -time.Minute, time.Minute} {
		require.NoError(t, bl.Insert(ctx, &auth.BlacklistEntry{
			TokenID:   ulid.Make().String() + string(rune('a'+i)),
			ExpiresAt: now.Add(offset),
		}))
	}

	n, err := bl.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "limit bounds a batch")

	n, err = bl.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, bl.Len())

	exists, err := bl.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}
