// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package auth_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/streambox/auth-service/internal/auth"
	"github.com/streambox/auth-service/internal/auth/memstore"
	"github.com/streambox/auth-service/internal/auth/mocks"
	"github.com/streambox/auth-service/pkg/errutil"
)

func newBlacklist(t *testing.T) (*auth.BlacklistStore, *memstore.Blacklist) {
	t.Helper()
	repo := memstore.NewBlacklist()
	store, err := auth.NewBlacklistStore(repo, time.Second)
	require.NoError(t, err)
	return store, repo
}

func TestBlacklistStore_Revoke(t *testing.T) {
	ctx := context.Background()
	store, repo := newBlacklist(t)
	expires := time.Now().Add(15 * time.Minute)

	require.NoError(t, store.Revoke(ctx, "jti-1", "user-1", expires, auth.ReasonLogout))

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	t.Run("revoking twice is a no-op", func(t *testing.T) {
		require.NoError(t, store.Revoke(ctx, "jti-1", "user-1", expires, auth.ReasonLogout))
		assert.Equal(t, 1, repo.Len())
	})

	t.Run("unknown id is not revoked", func(t *testing.T) {
		revoked, err := store.IsRevoked(ctx, "jti-unknown")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("empty id is a token error", func(t *testing.T) {
		err := store.Revoke(ctx, "", "user-1", expires, auth.ReasonLogout)
		errutil.AssertErrorKind(t, err, string(auth.KindToken), "TOKEN_MISSING_ID")
	})
}

func TestBlacklistStore_RevokeVisibleToConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	store, _ := newBlacklist(t)
	expires := time.Now().Add(time.Hour)

	const workers = 32
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jti := fmt.Sprintf("jti-%d", i)
			if err := store.Revoke(ctx, jti, "user", expires, auth.ReasonLogout); err != nil {
				t.Errorf("revoke %s: %v", jti, err)
				return
			}
			// A caller that starts after a successful revoke must observe it.
			var readers sync.WaitGroup
			for range 4 {
				readers.Add(1)
				go func() {
					defer readers.Done()
					revoked, err := store.IsRevoked(ctx, jti)
					if err != nil || !revoked {
						t.Errorf("jti %s not visible after revoke: revoked=%v err=%v", jti, revoked, err)
					}
				}()
			}
			readers.Wait()
		}()
	}
	wg.Wait()
}

func TestBlacklistStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	store, repo := newBlacklist(t)
	now := time.Now().UTC()

	require.NoError(t, store.Revoke(ctx, "expired", "u", now.Add(-time.Minute), auth.ReasonLogout))
	require.NoError(t, store.Revoke(ctx, "boundary", "u", now, auth.ReasonLogout))
	require.NoError(t, store.Revoke(ctx, "live", "u", now.Add(time.Minute), auth.ReasonLogout))

	n, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, repo.Len())

	n, err = store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n, "second purge must remove nothing")

	revoked, err := store.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestBlacklistStore_PurgeExpiredBatches(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewMockBlacklistRepository(t)
	store, err := auth.NewBlacklistStore(repo, time.Second)
	require.NoError(t, err)
	now := time.Now()

	repo.On("DeleteExpired", mock.Anything, now, auth.DefaultPurgeBatchSize).
		Return(int64(auth.DefaultPurgeBatchSize), nil).Twice()
	repo.On("DeleteExpired", mock.Anything, now, auth.DefaultPurgeBatchSize).
		Return(int64(7), nil).Once()

	n, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2*auth.DefaultPurgeBatchSize+7), n)
}

func TestBlacklistStore_Failures(t *testing.T) {
	ctx := context.Background()
	repo := mocks.NewMockBlacklistRepository(t)
	store, err := auth.NewBlacklistStore(repo, time.Second)
	require.NoError(t, err)

	repo.On("Exists", mock.Anything, "jti").Return(false, errors.New("connection reset"))
	repo.On("Insert", mock.Anything, mock.AnythingOfType("*auth.BlacklistEntry")).Return(context.DeadlineExceeded)

	_, err = store.IsRevoked(ctx, "jti")
	errutil.AssertErrorKind(t, err, string(auth.KindInternal), "BLACKLIST_CHECK_FAILED")

	err = store.Revoke(ctx, "jti", "u", time.Now(), auth.ReasonLogout)
	errutil.AssertErrorKind(t, err, string(auth.KindInternal), "BLACKLIST_REVOKE_FAILED")
	assert.True(t, auth.IsRetryable(err))
}

func TestNewBlacklistStore_NilRepository(t *testing.T) {
	store, err := auth.NewBlacklistStore(nil, 0)
	assert.Nil(t, store)
	errutil.AssertErrorCode(t, err, "BLACKLIST_STORE_INVALID")
}
