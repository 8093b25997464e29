// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// DefaultPurgeBatchSize bounds how many blacklist rows one purge statement deletes.
const DefaultPurgeBatchSize = 1000

// BlacklistEntry is one revoked access token.
type BlacklistEntry struct {
	TokenID   string
	UserID    string
	Reason    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// BlacklistRepository manages revoked-token persistence.
type BlacklistRepository interface {
	// Insert stores an entry. Inserting an existing token ID is a no-op.
	Insert(ctx context.Context, entry *BlacklistEntry) error

	// Exists reports whether tokenID is blacklisted.
	Exists(ctx context.Context, tokenID string) (bool, error)

	// DeleteExpired removes up to limit entries with ExpiresAt <= now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

// BlacklistStore is the set of revoked access-token IDs. Reads always go to
// the repository; negative answers are never cached.
type BlacklistStore struct {
	repo      BlacklistRepository
	timeout   time.Duration
	batchSize int
	now       func() time.Time
}

// NewBlacklistStore creates a BlacklistStore. A zero timeout disables the bound.
func NewBlacklistStore(repo BlacklistRepository, timeout time.Duration) (*BlacklistStore, error) {
	if repo == nil {
		return nil, oops.Code("BLACKLIST_STORE_INVALID").Errorf("blacklist repository is required")
	}
	return &BlacklistStore{
		repo:      repo,
		timeout:   timeout,
		batchSize: DefaultPurgeBatchSize,
		now:       time.Now,
	}, nil
}

// Revoke blacklists tokenID until expiresAt. Revoking twice is a no-op.
func (b *BlacklistStore) Revoke(ctx context.Context, tokenID, userID string, expiresAt time.Time, reason string) error {
	if tokenID == "" {
		return TokenError("TOKEN_MISSING_ID", "Token has no identifier")
	}

	ctx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	entry := &BlacklistEntry{
		TokenID:   tokenID,
		UserID:    userID,
		Reason:    reason,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: b.now().UTC(),
	}
	if err := b.repo.Insert(ctx, entry); err != nil {
		return InternalError("BLACKLIST_REVOKE_FAILED", "Failed to revoke token", err)
	}
	return nil
}

// IsRevoked reports whether tokenID has been blacklisted.
func (b *BlacklistStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()

	revoked, err := b.repo.Exists(ctx, tokenID)
	if err != nil {
		return false, InternalError("BLACKLIST_CHECK_FAILED", "Failed to check token status", err)
	}
	return revoked, nil
}

// PurgeExpired deletes entries whose expiry is at or before now, in batches,
// and returns the total removed.
func (b *BlacklistStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		n, err := b.purgeBatch(ctx, now)
		total += n
		if err != nil {
			return total, InternalError("BLACKLIST_PURGE_FAILED", "Failed to purge blacklist", err)
		}
		if n < int64(b.batchSize) {
			return total, nil
		}
	}
}

func (b *BlacklistStore) purgeBatch(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, b.timeout)
	defer cancel()
	return b.repo.DeleteExpired(ctx, now, b.batchSize)
}
