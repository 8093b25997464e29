// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package auth_test

import (
	"encoding/json"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streambox/auth-service/internal/auth"
	"github.com/streambox/auth-service/pkg/errutil"
)

func TestNewUser(t *testing.T) {
	t.Run("creates active user with normalized email", func(t *testing.T) {
		user, err := auth.NewUser("  Alice@Example.COM ", "$argon2id$hash", auth.Profile{
			FirstName:       " Alice ",
			LastName:        "Liddell",
			Age:             30,
			PreferredGenres: []string{"Drama"},
		})
		require.NoError(t, err)

		assert.NotEqual(t, ulid.ULID{}, user.ID)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "Alice", user.FirstName)
		assert.Equal(t, auth.UserStatusActive, user.Status)
		assert.False(t, user.IsDisabled())
		assert.Nil(t, user.LastLoginAt)
		assert.Equal(t, user.CreatedAt, user.UpdatedAt)
	})

	t.Run("rejects empty email", func(t *testing.T) {
		user, err := auth.NewUser("   ", "$argon2id$hash", auth.Profile{})
		assert.Nil(t, user)
		errutil.AssertErrorCode(t, err, "USER_INVALID_EMAIL")
	})

	t.Run("rejects empty password hash", func(t *testing.T) {
		user, err := auth.NewUser("a@b.com", "", auth.Profile{})
		assert.Nil(t, user)
		errutil.AssertErrorCode(t, err, "USER_INVALID_PASSWORD")
	})
}

func TestUser_PublicOmitsPasswordHash(t *testing.T) {
	user, err := auth.NewUser("a@b.com", "$argon2id$super-secret-hash", auth.Profile{FirstName: "A"})
	require.NoError(t, err)

	data, err := json.Marshal(user.Public())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret-hash")
	assert.NotContains(t, string(data), "password")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, user.ID.String(), decoded["id"])
	assert.Equal(t, "a@b.com", decoded["email"])
	assert.Equal(t, "active", decoded["status"])
}
