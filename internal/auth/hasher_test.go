// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/streambox/auth-service/internal/auth"
)

func TestArgon2idHasher_Hash(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("produces argon2id PHC string", func(t *testing.T) {
		hash, err := hasher.Hash("Secret1!")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
	})

	t.Run("same password produces different hashes", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		assert.ErrorIs(t, err, auth.ErrEmptyPassword)
	})
}

func TestArgon2idHasher_Verify(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		ok, err := hasher.Verify("correct horse", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password fails without error", func(t *testing.T) {
		ok, err := hasher.Verify("wrong horse", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	malformed := []struct {
		name string
		hash string
		msg  string
	}{
		{name: "not a PHC string", hash: "not-a-valid-hash", msg: "invalid hash format"},
		{name: "argon2i algorithm", hash: "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", msg: "unsupported hash algorithm"},
		{name: "bad version", hash: "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{name: "unknown version", hash: "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA", msg: "unsupported argon2 version"},
		{name: "bad parameters", hash: "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{name: "bad salt", hash: "$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA"},
		{name: "bad key", hash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!"},
		{name: "threads overflow", hash: "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA", msg: "threads value"},
		{name: "zero threads", hash: "$argon2id$v=19$m=65536,t=1,p=0$c2FsdA$aGFzaA", msg: "threads value"},
	}
	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := hasher.Verify("password", tt.hash)
			require.Error(t, err)
			assert.False(t, ok)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestArgon2idHasher_LegacyBcrypt(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	legacy, err := bcrypt.GenerateFromPassword([]byte("Secret1!"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("verifies bcrypt hash", func(t *testing.T) {
		ok, err := hasher.Verify("Secret1!", string(legacy))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("bcrypt mismatch is not an error", func(t *testing.T) {
		ok, err := hasher.Verify("Secret2!", string(legacy))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("truncated bcrypt hash is an error", func(t *testing.T) {
		_, err := hasher.Verify("Secret1!", "$2a$10$short")
		assert.Error(t, err)
	})

	t.Run("bcrypt hash needs upgrade", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade(string(legacy)))
	})

	t.Run("argon2id hash does not need upgrade", func(t *testing.T) {
		hash, err := hasher.Hash("Secret1!")
		require.NoError(t, err)
		assert.False(t, hasher.NeedsUpgrade(hash))
	})
}
