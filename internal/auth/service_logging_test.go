// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package auth_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/streambox/auth-service/internal/auth"
	"github.com/streambox/auth-service/internal/auth/memstore"
	"github.com/streambox/auth-service/internal/auth/mocks"
	"github.com/streambox/auth-service/internal/token"
)

// logEntry is the subset of a JSON log line the assertions care about.
type logEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	ErrorCode string `json:"error_code"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func parseLogs(t *testing.T, buf *bytes.Buffer) []logEntry {
	t.Helper()
	var entries []logEntry
	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for scanner.Scan() {
		var entry logEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func findLog(entries []logEntry, msg string) (logEntry, bool) {
	for _, e := range entries {
		if e.Msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func TestService_Login_LogsLastLoginFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	users := mocks.NewMockUserDirectory(t)
	hasher := mocks.NewMockPasswordHasher(t)
	codec := mocks.NewMockCodec(t)
	sessions, err := auth.NewSessionStore(memstore.NewSessions(), time.Second, logger)
	require.NoError(t, err)
	blacklist, err := auth.NewBlacklistStore(memstore.NewBlacklist(), time.Second)
	require.NoError(t, err)
	svc, err := auth.NewService(auth.ServiceDeps{
		Users: users, Sessions: sessions, Blacklist: blacklist,
		Codec: codec, Hasher: hasher, Logger: logger,
	})
	require.NoError(t, err)

	user, err := auth.NewUser("a@b.com", "$argon2id$hash", auth.Profile{})
	require.NoError(t, err)
	expiry := time.Now().Add(time.Hour)

	users.On("FindByEmail", mock.Anything, "a@b.com").Return(user, nil)
	hasher.On("Verify", "Secret1!", "$argon2id$hash").Return(true, nil)
	hasher.On("NeedsUpgrade", "$argon2id$hash").Return(false)
	users.On("UpdateLastLogin", mock.Anything, user.ID, mock.Anything).Return(errors.New("database connection lost"))
	codec.On("IssueAccessToken", mock.Anything).Return(token.Issued{Token: "a", ID: "a-id", ExpiresAt: expiry}, nil)
	codec.On("IssueRefreshToken", mock.Anything).Return(token.Issued{Token: "r", ID: "r-id", ExpiresAt: expiry}, nil)

	_, err = svc.Login(context.Background(), auth.LoginInput{Email: "a@b.com", Password: "Secret1!"}, auth.DeviceContext{})
	require.NoError(t, err)

	entry, ok := findLog(parseLogs(t, &buf), "update last login failed")
	require.True(t, ok, "expected a warning for the failed side update")
	assert.Equal(t, "WARN", entry.Level)
	assert.Contains(t, entry.Error, "database connection lost")
}

func TestService_InternalFailuresAreLoggedWithCode(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	users := mocks.NewMockUserDirectory(t)
	sessions, err := auth.NewSessionStore(memstore.NewSessions(), time.Second, logger)
	require.NoError(t, err)
	blacklist, err := auth.NewBlacklistStore(memstore.NewBlacklist(), time.Second)
	require.NoError(t, err)
	svc, err := auth.NewService(auth.ServiceDeps{
		Users: users, Sessions: sessions, Blacklist: blacklist,
		Codec: mocks.NewMockCodec(t), Hasher: mocks.NewMockPasswordHasher(t), Logger: logger,
	})
	require.NoError(t, err)

	users.On("FindByEmail", mock.Anything, "a@b.com").Return(nil, errors.New("pool exhausted"))

	_, err = svc.Login(context.Background(), auth.LoginInput{Email: "a@b.com", Password: "Secret1!"}, auth.DeviceContext{})
	require.Error(t, err)

	entry, ok := findLog(parseLogs(t, &buf), "auth login failed")
	require.True(t, ok)
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "internal", entry.Kind)
	assert.Equal(t, "LOGIN_FAILED", entry.ErrorCode)
	assert.Contains(t, entry.Error, "pool exhausted")
}

func TestService_NeverLogsCredentials(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	_, err := e.svc.Register(ctx, registerInput("a@b.com"))
	require.NoError(t, err)
	login := e.login(t, "a@b.com")
	_, _ = e.svc.Login(ctx, auth.LoginInput{Email: "a@b.com", Password: "Wrong1!pass"}, auth.DeviceContext{})
	_, err = e.svc.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)
	_, err = e.svc.Logout(ctx, auth.LogoutInput{
		AccessToken:  login.Tokens.AccessToken,
		RefreshToken: login.Tokens.RefreshToken,
	})
	require.NoError(t, err)
	_, _ = e.svc.Authenticate(ctx, login.Tokens.AccessToken)

	stored, err := e.users.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)

	logs := e.logs.String()
	require.NotEmpty(t, logs)
	for _, secret := range []string{
		"Secret1!",
		"Wrong1!pass",
		stored.PasswordHash,
		login.Tokens.AccessToken,
		login.Tokens.RefreshToken,
	} {
		assert.NotContains(t, logs, secret)
	}

	entries := parseLogs(t, e.logs)
	entry, ok := findLog(entries, "user logged in")
	require.True(t, ok)
	assert.Equal(t, login.User.ID, entry.UserID)
	assert.Equal(t, login.Session.ID, entry.SessionID)
}
