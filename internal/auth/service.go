// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/streambox/auth-service/internal/token"
	"github.com/streambox/auth-service/pkg/errutil"
)

var tracer = otel.Tracer("streambox/auth")

// Operation names used for spans and metrics.
const (
	OpRegister      = "register"
	OpLogin         = "login"
	OpRefresh       = "refresh"
	OpLogout        = "logout"
	OpAuthenticate  = "authenticate"
	OpProfile       = "profile"
	OpListSessions  = "list_sessions"
	OpRevokeSession = "revoke_session"
)

// LogoutMessage is returned by a successful logout.
const LogoutMessage = "User logged out successfully"

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// ServiceDeps holds the collaborators of a Service.
type ServiceDeps struct {
	Users     UserDirectory
	Sessions  *SessionStore
	Blacklist *BlacklistStore
	Codec     token.Codec
	Hasher    PasswordHasher

	// Lockout locks accounts after repeated failed logins. The zero value
	// disables it.
	Lockout LockoutPolicy

	// QueryTimeout bounds each UserDirectory call. Zero disables the bound.
	QueryTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *Metrics
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service orchestrates registration, login, token refresh and logout.
// It holds no mutable state; everything durable lives in its stores.
type Service struct {
	users        UserDirectory
	sessions     *SessionStore
	blacklist    *BlacklistStore
	codec        token.Codec
	hasher       PasswordHasher
	lockout      LockoutPolicy
	queryTimeout time.Duration
	logger       *slog.Logger
	metrics      *Metrics
	now          func() time.Time
}

// NewService creates a Service, validating that every required dependency is set.
func NewService(deps ServiceDeps) (*Service, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user directory is required")
	case deps.Sessions == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session store is required")
	case deps.Blacklist == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("blacklist store is required")
	case deps.Codec == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token codec is required")
	case deps.Hasher == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		users:        deps.Users,
		sessions:     deps.Sessions,
		blacklist:    deps.Blacklist,
		codec:        deps.Codec,
		hasher:       deps.Hasher,
		lockout:      deps.Lockout,
		queryTimeout: deps.QueryTimeout,
		logger:       logger,
		metrics:      deps.Metrics,
		now:          now,
	}, nil
}

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Email                string   `json:"email"`
	Password             string   `json:"password"`
	PasswordConfirmation string   `json:"passwordConfirmation"`
	FirstName            string   `json:"firstName"`
	LastName             string   `json:"lastName"`
	PhoneNumber          string   `json:"phoneNumber"`
	Age                  int      `json:"age"`
	PreferredGenres      []string `json:"preferredGenres"`
}

// LoginInput is the payload of a login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is the token bundle returned by a login.
type TokenPair struct {
	AccessToken        string    `json:"accessToken"`
	RefreshToken       string    `json:"refreshToken"`
	AccessTokenExpiry  time.Time `json:"accessTokenExpiry"`
	RefreshTokenExpiry time.Time `json:"refreshTokenExpiry"`
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	User    PublicUser     `json:"user"`
	Tokens  TokenPair      `json:"tokens"`
	Session SessionSummary `json:"session"`
}

// RefreshResult carries the newly minted access token.
type RefreshResult struct {
	AccessToken       string    `json:"accessToken"`
	AccessTokenExpiry time.Time `json:"accessTokenExpiry"`
}

// LogoutInput names the credentials to revoke. Either token may be empty.
// UserID, when set, must own both tokens.
type LogoutInput struct {
	AccessToken  string
	RefreshToken string
	UserID       ulid.ULID
}

// LogoutResult confirms a logout.
type LogoutResult struct {
	Message     string    `json:"message"`
	LoggedOutAt time.Time `json:"loggedOutAt"`
}

// Register creates a user account. It does not issue tokens; a session is
// only established by Login.
func (s *Service) Register(ctx context.Context, in RegisterInput) (_ PublicUser, err error) {
	ctx, span, start := s.begin(ctx, OpRegister)
	defer func() { s.end(ctx, span, OpRegister, start, err) }()

	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return PublicUser{}, ValidationError("VALIDATION_ERROR", "Email and password are required")
	}

	// The unique index is the enforcement point; this check only gives the
	// common case a clean error before paying for a hash.
	if _, lookupErr := s.findByEmail(ctx, email); lookupErr == nil {
		return PublicUser{}, userExists()
	} else if !errors.Is(lookupErr, ErrNotFound) {
		return PublicUser{}, InternalError("REGISTER_FAILED", "Failed to register user", lookupErr)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return PublicUser{}, InternalError("REGISTER_FAILED", "Failed to register user", err)
	}

	user, err := NewUser(email, hash, Profile{
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		PhoneNumber:     in.PhoneNumber,
		Age:             in.Age,
		PreferredGenres: in.PreferredGenres,
	})
	if err != nil {
		return PublicUser{}, InternalError("REGISTER_FAILED", "Failed to register user", err)
	}

	tctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()
	if err := s.users.Create(tctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return PublicUser{}, userExists()
		}
		return PublicUser{}, InternalError("REGISTER_FAILED", "Failed to register user", err)
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user.Public(), nil
}

// Login authenticates a user by email and password and opens a session.
// Uses constant-time operations to prevent timing-based email enumeration.
func (s *Service) Login(ctx context.Context, in LoginInput, device DeviceContext) (_ *LoginResult, err error) {
	ctx, span, start := s.begin(ctx, OpLogin)
	defer func() { s.end(ctx, span, OpLogin, start, err) }()

	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ValidationError("VALIDATION_ERROR", "Email and password are required")
	}

	user, lookupErr := s.findByEmail(ctx, email)

	// Determine which hash to verify against (real or dummy for timing attack prevention)
	targetHash := dummyPasswordHash
	found := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		found = true
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, InternalError("LOGIN_FAILED", "Failed to login", lookupErr)
	}

	// Always verify password (constant-time operation for timing attack prevention)
	valid, verifyErr := s.hasher.Verify(in.Password, targetHash)
	if verifyErr != nil {
		if !found {
			return nil, invalidCredentials()
		}
		return nil, InternalError("LOGIN_FAILED", "Failed to login", verifyErr)
	}
	now := s.now().UTC()

	// A locked account answers every password the same way and the attempt
	// does not count, so the lock neither confirms a guess nor extends itself.
	if found && user.IsLockedAt(now) {
		s.logger.WarnContext(ctx, "login attempt on locked account",
			"user_id", user.ID.String(),
			"retry_after", LockoutRemaining(user.LockedUntil, now).Round(time.Second).String())
		return nil, invalidCredentials()
	}
	if !found || !valid {
		if found {
			s.recordFailure(ctx, user, now)
		}
		return nil, invalidCredentials()
	}

	// Checked after verification so account state is not revealed by a
	// wrong password.
	if user.IsDisabled() {
		return nil, UnauthorizedError("ACCOUNT_DISABLED", "Account is disabled")
	}

	sessionID := ulid.Make()
	identity := token.Identity{
		UserID:    user.ID.String(),
		SessionID: sessionID.String(),
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}

	access, err := s.codec.IssueAccessToken(identity)
	if err != nil {
		return nil, InternalError("TOKEN_ISSUE_FAILED", "Failed to issue tokens", err)
	}
	refresh, err := s.codec.IssueRefreshToken(identity)
	if err != nil {
		return nil, InternalError("TOKEN_ISSUE_FAILED", "Failed to issue tokens", err)
	}

	// Login succeeds even if these side updates fail.
	s.recordLogin(ctx, user, in.Password, now)

	session, err := s.sessions.Create(ctx, sessionID, user.ID, refresh, device)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("user.id", user.ID.String()),
		attribute.String("session.id", session.ID.String()),
	)
	s.logger.InfoContext(ctx, "user logged in",
		"user_id", user.ID.String(),
		"session_id", session.ID.String(),
		"ip_address", device.IPAddress)

	return &LoginResult{
		User: user.Public(),
		Tokens: TokenPair{
			AccessToken:        access.Token,
			RefreshToken:       refresh.Token,
			AccessTokenExpiry:  access.ExpiresAt,
			RefreshTokenExpiry: refresh.ExpiresAt,
		},
		Session: session.Summary(),
	}, nil
}

// recordLogin updates the last-login time and upgrades legacy password hashes.
// Failures are logged and otherwise ignored.
func (s *Service) recordLogin(ctx context.Context, user *User, password string, now time.Time) {
	tctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	if err := s.users.UpdateLastLogin(tctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "update last login failed", errutil.Attrs(err)...)
	} else {
		user.LastLoginAt = &now
	}

	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	upgraded, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed", errutil.Attrs(err)...)
		return
	}
	if err := s.users.UpdatePasswordHash(tctx, user.ID, upgraded); err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", errutil.Attrs(err)...)
		return
	}
	user.PasswordHash = upgraded
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
}

// recordFailure counts a failed login against an existing account. Failures
// are logged and otherwise ignored.
func (s *Service) recordFailure(ctx context.Context, user *User, now time.Time) {
	if !s.lockout.Enabled() {
		return
	}
	tctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	failures, err := s.users.RecordLoginFailure(tctx, user.ID, s.lockout.Threshold, now, now.Add(s.lockout.Duration))
	if err != nil {
		s.logger.WarnContext(ctx, "record login failure failed", errutil.Attrs(err)...)
		return
	}
	if s.lockout.LockUntil(failures, now) != nil {
		s.logger.WarnContext(ctx, "account locked after failed logins",
			"user_id", user.ID.String(),
			"failures", failures)
	}
}

// Refresh mints a new access token from a refresh token. The refresh token is
// not rotated. Its session must still be active.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (_ *RefreshResult, err error) {
	ctx, span, start := s.begin(ctx, OpRefresh)
	defer func() { s.end(ctx, span, OpRefresh, start, err) }()

	v := s.codec.VerifyRefreshToken(refreshToken)
	if !v.Valid {
		if v.Expired {
			return nil, UnauthorizedError("REFRESH_TOKEN_EXPIRED", "Refresh token expired")
		}
		return nil, UnauthorizedError("INVALID_REFRESH_TOKEN", "Invalid refresh token")
	}

	session, err := s.sessions.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, sessionInactive()
		}
		return nil, err
	}
	if !session.IsActive() || session.IsExpiredAt(s.now()) || session.UserID.String() != v.Claims.Subject {
		return nil, sessionInactive()
	}

	access, err := s.codec.IssueAccessToken(v.Claims.Identity())
	if err != nil {
		return nil, InternalError("TOKEN_ISSUE_FAILED", "Failed to issue access token", err)
	}

	s.sessions.Touch(ctx, session.ID)

	span.SetAttributes(attribute.String("session.id", session.ID.String()))
	return &RefreshResult{AccessToken: access.Token, AccessTokenExpiry: access.ExpiresAt}, nil
}

// Logout blacklists the access token and revokes the refresh token's session.
// Both steps are attempted even if one fails.
func (s *Service) Logout(ctx context.Context, in LogoutInput) (_ *LogoutResult, err error) {
	ctx, span, start := s.begin(ctx, OpLogout)
	defer func() { s.end(ctx, span, OpLogout, start, err) }()

	owner := in.UserID
	var errs []error

	if in.AccessToken != "" {
		sub, stepErr := s.revokeAccessToken(ctx, in.AccessToken, owner)
		if stepErr != nil {
			errs = append(errs, stepErr)
		} else if owner.Compare(ulid.ULID{}) == 0 && sub != "" {
			if parsed, parseErr := ulid.Parse(sub); parseErr == nil {
				owner = parsed
			}
		}
	}

	if in.RefreshToken != "" {
		if stepErr := s.revokeRefreshToken(ctx, in.RefreshToken, owner); stepErr != nil {
			errs = append(errs, stepErr)
		}
	}

	if len(errs) > 0 {
		return nil, joinLogoutErrors(errs)
	}

	s.logger.InfoContext(ctx, "user logged out", "user_id", owner.String())
	return &LogoutResult{Message: LogoutMessage, LoggedOutAt: s.now().UTC()}, nil
}

// revokeAccessToken blacklists a still-valid access token and returns its
// subject. An already expired token needs no blacklist entry.
func (s *Service) revokeAccessToken(ctx context.Context, raw string, owner ulid.ULID) (string, error) {
	v := s.codec.VerifyAccessToken(raw)
	if v.Expired {
		return v.Claims.Subject, nil
	}
	if !v.Valid {
		return "", TokenError("INVALID_ACCESS_TOKEN", "Invalid access token")
	}
	if owner.Compare(ulid.ULID{}) != 0 && v.Claims.Subject != owner.String() {
		return "", UnauthorizedError("TOKEN_OWNER_MISMATCH", "Token does not belong to user")
	}
	if err := s.blacklist.Revoke(ctx, v.Claims.ID, v.Claims.Subject, v.Claims.Expiry(), ReasonLogout); err != nil {
		return "", err
	}
	return v.Claims.Subject, nil
}

// revokeRefreshToken revokes the session bound to a refresh token. A token
// with no session, or an already inactive one, has nothing left to revoke.
func (s *Service) revokeRefreshToken(ctx context.Context, raw string, owner ulid.ULID) error {
	session, err := s.sessions.FindByRefreshToken(ctx, raw)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil
		}
		return err
	}
	if !session.IsActive() {
		return nil
	}
	if owner.Compare(ulid.ULID{}) == 0 {
		owner = session.UserID
	}
	_, err = s.sessions.Revoke(ctx, session.ID, owner, ReasonLogout)
	return err
}

// joinLogoutErrors keeps a specific kind when every step failed with it and
// otherwise reports an internal failure.
func joinLogoutErrors(errs []error) error {
	if len(errs) == 1 && KindOf(errs[0]) != KindInternal {
		return errs[0]
	}

	joined := errors.Join(errs...)
	kind := KindOf(errs[0])
	retryable := true
	for _, e := range errs {
		if KindOf(e) != kind {
			kind = KindInternal
		}
		retryable = retryable && IsRetryable(e)
	}

	if kind != KindInternal {
		var first *Error
		if errors.As(errs[0], &first) {
			return &Error{Kind: kind, Code: first.Code, Message: first.Message, Err: joined}
		}
	}
	return &Error{
		Kind:      KindInternal,
		Code:      "LOGOUT_FAILED",
		Message:   "Failed to logout user",
		Retryable: retryable,
		Err:       joined,
	}
}

// Authenticate verifies an access token for a protected operation and checks
// that it has not been revoked.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (_ *token.Claims, err error) {
	ctx, span, start := s.begin(ctx, OpAuthenticate)
	defer func() { s.end(ctx, span, OpAuthenticate, start, err) }()

	v := s.codec.VerifyAccessToken(accessToken)
	if !v.Valid {
		if v.Expired {
			s.metrics.tokenCheck(TokenCheckExpired)
			return nil, UnauthorizedError("ACCESS_TOKEN_EXPIRED", "Access token expired")
		}
		s.metrics.tokenCheck(TokenCheckInvalid)
		return nil, UnauthorizedError("INVALID_ACCESS_TOKEN", "Invalid access token")
	}

	revoked, err := s.blacklist.IsRevoked(ctx, v.Claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		s.metrics.tokenCheck(TokenCheckRevoked)
		return nil, UnauthorizedError("TOKEN_REVOKED", "Token has been revoked")
	}

	s.metrics.tokenCheck(TokenCheckValid)
	span.SetAttributes(attribute.String("user.id", v.Claims.Subject))
	return v.Claims, nil
}

// Profile returns the sanitized user record for userID.
func (s *Service) Profile(ctx context.Context, userID ulid.ULID) (_ PublicUser, err error) {
	ctx, span, start := s.begin(ctx, OpProfile)
	defer func() { s.end(ctx, span, OpProfile, start, err) }()

	tctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	user, err := s.users.GetByID(tctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PublicUser{}, NotFoundError("USER_NOT_FOUND", "User not found")
		}
		return PublicUser{}, InternalError("PROFILE_FAILED", "Failed to load user", err)
	}
	return user.Public(), nil
}

// ListSessions returns the active sessions of userID.
func (s *Service) ListSessions(ctx context.Context, userID ulid.ULID) (_ []SessionSummary, err error) {
	ctx, span, start := s.begin(ctx, OpListSessions)
	defer func() { s.end(ctx, span, OpListSessions, start, err) }()

	sessions, err := s.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Summary())
	}
	return out, nil
}

// RevokeSession revokes one of userID's sessions.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID ulid.ULID) (_ SessionSummary, err error) {
	ctx, span, start := s.begin(ctx, OpRevokeSession)
	defer func() { s.end(ctx, span, OpRevokeSession, start, err) }()

	session, err := s.sessions.Revoke(ctx, sessionID, userID, ReasonRevoked)
	if err != nil {
		return SessionSummary{}, err
	}
	s.logger.InfoContext(ctx, "session revoked",
		"user_id", userID.String(),
		"session_id", sessionID.String())
	return session.Summary(), nil
}

func (s *Service) findByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.users.FindByEmail(ctx, email) //nolint:wrapcheck // callers classify
}

func (s *Service) begin(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := tracer.Start(ctx, "auth."+op)
	return ctx, span, time.Now()
}

func (s *Service) end(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if KindOf(err) == KindInternal {
			errutil.LogErrorContext(ctx, s.logger, "auth "+op+" failed", err)
		} else {
			s.logger.DebugContext(ctx, "auth "+op+" rejected", errutil.Attrs(err)...)
		}
	}
	span.End()
	s.metrics.observe(op, start, err)
}

func invalidCredentials() *Error {
	return UnauthorizedError("INVALID_CREDENTIALS", "Invalid email or password")
}

func userExists() *Error {
	return ConflictError("USER_EXISTS", "User with this email already exists")
}

func sessionInactive() *Error {
	return UnauthorizedError("SESSION_INACTIVE", "Session is no longer active")
}
