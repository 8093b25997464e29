// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

// Package token issues and verifies the signed access and refresh tokens used
// by the auth service.
//
// Access and refresh tokens are signed with distinct HS256 secrets and carry an
// explicit type claim, so a token of one class is never accepted where the
// other is expected, even if the secrets were configured identically.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Type distinguishes access tokens from refresh tokens.
type Type string

// Token types.
const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// MinSecretLength is the minimum accepted length of a signing secret.
const MinSecretLength = 32

// DefaultBearerScheme is the authorization scheme used when none is configured.
const DefaultBearerScheme = "Bearer"

// Identity is the caller-supplied part of a token's claims.
type Identity struct {
	UserID    string
	SessionID string
	Email     string
	FirstName string
	LastName  string
}

// Claims is the full claim set embedded in a signed token.
type Claims struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sid,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the caller-supplied claims, used to mint a new access token
// from a verified refresh token.
func (c *Claims) Identity() Identity {
	return Identity{
		UserID:    c.Subject,
		SessionID: c.SessionID,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
}

// Expiry returns the token's expiry, or the zero time if it has none.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issued describes a freshly signed token.
type Issued struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verification is the outcome of verifying a token.
//
// Expired is only set when the signature, issuer, audience and type are all
// correct and the token's lifetime has elapsed. Claims is populated for valid
// and expired tokens and nil otherwise.
type Verification struct {
	Valid   bool
	Expired bool
	Claims  *Claims
	Err     error
}

// Codec issues and verifies tokens.
type Codec interface {
	IssueAccessToken(id Identity) (Issued, error)
	IssueRefreshToken(id Identity) (Issued, error)
	VerifyAccessToken(raw string) Verification
	VerifyRefreshToken(raw string) Verification
	ExtractBearer(header string) (string, bool)
}

// Sentinel verification failures.
var (
	ErrWrongType = errors.New("token type mismatch")
	ErrEmpty     = errors.New("token is empty")
)

// Config configures a JWTCodec.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	BearerScheme  string
}

// Option configures optional JWTCodec behavior.
type Option func(*JWTCodec)

// WithClock overrides the time source used for issuing and verifying tokens.
func WithClock(now func() time.Time) Option {
	return func(c *JWTCodec) {
		c.now = now
	}
}

// JWTCodec implements Codec with HS256-signed JWTs.
type JWTCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      string
	scheme        string
	now           func() time.Time
}

// NewJWTCodec validates cfg and returns a codec.
func NewJWTCodec(cfg Config, opts ...Option) (*JWTCodec, error) {
	if len(cfg.AccessSecret) < MinSecretLength {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("field", "access_secret").
			Errorf("access token secret must be at least %d characters", MinSecretLength)
	}
	if len(cfg.RefreshSecret) < MinSecretLength {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("field", "refresh_secret").
			Errorf("refresh token secret must be at least %d characters", MinSecretLength)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			Errorf("access and refresh token secrets must differ")
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("access_ttl", cfg.AccessTTL).
			With("refresh_ttl", cfg.RefreshTTL).
			Errorf("token lifetimes cannot be negative")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("issuer and audience are required")
	}

	scheme := cfg.BearerScheme
	if scheme == "" {
		scheme = DefaultBearerScheme
	}

	c := &JWTCodec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		scheme:        scheme,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *JWTCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *JWTCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccessToken signs an access token for id.
func (c *JWTCodec) IssueAccessToken(id Identity) (Issued, error) {
	return c.issue(id, TypeAccess, c.accessSecret, c.accessTTL)
}

// IssueRefreshToken signs a refresh token for id.
func (c *JWTCodec) IssueRefreshToken(id Identity) (Issued, error) {
	return c.issue(id, TypeRefresh, c.refreshSecret, c.refreshTTL)
}

// VerifyAccessToken verifies raw as an access token.
func (c *JWTCodec) VerifyAccessToken(raw string) Verification {
	return c.verify(raw, TypeAccess, c.accessSecret)
}

// VerifyRefreshToken verifies raw as a refresh token.
func (c *JWTCodec) VerifyRefreshToken(raw string) Verification {
	return c.verify(raw, TypeRefresh, c.refreshSecret)
}

// ExtractBearer returns the token from an Authorization header value of the
// form "<scheme> <token>".
func (c *JWTCodec) ExtractBearer(header string) (string, bool) {
	scheme, tok, found := strings.Cut(header, " ")
	if !found || scheme != c.scheme {
		return "", false
	}
	if tok == "" || strings.ContainsAny(tok, " \t\r\n") {
		return "", false
	}
	return tok, true
}

func (c *JWTCodec) issue(id Identity, typ Type, secret []byte, ttl time.Duration) (Issued, error) {
	if len(secret) == 0 {
		return Issued{}, oops.Code("TOKEN_SIGN_FAILED").
			With("token_type", string(typ)).
			Errorf("signing key unavailable")
	}

	now := c.now()
	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(ttl))
	jti := uuid.NewString()

	claims := &Claims{
		Type:      typ,
		SessionID: id.SessionID,
		Email:     id.Email,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  iat,
			ExpiresAt: exp,
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Issued{}, oops.Code("TOKEN_SIGN_FAILED").
			With("token_type", string(typ)).
			Wrap(err)
	}

	return Issued{
		Token:     signed,
		ID:        jti,
		IssuedAt:  iat.Time,
		ExpiresAt: exp.Time,
	}, nil
}

func (c *JWTCodec) verify(raw string, want Type, secret []byte) Verification {
	if raw == "" {
		return Verification{Err: ErrEmpty}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})

	switch {
	case err == nil:
		if claims.Type != want {
			return Verification{Err: ErrWrongType}
		}
		return Verification{Valid: true, Claims: claims}
	case errors.Is(err, jwt.ErrTokenExpired) && c.onlyExpired(err, claims, want):
		return Verification{Expired: true, Claims: claims, Err: err}
	default:
		return Verification{Err: err}
	}
}

// onlyExpired reports whether an expiry failure is the token's only defect.
// Signature verification precedes claim validation, so reaching the claim
// checks means the signature matched.
func (c *JWTCodec) onlyExpired(err error, claims *Claims, want Type) bool {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) ||
		errors.Is(err, jwt.ErrTokenInvalidIssuer) ||
		errors.Is(err, jwt.ErrTokenInvalidAudience) ||
		errors.Is(err, jwt.ErrTokenNotValidYet) ||
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued) {
		return false
	}
	return claims.Type == want && claims.Issuer == c.issuer
}

// Compile-time interface check.
var _ Codec = (*JWTCodec)(nil)
