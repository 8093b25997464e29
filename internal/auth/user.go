// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// UserStatus is the account state of a user.
type UserStatus string

// User statuses.
const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User is a user account as stored by a UserDirectory.
type User struct {
	ID              ulid.ULID
	Email           string
	PasswordHash    string
	FirstName       string
	LastName        string
	PhoneNumber     string
	Age             int
	PreferredGenres []string
	Status          UserStatus
	EmailVerified   bool
	LastLoginAt     *time.Time
	FailedAttempts  int
	LockedUntil     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Profile holds the descriptive fields supplied at registration.
type Profile struct {
	FirstName       string
	LastName        string
	PhoneNumber     string
	Age             int
	PreferredGenres []string
}

// NewUser creates a validated User. The email is normalized to lower case.
func NewUser(email, passwordHash string, profile Profile) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_PASSWORD").Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &User{
		ID:              ulid.Make(),
		Email:           email,
		PasswordHash:    passwordHash,
		FirstName:       strings.TrimSpace(profile.FirstName),
		LastName:        strings.TrimSpace(profile.LastName),
		PhoneNumber:     profile.PhoneNumber,
		Age:             profile.Age,
		PreferredGenres: profile.PreferredGenres,
		Status:          UserStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// NormalizeEmail trims and lower-cases an email address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsDisabled reports whether the account may not log in.
func (u *User) IsDisabled() bool {
	return u.Status == UserStatusDisabled
}

// IsLockedAt reports whether a failed-login lockout is still in force at t.
func (u *User) IsLockedAt(t time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(t)
}

// PublicUser is the sanitized view of a User. It never carries the password hash.
type PublicUser struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	PhoneNumber     string     `json:"phoneNumber,omitempty"`
	Age             int        `json:"age,omitempty"`
	PreferredGenres []string   `json:"preferredGenres,omitempty"`
	Status          UserStatus `json:"status"`
	EmailVerified   bool       `json:"emailVerified"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Public returns the sanitized view of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID.String(),
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		PhoneNumber:     u.PhoneNumber,
		Age:             u.Age,
		PreferredGenres: u.PreferredGenres,
		Status:          u.Status,
		EmailVerified:   u.EmailVerified,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
	}
}

// UserDirectory manages user persistence.
type UserDirectory interface {
	// FindByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// Create stores a new user. Returns ErrConflict if the email is taken.
	Create(ctx context.Context, user *User) error

	// UpdateLastLogin records a successful login and clears the failed-login
	// counter and any lockout.
	UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// RecordLoginFailure increments the failed-login counter and, once it
	// reaches threshold, locks the account until lockUntil. A lock still in
	// force at now is left as is; a lapsed lock restarts the count at one.
	// Returns the new count.
	RecordLoginFailure(ctx context.Context, id ulid.ULID, threshold int, now, lockUntil time.Time) (int, error)

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error
}
