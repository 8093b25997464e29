// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

// Package auth implements the token and session lifecycle of StreamBox.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User with a normalized email and a password hash
//   - NewSession - creates an active Session bound to a refresh token
//
// Direct struct initialization bypasses validation and may create invalid state.
//
// # Stores
//
// SessionStore and BlacklistStore wrap their repositories, bound each call
// with a timeout and translate repository failures into error kinds.
// Repository implementations live in the postgres and memstore subpackages.
//
// # Services
//
// Service coordinates registration, login, refresh, logout and access-token
// authentication. Sweeper purges expired blacklist entries and marks expired
// sessions on a schedule.
//
// # Errors
//
// Every error returned by Service carries a Kind (see KindOf). Credential
// failures always carry the same generic message.
package auth
