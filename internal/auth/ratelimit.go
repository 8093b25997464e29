// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package auth

import (
	"time"
)

// Failed-login lockout defaults.
const (
	// DefaultLockoutThreshold is the number of consecutive failures that locks an account.
	DefaultLockoutThreshold = 7

	// DefaultLockoutDuration is how long a locked account stays locked.
	DefaultLockoutDuration = 15 * time.Minute
)

// LockoutPolicy locks an account after repeated failed logins.
// The zero value disables lockout.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy returns the default lockout policy.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: DefaultLockoutThreshold, Duration: DefaultLockoutDuration}
}

// Enabled reports whether the policy locks accounts at all.
func (p LockoutPolicy) Enabled() bool {
	return p.Threshold > 0 && p.Duration > 0
}

// LockUntil returns the lockout expiry for the given failure count, or nil
// when the count is below the threshold.
func (p LockoutPolicy) LockUntil(failures int, now time.Time) *time.Time {
	if !p.Enabled() || failures < p.Threshold {
		return nil
	}
	until := now.Add(p.Duration)
	return &until
}

// LockoutRemaining returns how long lockedUntil still holds at now.
func LockoutRemaining(lockedUntil *time.Time, now time.Time) time.Duration {
	if lockedUntil == nil || !lockedUntil.After(now) {
		return 0
	}
	return lockedUntil.Sub(now)
}
