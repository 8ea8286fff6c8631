// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Lockout defaults.
const (
	// DefaultLockoutThreshold is the number of consecutive failures that locks an account.
	DefaultLockoutThreshold = 3

	// DefaultLockoutDuration is how long a locked account refuses authentication.
	DefaultLockoutDuration = 5 * time.Minute
)

// LockoutPolicy decides when repeated failures lock an account.
type LockoutPolicy struct {
	// Threshold is the failure count that triggers a lock.
	Threshold int

	// Duration is the length of the lock.
	Duration time.Duration
}

// DefaultLockoutPolicy returns the standard three-strikes, five-minute policy.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold: DefaultLockoutThreshold,
		Duration:  DefaultLockoutDuration,
	}
}

// Validate checks the policy is usable.
func (p LockoutPolicy) Validate() error {
	if p.Threshold < 1 {
		return oops.Code("AUTH_INVALID_POLICY").
			With("threshold", p.Threshold).
			Errorf("lockout threshold must be at least 1")
	}
	if p.Duration <= 0 {
		return oops.Code("AUTH_INVALID_POLICY").
			With("duration", p.Duration.String()).
			Errorf("lockout duration must be positive")
	}
	return nil
}

// IsLockedAt returns true if lockUntil is set and later than now.
func IsLockedAt(lockUntil *time.Time, now time.Time) bool {
	return lockUntil != nil && lockUntil.After(now)
}

// ClearExpired removes a lock whose window has passed and resets the
// failure counter. Returns true if the user changed.
func (p LockoutPolicy) ClearExpired(u *User, now time.Time) bool {
	if u.LockUntil == nil || u.LockUntil.After(now) {
		return false
	}
	u.LockUntil = nil
	u.FailedLoginAttempts = 0
	return true
}

// RecordFailure increments the failure counter and locks the account when
// the threshold is reached. Returns true if this failure applied the lock.
func (p LockoutPolicy) RecordFailure(u *User, now time.Time) bool {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts < p.Threshold {
		return false
	}
	lockUntil := now.Add(p.Duration)
	u.LockUntil = &lockUntil
	return true
}

// RecordSuccess resets the failure counter and any lock remnant.
// Returns true if the user changed.
func (p LockoutPolicy) RecordSuccess(u *User) bool {
	if u.FailedLoginAttempts == 0 && u.LockUntil == nil {
		return false
	}
	u.FailedLoginAttempts = 0
	u.LockUntil = nil
	return true
}
