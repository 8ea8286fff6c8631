// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// AccountState is the security state of an account at a given instant.
// It is derived from the stored fields and never persisted.
type AccountState int

// Account states.
const (
	StateActiveUnlocked AccountState = iota
	StateActiveLocked
	StateDeactivated
)

// String returns the canonical name of the state.
func (s AccountState) String() string {
	switch s {
	case StateActiveUnlocked:
		return "ACTIVE_UNLOCKED"
	case StateActiveLocked:
		return "ACTIVE_LOCKED"
	case StateDeactivated:
		return "DEACTIVATED"
	default:
		return "UNKNOWN"
	}
}

// User is the credential record of a trainee or trainer.
type User struct {
	ID                  ulid.ULID
	Username            string
	FirstName           string
	LastName            string
	PasswordHash        string
	IsActive            bool
	FailedLoginAttempts int
	LockUntil           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewUser creates an active User with a fresh ID.
func NewUser(username, firstName, lastName, passwordHash string, now time.Time) (*User, error) {
	if strings.TrimSpace(passwordHash) == "" {
		return nil, oops.Code("AUTH_INVALID_PASSWORD").Errorf("password hash cannot be empty")
	}
	return &User{
		ID:           ulid.Make(),
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// State computes the account state at now.
func (u *User) State(now time.Time) AccountState {
	if !u.IsActive {
		return StateDeactivated
	}
	if IsLockedAt(u.LockUntil, now) {
		return StateActiveLocked
	}
	return StateActiveUnlocked
}

// Clone returns a deep copy, so repositories can hand out records without
// sharing the LockUntil pointer.
func (u *User) Clone() *User {
	c := *u
	if u.LockUntil != nil {
		t := *u.LockUntil
		c.LockUntil = &t
	}
	return &c
}

// ModifyFunc mutates a user inside a repository's atomic read-modify-write.
// It reports whether the record changed and must be written back. Errors
// abort the modification and are returned by Modify unchanged.
type ModifyFunc func(u *User) (bool, error)

// UserRepository manages user persistence keyed by username.
type UserRepository interface {
	// GetByUsername retrieves a user by exact username.
	// Returns ErrNotFound if no user has the given username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Create stores a new user. Returns ErrUsernameTaken if the username exists.
	Create(ctx context.Context, user *User) error

	// Update overwrites an existing user.
	Update(ctx context.Context, user *User) error

	// Modify loads the user, applies fn and persists the result when fn
	// reports a change. Concurrent Modify calls for the same username are
	// serialized, so no update is lost.
	Modify(ctx context.Context, username string, fn ModifyFunc) error
}
