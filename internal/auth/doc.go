// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

// Package auth provides credential generation, password hashing and the
// account security rules for GymCRM users.
//
// # Domain Types
//
// A User is created with NewUser, which rejects a blank password hash and
// starts the account active and unlocked. Direct struct initialization
// bypasses that check.
//
// A user is always in exactly one AccountState: ACTIVE_UNLOCKED,
// ACTIVE_LOCKED or DEACTIVATED. The locked state is derived from LockUntil
// and the current time, so an expired lock reads as unlocked even before it
// is cleared in storage.
//
// # Services
//
// Service coordinates registration, authentication and password changes on
// top of a UserRepository and a PasswordHasher. Every state transition on a
// stored user goes through UserRepository.Modify, which the memory, postgres,
// redis and sqlite subpackages implement atomically per username.
package auth
