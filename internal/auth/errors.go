// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package auth

import "errors"

// Sentinel errors. Callers match them with errors.Is; the service and the
// repositories wrap them with oops codes and context.
var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is returned when a supplied password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is returned while an account is inside its lockout window.
	ErrAccountLocked = errors.New("account locked")

	// ErrEmptyPassword is returned when attempting to hash an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrUsernameTaken is returned by repositories when Create hits an existing username.
	ErrUsernameTaken = errors.New("username already taken")
)

// Error codes attached by the service layer.
const (
	CodeUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeEmptyPassword      = "AUTH_EMPTY_PASSWORD"
	CodeInvalidName        = "AUTH_INVALID_NAME"
	CodeLoginFailed        = "AUTH_LOGIN_FAILED"
	CodeRegisterFailed     = "AUTH_REGISTER_FAILED"
	CodePasswordChange     = "AUTH_PASSWORD_CHANGE_FAILED"
	CodeUsernameExhausted  = "AUTH_USERNAME_EXHAUSTED"
)
