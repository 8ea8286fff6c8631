// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package auth

// LoginOutcome labels the result of an authentication attempt.
type LoginOutcome string

// Login outcomes.
const (
	OutcomeSuccess  LoginOutcome = "success"
	OutcomeInvalid  LoginOutcome = "invalid"
	OutcomeLocked   LoginOutcome = "locked"
	OutcomeInactive LoginOutcome = "inactive"
	OutcomeUnknown  LoginOutcome = "unknown"
)

// Recorder receives security events from the Service.
type Recorder interface {
	UserRegistered()
	LoginAttempt(outcome LoginOutcome)
	AccountLocked()
	PasswordChanged()
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) UserRegistered() {}
func (NopRecorder) LoginAttempt(_ LoginOutcome) {}
func (NopRecorder) AccountLocked() {}
func (NopRecorder) PasswordChanged() {}

var _ Recorder = NopRecorder{}
