// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gymcrm/gymcrm/internal/auth"

// DefaultRegisterRetries bounds how often Register re-runs credential
// assignment after losing a username race to a concurrent registration.
const DefaultRegisterRetries = 4

// Service is the account security engine: credential assignment,
// authentication with lockout, password rotation and activation.
type Service struct {
	users           UserRepository
	hasher          PasswordHasher
	lockout         LockoutPolicy
	passwords       PasswordPolicy
	metrics         Recorder
	logger          *slog.Logger
	tracer          trace.Tracer
	now             func() time.Time
	registerRetries uint64

	// dummyHash is verified for unknown usernames so they cost the same
	// as a wrong password under the configured algorithm and parameters.
	dummyHash string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLockoutPolicy overrides the lockout threshold and duration.
func WithLockoutPolicy(p LockoutPolicy) ServiceOption {
	return func(s *Service) {
		s.lockout = p
	}
}

// WithPasswordPolicy overrides the policy for generated passwords.
func WithPasswordPolicy(p PasswordPolicy) ServiceOption {
	return func(s *Service) {
		s.passwords = p
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		s.metrics = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithClock sets the time source. Used for testing.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithRegisterRetries sets how many times Register retries a username race.
func WithRegisterRetries(n uint64) ServiceOption {
	return func(s *Service) {
		s.registerRetries = n
	}
}

// NewService creates a Service.
func NewService(users UserRepository, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}

	s := &Service{
		users:           users,
		hasher:          hasher,
		lockout:         DefaultLockoutPolicy(),
		passwords:       DefaultPasswordPolicy(),
		metrics:         NopRecorder{},
		logger:          slog.Default(),
		tracer:          otel.Tracer(tracerName),
		now:             time.Now,
		registerRetries: DefaultRegisterRetries,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.lockout.Validate(); err != nil {
		return nil, err
	}
	if err := s.passwords.Validate(); err != nil {
		return nil, err
	}

	secret, err := GeneratePassword(s.passwords)
	if err != nil {
		return nil, err
	}
	if s.dummyHash, err = hasher.Hash(secret); err != nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").With("operation", "hash dummy password").Wrap(err)
	}
	return s, nil
}

// IsUsernameTaken reports whether a user with the exact username exists.
// Repository errors other than not-found are returned unchanged.
func (s *Service) IsUsernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// AssignCredentials produces a username that is free at call time and a
// fresh random password. Candidates are tried in the order base, base0,
// base1 and so on. Names that normalize to nothing yield the empty base.
func (s *Service) AssignCredentials(ctx context.Context, firstName, lastName string) (username, password string, err error) {
	base := BaseUsername(firstName, lastName)
	if base == "" {
		s.logger.WarnContext(ctx, "names normalize to an empty username base",
			"first_name", firstName,
			"last_name", lastName,
		)
	}

	username, err = s.nextAvailableUsername(ctx, base)
	if err != nil {
		return "", "", err
	}

	password, err = GeneratePassword(s.passwords)
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

func (s *Service) nextAvailableUsername(ctx context.Context, base string) (string, error) {
	for n := 0; n < math.MaxInt; n++ {
		candidate := CandidateUsername(base, n)
		taken, err := s.IsUsernameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", oops.Code(CodeUsernameExhausted).
		With("base", base).
		Errorf("no free username for base %q", base)
}

// Register creates an active user for the given names and returns it with
// the plaintext password. The password is never stored or logged.
func (s *Service) Register(ctx context.Context, firstName, lastName string) (*User, string, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer span.End()

	if strings.TrimSpace(firstName) == "" || strings.TrimSpace(lastName) == "" {
		return nil, "", oops.Code(CodeInvalidName).Errorf("first and last name are required")
	}
	if BaseUsername(firstName, lastName) == "" {
		return nil, "", oops.Code(CodeInvalidName).
			With("first_name", firstName).
			With("last_name", lastName).
			Errorf("names must contain letters or digits")
	}

	var (
		user     *User
		password string
	)
	backoff := retry.WithMaxRetries(s.registerRetries, retry.NewExponential(5*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		username, pw, err := s.AssignCredentials(ctx, firstName, lastName)
		if err != nil {
			return err
		}
		hash, err := s.hasher.Hash(pw)
		if err != nil {
			return err
		}
		u, err := NewUser(username, firstName, lastName, hash, s.now())
		if err != nil {
			return err
		}
		if err := s.users.Create(ctx, u); err != nil {
			if errors.Is(err, ErrUsernameTaken) {
				s.logger.DebugContext(ctx, "username claimed concurrently, retrying", "username", username)
				return retry.RetryableError(err)
			}
			return err
		}
		user, password = u, pw
		return nil
	})
	if errors.Is(err, ErrUsernameTaken) {
		recordSpanError(span, err)
		s.logger.WarnContext(ctx, "username assignment lost every retry", "error", err)
		return nil, "", oops.Code(CodeUsernameExhausted).
			With("first_name", firstName).
			With("last_name", lastName).
			With("attempts", s.registerRetries+1).
			Wrap(ErrUsernameTaken)
	}
	if err != nil {
		recordSpanError(span, err)
		return nil, "", oops.Code(CodeRegisterFailed).
			With("first_name", firstName).
			With("last_name", lastName).
			Wrap(err)
	}

	span.SetAttributes(attribute.String("username", user.Username))
	s.metrics.UserRegistered()
	s.logger.InfoContext(ctx, "user registered", "username", user.Username)
	return user, password, nil
}

// Authenticate checks a username/password pair and maintains the lockout
// state. Unknown, deactivated and wrong-password attempts return false
// with a nil error; an account inside its lockout window returns an error
// matching ErrAccountLocked whatever the password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Authenticate",
		trace.WithAttributes(attribute.String("username", username)))
	defer span.End()

	var (
		outcome     LoginOutcome
		lockApplied bool
		lockUntil   time.Time
	)
	err := s.users.Modify(ctx, username, func(u *User) (bool, error) {
		now := s.now()
		lockApplied = false

		if !u.IsActive {
			outcome = OutcomeInactive
			return false, nil
		}
		if IsLockedAt(u.LockUntil, now) {
			outcome = OutcomeLocked
			lockUntil = *u.LockUntil
			return false, nil
		}

		changed := s.lockout.ClearExpired(u, now)

		if !s.hasher.Verify(password, u.PasswordHash) {
			outcome = OutcomeInvalid
			lockApplied = s.lockout.RecordFailure(u, now)
			if lockApplied {
				lockUntil = *u.LockUntil
			}
			u.UpdatedAt = now
			return true, nil
		}

		outcome = OutcomeSuccess
		if s.lockout.RecordSuccess(u) {
			changed = true
		}
		if s.hasher.NeedsUpgrade(u.PasswordHash) {
			if hash, hashErr := s.hasher.Hash(password); hashErr == nil {
				u.PasswordHash = hash
				changed = true
			} else {
				s.logger.WarnContext(ctx, "password rehash failed", "username", username, "error", hashErr)
			}
		}
		if changed {
			u.UpdatedAt = now
		}
		return changed, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Keep timing uniform with the wrong-password path.
			s.hasher.Verify(password, s.dummyHash)
			s.metrics.LoginAttempt(OutcomeUnknown)
			s.logger.DebugContext(ctx, "login for unknown username", "username", username)
			return false, nil
		}
		recordSpanError(span, err)
		return false, oops.Code(CodeLoginFailed).
			With("operation", "authenticate").
			With("username", username).
			Wrap(err)
	}

	s.metrics.LoginAttempt(outcome)
	span.SetAttributes(attribute.String("outcome", string(outcome)))

	switch outcome {
	case OutcomeSuccess:
		s.logger.DebugContext(ctx, "login succeeded", "username", username)
		return true, nil
	case OutcomeLocked:
		return false, oops.Code(CodeAccountLocked).
			With("username", username).
			With("locked_until", lockUntil).
			Wrap(ErrAccountLocked)
	case OutcomeInvalid:
		if lockApplied {
			s.metrics.AccountLocked()
			s.logger.InfoContext(ctx, "account locked after repeated failures",
				"username", username,
				"locked_until", lockUntil,
			)
		}
		return false, nil
	default:
		s.logger.DebugContext(ctx, "login refused", "username", username, "outcome", string(outcome))
		return false, nil
	}
}

// ChangePassword replaces the password after verifying the old one. It
// leaves the failure counter and lock untouched.
func (s *Service) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	ctx, span := s.tracer.Start(ctx, "auth.ChangePassword",
		trace.WithAttributes(attribute.String("username", username)))
	defer span.End()

	err := s.users.Modify(ctx, username, func(u *User) (bool, error) {
		if !s.hasher.Verify(oldPassword, u.PasswordHash) {
			return false, ErrInvalidCredentials
		}
		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return false, err
		}
		u.PasswordHash = hash
		u.UpdatedAt = s.now()
		return true, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return oops.Code(CodeUserNotFound).
			With("username", username).
			Wrapf(ErrNotFound, "user profile not found for password change")
	case errors.Is(err, ErrInvalidCredentials):
		return oops.Code(CodeInvalidCredentials).
			With("username", username).
			Wrapf(ErrInvalidCredentials, "incorrect old password")
	default:
		recordSpanError(span, err)
		return oops.Code(CodePasswordChange).
			With("username", username).
			Wrap(err)
	}

	s.metrics.PasswordChanged()
	s.logger.InfoContext(ctx, "password changed", "username", username)
	return nil
}

// SetActive activates or deactivates an account. Deactivated accounts
// cannot authenticate; their counters are preserved.
func (s *Service) SetActive(ctx context.Context, username string, active bool) error {
	err := s.users.Modify(ctx, username, func(u *User) (bool, error) {
		if u.IsActive == active {
			return false, nil
		}
		u.IsActive = active
		u.UpdatedAt = s.now()
		return true, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeUserNotFound).
				With("username", username).
				Wrap(ErrNotFound)
		}
		return oops.Code("AUTH_SET_ACTIVE_FAILED").
			With("username", username).
			With("active", active).
			Wrap(err)
	}
	s.logger.InfoContext(ctx, "account activation changed", "username", username, "active", active)
	return nil
}

// State returns the current account state of username.
func (s *Service) State(ctx context.Context, username string) (AccountState, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, oops.Code(CodeUserNotFound).
				With("username", username).
				Wrap(ErrNotFound)
		}
		return 0, err
	}
	return u.State(s.now()), nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
