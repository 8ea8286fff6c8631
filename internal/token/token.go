// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

// Package token issues and validates stateless bearer tokens (HS256 JWTs)
// bound to an authenticated username.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinKeyLength is the minimum signing key size in bytes.
const MinKeyLength = 32

// Defaults.
const (
	DefaultTTL    = time.Hour
	DefaultIssuer = "gymcrm"
)

// CodeInvalid is the oops code of every validation failure.
const CodeInvalid = "AUTH_TOKEN_INVALID"

// ErrInvalid is matched by every validation failure. Invalid tokens are a
// normal outcome; callers re-authenticate.
var ErrInvalid = errors.New("invalid token")

// Claims are the registered JWT claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
}

// Service issues and validates tokens with a fixed key.
type Service struct {
	key    []byte
	ttl    time.Duration
	issuer string
}

// NewService creates a Service. The key is copied; later changes to the
// caller's slice have no effect.
func NewService(key []byte, ttl time.Duration, issuer string) (*Service, error) {
	if len(key) < MinKeyLength {
		return nil, oops.Code("TOKEN_KEY_INVALID").
			With("min_length", MinKeyLength).
			Errorf("signing key must be at least %d bytes", MinKeyLength)
	}
	if ttl <= 0 {
		return nil, oops.Code("TOKEN_TTL_INVALID").
			With("ttl", ttl.String()).
			Errorf("token ttl must be positive")
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}

	k := make([]byte, len(key))
	copy(k, key)
	return &Service{key: k, ttl: ttl, issuer: issuer}, nil
}

// TTL returns the token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Expiry returns the expiry Issue signs for a token issued at now. JWT
// timestamps have whole-second precision, so it is now+ttl truncated to
// the second.
func (s *Service) Expiry(now time.Time) time.Time {
	return now.Add(s.ttl).Truncate(jwt.TimePrecision)
}

// Issue signs a token for username valid from now until Expiry(now).
// The caller must have authenticated username already.
func (s *Service) Issue(username string, now time.Time) (string, error) {
	if username == "" {
		return "", oops.Code("TOKEN_ISSUE_FAILED").Errorf("subject cannot be empty")
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.Expiry(now)),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").With("username", username).Wrap(err)
	}
	return signed, nil
}

// Validate checks the signature and expiry at now and returns the subject.
// A token is expired once now reaches its expiry.
func (s *Service) Validate(tokenString string, now time.Time) (string, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
	)

	tok, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil {
		return "", invalid(reason(err))
	}
	if !tok.Valid {
		return "", invalid("invalid")
	}
	if claims.Subject == "" {
		return "", invalid("missing subject")
	}
	return claims.Subject, nil
}

// ExtractSubject decodes the subject without verifying the signature or
// expiry. For logging and diagnostics only, never for authorization.
// Returns "" for anything it cannot decode.
func (s *Service) ExtractSubject(tokenString string) string {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return ""
	}
	return claims.Subject
}

func invalid(why string) error {
	return oops.Code(CodeInvalid).With("reason", why).Wrap(ErrInvalid)
}

func reason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing claim"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	default:
		return "invalid"
	}
}
