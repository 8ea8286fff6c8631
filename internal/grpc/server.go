// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

// Package grpc exposes the account engine and token service as the
// gymcrm.auth.v1.AuthService gRPC service, and provides a client for it.
package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gymcrm/gymcrm/internal/auth"
	"github.com/gymcrm/gymcrm/pkg/errutil"
)

// Accounts is the subset of auth.Service the transport needs.
type Accounts interface {
	Register(ctx context.Context, firstName, lastName string) (*auth.User, string, error)
	Authenticate(ctx context.Context, username, password string) (bool, error)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
}

// Tokens issues and validates bearer tokens.
type Tokens interface {
	TokenValidator
	Issue(username string, now time.Time) (string, error)
	Expiry(now time.Time) time.Time
}

// AuthServer implements AuthServiceServer.
type AuthServer struct {
	accounts Accounts
	tokens   Tokens
	logger   *slog.Logger
	now      func() time.Time
}

var _ AuthServiceServer = (*AuthServer)(nil)

// AuthServerOption configures an AuthServer.
type AuthServerOption func(*AuthServer)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) AuthServerOption {
	return func(s *AuthServer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source used for token issue and validation.
func WithClock(now func() time.Time) AuthServerOption {
	return func(s *AuthServer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAuthServer creates an AuthServer.
func NewAuthServer(accounts Accounts, tokens Tokens, opts ...AuthServerOption) *AuthServer {
	s := &AuthServer{
		accounts: accounts,
		tokens:   tokens,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewGRPCServer builds a grpc.Server with the metrics and bearer
// interceptors installed and the auth service registered. rec may be nil.
func NewGRPCServer(srv *AuthServer, rec RequestRecorder, opts ...grpc.ServerOption) *grpc.Server {
	interceptors := make([]grpc.UnaryServerInterceptor, 0, 2)
	if rec != nil {
		interceptors = append(interceptors, MetricsInterceptor(rec))
	}
	interceptors = append(interceptors, BearerInterceptor(srv.tokens, ProtectedMethods, srv.now, srv.logger))

	opts = append(opts, grpc.ChainUnaryInterceptor(interceptors...))
	gs := grpc.NewServer(opts...)
	RegisterAuthServiceServer(gs, srv)
	return gs
}

// Register creates a user and returns its generated credentials.
func (s *AuthServer) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	user, password, err := s.accounts.Register(ctx, req.FirstName, req.LastName)
	if err != nil {
		if errutil.Code(err) == auth.CodeInvalidName {
			return nil, status.Error(codes.InvalidArgument, "first and last name must contain letters or digits")
		}
		return nil, s.internal(ctx, "register failed", err)
	}

	s.logger.InfoContext(ctx, "user registered", "username", user.Username)
	return &RegisterResponse{Username: user.Username, Password: password}, nil
}

// Login verifies credentials and issues a bearer token.
func (s *AuthServer) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "username and password are required")
	}

	ok, err := s.accounts.Authenticate(ctx, req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrAccountLocked):
		return nil, status.Error(codes.FailedPrecondition, "account locked")
	case err != nil:
		return nil, s.internal(ctx, "login failed", err)
	case !ok:
		return nil, status.Error(codes.Unauthenticated, "invalid username or password")
	}

	now := s.now()
	token, err := s.tokens.Issue(req.Username, now)
	if err != nil {
		return nil, s.internal(ctx, "token issue failed", err)
	}
	return &LoginResponse{Token: token, ExpiresAt: s.tokens.Expiry(now).UTC()}, nil
}

// ChangePassword replaces the password of the token subject.
func (s *AuthServer) ChangePassword(ctx context.Context, req *ChangePasswordRequest) (*ChangePasswordResponse, error) {
	subject, ok := SubjectFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	if req.Username != subject {
		return nil, status.Error(codes.PermissionDenied, "can only change your own password")
	}

	err := s.accounts.ChangePassword(ctx, req.Username, req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
		return &ChangePasswordResponse{}, nil
	case errors.Is(err, auth.ErrNotFound):
		return nil, status.Error(codes.NotFound, "user not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return nil, status.Error(codes.InvalidArgument, "incorrect old password")
	case errors.Is(err, auth.ErrEmptyPassword):
		return nil, status.Error(codes.InvalidArgument, "new password cannot be empty")
	default:
		return nil, s.internal(ctx, "password change failed", err)
	}
}

// Logout acknowledges the caller. Tokens are stateless; the client drops it.
func (s *AuthServer) Logout(ctx context.Context, _ *LogoutRequest) (*LogoutResponse, error) {
	subject, ok := SubjectFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	s.logger.InfoContext(ctx, "user logged out", "username", subject)
	return &LogoutResponse{}, nil
}

// WhoAmI returns the token subject.
func (s *AuthServer) WhoAmI(ctx context.Context, _ *WhoAmIRequest) (*WhoAmIResponse, error) {
	subject, ok := SubjectFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	return &WhoAmIResponse{Username: subject}, nil
}

func (s *AuthServer) internal(ctx context.Context, msg string, err error) error {
	errutil.LogErrorContext(ctx, s.logger, msg, err)
	return status.Error(codes.Internal, "internal error")
}
