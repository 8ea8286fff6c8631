// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package grpc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AuthorizationHeader is the metadata key carrying "Bearer <token>".
const AuthorizationHeader = "authorization"

const bearerScheme = "bearer"

type ctxKey string

const subjectKey ctxKey = "subject"

// TokenValidator checks a bearer token and returns its subject.
type TokenValidator interface {
	Validate(token string, now time.Time) (string, error)
}

// RequestRecorder counts finished RPCs by method and status code.
type RequestRecorder interface {
	RecordRequest(method, code string)
}

// ProtectedMethods require a valid bearer token.
var ProtectedMethods = map[string]bool{
	MethodChangePassword: true,
	MethodLogout:         true,
	MethodWhoAmI:         true,
}

// SubjectFromContext returns the username proven by the bearer token.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey).(string)
	return subject, ok && subject != ""
}

func withSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// BearerInterceptor rejects calls to protected methods that lack a valid
// bearer token and stores the token subject in the handler context.
func BearerInterceptor(tokens TokenValidator, protected map[string]bool, now func() time.Time, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !protected[info.FullMethod] {
			return handler(ctx, req)
		}

		raw, ok := bearerToken(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		subject, err := tokens.Validate(raw, now())
		if err != nil {
			logger.DebugContext(ctx, "bearer token rejected", "method", info.FullMethod, "error", err)
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}
		return handler(withSubject(ctx, subject), req)
	}
}

func bearerToken(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get(AuthorizationHeader)
	if len(values) == 0 {
		return "", false
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(values[0]), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// MetricsInterceptor reports every call to rec once it completes.
func MetricsInterceptor(rec RequestRecorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		rec.RecordRequest(info.FullMethod, status.Code(err).String())
		return resp, err
	}
}
