// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package grpc

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
)

// Client wraps a gRPC connection to the auth service.
type Client struct {
	conn *grpc.ClientConn
}

// ClientConfig holds configuration for the gRPC client.
type ClientConfig struct {
	// Address is the target gRPC server address (e.g., "localhost:9000")
	Address string

	// KeepaliveTime is how often to ping the server (default: 10s)
	KeepaliveTime time.Duration

	// KeepaliveTimeout is how long to wait for ping response (default: 5s)
	KeepaliveTimeout time.Duration

	// TLS enables transport security. Nil dials in plaintext.
	TLS *tls.Config

	// DialOptions are appended after the defaults.
	DialOptions []grpc.DialOption
}

// NewClient creates a client for the auth service. The connection is
// established lazily on the first call.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Address == "" {
		return nil, oops.Code("GRPC_CLIENT_INVALID").Errorf("address is required")
	}
	if cfg.KeepaliveTime == 0 {
		cfg.KeepaliveTime = 10 * time.Second
	}
	if cfg.KeepaliveTimeout == 0 {
		cfg.KeepaliveTimeout = 5 * time.Second
	}

	creds := insecure.NewCredentials()
	if cfg.TLS != nil {
		creds = credentials.NewTLS(cfg.TLS)
	}

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	opts = append(opts, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, oops.Code("GRPC_CLIENT_FAILED").With("address", cfg.Address).Wrap(err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return oops.Code("GRPC_CLIENT_CLOSE_FAILED").Wrap(err)
		}
	}
	return nil
}

// WithBearer returns a context that sends token on outgoing calls.
func WithBearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, AuthorizationHeader, "Bearer "+token)
}

// Register creates a user and returns its credentials.
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	resp := new(RegisterResponse)
	if err := c.conn.Invoke(ctx, MethodRegister, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Login authenticates and returns a bearer token.
func (c *Client) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	resp := new(LoginResponse)
	if err := c.conn.Invoke(ctx, MethodLogin, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ChangePassword changes the caller's password. ctx must carry a bearer token.
func (c *Client) ChangePassword(ctx context.Context, req *ChangePasswordRequest) error {
	return c.conn.Invoke(ctx, MethodChangePassword, req, new(ChangePasswordResponse))
}

// Logout ends the caller's session. ctx must carry a bearer token.
func (c *Client) Logout(ctx context.Context) error {
	return c.conn.Invoke(ctx, MethodLogout, &LogoutRequest{}, new(LogoutResponse))
}

// WhoAmI returns the username the bearer token in ctx belongs to.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	resp := new(WhoAmIResponse)
	if err := c.conn.Invoke(ctx, MethodWhoAmI, &WhoAmIRequest{}, resp); err != nil {
		return "", err
	}
	return resp.Username, nil
}
