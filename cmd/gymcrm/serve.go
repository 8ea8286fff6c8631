// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/gymcrm/gymcrm/internal/auth"
	"github.com/gymcrm/gymcrm/internal/config"
	authgrpc "github.com/gymcrm/gymcrm/internal/grpc"
	"github.com/gymcrm/gymcrm/internal/logging"
	gymtls "github.com/gymcrm/gymcrm/internal/tls"
	"github.com/gymcrm/gymcrm/internal/token"
	"github.com/gymcrm/gymcrm/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return newServeCmd(nil)
}

func newServeCmd(deps *ServeDeps) *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth gRPC service",
		Long: `Start the gymcrm.auth.v1.AuthService gRPC service together with the
metrics and health HTTP server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, autoMigrate, deps)
		},
	}

	cmd.Flags().String("grpc-addr", "", "gRPC listen address (default 127.0.0.1:9000)")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (default 127.0.0.1:9100)")
	cmd.Flags().String("log-format", "", "log format (json or text)")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn or error)")
	cmd.Flags().Bool("tls", false, "serve gRPC over TLS using certificates in server.certs_dir")
	addStoreFlags(cmd)
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", true, "apply pending migrations before serving (postgres only)")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies. It
// returns when ctx is cancelled, a signal arrives or a server fails.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, autoMigrate bool, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}
	if err := cfg.RequireSigningKey(); err != nil {
		return err
	}

	logger, err := logging.SetDefault(logging.Options{
		Service: "gymcrm",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}

	logger.Info("starting gymcrm",
		"grpc_addr", cfg.Server.GRPCAddr,
		"metrics_addr", cfg.Server.MetricsAddr,
		"store", cfg.Store.Driver,
	)

	if autoMigrate && cfg.Store.Driver == config.DriverPostgres {
		if err := applyMigrations(deps.MigratorFactory, cfg.Store.DatabaseURL); err != nil {
			return err
		}
		logger.Info("database schema up to date")
	}

	users, closeStore, err := deps.UserStoreFactory(ctx, cfg.Store)
	if err != nil {
		return oops.With("operation", "open user store").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer closeStore()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	var recorder auth.Recorder = auth.NopRecorder{}
	var requests authgrpc.RequestRecorder
	var obsServer ObservabilityServer
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, ready.Load, logger)
		recorder = obsServer.Metrics()
		requests = obsServer.Metrics()

		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return oops.With("operation", "start observability server").Wrap(startErr)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
				logger.Warn("error stopping observability server", "error", stopErr)
			}
		}()
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
	}

	accounts, err := newAccountService(cfg, users, auth.WithRecorder(recorder), auth.WithLogger(logger))
	if err != nil {
		return err
	}
	tokens, err := token.NewService([]byte(cfg.Token.SigningKey), cfg.Token.TTL, cfg.Token.Issuer)
	if err != nil {
		return err
	}

	var serverOpts []grpc.ServerOption
	if cfg.Server.TLS {
		tlsConfig, tlsErr := gymtls.ServerConfig(cfg.Server.CertsDir, []string{listenHost(cfg.Server.GRPCAddr)})
		if tlsErr != nil {
			return oops.With("operation", "load TLS certificates").With("certs_dir", cfg.Server.CertsDir).Wrap(tlsErr)
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
		logger.Info("gRPC TLS enabled", "certs_dir", cfg.Server.CertsDir)
	}

	grpcServer := authgrpc.NewGRPCServer(authgrpc.NewAuthServer(accounts, tokens, authgrpc.WithLogger(logger)), requests, serverOpts...)
	listener, err := deps.ListenerFactory("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return oops.Code("GRPC_LISTEN_FAILED").With("addr", cfg.Server.GRPCAddr).Wrap(err)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			serveErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ready.Store(true)
	cmd.Println("GymCRM started")
	logger.Info("gymcrm ready", "grpc_addr", listener.Addr().String())

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	case err := <-serveErr:
		runErr = oops.Code("GRPC_SERVE_FAILED").Wrap(err)
		errutil.LogError(logger, "gRPC server failed", runErr)
	}

	ready.Store(false)
	grpcServer.GracefulStop()
	logger.Info("shutdown complete")
	return runErr
}

// listenHost extracts the host part of addr for the certificate SANs.
func listenHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	return host
}

func applyMigrations(factory func(string) (Migrator, error), databaseURL string) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "auto-migrate").Wrap(err)
	}
	return nil
}

// monitorServerErrors cancels ctx when a background server fails. It exits
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
