// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/gymcrm/gymcrm/internal/auth"
	"github.com/gymcrm/gymcrm/internal/config"
	"github.com/gymcrm/gymcrm/internal/observability"
	"github.com/gymcrm/gymcrm/internal/store"
)

// CommonDeps are shared by every command that touches the user store.
// Nil fields use their default implementations.
type CommonDeps struct {
	// UserStoreFactory opens the configured user store. The returned func
	// releases it.
	// Default: openUserStore
	UserStoreFactory func(ctx context.Context, cfg config.StoreConfig) (auth.UserRepository, func(), error)

	// MigratorFactory opens a schema migrator for a PostgreSQL URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// ServeDeps contains injectable dependencies for the serve command.
type ServeDeps struct {
	CommonDeps

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// ListenerFactory creates the gRPC listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *CommonDeps) withDefaults() {
	if d.UserStoreFactory == nil {
		d.UserStoreFactory = openUserStore
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
}

func (d *ServeDeps) withDefaults() {
	d.CommonDeps.withDefaults()
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if d.ListenerFactory == nil {
		d.ListenerFactory = net.Listen
	}
}
