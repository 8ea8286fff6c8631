// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package main

import (
	"context"

	"github.com/samber/oops"

	"github.com/gymcrm/gymcrm/internal/auth"
	"github.com/gymcrm/gymcrm/internal/auth/memory"
	"github.com/gymcrm/gymcrm/internal/auth/postgres"
	authredis "github.com/gymcrm/gymcrm/internal/auth/redis"
	"github.com/gymcrm/gymcrm/internal/auth/sqlite"
	"github.com/gymcrm/gymcrm/internal/config"
	"github.com/gymcrm/gymcrm/internal/store"
	"github.com/gymcrm/gymcrm/internal/xdg"
)

// openUserStore connects the repository selected by cfg.Driver.
func openUserStore(ctx context.Context, cfg config.StoreConfig) (auth.UserRepository, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := store.OpenPool(ctx, cfg.DatabaseURL, store.DefaultConnectAttempts)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewUserRepository(pool), pool.Close, nil
	case config.DriverRedis:
		client, err := authredis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return authredis.NewUserRepository(client), func() { _ = client.Close() }, nil
	case config.DriverSQLite:
		if err := xdg.EnsureParent(cfg.SQLitePath); err != nil {
			return nil, nil, err
		}
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewUserRepository(db), func() { _ = db.Close() }, nil
	case config.DriverMemory:
		return memory.NewUserRepository(), func() {}, nil
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").
			With("driver", cfg.Driver).
			Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newAccountService builds the account engine from cfg over users.
func newAccountService(cfg config.Config, users auth.UserRepository, opts ...auth.ServiceOption) (*auth.Service, error) {
	hasher, err := cfg.Hasher()
	if err != nil {
		return nil, err
	}
	base := []auth.ServiceOption{
		auth.WithLockoutPolicy(cfg.Lockout()),
		auth.WithPasswordPolicy(cfg.PasswordPolicy()),
	}
	return auth.NewService(users, hasher, append(base, opts...)...)
}
