// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymcrm/gymcrm/internal/auth"
	"github.com/gymcrm/gymcrm/internal/config"
	"github.com/gymcrm/gymcrm/pkg/errutil"
)

func TestOpenUserStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		users, closeFn, err := openUserStore(ctx, config.StoreConfig{Driver: config.DriverMemory})
		require.NoError(t, err)
		defer closeFn()

		_, err = users.GetByUsername(ctx, "jdoe")
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("sqlite creates the data directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "gymcrm.db")
		users, closeFn, err := openUserStore(ctx, config.StoreConfig{Driver: config.DriverSQLite, SQLitePath: path})
		require.NoError(t, err)
		defer closeFn()

		_, err = users.GetByUsername(ctx, "jdoe")
		require.ErrorIs(t, err, auth.ErrNotFound)
		_, err = os.Stat(path)
		require.NoError(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, _, err := openUserStore(ctx, config.StoreConfig{Driver: "mongo"})
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}

func TestResolveConfigFile(t *testing.T) {
	isolateEnv(t)
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	assert.Empty(t, resolveConfigFile())

	path := filepath.Join(base, "gymcrm", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\n"), 0o600))
	assert.Equal(t, path, resolveConfigFile())

	configFile = "/etc/gymcrm.yaml"
	t.Cleanup(func() { configFile = "" })
	assert.Equal(t, "/etc/gymcrm.yaml", resolveConfigFile())
}
