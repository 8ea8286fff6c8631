// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymcrm/gymcrm/internal/store"
	"github.com/gymcrm/gymcrm/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErrCode string
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "surrounding whitespace", input: "  42 ", wantVersion: 42},
		{name: "non-numeric", input: "abc", wantErrCode: "INVALID_VERSION"},
		{name: "float", input: "1.5", wantErrCode: "INVALID_VERSION"},
		{name: "trailing chars", input: "3abc", wantErrCode: "INVALID_VERSION"},
		{name: "negative", input: "-1", wantErrCode: "INVALID_VERSION"},
		{name: "empty", input: "", wantErrCode: "INVALID_VERSION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)
			if tt.wantErrCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

type migrateRun struct {
	out      string
	err      error
	url      string
	migrator *stubMigrator
}

func runMigrateCmd(t *testing.T, migrator *stubMigrator, args ...string) migrateRun {
	t.Helper()
	run := migrateRun{migrator: migrator}
	deps := &CommonDeps{
		MigratorFactory: func(url string) (Migrator, error) {
			run.url = url
			return migrator, nil
		},
	}

	cmd := newMigrateCmd(deps)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	run.err = cmd.Execute()
	run.out = buf.String()
	return run
}

func TestMigrateCommand(t *testing.T) {
	const url = "postgres://gymcrm@db/gymcrm"

	t.Run("up by default", func(t *testing.T) {
		isolateEnv(t)
		run := runMigrateCmd(t, &stubMigrator{}, "--database-url", url)

		require.NoError(t, run.err)
		assert.Equal(t, url, run.url)
		assert.Equal(t, []string{"up"}, run.migrator.calls)
		assert.True(t, run.migrator.closed)
		assert.Contains(t, run.out, "Migrations completed successfully")
	})

	t.Run("falls back to DATABASE_URL", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("DATABASE_URL", url)
		run := runMigrateCmd(t, &stubMigrator{})

		require.NoError(t, run.err)
		assert.Equal(t, url, run.url)
	})

	t.Run("requires a database url", func(t *testing.T) {
		isolateEnv(t)
		run := runMigrateCmd(t, &stubMigrator{})

		errutil.AssertErrorCode(t, run.err, "CONFIG_INVALID")
		assert.Empty(t, run.migrator.calls)
	})

	t.Run("up failure", func(t *testing.T) {
		isolateEnv(t)
		run := runMigrateCmd(t, &stubMigrator{upErr: errors.New("dirty")}, "--database-url", url)

		errutil.AssertErrorCode(t, run.err, "MIGRATION_FAILED")
		assert.True(t, run.migrator.closed)
	})

	t.Run("down", func(t *testing.T) {
		isolateEnv(t)
		run := runMigrateCmd(t, &stubMigrator{}, "down", "--database-url", url)

		require.NoError(t, run.err)
		assert.Equal(t, []string{"down"}, run.migrator.calls)
		assert.Contains(t, run.out, "rolled back")
	})

	t.Run("status", func(t *testing.T) {
		isolateEnv(t)
		m := &stubMigrator{status: store.Status{Current: 1, Applied: []uint{1}, Pending: []uint{2}}}
		run := runMigrateCmd(t, m, "status", "--database-url", url)

		require.NoError(t, run.err)
		assert.Contains(t, run.out, "Current version: 1 (clean)")
		assert.Contains(t, run.out, "[x] 000001_create_users")
		assert.Contains(t, run.out, "[ ] 000002_lockout_constraints")
	})

	t.Run("status dirty", func(t *testing.T) {
		isolateEnv(t)
		m := &stubMigrator{status: store.Status{Current: 2, Dirty: true, Applied: []uint{1, 2}}}
		run := runMigrateCmd(t, m, "status", "--database-url", url)

		require.NoError(t, run.err)
		assert.Contains(t, run.out, "Current version: 2 (dirty)")
	})

	t.Run("force", func(t *testing.T) {
		isolateEnv(t)
		run := runMigrateCmd(t, &stubMigrator{}, "force", "1", "--database-url", url)

		require.NoError(t, run.err)
		assert.Equal(t, 1, run.migrator.forced)
		assert.Contains(t, run.out, "Forced schema version to 1")
	})

	t.Run("force rejects bad versions before connecting", func(t *testing.T) {
		isolateEnv(t)
		run := runMigrateCmd(t, &stubMigrator{}, "force", "latest", "--database-url", url)

		errutil.AssertErrorCode(t, run.err, "INVALID_VERSION")
		assert.Empty(t, run.url)
	})
}

func TestMigrationLabel(t *testing.T) {
	assert.Equal(t, "000001_create_users", migrationLabel(1))
	assert.Equal(t, "99", migrationLabel(99))
}
