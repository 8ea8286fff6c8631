// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymcrm/gymcrm/internal/config"
	"github.com/gymcrm/gymcrm/pkg/errutil"
)

func runConfigCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"config"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestConfigCommand_Schema(t *testing.T) {
	isolateEnv(t)
	out, err := runConfigCmd(t, "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, config.SchemaID, schema["$id"])
}

func TestConfigCommand_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("GYMCRM_STORE_DRIVER", "memory")
		t.Setenv("GYMCRM_TOKEN_SIGNING_KEY", testKey)

		out, err := runConfigCmd(t, "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "configuration is valid")
	})

	t.Run("missing signing key", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("GYMCRM_STORE_DRIVER", "memory")

		_, err := runConfigCmd(t, "validate")
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("schema violation in file", func(t *testing.T) {
		isolateEnv(t)
		path := filepath.Join(t.TempDir(), "gymcrm.yaml")
		require.NoError(t, os.WriteFile(path, []byte("security:\n  max_failed_attempts: 0\n"), 0o600))

		_, err := runConfigCmd(t, "validate", "--config", path)
		require.Error(t, err)
	})
}

func TestConfigCommand_ShowRedactsSecrets(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GYMCRM_TOKEN_SIGNING_KEY", testKey)
	t.Setenv("DATABASE_URL", "postgres://gymcrm:hunter2@db/gymcrm")

	out, err := runConfigCmd(t, "show")
	require.NoError(t, err)
	assert.NotContains(t, out, testKey)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "max_failed_attempts: 3")
}
