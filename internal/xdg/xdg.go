// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

// Package xdg resolves XDG Base Directory paths for GymCRM.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "gymcrm"

// ConfigFileName is the file looked up in ConfigDir when no --config is given.
const ConfigFileName = "config.yaml"

// ConfigDir returns the GymCRM config directory.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	return dir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the GymCRM data directory.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() string {
	return dir("XDG_DATA_HOME", ".local", "share")
}

func dir(env string, fallback ...string) string {
	base := os.Getenv(env)
	if base == "" {
		base = filepath.Join(append([]string{os.Getenv("HOME")}, fallback...)...)
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the path of the default config file, or "" when it
// does not exist.
func ConfigFile() string {
	path := filepath.Join(ConfigDir(), ConfigFileName)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("DIR_CREATE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// EnsureParent creates the directory holding file.
func EnsureParent(file string) error {
	parent := filepath.Dir(file)
	if _, err := os.Stat(parent); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return oops.Code("DIR_CREATE_FAILED").With("path", parent).Wrap(err)
	}
	return EnsureDir(parent)
}
