// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gymcrm/gymcrm/internal/config"
	"github.com/gymcrm/gymcrm/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the GymCRM CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gymcrm",
		Short: "GymCRM - authentication and account security service",
		Long: `GymCRM issues credentials for trainees and trainers, authenticates
them with lockout after repeated failures, and hands out bearer tokens
over gRPC.`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// A missing .env is the normal case outside development.
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewUserCmd())

	return cmd
}

// resolveConfigFile returns --config, or the XDG config file when present.
func resolveConfigFile() string {
	if configFile != "" {
		return configFile
	}
	return xdg.ConfigFile()
}

// loadConfig reads the layered configuration for cmd and validates it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// addStoreFlags registers the flags that select and locate the user store.
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", config.DriverPostgres, "user store driver (postgres, redis, sqlite or memory)")
	cmd.Flags().String("database-url", "", "PostgreSQL URL (default: DATABASE_URL)")
	cmd.Flags().String("redis-url", "", "Redis URL for the redis store")
	cmd.Flags().String("sqlite-path", "", "database file for the sqlite store")
}
