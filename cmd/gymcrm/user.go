// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gymcrm/gymcrm/internal/auth"
)

// NewUserCmd creates the user subcommand.
func NewUserCmd() *cobra.Command {
	return newUserCmd(nil)
}

func newUserCmd(deps *CommonDeps) *cobra.Command {
	if deps == nil {
		deps = &CommonDeps{}
	}
	deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer user accounts",
	}
	cmd.PersistentFlags().String("store", "", "user store driver (postgres, redis, sqlite or memory)")
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL URL (default: DATABASE_URL)")
	cmd.PersistentFlags().String("redis-url", "", "Redis URL for the redis store")
	cmd.PersistentFlags().String("sqlite-path", "", "database file for the sqlite store")

	cmd.AddCommand(newSetActiveCmd(deps, "activate", true))
	cmd.AddCommand(newSetActiveCmd(deps, "deactivate", false))

	cmd.AddCommand(&cobra.Command{
		Use:   "status USERNAME",
		Short: "Show the account state of USERNAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccounts(cmd, deps, func(svc *auth.Service) error {
				state, err := svc.State(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				cmd.Printf("%s: %s\n", args[0], state)
				return nil
			})
		},
	})

	return cmd
}

func newSetActiveCmd(deps *CommonDeps, verb string, active bool) *cobra.Command {
	short := "Allow USERNAME to log in again"
	if !active {
		short = "Block USERNAME from logging in; counters are kept"
	}
	return &cobra.Command{
		Use:   verb + " USERNAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccounts(cmd, deps, func(svc *auth.Service) error {
				if err := svc.SetActive(cmd.Context(), args[0], active); err != nil {
					return err
				}
				cmd.Printf("%s: %sd\n", args[0], verb)
				return nil
			})
		},
	}
}

func withAccounts(cmd *cobra.Command, deps *CommonDeps, fn func(*auth.Service) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	users, closeStore, err := deps.UserStoreFactory(cmd.Context(), cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := newAccountService(cfg, users, auth.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	return fn(svc)
}
