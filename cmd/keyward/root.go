// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/logging"
)

// Global flags available to all subcommands.
var (
	configFile string
	logFormat  string
)

// NewRootCmd creates the root command for the keyward CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyward",
		Short: "Keyward - identity and credential core",
		Long: `Keyward manages credential records, stateless session cookies,
and password recovery tokens for a host application.`,
		PersistentPreRun: func(*cobra.Command, []string) {
			logging.SetDefault("keyward", version, logFormat)
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (json or text)")

	cmd.AddCommand(NewKeygenCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewCheckpassCmd())

	return cmd
}
