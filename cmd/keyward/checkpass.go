// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/config"
)

// NewCheckpassCmd creates the checkpass subcommand.
func NewCheckpassCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpass <password>",
		Short: "Check a password against the strength policy",
		Long: `Check a candidate password against the configured strength policy.
Exits non-zero when the password would be rejected. Optional context
words (username, email) sharpen the check:

  keyward checkpass 'hunter2' --context alice --context alice@example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCheckpass,
	}
	cmd.Flags().StringArray("context", nil, "user context word (repeatable)")
	return cmd
}

func runCheckpass(cmd *cobra.Command, args []string) error {
	checker, err := buildChecker()
	if err != nil {
		return err
	}

	userContext, err := cmd.Flags().GetStringArray("context")
	if err != nil {
		return oops.With("operation", "read context flag").Wrap(err)
	}

	if err := checker.Check(args[0], userContext); err != nil {
		return err
	}
	cmd.Println("password accepted")
	return nil
}

// buildChecker loads the configured checker, falling back to the
// default entropy policy when no config file is given.
func buildChecker() (auth.PasswordChecker, error) {
	if configFile == "" {
		return auth.NewEntropyChecker(), nil
	}
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return nil, err
	}
	return cfg.BuildChecker(), nil
}
