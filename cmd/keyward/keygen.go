// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"encoding/base64"

	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/crypto"
)

// NewKeygenCmd creates the keygen subcommand.
func NewKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a system key",
		Long: `Generate a fresh random system key and print it base64-encoded,
ready for the system_key configuration value.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			cmd.Println(base64.StdEncoding.EncodeToString(key))
			return nil
		},
	}
}
