// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		Long: `Print the configuration after merging defaults, the config file,
the dotenv file, FACEGATE_ environment variables, and flags.`,
		RunE: runConfig,
	}
	cmd.Flags().Bool("validate", false, "fail if the configuration is invalid")
	return cmd
}

func runConfig(cmd *cobra.Command, _ []string) error {
	validate, err := cmd.Flags().GetBool("validate")
	if err != nil {
		return oops.Wrap(err)
	}
	cfg, err := loadConfig(cmd, validate)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
