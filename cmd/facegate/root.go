package main

import (
	"github.com/spf13/cobra"

	"github.com/facegate/facegate/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the FaceGate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facegate",
		Short: "FaceGate - password and face authentication service",
		Long: `FaceGate authenticates users by password or by face similarity,
issues signed session tokens, and runs password recovery by emailed
code or face verification.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/facegate/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load (ignored when missing)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads the configuration for cmd, honoring its flags.
func loadConfig(cmd *cobra.Command, validate bool) (*config.Config, error) {
	return config.Load(config.LoadOptions{
		ConfigFile:     configFile,
		EnvFile:        envFile,
		Flags:          cmd.Flags(),
		SkipValidation: !validate,
	})
}
