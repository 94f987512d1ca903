package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatmesh/gateway/internal/config"
)

// buildConfigCmd groups config-inspection subcommands, separate from serve
// so an operator can validate a config change before restarting the
// gateway.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate gateway configuration",
	}
	cmd.AddCommand(buildConfigValidateCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the five config bundles without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := config.NewLoader(bundlePaths(configDir))
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			bundles := loader.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d bot(s), %d model(s), http enabled=%v\n",
				len(bundles.Platform.Bots), len(bundles.Provider.Models), bundles.System.HTTP.Enabled)
			return nil
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", "./config",
		"Directory containing command.yaml, pipeline.yaml, platform.yaml, provider.yaml, system.yaml")
	return cmd
}
