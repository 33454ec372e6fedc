package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shardgate-project/shardgate/internal/config"
)

func setupCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactively edit the shard configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configDir)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if err := config.RunSetupWizard(cfg, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("setup wizard: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration saved to %s\n", cfg.Path())
			return nil
		},
	}
}
