package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/fleetwatch/internal/config"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the notification service",
		Long: `Starts the HTTP API, the notification stream and the simulated event
generator. Blocks until SIGINT or SIGTERM, then shuts down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			return a.Run(cmd.Context())
		},
	}
}
