package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/fleetwatch/internal/app"
	"github.com/JakeFAU/fleetwatch/internal/config"
)

// runner is the slice of *app.App the serve command needs.
type runner interface {
	Run(ctx context.Context) error
}

// buildApp is the application factory. Tests replace it.
var buildApp = func(ctx context.Context, cfg config.Config) (runner, error) {
	a, err := app.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "fleetwatch",
		Short: "Real-time notification center for a server fleet.",
		Long: `fleetwatch keeps an in-memory feed of fleet notifications, simulates a live
monitoring source, and serves the feed over HTTP and a WebSocket stream.
New notifications can also be alerted to Pub/Sub and archived to Postgres.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (env FLEETWATCH_* overrides)")

	cmd.AddCommand(newServeCmd(opts), newValidateCmd(opts))
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: port=%d generator=%t alerts=%t export=%q archive=%t\n",
				cfg.Server.Port, cfg.Generator.Enabled, cfg.Alerts.Enabled, cfg.Export.Backend, cfg.Archive.Enabled())
			return nil
		},
	}
}
