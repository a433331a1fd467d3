package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the gateway's
// HTTP server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the execution gateway server",
		Long: `Start the execution gateway server.

The server will:
1. Load configuration from the specified file (or built-in defaults)
2. Start the execution engine (scratch directory, cache sweeper, warm-up)
3. Start the HTTP API for /api/run, /health, /api/stats and /metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  execgw serve

  # Start with custom config
  execgw serve --config /etc/execgw/production.yaml

  # Start with debug logging
  execgw serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
