// Package main provides the CLI entry point for the code-execution
// gateway.
//
// # Basic Usage
//
// Start the server:
//
//	execgw serve --config execgw.yaml
//
// Check a running server's status:
//
//	execgw status --addr http://localhost:8080
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/coderunner/execgw/internal/observability"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(observability.NewLogger(false))

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main for testability.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "execgw",
		Short: "execgw - multi-tenant code-execution gateway",
		Long: `execgw accepts (language, version, source) over HTTP and runs the
source in an isolated child process for one of javascript, typescript,
python, php, or java, returning captured output, exit status, and
duration.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())
	rootCmd.AddCommand(buildStatusCmd())

	return rootCmd
}
