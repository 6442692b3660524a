// Package cmd implements the bridge-ai command line interface.
package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "bridge-ai",
	Short: "Aggregate multiple MCP servers behind a single endpoint",
	Long: `bridge-ai fronts several upstream MCP servers with one Streamable HTTP
endpoint. It merges their tools, resources, resource templates, and prompts
into a single catalog and routes each invocation to the upstream that owns it.`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging (includes JSON-RPC frames for upstreams with logJSONRPC)")
	rootCmd.AddCommand(newServeCmd(), newInspectCmd(), newDemoCmd())
}

// Execute runs the root command with the given context.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
