// Package cmd provides the CLI commands for Context Fabric.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/context-fabric/contextfabric/internal/logging"
	"github.com/context-fabric/contextfabric/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the contextfabric CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contextfabric",
		Short: "Local persistent memory engine for AI coding assistants",
		Long: `Context Fabric gives AI coding assistants a three-tier memory: an
in-process working store, a per-project durable store, and a global
semantic store, recalled through a hybrid BM25+vector pipeline.

Run 'contextfabric serve' in a project directory to expose the memory
engine over JSON-RPC/stdio to an MCP client.`,
		Version: version.Version,
	}
	cmd.SetVersionTemplate("contextfabric version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to the log file")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
