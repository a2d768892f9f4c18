package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/context-fabric/contextfabric/internal/config"
	"github.com/context-fabric/contextfabric/internal/engine"
	"github.com/context-fabric/contextfabric/internal/mcp"
)

// newServeCmd creates the serve command: starts the MCP server over stdio
// for one project (spec §6: "exposed over JSON-RPC/stdio").
func newServeCmd() *cobra.Command {
	var projectPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio for this project",
		Long: `Serve loads the Context Fabric configuration, builds the tiered
memory engine for one project, and exposes it as an MCP server over
stdio. Stdout is reserved exclusively for JSON-RPC traffic once the
server starts; all diagnostics go to the log file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), projectPath)
		},
	}

	cmd.Flags().StringVar(&projectPath, "project", "", "Project root directory (default: current directory)")
	return cmd
}

func runServe(ctx context.Context, projectPath string) error {
	if projectPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		projectPath = wd
	}
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.Default().Storage.RootDir)
	if err != nil {
		return err
	}

	manager, err := engine.NewManager(cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	eng, err := manager.Engine(abs)
	if err != nil {
		return err
	}

	srv, err := mcp.NewServer(eng)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}
