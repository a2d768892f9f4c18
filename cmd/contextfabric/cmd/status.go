package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/context-fabric/contextfabric/internal/config"
	"github.com/context-fabric/contextfabric/internal/engine"
	"github.com/context-fabric/contextfabric/internal/model"
)

var tierNames = map[model.Tier]string{
	model.TierWorking:  "L1 working",
	model.TierProject:  "L2 project",
	model.TierSemantic: "L3 semantic",
}

// newStatusCmd creates the status command: reports per-tier memory counts
// for the project rooted at the current directory.
func newStatusCmd() *cobra.Command {
	var projectPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-tier memory counts for this project",
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			return runStatus(cmd, abs)
		},
	}

	cmd.Flags().StringVar(&projectPath, "project", "", "Project root directory (default: current directory)")
	return cmd
}

func runStatus(cmd *cobra.Command, projectPath string) error {
	cfg, err := config.Load(config.Default().Storage.RootDir)
	if err != nil {
		return err
	}

	manager, err := engine.NewManager(cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	eng, err := manager.Engine(projectPath)
	if err != nil {
		return err
	}

	res, err := eng.List(cmd.Context(), engine.ListRequest{Limit: 1, Stats: true})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "project: %s\n", projectPath)
	for _, tier := range []model.Tier{model.TierWorking, model.TierProject, model.TierSemantic} {
		st := res.Stats[tier]
		fmt.Fprintf(out, "  %-12s %4d memories (%d pinned)\n", tierNames[tier], st.Total, st.Pinned)
	}
	return nil
}
