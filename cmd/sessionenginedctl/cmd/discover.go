package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sessionlens/sessionlens/internal/config"
	"github.com/sessionlens/sessionlens/internal/discovery"
)

var (
	discoverProject string
	discoverJSON    bool
)

// discoverCmd lists the projects (and optionally sessions) found under the
// configured discovery home, without starting the engine.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List discovered projects and sessions",
	Long: `discover scans ~/.claude/projects (or the configured discovery home)
and prints the projects found there. Pass --project to list the sessions
within a single project instead.`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverProject, "project", "", "list sessions for a single project path")
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "print machine-readable JSON")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	home := cfg.Discovery.Home
	if home == "" {
		home, err = os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
	}

	if discoverProject != "" {
		sessions, err := discovery.GetSessionsForProject(home, discoverProject)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if discoverJSON {
			return printJSON(sessions)
		}
		for _, s := range sessions {
			fmt.Printf("%s\tlastActivity=%s\tmessages=%d\n", s.ID, s.LastActivity, s.MessageCount)
		}
		return nil
	}

	projects, err := discovery.ListProjects(home)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	if discoverJSON {
		return printJSON(projects)
	}
	for _, p := range projects {
		fmt.Printf("%s\tsessions=%d\tsubagents=%d\n", p.Path, p.SessionCount, p.SubagentCount)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
