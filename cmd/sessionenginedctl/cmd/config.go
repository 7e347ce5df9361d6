package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sessionlens/sessionlens/internal/config"
)

var configOutPath string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage sessionenginedctl configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the current effective configuration to a YAML file",
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().StringVar(&configOutPath, "out", "", "output path (default: ~/.config/sessionengine/config.yaml)")
	configCmd.AddCommand(configInitCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	out := configOutPath
	if out == "" {
		dir, err := config.GetConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve config directory: %w", err)
		}
		out = filepath.Join(dir, "config.yaml")
	}

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("failed to build default config: %w", err)
	}

	if err := config.WriteYAML(out, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("wrote default config to %s\n", out)
	return nil
}
