package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marklab/marksync/internal/config"
	"github.com/marklab/marksync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect marksync configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Load the config file, apply defaults and environment overrides, and
print the result as YAML.

Environment variables prefixed MARKSYNC_ override file values, e.g.
MARKSYNC_DASHBOARD_PORT=9000.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fatalf("failed to load config: %v", err)
		}

		out, err := cfg.YAML()
		if err != nil {
			fatalf("failed to render config: %v", err)
		}

		if configPath != "" {
			fmt.Printf("%s %s\n\n", ui.RenderAccent("Config:"), configPath)
		}
		fmt.Print(out)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			fatalf("invalid config: %v", err)
		}
		fmt.Printf("%s Config is valid (%d sources)\n", ui.RenderPass("✓"), len(cfg.Sources))
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
