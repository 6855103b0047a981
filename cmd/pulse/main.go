package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mindmesh/pulse/internal/config"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pulse",
		Short: "Pulse - continuous activation engine for agent memory graphs",
		Long: `pulse runs a continuously ticking activation graph for autonomous agents.

Stimuli inject energy, diffusion spreads it along learned links, decay
pulls it back down, and a criticality controller keeps the whole system
at the edge between dying out and blowing up. Entities aggregate node
activity into the units the fair scheduler allots attention to.`,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newInjectCmd(),
		newStatusCmd(),
		newConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration for a command.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}
