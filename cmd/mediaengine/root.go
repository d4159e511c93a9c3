package main

import (
	"github.com/spf13/cobra"
)

// configPath is the only mandatory input per spec §6's CLI/env contract:
// the path to the configuration JSON. Every subcommand shares it.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "mediaengine",
	Short: "Local-first media library kernel",
	Long: `mediaengine watches a filesystem inbox, fingerprints and scores
incoming media, groups it into Hubs, and organises it on disk under a
templated directory structure.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "mediaengine.json", "path to the engine configuration JSON")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(inhaleCmd)
	rootCmd.AddCommand(statusCmd)
}
