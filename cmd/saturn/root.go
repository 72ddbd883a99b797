package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "saturn",
	Short: "Saturn - distributed query router for Java code intelligence",
	Long: `Saturn coordinates a fleet of shard workers that index and query
Java source code.

The router partitions the workspace by source root, hands each shard to
one worker process, and merges query results across the fleet:
  - Workspace-wide symbol search with per-shard fan-out
  - Incremental re-indexing on file edits
  - Persistent shard index caches across restarts
  - Unix socket, TCP, or mutually-authenticated TLS worker transport`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
