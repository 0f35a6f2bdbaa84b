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
	Use:   "floodgate",
	Short: "Floodgate - rate-limiting HTTP gateway",
	Long: `Floodgate is a rate-limiting HTTP gateway that admits requests through
configurable policies before forwarding them to an upstream service.

Each policy selects an algorithm (token bucket, fixed window, sliding window,
or concurrency cap) and a partition key (client IP, header, path, or global),
so independent callers get independent capacity. Decisions surface through
standard X-RateLimit-* and Retry-After headers.`,
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
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "floodgate.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
