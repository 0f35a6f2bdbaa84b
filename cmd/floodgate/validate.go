package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"floodgate/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check that a configuration file parses and passes validation.

All problems are reported at once rather than stopping at the first,
so a broken file can be fixed in a single pass.

Examples:
  # Validate the default config file
  floodgate validate

  # Validate a specific file
  floodgate validate --config /etc/floodgate/floodgate.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Printf("✗ %s has %d problem(s):\n", cfgFile, len(verr.Errors))
			for _, fe := range verr.Errors {
				fmt.Printf("  - %s: %s\n", fe.Field, fe.Message)
			}
			return fmt.Errorf("configuration invalid")
		}
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Printf("✓ %s is valid\n", cfgFile)
	fmt.Printf("  listen: %s\n", cfg.Server.ListenAddress)
	if cfg.Server.Upstream != "" {
		fmt.Printf("  upstream: %s\n", cfg.Server.Upstream)
	}
	fmt.Printf("  policies: %d\n", len(cfg.Limits.Policies))
	for _, p := range cfg.Limits.Policies {
		fmt.Printf("    - %s (%s, partition_by=%s)\n", p.Name, p.Algorithm, p.PartitionBy)
	}
	return nil
}
