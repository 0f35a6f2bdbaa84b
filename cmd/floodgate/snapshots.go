package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"floodgate/pkg/cli"
	"floodgate/pkg/config"
	"floodgate/pkg/limits/storage"
)

var snapshotsFlags struct {
	policy string
	output string
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List persisted limiter snapshots",
	Long: `List the latest persisted limiter snapshot per partition.

Reads the SQLite snapshot database named in the configuration, so it can be
run while the gateway is up or after it has stopped.

Examples:
  # Latest snapshot for every partition
  floodgate snapshots

  # Restrict to one policy, as JSON
  floodgate snapshots --policy api --output json`,
	RunE: runSnapshots,
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)

	snapshotsCmd.Flags().StringVar(&snapshotsFlags.policy, "policy", "", "restrict to one policy")
	snapshotsCmd.Flags().StringVarP(&snapshotsFlags.output, "output", "o", "text", "output format (text, json, csv)")
}

// snapshotTable adapts persisted snapshots to the cli formatters.
type snapshotTable []*storage.Snapshot

func (t snapshotTable) Header() []string {
	return []string{"POLICY", "PARTITION", "AVAILABLE", "ALLOWED", "REJECTED", "CAPTURED"}
}

func (t snapshotTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, s := range t {
		rows = append(rows, []string{
			s.Policy,
			s.Partition,
			strconv.FormatInt(s.AvailablePermits, 10),
			strconv.FormatInt(s.SuccessfulLeases, 10),
			strconv.FormatInt(s.FailedLeases, 10),
			s.CapturedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return rows
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Storage.Backend != config.StorageSQLite {
		return fmt.Errorf("snapshots require the sqlite storage backend, config uses %q", cfg.Storage.Backend)
	}

	backend, err := storage.NewSQLiteBackend(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot database: %w", err)
	}
	defer backend.Close()

	snaps, err := backend.List(cmd.Context(), snapshotsFlags.policy)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(snaps) == 0 {
		fmt.Println("No snapshots recorded")
		return nil
	}

	formatter := cli.NewFormatter(cli.OutputFormat(snapshotsFlags.output))
	return formatter.FormatTo(os.Stdout, snapshotTable(snaps))
}
