package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/reachforge/outreachd/internal/candidate"
	"github.com/reachforge/outreachd/internal/ingest"
)

var ingestRoleID string

var ingestCmd = &cobra.Command{
	Use:   "ingest [csv file]",
	Short: "Upload candidates from a CSV file",
	Long: `Load a CSV of candidates into a role's outreach funnel. The file needs a
header row with first_name and last_name columns plus email or linkedin_url;
country, current_job_title and current_employer are optional.

Reads from stdin when no file is given. The server must not be running
against the same database file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestRoleID, "role", "", "role ID to ingest into (required)")
	ingestCmd.MarkFlagRequired("role")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open CSV file: %w", err)
		}
		defer f.Close()
		in = f
	}

	rows, err := ingest.ParseCSV(in)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no candidate rows in input")
	}

	store, err := candidate.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ingestor := ingest.NewIngestor(store, logger)

	summary, err := ingestor.Ingest(cmd.Context(), ingestRoleID, rows)
	if err != nil {
		return err
	}

	fmt.Printf("Inserted:   %d\n", summary.Inserted)
	fmt.Printf("Duplicates: %d\n", summary.Duplicates)
	fmt.Printf("Errors:     %d\n", summary.Errored)
	for i, rowErr := range summary.Errors {
		if i >= 5 {
			fmt.Printf("  ...and %d more errors\n", len(summary.Errors)-5)
			break
		}
		fmt.Printf("  row %d: %s\n", rowErr.Row, rowErr.Reason)
	}

	return nil
}
