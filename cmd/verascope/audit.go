package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/verascope-ai/verascope/pkg/archive"
	"github.com/verascope-ai/verascope/pkg/engine"
	"github.com/verascope-ai/verascope/pkg/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the archived call log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(),
		newAuditShowCmd(),
		newAuditStatsCmd(),
		newAuditExportCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

func newAuditSearchCmd() *cobra.Command {
	var (
		configPath string
		runID      string
		label      string
		model      string
		since      string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search archived call records",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := openArchive(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.ArchiveQueryOpts{
				RunID: runID,
				Label: label,
				Model: model,
				Limit: limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			records, err := a.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Print(formatCallRecords(records))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&runID, "run", "", "filter by run ID")
	cmd.Flags().StringVar(&label, "label", "", "filter by stage label (e.g. M1_IDEATION)")
	cmd.Flags().StringVar(&model, "model", "", "filter by model")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max records to return")

	return cmd
}

func newAuditShowCmd() *cobra.Command {
	var (
		configPath string
		runID      string
	)

	cmd := &cobra.Command{
		Use:   "show <call-id>",
		Short: "Show a single archived call with fingerprints and payloads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := openArchive(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := a.Query(context.Background(), models.ArchiveQueryOpts{
				RunID:  runID,
				CallID: args[0],
				Limit:  1,
			})
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No archived call with that ID.")
				return nil
			}

			r := records[0]
			fmt.Printf("Call ID:       %s\n", r.ID)
			fmt.Printf("Label:         %s\n", r.Label)
			fmt.Printf("Action:        %s\n", r.Action)
			fmt.Printf("Model:         %s (seed %d)\n", r.Model, r.Seed)
			fmt.Printf("Input FP:      %s\n", r.InputFingerprint)
			fmt.Printf("Output FP:     %s\n", r.OutputFingerprint)
			fmt.Printf("Tokens:        %d prompt / %d completion / %d total\n",
				r.PromptTokens, r.CompletionTokens, r.TotalTokens)
			fmt.Printf("Latency:       %dms\n", r.LatencyMs)
			fmt.Printf("Time:          %s\n", r.CreatedAt.Format(time.RFC3339))
			if r.Verified {
				status := "MISMATCH"
				if r.VerificationMatch != nil && *r.VerificationMatch {
					status = "match"
				}
				fmt.Printf("Verified:      %s\n", status)
			}
			if r.RawInput != "" {
				fmt.Printf("\n--- Canonical Input ---\n%s\n", r.RawInput)
			}
			if r.RawOutput != "" {
				fmt.Printf("\n--- Normalized Output ---\n%s\n", r.RawOutput)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&runID, "run", "", "run ID to disambiguate repeated call IDs")

	return cmd
}

func newAuditStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show archived call counts by model and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := openArchive(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := a.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(formatArchiveStats(stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func newAuditExportCmd() *cobra.Command {
	var (
		configPath string
		runID      string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archived call records as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := openArchive(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := a.Query(context.Background(), models.ArchiveQueryOpts{
				RunID: runID,
				Limit: limit,
			})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return fmt.Errorf("encode records: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&runID, "run", "", "filter by run ID")
	cmd.Flags().IntVar(&limit, "limit", 10000, "max records to export")

	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete archived calls older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := openArchive(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := a.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d archived calls.\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func openArchive(configPath string) (*archive.Archive, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Archive.Enabled {
		return nil, nil, fmt.Errorf("archive is disabled in config")
	}

	a, err := archive.New(cfg.Archive)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive db: %w", err)
	}
	return a, func() { _ = a.Close() }, nil
}

func formatCallRecords(records []models.CallRecord) string {
	if len(records) == 0 {
		return "No archived calls found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-14s %-22s %-22s %8s %-20s\n",
		"CALL ID", "LABEL", "INPUT FP", "OUTPUT FP", "TOKENS", "TIME")
	b.WriteString(strings.Repeat("-", 112) + "\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%-20s %-14s %-22s %-22s %8d %-20s\n",
			r.ID, r.Label,
			engine.ShortFingerprint(r.InputFingerprint),
			engine.ShortFingerprint(r.OutputFingerprint),
			r.TotalTokens,
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatArchiveStats(stats []models.ArchiveStat) string {
	if len(stats) == 0 {
		return "No archive stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %-12s %8s %12s\n", "MODEL", "DAY", "CALLS", "TOKENS")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-25s %-12s %8d %12d\n", s.Model, s.Day, s.Count, s.TotalTokens)
	}
	return b.String()
}
