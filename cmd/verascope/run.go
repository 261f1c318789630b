package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/verascope-ai/verascope/pkg/archive"
	"github.com/verascope-ai/verascope/pkg/engine"
	"github.com/verascope-ai/verascope/pkg/pipeline"
	"github.com/verascope-ai/verascope/pkg/provider"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		seed       int
	)

	cmd := &cobra.Command{
		Use:   "run <topic>",
		Short: "Run the research pipeline once and print the report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			params := cfg.Params
			if cmd.Flags().Changed("seed") {
				params.Seed = seed
			}

			client, err := provider.NewHTTPClient(cfg.Provider.URL, cfg.Provider.APIKey, cfg.Provider.Timeout)
			if err != nil {
				return fmt.Errorf("init provider client: %w", err)
			}

			var arch *archive.Archive
			if cfg.Archive.Enabled {
				arch, err = archive.New(cfg.Archive)
				if err != nil {
					return fmt.Errorf("open archive: %w", err)
				}
				defer func() { _ = arch.Close() }()
			}

			runID := uuid.NewString()
			eng := engine.New(client, params, runID, arch)
			sci := pipeline.NewScientist(eng, pipeline.Options{
				NumHypotheses: cfg.Pipeline.NumHypotheses,
				NeutralScore:  cfg.Pipeline.NeutralScore,
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("run %s: starting pipeline for topic %q", runID, args[0])
			report, err := sci.Run(ctx, args[0], func(ms string) {
				log.Printf("run %s: milestone %s", runID, ms)
			})
			if err != nil {
				return fmt.Errorf("pipeline run: %w", err)
			}
			pipeline.Provenanced(report, eng.ListRecords())

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().IntVar(&seed, "seed", 0, "override the configured seed")
	return cmd
}
