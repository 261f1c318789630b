package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/verascope-ai/verascope/pkg/archive"
	"github.com/verascope-ai/verascope/pkg/pipeline"
	"github.com/verascope-ai/verascope/pkg/provider"
	"github.com/verascope-ai/verascope/pkg/server"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Verascope API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
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

			manager := server.NewRunManager(client, arch, pipeline.Options{
				NumHypotheses: cfg.Pipeline.NumHypotheses,
				NeutralScore:  cfg.Pipeline.NeutralScore,
			})
			srv := server.New(cfg, manager)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("starting verascope server on %s (model %s, seed %d)",
				cfg.Listen, cfg.Params.Model, cfg.Params.Seed)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}
