package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/verascope-ai/verascope/pkg/archive"
	"github.com/verascope-ai/verascope/pkg/mcp"
	"github.com/verascope-ai/verascope/pkg/provider"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the call archive to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			var arch *archive.Archive
			if cfg.Archive.Enabled {
				arch, err = archive.New(cfg.Archive)
				if err != nil {
					return fmt.Errorf("open archive: %w", err)
				}
				defer func() { _ = arch.Close() }()
			}

			client, err := provider.NewHTTPClient(cfg.Provider.URL, cfg.Provider.APIKey, cfg.Provider.Timeout)
			if err != nil {
				return fmt.Errorf("init provider client: %w", err)
			}

			srv := mcp.New(arch, client, cfg.Params, version)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = srv.Run(ctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}
