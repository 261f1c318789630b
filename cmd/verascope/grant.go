package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/verascope-ai/verascope/pkg/provider"
)

func newGrantCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Show the remaining token balance on the provider grant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			client, err := provider.NewHTTPClient(cfg.Provider.URL, cfg.Provider.APIKey, cfg.Provider.Timeout)
			if err != nil {
				return fmt.Errorf("init provider client: %w", err)
			}

			status, err := client.CheckGrant(context.Background())
			if err != nil {
				return fmt.Errorf("check grant: %w", err)
			}

			if !status.Success {
				fmt.Println("Grant check failed on the provider side.")
				return nil
			}
			used := status.TotalTokens - status.RemainingTokens
			fmt.Printf("Grant: %d of %d tokens remaining (%d used)\n",
				status.RemainingTokens, status.TotalTokens, used)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}
