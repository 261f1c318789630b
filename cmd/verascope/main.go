package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/verascope-ai/verascope/pkg/config"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "verascope",
		Short:   "Verascope — verifiable model-inference call engine",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newVerifyCmd(),
		newAuditCmd(),
		newGrantCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
