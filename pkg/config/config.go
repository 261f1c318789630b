package config

import (
	"fmt"
	"os"
	"time"

	"github.com/verascope-ai/verascope/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all Verascope configuration.
type Config struct {
	Listen   string               `yaml:"listen"`
	Provider ProviderConfig       `yaml:"provider"`
	Params   models.CallParams    `yaml:"params"`
	Archive  models.ArchiveConfig `yaml:"archive"`
	Pipeline PipelineConfig       `yaml:"pipeline"`
}

// ProviderConfig defines the deterministic inference endpoint.
type ProviderConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// PipelineConfig controls the research pipeline stages.
type PipelineConfig struct {
	NumHypotheses int     `yaml:"num_hypotheses"`
	NeutralScore  float64 `yaml:"neutral_score"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Provider: ProviderConfig{
			URL:     "https://determinal-api.eigenarcade.com",
			Timeout: 120 * time.Second,
		},
		Params: models.CallParams{
			Model:       "gpt-oss-120b-f16",
			Seed:        42,
			Temperature: 0,
			MaxTokens:   4096,
		},
		Archive: models.ArchiveConfig{
			Enabled:       true,
			DBPath:        "verascope.db",
			RetentionDays: 90,
			Include:       []string{"inputs", "outputs"},
		},
		Pipeline: PipelineConfig{
			NumHypotheses: 3,
			NeutralScore:  5,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
