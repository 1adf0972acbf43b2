package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/spectral-cluster/configs"
)

// loadConfigFromFile overlays a YAML or JSON settings file on base. Keys the
// file leaves out keep their base values.
func loadConfigFromFile(filePath string, base *configs.Config) (*configs.Config, error) {
	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file does not exist: %s", filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	// Determine file format
	switch filepath.Ext(filePath) {
	case ".yaml", ".yml":
		return decodeYAMLConfig(data, base)
	case ".json":
		return decodeJSONConfig(data, base)
	default:
		// Try YAML first, then JSON
		if cfg, err := decodeYAMLConfig(data, base); err == nil {
			return cfg, nil
		}
		return decodeJSONConfig(data, base)
	}
}

func decodeYAMLConfig(data []byte, base *configs.Config) (*configs.Config, error) {
	cfg := *base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}
	return &cfg, nil
}

func decodeJSONConfig(data []byte, base *configs.Config) (*configs.Config, error) {
	cfg := *base
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON configuration: %w", err)
	}
	return &cfg, nil
}

// mergeConfig applies command line overrides on top of file settings
func mergeConfig(cfg *configs.Config, ctx *Context) *configs.Config {
	if ctx.Verbose {
		cfg.Verbose = true
	}
	if ctx.OutputFormat != "" {
		cfg.OutputFormat = ctx.OutputFormat
	}
	if ctx.Seed != nil {
		cfg.PCA.Seed = ctx.Seed
		cfg.KMeans.Seed = ctx.Seed
	}
	if ctx.Quiet {
		cfg.Output.Progress = false
	}
	return cfg
}

// GenerateExampleConfig writes the default configuration as YAML
func GenerateExampleConfig(outputFile string) error {
	data, err := yaml.Marshal(configs.GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	if dir := filepath.Dir(outputFile); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write example config: %w", err)
	}

	return nil
}

// ValidateConfig loads a configuration file over the defaults and validates it
func ValidateConfig(configFile string) error {
	cfg, err := loadConfigFromFile(configFile, configs.GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := configs.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	return nil
}
