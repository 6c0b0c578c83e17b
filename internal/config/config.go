package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is given.
const DefaultPath = "config/config.yml"

// Config holds the application configuration
type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Client:  DefaultClientConfig(),
		Logging: DefaultLoggingConfig(),
		Metrics: DefaultMetricsConfig(),
	}
}

// Load loads configuration from files and environment variables.
// Order: defaults -> <path> -> <path>.local -> ApplyDefaults ->
// ApplyEnvOverrides -> ResolvePaths -> Validate. Missing files are skipped.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	// 1. Start with default values (so YAML can override them, including bool fields)
	cfg := Default()

	// 2. Load the main file, then the local override next to it
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	if err := loadFile(localPath(path), cfg); err != nil {
		return nil, err
	}

	// 3. Apply configuration lifecycle
	if err := ApplyServiceConfigs(filepath.Dir(path), &cfg.Client, &cfg.Logging, &cfg.Metrics); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// localPath maps config/config.yml to config/config.local.yml.
func localPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

func loadFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, skip
		}
		return fmt.Errorf("read %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	return nil
}
