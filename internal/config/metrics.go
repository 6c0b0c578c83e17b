package config

import (
	"fmt"
	"os"
	"strings"
)

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
}

// DefaultMetricsConfig returns default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "natsub",
		Listen:    "127.0.0.1:9464",
		Path:      "/metrics",
	}
}

// ApplyDefaults fills in missing values with defaults
func (c *MetricsConfig) ApplyDefaults() {
	d := DefaultMetricsConfig()
	if c.Namespace == "" {
		c.Namespace = d.Namespace
	}
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Path == "" {
		c.Path = d.Path
	}
}

// ApplyEnvOverrides applies environment variable overrides
func (c *MetricsConfig) ApplyEnvOverrides() {
	if val := os.Getenv("NATSUB_METRICS_ENABLED"); val != "" {
		c.Enabled = val == "true" || val == "1"
	}
	if val := os.Getenv("NATSUB_METRICS_LISTEN"); val != "" {
		c.Listen = val
	}
}

// ResolvePaths is a no-op; metrics have no file paths.
func (c *MetricsConfig) ResolvePaths(string) {}

// Validate validates the configuration
func (c *MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("metrics.path must start with /: %s", c.Path)
	}
	return nil
}
