package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Log components that accept a level override. Each matches the
// "component" attribute its logger carries.
const (
	LogComponentConn         = "conn"
	LogComponentSubscription = "subscription"
	LogComponentNATS         = "natsio"
)

var logComponents = []string{LogComponentConn, LogComponentSubscription, LogComponentNATS}

// LoggingConfig selects the log outputs of the client and the CLI.
//
//	logging:
//	  level: info
//	  components:
//	    subscription: debug
//	  console:
//	    dedup_window: 5s
//	  file:
//	    enabled: true
//	    dir: logs
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json

	// Components overrides Level per subsystem on the console and main
	// file outputs. The error log always takes warnings and above.
	Components map[string]string `yaml:"components"`

	Console ConsoleOutput `yaml:"console"`
	File    FileOutput    `yaml:"file"`
}

// ConsoleOutput writes to stderr. Identical records inside DedupWindow
// are folded into one summary line.
type ConsoleOutput struct {
	Enabled     bool          `yaml:"enabled"`
	Level       string        `yaml:"level"`
	Format      string        `yaml:"format"`
	DedupWindow time.Duration `yaml:"dedup_window"`
}

// FileOutput writes natsub.log, plus errors.log when ErrorLog is set,
// under Dir with size based rotation.
type FileOutput struct {
	Enabled  bool           `yaml:"enabled"`
	Level    string         `yaml:"level"`
	Format   string         `yaml:"format"`
	Dir      string         `yaml:"dir"`
	ErrorLog bool           `yaml:"error_log"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig is passed through to lumberjack.
type RotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

const (
	defaultLogDir      = "logs"
	defaultDedupWindow = 5 * time.Second
)

// DefaultLoggingConfig logs info and above to the console only. A CLI
// run leaves no files behind unless asked to.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Console: ConsoleOutput{
			Enabled:     true,
			DedupWindow: defaultDedupWindow,
		},
		File: FileOutput{
			Dir:      defaultLogDir,
			ErrorLog: true,
			Rotation: RotationConfig{MaxSizeMB: 100, MaxBackups: 10, MaxAgeDays: 30, Compress: true},
		},
	}
}

// ApplyDefaults fills empty fields. Outputs inherit the top-level level
// and format. Enabled flags are left alone; Load starts from
// DefaultLoggingConfig so an omitted flag keeps its default.
func (c *LoggingConfig) ApplyDefaults() {
	def := DefaultLoggingConfig()
	if c.Level == "" {
		c.Level = def.Level
	}
	if c.Format == "" {
		c.Format = def.Format
	}
	inherit(&c.Console.Level, c.Level)
	inherit(&c.Console.Format, c.Format)
	inherit(&c.File.Level, c.Level)
	inherit(&c.File.Format, c.Format)

	if c.Console.DedupWindow <= 0 {
		c.Console.DedupWindow = def.Console.DedupWindow
	}
	if c.File.Dir == "" {
		c.File.Dir = def.File.Dir
	}
	r := &c.File.Rotation
	if r.MaxSizeMB <= 0 {
		r.MaxSizeMB = def.File.Rotation.MaxSizeMB
	}
	if r.MaxBackups <= 0 {
		r.MaxBackups = def.File.Rotation.MaxBackups
	}
	if r.MaxAgeDays <= 0 {
		r.MaxAgeDays = def.File.Rotation.MaxAgeDays
	}
}

func inherit(field *string, from string) {
	if *field == "" {
		*field = from
	}
}

// ApplyEnvOverrides reads NATSUB_LOG_LEVEL, NATSUB_LOG_FORMAT,
// NATSUB_LOG_DIR and NATSUB_LOG_COMPONENTS. The components variable
// takes comma separated name=level pairs:
//
//	NATSUB_LOG_COMPONENTS=conn=debug,natsio=warn
func (c *LoggingConfig) ApplyEnvOverrides() {
	if val := os.Getenv("NATSUB_LOG_LEVEL"); val != "" {
		c.Level, c.Console.Level, c.File.Level = val, val, val
	}
	if val := os.Getenv("NATSUB_LOG_FORMAT"); val != "" {
		c.Format, c.Console.Format, c.File.Format = val, val, val
	}
	if val := os.Getenv("NATSUB_LOG_DIR"); val != "" {
		c.File.Dir = val
	}
	if val := os.Getenv("NATSUB_LOG_COMPONENTS"); val != "" {
		if c.Components == nil {
			c.Components = make(map[string]string)
		}
		for _, pair := range strings.Split(val, ",") {
			name, level, _ := strings.Cut(strings.TrimSpace(pair), "=")
			if name != "" {
				c.Components[name] = level
			}
		}
	}
}

// ResolvePaths anchors a relative log directory. A path starting with
// ".." is taken from configDir itself; any other relative path lands
// beside configDir, so "logs" next to "config/".
func (c *LoggingConfig) ResolvePaths(configDir string) {
	dir := c.File.Dir
	if dir == "" || filepath.IsAbs(dir) {
		return
	}
	base := filepath.Dir(configDir)
	if strings.HasPrefix(dir, "..") {
		base = configDir
	}
	c.File.Dir = filepath.Join(base, dir)
}

// Validate checks levels and formats. Outputs that are disabled are not
// checked.
func (c *LoggingConfig) Validate() error {
	if err := checkLevel("log level", c.Level); err != nil {
		return err
	}
	if err := checkFormat("log format", c.Format); err != nil {
		return err
	}
	if c.Console.Enabled {
		if err := checkOutput("console", c.Console.Level, c.Console.Format); err != nil {
			return err
		}
	}
	if c.File.Enabled {
		if c.File.Dir == "" {
			return fmt.Errorf("log directory cannot be empty when file output is enabled")
		}
		if err := checkOutput("file", c.File.Level, c.File.Format); err != nil {
			return err
		}
	}

	for _, name := range slices.Sorted(maps.Keys(c.Components)) {
		if !slices.Contains(logComponents, name) {
			return fmt.Errorf("unknown log component %q (must be one of %s)", name, strings.Join(logComponents, ", "))
		}
		if err := checkLevel("log level for component "+name, c.Components[name]); err != nil {
			return err
		}
	}
	return nil
}

func checkOutput(output, level, format string) error {
	if level != "" {
		if err := checkLevel(output+" log level", level); err != nil {
			return err
		}
	}
	if format != "" {
		return checkFormat(output+" log format", format)
	}
	return nil
}

func checkLevel(what, level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid %s: %q (must be debug, info, warn, or error)", what, level)
}

func checkFormat(what, format string) error {
	switch format {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("invalid %s: %q (must be text or json)", what, format)
}
