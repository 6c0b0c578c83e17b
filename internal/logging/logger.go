// Package logging builds the slog handler tree used by the client and
// the CLI: a console sink plus optional rotating files, one of which
// only receives warnings and errors.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/syntrixbase/natsub/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	mainLogFile  = "natsub.log"
	errorLogFile = "errors.log"
)

// Sinks owns the outputs behind a logger built by New.
type Sinks struct {
	closers []io.Closer
}

// Close flushes pending repeat summaries and closes the log files.
func (s *Sinks) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

var (
	defaultSinks   *Sinks
	defaultSinksMu sync.Mutex
)

// Initialize installs a logger built from cfg as the slog default.
// Console output goes to stderr so stdout stays free for payloads.
func Initialize(cfg config.LoggingConfig) error {
	logger, sinks, err := New(cfg, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	defaultSinksMu.Lock()
	prev := defaultSinks
	defaultSinks = sinks
	defaultSinksMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	slog.SetDefault(logger)
	slog.Info("Logging initialized",
		"level", cfg.Level,
		"format", cfg.Format,
		"console_enabled", cfg.Console.Enabled,
		"file_enabled", cfg.File.Enabled,
		"dir", cfg.File.Dir,
		"components", cfg.Components,
	)
	return nil
}

// Shutdown closes the sinks installed by Initialize.
func Shutdown() error {
	defaultSinksMu.Lock()
	sinks := defaultSinks
	defaultSinks = nil
	defaultSinksMu.Unlock()
	return sinks.Close()
}

// New builds a logger from cfg. Console records are written to console
// with repeats folded by a DedupHandler.
func New(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, *Sinks, error) {
	sinks := &Sinks{}
	components := componentLevels(cfg.Components)
	var routes []Route

	if cfg.Console.Enabled {
		h := routeHandler(console, cfg.Console.Format, parseLevel(cfg.Console.Level), components)
		dedup := NewDedupHandler(h, cfg.Console.DedupWindow)
		sinks.closers = append(sinks.closers, dedup)
		routes = append(routes, Route{Handler: dedup})
	}

	if out := cfg.File; out.Enabled {
		if err := os.MkdirAll(out.Dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		mainFile := rotatingFile(out, mainLogFile)
		sinks.closers = append(sinks.closers, mainFile)
		routes = append(routes, Route{Handler: routeHandler(mainFile, out.Format, parseLevel(out.Level), components)})

		if out.ErrorLog {
			errorFile := rotatingFile(out, errorLogFile)
			sinks.closers = append(sinks.closers, errorFile)
			routes = append(routes, Route{Handler: createHandler(errorFile, out.Format, slog.LevelWarn), Min: slog.LevelWarn})
		}
	}

	return slog.New(NewFanout(routes...)), sinks, nil
}

// routeHandler builds the handler for one output. With component
// overrides the handler accepts the lowest configured level and a
// ComponentFilter applies the per-logger threshold.
func routeHandler(w io.Writer, format string, level slog.Level, components map[string]slog.Level) slog.Handler {
	if len(components) == 0 {
		return createHandler(w, format, level)
	}
	floor := level
	for _, l := range components {
		floor = min(floor, l)
	}
	return NewComponentFilter(createHandler(w, format, floor), level, components)
}

func componentLevels(names map[string]string) map[string]slog.Level {
	if len(names) == 0 {
		return nil
	}
	levels := make(map[string]slog.Level, len(names))
	for name, level := range names {
		levels[name] = parseLevel(level)
	}
	return levels
}

func rotatingFile(out config.FileOutput, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(out.Dir, name),
		MaxSize:    out.Rotation.MaxSizeMB,
		MaxBackups: out.Rotation.MaxBackups,
		MaxAge:     out.Rotation.MaxAgeDays,
		Compress:   out.Rotation.Compress,
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return NewTextHandler(w, level)
}
