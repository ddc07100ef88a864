package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type (
	// Level is the minimum severity a logger emits.
	Level string

	// Format selects the slog handler.
	Format string

	// Config describes how the process logs. It is built once in main and the
	// resulting *slog.Logger is handed to every component that logs.
	Config struct {
		Level  Level  `mapstructure:"level"`
		Format Format `mapstructure:"format"`
		File   File   `mapstructure:"file"`
	}

	// File enables a rotating log file next to the stderr output.
	File struct {
		Path       string `mapstructure:"path"`
		MaxSizeMB  int    `mapstructure:"max-size-mb"`
		MaxBackups int    `mapstructure:"max-backups"`
		MaxAgeDays int    `mapstructure:"max-age-days"`
		Compress   bool   `mapstructure:"compress"`
	}
)

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"

	FormatJSON Format = "json"
	FormatText Format = "text"
)

// SlogLevel maps the configured level onto slog. An empty level means info.
func (l Level) SlogLevel() (slog.Level, error) {
	switch Level(strings.ToLower(string(l))) {
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelInfo, "":
		return slog.LevelInfo, nil
	case LevelWarn:
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", l)
	}
}

// New builds a logger writing to w (and to the configured file, if any).
func New(cfg Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.Level.SlogLevel()
	if err != nil {
		return nil, err
	}

	if cfg.File.Path != "" {
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON, "":
		handler = slog.NewJSONHandler(w, opts)
	case FormatText:
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return slog.New(handler), nil
}

// Initialize builds the process logger on stderr and makes it the slog default
// so that library code logging through slog ends up in the same sink.
func Initialize(cfg Config) (*slog.Logger, error) {
	logger, err := New(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)

	return logger, nil
}

// Named returns a child logger tagged with the component name.
func Named(parent *slog.Logger, name string) *slog.Logger {
	if parent == nil {
		parent = slog.Default()
	}

	return parent.With("name", name)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
