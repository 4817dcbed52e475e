// Package logger configures the process-wide zerolog logger with
// lumberjack-backed rotation, the same way across every component of
// the gateway.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration, normally sourced from pkg/config.
type Config struct {
	Path       string
	Level      string
	Format     string // "json" or "console"
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	global zerolog.Logger
	once   sync.Once
)

// Init builds the global logger from cfg. Subsequent calls are no-ops;
// use New directly when a component needs an independent instance
// (e.g. tests).
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		global, err = New(cfg)
	})
	return err
}

// New builds an independent zerolog.Logger from cfg.
func New(cfg Config) (zerolog.Logger, error) {
	if cfg.Path != "" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return zerolog.Logger{}, fmt.Errorf("logger: create log directory: %w", err)
		}
	}

	var writer io.Writer
	if cfg.Path != "" {
		writer = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	} else {
		writer = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var zlog zerolog.Logger
	if cfg.Format == "console" {
		zlog = zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}).
			With().Timestamp().Caller().Logger()
	} else {
		zlog = zerolog.New(writer).With().Timestamp().Caller().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zlog.Level(level), nil
}

// Get returns the global logger. Before Init is called it defaults to
// an unrotated stdout logger, so components used from a test binary
// always have somewhere to log.
func Get() zerolog.Logger {
	return global
}

func init() {
	global = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
