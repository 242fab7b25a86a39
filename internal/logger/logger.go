// Package logger builds the process-wide zerolog logger: console or
// JSON output to stdout, plus an optional rotated file sink when a log
// directory is configured.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "sublarr.log"

// Config holds logger configuration. Zero rotation values fall back to
// 10 MB, 5 backups, 30 days.
type Config struct {
	Level      string
	Format     string // "console" or "json"
	Path       string // log directory; empty disables the file sink
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger is the root logger. Subsystems derive their own child via
// Component.
type Logger struct {
	zerolog.Logger
	rotator *lumberjack.Logger
}

// New builds the root logger from cfg. Unknown level strings fall back
// to info rather than failing startup.
func New(cfg Config) *Logger {
	var output io.Writer = consoleWriter(cfg.Format)

	rotator := fileRotator(cfg)
	if rotator != nil {
		output = io.MultiWriter(output, rotator)
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	root := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: root, rotator: rotator}
}

// Component returns a child logger tagged for one subsystem.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Close flushes and closes the file sink, if any.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

func consoleWriter(format string) io.Writer {
	if format == "json" {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
}

// fileRotator returns nil when no log directory is configured or it
// cannot be created; logging then stays console-only.
func fileRotator(cfg Config) *lumberjack.Logger {
	if cfg.Path == "" {
		return nil
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 5
	}
	maxAge := cfg.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 30
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, logFileName),
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
}
