// Package logger configures the portal's zerolog output: a readable console
// stream plus an optional JSON log file.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const serviceName = "survey-portal"

// Logger is the portal logger. Packages take a *zerolog.Logger from Component.
type Logger struct {
	zerolog.Logger
}

// New builds a logger at level writing to stdout and, when logFile is set,
// appending JSON lines to that file.
func New(level string, logFile string) (*Logger, error) {
	return newWithConsole(level, logFile, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
}

func newWithConsole(level, logFile string, console io.Writer) (*Logger, error) {
	out := []io.Writer{console}
	if logFile != "" {
		f, err := openLogFile(logFile)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(out...)).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
	return &Logger{zl}, nil
}

// parseLevel falls back to info for empty or unknown names.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Component returns a child logger tagged with component=name.
func (l *Logger) Component(name string) *zerolog.Logger {
	child := l.With().Str("component", name).Logger()
	return &child
}

// Global is set by Init.
var Global *Logger

// Init builds the process-wide logger.
func Init(level string, logFile string) error {
	l, err := New(level, logFile)
	if err != nil {
		return err
	}
	Global = l
	return nil
}

// Get returns the global logger, or a no-op logger before Init.
func Get() *Logger {
	if Global == nil {
		return &Logger{zerolog.Nop()}
	}
	return Global
}
