// Package logger owns the process-wide hclog root logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/scormbridge/internal/config"
)

var (
	root hclog.Logger = hclog.New(&hclog.LoggerOptions{
		Name:  "scormbridge",
		Level: levelFromEnv(),
	})
	mu sync.RWMutex
)

// Init rebuilds the root logger from the logging configuration.
func Init(cfg config.LoggingConfig) error {
	var out io.Writer = os.Stdout
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	case "file":
		if cfg.FilePath == "" {
			return fmt.Errorf("logging output is file but no file_path is set")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
	default:
		return fmt.Errorf("unsupported log output: %s", cfg.Output)
	}

	l := hclog.New(&hclog.LoggerOptions{
		Name:       "scormbridge",
		Level:      hclog.LevelFromString(cfg.Level),
		Output:     out,
		JSONFormat: strings.EqualFold(cfg.Format, "json"),
	})

	mu.Lock()
	root = l
	mu.Unlock()
	return nil
}

// Get returns the root logger. Components should call Named on it.
func Get() hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Named returns a sub-logger of the root logger
func Named(name string) hclog.Logger {
	return Get().Named(name)
}

// Info logs informational messages with key/value pairs
func Info(msg string, args ...interface{}) {
	Get().Info(msg, args...)
}

// Warn logs warning messages with key/value pairs
func Warn(msg string, args ...interface{}) {
	Get().Warn(msg, args...)
}

// Error logs error messages with key/value pairs
func Error(msg string, args ...interface{}) {
	Get().Error(msg, args...)
}

// Debug logs debug messages with key/value pairs
func Debug(msg string, args ...interface{}) {
	Get().Debug(msg, args...)
}

func levelFromEnv() hclog.Level {
	if lvl := os.Getenv("SCORMBRIDGE_LOG_LEVEL"); lvl != "" {
		return hclog.LevelFromString(lvl)
	}
	return hclog.Info
}
