package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var defaultLogger *logrus.Logger

func init() {
	defaultLogger = logrus.New()
	defaultLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	defaultLogger.SetOutput(os.Stderr)

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
		if isTest() {
			logLevel = "silent"
		}
	}
	if err := ConfigureFromString(logLevel); err != nil {
		defaultLogger.SetLevel(logrus.InfoLevel)
	}
}

func isTest() bool {
	return os.Getenv("GO_ENV") == "test"
}

// GetLogger returns the default logger instance
func GetLogger() *logrus.Logger {
	return defaultLogger
}

// WithName creates a child logger with a name field
func WithName(name string) *logrus.Entry {
	return defaultLogger.WithField("name", name)
}

// WithFields creates a logger with additional fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return defaultLogger.WithFields(fields)
}

// SetLevel sets the logging level
func SetLevel(level logrus.Level) {
	defaultLogger.SetLevel(level)
}

// IsLevelEnabled checks if a log level is enabled
func IsLevelEnabled(level logrus.Level) bool {
	return defaultLogger.IsLevelEnabled(level)
}

// ConfigureFromString sets the level from a config string.
// "silent" discards all output; test mode always wins.
func ConfigureFromString(levelStr string) error {
	if isTest() || levelStr == "silent" {
		defaultLogger.SetOutput(io.Discard)
		return nil
	}

	level, err := logrus.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		return err
	}
	defaultLogger.SetLevel(level)
	return nil
}

// ConfigureFile tees log output into a file. The returned closer must be
// closed on shutdown. An empty path is a no-op.
func ConfigureFile(path string) (io.Closer, error) {
	if path == "" || isTest() {
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defaultLogger.SetOutput(io.MultiWriter(defaultLogger.Out, f))
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
