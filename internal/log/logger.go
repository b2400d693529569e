package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	charm "github.com/charmbracelet/log"
)

// Level represents log severity levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (debug, info, warn, error) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) charm() charm.Level {
	switch l {
	case DebugLevel:
		return charm.DebugLevel
	case WarnLevel:
		return charm.WarnLevel
	case ErrorLevel:
		return charm.ErrorLevel
	default:
		return charm.InfoLevel
	}
}

// Logger interface defines structured logging methods. Arguments after the
// message are alternating keys and values.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	SetLevel(level Level)
	SetJSONOutput(enabled bool)
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer // defaults to os.Stderr
	Prefix     string
}

// DefaultLogger is the default implementation of Logger
type DefaultLogger struct {
	mu     sync.Mutex
	logger *charm.Logger
}

var _ Logger = (*DefaultLogger)(nil)

var (
	defaultLogger *DefaultLogger
	once          sync.Once
)

// New creates a new logger with the given configuration
func New(cfg LoggerConfig) *DefaultLogger {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}

	l := charm.NewWithOptions(w, charm.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Level:           cfg.Level.charm(),
		Prefix:          cfg.Prefix,
	})
	if cfg.JSONOutput {
		l.SetFormatter(charm.JSONFormatter)
	}
	return &DefaultLogger{logger: l}
}

// Default returns the default logger instance
func Default() *DefaultLogger {
	once.Do(func() {
		defaultLogger = New(LoggerConfig{Level: InfoLevel})
	})
	return defaultLogger
}

// Discard returns a logger that drops everything.
func Discard() *DefaultLogger {
	return New(LoggerConfig{Level: ErrorLevel, Output: io.Discard})
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	l.logger.Debug(msg, args...)
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...interface{}) {
	l.logger.Info(msg, args...)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, args ...interface{}) {
	l.logger.Warn(msg, args...)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	l.logger.Error(msg, args...)
}

// SetLevel sets the minimum log level
func (l *DefaultLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.SetLevel(level.charm())
}

// SetJSONOutput enables or disables JSON output
func (l *DefaultLogger) SetJSONOutput(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if enabled {
		l.logger.SetFormatter(charm.JSONFormatter)
	} else {
		l.logger.SetFormatter(charm.TextFormatter)
	}
}

// With returns a logger that adds keyvals to every entry.
func (l *DefaultLogger) With(keyvals ...interface{}) *DefaultLogger {
	return &DefaultLogger{logger: l.logger.With(keyvals...)}
}

// Progress logs msg with the time elapsed since start.
func (l *DefaultLogger) Progress(msg string, start time.Time, args ...interface{}) {
	args = append(args, "elapsed", time.Since(start).Round(time.Millisecond))
	l.logger.Info(msg, args...)
}
