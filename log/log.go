// Package log provides structured logging for libcashtx components.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the root logger. Component loggers are derived from it.
var Logger zerolog.Logger

// Component loggers.
var (
	Network   zerolog.Logger
	Builder   zerolog.Logger
	Unlock    zerolog.Logger
	Broadcast zerolog.Logger
	Registry  zerolog.Logger
	Cache     zerolog.Logger
	Keys      zerolog.Logger
	Engine    zerolog.Logger
)

func init() {
	Logger = NewConsoleLogger(os.Stderr, "info")
	initComponentLoggers()
}

// Init configures the root logger. When file is non-empty, logs go to both
// the console and the file; the file always receives JSON.
func Init(level string, jsonOutput bool, file string) error {
	var console io.Writer = os.Stderr
	if !jsonOutput {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		Logger = zerolog.New(zerolog.MultiLevelWriter(console, f)).
			Level(ParseLevel(level)).
			With().
			Timestamp().
			Logger()
	} else if jsonOutput {
		Logger = NewJSONLogger(os.Stderr, level)
	} else {
		Logger = NewConsoleLogger(os.Stderr, level)
	}

	initComponentLoggers()
	return nil
}

// NewConsoleLogger creates a human-readable console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return zerolog.New(output).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel converts a level name to a zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func initComponentLoggers() {
	Network = WithComponent("network")
	Builder = WithComponent("builder")
	Unlock = WithComponent("unlock")
	Broadcast = WithComponent("broadcast")
	Registry = WithComponent("registry")
	Cache = WithComponent("utxocache")
	Keys = WithComponent("keystore")
	Engine = WithComponent("engine")
}

// WithComponent returns a logger tagged with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
