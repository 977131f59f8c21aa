package logger

import (
	"io"
	"log/slog"
	"os"
)

// InitLogger initializes and configures the application logger based on environment
// Returns a configured slog.Logger instance
func InitLogger(environment string) *slog.Logger {
	logger := New(os.Stdout, environment)

	// Set as default logger so it can be used throughout the application
	slog.SetDefault(logger)

	return logger
}

// New builds a logger writing to w. Development gets a verbose text handler
// with source locations, every other environment gets JSON at info level.
func New(w io.Writer, environment string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if environment == "development" {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
