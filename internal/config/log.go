package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetLogLevel configures the default logger from KIBITZ_LOG_LEVEL and KIBITZ_LOG_FORMAT.
// It exits when either is invalid.
func SetLogLevel() {
	logger, err := newLogger(os.Stderr, os.Getenv("KIBITZ_LOG_LEVEL"), os.Getenv("KIBITZ_LOG_FORMAT"))
	if err != nil {
		slog.Error("Invalid log configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logger)
}

func newLogger(w io.Writer, levelName string, format string) (*slog.Logger, error) {
	level, err := parseLogLevel(levelName)
	if err != nil {
		return nil, err
	}

	options := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
}

func parseLogLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(name) {
	case "", "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", name)
	}
}
