package utils

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var ErrUnknownLogLevel = errors.New("unknown log level")

var logLevels = map[string]slog.Level{
	"error": slog.LevelError,
	"warn":  slog.LevelWarn,
	"info":  slog.LevelInfo,
	"debug": slog.LevelDebug,
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Install the default slog logger for the recorder binary.
//
// level is one of "none", "error", "warn", "info" or "debug", in any case.
// With an empty logFile, text lines go to stdout. Otherwise JSON lines go to
// logFile, which is truncated and has its directory created as needed.
//
// The returned Closer releases the log file, if one was opened, and is never nil:
//
//	closer, err := utils.ConfigureLogger(viper.GetString("loglevel"), viper.GetString("logfile"), slog.HandlerOptions{})
//	if err != nil {
//		return err
//	}
//	defer closer.Close()
func ConfigureLogger(level string, logFile string, options slog.HandlerOptions) (io.Closer, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "none" {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nopCloser{}, nil
	}
	slogLevel, ok := logLevels[level]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownLogLevel, level)
	}
	options.Level = slogLevel

	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &options)))
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(file, &options)))
	return file, nil
}
