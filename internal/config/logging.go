package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the process logger: human-readable text on stderr,
// JSON appended to logFile for later inspection. The returned cleanup
// closes the log file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}
	cleanup := func() error { return nil }

	if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err != nil {
		slog.Error("failed to open log file, using stderr only", "error", err, "file", logFile)
	} else {
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}))
		cleanup = file.Close
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), cleanup
	}
	return slog.New(slogmulti.Fanout(handlers...)), cleanup
}

// SetupLoggerWithWriters is SetupLogger with injectable writers, for tests.
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	))
}
