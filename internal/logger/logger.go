// Package logger provides structured logging setup for the council service.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/llm-council/council/internal/config"
)

// asyncChanSize and asyncWorkers size the buffered handler used when
// Logging.Async is set.
const (
	asyncChanSize = 4096
	asyncWorkers  = 2
)

// New creates a *slog.Logger from the given Logging config, along with a
// Closer that must be called before process exit to flush any buffered
// records. Output is JSON to stdout with a "service" attribute on every
// record. When cfg.Async is set, records are handled by a buffered worker
// pool instead of synchronously on the calling goroutine.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		async := NewAsyncHandler(handler, asyncChanSize, asyncWorkers)
		handler = async
		closer = async
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
