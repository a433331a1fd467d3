package observability

import (
	"log/slog"
	"os"
)

// NewLogger builds the gateway's structured logger: JSON to stderr at
// info level, or debug level when debug is true. This mirrors
// cmd/nexus/handlers_serve.go's runServe debug toggle.
func NewLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
