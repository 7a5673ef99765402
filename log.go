package pubmed

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the diagnostic logger used by all commands. Output goes
// to w (stderr if nil) as text or JSON lines; verbose lowers the level to
// debug. The audit trail is separate and unaffected.
func NewLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
