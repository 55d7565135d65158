// Package logging builds the slog logger shared by the loop, the agent
// invoker, and hooks.
package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/config"
)

// Level maps a configured verbosity to a slog level. Unknown values map to
// info.
func Level(verbosity string) slog.Level {
	switch verbosity {
	case config.VerbosityQuiet:
		return slog.LevelError
	case config.VerbosityVerbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w at the level for verbosity. Terminals
// get the text handler; anything else (pipes, files, CI) gets JSON lines.
func New(w io.Writer, verbosity string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: Level(verbosity)}
	if isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
