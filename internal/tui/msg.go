package tui

import (
	"time"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"
)

// logEntryMsg wraps a LogEntry from the loop.
type logEntryMsg loop.LogEntry

// loopDoneMsg signals the event channel closed.
type loopDoneMsg struct{}

// tickMsg drives the elapsed clock and monitor refresh.
type tickMsg time.Time

// snapshotMsg carries a fresh monitor snapshot.
type snapshotMsg Snapshot
