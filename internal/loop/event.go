package loop

import (
	"fmt"
	"time"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/status"
)

// LogKind identifies the type of a loop log event.
type LogKind int

const (
	LogInfo         LogKind = iota // General informational message
	LogIterStart                   // Iteration starting
	LogIterComplete                // Iteration finished
	LogWarn                        // Recoverable problem within an iteration
	LogError                       // Fatal error; the run is ending
	LogDone                        // Run completed successfully
	LogStopped                     // Run stopped by a limit or detector
)

var kindNames = [...]string{"info", "iter_start", "iter_complete", "warn", "error", "done", "stopped"}

func (k LogKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("LogKind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText writes the kind by name so session logs stay readable.
func (k LogKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name written by MarshalText.
func (k *LogKind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = LogKind(i)
			return nil
		}
	}
	return fmt.Errorf("loop: unknown log kind %q", b)
}

// LogEntry is a structured event emitted by the loop during execution.
// When Loop.Events is set, entries are sent there for the session log and
// the live view.
type LogEntry struct {
	Kind      LogKind   `json:"kind"`
	Timestamp time.Time `json:"ts"`
	Message   string    `json:"msg"`

	// Iteration state
	Iteration int `json:"iteration,omitempty"`
	MaxIter   int `json:"max_iter,omitempty"`

	// Set on LogIterComplete
	Status          *status.Parsed `json:"status,omitempty"`
	Score           int            `json:"score,omitempty"`
	StagnationCount int            `json:"stagnation,omitempty"`
	ExitCode        int            `json:"exit_code,omitempty"`
	Duration        float64        `json:"duration,omitempty"` // seconds

	// Set on LogDone, LogStopped, and LogError
	ExitReason ExitReason `json:"exit_reason,omitempty"`
}
