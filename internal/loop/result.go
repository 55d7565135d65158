package loop

import "github.com/LISSConsulting/LISSTech.Codchestra/internal/status"

// ExitReason says why a run ended.
type ExitReason string

const (
	ExitSignal         ExitReason = "exit_signal"
	ExitMaxLoops       ExitReason = "max_loops"
	ExitTimeout        ExitReason = "timeout"
	ExitStagnation     ExitReason = "stagnation"
	ExitRepeatedOutput ExitReason = "repeated_output"
	ExitError          ExitReason = "error"
)

// Describe returns operator-facing text for the reason.
func (r ExitReason) Describe() string {
	switch r {
	case ExitSignal:
		return "agent signalled completion and all tasks are done"
	case ExitMaxLoops:
		return "reached the maximum number of loops"
	case ExitTimeout:
		return "run deadline exceeded"
	case ExitStagnation:
		return "no file changes across consecutive loops"
	case ExitRepeatedOutput:
		return "agent kept producing the same output"
	case ExitError:
		return "stopped by an error"
	}
	return string(r)
}

// Result is returned once per run and is not persisted.
type Result struct {
	OK         bool           `json:"ok" yaml:"ok"`
	ExitReason ExitReason     `json:"exitReason" yaml:"exitReason"`
	Loop       int            `json:"loop" yaml:"loop"`
	LastStatus *status.Parsed `json:"lastStatus,omitempty" yaml:"lastStatus,omitempty"`
}
