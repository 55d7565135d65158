// Package status extracts the structured STATUS block an agent prints at
// the end of each response.
package status

import "fmt"

// Parsed is one successfully parsed STATUS block. Progress is always in
// [0,100]; the task counters are never negative.
type Parsed struct {
	Progress       int    `json:"progress" yaml:"progress"`
	TasksCompleted int    `json:"tasksCompleted" yaml:"tasksCompleted"`
	TasksTotal     int    `json:"tasksTotal" yaml:"tasksTotal"`
	ExitSignal     bool   `json:"exitSignal" yaml:"exitSignal"`
	Summary        string `json:"summary" yaml:"summary"`
}

// String renders the status on one line for logs and the live view.
func (p Parsed) String() string {
	s := fmt.Sprintf("%d%% (%d/%d tasks)", p.Progress, p.TasksCompleted, p.TasksTotal)
	if p.ExitSignal {
		s += " EXIT"
	}
	if p.Summary != "" {
		s += " - " + p.Summary
	}
	return s
}

// Block is the literal block agents are asked to print. It is embedded in
// the prompt trailer and the scaffolded prompt file.
const Block = `STATUS:
progress: <0-100>
tasks_completed: <integer>
tasks_total: <integer>
EXIT_SIGNAL: <true|false>
summary: <one line>`
