// Package state persists the loop's progress record so a crashed or
// interrupted run can be inspected and resumed.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/status"
)

// FileName is the state file inside the state directory.
const FileName = "state.json"

// RunState is the sole mutable record of loop progress for one working
// directory.
type RunState struct {
	Loop            int            `json:"loop" yaml:"loop"`
	StagnationCount int            `json:"stagnationCount" yaml:"stagnationCount"`
	LastOutputHash  string         `json:"lastOutputHash,omitempty" yaml:"lastOutputHash,omitempty"`
	LastStatus      *status.Parsed `json:"lastStatus,omitempty" yaml:"lastStatus,omitempty"`
	StartedAt       time.Time      `json:"startedAt" yaml:"startedAt"`
	Cwd             string         `json:"cwd" yaml:"cwd"`

	SessionID  string     `json:"sessionId,omitempty" yaml:"sessionId,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
	ExitReason string     `json:"exitReason,omitempty" yaml:"exitReason,omitempty"`
}

// New returns a fresh state for cwd starting at now.
func New(cwd string, now time.Time) *RunState {
	return &RunState{StartedAt: now.UTC(), Cwd: cwd}
}

// Finished reports whether the run that owns this state has returned.
func (s *RunState) Finished() bool {
	return s.FinishedAt != nil
}

// Store reads and writes state.json inside Dir.
type Store struct {
	Dir string
}

// NewStore creates a Store rooted at the given state directory.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return filepath.Join(s.Dir, FileName)
}

// Load returns the persisted state. A missing, unreadable, or corrupt file
// reads as absent.
func (s *Store) Load() (*RunState, bool) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return nil, false
	}
	var rs RunState
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, false
	}
	return &rs, true
}

// Save writes the full state. It writes to a temp file in the same
// directory and renames it over state.json, so readers never observe a
// partially written file.
func (s *Store) Save(rs *RunState) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("state: create dir: %w", err)
	}

	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("state: create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("state: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("state: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("state: finalize: %w", err)
	}
	return nil
}

// Clear removes the state file. It is a no-op when the file is absent.
func (s *Store) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("state: clear: %w", err)
	}
	return nil
}

// RemoveAll deletes the whole state directory, including session logs.
func (s *Store) RemoveAll() error {
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("state: remove %s: %w", s.Dir, err)
	}
	return nil
}
