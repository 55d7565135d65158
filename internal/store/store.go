// Package store persists loop events to a JSONL session log and provides
// indexed read-back of past iterations. One log file is written per run;
// the history command reopens the newest one.
package store

import (
	"time"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/status"
)

// Writer persists loop events to durable storage.
type Writer interface {
	Append(entry loop.LogEntry) error
	Close() error
}

// Reader retrieves past iteration data from storage.
type Reader interface {
	Iterations() ([]IterationSummary, error)
	IterationLog(n int) ([]loop.LogEntry, error)
	SessionSummary() (SessionSummary, error)
}

// Store combines Writer and Reader into a single session-scoped handle.
type Store interface {
	Writer
	Reader
}

// IterationSummary summarises one completed loop iteration.
type IterationSummary struct {
	Number          int            `json:"number" yaml:"number"`
	Status          *status.Parsed `json:"status,omitempty" yaml:"status,omitempty"`
	Score           int            `json:"score" yaml:"score"`
	StagnationCount int            `json:"stagnationCount" yaml:"stagnationCount"`
	ExitCode        int            `json:"exitCode" yaml:"exitCode"`
	Duration        float64        `json:"duration" yaml:"duration"` // seconds
	Warnings        int            `json:"warnings" yaml:"warnings"`
	StartAt         time.Time      `json:"startAt" yaml:"startAt"`
	EndAt           time.Time      `json:"endAt" yaml:"endAt"`
}

// SessionSummary summarises one session log.
type SessionSummary struct {
	SessionID  string          `json:"sessionId" yaml:"sessionId"`
	Path       string          `json:"path" yaml:"path"`
	StartedAt  time.Time       `json:"startedAt" yaml:"startedAt"`
	Iterations int             `json:"iterations" yaml:"iterations"`
	ExitReason loop.ExitReason `json:"exitReason,omitempty" yaml:"exitReason,omitempty"`
	Message    string          `json:"message,omitempty" yaml:"message,omitempty"`
}
