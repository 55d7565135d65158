// Package agent runs the external AI command once per loop iteration and
// classifies how the call went.
package agent

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single agent call when none is configured.
const DefaultTimeout = 10 * time.Minute

// Request is one agent call: the prompt goes to stdin and the process runs
// in Dir.
type Request struct {
	Dir     string
	Prompt  string
	Timeout time.Duration
}

// Result holds whatever the process produced, including partial output from
// a call that timed out or exited non-zero.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string // stdout and stderr interleaved in arrival order
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Invoker runs one blocking agent call.
//
// A returned error wrapping ErrTimeout or ErrAuthExpired comes with a
// non-nil Result, as does any other failure after the process ran.
// ErrNotFound, a missing working directory, and context cancellation come
// with a nil Result. A non-zero exit alone is not an error.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}
