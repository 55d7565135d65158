package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/status"
)

// RunInfo describes the run a hook is called for.
type RunInfo struct {
	Dir       string
	SessionID string
	MaxLoops  int
	StartedAt time.Time
	Resumed   bool
}

// IterationInfo describes one iteration. BeforeLoop hooks see only Dir,
// Loop, and MaxLoops.
type IterationInfo struct {
	Dir             string
	Loop            int
	MaxLoops        int
	Output          string
	Status          *status.Parsed // nil when this iteration had no STATUS block
	ExitCode        int
	TimedOut        bool
	Duration        time.Duration
	Score           int
	StagnationCount int
}

// Hook is an extension point called at fixed places in the run. Any field
// may be nil. Errors and panics are logged and never stop the run.
type Hook struct {
	Name       string
	BeforeRun  func(ctx context.Context, run RunInfo) error
	AfterRun   func(ctx context.Context, run RunInfo, res Result) error
	BeforeLoop func(ctx context.Context, it IterationInfo) error
	AfterLoop  func(ctx context.Context, it IterationInfo) error
}

// callHooks invokes pick(h) for every hook that defines it, isolating each
// call.
func (l *Loop) callHooks(point string, pick func(Hook) func() error) {
	for _, h := range l.Hooks {
		fn := pick(h)
		if fn == nil {
			continue
		}
		if err := safeCall(fn); err != nil {
			l.logger().Warn("hook failed", "hook", h.Name, "point", point, "err", err)
		}
	}
}

// safeCall runs fn, converting a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (l *Loop) beforeRun(ctx context.Context, run RunInfo) {
	l.callHooks("before_run", func(h Hook) func() error {
		if h.BeforeRun == nil {
			return nil
		}
		return func() error { return h.BeforeRun(ctx, run) }
	})
}

func (l *Loop) afterRun(ctx context.Context, run RunInfo, res Result) {
	l.callHooks("after_run", func(h Hook) func() error {
		if h.AfterRun == nil {
			return nil
		}
		return func() error { return h.AfterRun(ctx, run, res) }
	})
}

func (l *Loop) beforeLoop(ctx context.Context, it IterationInfo) {
	l.callHooks("before_loop", func(h Hook) func() error {
		if h.BeforeLoop == nil {
			return nil
		}
		return func() error { return h.BeforeLoop(ctx, it) }
	})
}

func (l *Loop) afterLoop(ctx context.Context, it IterationInfo) {
	l.callHooks("after_loop", func(h Hook) func() error {
		if h.AfterLoop == nil {
			return nil
		}
		return func() error { return h.AfterLoop(ctx, it) }
	})
}
