// Package loop drives the agent through repeated iterations and decides,
// after each one, whether to continue and why to stop.
package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/agent"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/git"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/state"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/status"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/tasks"
)

// VCS reports working tree changes. *git.Runner satisfies this interface.
// A nil summary means version control is not available.
type VCS interface {
	DiffSummary() (*git.DiffSummary, error)
}

// TaskList exposes the task file. *tasks.File satisfies this interface.
type TaskList interface {
	Read() (content string, ok bool, err error)
	Load() ([]tasks.Task, error)
}

// StateStore persists RunState. *state.Store satisfies this interface.
type StateStore interface {
	Load() (*state.RunState, bool)
	Save(*state.RunState) error
}

// Options are the run limits and detector thresholds.
type Options struct {
	MaxLoops                int
	Timeout                 time.Duration // whole run
	CallTimeout             time.Duration // one agent call
	StagnationThreshold     int
	RepeatedOutputThreshold int
	MinSubstantialOutput    int // trimmed bytes below which a repeat is trivial
	DiffSummaryLimit        int // runes of diff text in the prompt
	UserTask                string
}

// DefaultOptions returns the built-in limits.
func DefaultOptions() Options {
	return Options{
		MaxLoops:                50,
		Timeout:                 120 * time.Minute,
		CallTimeout:             agent.DefaultTimeout,
		StagnationThreshold:     3,
		RepeatedOutputThreshold: 2,
		MinSubstantialOutput:    64,
		DiffSummaryLimit:        500,
	}
}

// withDefaults fills zero values from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxLoops <= 0 {
		o.MaxLoops = d.MaxLoops
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = d.CallTimeout
	}
	if o.StagnationThreshold <= 0 {
		o.StagnationThreshold = d.StagnationThreshold
	}
	if o.RepeatedOutputThreshold <= 0 {
		o.RepeatedOutputThreshold = d.RepeatedOutputThreshold
	}
	if o.MinSubstantialOutput < 0 {
		o.MinSubstantialOutput = d.MinSubstantialOutput
	}
	if o.DiffSummaryLimit <= 0 {
		o.DiffSummaryLimit = d.DiffSummaryLimit
	}
	return o
}

// Loop orchestrates the prompt -> agent -> parse -> detect -> save cycle.
type Loop struct {
	Dir        string // working directory the agent edits
	PromptFile string // system prompt file; re-read every iteration
	SessionID  string

	Agent   agent.Invoker
	VCS     VCS
	Tasks   TaskList
	Store   StateStore
	Options Options

	Log    *slog.Logger
	Events chan<- LogEntry
	Hooks  []Hook
	Now    func() time.Time
}

// Run executes iterations until a stop condition fires. Expected stops are
// reported in Result with a nil error. A non-nil error means the agent
// cannot be run at all (missing command, expired credentials) or ctx was
// cancelled; Result.ExitReason is then ExitError.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	opts := l.Options.withDefaults()

	rs, resumed := l.Store.Load()
	if !resumed {
		rs = state.New(l.Dir, l.now())
	}
	if l.SessionID != "" {
		rs.SessionID = l.SessionID
	}
	rs.FinishedAt = nil
	rs.ExitReason = ""
	if err := l.Store.Save(rs); err != nil {
		return Result{ExitReason: ExitError, Loop: rs.Loop, LastStatus: rs.LastStatus}, fmt.Errorf("loop: %w", err)
	}

	run := RunInfo{
		Dir:       l.Dir,
		SessionID: rs.SessionID,
		MaxLoops:  opts.MaxLoops,
		StartedAt: rs.StartedAt,
		Resumed:   resumed,
	}
	l.beforeRun(ctx, run)
	if resumed {
		l.emit(ctx, LogEntry{Kind: LogInfo, Message: fmt.Sprintf("Resuming at loop %d (max: %d)", rs.Loop, opts.MaxLoops), MaxIter: opts.MaxLoops})
	} else {
		l.emit(ctx, LogEntry{Kind: LogInfo, Message: fmt.Sprintf("Starting loop (max: %d)", opts.MaxLoops), MaxIter: opts.MaxLoops})
	}

	deadline := l.now().Add(opts.Timeout)
	repeat := newRepeatDetector(opts.RepeatedOutputThreshold, opts.MinSubstantialOutput, rs.LastOutputHash)
	stag := &stagnation{threshold: opts.StagnationThreshold, lastScore: l.score()}

	finish := func(reason ExitReason, last *status.Parsed, err error) (Result, error) {
		res := Result{
			OK:         reason == ExitSignal,
			ExitReason: reason,
			Loop:       rs.Loop,
			LastStatus: last,
		}
		now := l.now().UTC()
		rs.FinishedAt = &now
		rs.ExitReason = string(reason)
		if saveErr := l.Store.Save(rs); saveErr != nil {
			l.logger().Error("save state", "err", saveErr)
		}

		entry := LogEntry{Kind: LogStopped, ExitReason: reason, Iteration: rs.Loop, MaxIter: opts.MaxLoops, Status: last}
		switch {
		case err != nil:
			entry.Kind = LogError
			entry.Message = fmt.Sprintf("Run failed at loop %d: %v", rs.Loop, err)
		case res.OK:
			entry.Kind = LogDone
			entry.Message = fmt.Sprintf("Complete after %d loop(s)", rs.Loop)
		default:
			entry.Message = fmt.Sprintf("Stopped: %s (loop %d)", reason, rs.Loop)
		}
		l.emit(ctx, entry)
		l.afterRun(context.WithoutCancel(ctx), run, res)
		return res, err
	}

	for rs.Loop < opts.MaxLoops {
		if ctx.Err() != nil {
			return finish(ExitError, rs.LastStatus, fmt.Errorf("loop: %w", ctx.Err()))
		}
		if l.now().After(deadline) {
			return finish(ExitTimeout, rs.LastStatus, nil)
		}

		rs.Loop++
		n := rs.Loop
		l.beforeLoop(ctx, IterationInfo{Dir: l.Dir, Loop: n, MaxLoops: opts.MaxLoops})
		l.emit(ctx, LogEntry{Kind: LogIterStart, Message: fmt.Sprintf("Loop %d/%d", n, opts.MaxLoops), Iteration: n, MaxIter: opts.MaxLoops})

		prompt := l.buildPrompt(ctx, rs, opts)
		out, err := l.Agent.Invoke(ctx, agent.Request{Dir: l.Dir, Prompt: prompt, Timeout: opts.CallTimeout})
		switch {
		case errors.Is(err, agent.ErrNotFound), errors.Is(err, agent.ErrAuthExpired):
			return finish(ExitError, rs.LastStatus, err)
		case ctx.Err() != nil:
			return finish(ExitError, rs.LastStatus, fmt.Errorf("loop: %w", ctx.Err()))
		case errors.Is(err, agent.ErrTimeout):
			l.warn(ctx, n, fmt.Sprintf("Agent call timed out after %s; continuing with partial output", opts.CallTimeout))
		case err != nil:
			l.warn(ctx, n, fmt.Sprintf("Agent call failed: %v", err))
		}
		if out == nil {
			out = &agent.Result{}
		}
		if out.ExitCode != 0 && !out.TimedOut {
			l.emit(ctx, LogEntry{Kind: LogWarn, Message: fmt.Sprintf("Agent exited with code %d", out.ExitCode), Iteration: n, ExitCode: out.ExitCode})
		}
		if out.Stderr != "" {
			l.logger().Debug("agent stderr", "loop", n, "stderr", out.Stderr)
		}

		parsed, ok := status.Parse(out.Stdout)
		var current *status.Parsed
		if ok {
			current = &parsed
			rs.LastStatus = current
		} else {
			l.warn(ctx, n, fmt.Sprintf("Agent response missing STATUS block (missing: %v)", status.MissingFields(out.Stdout)))
		}

		hash, repeated := repeat.observe(out.Combined)
		rs.LastOutputHash = hash

		score := l.score()
		stagnated := false
		if !repeated {
			stagnated = stag.observe(score, &rs.StagnationCount)
		}

		l.emit(ctx, LogEntry{
			Kind:            LogIterComplete,
			Message:         iterationMessage(n, current),
			Iteration:       n,
			MaxIter:         opts.MaxLoops,
			Status:          current,
			Score:           score,
			StagnationCount: rs.StagnationCount,
			ExitCode:        out.ExitCode,
			Duration:        out.Duration.Seconds(),
		})
		l.afterLoop(ctx, IterationInfo{
			Dir:             l.Dir,
			Loop:            n,
			MaxLoops:        opts.MaxLoops,
			Output:          out.Combined,
			Status:          current,
			ExitCode:        out.ExitCode,
			TimedOut:        out.TimedOut,
			Duration:        out.Duration,
			Score:           score,
			StagnationCount: rs.StagnationCount,
		})

		if repeated {
			return finish(ExitRepeatedOutput, rs.LastStatus, nil)
		}
		if stagnated {
			return finish(ExitStagnation, rs.LastStatus, nil)
		}

		if err := l.Store.Save(rs); err != nil {
			l.warn(ctx, n, fmt.Sprintf("Save state: %v", err))
		}

		if current != nil && current.ExitSignal && l.allTasksDone(ctx, n) {
			return finish(ExitSignal, current, nil)
		}
	}

	return finish(ExitMaxLoops, rs.LastStatus, nil)
}

func (l *Loop) buildPrompt(ctx context.Context, rs *state.RunState, opts Options) string {
	in := PromptInput{
		DiffLimit:  opts.DiffSummaryLimit,
		LastStatus: rs.LastStatus,
		UserTask:   opts.UserTask,
	}
	if l.PromptFile != "" {
		if data, err := os.ReadFile(l.PromptFile); err == nil {
			in.System = string(data)
		}
	}
	if l.Tasks != nil {
		content, ok, err := l.Tasks.Read()
		if err != nil {
			l.warn(ctx, rs.Loop, fmt.Sprintf("Read tasks: %v", err))
		}
		in.Tasks, in.HasTasks = content, ok
	}
	if l.VCS != nil {
		diff, err := l.VCS.DiffSummary()
		if err != nil {
			l.logger().Debug("diff summary", "err", err)
		}
		in.Diff = diff
	}
	return BuildPrompt(in)
}

// score returns the current activity score. Any VCS failure scores 0.
func (l *Loop) score() int {
	if l.VCS == nil {
		return 0
	}
	diff, err := l.VCS.DiffSummary()
	if err != nil {
		l.logger().Debug("diff summary", "err", err)
		return 0
	}
	return diff.Score()
}

func (l *Loop) allTasksDone(ctx context.Context, n int) bool {
	if l.Tasks == nil {
		return false
	}
	ts, err := l.Tasks.Load()
	if err != nil {
		l.warn(ctx, n, fmt.Sprintf("Load tasks: %v", err))
		return false
	}
	return tasks.AllDone(ts)
}

func iterationMessage(n int, st *status.Parsed) string {
	if st == nil {
		return fmt.Sprintf("Loop %d complete (no status)", n)
	}
	return fmt.Sprintf("Loop %d complete: %s", n, st)
}

func (l *Loop) warn(ctx context.Context, n int, msg string) {
	l.emit(ctx, LogEntry{Kind: LogWarn, Message: msg, Iteration: n})
}

// emit logs entry and, when Events is set, delivers it. Delivery blocks
// until the consumer reads it or ctx is done.
func (l *Loop) emit(ctx context.Context, entry LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}

	log := l.logger()
	attrs := []any{"kind", entry.Kind.String()}
	if entry.Iteration > 0 {
		attrs = append(attrs, "loop", entry.Iteration)
	}
	if entry.Kind == LogIterComplete {
		attrs = append(attrs, "score", entry.Score, "stagnation", entry.StagnationCount, "duration", entry.Duration)
	}
	if entry.ExitCode != 0 {
		attrs = append(attrs, "exit_code", entry.ExitCode)
	}
	if entry.ExitReason != "" {
		attrs = append(attrs, "exit_reason", string(entry.ExitReason))
	}
	switch entry.Kind {
	case LogWarn:
		log.Warn(entry.Message, attrs...)
	case LogError:
		log.Error(entry.Message, attrs...)
	case LogIterStart:
		log.Debug(entry.Message, attrs...)
	default:
		log.Info(entry.Message, attrs...)
	}

	if l.Events == nil {
		return
	}
	if ctx.Err() != nil {
		select {
		case l.Events <- entry:
		default:
		}
		return
	}
	select {
	case l.Events <- entry:
	case <-ctx.Done():
	}
}

func (l *Loop) logger() *slog.Logger {
	if l.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.Log
}

func (l *Loop) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}
