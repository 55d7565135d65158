package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/config"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/notify"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/store"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/telemetry"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/tui"
)

const shutdownTimeout = 5 * time.Second

// buildHooks assembles the optional notification and tracing hooks. The
// returned func flushes and releases them.
func buildHooks(ctx context.Context, cfg *config.Config, log *slog.Logger) ([]loop.Hook, func()) {
	var hooks []loop.Hook
	cleanup := func() {}

	if cfg.Notifications.URL != "" {
		n := notify.New(cfg.Notifications.URL, cfg.Project.Name, notify.Options{
			OnIteration: cfg.Notifications.OnIteration,
			OnComplete:  cfg.Notifications.OnComplete,
			OnStop:      cfg.Notifications.OnStop,
		})
		hooks = append(hooks, n.Hook())
	}

	if cfg.Telemetry.OTLPEndpoint != "" {
		tr, err := telemetry.New(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
		if err != nil {
			log.Warn("telemetry disabled", "err", err)
		} else {
			hooks = append(hooks, tr.Hook())
			cleanup = func() {
				sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if err := tr.Shutdown(sctx); err != nil {
					log.Warn("telemetry shutdown", "err", err)
				}
			}
		}
	}
	return hooks, cleanup
}

// eventSink appends loop events to the session log. The first write
// failure is logged; later ones are dropped silently.
type eventSink struct {
	w    store.Writer
	log  *slog.Logger
	once sync.Once
}

func newEventSink(w store.Writer, log *slog.Logger) *eventSink {
	return &eventSink{w: w, log: log}
}

func (s *eventSink) write(entry loop.LogEntry) {
	if s == nil || s.w == nil {
		return
	}
	if err := s.w.Append(entry); err != nil {
		s.once.Do(func() { s.log.Warn("session log write failed", "err", err) })
	}
}

func (s *eventSink) close() {
	if s == nil || s.w == nil {
		return
	}
	if err := s.w.Close(); err != nil {
		s.log.Warn("close session log", "err", err)
	}
}

// openSessionLog creates the session log for this run and prunes old ones.
// A failure disables the session log without stopping the run.
func openSessionLog(dir, sessionID string, retention int, log *slog.Logger) *eventSink {
	w, err := store.NewJSONL(dir, sessionID)
	if err != nil {
		log.Warn("session log disabled", "err", err)
		return nil
	}
	log.Debug("session log", "path", w.Path())
	if err := store.EnforceRetention(dir, retention); err != nil {
		log.Warn("prune session logs", "err", err)
	}
	return newEventSink(w, log)
}

// loopOptions merges the configured limits with command-line overrides.
func loopOptions(cfg *config.Config, f runFlags) loop.Options {
	opts := loop.Options{
		MaxLoops:                cfg.Loop.MaxLoops,
		Timeout:                 cfg.RunTimeout(),
		CallTimeout:             cfg.CallTimeout(),
		StagnationThreshold:     cfg.Loop.StagnationThreshold,
		RepeatedOutputThreshold: cfg.Loop.RepeatedOutputThreshold,
		MinSubstantialOutput:    cfg.Loop.MinSubstantialOutput,
		DiffSummaryLimit:        cfg.Loop.DiffSummaryLimit,
		UserTask:                f.task,
	}
	if f.maxLoops > 0 {
		opts.MaxLoops = f.maxLoops
	}
	if f.timeoutMinutes > 0 {
		opts.Timeout = time.Duration(f.timeoutMinutes) * time.Minute
	}
	return opts
}

// runPlain runs the loop without the live view. Events go to the session
// log; the loop's logger already reports them on stderr.
func runPlain(ctx context.Context, lp *loop.Loop, sink *eventSink) (loop.Result, error) {
	events := make(chan loop.LogEntry, 128)
	lp.Events = events

	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		for entry := range events {
			sink.write(entry)
		}
	}()

	res, err := lp.Run(ctx)
	close(events)
	<-drainDone
	return res, err
}

type runOutcome struct {
	res loop.Result
	err error
}

// runWithTUI runs the loop behind the live view. Quitting the view cancels
// the loop; the loop finishing closes the view.
func runWithTUI(ctx context.Context, lp *loop.Loop, sink *eventSink, cfg *config.Config) (loop.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopEvents := make(chan loop.LogEntry, 128)
	tuiEvents := make(chan loop.LogEntry, 128)
	tuiDone := make(chan struct{})
	lp.Events = loopEvents

	model := tui.New(tuiEvents, cfg.Project.Name, cfg.TUI.AccentColor)
	program := tea.NewProgram(model, tea.WithAltScreen())

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for entry := range loopEvents {
			sink.write(entry)
			select {
			case tuiEvents <- entry:
			case <-tuiDone:
			}
		}
	}()

	outcome := make(chan runOutcome, 1)
	go func() {
		res, err := lp.Run(ctx)
		close(loopEvents)
		<-forwardDone
		close(tuiEvents)
		outcome <- runOutcome{res: res, err: err}
	}()

	_, tuiErr := program.Run()
	close(tuiDone)
	cancel()
	out := <-outcome

	if tuiErr != nil && !errors.Is(tuiErr, tea.ErrProgramKilled) {
		return out.res, fmt.Errorf("tui: %w", tuiErr)
	}
	return out.res, out.err
}
