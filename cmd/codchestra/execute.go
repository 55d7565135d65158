package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/agent"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/config"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/git"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/logging"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/state"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/status"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/store"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/tasks"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/tui"
)

func executeInit(w io.Writer, dir string) error {
	created, err := config.ScaffoldProject(dir)
	for _, path := range created {
		ok(w, "created %s", path)
	}
	if err != nil {
		return err
	}
	if len(created) == 0 {
		fmt.Fprintln(w, "Already initialized; nothing to create.")
		return nil
	}
	fmt.Fprintln(w, "\nAdd tasks to "+config.TasksFileName+", then run: codchestra run")
	return nil
}

// executeRun wires the loop to the agent, git, the task file, state, hooks,
// and the session log, then runs it with or without the live view.
func executeRun(ctx context.Context, w io.Writer, p *project, f runFlags) error {
	cfg := p.cfg
	format := cfg.Output.Format
	useTUI := !f.noTUI && format == config.FormatText && isTerminal(os.Stdout)

	log := logging.Discard()
	if !useTUI {
		log = logging.New(os.Stderr, cfg.Output.Verbosity)
	}

	states := state.NewStore(p.paths.StateDir())
	sessionID := uuid.NewString()
	if f.resume {
		if rs, found := states.Load(); found && rs.SessionID != "" {
			sessionID = rs.SessionID
		}
	} else if err := states.Clear(); err != nil {
		return err
	}

	command, args := agent.Resolve(cfg.Agent.Command, cfg.Agent.Args, exec.LookPath)
	var invOpts []agent.Option
	if cfg.Output.Verbosity == config.VerbosityVerbose && !useTUI {
		invOpts = append(invOpts, agent.WithOutput(os.Stderr))
	}
	inv := agent.NewCommandInvoker(command, args, invOpts...)
	log.Debug("agent", "command", command, "args", strings.Join(args, " "))

	hooks, shutdown := buildHooks(ctx, cfg, log)
	defer shutdown()

	sink := openSessionLog(p.paths.LogsDir(), sessionID, cfg.TUI.LogRetention, log)
	defer sink.close()

	lp := newLoop(p, f, inv, states, log, sessionID)
	lp.Hooks = hooks

	var res loop.Result
	var err error
	if useTUI {
		res, err = runWithTUI(ctx, lp, sink, cfg)
	} else {
		res, err = runPlain(ctx, lp, sink)
	}
	return reportRun(w, format, command, res, err)
}

// newLoop builds the loop for the project root.
func newLoop(p *project, f runFlags, inv agent.Invoker, states loop.StateStore, log *slog.Logger, sessionID string) *loop.Loop {
	return &loop.Loop{
		Dir:        p.root,
		PromptFile: p.paths.PromptFile(),
		SessionID:  sessionID,
		Agent:      inv,
		VCS:        git.NewRunner(p.root),
		Tasks:      tasks.NewFile(p.paths.TasksFile()),
		Store:      states,
		Options:    loopOptions(p.cfg, f),
		Log:        log,
	}
}

// reportRun prints the outcome. Interruption is not an error; fatal agent
// errors come with remediation text.
func reportRun(w io.Writer, format, command string, res loop.Result, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			warn(w, "Interrupted at loop %d. Continue with: codchestra run --resume", res.Loop)
			return nil
		}
		fail(w, "%v", err)
		if hint := agent.Remediation(err, command); hint != "" {
			fmt.Fprintln(w, "  "+hint)
		}
		return err
	}
	return printResult(w, format, res)
}

func printResult(w io.Writer, format string, res loop.Result) error {
	if isStructured(format) {
		return writeStructured(w, format, res)
	}
	if res.OK {
		ok(w, "Complete after %d loop(s).", res.Loop)
	} else {
		warn(w, "Stopped: %s (loop %d)", res.ExitReason.Describe(), res.Loop)
	}
	if res.LastStatus != nil && res.LastStatus.Summary != "" {
		fmt.Fprintln(w, "  "+mutedStyle.Render(res.LastStatus.Summary))
	}
	return nil
}

// statusReport is the structured form of `codchestra status`.
type statusReport struct {
	State       *stateReport `json:"state" yaml:"state"`
	Tasks       tasks.Counts `json:"tasks" yaml:"tasks"`
	Git         *git.Head    `json:"git,omitempty" yaml:"git,omitempty"`
	Initialized bool         `json:"initialized" yaml:"initialized"`
}

type stateReport struct {
	Loop            int            `json:"loop" yaml:"loop"`
	StagnationCount int            `json:"stagnationCount" yaml:"stagnationCount"`
	LastStatus      *status.Parsed `json:"lastStatus" yaml:"lastStatus"`
	StartedAt       time.Time      `json:"startedAt" yaml:"startedAt"`
	SessionID       string         `json:"sessionId,omitempty" yaml:"sessionId,omitempty"`
	FinishedAt      *time.Time     `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
	ExitReason      string         `json:"exitReason,omitempty" yaml:"exitReason,omitempty"`
}

func buildStatusReport(p *project) (statusReport, error) {
	var rep statusReport
	if rs, found := state.NewStore(p.paths.StateDir()).Load(); found {
		rep.State = &stateReport{
			Loop:            rs.Loop,
			StagnationCount: rs.StagnationCount,
			LastStatus:      rs.LastStatus,
			StartedAt:       rs.StartedAt,
			SessionID:       rs.SessionID,
			FinishedAt:      rs.FinishedAt,
			ExitReason:      rs.ExitReason,
		}
	}
	ts, err := tasks.NewFile(p.paths.TasksFile()).Load()
	if err != nil {
		return rep, err
	}
	rep.Tasks = tasks.CountByStatus(ts)
	if rep.Git, err = git.NewRunner(p.root).Head(); err != nil {
		return rep, err
	}
	_, statErr := os.Stat(p.paths.StateDir())
	rep.Initialized = statErr == nil
	return rep, nil
}

func showStatus(w io.Writer, p *project, format string) error {
	rep, err := buildStatusReport(p)
	if err != nil {
		return err
	}
	if isStructured(format) {
		return writeStructured(w, format, rep)
	}

	if rep.State == nil && rep.Tasks.Total == 0 && !rep.Initialized {
		fmt.Fprintln(w, "Not initialized. Run: codchestra init")
		return nil
	}

	fmt.Fprintln(w, boldStyle.Render("Codchestra")+" "+mutedStyle.Render(p.root))
	if rs := rep.State; rs != nil {
		fmt.Fprintf(w, "  Loop:        %d\n", rs.Loop)
		fmt.Fprintf(w, "  Stagnation:  %d\n", rs.StagnationCount)
		fmt.Fprintf(w, "  Started:     %s\n", humanize.Time(rs.StartedAt))
		if rs.FinishedAt != nil {
			fmt.Fprintf(w, "  Finished:    %s (%s)\n", humanize.Time(*rs.FinishedAt), loop.ExitReason(rs.ExitReason).Describe())
		}
		if rs.LastStatus != nil {
			fmt.Fprintf(w, "  Last STATUS: %s\n", rs.LastStatus)
		}
	} else {
		fmt.Fprintln(w, "  No run recorded.")
	}
	c := rep.Tasks
	fmt.Fprintf(w, "  Tasks:       %d/%d done, %d in progress, %d pending\n", c.Done, c.Total, c.InProgress, c.Pending)
	if h := rep.Git; h != nil {
		fmt.Fprintf(w, "  Branch:      %s\n", describeHead(h))
	}
	return nil
}

func executeReset(w io.Writer, p *project, all bool) error {
	st := state.NewStore(p.paths.StateDir())
	if all {
		if _, err := os.Stat(st.Dir); err != nil {
			fmt.Fprintln(w, "No state to reset.")
			return nil
		}
		if err := st.RemoveAll(); err != nil {
			return err
		}
		ok(w, "Removed %s", st.Dir)
		return nil
	}
	if _, err := os.Stat(st.Path()); err != nil {
		fmt.Fprintln(w, "No state to reset.")
		return nil
	}
	if err := st.Clear(); err != nil {
		return err
	}
	ok(w, "Cleared %s", st.Path())
	return nil
}

// taskReport is the structured form of `codchestra tasks`.
type taskReport struct {
	File  string       `json:"file" yaml:"file"`
	Tasks []tasks.Task `json:"tasks" yaml:"tasks"`
}

func listTasks(w io.Writer, p *project, format string) error {
	file := tasks.NewFile(p.paths.TasksFile())
	_, found, err := file.Read()
	if err != nil {
		return err
	}
	ts, err := file.Load()
	if err != nil {
		return err
	}
	if isStructured(format) {
		if ts == nil {
			ts = []tasks.Task{}
		}
		return writeStructured(w, format, taskReport{File: file.Path, Tasks: ts})
	}

	if !found {
		fmt.Fprintf(w, "No task file at %s. Run: codchestra init\n", file.Path)
		return nil
	}
	if len(ts) == 0 {
		fmt.Fprintln(w, "No tasks.")
		return nil
	}
	for _, t := range ts {
		fmt.Fprintf(w, "%3s  %s  %s\n", t.ID, taskSymbol(t.Status), t.Title)
	}
	c := tasks.CountByStatus(ts)
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("\n%d/%d done", c.Done, c.Total)))
	return nil
}

func taskSymbol(st tasks.Status) string {
	switch st {
	case tasks.StatusDone:
		return okStyle.Render(st.Symbol())
	case tasks.StatusInProgress:
		return warnStyle.Render(st.Symbol())
	}
	return st.Symbol()
}

func setTask(w io.Writer, p *project, id string, st tasks.Status) error {
	t, err := tasks.NewFile(p.paths.TasksFile()).SetStatus(id, st)
	if err != nil {
		return err
	}
	ok(w, "Task %s is now %s: %s", t.ID, t.Status, t.Title)
	return nil
}

// runDoctor prints one check per line. Problems are reported, not returned.
func runDoctor(w io.Writer, p *project, lookPath agent.LookPathFunc) {
	cfg := p.cfg
	if cfg.Path != "" {
		ok(w, "config: %s", cfg.Path)
	} else {
		warn(w, "config: none found, using defaults (run: codchestra init)")
	}

	command, args := agent.Resolve(cfg.Agent.Command, cfg.Agent.Args, lookPath)
	if path, err := lookPath(command); err != nil {
		fail(w, "agent: %s not found on PATH; set agent.command in %s", command, config.FileName)
	} else {
		ok(w, "agent: %s (%s)", strings.TrimSpace(command+" "+strings.Join(args, " ")), path)
	}

	ok(w, "limits: max %d loops, %d min run, %d min per call", cfg.Loop.MaxLoops, cfg.Loop.TimeoutMinutes, cfg.Agent.CallTimeoutMinutes)

	if info, err := os.Stat(p.paths.StateDir()); err == nil && info.IsDir() {
		ok(w, "state dir: %s", p.paths.StateDir())
	} else {
		warn(w, "state dir: %s missing (created on first run)", p.paths.StateDir())
	}

	if ts, err := tasks.NewFile(p.paths.TasksFile()).Load(); err != nil {
		fail(w, "tasks: %v", err)
	} else if _, statErr := os.Stat(p.paths.TasksFile()); statErr != nil {
		fail(w, "tasks: %s missing; the loop cannot complete without it", p.paths.TasksFile())
	} else {
		c := tasks.CountByStatus(ts)
		ok(w, "tasks: %s (%d tasks, %d done)", p.paths.TasksFile(), c.Total, c.Done)
	}

	if _, err := os.Stat(p.paths.PromptFile()); err == nil {
		ok(w, "prompt: %s", p.paths.PromptFile())
	} else {
		warn(w, "prompt: %s missing (optional)", p.paths.PromptFile())
	}

	switch h, err := git.NewRunner(p.root).Head(); {
	case err != nil:
		fail(w, "git: %v", err)
	case h == nil:
		warn(w, "git: not a repository; every loop scores 0 and counts toward stagnation")
	default:
		ok(w, "git: on %s; change detection enabled", describeHead(h))
	}
}

// describeHead renders the branch, dirty flag, and last commit on one line.
func describeHead(h *git.Head) string {
	s := h.Branch
	if s == "" {
		s = "detached HEAD"
	}
	if h.Dirty {
		s += " (dirty)"
	}
	if h.Commit != "" {
		s += ", last commit " + h.Commit
	}
	return s
}

// historyReport is the structured form of `codchestra history`.
type historyReport struct {
	Session    store.SessionSummary     `json:"session" yaml:"session"`
	Iterations []store.IterationSummary `json:"iterations" yaml:"iterations"`
}

func showHistory(w io.Writer, p *project, iteration int, format string) error {
	path, found, err := store.Latest(p.paths.LogsDir())
	if err != nil {
		return err
	}
	if !found {
		if isStructured(format) {
			return writeStructured(w, format, nil)
		}
		fmt.Fprintln(w, "No session logs yet. Run: codchestra run")
		return nil
	}

	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()

	if iteration > 0 {
		entries, err := s.IterationLog(iteration)
		if err != nil {
			return err
		}
		if isStructured(format) {
			return writeStructured(w, format, entries)
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%s  %-13s %s\n", e.Timestamp.Format("15:04:05"), e.Kind, e.Message)
		}
		return nil
	}

	sum, err := s.SessionSummary()
	if err != nil {
		return err
	}
	iters, err := s.Iterations()
	if err != nil {
		return err
	}
	if isStructured(format) {
		if iters == nil {
			iters = []store.IterationSummary{}
		}
		return writeStructured(w, format, historyReport{Session: sum, Iterations: iters})
	}

	fmt.Fprintf(w, "%s %s  started %s\n", boldStyle.Render("Session"), sum.SessionID, humanize.Time(sum.StartedAt))
	if sum.Message != "" {
		fmt.Fprintln(w, "  "+sum.Message)
	}
	if len(iters) == 0 {
		fmt.Fprintln(w, "No completed iterations.")
		return nil
	}
	fmt.Fprintln(w, historyTable(iters))
	return nil
}

func historyTable(iters []store.IterationSummary) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "PROGRESS", "SCORE", "STAG", "EXIT", "TIME", "WARN")
	for _, it := range iters {
		progress := "-"
		if it.Status != nil {
			progress = fmt.Sprintf("%d%%", it.Status.Progress)
		}
		t.Row(
			fmt.Sprint(it.Number),
			progress,
			humanize.Comma(int64(it.Score)),
			fmt.Sprint(it.StagnationCount),
			fmt.Sprint(it.ExitCode),
			(time.Duration(it.Duration * float64(time.Second))).Round(time.Second).String(),
			fmt.Sprint(it.Warnings),
		)
	}
	return t.String()
}

// snapshotLoader reads the project's state, task counts, and diff for the
// monitor.
func snapshotLoader(p *project) func() tui.Snapshot {
	states := state.NewStore(p.paths.StateDir())
	file := tasks.NewFile(p.paths.TasksFile())
	runner := git.NewRunner(p.root)
	return func() tui.Snapshot {
		snap := tui.Snapshot{TakenAt: time.Now()}
		if rs, found := states.Load(); found {
			snap.State = rs
		}
		ts, err := file.Load()
		if err != nil {
			snap.Err = err
		}
		snap.Tasks = tasks.CountByStatus(ts)
		diff, err := runner.DiffSummary()
		if err != nil && snap.Err == nil {
			snap.Err = err
		}
		snap.Diff = diff
		head, err := runner.Head()
		if err != nil && snap.Err == nil {
			snap.Err = err
		}
		snap.Head = head
		return snap
	}
}

func runMonitor(p *project, intervalSeconds int) error {
	m := tui.NewMonitor(snapshotLoader(p), p.cfg.Project.Name, p.cfg.TUI.AccentColor, time.Duration(intervalSeconds)*time.Second)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
