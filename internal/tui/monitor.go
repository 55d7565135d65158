package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/git"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/state"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/tasks"
)

// DefaultRefresh is the monitor polling interval.
const DefaultRefresh = 2 * time.Second

// Snapshot is one poll of the project's on-disk state.
type Snapshot struct {
	State   *state.RunState // nil when no run has been recorded
	Tasks   tasks.Counts
	Diff    *git.DiffSummary // nil outside a git repository
	Head    *git.Head        // nil outside a git repository
	TakenAt time.Time
	Err     error
}

// Monitor is a read-only dashboard that re-polls load every interval.
type Monitor struct {
	load     func() Snapshot
	interval time.Duration
	styles   styles
	project  string

	snap   Snapshot
	loaded bool
	width  int
}

// NewMonitor creates a dashboard. interval <= 0 uses DefaultRefresh.
func NewMonitor(load func() Snapshot, project, accentColor string, interval time.Duration) Monitor {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	return Monitor{
		load:     load,
		interval: interval,
		styles:   newStyles(accentColor),
		project:  project,
		width:    80,
	}
}

// Init loads the first snapshot and starts the refresh timer.
func (m Monitor) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick())
}

func (m Monitor) refresh() tea.Cmd {
	load := m.load
	return func() tea.Msg { return snapshotMsg(load()) }
}

func (m Monitor) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles refresh ticks and keys.
func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		return m, tea.Batch(m.refresh(), m.tick())
	case snapshotMsg:
		m.snap = Snapshot(msg)
		m.loaded = true
	}
	return m, nil
}

// View renders the dashboard.
func (m Monitor) View() string {
	project := m.project
	if project == "" {
		project = "codchestra"
	}
	header := m.styles.header.Width(m.width).Render("♪ " + project + "  │  monitor")
	if !m.loaded {
		return header + "\n\n" + labelStyle.Render("loading…")
	}

	var rows []string
	if m.snap.Err != nil {
		rows = append(rows, errorStyle.Render("✗ "+m.snap.Err.Error()))
	}
	rows = append(rows, m.runRows()...)
	rows = append(rows, "")
	rows = append(rows, m.taskRows()...)
	rows = append(rows, "")
	rows = append(rows, m.gitRows()...)

	body := m.styles.panel.Width(max(m.width-2, 20)).Render(strings.Join(rows, "\n"))
	footer := footerStyle.Render(fmt.Sprintf("refreshed %s  │  every %s  │  r refresh  q quit",
		m.snap.TakenAt.Format("15:04:05"), m.interval))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func row(label, value string) string {
	return fmt.Sprintf("%s %s", labelStyle.Render(fmt.Sprintf("%-12s", label)), value)
}

func (m Monitor) runRows() []string {
	rs := m.snap.State
	if rs == nil {
		return []string{row("Run", "no run recorded yet")}
	}
	rows := []string{
		row("Loop", fmt.Sprintf("%d", rs.Loop)),
		row("Stagnation", fmt.Sprintf("%d", rs.StagnationCount)),
		row("Started", humanize.Time(rs.StartedAt)),
	}
	if rs.Finished() {
		rows = append(rows, row("Finished", fmt.Sprintf("%s (%s)", humanize.Time(*rs.FinishedAt), rs.ExitReason)))
	} else {
		rows = append(rows, row("State", warnStyle.Render("running or interrupted")))
	}
	if st := rs.LastStatus; st != nil {
		rows = append(rows, row("Last STATUS", st.String()))
	} else {
		rows = append(rows, row("Last STATUS", labelStyle.Render("none")))
	}
	return rows
}

func (m Monitor) taskRows() []string {
	c := m.snap.Tasks
	return []string{
		row("Tasks", fmt.Sprintf("%s %d/%d done", progressBar(c.Done, c.Total, 20), c.Done, c.Total)),
		row("", fmt.Sprintf("%d pending, %d in progress", c.Pending, c.InProgress)),
	}
}

func (m Monitor) gitRows() []string {
	d := m.snap.Diff
	if d == nil {
		return []string{row("Git", labelStyle.Render("not a git repository"))}
	}
	rows := []string{
		row("Change score", fmt.Sprintf("%d", d.Score())),
		row("Git", fmt.Sprintf("%d file(s), +%d -%d", d.FilesChanged, d.Insertions, d.Deletions)),
	}
	if h := m.snap.Head; h != nil {
		branch := h.Branch
		if branch == "" {
			branch = "(detached)"
		}
		if h.Dirty {
			branch += " " + warnStyle.Render("dirty")
		}
		rows = append(rows, row("Branch", branch))
		if h.Commit != "" {
			rows = append(rows, row("Last commit", h.Commit))
		}
	}
	return rows
}

// progressBar renders done/total as a fixed-width bar.
func progressBar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	return resultStyle.Render(strings.Repeat("█", filled)) + labelStyle.Render(strings.Repeat("░", width-filled))
}
