package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/status"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/tui/components"
)

// maxErrors is how many recent warnings and errors the errors panel keeps.
const maxErrors = 12

// Model is the live view of a single run.
type Model struct {
	events <-chan loop.LogEntry
	styles styles

	log    components.LogView
	errors []string
	width  int
	height int

	project    string
	iteration  int
	maxIter    int
	score      int
	stagnation int
	lastStatus *status.Parsed
	state      runState
	exitReason loop.ExitReason

	startedAt time.Time
	now       time.Time

	done bool
}

// New creates a run view fed by events. The view quits when events is
// closed or the user presses q.
func New(events <-chan loop.LogEntry, project, accentColor string) Model {
	now := time.Now()
	m := Model{
		events:    events,
		styles:    newStyles(accentColor),
		project:   project,
		width:     80,
		height:    24,
		startedAt: now,
		now:       now,
	}
	m.log = components.NewLogView(m.width, m.logHeight())
	return m
}

// Init starts listening for events and the clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tickCmd())
}

// Done reports whether the event stream has ended.
func (m Model) Done() bool { return m.done }

// ExitReason is the reason from the final event, if any arrived.
func (m Model) ExitReason() loop.ExitReason { return m.exitReason }

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForEvent(ch <-chan loop.LogEntry) tea.Cmd {
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return loopDoneMsg{}
		}
		return logEntryMsg(entry)
	}
}

// logHeight is what remains after the header, status panel, errors panel,
// and footer.
func (m Model) logHeight() int {
	h := m.height - 1 - statusPanelHeight - m.errorsPanelHeight() - 1
	if h < 1 {
		h = 1
	}
	return h
}

// statusPanelHeight covers two content lines plus the border.
const statusPanelHeight = 4

func (m Model) errorsPanelHeight() int {
	if len(m.errors) == 0 {
		return 0
	}
	return len(m.errors) + 3
}
