package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"
)

// Update handles incoming messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log = m.log.SetSize(m.width, m.logHeight())
		return m, nil

	case logEntryMsg:
		m = m.handleLogEntry(loop.LogEntry(msg))
		return m, waitForEvent(m.events)

	case loopDoneMsg:
		m.done = true
		return m, tea.Quit

	case tickMsg:
		m.now = time.Time(msg)
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "f":
		m.log = m.log.ToggleFollow()
		return m, nil
	}
	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m Model) handleLogEntry(e loop.LogEntry) Model {
	if e.MaxIter > 0 {
		m.maxIter = e.MaxIter
	}
	if e.Iteration > 0 {
		m.iteration = e.Iteration
	}

	switch e.Kind {
	case loop.LogIterComplete:
		m.score = e.Score
		m.stagnation = e.StagnationCount
		if e.Status != nil {
			m.lastStatus = e.Status
		}
	case loop.LogWarn, loop.LogError:
		m = m.pushError(e)
	}

	switch e.Kind {
	case loop.LogDone:
		m.state, m.exitReason = stateDone, e.ExitReason
	case loop.LogStopped:
		m.state, m.exitReason = stateStopped, e.ExitReason
	case loop.LogError:
		m.state, m.exitReason = stateFailed, e.ExitReason
	}

	m.log = m.log.AppendLine(m.renderLine(e))
	return m
}

// pushError records a warning or error, keeping only the newest maxErrors.
func (m Model) pushError(e loop.LogEntry) Model {
	line := renderErrorLine(e)
	errs := append(append([]string(nil), m.errors...), line)
	if len(errs) > maxErrors {
		errs = errs[len(errs)-maxErrors:]
	}
	m.errors = errs
	m.log = m.log.SetSize(m.width, m.logHeight())
	return m
}
