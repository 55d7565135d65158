package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"
)

// View renders the header, last STATUS panel, log, errors panel, and
// footer.
func (m Model) View() string {
	parts := []string{
		m.renderHeader(),
		m.renderStatusPanel(),
		m.log.View(),
	}
	if len(m.errors) > 0 {
		parts = append(parts, m.renderErrorsPanel())
	}
	parts = append(parts, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	maxLabel := "-"
	if m.maxIter > 0 {
		maxLabel = fmt.Sprintf("%d", m.maxIter)
	}
	project := m.project
	if project == "" {
		project = "codchestra"
	}
	elapsed := m.now.Sub(m.startedAt).Truncate(time.Second)

	content := strings.Join([]string{
		"♪ " + project,
		fmt.Sprintf("loop %d/%s", m.iteration, maxLabel),
		"elapsed " + elapsed.String(),
		m.state.badge(),
	}, "  │  ")
	return m.styles.header.Width(m.width).Render(content)
}

func (m Model) renderStatusPanel() string {
	title := m.styles.title.Render("Last STATUS")
	body := labelStyle.Render("no STATUS block yet")
	if st := m.lastStatus; st != nil {
		signal := "no"
		if st.ExitSignal {
			signal = "yes"
		}
		body = fmt.Sprintf("%s %d%%   %s %d/%d   %s %s   %s %d   %s %d",
			labelStyle.Render("progress"), st.Progress,
			labelStyle.Render("tasks"), st.TasksCompleted, st.TasksTotal,
			labelStyle.Render("exit"), signal,
			labelStyle.Render("score"), m.score,
			labelStyle.Render("stagnation"), m.stagnation)
		if st.Summary != "" {
			body += "\n" + truncateLine(st.Summary, m.width-4)
		}
	}
	return m.styles.panel.Width(max(m.width-2, 10)).Render(title + "\n" + body)
}

func (m Model) renderErrorsPanel() string {
	title := m.styles.title.Render(fmt.Sprintf("Warnings & errors (last %d)", maxErrors))
	return m.styles.panel.Width(max(m.width-2, 10)).Render(title + "\n" + strings.Join(m.errors, "\n"))
}

func (m Model) renderFooter() string {
	follow := "off"
	if m.log.Following() {
		follow = "on"
	}
	left := fmt.Sprintf("follow: %s", follow)
	if m.exitReason != "" {
		left += "  │  " + m.exitReason.Describe()
	}
	right := "q quit  f follow  j/k scroll"

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 2 {
		gap = 2
	}
	return footerStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderLine(e loop.LogEntry) string {
	ts := timestampStyle.Render(fmt.Sprintf("[%s]", e.Timestamp.Format("15:04:05")))

	switch e.Kind {
	case loop.LogIterStart:
		return fmt.Sprintf("%s  ── loop %d ──", ts, e.Iteration)
	case loop.LogIterComplete:
		return fmt.Sprintf("%s  %s", ts, resultStyle.Render(
			fmt.Sprintf("✓ %s  (%.1fs, score %d)", e.Message, e.Duration, e.Score)))
	case loop.LogWarn:
		return fmt.Sprintf("%s  %s", ts, warnStyle.Render("! "+e.Message))
	case loop.LogError:
		return fmt.Sprintf("%s  %s", ts, errorStyle.Render("✗ "+e.Message))
	case loop.LogDone:
		return fmt.Sprintf("%s  %s", ts, resultStyle.Render("✓ "+e.Message))
	case loop.LogStopped:
		return fmt.Sprintf("%s  %s", ts, stoppedStyle.Render("■ "+e.Message))
	default:
		return fmt.Sprintf("%s  %s", ts, infoStyle.Render(e.Message))
	}
}

func renderErrorLine(e loop.LogEntry) string {
	prefix := warnStyle.Render("!")
	if e.Kind == loop.LogError {
		prefix = errorStyle.Render("✗")
	}
	if e.Iteration > 0 {
		return fmt.Sprintf("%s loop %d: %s", prefix, e.Iteration, e.Message)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// truncateLine shortens s to n cells with an ellipsis.
func truncateLine(s string, n int) string {
	if n <= 1 || lipgloss.Width(s) <= n {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r)) > n-1 {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
