// Package components holds reusable TUI widgets.
package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// DefaultMaxLines bounds how many log lines a LogView keeps.
const DefaultMaxLines = 2000

// LogView is a scrollable log panel over bubbles/viewport. In follow mode
// new lines keep the view pinned to the bottom. Scrolling up leaves follow
// mode; scrolling back to the bottom re-enters it.
type LogView struct {
	vp       viewport.Model
	lines    []string // pre-styled
	maxLines int
	follow   bool
}

// NewLogView creates a LogView of w by h cells in follow mode.
func NewLogView(w, h int) LogView {
	return LogView{
		vp:       viewport.New(w, h),
		maxLines: DefaultMaxLines,
		follow:   true,
	}
}

// WithMaxLines sets the line cap; n <= 0 means unbounded.
func (v LogView) WithMaxLines(n int) LogView {
	v.maxLines = n
	return v.trim()
}

// AppendLine adds a pre-rendered line, dropping the oldest past the cap.
func (v LogView) AppendLine(rendered string) LogView {
	v.lines = append(v.lines, rendered)
	return v.trim()
}

// SetContent replaces all lines with a copy of lines.
func (v LogView) SetContent(lines []string) LogView {
	v.lines = append([]string(nil), lines...)
	return v.trim()
}

func (v LogView) trim() LogView {
	if v.maxLines > 0 && len(v.lines) > v.maxLines {
		v.lines = append([]string(nil), v.lines[len(v.lines)-v.maxLines:]...)
	}
	v.vp.SetContent(strings.Join(v.lines, "\n"))
	if v.follow {
		v.vp.GotoBottom()
	}
	return v
}

// ToggleFollow switches follow mode; turning it on jumps to the bottom.
func (v LogView) ToggleFollow() LogView {
	v.follow = !v.follow
	if v.follow {
		v.vp.GotoBottom()
	}
	return v
}

// SetSize resizes the view.
func (v LogView) SetSize(w, h int) LogView {
	v.vp.Width = w
	v.vp.Height = h
	if v.follow {
		v.vp.GotoBottom()
	}
	return v
}

// Following reports whether follow mode is on.
func (v LogView) Following() bool { return v.follow }

// Len is the number of lines held.
func (v LogView) Len() int { return len(v.lines) }

// Update handles scroll keys and mouse wheel events.
func (v LogView) Update(msg tea.Msg) (LogView, tea.Cmd) {
	var cmd tea.Cmd
	v.vp, cmd = v.vp.Update(msg)
	switch msg.(type) {
	case tea.KeyMsg, tea.MouseMsg:
		v.follow = v.vp.AtBottom()
	}
	return v, cmd
}

// View renders the visible lines.
func (v LogView) View() string {
	return v.vp.View()
}
