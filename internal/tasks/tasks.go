// Package tasks reads and updates the checkbox task list the agent works
// through.
package tasks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Status is the progress state of one task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// ParseStatus accepts the CLI spellings of a status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "todo":
		return StatusPending, nil
	case "in-progress", "in_progress", "inprogress", "wip":
		return StatusInProgress, nil
	case "done", "complete", "completed":
		return StatusDone, nil
	}
	return "", fmt.Errorf("tasks: unknown status %q (want pending, in-progress, or done)", s)
}

// Marker returns the checkbox for this status.
func (s Status) Marker() string {
	switch s {
	case StatusDone:
		return "[x]"
	case StatusInProgress:
		return "[-]"
	default:
		return "[ ]"
	}
}

// Symbol returns the display indicator for this status.
func (s Status) Symbol() string {
	switch s {
	case StatusDone:
		return "✓"
	case StatusInProgress:
		return "◐"
	default:
		return "○"
	}
}

// String returns a human-readable label.
func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusInProgress:
		return "in progress"
	default:
		return "pending"
	}
}

// Task is one checkbox line. IDs are sequential within one read and are not
// stable across edits to the file.
type Task struct {
	ID     string `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Status Status `json:"status" yaml:"status"`
	Raw    string `json:"-" yaml:"-"`
	line   int
}

// Counts tallies tasks by status.
type Counts struct {
	Total      int `json:"total" yaml:"total"`
	Pending    int `json:"pending" yaml:"pending"`
	InProgress int `json:"inProgress" yaml:"inProgress"`
	Done       int `json:"done" yaml:"done"`
}

// taskRe matches a checkbox line, optionally written as a markdown list item.
var taskRe = regexp.MustCompile(`^(?:[-*+][ \t]+)?\[([ xX-])\][ \t]*(.*)$`)

// Parse extracts tasks from markdown. Blank lines, headings, and other text
// are skipped.
func Parse(content string) []Task {
	var out []Task
	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		m := taskRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		st := StatusPending
		switch m[1] {
		case "x", "X":
			st = StatusDone
		case "-":
			st = StatusInProgress
		}
		out = append(out, Task{
			ID:     strconv.Itoa(len(out) + 1),
			Title:  strings.TrimSpace(m[2]),
			Status: st,
			Raw:    line,
			line:   i,
		})
	}
	return out
}

// CountByStatus tallies tasks by status.
func CountByStatus(ts []Task) Counts {
	c := Counts{Total: len(ts)}
	for _, t := range ts {
		switch t.Status {
		case StatusDone:
			c.Done++
		case StatusInProgress:
			c.InProgress++
		default:
			c.Pending++
		}
	}
	return c
}

// AllDone reports whether the list is non-empty and every task is done. An
// empty list is never complete.
func AllDone(ts []Task) bool {
	if len(ts) == 0 {
		return false
	}
	for _, t := range ts {
		if t.Status != StatusDone {
			return false
		}
	}
	return true
}

// ToMarkdown renders tasks as bare checkbox lines.
func ToMarkdown(ts []Task) string {
	lines := make([]string, len(ts))
	for i, t := range ts {
		lines[i] = t.Status.Marker() + " " + t.Title
	}
	return strings.Join(lines, "\n")
}
