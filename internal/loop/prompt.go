package loop

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/git"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/status"
)

// DefaultSystemPrompt is used when the project has no prompt file.
const DefaultSystemPrompt = "You are an autonomous development agent."

// TasksFileName is the task list name shown in the prompt heading.
const TasksFileName = "codchestra.tasks.md"

// PromptInput is everything one iteration's prompt is built from.
type PromptInput struct {
	System     string
	Tasks      string
	HasTasks   bool
	Diff       *git.DiffSummary
	DiffLimit  int
	LastStatus *status.Parsed
	UserTask   string
}

// BuildPrompt assembles the text sent to the agent on stdin.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	system := strings.TrimSpace(in.System)
	if system == "" {
		system = DefaultSystemPrompt
	}
	b.WriteString(system)

	fmt.Fprintf(&b, "\n\n## Current tasks (%s)\n\n", TasksFileName)
	if in.HasTasks {
		b.WriteString(strings.TrimRight(in.Tasks, "\n"))
	} else {
		b.WriteString("No tasks file found.")
	}

	if in.Diff != nil && strings.TrimSpace(in.Diff.Raw) != "" {
		b.WriteString("\n\n## Git diff summary\n```\n")
		b.WriteString(truncate(in.Diff.Raw, in.DiffLimit))
		b.WriteString("\n```")
	} else {
		b.WriteString("\n\n(No git diff or not a git repo.)")
	}

	if s := in.LastStatus; s != nil {
		fmt.Fprintf(&b, "\n\n## Last loop status\n- progress: %d\n- tasks_completed: %d\n- tasks_total: %d\n- summary: %s",
			s.Progress, s.TasksCompleted, s.TasksTotal, s.Summary)
	}

	if task := strings.TrimSpace(in.UserTask); task != "" {
		b.WriteString("\n\n## User task\n\n")
		b.WriteString(task)
	}

	b.WriteString("\n\nRemember: at the end of your response you MUST output a STATUS block:\n\n")
	b.WriteString(status.Block)
	b.WriteString("\n")
	return b.String()
}

// truncate cuts s to at most n runes. n <= 0 means no limit.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
