package agent

import (
	"os/exec"
	"path/filepath"
	"strings"
)

// candidates are probed on PATH, in order, when no command is configured.
var candidates = []string{"chatgpt", "codex"}

// LookPathFunc matches exec.LookPath.
type LookPathFunc func(file string) (string, error)

// Resolve picks the agent command and its arguments. A configured command
// wins; otherwise the first candidate found on PATH is used, falling back
// to "chatgpt" so the not-found error names something sensible. Configured
// args win; codex otherwise runs non-interactively reading the prompt from
// stdin.
func Resolve(command string, args []string, lookPath LookPathFunc) (string, []string) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	command = strings.TrimSpace(command)
	if command == "" {
		command = candidates[0]
		for _, c := range candidates {
			if _, err := lookPath(c); err == nil {
				command = c
				break
			}
		}
	}
	if len(args) > 0 {
		return command, args
	}
	return command, DefaultArgs(command)
}

// DefaultArgs returns the built-in arguments for a known agent CLI.
func DefaultArgs(command string) []string {
	base := strings.ToLower(filepath.Base(command))
	base = strings.TrimSuffix(base, ".exe")
	if base == "codex" {
		return []string{"exec", "-", "--full-auto"}
	}
	return nil
}
