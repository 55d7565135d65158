package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/status"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/tasks"
)

// gitignoreEntry keeps run state and session logs out of version control.
const gitignoreEntry = StateDirName + "/"

// ScaffoldProject creates the codchestra project structure in dir: the
// state directory, task list, prompt file, codchestra.toml, and a
// .gitignore entry. Files that already exist are left untouched. Returns
// the list of created or modified paths.
func ScaffoldProject(dir string) ([]string, error) {
	var created []string
	p := NewPaths(dir)

	if _, err := os.Stat(p.StateDir()); errors.Is(err, fs.ErrNotExist) {
		if mkErr := os.MkdirAll(p.StateDir(), 0755); mkErr != nil {
			return created, fmt.Errorf("scaffold: create %s: %w", p.StateDir(), mkErr)
		}
		created = append(created, p.StateDir())
	}

	files := []struct {
		path    string
		content string
	}{
		{p.TasksFile(), tasks.DefaultTemplate},
		{p.PromptFile(), DefaultPrompt},
	}
	for _, f := range files {
		ok, err := writeIfAbsent(f.path, f.content)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, f.path)
		}
	}

	// Only write codchestra.toml when no legacy config is in use either.
	if !exists(filepath.Join(dir, LegacyFileName)) {
		ok, err := writeIfAbsent(p.ConfigFile(), configTemplate)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, p.ConfigFile())
		}
	}

	gitignorePath := filepath.Join(dir, ".gitignore")
	existing, err := os.ReadFile(gitignorePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if writeErr := os.WriteFile(gitignorePath, []byte(gitignoreEntry+"\n"), 0644); writeErr != nil {
			return created, fmt.Errorf("scaffold: write %s: %w", gitignorePath, writeErr)
		}
		created = append(created, gitignorePath)
	case err != nil:
		return created, fmt.Errorf("scaffold: read %s: %w", gitignorePath, err)
	case !hasLine(string(existing), gitignoreEntry, StateDirName):
		content := string(existing)
		if len(content) > 0 && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += gitignoreEntry + "\n"
		if writeErr := os.WriteFile(gitignorePath, []byte(content), 0644); writeErr != nil {
			return created, fmt.Errorf("scaffold: write %s: %w", gitignorePath, writeErr)
		}
		created = append(created, gitignorePath)
	}

	return created, nil
}

// InitFile writes a default codchestra.toml to dir. It fails if the file
// already exists.
func InitFile(dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	ok, err := writeIfAbsent(path, configTemplate)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("config: %s already exists at %s", FileName, path)
	}
	return path, nil
}

func writeIfAbsent(path, content string) (bool, error) {
	if exists(path) {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("scaffold: write %s: %w", path, err)
	}
	return true, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// hasLine reports whether content has a line equal to any of want.
func hasLine(content string, want ...string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		for _, w := range want {
			if line == w || line == "/"+w {
				return true
			}
		}
	}
	return false
}

// DefaultPrompt seeds CODCHESTRA_PROMPT.md.
const DefaultPrompt = `You are an autonomous software development agent working under Codchestra.

Your job is to keep improving the project until every task in codchestra.tasks.md is complete.

Rules:
1. Work on the highest priority unfinished task.
2. Make real file changes; do not pretend work is done.
3. Mark tasks [-] when you start them and [x] when they are finished.
4. Prefer small, safe changes over large risky ones.
5. If you are stuck, try a different approach instead of repeating the last one.

At the end of every response you MUST output:

` + status.Block + `

EXIT_SIGNAL may only be true when all tasks are complete.
`

const configTemplate = `# codchestra.toml - Codchestra project configuration
# Place this file in the root of your project.

[project]
name = ""

[agent]
command = ""               # empty = first of chatgpt, codex found on PATH
args = []                  # empty = built-in args (codex: exec - --full-auto)
call_timeout_minutes = 10  # per agent call

[loop]
max_loops = 50
timeout_minutes = 120            # whole run
stagnation_threshold = 3         # loops with no file changes before stopping
repeated_output_threshold = 2    # identical substantial outputs before stopping
min_substantial_output = 64      # shorter outputs never count as repeats
diff_summary_limit = 500         # characters of git diff --stat in the prompt

[output]
verbosity = "normal"  # quiet | normal | verbose
format = "text"       # text | json | yaml

[tui]
accent_color = "#7D56F4"  # hex color for header/accent elements
log_retention = 20        # number of session logs to keep; 0 = unlimited

[notifications]
url = ""             # ntfy.sh topic URL or any HTTP webhook (empty = disabled)
on_iteration = false # notify after every loop
on_complete = true   # notify when all tasks are done
on_stop = true       # notify when the run stops for any other reason

[telemetry]
otlp_endpoint = ""   # e.g. http://localhost:4318 (empty = disabled)
service_name = "codchestra"
`
