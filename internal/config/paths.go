package config

import "path/filepath"

// File and directory names inside a project.
const (
	FileName       = "codchestra.toml"
	LegacyFileName = ".codchestrarc"
	StateDirName   = ".codchestra"
	LogsDirName    = "logs"
	StateFileName  = "state.json"
	TasksFileName  = "codchestra.tasks.md"
	PromptFileName = "CODCHESTRA_PROMPT.md"
)

// Paths resolves project-local files from the project root.
type Paths struct {
	Root string
}

// NewPaths returns Paths rooted at root.
func NewPaths(root string) Paths {
	return Paths{Root: root}
}

func (p Paths) StateDir() string   { return filepath.Join(p.Root, StateDirName) }
func (p Paths) StateFile() string  { return filepath.Join(p.Root, StateDirName, StateFileName) }
func (p Paths) LogsDir() string    { return filepath.Join(p.Root, StateDirName, LogsDirName) }
func (p Paths) TasksFile() string  { return filepath.Join(p.Root, TasksFileName) }
func (p Paths) PromptFile() string { return filepath.Join(p.Root, PromptFileName) }
func (p Paths) ConfigFile() string { return filepath.Join(p.Root, FileName) }
