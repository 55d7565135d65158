package tasks

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// DefaultTemplate seeds a new task list.
const DefaultTemplate = `# Codchestra tasks
# Use [ ], [-], [x] for pending, in-progress, done

[ ] Add your first task here
`

// File is a task list on disk. It is re-read on every call.
type File struct {
	Path string
}

// NewFile returns a File for path.
func NewFile(path string) *File {
	return &File{Path: path}
}

// Read returns the file contents verbatim. ok is false when the file does
// not exist.
func (f *File) Read() (content string, ok bool, err error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("tasks: read %s: %w", f.Path, err)
	}
	return string(data), true, nil
}

// Load parses the file. A missing file yields no tasks.
func (f *File) Load() ([]Task, error) {
	content, _, err := f.Read()
	if err != nil {
		return nil, err
	}
	return Parse(content), nil
}

// SetStatus rewrites the checkbox of the task with the given id, leaving
// every other line untouched.
func (f *File) SetStatus(id string, st Status) (Task, error) {
	content, ok, err := f.Read()
	if err != nil {
		return Task{}, err
	}
	if !ok {
		return Task{}, fmt.Errorf("tasks: %s does not exist", f.Path)
	}

	var target *Task
	ts := Parse(content)
	for i := range ts {
		if ts[i].ID == id {
			target = &ts[i]
			break
		}
	}
	if target == nil {
		return Task{}, fmt.Errorf("tasks: no task with id %q", id)
	}

	lines := strings.Split(content, "\n")
	lines[target.line] = replaceMarker(lines[target.line], st)
	if err := os.WriteFile(f.Path, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return Task{}, fmt.Errorf("tasks: write %s: %w", f.Path, err)
	}
	target.Status = st
	target.Raw = lines[target.line]
	return *target, nil
}

// replaceMarker swaps the first checkbox on line for the one matching st.
func replaceMarker(line string, st Status) string {
	i := strings.Index(line, "[")
	if i < 0 || i+3 > len(line) || line[i+2] != ']' {
		return line
	}
	return line[:i] + st.Marker() + line[i+3:]
}
