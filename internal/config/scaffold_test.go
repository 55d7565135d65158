package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/status"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/tasks"
)

func TestScaffoldProject(t *testing.T) {
	t.Run("empty directory", func(t *testing.T) {
		dir := t.TempDir()
		p := NewPaths(dir)

		created, err := ScaffoldProject(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{
			p.StateDir(),
			p.TasksFile(),
			p.PromptFile(),
			p.ConfigFile(),
			filepath.Join(dir, ".gitignore"),
		}, created)

		data, err := os.ReadFile(p.TasksFile())
		require.NoError(t, err)
		assert.Len(t, tasks.Parse(string(data)), 1)

		data, err = os.ReadFile(p.PromptFile())
		require.NoError(t, err)
		assert.Contains(t, string(data), status.Block)

		data, err = os.ReadFile(filepath.Join(dir, ".gitignore"))
		require.NoError(t, err)
		assert.Equal(t, ".codchestra/\n", string(data))

		// The generated config must load cleanly.
		cfg, err := LoadFile(p.ConfigFile())
		require.NoError(t, err)
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, 50, cfg.Loop.MaxLoops)
	})

	t.Run("second run creates nothing", func(t *testing.T) {
		dir := t.TempDir()
		_, err := ScaffoldProject(dir)
		require.NoError(t, err)

		created, err := ScaffoldProject(dir)
		require.NoError(t, err)
		assert.Empty(t, created)
	})

	t.Run("existing files untouched", func(t *testing.T) {
		dir := t.TempDir()
		p := NewPaths(dir)
		writeFile(t, p.TasksFile(), "[x] mine\n")

		created, err := ScaffoldProject(dir)
		require.NoError(t, err)
		assert.NotContains(t, created, p.TasksFile())

		data, err := os.ReadFile(p.TasksFile())
		require.NoError(t, err)
		assert.Equal(t, "[x] mine\n", string(data))
	})

	t.Run("appends to existing gitignore", func(t *testing.T) {
		dir := t.TempDir()
		gi := filepath.Join(dir, ".gitignore")
		writeFile(t, gi, "node_modules")

		_, err := ScaffoldProject(dir)
		require.NoError(t, err)

		data, err := os.ReadFile(gi)
		require.NoError(t, err)
		assert.Equal(t, "node_modules\n.codchestra/\n", string(data))
	})

	t.Run("gitignore already has entry", func(t *testing.T) {
		dir := t.TempDir()
		gi := filepath.Join(dir, ".gitignore")
		writeFile(t, gi, "/.codchestra\n")

		created, err := ScaffoldProject(dir)
		require.NoError(t, err)
		assert.NotContains(t, created, gi)
	})

	t.Run("legacy config suppresses toml", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, LegacyFileName), "{}")

		created, err := ScaffoldProject(dir)
		require.NoError(t, err)
		assert.NotContains(t, created, filepath.Join(dir, FileName))
		assert.NoFileExists(t, filepath.Join(dir, FileName))
	})
}

func TestInitFile(t *testing.T) {
	dir := t.TempDir()

	path, err := InitFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	_, err = InitFile(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
