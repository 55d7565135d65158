package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/agent"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/config"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/state"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/status"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/store"
)

func testProject(t *testing.T, dir string) *project {
	t.Helper()
	cfg := config.Defaults()
	return &project{cwd: dir, root: dir, cfg: &cfg, paths: config.NewPaths(dir)}
}

func TestInitCmdExecution(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "init")
	require.NoError(t, err)

	for _, name := range []string{"codchestra.toml", "codchestra.tasks.md", "CODCHESTRA_PROMPT.md", ".gitignore"} {
		assert.FileExists(t, filepath.Join(dir, name))
		assert.Contains(t, out, filepath.Join(dir, name))
	}
	assert.DirExists(t, filepath.Join(dir, ".codchestra"))
}

func TestInitCmdIdempotent(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, dir, "init")
	require.NoError(t, err)

	out, err := execute(t, dir, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to create")
}

func TestStatusNotInitialized(t *testing.T) {
	out, err := execute(t, t.TempDir(), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not initialized")
}

func TestStatusJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.TasksFileName), "[x] one\n[-] two\n[ ] three\n[ ] four\n")
	rs := state.New(dir, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	rs.Loop = 4
	rs.StagnationCount = 1
	rs.LastStatus = &status.Parsed{Progress: 25, TasksCompleted: 1, TasksTotal: 4, Summary: "wired the parser"}
	require.NoError(t, state.NewStore(filepath.Join(dir, config.StateDirName)).Save(rs))

	out, err := execute(t, dir, "status", "--json")
	require.NoError(t, err)

	var got struct {
		State *struct {
			Loop            int            `json:"loop"`
			StagnationCount int            `json:"stagnationCount"`
			LastStatus      *status.Parsed `json:"lastStatus"`
			StartedAt       time.Time      `json:"startedAt"`
		} `json:"state"`
		Tasks struct {
			Total, Pending, InProgress, Done int
		} `json:"tasks"`
		Initialized bool `json:"initialized"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotNil(t, got.State)
	assert.Equal(t, 4, got.State.Loop)
	assert.Equal(t, 1, got.State.StagnationCount)
	assert.Equal(t, "wired the parser", got.State.LastStatus.Summary)
	assert.True(t, got.State.StartedAt.Equal(rs.StartedAt))
	assert.Equal(t, 4, got.Tasks.Total)
	assert.Equal(t, 2, got.Tasks.Pending)
	assert.Equal(t, 1, got.Tasks.InProgress)
	assert.Equal(t, 1, got.Tasks.Done)
	assert.True(t, got.Initialized)
}

func TestStatusJSONWithoutState(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, dir, "status", "--format", "json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Nil(t, got["state"])
	assert.Equal(t, false, got["initialized"])
}

func TestStatusText(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, dir, "init")
	require.NoError(t, err)

	out, err := execute(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No run recorded.")
	assert.Contains(t, out, "0/1 done")
}

func TestResetClearsState(t *testing.T) {
	dir := t.TempDir()
	st := state.NewStore(filepath.Join(dir, config.StateDirName))
	require.NoError(t, st.Save(state.New(dir, time.Now())))
	writeFile(t, filepath.Join(dir, config.StateDirName, "logs", "1-a.jsonl"), "")

	out, err := execute(t, dir, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared")
	assert.NoFileExists(t, st.Path())
	assert.FileExists(t, filepath.Join(dir, config.StateDirName, "logs", "1-a.jsonl"))

	out, err = execute(t, dir, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "No state to reset.")
}

func TestResetAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.StateDirName, "logs", "1-a.jsonl"), "")

	out, err := execute(t, dir, "reset", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")
	assert.NoDirExists(t, filepath.Join(dir, config.StateDirName))
}

func TestTasksListAndSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.TasksFileName)
	writeFile(t, path, "# Tasks\n\n- [ ] write parser\n[x] add tests\n")

	out, err := execute(t, dir, "tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "write parser")
	assert.Contains(t, out, "1/2 done")

	out, err = execute(t, dir, "tasks", "set", "1", "wip")
	require.NoError(t, err)
	assert.Contains(t, out, "Task 1 is now in progress")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Tasks\n\n- [-] write parser\n[x] add tests\n", string(data))
}

func TestTasksSetUnknown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.TasksFileName), "[ ] only\n")

	_, err := execute(t, dir, "tasks", "set", "9", "done")
	assert.Error(t, err)

	_, err = execute(t, dir, "tasks", "set", "1", "later")
	assert.Error(t, err)
}

func TestTasksStructured(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.TasksFileName), "[x] a\n[ ] b\n")

	out, err := execute(t, dir, "tasks", "--format", "yaml")
	require.NoError(t, err)

	var got taskReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	require.Len(t, got.Tasks, 2)
	assert.Equal(t, "a", got.Tasks[0].Title)
	assert.Equal(t, "done", string(got.Tasks[0].Status))
	assert.Equal(t, "2", got.Tasks[1].ID)
}

func TestTasksMissingFile(t *testing.T) {
	out, err := execute(t, t.TempDir(), "tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "No task file")
}

func TestDoctor(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, dir, "init")
	require.NoError(t, err)
	p := testProject(t, dir)

	t.Run("agent found", func(t *testing.T) {
		var buf bytes.Buffer
		runDoctor(&buf, p, func(file string) (string, error) {
			if file == "codex" {
				return "/usr/bin/codex", nil
			}
			return "", errors.New("not found")
		})
		out := buf.String()
		assert.Contains(t, out, "agent: codex exec - --full-auto (/usr/bin/codex)")
		assert.Contains(t, out, "tasks: ")
		assert.Contains(t, out, "prompt: ")
		assert.Contains(t, out, "limits: max 50 loops")
	})

	t.Run("agent missing", func(t *testing.T) {
		var buf bytes.Buffer
		runDoctor(&buf, p, func(string) (string, error) { return "", errors.New("not found") })
		assert.Contains(t, buf.String(), "agent: chatgpt not found on PATH")
	})
}

// initRepo makes dir a git repository on branch main with one commit.
func initRepo(t *testing.T, dir string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	for _, args := range [][]string{
		{"init"},
		{"config", "user.email", "test@test.com"},
		{"config", "user.name", "Test"},
		{"checkout", "-b", "main"},
		{"commit", "--allow-empty", "-m", "initial commit"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
}

func TestStatusAndDoctorReportBranch(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	writeFile(t, filepath.Join(dir, config.TasksFileName), "[ ] one\n")

	out, err := execute(t, dir, "status", "--json")
	require.NoError(t, err)
	var rep struct {
		Git *struct {
			Branch string `json:"branch"`
			Commit string `json:"commit"`
			Dirty  bool   `json:"dirty"`
		} `json:"git"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.NotNil(t, rep.Git)
	assert.Equal(t, "main", rep.Git.Branch)
	assert.Contains(t, rep.Git.Commit, "initial commit")
	assert.True(t, rep.Git.Dirty)

	out, err = execute(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Branch:      main (dirty), last commit")

	var buf bytes.Buffer
	runDoctor(&buf, testProject(t, dir), func(string) (string, error) { return "/bin/true", nil })
	assert.Contains(t, buf.String(), "git: on main (dirty)")

	snap := snapshotLoader(testProject(t, dir))()
	require.NoError(t, snap.Err)
	require.NotNil(t, snap.Head)
	assert.Equal(t, "main", snap.Head.Branch)
}

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	logs := filepath.Join(dir, config.StateDirName, config.LogsDirName)

	out, err := execute(t, dir, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No session logs yet")

	w, err := store.NewJSONL(logs, "sess-1")
	require.NoError(t, err)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []loop.LogEntry{
		{Kind: loop.LogInfo, Timestamp: base, Message: "Starting loop (max: 5)"},
		{Kind: loop.LogIterStart, Timestamp: base, Message: "Loop 1/5", Iteration: 1, MaxIter: 5},
		{Kind: loop.LogWarn, Timestamp: base, Message: "Agent exited with code 1", Iteration: 1},
		{Kind: loop.LogIterComplete, Timestamp: base.Add(time.Minute), Message: "Loop 1 complete", Iteration: 1, MaxIter: 5,
			Status: &status.Parsed{Progress: 40}, Score: 12, ExitCode: 1, Duration: 60},
		{Kind: loop.LogStopped, Timestamp: base.Add(time.Minute), Message: "Stopped: stagnation (loop 1)", Iteration: 1, ExitReason: loop.ExitStagnation},
	}
	for _, e := range entries {
		require.NoError(t, w.Append(e))
	}
	require.NoError(t, w.Close())

	out, err = execute(t, dir, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "sess-1")
	assert.Contains(t, out, "Stopped: stagnation (loop 1)")
	assert.Contains(t, out, "40%")

	out, err = execute(t, dir, "history", "--iteration", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Agent exited with code 1")
	assert.NotContains(t, out, "Starting loop")

	out, err = execute(t, dir, "history", "--json")
	require.NoError(t, err)
	var rep historyReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "sess-1", rep.Session.SessionID)
	require.Len(t, rep.Iterations, 1)
	assert.Equal(t, 12, rep.Iterations[0].Score)
	assert.Equal(t, 1, rep.Iterations[0].Warnings)
}

func TestReportRun(t *testing.T) {
	tests := []struct {
		name    string
		res     loop.Result
		err     error
		wantErr bool
		want    []string
	}{
		{
			name: "complete",
			res:  loop.Result{OK: true, ExitReason: loop.ExitSignal, Loop: 3, LastStatus: &status.Parsed{Summary: "all done"}},
			want: []string{"Complete after 3 loop(s).", "all done"},
		},
		{
			name: "stopped",
			res:  loop.Result{ExitReason: loop.ExitStagnation, Loop: 5},
			want: []string{"Stopped: no file changes across consecutive loops (loop 5)"},
		},
		{
			name: "interrupted",
			res:  loop.Result{ExitReason: loop.ExitError, Loop: 2},
			err:  fmt.Errorf("loop: %w", context.Canceled),
			want: []string{"Interrupted at loop 2", "--resume"},
		},
		{
			name:    "not found",
			res:     loop.Result{ExitReason: loop.ExitError},
			err:     fmt.Errorf("run codex: %w", agent.ErrNotFound),
			wantErr: true,
			want:    []string{"Install codex", "codchestra doctor"},
		},
		{
			name:    "auth",
			res:     loop.Result{ExitReason: loop.ExitError, Loop: 1},
			err:     agent.ErrAuthExpired,
			wantErr: true,
			want:    []string{"Re-authenticate codex"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := reportRun(&buf, config.FormatText, "codex", tt.res, tt.err)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestPrintResultJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, config.FormatJSON, loop.Result{ExitReason: loop.ExitMaxLoops, Loop: 50}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, false, got["ok"])
	assert.Equal(t, "max_loops", got["exitReason"])
	assert.EqualValues(t, 50, got["loop"])
}

func TestSnapshotLoader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.TasksFileName), "[x] a\n[ ] b\n[-] c\n")
	rs := state.New(dir, time.Now())
	rs.Loop = 2
	require.NoError(t, state.NewStore(filepath.Join(dir, config.StateDirName)).Save(rs))

	snap := snapshotLoader(testProject(t, dir))()
	require.NotNil(t, snap.State)
	assert.Equal(t, 2, snap.State.Loop)
	assert.Equal(t, 3, snap.Tasks.Total)
	assert.Equal(t, 1, snap.Tasks.Done)
	assert.Nil(t, snap.Diff)
	assert.Nil(t, snap.Head)
	assert.False(t, snap.TakenAt.IsZero())
}
