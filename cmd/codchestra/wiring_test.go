package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/agent"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/config"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/logging"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/state"
	"github.com/LISSConsulting/LISSTech.Codchestra/internal/store"
)

// scriptedAgent replies with out on every call.
type scriptedAgent struct {
	mu    sync.Mutex
	out   string
	err   error
	calls int
}

func (a *scriptedAgent) Invoke(_ context.Context, _ agent.Request) (*agent.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return &agent.Result{Stdout: a.out, Combined: a.out, Duration: time.Second}, nil
}

const doneOutput = `Finished everything.

STATUS:
progress: 100
tasks_completed: 2
tasks_total: 2
EXIT_SIGNAL: true
summary: all tasks complete
`

func TestLoopOptions(t *testing.T) {
	cfg := config.Defaults()

	opts := loopOptions(&cfg, runFlags{})
	assert.Equal(t, 50, opts.MaxLoops)
	assert.Equal(t, 120*time.Minute, opts.Timeout)
	assert.Equal(t, 10*time.Minute, opts.CallTimeout)
	assert.Equal(t, 3, opts.StagnationThreshold)
	assert.Equal(t, 2, opts.RepeatedOutputThreshold)
	assert.Equal(t, 64, opts.MinSubstantialOutput)
	assert.Equal(t, 500, opts.DiffSummaryLimit)
	assert.Empty(t, opts.UserTask)

	opts = loopOptions(&cfg, runFlags{maxLoops: 4, timeoutMinutes: 15, task: "fix the build"})
	assert.Equal(t, 4, opts.MaxLoops)
	assert.Equal(t, 15*time.Minute, opts.Timeout)
	assert.Equal(t, "fix the build", opts.UserTask)
}

func TestRunPlainCompletes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.TasksFileName), "[x] one\n[x] two\n")
	p := testProject(t, dir)
	log := logging.Discard()

	a := &scriptedAgent{out: doneOutput}
	states := state.NewStore(p.paths.StateDir())
	sink := openSessionLog(p.paths.LogsDir(), "sess-plain", 0, log)
	require.NotNil(t, sink)

	lp := newLoop(p, runFlags{maxLoops: 5}, a, states, log, "sess-plain")
	res, err := runPlain(context.Background(), lp, sink)
	sink.close()
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, loop.ExitSignal, res.ExitReason)
	assert.Equal(t, 1, res.Loop)
	assert.Equal(t, 1, a.calls)

	rs, found := states.Load()
	require.True(t, found)
	assert.Equal(t, "sess-plain", rs.SessionID)
	assert.True(t, rs.Finished())
	assert.Equal(t, string(loop.ExitSignal), rs.ExitReason)

	path, found, err := store.Latest(p.paths.LogsDir())
	require.NoError(t, err)
	require.True(t, found)
	s, err := store.Open(path)
	require.NoError(t, err)
	defer s.Close()
	sum, err := s.SessionSummary()
	require.NoError(t, err)
	assert.Equal(t, "sess-plain", sum.SessionID)
	assert.Equal(t, 1, sum.Iterations)
	assert.Equal(t, loop.ExitSignal, sum.ExitReason)
}

func TestRunPlainAgentMissing(t *testing.T) {
	dir := t.TempDir()
	p := testProject(t, dir)
	a := &scriptedAgent{err: agent.ErrNotFound}

	lp := newLoop(p, runFlags{}, a, state.NewStore(p.paths.StateDir()), logging.Discard(), "")
	res, err := runPlain(context.Background(), lp, nil)
	require.ErrorIs(t, err, agent.ErrNotFound)
	assert.Equal(t, loop.ExitError, res.ExitReason)
	assert.Equal(t, 1, a.calls)
}

func TestBuildHooksNotify(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
	}))
	defer srv.Close()

	cfg := config.Defaults()
	cfg.Notifications.URL = srv.URL
	hooks, shutdown := buildHooks(context.Background(), &cfg, logging.Discard())
	defer shutdown()
	require.Len(t, hooks, 1)
	assert.Equal(t, "notify", hooks[0].Name)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.TasksFileName), "[x] one\n")
	p := testProject(t, dir)
	p.cfg = &cfg
	lp := newLoop(p, runFlags{}, &scriptedAgent{out: doneOutput}, state.NewStore(p.paths.StateDir()), logging.Discard(), "")
	lp.Hooks = hooks

	res, err := runPlain(context.Background(), lp, nil)
	require.NoError(t, err)
	require.True(t, res.OK)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], "Complete after 1 loop(s)")
}

func TestBuildHooksTelemetry(t *testing.T) {
	cfg := config.Defaults()
	cfg.Telemetry.OTLPEndpoint = "http://127.0.0.1:1"
	hooks, shutdown := buildHooks(context.Background(), &cfg, logging.Discard())
	require.Len(t, hooks, 1)
	assert.Equal(t, "telemetry", hooks[0].Name)
	shutdown()
}

func TestBuildHooksNone(t *testing.T) {
	cfg := config.Defaults()
	hooks, shutdown := buildHooks(context.Background(), &cfg, logging.Discard())
	assert.Empty(t, hooks)
	shutdown()
}

type failingWriter struct{ appends int }

func (f *failingWriter) Append(loop.LogEntry) error { f.appends++; return errors.New("disk full") }
func (f *failingWriter) Close() error               { return nil }

func TestEventSinkKeepsGoingAfterFailure(t *testing.T) {
	fw := &failingWriter{}
	sink := newEventSink(fw, logging.Discard())
	sink.write(loop.LogEntry{Kind: loop.LogInfo})
	sink.write(loop.LogEntry{Kind: loop.LogInfo})
	sink.close()
	assert.Equal(t, 2, fw.appends)

	var nilSink *eventSink
	nilSink.write(loop.LogEntry{})
	nilSink.close()
}

func TestOpenSessionLogRetention(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	for _, name := range []string{"1000000001-a.jsonl", "1000000002-b.jsonl", "1000000003-c.jsonl"} {
		writeFile(t, filepath.Join(dir, name), "")
	}
	sink := openSessionLog(dir, "d", 2, logging.Discard())
	require.NotNil(t, sink)
	sink.close()

	assert.NoFileExists(t, filepath.Join(dir, "1000000001-a.jsonl"))
	assert.NoFileExists(t, filepath.Join(dir, "1000000002-b.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "1000000003-c.jsonl"))
}
