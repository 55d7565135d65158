package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// waitDelay bounds how long Wait keeps reading pipes after the process is
// killed, in case a grandchild still holds them open.
const waitDelay = 5 * time.Second

// CommandFactory builds an *exec.Cmd for the given context, working
// directory, command, and arguments. Tests inject a factory that re-runs the
// test binary as a fake agent.
type CommandFactory func(ctx context.Context, dir, name string, args ...string) *exec.Cmd

func defaultCommandFactory(ctx context.Context, dir, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd
}

// CommandInvoker runs the agent as a local subprocess.
type CommandInvoker struct {
	Command string
	Args    []string

	output    io.Writer
	factory   CommandFactory
	waitDelay time.Duration
}

// Option configures a CommandInvoker.
type Option func(*CommandInvoker)

// WithOutput tees the combined stream to w as it arrives.
func WithOutput(w io.Writer) Option {
	return func(c *CommandInvoker) { c.output = w }
}

// WithCommandFactory injects a custom command factory (used in tests).
func WithCommandFactory(f CommandFactory) Option {
	return func(c *CommandInvoker) { c.factory = f }
}

// NewCommandInvoker creates an invoker for command with fixed args.
func NewCommandInvoker(command string, args []string, opts ...Option) *CommandInvoker {
	c := &CommandInvoker{
		Command: command,
		Args:      args,
		factory:   defaultCommandFactory,
		waitDelay: waitDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Invoke runs the command once with req.Prompt on stdin.
//
// Whatever the process printed is returned even when err is non-nil, except
// for ErrNotFound, a missing working directory, and cancellation of ctx.
func (c *CommandInvoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if req.Dir != "" {
		if info, err := os.Stat(req.Dir); err != nil {
			return nil, fmt.Errorf("agent: working directory: %w", err)
		} else if !info.IsDir() {
			return nil, fmt.Errorf("agent: working directory %s is not a directory", req.Dir)
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := c.factory(callCtx, req.Dir, c.Command, c.Args...)
	cmd.Stdin = strings.NewReader(req.Prompt)
	cmd.WaitDelay = c.waitDelay

	var stdout, stderr bytes.Buffer
	combined := &syncBuffer{tee: c.output}
	cmd.Stdout = io.MultiWriter(&stdout, combined)
	cmd.Stderr = io.MultiWriter(&stderr, combined)

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Combined: combined.String(),
		Duration: time.Since(start),
	}

	var runErr error
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			res.ExitCode = exitErr.ExitCode()
		case errors.Is(err, exec.ErrWaitDelay):
			// The agent exited but a process it started still holds the
			// output pipes.
			runErr = fmt.Errorf("agent: %s exited with its output still held open by a child process: %w", c.Command, err)
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("agent: %s: %w", c.Command, ErrNotFound)
		case ctx.Err() != nil:
			return nil, fmt.Errorf("agent: %w", ctx.Err())
		case callCtx.Err() == nil:
			runErr = fmt.Errorf("agent: run %s: %w", c.Command, err)
		}
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("agent: %w", ctx.Err())
	}
	if callCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		if res.ExitCode == 0 {
			res.ExitCode = -1
		}
		return res, fmt.Errorf("agent: %s after %s: %w", c.Command, timeout, ErrTimeout)
	}
	if res.ExitCode != 0 && IsAuthFailure(res.Stderr) {
		return res, fmt.Errorf("agent: %s: %w", c.Command, ErrAuthExpired)
	}
	return res, runErr
}

// syncBuffer is a bytes.Buffer safe for the two copy goroutines exec starts
// when Stdout and Stderr are different writers. Writes are also copied to
// tee when set; tee errors are ignored.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	tee io.Writer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tee != nil {
		_, _ = b.tee.Write(p)
	}
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
