package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fakePath(found ...string) LookPathFunc {
	return func(file string) (string, error) {
		for _, f := range found {
			if f == file {
				return "/usr/bin/" + f, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		args     []string
		onPath   []string
		wantCmd  string
		wantArgs []string
	}{
		{"configured command wins", "  my-agent ", nil, []string{"codex"}, "my-agent", nil},
		{"chatgpt preferred", "", nil, []string{"chatgpt", "codex"}, "chatgpt", nil},
		{"codex when only codex", "", nil, []string{"codex"}, "codex", []string{"exec", "-", "--full-auto"}},
		{"fallback chatgpt", "", nil, nil, "chatgpt", nil},
		{"configured args win", "codex", []string{"--quiet"}, nil, "codex", []string{"--quiet"}},
		{"codex by path", "/opt/bin/Codex", nil, nil, "/opt/bin/Codex", []string{"exec", "-", "--full-auto"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := Resolve(tt.command, tt.args, fakePath(tt.onPath...))
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestIsAuthFailure(t *testing.T) {
	assert.True(t, IsAuthFailure("ERROR: Invalid API key provided"))
	assert.True(t, IsAuthFailure("stream error: 401 Unauthorized"))
	assert.True(t, IsAuthFailure("You are not logged in."))
	assert.False(t, IsAuthFailure("warning: deprecated flag"))
	assert.False(t, IsAuthFailure(""))
	assert.False(t, IsAuthFailure("rotating the refresh token in auth.go"))
	assert.False(t, IsAuthFailure("FAIL: TestLogin: authentication failed for user bob"))
}

func TestRemediation(t *testing.T) {
	assert.Contains(t, Remediation(ErrNotFound, "codex"), "agent.command")
	assert.Contains(t, Remediation(ErrAuthExpired, "codex"), "Re-authenticate codex")
	assert.Empty(t, Remediation(ErrTimeout, "codex"))
}
