package agent

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound means the agent command does not exist or is not executable.
	ErrNotFound = errors.New("agent command not found")
	// ErrTimeout means the call exceeded its per-call timeout and was killed.
	ErrTimeout = errors.New("agent call timed out")
	// ErrAuthExpired means stderr reported a missing or expired credential.
	ErrAuthExpired = errors.New("agent authentication failed")
)

// authPatterns are lowercase stderr fragments the supported CLIs print when
// their credentials are missing, invalid, or expired.
var authPatterns = []string{
	"401 unauthorized",
	"invalid_api_key",
	"invalid api key",
	"incorrect api key",
	"token expired",
	"token has expired",
	"refresh_token_expired",
	"not logged in",
	"please run codex login",
	"please log in",
	"authentication required",
}

// IsAuthFailure reports whether stderr carries a known authentication
// failure message. Invoke only consults it after a non-zero exit, since
// agents may echo their own transcript on stderr.
func IsAuthFailure(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, p := range authPatterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Remediation returns operator guidance for a fatal invocation error, or ""
// when err is not one of the fatal kinds.
func Remediation(err error, command string) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "Install " + command + " or set agent.command in codchestra.toml, then run `codchestra doctor`."
	case errors.Is(err, ErrAuthExpired):
		return "Re-authenticate " + command + " (for example `codex login`) and run again with --resume."
	}
	return ""
}
