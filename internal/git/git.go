// Package git queries the working tree the agent edits: diff statistics for
// stagnation scoring and the branch and last commit shown by status, doctor,
// and the monitor.
package git

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes git commands in a working directory.
type Runner struct {
	Dir string // working directory for git commands
}

// NewRunner creates a Runner for the given directory.
func NewRunner(dir string) *Runner {
	return &Runner{Dir: dir}
}

// DiffSummary is a point-in-time read of unstaged working tree changes.
type DiffSummary struct {
	FilesChanged int
	Insertions   int
	Deletions    int
	Raw          string // output of git diff --stat
}

// Score collapses the summary to the activity score used for stagnation
// detection. A nil summary scores 0.
func (s *DiffSummary) Score() int {
	if s == nil {
		return 0
	}
	return 2*s.FilesChanged + s.Insertions + s.Deletions
}

// DiffSummary reports working tree changes against the index. It returns
// nil with no error when the directory is not a repository or git is not
// installed, so callers can treat "not available" as a zero score.
func (r *Runner) DiffSummary() (*DiffSummary, error) {
	if !r.IsRepo() {
		return nil, nil
	}
	numstat, err := r.run("diff", "--numstat")
	if err != nil {
		return nil, fmt.Errorf("git diff numstat: %w", err)
	}
	s := parseNumstat(numstat)

	stat, err := r.run("diff", "--stat")
	if err != nil {
		return nil, fmt.Errorf("git diff stat: %w", err)
	}
	s.Raw = strings.TrimRight(stat, "\n")
	return s, nil
}

// parseNumstat sums "added<TAB>deleted<TAB>path" lines. Binary files report
// "-" for both counts and contribute only to FilesChanged.
func parseNumstat(out string) *DiffSummary {
	s := &DiffSummary{}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		s.FilesChanged++
		if n, err := strconv.Atoi(parts[0]); err == nil {
			s.Insertions += n
		}
		if n, err := strconv.Atoi(parts[1]); err == nil {
			s.Deletions += n
		}
	}
	return s
}

// IsRepo reports whether Dir is inside a git work tree. A missing git
// binary reads as false.
func (r *Runner) IsRepo() bool {
	out, err := r.run("rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// Head describes the checked-out commit and whether anything, untracked
// files included, differs from it.
type Head struct {
	// Branch is empty when HEAD is detached.
	Branch string `json:"branch" yaml:"branch"`
	// Commit is the short SHA and subject; empty before the first commit.
	Commit string `json:"commit,omitempty" yaml:"commit,omitempty"`
	Dirty  bool   `json:"dirty" yaml:"dirty"`
}

// Head reports the branch, last commit, and dirty flag. Like DiffSummary it
// returns nil with no error outside a repository.
func (r *Runner) Head() (*Head, error) {
	if !r.IsRepo() {
		return nil, nil
	}
	branch, err := r.run("branch", "--show-current")
	if err != nil {
		return nil, fmt.Errorf("git current branch: %w", err)
	}
	porcelain, err := r.run("status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}
	h := &Head{
		Branch: strings.TrimSpace(branch),
		Dirty:  strings.TrimSpace(porcelain) != "",
	}
	// git log fails on an unborn branch; that just means no commit yet.
	if commit, err := r.run("log", "-1", "--format=%h %s"); err == nil {
		h.Commit = strings.TrimSpace(commit)
	}
	return h, nil
}

// run executes a git command and returns its stdout.
func (r *Runner) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("%s: %w", errMsg, err)
	}
	return stdout.String(), nil
}
