package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"
)

const logExt = ".jsonl"

// JSONL is a Store backed by an append-only JSONL file. Each line is a
// JSON-serialized loop.LogEntry. The file is synced after every Append so
// a killed process leaves a readable log.
//
// File name: "<unix-timestamp>-<session-id>.jsonl". The timestamp prefix
// keeps names in chronological order for retention and Latest.
type JSONL struct {
	file      *os.File
	path      string
	mu        sync.Mutex
	idx       *fileIndex
	sessionID string
	startedAt time.Time
	pos       int64
}

// NewJSONL creates the session log for sessionID in dir, creating dir if
// needed. An empty sessionID gets a fresh UUID.
func NewJSONL(dir, sessionID string) (*JSONL, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: mkdir %q: %w", dir, err)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("%d-%s%s", now.Unix(), sessionID, logExt))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	pos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("store: seek: %w", err)
	}
	return &JSONL{
		file:      f,
		path:      path,
		idx:       newFileIndex(),
		sessionID: sessionID,
		startedAt: now,
		pos:       pos,
	}, nil
}

// Open reopens an existing session log for reading and rebuilds its index.
// Malformed lines are skipped. Append on the result fails.
func Open(path string) (*JSONL, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	j := &JSONL{file: f, path: path, idx: newFileIndex()}
	j.sessionID, j.startedAt = parseName(filepath.Base(path))

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			var e loop.LogEntry
			if jsonErr := json.Unmarshal(bytes.TrimSpace(line), &e); jsonErr == nil {
				j.idx.onAppend(e, j.pos, int64(len(line)))
			}
			j.pos += int64(len(line))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("store: read %q: %w", path, err)
		}
	}
	return j, nil
}

// parseName splits "<ts>-<id>.jsonl" into its parts. Unparseable names give
// the bare name and a zero time.
func parseName(name string) (string, time.Time) {
	base := strings.TrimSuffix(name, logExt)
	ts, id, ok := strings.Cut(base, "-")
	if !ok {
		return base, time.Time{}
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return base, time.Time{}
	}
	return id, time.Unix(sec, 0)
}

// Path is the log file location.
func (j *JSONL) Path() string { return j.path }

// Append serializes entry as a JSON line, writes it, and syncs. It is safe
// to call from multiple goroutines.
func (j *JSONL) Append(entry loop.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	lineOffset := j.pos
	if _, err := j.file.Write(data); err != nil {
		return fmt.Errorf("store: write: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("store: sync: %w", err)
	}
	lineLen := int64(len(data))
	j.pos += lineLen
	j.idx.onAppend(entry, lineOffset, lineLen)
	return nil
}

// Close closes the underlying file.
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// Iterations returns summaries for all completed iterations in this
// session. The returned slice is a copy.
func (j *JSONL) Iterations() ([]IterationSummary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	result := make([]IterationSummary, len(j.idx.summaries))
	copy(result, j.idx.summaries)
	return result, nil
}

// IterationLog returns every event of a completed iteration, read with the
// byte-offset index.
func (j *JSONL) IterationLog(n int) ([]loop.LogEntry, error) {
	j.mu.Lock()
	r, ok := j.idx.ranges[n]
	j.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("store: iteration %d not found", n)
	}
	size := r.end - r.start
	if size <= 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	if _, err := j.file.ReadAt(buf, r.start); err != nil {
		return nil, fmt.Errorf("store: read iteration %d: %w", n, err)
	}
	var entries []loop.LogEntry
	for _, line := range bytes.Split(buf, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e loop.LogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SessionSummary returns metadata derived from the in-memory index.
func (j *JSONL) SessionSummary() (SessionSummary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return SessionSummary{
		SessionID:  j.sessionID,
		Path:       j.path,
		StartedAt:  j.startedAt,
		Iterations: len(j.idx.summaries),
		ExitReason: j.idx.exitReason,
		Message:    j.idx.finalMsg,
	}, nil
}

// sessionFiles returns the session log names in dir, oldest first.
func sessionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read dir %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), logExt) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Latest returns the path of the newest session log in dir. ok is false
// when there is none.
func Latest(dir string) (path string, ok bool, err error) {
	files, err := sessionFiles(dir)
	if err != nil || len(files) == 0 {
		return "", false, err
	}
	return filepath.Join(dir, files[len(files)-1]), true, nil
}

// EnforceRetention removes the oldest session logs in dir, keeping at most
// maxKeep. maxKeep <= 0 keeps everything. A missing dir is not an error.
func EnforceRetention(dir string, maxKeep int) error {
	if maxKeep <= 0 {
		return nil
	}
	files, err := sessionFiles(dir)
	if err != nil {
		return err
	}
	for i := 0; i < len(files)-maxKeep; i++ {
		path := filepath.Join(dir, files[i])
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("store: remove %q: %w", path, err)
		}
	}
	return nil
}
