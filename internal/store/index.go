package store

import "github.com/LISSConsulting/LISSTech.Codchestra/internal/loop"

// iterRange is the [start, end) byte range of one iteration in the JSONL
// file: from the iter_start line to just past the iter_complete line.
type iterRange struct {
	start int64
	end   int64
}

// fileIndex keeps byte-offset bookmarks per completed iteration so
// IterationLog can read one iteration with a single ReadAt.
type fileIndex struct {
	summaries  []IterationSummary
	ranges     map[int]iterRange
	pending    *pendingIter
	exitReason loop.ExitReason
	finalMsg   string
}

// pendingIter accumulates the iteration currently being written.
type pendingIter struct {
	startOffset int64
	summary     IterationSummary
}

func newFileIndex() *fileIndex {
	return &fileIndex{ranges: make(map[int]iterRange)}
}

// onAppend updates the index for a line of lineLen bytes written at
// lineOffset.
func (idx *fileIndex) onAppend(entry loop.LogEntry, lineOffset, lineLen int64) {
	switch entry.Kind {
	case loop.LogIterStart:
		idx.pending = &pendingIter{
			startOffset: lineOffset,
			summary: IterationSummary{
				Number:  entry.Iteration,
				StartAt: entry.Timestamp,
			},
		}
	case loop.LogWarn:
		if idx.pending != nil {
			idx.pending.summary.Warnings++
		}
	case loop.LogIterComplete:
		if idx.pending == nil || idx.pending.summary.Number != entry.Iteration {
			return
		}
		s := idx.pending.summary
		s.Status = entry.Status
		s.Score = entry.Score
		s.StagnationCount = entry.StagnationCount
		s.ExitCode = entry.ExitCode
		s.Duration = entry.Duration
		s.EndAt = entry.Timestamp
		idx.ranges[s.Number] = iterRange{
			start: idx.pending.startOffset,
			end:   lineOffset + lineLen,
		}
		idx.summaries = append(idx.summaries, s)
		idx.pending = nil
	case loop.LogDone, loop.LogStopped, loop.LogError:
		idx.exitReason = entry.ExitReason
		idx.finalMsg = entry.Message
		idx.pending = nil
	}
}
