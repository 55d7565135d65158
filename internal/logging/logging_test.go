package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelError, Level("quiet"))
	assert.Equal(t, slog.LevelInfo, Level("normal"))
	assert.Equal(t, slog.LevelDebug, Level("verbose"))
	assert.Equal(t, slog.LevelInfo, Level(""))
}

func TestNew_NonTerminalWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "normal")

	log.Info("iteration complete", "loop", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "iteration complete", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.EqualValues(t, 3, rec["loop"])
}

func TestNew_Verbosity(t *testing.T) {
	tests := []struct {
		verbosity string
		want      []string
	}{
		{"quiet", []string{"e"}},
		{"normal", []string{"i", "w", "e"}},
		{"verbose", []string{"d", "i", "w", "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.verbosity, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(&buf, tt.verbosity)
			log.Debug("d")
			log.Info("i")
			log.Warn("w")
			log.Error("e")

			var got []string
			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				var rec struct{ Msg string }
				require.NoError(t, json.Unmarshal([]byte(line), &rec))
				got = append(got, rec.Msg)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard().Error("dropped") })
}
