package common

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/arbor/writers"
)

const runLogTimeFormat = "2006-01-02 15:04:05"

// RunLogWriter appends one logfmt line per event to a single file. The file
// is never rotated or truncated, so every run's history stays in place.
type RunLogWriter struct {
	mu    sync.Mutex
	file  *os.File
	path  string
	level log.Level
}

var _ writers.IWriter = (*RunLogWriter)(nil)

func NewRunLogWriter(path string) (*RunLogWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	return &RunLogWriter{file: f, path: path, level: log.InfoLevel}, nil
}

// WithLevel sets the minimum level in place. arbor applies levels to
// registered writers without keeping the return value.
func (w *RunLogWriter) WithLevel(level log.Level) writers.IWriter {
	w.mu.Lock()
	w.level = level
	w.mu.Unlock()
	return w
}

// Write takes an arbor JSON event and appends it as a logfmt line.
func (w *RunLogWriter) Write(p []byte) (int, error) {
	var event models.LogEvent
	if err := json.Unmarshal(p, &event); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil || event.Level < w.level {
		return len(p), nil
	}
	if _, err := w.file.WriteString(formatRunLogLine(event)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *RunLogWriter) GetFilePath() string {
	return w.path
}

func (w *RunLogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func formatRunLogLine(event models.LogEvent) string {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString("time=")
	b.WriteString(logfmtValue(ts.Format(runLogTimeFormat)))
	b.WriteString(" level=")
	b.WriteString(arbor.LevelToString(event.Level))
	if event.CorrelationID != "" {
		b.WriteString(" correlationid=")
		b.WriteString(logfmtValue(event.CorrelationID))
	}
	b.WriteString(" message=")
	b.WriteString(logfmtValue(event.Message))

	keys := make([]string, 0, len(event.Fields))
	for k := range event.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(logfmtValue(fmt.Sprint(event.Fields[k])))
	}

	if event.Error != "" {
		b.WriteString(" error=")
		b.WriteString(logfmtValue(event.Error))
	}
	b.WriteString("\n")
	return b.String()
}

func logfmtValue(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
