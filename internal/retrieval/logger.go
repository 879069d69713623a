package retrieval

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// QueryLogEntry is one JSONL record of a similarity search against the
// chunk store.
type QueryLogEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Query         string    `json:"query"`
	TopK          int       `json:"top_k"`
	NumResults    int       `json:"num_results"`
	LatencyMs     int64     `json:"latency_ms"`
	CorrelationID string    `json:"correlation_id"`

	// Duration is measured by the caller; only its millisecond form is
	// persisted.
	Duration time.Duration `json:"-"`
}

// QueryLogger appends one JSON line per query. Safe for concurrent use;
// lines are written whole so readers never see interleaved records.
type QueryLogger struct {
	mu  sync.Mutex
	out io.Writer
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{out: w}
}

// NewFileQueryLogger appends to path, teeing every line to stdout so
// queries also show up in container logs.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, err
	}
	return NewQueryLogger(io.MultiWriter(os.Stdout, f)), nil
}

func (l *QueryLogger) Log(entry QueryLogEntry) {
	entry.Timestamp = time.Now().UTC()
	entry.LatencyMs = entry.Duration.Milliseconds()

	line, err := json.Marshal(entry)
	if err != nil {
		slog.Error("failed to encode query log entry", "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(append(line, '\n')); err != nil {
		slog.Error("failed to write query log entry", "error", err)
	}
}
