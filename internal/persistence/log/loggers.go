package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"strider.ai/internal/nav/movement"
)

// JSONLZstdWriter appends JSON lines to hour-rotated zstd files named
// <baseDir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst. Reopening an hour appends a new
// zstd frame to the same file.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	lines   uint64
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Lines() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.lines++
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// OutcomeLogger writes one JSONL entry per supervisor report (compressed).
// It satisfies movement.Recorder.
type OutcomeLogger struct{ w *JSONLZstdWriter }

func NewOutcomeLogger(dir string) *OutcomeLogger {
	return &OutcomeLogger{w: NewJSONLZstdWriter(filepath.Join(dir, "outcomes"), "outcomes")}
}

func (l *OutcomeLogger) RecordOutcome(e movement.Event) error { return l.w.Write(e) }
func (l *OutcomeLogger) Close() error                         { return l.w.Close() }

// EscalationEntry is one hand-off to the global path solver.
type EscalationEntry struct {
	Time      time.Time  `json:"time"`
	AgentID   string     `json:"agent_id"`
	Start     [3]float64 `json:"start"`
	Goal      [3]float64 `json:"goal"`
	Width     float64    `json:"width"`
	Height    float64    `json:"height"`
	AgentType string     `json:"agent_type,omitempty"`
}

// EscalationLogger writes escalation JSONL entries (compressed).
type EscalationLogger struct{ w *JSONLZstdWriter }

func NewEscalationLogger(dir string) *EscalationLogger {
	return &EscalationLogger{w: NewJSONLZstdWriter(filepath.Join(dir, "escalations"), "escalations")}
}

func (l *EscalationLogger) WriteEscalation(e EscalationEntry) error { return l.w.Write(e) }
func (l *EscalationLogger) Close() error                            { return l.w.Close() }
