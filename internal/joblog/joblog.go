package joblog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/amanullahtanweer/chapter-transcriber/internal/events"
)

// Logger writes one JSON line per job event to a file.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

type record struct {
	Timestamp string            `json:"ts"`
	Event     string            `json:"event"`
	JobID     string            `json:"job_id"`
	Seq       int               `json:"seq,omitempty"`
	Message   string            `json:"message,omitempty"`
	Percent   *float64          `json:"percent,omitempty"`
	Index     int               `json:"index,omitempty"`
	Title     string            `json:"title,omitempty"`
	Text      string            `json:"text,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// New creates a logger under outputDir. The filename is the start time plus the short job id.
func New(outputDir, jobID string, started time.Time) (*Logger, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	shortID := jobID
	if len(jobID) > 8 {
		shortID = jobID[:8]
	}
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_job_%s.jsonl", started.Format("20060102_150405"), shortID))
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{file: f, path: filename}, nil
}

// Path returns the log file location.
func (l *Logger) Path() string { return l.path }

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) write(rec record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	rec.Text = strings.TrimSpace(rec.Text)
	_ = json.NewEncoder(l.file).Encode(rec)
}

// LogJobStart records the submission that started the job.
func (l *Logger) LogJobStart(jobID, source, quality, compute string, started time.Time) {
	l.write(record{Timestamp: started.Format(time.RFC3339Nano), Event: "job_start", JobID: jobID,
		Details: map[string]string{"source": source, "quality": quality, "compute": compute}})
}

// LogJobEnd records how the job ended.
func (l *Logger) LogJobEnd(jobID string, ended time.Time, outcome string) {
	l.write(record{Timestamp: ended.Format(time.RFC3339Nano), Event: "job_end", JobID: jobID,
		Details: map[string]string{"outcome": outcome}})
}

// Handle records a pipeline event. Document bodies are not duplicated into the log.
func (l *Logger) Handle(e events.Event) {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := record{Timestamp: ts.Format(time.RFC3339Nano), Event: string(e.Type), JobID: e.JobID, Seq: e.Seq}
	switch e.Type {
	case events.TypeStatus:
		rec.Message = e.Message
	case events.TypeProgress:
		p := e.Percent
		rec.Percent = &p
	case events.TypeChapter:
		rec.Index, rec.Title, rec.Text = e.Index, e.Title, e.Text
	case events.TypeError:
		rec.Kind, rec.Message = e.ErrorKind, e.Message
	case events.TypeDone:
		rec.Details = map[string]string{"filename": e.Filename, "document_bytes": fmt.Sprint(len(e.Document))}
	}
	l.write(rec)
}
