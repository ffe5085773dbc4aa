package foodbridge

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RunLogger records the steps of workflow runs.
type RunLogger interface {
	LogStep(step StepLog) error
}

// NewRunLogFilePath returns a file path under dir named after the workflow so
// logs of different workflows are easy to tell apart.
func NewRunLogFilePath(dir, workflow string) string {
	return filepath.Join(dir, fmt.Sprintf(
		"%d.%s.json",
		time.Now().Unix(),
		strings.ReplaceAll(strings.ToLower(workflow), " ", "_"),
	))
}

// StepLog represents a single node execution within a workflow run
type StepLog struct {
	RunID      string    `json:"run_id"`
	Workflow   string    `json:"workflow"`
	Node       string    `json:"node"`
	Sequence   int       `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMS int64     `json:"duration_ms"`
	InputKeys  []string  `json:"input_keys,omitempty"`
	OutputKeys []string  `json:"output_keys,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// FileRunLogger accumulates steps and writes them to the writer on Flush.
type FileRunLogger struct {
	mu     sync.Mutex
	steps  []StepLog
	writer io.Writer
}

// NewFileRunLogger creates a new file-based run logger
func NewFileRunLogger(writer io.Writer) *FileRunLogger {
	return &FileRunLogger{
		steps:  make([]StepLog, 0),
		writer: writer,
	}
}

// LogStep buffers the step (does not flush immediately)
func (l *FileRunLogger) LogStep(step StepLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, step)
	return nil
}

// Flush writes all buffered steps to the writer
func (l *FileRunLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"workflow_session": map[string]any{
			"timestamp": time.Now(),
			"steps":     l.steps,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run log: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write run log: %w", err)
	}

	l.steps = l.steps[:0]
	return nil
}

// NoOpRunLogger discards all steps
type NoOpRunLogger struct{}

func NewNoOpRunLogger() *NoOpRunLogger {
	return &NoOpRunLogger{}
}

func (nop *NoOpRunLogger) LogStep(step StepLog) error {
	return nil
}

// StdoutRunLogger writes each step as a JSON line to stdout (for Lambda/CloudWatch)
type StdoutRunLogger struct {
	out io.Writer
}

func NewStdoutRunLogger() *StdoutRunLogger {
	return &StdoutRunLogger{out: os.Stdout}
}

// LogStep writes the step as one JSON line
func (l *StdoutRunLogger) LogStep(step StepLog) error {
	data, err := json.Marshal(step)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(l.out, string(data))
	return err
}
