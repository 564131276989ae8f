package chatsocket

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// sidecarLine is one JSONL record written per retained chat event.
type sidecarLine struct {
	Cmd       string          `json:"cmd"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// SidecarWriter appends newline-delimited JSON chat events to a file next
// to the recording segment it was opened for.
type SidecarWriter struct {
	mu   sync.Mutex
	file *os.File
}

// OpenSidecar creates the sidecar file at path if it does not exist and
// opens it for appending; existing content is kept.
func OpenSidecar(path string) (*SidecarWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("chatsocket: open sidecar: %w", err)
	}
	return &SidecarWriter{file: f}, nil
}

// WriteEvent appends one JSON line for cmd/data observed at timestamp.
func (w *SidecarWriter) WriteEvent(cmd string, data json.RawMessage, timestamp time.Time) error {
	line, err := json.Marshal(sidecarLine{Cmd: cmd, Data: data, Timestamp: timestamp})
	if err != nil {
		return fmt.Errorf("chatsocket: marshal sidecar line: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("chatsocket: write sidecar line: %w", err)
	}
	return nil
}

// Close flushes and closes the sidecar file.
func (w *SidecarWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
