// Package segmentwriter implements the Recorder Loop's per-segment file
// sink (spec §4.3): an open file descriptor, a running byte count, and a
// finalize step that persists the segment's outcome and patches its sidecar
// metadata file, if one exists.
package segmentwriter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"reactioncut/internal/models"
)

// TaskUpdater is the narrow slice of the Persistent Store the Segment
// Writer needs: recording the outcome of one LiveRecordTask row on finish.
// Defined locally (rather than importing internal/store) so this package
// has no dependency on the store's transaction machinery.
type TaskUpdater interface {
	FinishLiveRecordTask(ctx context.Context, taskID string, status models.LiveRecordStatus, endedAt time.Time, bytesWritten int64, errMessage string) error
}

// SidecarMetadata mirrors the JSON sidecar file the Recorder Loop writes
// alongside a segment when chat recording or metadata export is active.
// Finish patches EndTime and FileSize in place, leaving any other
// caller-populated fields (Title, StartTime, room info, ...) untouched.
type SidecarMetadata struct {
	EndTime  string `json:"endTime,omitempty"`
	FileSize int64  `json:"fileSize"`
}

// Writer owns one open segment file.
type Writer struct {
	mu sync.Mutex

	file         *os.File
	taskID       string
	sidecarPath  string
	store        TaskUpdater
	bytesWritten int64
	finished     bool
}

// Open creates (or truncates) the segment file at path and returns a Writer
// ready to accept bytes. sidecarPath may be empty if no metadata sidecar is
// in use for this segment.
func Open(path, taskID string, store TaskUpdater, sidecarPath string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("segmentwriter: open %s: %w", path, err)
	}
	return &Writer{
		file:        file,
		taskID:      taskID,
		sidecarPath: sidecarPath,
		store:       store,
	}, nil
}

// Write appends bytes to the segment file and advances the running byte
// count.
func (w *Writer) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finished {
		return 0, fmt.Errorf("segmentwriter: write after finish")
	}
	n, err := w.file.Write(b)
	w.bytesWritten += int64(n)
	if err != nil {
		return n, fmt.Errorf("segmentwriter: write: %w", err)
	}
	return n, nil
}

// BytesWritten reports the running byte count, used by the Recorder Loop's
// size-based rotation policy (spec §4.4).
func (w *Writer) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bytesWritten
}

// Finish closes the underlying file, records the outcome on the task's
// persisted row, and patches the sidecar metadata file if one is in use.
// Finalization is not required to be idempotent (spec §4.3); a second call
// returns an error rather than silently succeeding.
func (w *Writer) Finish(ctx context.Context, status models.LiveRecordStatus, cause error) error {
	w.mu.Lock()
	if w.finished {
		w.mu.Unlock()
		return fmt.Errorf("segmentwriter: already finished")
	}
	w.finished = true
	bytesWritten := w.bytesWritten
	closeErr := w.file.Close()
	w.mu.Unlock()

	if closeErr != nil {
		return fmt.Errorf("segmentwriter: close: %w", closeErr)
	}

	endedAt := time.Now()
	errMessage := ""
	if cause != nil {
		errMessage = cause.Error()
	}
	if w.store != nil {
		if err := w.store.FinishLiveRecordTask(ctx, w.taskID, status, endedAt, bytesWritten, errMessage); err != nil {
			return fmt.Errorf("segmentwriter: persist finish: %w", err)
		}
	}

	if w.sidecarPath != "" {
		if err := patchSidecar(w.sidecarPath, endedAt, bytesWritten); err != nil {
			return fmt.Errorf("segmentwriter: patch sidecar: %w", err)
		}
	}
	return nil
}

func patchSidecar(path string, endedAt time.Time, fileSize int64) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		doc = map[string]any{}
	}
	doc["endTime"] = endedAt.Format(time.RFC3339)
	doc["fileSize"] = fileSize

	patched, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, patched, 0o644)
}
