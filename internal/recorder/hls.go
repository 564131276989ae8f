package recorder

import (
	"context"
	"os"
	"time"

	"reactioncut/internal/models"
	"reactioncut/internal/transcoder"
)

// hlsGracefulStopTimeout bounds how long the HLS sub-recorder waits for a
// graceful `q`-stdin stop before killing the child outright.
const hlsGracefulStopTimeout = 10 * time.Second

// TaskUpdater is the narrow slice of the Persistent Store the HLS
// sub-recorder needs to record a finished segment, mirroring
// internal/segmentwriter.TaskUpdater so this package carries no dependency
// on the store's transaction machinery.
type TaskUpdater interface {
	FinishLiveRecordTask(ctx context.Context, taskID string, status models.LiveRecordStatus, endedAt time.Time, bytesWritten int64, errMessage string) error
}

// HLSJobBuilder constructs the transcoder job for one HLS remux run.
// Exposed so tests can substitute a fake command in place of the real
// HLSRemuxJob/ffmpeg invocation.
type HLSJobBuilder func(label, playlistURL, outputPath string) transcoder.Job

// HLSSubRecorder delegates an HLS-style playback URL to the external
// transcoder for a copy-remux into a transport-stream file (spec §4.4
// container branching), monitoring the child and forwarding a stop signal
// as the `q` graceful-stop keystroke on its standard input.
type HLSSubRecorder struct {
	runner   *transcoder.Runner
	store    TaskUpdater
	buildJob HLSJobBuilder
}

// HLSOption configures an HLSSubRecorder.
type HLSOption func(*HLSSubRecorder)

// WithHLSJobBuilder overrides the job builder, for tests.
func WithHLSJobBuilder(builder HLSJobBuilder) HLSOption {
	return func(h *HLSSubRecorder) {
		if builder != nil {
			h.buildJob = builder
		}
	}
}

// NewHLSSubRecorder constructs an HLSSubRecorder.
func NewHLSSubRecorder(runner *transcoder.Runner, store TaskUpdater, opts ...HLSOption) *HLSSubRecorder {
	h := &HLSSubRecorder{runner: runner, store: store, buildJob: transcoder.HLSRemuxJob}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the copy-remux job and blocks until it exits, the handle's
// stop signal fires, or ctx is canceled, finalizing the task row in every
// case.
func (h *HLSSubRecorder) Run(ctx context.Context, handle *Handle, taskID, playlistURL, outputPath string) error {
	job := h.buildJob(handle.RoomID(), playlistURL, outputPath)
	proc, err := h.runner.Start(ctx, job)
	if err != nil {
		h.finish(ctx, taskID, outputPath, models.LiveRecordStatusFailed, err)
		return err
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- proc.Wait() }()

	select {
	case err := <-waitErr:
		status := models.LiveRecordStatusCompleted
		if err != nil {
			status = models.LiveRecordStatusFailed
		}
		h.finish(ctx, taskID, outputPath, status, err)
		return err

	case <-handle.Stopped():
		_ = proc.Stop()
		select {
		case err := <-waitErr:
			h.finish(ctx, taskID, outputPath, models.LiveRecordStatusStopped, err)
			return err
		case <-time.After(hlsGracefulStopTimeout):
			proc.Kill()
			err := <-waitErr
			h.finish(ctx, taskID, outputPath, models.LiveRecordStatusStopped, err)
			return err
		}

	case <-ctx.Done():
		proc.Kill()
		err := <-waitErr
		h.finish(ctx, taskID, outputPath, models.LiveRecordStatusStopped, err)
		return ctx.Err()
	}
}

func (h *HLSSubRecorder) finish(ctx context.Context, taskID, outputPath string, status models.LiveRecordStatus, cause error) {
	var size int64
	if info, err := os.Stat(outputPath); err == nil {
		size = info.Size()
	}
	errMessage := ""
	if cause != nil {
		errMessage = cause.Error()
	}
	if h.store != nil {
		_ = h.store.FinishLiveRecordTask(ctx, taskID, status, time.Now(), size, errMessage)
	}
}
