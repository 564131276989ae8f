package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"reactioncut/internal/models"
	"reactioncut/internal/store"
	"reactioncut/internal/timecode"
)

// ErrWorkflowCancelled is returned by waitReady (and propagated by any
// phase that calls it) the moment a WorkflowInstance is observed
// CANCELLED, so the caller can stop the pipeline without mistaking the
// cancellation for a phase failure.
var ErrWorkflowCancelled = errors.New("workflow: cancelled")

// waitReadyPollInterval is how often a PAUSED instance is re-checked.
const waitReadyPollInterval = 2 * time.Second

// waitReady implements the Wait-Ready step (spec §4.6 step 1): spin while
// the instance is PAUSED, fail fast with ErrWorkflowCancelled if
// CANCELLED. Called once before the pipeline starts and again at the top
// of every source-readiness retry round, so a pause/cancel issued while
// the task is waiting on slow-to-finish source files still takes effect
// promptly.
func waitReady(ctx context.Context, st Store, taskID string) error {
	for {
		instance, err := st.GetActiveWorkflowInstance(ctx, taskID)
		if err != nil {
			return fmt.Errorf("workflow: wait ready: %w", err)
		}
		switch instance.Status {
		case models.WorkflowStatusCancelled:
			return ErrWorkflowCancelled
		case models.WorkflowStatusPaused:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitReadyPollInterval):
			}
		default:
			return nil
		}
	}
}

// resolveSources implements "Resolve sources" (spec §4.6 step 2): a
// VIDEO_UPDATE instance with a non-empty updateSources config replaces
// the task's stored sources with that list; everything else uses the
// task's own recorded sources.
func resolveSources(ctx context.Context, st Store, taskID string, instance models.WorkflowInstance) ([]models.TaskSourceVideo, error) {
	if instance.WorkflowType == models.WorkflowTypeUpdate && len(instance.Config.UpdateSources) > 0 {
		sources := make([]models.TaskSourceVideo, 0, len(instance.Config.UpdateSources))
		for i, cfg := range instance.Config.UpdateSources {
			sources = append(sources, models.TaskSourceVideo{
				ID:            fmt.Sprintf("%s-update-%d", taskID, i),
				TaskID:        taskID,
				FilePath:      cfg.SourceFilePath,
				Ordinal:       cfg.SortOrder,
				StartTimecode: timecode.Format(cfg.StartTime),
				EndTimecode:   timecode.Format(cfg.EndTime),
			})
		}
		return sources, nil
	}

	sources, err := st.ListSourceVideos(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("workflow: list source videos: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("workflow: task %s has no source videos", taskID)
	}
	return sources, nil
}

// readySource is one source video annotated with the clip window the
// readiness probe resolved: start/end seconds clamped to the probed
// duration.
type readySource struct {
	Video    models.TaskSourceVideo
	Start    float64
	End      float64
	Duration float64
}

// checkSourcesReady implements the per-round body of the source-readiness
// probe (spec §4.6 step 3): every source must exist, be non-empty, and
// have a stable size across a short wait; its duration is then probed and
// its configured clip window resolved and clamped against that duration.
func checkSourcesReady(ctx context.Context, st Store, prober Prober, sources []models.TaskSourceVideo, logger *slog.Logger) ([]readySource, error) {
	sizes := make([]int64, len(sources))
	for i, src := range sources {
		info, err := os.Stat(src.FilePath)
		if err != nil {
			return nil, fmt.Errorf("workflow: source %s not ready: %w", src.FilePath, err)
		}
		if info.Size() == 0 {
			return nil, fmt.Errorf("workflow: source %s not ready: empty file", src.FilePath)
		}
		sizes[i] = info.Size()
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(SourceReadyStableDelay):
	}

	ready := make([]readySource, len(sources))
	for i, src := range sources {
		info, err := os.Stat(src.FilePath)
		if err != nil {
			return nil, fmt.Errorf("workflow: source %s not ready: %w", src.FilePath, err)
		}
		if info.Size() != sizes[i] {
			return nil, fmt.Errorf("workflow: source %s still being written", src.FilePath)
		}

		duration, err := prober.Duration(ctx, src.FilePath)
		if err != nil {
			return nil, fmt.Errorf("workflow: probe %s: %w", src.FilePath, err)
		}

		start := parseTimecodeOrZero(src.StartTimecode)
		end := parseTimecodeOrZero(src.EndTimecode)
		if end <= 0 {
			end = duration
		} else if end > duration {
			logger.Warn("clamping configured end_time to probed duration",
				"source", src.FilePath, "configured_end", end, "duration", duration)
			end = duration
			if err := st.UpdateSourceVideoWindow(ctx, src.ID, src.StartTimecode, timecode.Format(end)); err != nil && !errors.Is(err, store.ErrNotFound) {
				logger.Warn("failed to persist clamped end_time", "source", src.FilePath, "error", err)
			}
		}
		if start >= end {
			start, end = 0, duration
		}

		ready[i] = readySource{Video: src, Start: start, End: end, Duration: duration}
	}
	return ready, nil
}

func parseTimecodeOrZero(value string) float64 {
	if value == "" {
		return 0
	}
	seconds, err := timecode.Parse(value)
	if err != nil {
		return 0
	}
	return seconds
}

// ensureSourcesReady wraps checkSourcesReady in the retry envelope spec
// §4.6 step 3 mandates: on failure, wait with a doubling backoff capped at
// SourceReadyMaxWait per sleep, up to SourceReadyMaxRetries attempts
// total, re-checking Wait-Ready at the top of every round so a pause or
// cancel issued mid-wait is honored promptly.
func ensureSourcesReady(ctx context.Context, st Store, prober Prober, taskID string, sources []models.TaskSourceVideo, logger *slog.Logger) ([]readySource, error) {
	wait := SourceReadyStableDelay
	for attempt := 1; ; attempt++ {
		if err := waitReady(ctx, st, taskID); err != nil {
			return nil, err
		}

		ready, err := checkSourcesReady(ctx, st, prober, sources, logger)
		if err == nil {
			return ready, nil
		}

		if attempt >= SourceReadyMaxRetries {
			return nil, fmt.Errorf("workflow: sources not ready after %d attempts: %w", attempt, err)
		}

		logger.Info("sources not ready, backing off", "attempt", attempt, "error", err)
		sleepFor := wait
		if sleepFor > SourceReadyMaxWait {
			sleepFor = SourceReadyMaxWait
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleepFor):
		}
		wait *= 2
		if wait > SourceReadyMaxWait {
			wait = SourceReadyMaxWait
		}
	}
}
