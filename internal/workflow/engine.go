package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reactioncut/internal/models"
	"reactioncut/internal/store"
)

// Engine drives the Submission Workflow end to end for one task at a
// time: Wait-Ready, resolve sources, source-readiness probe, clip,
// merge, optional segment, and the hand-off to Waiting-Upload. Grounded
// directly on original_source/src-tauri/src/commands/submission.rs's
// run_submission_workflow, which this type follows phase for phase.
type Engine struct {
	Store      Store
	Transcoder Transcoder
	Prober     Prober
	BaseDir    string
	Logger     *slog.Logger
	Now        func() time.Time
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) clock() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Run executes the full clip/merge/segment pipeline for taskID, driven by
// its most recent WorkflowInstance.
func (e *Engine) Run(ctx context.Context, taskID string) error {
	logger := e.logger().With("task_id", taskID)

	instance, err := e.Store.GetActiveWorkflowInstance(ctx, taskID)
	if err != nil {
		return fmt.Errorf("workflow: load active instance: %w", err)
	}

	if err := waitReady(ctx, e.Store, taskID); err != nil {
		return e.handleCancel(ctx, taskID, instance, err)
	}

	sources, err := resolveSources(ctx, e.Store, taskID, instance)
	if err != nil {
		return e.fail(ctx, taskID, instance, err)
	}

	ready, err := ensureSourcesReady(ctx, e.Store, e.Prober, taskID, sources, logger)
	if err != nil {
		if errors.Is(err, ErrWorkflowCancelled) {
			return e.handleCancel(ctx, taskID, instance, err)
		}
		return e.fail(ctx, taskID, instance, err)
	}

	isUpdate := instance.WorkflowType == models.WorkflowTypeUpdate
	paths := BuildTaskPaths(e.BaseDir, taskID, isUpdate, e.clock())

	if err := e.setStatus(ctx, taskID, &instance, models.TaskStatusClipping, models.WorkflowStepClip, 20); err != nil {
		return err
	}
	clipOutputs, err := runClipPhase(ctx, e.Transcoder, e.Prober, paths.Clip, ready, logger)
	if err != nil {
		return e.fail(ctx, taskID, instance, err)
	}
	if err := saveClips(ctx, e.Store, taskID, clipOutputs, !isUpdate); err != nil {
		return e.fail(ctx, taskID, instance, err)
	}

	if err := waitReady(ctx, e.Store, taskID); err != nil {
		return e.handleCancel(ctx, taskID, instance, err)
	}

	if err := e.setStatus(ctx, taskID, &instance, models.TaskStatusMerging, models.WorkflowStepMerge, 40); err != nil {
		return err
	}
	mergeOutput, err := runMergePhase(ctx, e.Transcoder, paths.Merge, taskID, clipOutputs)
	if err != nil {
		return e.fail(ctx, taskID, instance, err)
	}
	if err := saveMergedVideo(ctx, e.Store, taskID, mergeOutput); err != nil {
		return e.fail(ctx, taskID, instance, err)
	}

	if err := waitReady(ctx, e.Store, taskID); err != nil {
		return e.handleCancel(ctx, taskID, instance, err)
	}

	task, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("workflow: reload task: %w", err)
	}

	if err := e.runSegmentStage(ctx, taskID, &instance, task, paths, mergeOutput, isUpdate); err != nil {
		return e.fail(ctx, taskID, instance, err)
	}

	return e.finishWaitingUpload(ctx, taskID, instance)
}

// runSegmentStage implements the optional segment phase (spec §4.6 step
// 6): splits the merged file when segmentation is enabled, appending to
// a VIDEO_UPDATE's prior segments or replacing a fresh run's. A
// VIDEO_UPDATE run with segmentation disabled still appends the merged
// file itself as a single new part, continuing the naming sequence.
func (e *Engine) runSegmentStage(ctx context.Context, taskID string, instance *models.WorkflowInstance, task models.SubmissionTask, paths TaskPaths, mergeOutput string, isUpdate bool) error {
	enableSegmentation := instance.Config.EnableSegmentation
	prefix := instance.Config.SegmentPrefix
	if prefix == "" {
		prefix = task.SegmentPrefix
	}

	if !enableSegmentation {
		if !isUpdate {
			return nil
		}
		count, maxOrder, err := outputSegmentStats(ctx, e.Store, taskID)
		if err != nil {
			return err
		}
		startIndex := resolveUpdateNameStartIndex(count, task.RemoteIdentifier != "")
		return appendOutputSegments(ctx, e.Store, taskID, prefix, []string{mergeOutput}, maxOrder+1, startIndex)
	}

	if err := e.setStatus(ctx, taskID, instance, models.TaskStatusSegmenting, models.WorkflowStepSegment, 70); err != nil {
		return err
	}
	segmentSeconds := instance.Config.SegmentDurationSecond
	if segmentSeconds <= 0 {
		segmentSeconds = DefaultSegmentDurationSeconds
	}
	outputs, err := runSegmentPhase(ctx, e.Transcoder, paths.Output, taskID, mergeOutput, segmentSeconds)
	if err != nil {
		return err
	}

	if isUpdate {
		count, maxOrder, err := outputSegmentStats(ctx, e.Store, taskID)
		if err != nil {
			return err
		}
		startIndex := resolveUpdateNameStartIndex(count, task.RemoteIdentifier != "")
		return appendOutputSegments(ctx, e.Store, taskID, prefix, outputs, maxOrder+1, startIndex)
	}
	return saveOutputSegments(ctx, e.Store, taskID, prefix, outputs)
}

// finishWaitingUpload hands the task off to the Upload Queue (spec §4.6
// step 7): the workflow's own job ends here, successfully.
func (e *Engine) finishWaitingUpload(ctx context.Context, taskID string, instance models.WorkflowInstance) error {
	status := models.TaskStatusWaitUpload
	if _, err := e.Store.UpdateTask(ctx, taskID, store.TaskUpdate{Status: &status}); err != nil {
		return fmt.Errorf("workflow: set task waiting_upload: %w", err)
	}
	instance.Status = models.WorkflowStatusCompleted
	instance.CurrentStep = models.WorkflowStepUpload
	instance.Progress = 100
	if err := e.Store.UpdateWorkflowInstance(ctx, instance); err != nil {
		return fmt.Errorf("workflow: mark instance completed: %w", err)
	}
	e.logger().Info("workflow reached waiting_upload", "task_id", taskID)
	return nil
}

// setStatus advances both the task row and the workflow instance row to
// the given step/progress together, keeping the two in lockstep per
// invariant 2 (status(t) in {CLIPPING,MERGING,SEGMENTING} iff a RUNNING
// instance has the matching current_step).
func (e *Engine) setStatus(ctx context.Context, taskID string, instance *models.WorkflowInstance, taskStatus models.TaskStatus, step models.WorkflowStep, progress float64) error {
	if _, err := e.Store.UpdateTask(ctx, taskID, store.TaskUpdate{Status: &taskStatus}); err != nil {
		return fmt.Errorf("workflow: set task status %s: %w", taskStatus, err)
	}
	instance.Status = models.WorkflowStatusRunning
	instance.CurrentStep = step
	instance.Progress = progress
	if err := e.Store.UpdateWorkflowInstance(ctx, *instance); err != nil {
		return fmt.Errorf("workflow: set instance step %s: %w", step, err)
	}
	return nil
}

// fail marks both the task and the workflow instance FAILED and returns
// the original error, for any phase that cannot proceed.
func (e *Engine) fail(ctx context.Context, taskID string, instance models.WorkflowInstance, cause error) error {
	status := models.TaskStatusFailed
	if _, err := e.Store.UpdateTask(ctx, taskID, store.TaskUpdate{Status: &status}); err != nil {
		e.logger().Warn("failed to mark task failed", "task_id", taskID, "error", err)
	}
	instance.Status = models.WorkflowStatusFailed
	if err := e.Store.UpdateWorkflowInstance(ctx, instance); err != nil {
		e.logger().Warn("failed to mark instance failed", "task_id", taskID, "error", err)
	}
	e.logger().Error("workflow failed", "task_id", taskID, "error", cause)
	return cause
}

// handleCancel demotes the task to CANCELLED alongside the already-
// CANCELLED instance (spec §4.6: "Cancel additionally demotes the task to
// CANCELLED"), swallowing ErrWorkflowCancelled so callers don't treat a
// deliberate cancel as a pipeline failure.
func (e *Engine) handleCancel(ctx context.Context, taskID string, instance models.WorkflowInstance, cause error) error {
	if !errors.Is(cause, ErrWorkflowCancelled) {
		return e.fail(ctx, taskID, instance, cause)
	}
	status := models.TaskStatusCancelled
	if _, err := e.Store.UpdateTask(ctx, taskID, store.TaskUpdate{Status: &status}); err != nil {
		e.logger().Warn("failed to demote cancelled task", "task_id", taskID, "error", err)
	}
	e.logger().Info("workflow cancelled", "task_id", taskID)
	return nil
}
