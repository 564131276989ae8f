package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"

	"reactioncut/internal/models"
	"reactioncut/internal/store"
)

// Controller exposes the explicit workflow commands (spec §4.6: Pause,
// Resume, Cancel, Resegment, Repost) that operate alongside Engine.Run
// without driving the clip/merge/segment pipeline themselves.
type Controller struct {
	Store Store

	// EditCache, if set, is cleared for the task on Resegment
	// (spec.md line 142: "clears cached edit-segments"). Declared as a
	// narrow interface rather than importing internal/uploadqueue
	// directly, since internal/uploadqueue itself imports this package;
	// *uploadqueue.EditCache satisfies it structurally.
	EditCache interface{ ClearByTask(taskID string) }
}

// ErrUploadingInProgress is returned by Resegment and Repost when the task
// is currently UPLOADING, a state both commands forbid.
var ErrUploadingInProgress = errors.New("workflow: task is uploading")

// Pause sets the active WorkflowInstance to PAUSED; waitReady honors it on
// its next poll.
func (c *Controller) Pause(ctx context.Context, taskID string) error {
	return c.setInstanceStatus(ctx, taskID, models.WorkflowStatusPaused)
}

// Resume sets the active WorkflowInstance back to RUNNING.
func (c *Controller) Resume(ctx context.Context, taskID string) error {
	return c.setInstanceStatus(ctx, taskID, models.WorkflowStatusRunning)
}

// Cancel sets the active WorkflowInstance to CANCELLED and additionally
// demotes the task itself to CANCELLED (spec §4.6: "Cancel additionally
// demotes the task to CANCELLED").
func (c *Controller) Cancel(ctx context.Context, taskID string) error {
	if err := c.setInstanceStatus(ctx, taskID, models.WorkflowStatusCancelled); err != nil {
		return err
	}
	status := models.TaskStatusCancelled
	if _, err := c.Store.UpdateTask(ctx, taskID, store.TaskUpdate{Status: &status}); err != nil {
		return fmt.Errorf("workflow: cancel: demote task: %w", err)
	}
	return nil
}

func (c *Controller) setInstanceStatus(ctx context.Context, taskID string, status models.WorkflowStatus) error {
	instance, err := c.Store.GetActiveWorkflowInstance(ctx, taskID)
	if err != nil {
		return fmt.Errorf("workflow: load active instance: %w", err)
	}
	instance.Status = status
	if err := c.Store.UpdateWorkflowInstance(ctx, instance); err != nil {
		return fmt.Errorf("workflow: set instance status %s: %w", status, err)
	}
	return nil
}

// Resegment implements the explicit re-segmentation command (spec §4.6):
// forbidden while UPLOADING, requires an existing merged file on disk,
// clears prior output segments, resets the workflow to a fresh SEGMENT
// step, re-splits the merged file, and lands back on WAITING_UPLOAD.
func (c *Controller) Resegment(ctx context.Context, taskID string, transcoder Transcoder, outputDir string, segmentSeconds int) error {
	task, err := c.Store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("workflow: resegment: load task: %w", err)
	}
	if task.Status == models.TaskStatusUploading {
		return ErrUploadingInProgress
	}

	merged, err := c.Store.GetMergedVideo(ctx, taskID)
	if err != nil {
		return fmt.Errorf("workflow: resegment: load merged video: %w", err)
	}
	if _, err := os.Stat(merged.Path); err != nil {
		return fmt.Errorf("workflow: resegment: merged file missing: %w", err)
	}

	if err := c.Store.ClearOutputSegments(ctx, taskID); err != nil {
		return fmt.Errorf("workflow: resegment: clear output segments: %w", err)
	}
	if c.EditCache != nil {
		c.EditCache.ClearByTask(taskID)
	}

	if segmentSeconds <= 0 {
		segmentSeconds = DefaultSegmentDurationSeconds
	}
	outputs, err := runSegmentPhase(ctx, transcoder, outputDir, taskID, merged.Path, segmentSeconds)
	if err != nil {
		return fmt.Errorf("workflow: resegment: split merged file: %w", err)
	}
	if err := saveOutputSegments(ctx, c.Store, taskID, task.SegmentPrefix, outputs); err != nil {
		return fmt.Errorf("workflow: resegment: save output segments: %w", err)
	}

	waiting := models.TaskStatusWaitUpload
	if _, err := c.Store.UpdateTask(ctx, taskID, store.TaskUpdate{Status: &waiting}); err != nil {
		return fmt.Errorf("workflow: resegment: set task waiting_upload: %w", err)
	}
	return nil
}

// RepostResult reports whether Repost had to defer for missing sources
// instead of immediately starting a fresh workflow run.
type RepostResult struct {
	Deferred        bool
	RequeuedSources []string
}

// Repost implements the explicit repost command (spec §4.6 and §8
// scenario 6): forbidden while UPLOADING. Any source file missing from
// disk but backed by a matching INTEGRATED download record is re-queued
// for download against this task and the command defers without touching
// submission status. Once every source is present, prior derived files
// are cleared, the workflow is reset, and a fresh WorkflowInstance is
// started — VIDEO_SUBMISSION clearing the task's bvid/aid, VIDEO_UPDATE
// keeping them.
func (c *Controller) Repost(ctx context.Context, taskID string, asUpdate bool) (RepostResult, error) {
	task, err := c.Store.GetTask(ctx, taskID)
	if err != nil {
		return RepostResult{}, fmt.Errorf("workflow: repost: load task: %w", err)
	}
	if task.Status == models.TaskStatusUploading {
		return RepostResult{}, ErrUploadingInProgress
	}

	sources, err := c.Store.ListSourceVideos(ctx, taskID)
	if err != nil {
		return RepostResult{}, fmt.Errorf("workflow: repost: list sources: %w", err)
	}
	records, err := c.Store.ListDownloadRecordsByTask(ctx, taskID)
	if err != nil {
		return RepostResult{}, fmt.Errorf("workflow: repost: list download records: %w", err)
	}
	byPath := make(map[string]models.IntegratedDownloadRecord, len(records))
	for _, rec := range records {
		byPath[rec.SourcePath] = rec
	}

	var requeued []string
	for _, src := range sources {
		if _, err := os.Stat(src.FilePath); err == nil {
			continue
		}
		if _, found := byPath[src.FilePath]; !found {
			return RepostResult{}, fmt.Errorf("workflow: repost: source %s missing with no download record", src.FilePath)
		}
		record := models.IntegratedDownloadRecord{
			TaskID:       taskID,
			RelationType: models.RelationTypeIntegrated,
			SourcePath:   src.FilePath,
			Status:       models.DownloadStatusPending,
		}
		if _, err := c.Store.CreateDownloadRecord(ctx, record); err != nil {
			return RepostResult{}, fmt.Errorf("workflow: repost: requeue download for %s: %w", src.FilePath, err)
		}
		requeued = append(requeued, src.FilePath)
	}

	if len(requeued) > 0 {
		return RepostResult{Deferred: true, RequeuedSources: requeued}, nil
	}

	if err := c.Store.ClearTaskArtifacts(ctx, taskID); err != nil {
		return RepostResult{}, fmt.Errorf("workflow: repost: clear derived files: %w", err)
	}

	workflowType := models.WorkflowTypeSubmission
	update := store.TaskUpdate{}
	pending := models.TaskStatusPending
	update.Status = &pending
	if asUpdate {
		workflowType = models.WorkflowTypeUpdate
	} else {
		empty := ""
		var zero int64
		update.RemoteIdentifier = &empty
		update.RemoteAID = &zero
	}
	if _, err := c.Store.UpdateTask(ctx, taskID, update); err != nil {
		return RepostResult{}, fmt.Errorf("workflow: repost: reset task: %w", err)
	}

	instance := models.WorkflowInstance{
		TaskID:       taskID,
		WorkflowType: workflowType,
		Status:       models.WorkflowStatusRunning,
		CurrentStep:  models.WorkflowStepWaitReady,
		Config:       task.SyncConfig,
	}
	if _, err := c.Store.CreateWorkflowInstance(ctx, instance); err != nil {
		return RepostResult{}, fmt.Errorf("workflow: repost: create workflow instance: %w", err)
	}
	return RepostResult{}, nil
}
