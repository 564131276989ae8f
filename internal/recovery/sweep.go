package recovery

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reactioncut/internal/lifecycle"
	"reactioncut/internal/models"
	"reactioncut/internal/recorder"
	"reactioncut/internal/store"
	"reactioncut/internal/transcoder"
)

// Sweeper runs the Recovery Sweeps (spec §4.10): StartupSweep once, before
// anything else starts consuming tasks, and PeriodicSweep on a 10-minute
// tick thereafter.
type Sweeper struct {
	Store      Store
	Engine     WorkflowRunner
	Transcoder Transcoder
	Logger     *slog.Logger

	// now is overridden by tests; defaults to time.Now.
	now func() time.Time
}

// New constructs a Sweeper.
func New(s Store, engine WorkflowRunner, transcoderRunner Transcoder) *Sweeper {
	return &Sweeper{Store: s, Engine: engine, Transcoder: transcoderRunner, now: time.Now}
}

func (s *Sweeper) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Sweeper) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Start runs StartupSweep synchronously, then launches PeriodicSweep on
// recorder.StaleRecordSweepInterval via internal/lifecycle.RunPeriodic.
func (s *Sweeper) Start(ctx context.Context) lifecycle.Stop {
	if err := s.StartupSweep(ctx); err != nil {
		s.logger().Error("recovery: startup sweep failed", "error", err)
	}
	return lifecycle.RunPeriodic(ctx, s.logger(), "recovery", recorder.StaleRecordSweepInterval, s.PeriodicSweep)
}

// StartupSweep implements spec §4.10's "at start" bullets: resets
// in-flight submission tasks to a resumable state and relaunches their
// workflow, and dispositions every LiveRecordTask an unclean shutdown
// left RECORDING.
func (s *Sweeper) StartupSweep(ctx context.Context) error {
	if err := s.resumeUploadingTasks(ctx); err != nil {
		return err
	}
	if err := s.resumePipelineTasks(ctx); err != nil {
		return err
	}
	return s.resolveOrphanedRecordings(ctx)
}

// resumeUploadingTasks implements "any UPLOADING task -> WAITING_UPLOAD":
// the process died mid upload_task, but every chunk upload persists its
// checkpoint as it goes, so the Upload Queue can simply pick the task back
// up from wherever its segments/merged video left off.
func (s *Sweeper) resumeUploadingTasks(ctx context.Context) error {
	tasks, err := s.Store.ListTasksByStatus(ctx, models.TaskStatusUploading)
	if err != nil {
		return err
	}
	waiting := models.TaskStatusWaitUpload
	for _, task := range tasks {
		if _, err := s.Store.UpdateTask(ctx, task.TaskID, store.TaskUpdate{Status: &waiting}); err != nil {
			s.logger().Error("recovery: resume uploading task failed", "task_id", task.TaskID, "error", err)
		}
	}
	return nil
}

// resumePipelineTasks implements "any PENDING|CLIPPING|MERGING|SEGMENTING
// task -> PENDING with its workflow instance reset to PENDING, then
// re-launched": the clip/merge/segment phases are not individually
// resumable mid-file, so the whole pipeline restarts from Wait-Ready.
func (s *Sweeper) resumePipelineTasks(ctx context.Context) error {
	tasks, err := s.Store.ListTasksByStatus(ctx,
		models.TaskStatusPending, models.TaskStatusClipping, models.TaskStatusMerging, models.TaskStatusSegmenting)
	if err != nil {
		return err
	}
	pending := models.TaskStatusPending
	for _, task := range tasks {
		if _, err := s.Store.UpdateTask(ctx, task.TaskID, store.TaskUpdate{Status: &pending}); err != nil {
			s.logger().Error("recovery: reset pipeline task failed", "task_id", task.TaskID, "error", err)
			continue
		}

		instance, err := s.Store.GetActiveWorkflowInstance(ctx, task.TaskID)
		if err != nil {
			s.logger().Error("recovery: load workflow instance failed", "task_id", task.TaskID, "error", err)
			continue
		}
		instance.Status = models.WorkflowStatusPending
		instance.CurrentStep = models.WorkflowStepWaitReady
		if err := s.Store.UpdateWorkflowInstance(ctx, instance); err != nil {
			s.logger().Error("recovery: reset workflow instance failed", "task_id", task.TaskID, "error", err)
			continue
		}

		s.relaunch(task.TaskID)
	}
	return nil
}

// relaunch runs the Workflow Engine for taskID detached from the sweep,
// since Engine.Run blocks until the task reaches a terminal or
// waiting-upload state.
func (s *Sweeper) relaunch(taskID string) {
	if s.Engine == nil {
		return
	}
	go func() {
		if err := s.Engine.Run(context.Background(), taskID); err != nil {
			s.logger().Error("recovery: relaunch failed", "task_id", taskID, "error", err)
		}
	}()
}

// resolveOrphanedRecordings implements the two "at start" LiveRecordTask
// bullets: every row an unclean shutdown left RECORDING is dispositioned
// by what's actually on disk rather than trusted blindly.
func (s *Sweeper) resolveOrphanedRecordings(ctx context.Context) error {
	recording, err := s.Store.ListStaleLiveRecordTasks(ctx, s.clock())
	if err != nil {
		return err
	}
	for _, task := range recording {
		info, statErr := os.Stat(task.FilePath)
		switch {
		case statErr != nil:
			if err := s.Store.FinishLiveRecordTask(ctx, task.ID, models.LiveRecordStatusFailed, s.clock(), 0, "file missing"); err != nil {
				s.logger().Error("recovery: fail missing recording failed", "task_id", task.ID, "error", err)
			}
		case info.Size() > 0 && s.clock().Sub(info.ModTime()) <= recorder.StaleRecordRemuxMaxAge:
			if err := s.Store.FinishLiveRecordTask(ctx, task.ID, models.LiveRecordStatusStopped, s.clock(), info.Size(), ""); err != nil {
				s.logger().Error("recovery: stop orphaned recording failed", "task_id", task.ID, "error", err)
				continue
			}
			s.scheduleRemux(task)
		default:
			if err := s.Store.FinishLiveRecordTask(ctx, task.ID, models.LiveRecordStatusFailed, s.clock(), info.Size(), "file empty or too old to remux"); err != nil {
				s.logger().Error("recovery: fail stale recording failed", "task_id", task.ID, "error", err)
			}
		}
	}
	return nil
}

// PeriodicSweep implements spec §4.10's 10-minute reaper: among RECORDING
// rows, any whose file hasn't been written to in
// recorder.StaleRecordIdleThreshold is dispositioned by whether its room
// is still reported live.
func (s *Sweeper) PeriodicSweep(ctx context.Context) error {
	recording, err := s.Store.ListStaleLiveRecordTasks(ctx, s.clock())
	if err != nil {
		return err
	}
	for _, task := range recording {
		info, statErr := os.Stat(task.FilePath)
		if statErr != nil {
			continue
		}
		if s.clock().Sub(info.ModTime()) < recorder.StaleRecordIdleThreshold {
			continue
		}

		anchor, err := s.Store.GetAnchor(ctx, task.RoomID)
		stillLive := err == nil && anchor.LiveStatus
		if stillLive {
			if err := s.Store.FinishLiveRecordTask(ctx, task.ID, models.LiveRecordStatusFailed, s.clock(), info.Size(), idleFailureReason); err != nil {
				s.logger().Error("recovery: fail idle recording failed", "task_id", task.ID, "error", err)
			}
			continue
		}
		if err := s.Store.FinishLiveRecordTask(ctx, task.ID, models.LiveRecordStatusStopped, s.clock(), info.Size(), ""); err != nil {
			s.logger().Error("recovery: stop idle recording failed", "task_id", task.ID, "error", err)
			continue
		}
		s.scheduleRemux(task)
	}
	return nil
}

// scheduleRemux mirrors internal/recorder.Recorder.enqueueRemux: a
// detached copy-remux into a portable container, with the task row's
// final path and size patched on success.
func (s *Sweeper) scheduleRemux(task models.LiveRecordTask) {
	if s.Transcoder == nil || task.FilePath == "" {
		return
	}
	go func() {
		ctx := context.Background()
		outputPath := remuxOutputPath(task.FilePath)
		job := transcoder.RemuxJob(task.ID, task.FilePath, outputPath)
		if err := s.Transcoder.Run(ctx, job); err != nil {
			s.logger().Warn("recovery: post-recovery remux failed", "task_id", task.ID, "error", err)
			return
		}
		var size int64
		if info, err := os.Stat(outputPath); err == nil {
			size = info.Size()
		}
		if err := s.Store.UpdateLiveRecordFilePath(ctx, task.ID, outputPath, size); err != nil {
			s.logger().Warn("recovery: persist remux output path failed", "task_id", task.ID, "error", err)
		}
	}()
}

func remuxOutputPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".mp4"
}
