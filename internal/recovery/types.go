package recovery

import (
	"context"
	"time"

	"reactioncut/internal/models"
	"reactioncut/internal/store"
	"reactioncut/internal/transcoder"
)

// Store is the slice of the Persistent Store the Recovery Sweeps need,
// defined locally following internal/workflow.Store's idiom.
type Store interface {
	ListTasksByStatus(ctx context.Context, statuses ...models.TaskStatus) ([]models.SubmissionTask, error)
	UpdateTask(ctx context.Context, taskID string, update store.TaskUpdate) (models.SubmissionTask, error)

	GetActiveWorkflowInstance(ctx context.Context, taskID string) (models.WorkflowInstance, error)
	UpdateWorkflowInstance(ctx context.Context, instance models.WorkflowInstance) error

	ListStaleLiveRecordTasks(ctx context.Context, olderThan time.Time) ([]models.LiveRecordTask, error)
	FinishLiveRecordTask(ctx context.Context, taskID string, status models.LiveRecordStatus, endedAt time.Time, bytesWritten int64, errMessage string) error
	UpdateLiveRecordFilePath(ctx context.Context, taskID, filePath string, size int64) error

	GetAnchor(ctx context.Context, roomID string) (models.Anchor, error)
}

// WorkflowRunner is the narrow slice of *workflow.Engine needed to
// relaunch a task's pipeline from scratch after its workflow instance has
// been reset to PENDING. Run is expected to block until the task reaches
// WAITING_UPLOAD, FAILED, or CANCELLED, so the sweep launches it detached.
type WorkflowRunner interface {
	Run(ctx context.Context, taskID string) error
}

// Transcoder is the narrow slice of *transcoder.Runner the stale-recording
// remux step dispatches onto, the same shape internal/recorder's own
// post-segment remux uses.
type Transcoder interface {
	Run(ctx context.Context, job transcoder.Job) error
}
