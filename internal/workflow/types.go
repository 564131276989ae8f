package workflow

import (
	"context"

	"reactioncut/internal/models"
	"reactioncut/internal/store"
	"reactioncut/internal/transcoder"
)

// Store is the slice of the Persistent Store the Workflow Engine needs:
// task and workflow-instance state transitions, the source/clip/merge/
// segment rows the clip-merge-segment pipeline produces and consumes, and
// the download records a repost re-queues. Defined locally, following
// internal/recorder.Store's idiom, so this package depends on
// internal/store only for the plain TaskUpdate value type, not its full
// Repository interface.
type Store interface {
	GetTask(ctx context.Context, taskID string) (models.SubmissionTask, error)
	UpdateTask(ctx context.Context, taskID string, update store.TaskUpdate) (models.SubmissionTask, error)

	ListSourceVideos(ctx context.Context, taskID string) ([]models.TaskSourceVideo, error)
	UpdateSourceVideoWindow(ctx context.Context, id, startTimecode, endTimecode string) error

	AddClip(ctx context.Context, clip models.VideoClip) error
	ListClips(ctx context.Context, taskID string) ([]models.VideoClip, error)

	UpsertMergedVideo(ctx context.Context, merged models.MergedVideo) error
	GetMergedVideo(ctx context.Context, taskID string) (models.MergedVideo, error)

	UpsertOutputSegment(ctx context.Context, segment models.TaskOutputSegment) (models.TaskOutputSegment, error)
	ListOutputSegments(ctx context.Context, taskID string) ([]models.TaskOutputSegment, error)
	ClearTaskArtifacts(ctx context.Context, taskID string) error
	ClearOutputSegments(ctx context.Context, taskID string) error

	CreateWorkflowInstance(ctx context.Context, instance models.WorkflowInstance) (models.WorkflowInstance, error)
	UpdateWorkflowInstance(ctx context.Context, instance models.WorkflowInstance) error
	GetActiveWorkflowInstance(ctx context.Context, taskID string) (models.WorkflowInstance, error)

	ListDownloadRecordsByTask(ctx context.Context, taskID string) ([]models.IntegratedDownloadRecord, error)
	CreateDownloadRecord(ctx context.Context, record models.IntegratedDownloadRecord) (models.IntegratedDownloadRecord, error)
}

// Prober answers the duration/codec questions the source-readiness probe
// and the clip-copy decision need. *transcoder.Prober satisfies this
// directly; tests substitute a fake that doesn't shell out to ffprobe.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
	VideoCodec(ctx context.Context, path string) (string, error)
}

// Transcoder is the narrow slice of *transcoder.Runner the clip/merge/
// segment phases dispatch onto: one blocking job, run to completion.
type Transcoder interface {
	Run(ctx context.Context, job transcoder.Job) error
}
