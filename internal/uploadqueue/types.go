package uploadqueue

import (
	"context"
	"time"

	"reactioncut/internal/mediaclient"
	"reactioncut/internal/models"
	"reactioncut/internal/remoteapi"
	"reactioncut/internal/store"
	"reactioncut/internal/uploadclient"
)

// Store is the slice of the Persistent Store the Upload Queue needs,
// defined locally following internal/workflow.Store's idiom so this
// package depends on internal/store only for the plain TaskUpdate value
// type, not its full Repository interface.
type Store interface {
	ListTasksByStatus(ctx context.Context, statuses ...models.TaskStatus) ([]models.SubmissionTask, error)
	GetTask(ctx context.Context, taskID string) (models.SubmissionTask, error)
	UpdateTask(ctx context.Context, taskID string, update store.TaskUpdate) (models.SubmissionTask, error)

	GetActiveWorkflowInstance(ctx context.Context, taskID string) (models.WorkflowInstance, error)

	ListOutputSegments(ctx context.Context, taskID string) ([]models.TaskOutputSegment, error)
	GetOutputSegment(ctx context.Context, segmentID string) (models.TaskOutputSegment, error)
	UpsertOutputSegment(ctx context.Context, segment models.TaskOutputSegment) (models.TaskOutputSegment, error)

	GetMergedVideo(ctx context.Context, taskID string) (models.MergedVideo, error)
	UpsertMergedVideo(ctx context.Context, merged models.MergedVideo) error
}

// Uploader is the narrow slice of *uploadclient.Client the queue drives
// one segment or merged file through at a time.
type Uploader interface {
	Upload(ctx context.Context, req uploadclient.Request) (uploadclient.Result, error)
}

// Submitter is the narrow slice of *remoteapi.Client the Submit step (spec
// §4.7's last bullet) calls once every part has uploaded successfully.
type Submitter interface {
	Submit(ctx context.Context, info remoteapi.SubmissionInfo, parts []remoteapi.VideoPart) (remoteapi.SubmissionResult, error)
	SubmitUpdate(ctx context.Context, info remoteapi.SubmissionInfo, parts []remoteapi.VideoPart, aid int64) error
	AddToCollection(ctx context.Context, title string, collectionID, aid, cid int64) error
	FetchAIDByBVID(ctx context.Context, bvid string) (int64, error)
}

// CredentialRefresher is the narrow slice of *mediaclient.Client needed to
// renew a session with no usable csrf before starting an upload_task run.
// *mediaclient.Client, *remoteapi.Client's own refresher, and
// *uploadclient.Client's all share this shape structurally.
type CredentialRefresher interface {
	RefreshCookie(ctx context.Context, provider mediaclient.CredentialProvider) (mediaclient.AuthInfo, error)
}

// Waker lets Enqueue wake a blocked consumer loop immediately instead of
// leaving it to the blind poll interval. RedisWaker implements this over
// Redis streams; noopWaker is the zero-configuration fallback.
type Waker interface {
	Notify(ctx context.Context) error
	Wait(ctx context.Context, timeout time.Duration) error
	Close() error
}
