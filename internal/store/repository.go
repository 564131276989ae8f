// Package store implements the Persistent Store (spec §2, §4.0): a
// transactional key/row store keyed by task id, segment id, and record id,
// that every other component talks to instead of touching files directly.
//
// Two implementations satisfy Repository: NewMemoryRepository (an
// RWMutex-guarded in-memory map store, used by tests and by a dry-run mode)
// and NewPostgresRepository (a pgx/pgxpool-backed store used in production).
// Both share the same functional-options type so callers configure either
// backend identically.
package store

import (
	"context"
	"errors"
	"time"

	"reactioncut/internal/models"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

// TaskUpdate carries the subset of SubmissionTask fields a caller wants to
// change; nil pointers leave the existing value untouched.
type TaskUpdate struct {
	Status           *models.TaskStatus
	RemoteIdentifier *string
	RemoteAID        *int64
	RemoteState      *int
	RejectReason     *string
	CoverURL         *string
	Title            *string
	Description      *string
}

// Repository is the full set of operations the recorder, workflow engine,
// upload queue, remote reconciliation loop, and recovery sweeps perform
// against the Persistent Store.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error

	// Submission tasks.
	CreateTask(ctx context.Context, task models.SubmissionTask) (models.SubmissionTask, error)
	GetTask(ctx context.Context, taskID string) (models.SubmissionTask, error)
	UpdateTask(ctx context.Context, taskID string, update TaskUpdate) (models.SubmissionTask, error)
	ListTasksByStatus(ctx context.Context, statuses ...models.TaskStatus) ([]models.SubmissionTask, error)
	DeleteTask(ctx context.Context, taskID string) error

	// Source videos and clips feeding the clip/merge phases.
	AddSourceVideo(ctx context.Context, video models.TaskSourceVideo) (models.TaskSourceVideo, error)
	ListSourceVideos(ctx context.Context, taskID string) ([]models.TaskSourceVideo, error)
	// UpdateSourceVideoWindow persists a clamped clip window back onto a
	// source row, for the source-readiness probe's "configured end_time
	// exceeds probed duration" case.
	UpdateSourceVideoWindow(ctx context.Context, id, startTimecode, endTimecode string) error
	AddClip(ctx context.Context, clip models.VideoClip) error
	ListClips(ctx context.Context, taskID string) ([]models.VideoClip, error)

	// Merged video and output segments, the upload-bearing artifacts.
	UpsertMergedVideo(ctx context.Context, merged models.MergedVideo) error
	GetMergedVideo(ctx context.Context, taskID string) (models.MergedVideo, error)
	UpsertOutputSegment(ctx context.Context, segment models.TaskOutputSegment) (models.TaskOutputSegment, error)
	GetOutputSegment(ctx context.Context, segmentID string) (models.TaskOutputSegment, error)
	ListOutputSegments(ctx context.Context, taskID string) ([]models.TaskOutputSegment, error)
	// ClearTaskArtifacts drops a task's output segments, merged video, and
	// clips, for a repost or resegment that starts the clip/merge/segment
	// phases over from scratch.
	ClearTaskArtifacts(ctx context.Context, taskID string) error
	// ClearOutputSegments drops only a task's output segments, for a
	// non-update segment phase replacing a prior segmentation of the same
	// merged video without touching the merged video or clip rows.
	ClearOutputSegments(ctx context.Context, taskID string) error

	// Workflow instances.
	CreateWorkflowInstance(ctx context.Context, instance models.WorkflowInstance) (models.WorkflowInstance, error)
	UpdateWorkflowInstance(ctx context.Context, instance models.WorkflowInstance) error
	GetActiveWorkflowInstance(ctx context.Context, taskID string) (models.WorkflowInstance, error)
	ListWorkflowInstancesByStatus(ctx context.Context, statuses ...models.WorkflowStatus) ([]models.WorkflowInstance, error)

	// Live recording.
	CreateLiveRecordTask(ctx context.Context, task models.LiveRecordTask) (models.LiveRecordTask, error)
	FinishLiveRecordTask(ctx context.Context, taskID string, status models.LiveRecordStatus, endedAt time.Time, bytesWritten int64, errMessage string) error
	GetActiveLiveRecordTask(ctx context.Context, roomID string) (models.LiveRecordTask, error)
	ListStaleLiveRecordTasks(ctx context.Context, olderThan time.Time) ([]models.LiveRecordTask, error)
	UpdateLiveRecordFilePath(ctx context.Context, taskID, filePath string, size int64) error

	// Anchors (per-room live status cache).
	UpsertAnchor(ctx context.Context, anchor models.Anchor) error
	GetAnchor(ctx context.Context, roomID string) (models.Anchor, error)
	ListAutoRecordAnchors(ctx context.Context) ([]models.Anchor, error)

	// Integrated download records.
	CreateDownloadRecord(ctx context.Context, record models.IntegratedDownloadRecord) (models.IntegratedDownloadRecord, error)
	ListDownloadRecordsByTask(ctx context.Context, taskID string) ([]models.IntegratedDownloadRecord, error)
	UpdateDownloadRecordStatus(ctx context.Context, id string, status models.DownloadStatus) error

	// Credential blobs. The value is opaque to the store: internal/credentials
	// is the only caller, and it hands over already pbkdf2/AES-GCM-encrypted
	// bytes keyed by a caller-chosen name (e.g. a platform identifier).
	SaveCredential(ctx context.Context, key string, encrypted []byte) error
	LoadCredential(ctx context.Context, key string) ([]byte, error)
}
